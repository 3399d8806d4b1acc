package streammux

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
)

// frameCollector is a Sink recording every written frame.
type frameCollector struct {
	mu     sync.Mutex
	frames []message.Frame
	fail   error
}

func (fc *frameCollector) sink(frame message.Frame) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.fail != nil {
		return fc.fail
	}
	fc.frames = append(fc.frames, frame)
	return nil
}

func (fc *frameCollector) snapshot() []message.Frame {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]message.Frame, len(fc.frames))
	copy(out, fc.frames)
	return out
}

func (fc *frameCollector) count() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.frames)
}

func newTestMux(t *testing.T, cfg Config) (*Mux, *frameCollector) {
	t.Helper()
	fc := &frameCollector{}
	m, err := New(fc.sink, cfg, nil, nil)
	require.NoError(t, err)
	return m, fc
}

func ackFrame(et message.EventType, requestID uint32) message.Frame {
	return message.MustFrame(et, requestID, message.Ack{Success: true})
}

func TestMux_ControlDrainsFirst(t *testing.T) {
	m, fc := newTestMux(t, Config{})

	// Queue data before control, then start: the writer must still put
	// control on the wire first.
	require.NoError(t, m.EnqueueData(ackFrame(message.EventRasterTileData, 0)))
	require.NoError(t, m.EnqueueControl(ackFrame(message.EventOpenFileAck, 7)))

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return fc.count() == 2 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop(time.Second))

	frames := fc.snapshot()
	assert.Equal(t, message.EventOpenFileAck, frames[0].EventType)
	assert.Equal(t, message.EventRasterTileData, frames[1].EventType)
}

func TestMux_CategoryOrderIsFIFO(t *testing.T) {
	m, fc := newTestMux(t, Config{})

	for id := uint32(1); id <= 5; id++ {
		require.NoError(t, m.EnqueueControl(ackFrame(message.EventSetRegionAck, id)))
	}

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return fc.count() == 5 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop(time.Second))

	for i, frame := range fc.snapshot() {
		assert.Equal(t, uint32(i+1), frame.RequestID)
	}
}

func TestMux_TileBatchBracketing(t *testing.T) {
	m, fc := newTestMux(t, Config{})

	tiles := []message.RasterTileData{
		{Tile: 101}, {Tile: 102}, {Tile: 103},
	}
	syncID, err := m.EnqueueTileBatch(0, 2, 1, 0, tiles)
	require.NoError(t, err)

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return fc.count() == 5 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop(time.Second))

	frames := fc.snapshot()

	var start message.RasterTileSync
	require.Equal(t, message.EventRasterTileSync, frames[0].EventType)
	require.NoError(t, frames[0].Into(&start))
	assert.Equal(t, syncID, start.SyncID)
	assert.False(t, start.EndSync)

	for i := 1; i <= 3; i++ {
		var tile message.RasterTileData
		require.Equal(t, message.EventRasterTileData, frames[i].EventType)
		require.NoError(t, frames[i].Into(&tile))
		assert.Equal(t, tiles[i-1].Tile, tile.Tile)
		assert.Equal(t, int32(2), tile.Channel)
		assert.Equal(t, int32(1), tile.Stokes)
	}

	var end message.RasterTileSync
	require.Equal(t, message.EventRasterTileSync, frames[4].EventType)
	require.NoError(t, frames[4].Into(&end))
	assert.Equal(t, syncID, end.SyncID)
	assert.True(t, end.EndSync)
	assert.Equal(t, int32(3), end.TileCount)
	assert.Equal(t, start.Channel, end.Channel)
}

func TestMux_SyncIDsIncrease(t *testing.T) {
	m, _ := newTestMux(t, Config{})

	id1, err := m.EnqueueTileBatch(0, 0, 0, 0, nil)
	require.NoError(t, err)
	id2, err := m.EnqueueTileBatch(0, 0, 0, 0, nil)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
}

func TestMux_ProgressCoalesces(t *testing.T) {
	m, fc := newTestMux(t, Config{ProgressCapacity: 4})

	for i := 1; i <= 10; i++ {
		frame := message.MustFrame(message.EventMomentProgress, 0, message.MomentProgress{
			FileID:   0,
			Progress: float64(i) / 10,
		})
		require.NoError(t, m.EnqueueProgress(frame))
	}

	require.NoError(t, m.Start())
	require.Eventually(t, func() bool { return fc.count() == 4 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop(time.Second))

	// The oldest reports were dropped; the final one survived.
	frames := fc.snapshot()
	var last message.MomentProgress
	require.NoError(t, frames[len(frames)-1].Into(&last))
	assert.InDelta(t, 1.0, last.Progress, 1e-9)
}

func TestMux_SinkFailureStopsWriter(t *testing.T) {
	m, fc := newTestMux(t, Config{})
	fc.fail = errors.ErrConnectionLost

	require.NoError(t, m.Start())
	require.NoError(t, m.EnqueueControl(ackFrame(message.EventOpenFileAck, 1)))

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit on sink failure")
	}
	assert.True(t, m.Failed())

	err := m.EnqueueControl(ackFrame(message.EventOpenFileAck, 2))
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
}

func TestMux_FlushProgressDropsStaleReports(t *testing.T) {
	// Gate the sink so the writer sits on its first frame, building a
	// backlog the way a slow client would.
	fc := &frameCollector{}
	release := make(chan struct{})
	m, err := New(func(frame message.Frame) error {
		<-release
		return fc.sink(frame)
	}, Config{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Start())
	require.NoError(t, m.EnqueueData(ackFrame(message.EventRasterTileData, 0)))

	for i := 1; i <= 3; i++ {
		frame := message.MustFrame(message.EventMomentProgress, 0, message.MomentProgress{
			FileID:   7,
			Progress: float64(i) / 10,
		})
		require.NoError(t, m.EnqueueProgress(frame))
	}

	// Cancel path: drop the stale reports, then queue the terminal
	// response. Nothing for file 7 may follow it onto the wire.
	dropped := m.FlushProgress(func(frame message.Frame) bool {
		var p message.MomentProgress
		return frame.Into(&p) == nil && p.FileID == 7
	})
	assert.Equal(t, 3, dropped)
	require.NoError(t, m.EnqueueControl(message.MustFrame(message.EventMomentResponse, 9,
		message.MomentResponse{Ack: message.Ack{Success: true, Cancel: true}})))

	close(release)
	require.Eventually(t, func() bool { return fc.count() == 2 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop(time.Second))

	frames := fc.snapshot()
	for _, frame := range frames {
		assert.NotEqual(t, message.EventMomentProgress, frame.EventType)
	}
	assert.Equal(t, message.EventMomentResponse, frames[len(frames)-1].EventType)
}

func TestMux_SinkFailureReleasesBlockedProducers(t *testing.T) {
	sinkEntered := make(chan struct{})
	failNow := make(chan struct{})
	m, err := New(func(frame message.Frame) error {
		close(sinkEntered)
		<-failNow
		return errors.ErrConnectionLost
	}, Config{DataCapacity: 1}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.Start())

	// The writer takes the first frame into the sink and holds there,
	// the second fills the queue, and the third parks a producer on the
	// full queue.
	require.NoError(t, m.EnqueueData(ackFrame(message.EventRasterTileData, 1)))
	<-sinkEntered
	require.NoError(t, m.EnqueueData(ackFrame(message.EventRasterTileData, 2)))

	blocked := make(chan error, 1)
	go func() {
		blocked <- m.EnqueueData(ackFrame(message.EventRasterTileData, 3))
	}()

	close(failNow)
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not exit on sink failure")
	}

	select {
	case err := <-blocked:
		assert.Error(t, err, "producer must not stay parked on a dead writer")
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after sink failure")
	}
}

func TestMux_Lifecycle(t *testing.T) {
	m, _ := newTestMux(t, Config{})

	assert.ErrorIs(t, m.Stop(time.Second), errors.ErrNotStarted)
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), errors.ErrAlreadyStarted)
	require.NoError(t, m.Stop(time.Second))
	assert.NoError(t, m.Stop(time.Second), "second stop is a no-op")
}
