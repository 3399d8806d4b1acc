package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/animation"
	"github.com/c360/cubestream/cube"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/jobs"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/session"
	"github.com/c360/cubestream/streammux"
)

// frameLog collects every frame the mux writes, in wire order.
type frameLog struct {
	mu     sync.Mutex
	frames []message.Frame
}

func (l *frameLog) sink(frame message.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, frame)
	return nil
}

func (l *frameLog) ofType(et message.EventType) []message.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []message.Frame
	for _, f := range l.frames {
		if f.EventType == et {
			out = append(out, f)
		}
	}
	return out
}

func (l *frameLog) waitFor(t *testing.T, et message.EventType) message.Frame {
	t.Helper()
	frames := l.waitForCount(t, et, 1)
	return frames[len(frames)-1]
}

func (l *frameLog) waitForCount(t *testing.T, et message.EventType, n int) []message.Frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if frames := l.ofType(et); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s frame(s)", n, et)
	return nil
}

func decodePayload[T any](t *testing.T, frame message.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, frame.Into(&v))
	return v
}

func dispatchShape() cube.Shape {
	return cube.Shape{Width: 64, Height: 64, Channels: 8, Stokes: 1}
}

// slowSource delays channel reads so tests can cancel mid-computation.
type slowSource struct {
	cube.Source
	delay time.Duration
}

func (s *slowSource) ChannelSlice(ctx context.Context, channel, stokes int32) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.Source.ChannelSlice(ctx, channel, stokes)
}

func slowOpener(shape cube.Shape, delay time.Duration) session.SourceOpener {
	base := session.SyntheticOpener(shape)
	return func(directory, file, hdu string) (cube.Source, error) {
		src, err := base(directory, file, hdu)
		if err != nil {
			return nil, err
		}
		return &slowSource{Source: src, delay: delay}, nil
	}
}

func shapedOpener(shapes map[string]cube.Shape) session.SourceOpener {
	return func(directory, file, hdu string) (cube.Source, error) {
		shape, ok := shapes[file]
		if !ok {
			return nil, errors.ErrFileNotFound
		}
		src, err := cube.NewSynthetic(file, shape)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

func newTestDispatcher(t *testing.T, opener session.SourceOpener) (*Dispatcher, *frameLog) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := &frameLog{}

	mux, err := streammux.New(log.sink, streammux.Config{}, logger, nil)
	require.NoError(t, err)
	require.NoError(t, mux.Start())

	mgr := jobs.NewManager(2, 32, logger, nil, nil)
	require.NoError(t, mgr.Start(context.Background()))

	anims := animation.NewController(
		animation.Config{WindowSize: 2, DefaultFrameRate: 1000}, logger, nil)

	d := New(Deps{
		Registry:   session.NewRegistry(opener, logger, nil),
		Jobs:       mgr,
		Animations: anims,
		Mux:        mux,
		Opener:     opener,
		Logger:     logger,
	})
	t.Cleanup(func() {
		anims.StopAll()
		_ = mgr.Stop(2 * time.Second)
		_ = mux.Stop(2 * time.Second)
	})

	d.Dispatch(context.Background(),
		message.MustFrame(message.EventRegisterViewer, 1, message.RegisterViewer{}))
	ack := decodePayload[message.RegisterViewerAck](t, log.waitFor(t, message.EventRegisterViewerAck))
	require.True(t, ack.Success)
	require.Equal(t, "new", ack.SessionType)
	return d, log
}

func openTestFile(t *testing.T, d *Dispatcher, log *frameLog, fileID int32, file string) {
	t.Helper()
	before := len(log.ofType(message.EventOpenFileAck))
	d.Dispatch(context.Background(), message.MustFrame(message.EventOpenFile, 2, message.OpenFile{
		Directory: "data",
		File:      file,
		FileID:    fileID,
	}))
	acks := log.waitForCount(t, message.EventOpenFileAck, before+1)
	ack := decodePayload[message.OpenFileAck](t, acks[before])
	require.True(t, ack.Success, ack.Message)
	require.Equal(t, fileID, ack.FileID)
}

func setRegion(t *testing.T, d *Dispatcher, log *frameLog, fileID, regionID int32, info message.RegionInfo) int32 {
	t.Helper()
	before := len(log.ofType(message.EventSetRegionAck))
	d.Dispatch(context.Background(), message.MustFrame(message.EventSetRegion, 3, message.SetRegion{
		FileID:     fileID,
		RegionID:   regionID,
		RegionInfo: info,
	}))
	acks := log.waitForCount(t, message.EventSetRegionAck, before+1)
	ack := decodePayload[message.SetRegionAck](t, acks[len(acks)-1])
	require.True(t, ack.Success, ack.Message)
	return ack.RegionID
}

func TestDispatch_UnregisteredSessionRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := &frameLog{}
	mux, err := streammux.New(log.sink, streammux.Config{}, logger, nil)
	require.NoError(t, err)
	require.NoError(t, mux.Start())
	t.Cleanup(func() { _ = mux.Stop(time.Second) })

	opener := session.SyntheticOpener(dispatchShape())
	d := New(Deps{
		Registry: session.NewRegistry(opener, logger, nil),
		Mux:      mux,
		Opener:   opener,
		Logger:   logger,
	})

	d.Dispatch(context.Background(),
		message.MustFrame(message.EventFileListRequest, 1, message.FileListRequest{}))
	errData := decodePayload[message.ErrorData](t, log.waitFor(t, message.EventErrorData))
	assert.Equal(t, "Session not registered", errData.Message)
}

func TestDispatch_FileListAnswersAfterCloseMidAnimation(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_B_09600_z00100.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventStartAnimation, 4, message.StartAnimation{
		FileID:     1,
		FirstFrame: message.AnimationFrame{Channel: 0},
		StartFrame: message.AnimationFrame{Channel: 0},
		LastFrame:  message.AnimationFrame{Channel: 7},
		DeltaFrame: message.AnimationFrame{Channel: 1},
		Looping:    true,
		RequiredTiles: &message.TileSet{
			Tiles: []int32{message.EncodeTile(0, 0, 0)},
		},
	}))
	startAck := decodePayload[message.StartAnimationAck](t, log.waitFor(t, message.EventStartAnimationAck))
	require.True(t, startAck.Success, startAck.Message)

	// Tear the file down while its animation is running, then probe.
	d.Dispatch(context.Background(),
		message.MustFrame(message.EventCloseFile, 5, message.CloseFile{FileID: 1}))
	d.Dispatch(context.Background(),
		message.MustFrame(message.EventFileListRequest, 6, message.FileListRequest{Directory: "data"}))

	resp := decodePayload[message.FileListResponse](t, log.waitFor(t, message.EventFileListResponse))
	require.True(t, resp.Success)
	names := make([]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "cube_B_09600_z00100.image")
}

func TestDispatch_RegionIDsNeverRecycled(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	rect := message.RegionInfo{
		RegionType:    message.RegionRectangle,
		ControlPoints: []message.Point{{X: 16, Y: 16}, {X: 8, Y: 8}},
	}
	first := setRegion(t, d, log, 1, message.RegionIDNew, rect)
	second := setRegion(t, d, log, 1, message.RegionIDNew, rect)
	assert.Equal(t, int32(1), first)
	assert.Equal(t, int32(2), second)

	d.Dispatch(context.Background(),
		message.MustFrame(message.EventRemoveRegion, 7, message.RemoveRegion{RegionID: second}))

	third := setRegion(t, d, log, 1, message.RegionIDNew, rect)
	assert.Equal(t, int32(3), third, "removed id must not be reissued")
}

func TestDispatch_TileBatchBracketing(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventAddRequiredTiles, 8, message.AddRequiredTiles{
		FileID: 1,
		// The second tile lies outside the 64x64 image and is skipped.
		Tiles: []int32{message.EncodeTile(0, 0, 0), message.EncodeTile(0, 5, 0)},
	}))

	syncs := log.waitForCount(t, message.EventRasterTileSync, 2)
	start := decodePayload[message.RasterTileSync](t, syncs[0])
	end := decodePayload[message.RasterTileSync](t, syncs[1])

	assert.False(t, start.EndSync)
	assert.True(t, end.EndSync)
	assert.Equal(t, start.SyncID, end.SyncID)
	assert.Equal(t, int32(1), end.TileCount)

	tiles := log.ofType(message.EventRasterTileData)
	require.Len(t, tiles, 1)
	tile := decodePayload[message.RasterTileData](t, tiles[0])
	assert.Equal(t, int32(64), tile.Width)
	assert.Equal(t, int32(64), tile.Height)
	assert.Len(t, tile.ImageData, 64*64)
}

func TestDispatch_SetImageChannelsRefreshesSubscriptions(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetStatsRequirements, 9, message.SetStatsRequirements{
		FileID:     1,
		RegionID:   message.RegionIDImage,
		StatsTypes: []message.StatsType{message.StatsNumPixels, message.StatsMean},
	}))
	log.waitFor(t, message.EventRegionStatsData)

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetImageChannels, 10, message.SetImageChannels{
		FileID:  1,
		Channel: 3,
	}))

	stats := log.waitForCount(t, message.EventRegionStatsData, 2)
	data := decodePayload[message.RegionStatsData](t, stats[len(stats)-1])
	assert.Equal(t, int32(3), data.Channel)
	assert.Equal(t, float64(64*64), data.Statistics["NumPixels"])
}

func TestDispatch_SetCursorStreamsSpatialProfiles(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetSpatialRequirements, 11, message.SetSpatialRequirements{
		FileID:   1,
		RegionID: message.RegionIDImage,
		Profiles: []message.SpatialProfileSpec{{Coordinate: "x"}, {Coordinate: "y"}},
	}))
	log.waitFor(t, message.EventSpatialProfileData)

	d.Dispatch(context.Background(), message.MustFrame(message.EventSetCursor, 12, message.SetCursor{
		FileID: 1, X: 10, Y: 20,
	}))

	frames := log.waitForCount(t, message.EventSpatialProfileData, 2)
	data := decodePayload[message.SpatialProfileData](t, frames[len(frames)-1])
	assert.Equal(t, float64(10), data.X)
	assert.Equal(t, float64(20), data.Y)
	require.Len(t, data.Profiles, 2)
	assert.Len(t, data.Profiles[0].Values, 64)
}

func TestDispatch_OpenFileEmitsInitialHistogram(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	h := decodePayload[message.RegionHistogramData](t, log.waitFor(t, message.EventRegionHistogramData))
	assert.Equal(t, int32(1), h.FileID)
	assert.Equal(t, message.RegionIDImage, h.RegionID)
	assert.Equal(t, 1.0, h.Progress)
	assert.NotEmpty(t, h.Bins)
}

func TestDispatch_RegionImportExportRoundTrip(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventImportRegion, 13, message.ImportRegion{
		GroupID: 1,
		Contents: []string{
			"rectangle pixel 16 16 8 8 rot=30",
			"line pixel 2 2 40 40",
		},
	}))
	imp := decodePayload[message.ImportRegionAck](t, log.waitFor(t, message.EventImportRegionAck))
	require.True(t, imp.Success, imp.Message)
	require.Len(t, imp.Regions, 2)

	ids := make([]int32, 0, 2)
	for id := range imp.Regions {
		ids = append(ids, id)
	}
	d.Dispatch(context.Background(), message.MustFrame(message.EventExportRegion, 14, message.ExportRegion{
		FileID:    1,
		CoordType: "pixel",
		RegionIDs: ids,
	}))
	exp := decodePayload[message.ExportRegionAck](t, log.waitFor(t, message.EventExportRegionAck))
	require.True(t, exp.Success, exp.Message)
	assert.Len(t, exp.Contents, 2)
}

func TestDispatch_RegionImportRejectsMixedCoordinates(t *testing.T) {
	d, log := newTestDispatcher(t, session.SyntheticOpener(dispatchShape()))
	openTestFile(t, d, log, 1, "cube_A_00512_z00064.image")

	d.Dispatch(context.Background(), message.MustFrame(message.EventImportRegion, 15, message.ImportRegion{
		GroupID: 1,
		Contents: []string{
			"rectangle pixel 16 16 8 8",
			"point world 120.5 -30.2",
		},
	}))
	imp := decodePayload[message.ImportRegionAck](t, log.waitFor(t, message.EventImportRegionAck))
	require.False(t, imp.Success)
	assert.Contains(t, imp.Message, "mixed coordinate systems")
}
