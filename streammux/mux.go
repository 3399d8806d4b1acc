package streammux

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/metric"
	"github.com/c360/cubestream/pkg/buffer"
)

// Category selects the outbound queue for a frame.
type Category int

// Outbound categories, in drain priority order.
const (
	CategoryControl Category = iota
	CategoryData
	CategoryProgress
	numCategories
)

// String returns the category name, also used as the metric label.
func (c Category) String() string {
	switch c {
	case CategoryControl:
		return "control"
	case CategoryData:
		return "data"
	case CategoryProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Sink writes one frame to the connection. It is called from the writer
// goroutine only, so implementations need no locking of their own.
type Sink func(frame message.Frame) error

// Config sizes the outbound queues. Zero values take defaults.
type Config struct {
	ControlCapacity  int
	DataCapacity     int
	ProgressCapacity int
}

func (c Config) withDefaults() Config {
	if c.ControlCapacity <= 0 {
		c.ControlCapacity = 256
	}
	if c.DataCapacity <= 0 {
		c.DataCapacity = 1024
	}
	if c.ProgressCapacity <= 0 {
		c.ProgressCapacity = 64
	}
	return c
}

// Mux owns a session's outbound queues and its single writer goroutine.
type Mux struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	sink    Sink
	queues  [numCategories]buffer.Buffer[message.Frame]
	notify  chan struct{}
	stop    chan struct{}
	done    chan struct{}

	syncID atomic.Int32

	mu      sync.Mutex
	started bool
	stopped bool
	failed  bool
}

// New creates a mux writing to sink. The logger and metrics may be nil.
func New(sink Sink, cfg Config, logger *slog.Logger, metrics *metric.Metrics) (*Mux, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	m := &Mux{
		logger:  logger,
		metrics: metrics,
		sink:    sink,
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	var err error
	m.queues[CategoryControl], err = buffer.NewCircularBuffer[message.Frame](
		cfg.ControlCapacity, buffer.WithOverflowPolicy[message.Frame](buffer.Block))
	if err != nil {
		return nil, errors.Wrap(err, "Mux", "New", "create control queue")
	}
	m.queues[CategoryData], err = buffer.NewCircularBuffer[message.Frame](
		cfg.DataCapacity, buffer.WithOverflowPolicy[message.Frame](buffer.Block))
	if err != nil {
		return nil, errors.Wrap(err, "Mux", "New", "create data queue")
	}
	m.queues[CategoryProgress], err = buffer.NewCircularBuffer[message.Frame](
		cfg.ProgressCapacity, buffer.WithOverflowPolicy[message.Frame](buffer.DropOldest))
	if err != nil {
		return nil, errors.Wrap(err, "Mux", "New", "create progress queue")
	}
	return m, nil
}

// Start launches the writer goroutine.
func (m *Mux) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.ErrAlreadyStarted
	}
	m.started = true
	go m.run()
	return nil
}

// Stop drains what it can and stops the writer. It returns once the
// writer has exited or the timeout elapses.
func (m *Mux) Stop(timeout time.Duration) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return errors.ErrNotStarted
	}
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stop)
	select {
	case <-m.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout,
			"Mux", "Stop", "writer drain")
	}
	for _, q := range m.queues {
		_ = q.Close()
	}
	return nil
}

// Enqueue queues a frame in the given category. Control and data writes
// block when their queue is full; progress writes drop the oldest queued
// report instead.
func (m *Mux) Enqueue(cat Category, frame message.Frame) error {
	if cat < 0 || cat >= numCategories {
		return errors.WrapInvalid(errors.ErrInvalidData, "Mux", "Enqueue", "unknown category")
	}
	m.mu.Lock()
	if m.stopped || m.failed {
		m.mu.Unlock()
		return errors.ErrConnectionLost
	}
	m.mu.Unlock()

	if err := m.queues[cat].Write(frame); err != nil {
		return errors.WrapTransient(err, "Mux", "Enqueue", cat.String())
	}
	if m.metrics != nil {
		m.metrics.RecordStreamQueueDepth(cat.String(), m.queues[cat].Size())
	}
	m.wake()
	return nil
}

// EnqueueControl queues an ack or terminal response frame.
func (m *Mux) EnqueueControl(frame message.Frame) error {
	return m.Enqueue(CategoryControl, frame)
}

// EnqueueData queues a bulk data frame.
func (m *Mux) EnqueueData(frame message.Frame) error {
	return m.Enqueue(CategoryData, frame)
}

// EnqueueProgress queues a progress report. Older undelivered reports
// for the session may be dropped to make room.
func (m *Mux) EnqueueProgress(frame message.Frame) error {
	return m.Enqueue(CategoryProgress, frame)
}

// EnqueueTileBatch queues a complete bracketed tile batch: a start sync,
// the tiles, and an end sync carrying the tile count, all under a fresh
// sync id. The sync id is returned for tests and logging.
func (m *Mux) EnqueueTileBatch(fileID, channel, stokes, animationID int32, tiles []message.RasterTileData) (int32, error) {
	syncID := m.syncID.Add(1)

	start := message.MustFrame(message.EventRasterTileSync, 0, message.RasterTileSync{
		FileID:      fileID,
		Channel:     channel,
		Stokes:      stokes,
		SyncID:      syncID,
		AnimationID: animationID,
	})
	if err := m.EnqueueData(start); err != nil {
		return syncID, err
	}

	for _, tile := range tiles {
		tile.FileID = fileID
		tile.Channel = channel
		tile.Stokes = stokes
		tile.AnimationID = animationID
		if err := m.EnqueueData(message.MustFrame(message.EventRasterTileData, 0, tile)); err != nil {
			return syncID, err
		}
		if m.metrics != nil {
			m.metrics.RecordTileSent()
		}
	}

	end := message.MustFrame(message.EventRasterTileSync, 0, message.RasterTileSync{
		FileID:      fileID,
		Channel:     channel,
		Stokes:      stokes,
		SyncID:      syncID,
		AnimationID: animationID,
		TileCount:   int32(len(tiles)),
		EndSync:     true,
	})
	if err := m.EnqueueData(end); err != nil {
		return syncID, err
	}
	return syncID, nil
}

// FlushProgress drops queued progress frames matching match and returns
// how many were dropped; a nil match drops them all. Callers flush before
// enqueueing a terminal cancel response, since control frames outrank
// progress on the wire and a stale report queued behind a writer backlog
// would otherwise follow the response out.
func (m *Mux) FlushProgress(match func(message.Frame) bool) int {
	q := m.queues[CategoryProgress]
	dropped := 0
	var keep []message.Frame
	for {
		frame, ok := q.Read()
		if !ok {
			break
		}
		if match == nil || match(frame) {
			dropped++
			continue
		}
		keep = append(keep, frame)
	}
	for _, frame := range keep {
		if err := q.Write(frame); err != nil {
			break
		}
	}
	if m.metrics != nil {
		m.metrics.RecordStreamQueueDepth(CategoryProgress.String(), q.Size())
	}
	return dropped
}

// Done is closed when the writer goroutine exits, either through Stop or
// a sink failure.
func (m *Mux) Done() <-chan struct{} { return m.done }

// Failed reports whether the writer stopped because the sink failed.
func (m *Mux) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

func (m *Mux) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Mux) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			m.drainAll()
			return
		case <-m.notify:
			if !m.drainAll() {
				return
			}
		}
	}
}

// drainAll empties the queues in priority order. It returns false when
// the sink failed and the writer must exit.
func (m *Mux) drainAll() bool {
	for {
		frame, cat, ok := m.next()
		if !ok {
			return true
		}
		if err := m.sink(frame); err != nil {
			m.mu.Lock()
			m.failed = true
			m.mu.Unlock()
			// Close the queues so producers blocked on a full queue get
			// an error instead of waiting on a writer that is gone.
			// Stop's later close is a no-op.
			for _, q := range m.queues {
				_ = q.Close()
			}
			if m.metrics != nil {
				m.metrics.RecordError("streammux", "write")
			}
			m.logger.Warn("outbound write failed",
				"event_type", frame.EventType.String(), "error", err)
			return false
		}
		if m.metrics != nil {
			m.metrics.RecordFrameSent(frame.EventType.String())
			m.metrics.RecordStreamQueueDepth(cat.String(), m.queues[cat].Size())
		}
	}
}

// next pops the highest-priority pending frame.
func (m *Mux) next() (message.Frame, Category, bool) {
	for cat := CategoryControl; cat < numCategories; cat++ {
		if frame, ok := m.queues[cat].Read(); ok {
			return frame, cat, true
		}
	}
	return message.Frame{}, 0, false
}
