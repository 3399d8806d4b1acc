package animation

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/metric"
)

// FrameSender delivers one playback frame: the channel switch, its tile
// stream, and any per-frame data. It runs on the playback goroutine.
type FrameSender func(ctx context.Context, animationID int32, frame message.AnimationFrame) error

// Config tunes playback defaults.
type Config struct {
	// WindowSize is the number of unacknowledged frames the server may
	// have in flight.
	WindowSize int
	// DefaultFrameRate is used when a start request names no rate.
	DefaultFrameRate float64
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 2
	}
	if c.DefaultFrameRate <= 0 {
		c.DefaultFrameRate = 5
	}
	return c
}

// Controller runs the animations of one session.
type Controller struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	nextID atomic.Int32

	mu     sync.Mutex
	active map[int32]*playback // keyed by file id
}

// playback is one running animation.
type playback struct {
	id      int32
	fileID  int32
	spec    message.StartAnimation
	credits chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController creates an animation controller. The logger and metrics
// may be nil.
func NewController(cfg Config, logger *slog.Logger, metrics *metric.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: metrics,
		active:  make(map[int32]*playback),
	}
}

// Start begins playback for a file. Only one animation per file may be
// active; a second start is rejected with ErrAnimationActive. The
// returned id tags every frame and acknowledgment of this run.
func (c *Controller) Start(ctx context.Context, req message.StartAnimation, send FrameSender) (int32, error) {
	if err := validateBounds(req); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if _, ok := c.active[req.FileID]; ok {
		c.mu.Unlock()
		return 0, errors.WrapInvalid(errors.ErrAnimationActive,
			"Controller", "Start", "file id "+strconv.Itoa(int(req.FileID)))
	}

	id := c.nextID.Add(1)
	playCtx, cancel := context.WithCancel(ctx)
	p := &playback{
		id:      id,
		fileID:  req.FileID,
		spec:    req,
		credits: make(chan struct{}, c.cfg.WindowSize),
		ctx:     playCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	// The full window is available up front.
	for i := 0; i < c.cfg.WindowSize; i++ {
		p.credits <- struct{}{}
	}
	c.active[req.FileID] = p
	c.mu.Unlock()

	go c.run(p, send)
	c.logger.Info("animation started",
		"file_id", req.FileID, "animation_id", id,
		"first", req.FirstFrame.Channel, "last", req.LastFrame.Channel)
	return id, nil
}

// Ack returns one flow-control credit for a delivered frame. An ack for
// an animation that already ended reports ErrAnimationNotFound; callers
// on the dispatch path treat that as a no-op.
func (c *Controller) Ack(fc message.AnimationFlowControl) error {
	c.mu.Lock()
	p, ok := c.active[fc.FileID]
	c.mu.Unlock()
	if !ok || p.id != fc.AnimationID {
		return errors.ErrAnimationNotFound
	}

	select {
	case p.credits <- struct{}{}:
	default:
		// More acks than frames in flight; the window is already full.
	}
	if c.metrics != nil {
		c.metrics.RecordAnimationCredits(strconv.Itoa(int(p.id)), len(p.credits))
	}
	return nil
}

// Stop ends playback for a file at the client's end frame. Frames
// already handed to the outbound path may still arrive; no frame advance
// follows.
func (c *Controller) Stop(fileID int32, end message.AnimationFrame) error {
	c.mu.Lock()
	p, ok := c.active[fileID]
	if ok {
		delete(c.active, fileID)
	}
	c.mu.Unlock()
	if !ok {
		return errors.ErrAnimationNotFound
	}

	p.cancel()
	<-p.done
	c.logger.Info("animation stopped",
		"file_id", fileID, "animation_id", p.id, "end_channel", end.Channel)
	return nil
}

// StopForFile silently aborts a file's animation, for close-file
// cascades. Aborting a file with no animation is a no-op.
func (c *Controller) StopForFile(fileID int32) {
	c.mu.Lock()
	p, ok := c.active[fileID]
	if ok {
		delete(c.active, fileID)
	}
	c.mu.Unlock()
	if ok {
		p.cancel()
		<-p.done
	}
}

// StopAll aborts every running animation, for session teardown.
func (c *Controller) StopAll() {
	c.mu.Lock()
	all := make([]*playback, 0, len(c.active))
	for fileID, p := range c.active {
		all = append(all, p)
		delete(c.active, fileID)
	}
	c.mu.Unlock()

	for _, p := range all {
		p.cancel()
		<-p.done
	}
}

// Active reports whether a file has a running animation.
func (c *Controller) Active(fileID int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[fileID]
	return ok
}

// run advances frames until the bounds are exhausted, the context is
// cancelled, or the sender fails. Every frame costs one credit and one
// limiter slot.
func (c *Controller) run(p *playback, send FrameSender) {
	defer close(p.done)
	defer c.remove(p)

	frameRate := p.spec.FrameRate
	if frameRate <= 0 {
		frameRate = c.cfg.DefaultFrameRate
	}
	limiter := rate.NewLimiter(rate.Limit(frameRate), 1)

	frame := p.spec.StartFrame
	dir := int32(1)
	if p.spec.Reverse {
		dir = -1
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.credits:
		}
		if err := limiter.Wait(p.ctx); err != nil {
			return
		}
		if p.ctx.Err() != nil {
			return
		}

		if err := send(p.ctx, p.id, frame); err != nil {
			if !errors.IsCancelled(err) {
				c.logger.Warn("animation frame delivery failed",
					"file_id", p.fileID, "animation_id", p.id, "error", err)
			}
			return
		}
		if c.metrics != nil {
			c.metrics.RecordAnimationCredits(strconv.Itoa(int(p.id)), len(p.credits))
		}

		next, nextDir, ok := advance(frame, dir, p.spec)
		if !ok {
			return
		}
		frame, dir = next, nextDir
	}
}

func (c *Controller) remove(p *playback) {
	c.mu.Lock()
	if c.active[p.fileID] == p {
		delete(c.active, p.fileID)
	}
	c.mu.Unlock()
}

// advance computes the next frame. Non-looping playback ends at the
// bounds; looping playback wraps, or bounces when reverse is set.
func advance(frame message.AnimationFrame, dir int32, spec message.StartAnimation) (message.AnimationFrame, int32, bool) {
	delta := spec.DeltaFrame.Channel
	if delta == 0 {
		delta = 1
	}

	next := frame
	next.Channel += dir * delta

	if next.Channel > spec.LastFrame.Channel || next.Channel < spec.FirstFrame.Channel {
		if !spec.Looping {
			return frame, dir, false
		}
		if spec.Reverse {
			// Bounce off the boundary.
			dir = -dir
			next.Channel = frame.Channel + dir*delta
			if next.Channel > spec.LastFrame.Channel || next.Channel < spec.FirstFrame.Channel {
				return frame, dir, false
			}
		} else if dir > 0 {
			next.Channel = spec.FirstFrame.Channel
		} else {
			next.Channel = spec.LastFrame.Channel
		}
	}
	return next, dir, true
}

func validateBounds(req message.StartAnimation) error {
	if req.LastFrame.Channel < req.FirstFrame.Channel {
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Controller", "Start", "last frame before first frame")
	}
	if req.StartFrame.Channel < req.FirstFrame.Channel ||
		req.StartFrame.Channel > req.LastFrame.Channel {
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Controller", "Start", "start frame outside bounds")
	}
	return nil
}

// WaitStopped blocks until a file's animation goroutine has exited, or
// the timeout elapses. Intended for tests and shutdown paths.
func (c *Controller) WaitStopped(fileID int32, timeout time.Duration) bool {
	c.mu.Lock()
	p, ok := c.active[fileID]
	c.mu.Unlock()
	if !ok {
		return true
	}
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
