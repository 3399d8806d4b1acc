package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/c360/cubestream/animation"
	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/jobs"
	"github.com/c360/cubestream/message"
	"github.com/c360/cubestream/metric"
	"github.com/c360/cubestream/session"
	"github.com/c360/cubestream/streammux"
)

// SnapshotStore persists session snapshots across disconnects.
type SnapshotStore interface {
	Save(ctx context.Context, snap session.Snapshot) error
	Load(ctx context.Context, sessionID string) (session.Snapshot, error)
}

// Deps are the collaborators a Dispatcher is built from. Registry and
// Mux are required; the rest may be nil.
type Deps struct {
	Registry   *session.Registry
	Store      SnapshotStore
	Jobs       *jobs.Manager
	Animations *animation.Controller
	Mux        *streammux.Mux
	Opener     session.SourceOpener
	Logger     *slog.Logger
	Metrics    *metric.Metrics
}

// handlerFunc processes one decoded frame.
type handlerFunc func(ctx context.Context, frame message.Frame) error

// Dispatcher routes one connection's frames. Dispatch is called
// sequentially from the read loop; the session it binds on registration
// is released by Shutdown.
type Dispatcher struct {
	logger   *slog.Logger
	metrics  *metric.Metrics
	registry *session.Registry
	store    SnapshotStore
	jobs     *jobs.Manager
	anims    *animation.Controller
	mux      *streammux.Mux
	opener   session.SourceOpener

	handlers map[message.EventType]handlerFunc

	mu       sync.Mutex
	sess     *session.Session
	previews map[int32]message.PvRequest
	catalogs map[int32]*catalogTable
}

// New creates a dispatcher for one connection.
func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := &Dispatcher{
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		registry: deps.Registry,
		store:    deps.Store,
		jobs:     deps.Jobs,
		anims:    deps.Animations,
		mux:      deps.Mux,
		opener:   deps.Opener,
		previews: make(map[int32]message.PvRequest),
		catalogs: make(map[int32]*catalogTable),
	}
	d.handlers = map[message.EventType]handlerFunc{
		message.EventRegisterViewer:    d.handleRegisterViewer,
		message.EventResumeSession:     d.handleResumeSession,
		message.EventFileListRequest:   d.handleFileList,
		message.EventFileInfoRequest:   d.handleFileInfo,
		message.EventOpenFile:          d.handleOpenFile,
		message.EventCloseFile:         d.handleCloseFile,
		message.EventSaveFile:          d.handleSaveFile,
		message.EventConcatStokesFiles: d.handleConcatStokesFiles,

		message.EventSetImageChannels: d.handleSetImageChannels,
		message.EventSetCursor:        d.handleSetCursor,
		message.EventAddRequiredTiles: d.handleAddRequiredTiles,

		message.EventSetRegion:             d.handleSetRegion,
		message.EventRemoveRegion:          d.handleRemoveRegion,
		message.EventRegionListRequest:     d.handleRegionList,
		message.EventRegionFileInfoRequest: d.handleRegionFileInfo,
		message.EventImportRegion:          d.handleImportRegion,
		message.EventExportRegion:          d.handleExportRegion,

		message.EventSetHistogramRequirements:   d.handleSetHistogramRequirements,
		message.EventSetSpatialRequirements:     d.handleSetSpatialRequirements,
		message.EventSetSpectralRequirements:    d.handleSetSpectralRequirements,
		message.EventSetStatsRequirements:       d.handleSetStatsRequirements,
		message.EventSetContourParameters:       d.handleSetContourParameters,
		message.EventSetVectorOverlayParameters: d.handleSetVectorOverlayParameters,

		message.EventStartAnimation:       d.handleStartAnimation,
		message.EventStopAnimation:        d.handleStopAnimation,
		message.EventAnimationFlowControl: d.handleAnimationFlowControl,

		message.EventMomentRequest:  d.handleMomentRequest,
		message.EventStopMomentCalc: d.handleStopMomentCalc,
		message.EventPvRequest:      d.handlePvRequest,
		message.EventStopPvCalc:     d.handleStopPvCalc,
		message.EventClosePvPreview: d.handleClosePvPreview,
		message.EventFittingRequest: d.handleFittingRequest,

		message.EventCatalogListRequest:      d.handleCatalogList,
		message.EventCatalogFileInfoRequest:  d.handleCatalogFileInfo,
		message.EventOpenCatalogFile:         d.handleOpenCatalogFile,
		message.EventCloseCatalogFile:        d.handleCloseCatalogFile,
		message.EventSetCatalogFilterRequest: d.handleSetCatalogFilter,
	}
	return d
}

// Dispatch routes one frame. It never blocks on computation; long jobs
// are handed off and stream their results asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, frame message.Frame) {
	start := time.Now()
	if d.metrics != nil {
		d.metrics.RecordFrameReceived(frame.EventType.String())
	}

	handler, ok := d.handlers[frame.EventType]
	if !ok {
		d.pushError("warning", "Unknown message type "+frame.EventType.String(), 0, 0)
		return
	}
	if d.session() == nil && frame.EventType != message.EventRegisterViewer {
		d.pushError("error", "Session not registered", 0, 0)
		return
	}

	if err := handler(ctx, frame); err != nil {
		if d.metrics != nil {
			d.metrics.RecordError("dispatch", frame.EventType.String())
		}
		d.logger.Warn("handler failed",
			"event_type", frame.EventType.String(),
			"request_id", frame.RequestID, "error", err)
	}
	if d.metrics != nil {
		d.metrics.RecordRequestDuration(frame.EventType.String(), time.Since(start))
	}
}

// Shutdown tears the connection's session down: jobs and animations are
// cancelled, the session state is snapshotted for resume, and the
// session leaves the registry.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	sess := d.session()
	if sess == nil {
		return
	}
	if d.jobs != nil {
		d.jobs.CancelAll()
	}
	if d.anims != nil {
		d.anims.StopAll()
	}
	if d.store != nil {
		if err := d.store.Save(ctx, sess.Snapshot()); err != nil {
			d.logger.Warn("session snapshot failed",
				"session_id", sess.ID(), "error", err)
		}
	}
	d.registry.Remove(sess.ID())

	d.mu.Lock()
	d.sess = nil
	d.mu.Unlock()
}

func (d *Dispatcher) session() *session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

func (d *Dispatcher) bindSession(sess *session.Session) {
	d.mu.Lock()
	d.sess = sess
	d.mu.Unlock()
}

// sendControl queues an ack or terminal response.
func (d *Dispatcher) sendControl(et message.EventType, requestID uint32, payload any) {
	if err := d.mux.EnqueueControl(message.MustFrame(et, requestID, payload)); err != nil {
		d.logger.Warn("control enqueue failed", "event_type", et.String(), "error", err)
	}
}

// sendData queues a bulk data message.
func (d *Dispatcher) sendData(et message.EventType, payload any) {
	if err := d.mux.EnqueueData(message.MustFrame(et, 0, payload)); err != nil {
		d.logger.Warn("data enqueue failed", "event_type", et.String(), "error", err)
	}
}

// sendProgress queues a coalescable progress report.
func (d *Dispatcher) sendProgress(et message.EventType, payload any) {
	if err := d.mux.EnqueueProgress(message.MustFrame(et, 0, payload)); err != nil {
		d.logger.Warn("progress enqueue failed", "event_type", et.String(), "error", err)
	}
}

// flushProgressFor drops queued progress reports carrying fileID. Called
// ahead of a terminal cancel response: control frames outrank progress on
// the wire, so a report left queued behind a writer backlog would
// otherwise trail the response out.
func (d *Dispatcher) flushProgressFor(fileID int32) {
	d.mux.FlushProgress(func(frame message.Frame) bool {
		var p struct {
			FileID int32 `json:"file_id"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return false
		}
		return p.FileID == fileID
	})
}

// pushError emits an out-of-band error stream message.
func (d *Dispatcher) pushError(severity, msg string, fileID, regionID int32) {
	d.sendData(message.EventErrorData, message.ErrorData{
		Severity: severity,
		Message:  msg,
		FileID:   fileID,
		RegionID: regionID,
	})
}

// failAck converts an error into the common ack failure shape. The
// session layer builds validation errors with client-facing text, so
// Error() is the message to surface.
func failAck(err error) message.Ack {
	return message.Ack{Success: false, Message: err.Error()}
}

func itoa(v int32) string {
	return strconv.Itoa(int(v))
}

// decode unmarshals a request payload, reporting a failed classification
// on malformed input.
func decode(frame message.Frame, v any) error {
	if err := frame.Into(v); err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "decode", frame.EventType.String())
	}
	return nil
}
