package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/metric"
	"github.com/c360/cubestream/pkg/worker"
)

// Kind names a job family. Keys of different kinds never collide, so a
// moment job and a PV job on the same file run independently.
type Kind string

// Job kinds.
const (
	KindCubeHistogram   Kind = "cube_histogram"
	KindMoment          Kind = "moment"
	KindPv              Kind = "pv"
	KindPvPreview       Kind = "pv_preview"
	KindSpectralProfile Kind = "spectral_profile"
	KindFitting         Kind = "fitting"
)

// Key identifies at most one running job. ID is a file id for most
// kinds, a preview id for KindPvPreview. Region scopes the
// requirement-driven kinds so two regions of one file compute
// independently; whole-file kinds leave it zero.
type Key struct {
	ID     int32
	Region int32
	Kind   Kind
}

// Outcome is a job's terminal state.
type Outcome int

// Terminal outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

// String returns the outcome name, also used as the metric label.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunFunc is the body of a job. It must honor ctx cancellation promptly
// and return ctx's error when cancelled.
type RunFunc func(ctx context.Context) error

// CompleteFunc observes a job's terminal state. It runs after the job's
// generation check, so it never fires for a superseded job's output path
// with a stale view of the world; it receives the outcome exactly once.
type CompleteFunc func(outcome Outcome, err error)

// Job is a handle to one submitted computation.
type Job struct {
	key    Key
	gen    uint64
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	mgr    *Manager
}

// Key returns the job's key.
func (j *Job) Key() Key { return j.key }

// Generation returns the token captured at submission.
func (j *Job) Generation() uint64 { return j.gen }

// Context is the job's cancellation context. RunFuncs receive it; other
// goroutines may watch it.
func (j *Job) Context() context.Context { return j.ctx }

// Done is closed once the job is terminal and its complete callback has
// returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Current reports whether this job may still emit output: its token is
// the latest issued for the key and it has not been cancelled.
func (j *Job) Current() bool {
	if j.ctx.Err() != nil {
		return false
	}
	return j.mgr.generation(j.key) == j.gen
}

// task pairs a job with its body for the worker pool.
type task struct {
	job *Job
	run RunFunc
	on  CompleteFunc
}

// Manager owns the worker pool and the per-key generation counters.
type Manager struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	pool    *worker.Pool[*task]

	mu      sync.Mutex
	baseCtx context.Context
	gens    map[Key]uint64
	running map[Key]*Job
	started bool
}

// NewManager creates a job manager backed by a worker pool of the given
// size. The logger, metrics, and registry may be nil.
func NewManager(workers, queueSize int, logger *slog.Logger, metrics *metric.Metrics, registry *metric.MetricsRegistry) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:  logger,
		metrics: metrics,
		gens:    make(map[Key]uint64),
		running: make(map[Key]*Job),
	}

	var opts []worker.Option[*task]
	if registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[*task](registry, "cubestream_jobs"))
	}
	m.pool = worker.NewPool(workers, queueSize, m.process, opts...)
	return m
}

// Start launches the worker pool. Jobs submitted before Start are
// rejected.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	m.started = true
	m.baseCtx = ctx
	m.mu.Unlock()
	return m.pool.Start(ctx)
}

// Stop cancels every running job and drains the pool.
func (m *Manager) Stop(timeout time.Duration) error {
	m.CancelAll()
	return m.pool.Stop(timeout)
}

// Submit starts a job for key, cancelling any job already running under
// the same key first. The superseded job's terminal state (including its
// complete callback) lands before the new job is registered, so callers
// observe cancel-then-start in that order on the wire. The returned
// handle carries the new generation token. The complete callback may be
// nil; callbacks must not Submit under their own key.
func (m *Manager) Submit(key Key, run RunFunc, complete CompleteFunc) (*Job, error) {
	for {
		m.mu.Lock()
		if !m.started {
			m.mu.Unlock()
			return nil, errors.ErrNotStarted
		}
		prev, ok := m.running[key]
		if !ok {
			break
		}
		prev.cancel(errors.ErrJobSuperseded)
		m.mu.Unlock()
		<-prev.done
	}
	m.gens[key]++
	ctx, cancel := context.WithCancelCause(m.baseCtx)
	job := &Job{
		key:    key,
		gen:    m.gens[key],
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		mgr:    m,
	}
	m.running[key] = job
	m.mu.Unlock()

	if err := m.pool.Submit(&task{job: job, run: run, on: complete}); err != nil {
		m.finish(job)
		cancel(errors.ErrQueueFull)
		close(job.done)
		return nil, errors.WrapTransient(errors.ErrQueueFull,
			"Manager", "Submit", string(key.Kind))
	}

	if m.metrics != nil {
		m.metrics.RecordJobStarted(string(key.Kind))
	}
	m.logger.Debug("job submitted", "kind", key.Kind, "id", key.ID, "generation", job.gen)
	return job, nil
}

// Cancel stops the running job for key. Cancelling a key with no running
// job returns ErrJobNotFound; callers treat that as a no-op when the job
// may have already finished.
func (m *Manager) Cancel(key Key) error {
	m.mu.Lock()
	job, ok := m.running[key]
	m.mu.Unlock()
	if !ok {
		return errors.ErrJobNotFound
	}
	job.cancel(errors.ErrJobCancelled)
	return nil
}

// CancelAllForID stops every running job whose key id matches, across all
// kinds. Used by close-file to tear down a file's computations.
func (m *Manager) CancelAllForID(id int32) {
	m.mu.Lock()
	for key, job := range m.running {
		if key.ID == id {
			job.cancel(errors.ErrJobCancelled)
		}
	}
	m.mu.Unlock()
}

// CancelAll stops every running job.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	for _, job := range m.running {
		job.cancel(errors.ErrJobCancelled)
	}
	m.mu.Unlock()
}

// Running reports whether a job is currently running for key.
func (m *Manager) Running(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[key]
	return ok
}

func (m *Manager) generation(key Key) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[key]
}

// finish drops the job from the running table if it is still the
// registered occupant of its key.
func (m *Manager) finish(job *Job) {
	m.mu.Lock()
	if m.running[job.key] == job {
		delete(m.running, job.key)
	}
	m.mu.Unlock()
}

// process executes one job on a pool worker. The pool's context is
// ignored in favor of the job's own cancellable context.
func (m *Manager) process(_ context.Context, t *task) error {
	job := t.job
	start := time.Now()

	err := t.run(job.ctx)
	if err == nil && job.ctx.Err() != nil {
		// The body returned cleanly but the job was cancelled under it;
		// the cancellation wins so no output is reported as fresh.
		err = context.Cause(job.ctx)
	}

	job.cancel(nil)

	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.IsCancelled(err):
		outcome = OutcomeCancelled
	default:
		outcome = OutcomeFailed
	}

	if m.metrics != nil {
		m.metrics.RecordJobFinished(string(job.key.Kind), outcome.String(), time.Since(start))
	}
	m.logger.Debug("job finished",
		"kind", job.key.Kind, "id", job.key.ID,
		"generation", job.gen, "outcome", outcome.String(),
		"duration", time.Since(start))

	// The complete callback runs before the key is released so that a
	// Submit waiting to supersede this job sees its terminal output
	// (cancel acks included) emitted first.
	if t.on != nil {
		t.on(outcome, err)
	}
	m.finish(job)
	close(job.done)
	if outcome == OutcomeFailed {
		return err
	}
	return nil
}
