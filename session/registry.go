package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/metric"
)

// Registry tracks the live sessions of a server instance.
type Registry struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	opener  SourceOpener

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a session registry. The logger and metrics may be
// nil.
func NewRegistry(opener SourceOpener, logger *slog.Logger, metrics *metric.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		metrics:  metrics,
		opener:   opener,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session. An empty id allocates a fresh UUID; a
// non-empty id that is already live is rejected.
func (r *Registry) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, errors.WrapInvalid(errors.ErrAlreadyRegistered,
			"Registry", "Create", "session id "+id)
	}

	sess := New(id, r.opener, r.logger)
	r.sessions[id] = sess
	if r.metrics != nil {
		r.metrics.RecordSessionOpened()
	}
	r.logger.Info("session created", "session_id", id)
	return sess, nil
}

// Get returns a live session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return sess, nil
}

// Remove closes a session and drops it from the registry. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = sess.Close()
	if r.metrics != nil {
		r.metrics.RecordSessionClosed()
	}
	r.logger.Info("session removed", "session_id", id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every live session, typically at server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
		if r.metrics != nil {
			r.metrics.RecordSessionClosed()
		}
	}
}
