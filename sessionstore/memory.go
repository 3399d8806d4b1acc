package sessionstore

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/session"
)

// Memory is an in-process snapshot store. Snapshots survive reconnects
// within one server process but not restarts.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]session.Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]session.Snapshot)}
}

// Save stores the snapshot under its session id.
func (m *Memory) Save(_ context.Context, snap session.Snapshot) error {
	if snap.SessionID == "" {
		return errors.WrapInvalid(nil, "sessionstore", "Save", "session id cannot be empty")
	}
	m.mu.Lock()
	m.snaps[snap.SessionID] = snap
	m.mu.Unlock()
	return nil
}

// Load retrieves a stored snapshot.
func (m *Memory) Load(_ context.Context, sessionID string) (session.Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.snaps[sessionID]
	m.mu.RUnlock()
	if !ok {
		return session.Snapshot{}, errors.ErrSnapshotNotFound
	}
	return snap, nil
}

// Delete discards a stored snapshot. Missing snapshots are a no-op.
func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.snaps, sessionID)
	m.mu.Unlock()
	return nil
}

// List returns stored session ids in sorted order.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.snaps))
	for id := range m.snaps {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
