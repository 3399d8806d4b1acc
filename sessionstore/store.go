// Package sessionstore persists session snapshots so a client can resume
// its open files and regions after a disconnect. The durable backend is a
// NATS JetStream KV bucket keyed by session id; Memory serves tests and
// single-process deployments.
package sessionstore

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/cubestream/errors"
	"github.com/c360/cubestream/natsclient"
	"github.com/c360/cubestream/session"
)

// Bucket is the KV bucket holding session snapshots.
const Bucket = "cubestream_sessions"

// Store persists snapshots in NATS JetStream KV.
type Store struct {
	bucket  jetstream.KeyValue
	kvStore *natsclient.KVStore
}

// NewStore creates the snapshot bucket if needed and returns a store
// backed by it.
func NewStore(client *natsclient.Client) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(nil, "sessionstore", "NewStore", "nats client cannot be nil")
	}

	ctx := context.Background()
	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      Bucket,
		Description: "Session snapshots for resume after disconnect",
		History:     3,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "sessionstore", "NewStore", "create KV bucket")
	}

	return &Store{
		bucket:  bucket,
		kvStore: client.NewKVStore(bucket),
	}, nil
}

// Save writes the snapshot under its session id, replacing any previous
// snapshot for that session.
func (s *Store) Save(ctx context.Context, snap session.Snapshot) error {
	if snap.SessionID == "" {
		return errors.WrapInvalid(nil, "sessionstore", "Save", "session id cannot be empty")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.WrapFatal(err, "sessionstore", "Save", "marshal snapshot")
	}
	if _, err := s.kvStore.Put(ctx, snap.SessionID, data); err != nil {
		return errors.WrapTransient(err, "sessionstore", "Save", "put to KV")
	}
	return nil
}

// Load retrieves the snapshot for a session id. A missing snapshot is
// errors.ErrSnapshotNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (session.Snapshot, error) {
	if sessionID == "" {
		return session.Snapshot{}, errors.WrapInvalid(nil,
			"sessionstore", "Load", "session id cannot be empty")
	}

	entry, err := s.kvStore.Get(ctx, sessionID)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return session.Snapshot{}, errors.ErrSnapshotNotFound
		}
		return session.Snapshot{}, errors.WrapTransient(err, "sessionstore", "Load", "get from KV")
	}

	var snap session.Snapshot
	if err := json.Unmarshal(entry.Value, &snap); err != nil {
		return session.Snapshot{}, errors.WrapFatal(err, "sessionstore", "Load", "unmarshal snapshot")
	}
	return snap, nil
}

// Delete discards a session's snapshot. Deleting a missing snapshot is a
// no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.WrapInvalid(nil, "sessionstore", "Delete", "session id cannot be empty")
	}

	if err := s.kvStore.Delete(ctx, sessionID); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil
		}
		return errors.WrapTransient(err, "sessionstore", "Delete", "delete from KV")
	}
	return nil
}

// List returns the session ids with stored snapshots.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "sessionstore", "List", "list KV keys")
	}
	return keys, nil
}
