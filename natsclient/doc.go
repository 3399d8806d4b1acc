// Package natsclient manages the NATS connection that backs session
// snapshot persistence: connect/close lifecycle, a circuit breaker over
// connection failures, and JetStream key-value bucket access.
//
// A Client wraps one nats.Conn. Connect dials the server and
// WaitForConnection blocks until the connection is ready or the context
// expires:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("cubestream"),
//	    natsclient.WithMaxReconnects(-1),
//	)
//	if err := client.Connect(ctx); err != nil { ... }
//	if err := client.WaitForConnection(ctx); err != nil { ... }
//	defer client.Close(ctx)
//
// Consecutive connection failures open a circuit breaker; while open,
// Connect fails fast with ErrCircuitOpen and the backoff grows until a
// successful connection resets it. OnHealthChange registers a callback
// for healthy/unhealthy transitions, fed by the NATS disconnect and
// reconnect handlers and an optional polling goroutine.
//
// Session snapshots live in a JetStream KV bucket. CreateKeyValueBucket
// is idempotent, and NewKVStore wraps a bucket with per-operation
// timeouts and typed errors:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "session-snapshots",
//	})
//	kv := client.NewKVStore(bucket)
//	rev, err := kv.Put(ctx, sessionID, payload)
//
// Writes are last-writer-wins; the bucket's history depth covers
// recovering an overwritten snapshot. A Get or Delete on a missing key
// returns ErrKVKeyNotFound, which IsKVNotFoundError also recognizes in
// raw NATS errors.
//
// NewTestClient starts a disposable NATS server in a container for
// integration tests (testcontainers; requires Docker).
package natsclient
