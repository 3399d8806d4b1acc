// Package retry provides exponential backoff with jitter for transient
// failures, used when establishing the NATS connection behind session
// snapshot persistence.
//
// Do runs a function until it succeeds, the attempts run out, or the
// context is cancelled; DoWithResult is the same with a return value.
// Errors wrapped with NonRetryable fail immediately.
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
// Three presets cover the common cases: DefaultConfig (3 attempts,
// 100ms-5s), Quick (10 attempts, 50ms-1s, startup paths), and
// Persistent (30 attempts, 200ms-10s, critical resources).
//
// The package is intentionally minimal. There is no circuit breaker
// (the natsclient carries its own) and no error classification beyond
// the NonRetryable marker; callers decide what to retry.
package retry
