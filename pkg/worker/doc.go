// Package worker provides the bounded worker pool that runs cube
// computation jobs: a fixed set of goroutines draining a bounded queue,
// with non-blocking submit and backpressure.
//
// The pool is generic over its work type, so job payloads need no type
// assertions:
//
//	pool := worker.NewPool(4, 256, func(ctx context.Context, job *jobs.Job) error {
//	    return job.Run(ctx)
//	})
//	if err := pool.Start(ctx); err != nil { ... }
//	defer pool.Stop(5 * time.Second)
//
// Submit never blocks: when the queue is full it returns ErrQueueFull
// and the item is dropped, which surfaces overload to the caller
// instead of stalling the websocket read loop.
//
// Statistics are always tracked; Prometheus metrics are opt-in via
// WithMetricsRegistry and include queue depth, utilization, and a
// processing-duration histogram labelled by outcome.
package worker
