package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWork struct {
	id   int
	fail bool
}

func noopProcessor(_ context.Context, _ testWork) error { return nil }

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(0, 0, noopProcessor)
	assert.Equal(t, 10, pool.workers)
	assert.Equal(t, 1000, pool.queueSize)

	pool = NewPool(5, 100, noopProcessor)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[testWork](5, 100, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(2, 10, noopProcessor)

	assert.ErrorIs(t, pool.Submit(testWork{id: 1}), ErrPoolNotStarted)

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Submit(testWork{id: 1}))

	require.NoError(t, pool.Stop(2*time.Second))
	require.NoError(t, pool.Stop(2*time.Second), "second stop is a no-op")
	assert.ErrorIs(t, pool.Submit(testWork{id: 2}), ErrPoolStopped)
}

func TestPool_ProcessesAllSubmitted(t *testing.T) {
	var processed int64
	pool := NewPool(4, 64, func(_ context.Context, _ testWork) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(50), atomic.LoadInt64(&processed))

	stats := pool.Stats()
	assert.Equal(t, int64(50), stats.Submitted)
	assert.Equal(t, int64(50), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPool_QueueFullDropsWork(t *testing.T) {
	entered := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		once.Do(func() { close(entered) })
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// First item occupies the worker, second fills the queue.
	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-entered
	require.NoError(t, pool.Submit(testWork{id: 2}))

	err := pool.Submit(testWork{id: 3})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(block)
	require.NoError(t, pool.Stop(2*time.Second))
}

func TestPool_CountsFailures(t *testing.T) {
	pool := NewPool(2, 16, func(_ context.Context, w testWork) error {
		if w.fail {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(testWork{id: i, fail: i%2 == 0}))
	}
	require.NoError(t, pool.Stop(2*time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(5), stats.Failed)
}

func TestPool_ContextCancellationStopsWorkers(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	pool := NewPool(1, 4, func(ctx context.Context, _ testWork) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(testWork{id: 1}))

	<-started
	cancel()

	require.NoError(t, pool.Stop(2*time.Second))
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed int64
	pool := NewPool(4, 1024, func(_ context.Context, _ testWork) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	var wg sync.WaitGroup
	var submitted int64
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if pool.Submit(testWork{id: i}) == nil {
					atomic.AddInt64(&submitted, 1)
				}
			}
		}()
	}
	wg.Wait()
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, atomic.LoadInt64(&submitted), atomic.LoadInt64(&processed))
}
