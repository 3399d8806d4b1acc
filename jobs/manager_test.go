package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cubestream/errors"
)

func newStartedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(4, 16, nil, nil, nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(2 * time.Second) })
	return m
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish in time")
	}
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	m := newStartedManager(t)

	var outcome Outcome
	outcomeSet := make(chan struct{})
	job, err := m.Submit(Key{ID: 1, Kind: KindMoment},
		func(ctx context.Context) error { return nil },
		func(o Outcome, err error) {
			outcome = o
			close(outcomeSet)
		})
	require.NoError(t, err)

	waitDone(t, job)
	select {
	case <-outcomeSet:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback did not fire")
	}
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.False(t, m.Running(job.Key()))
}

func TestSubmit_BeforeStartRejected(t *testing.T) {
	m := NewManager(1, 1, nil, nil, nil)
	_, err := m.Submit(Key{ID: 1, Kind: KindPv},
		func(ctx context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestCancel(t *testing.T) {
	m := newStartedManager(t)

	started := make(chan struct{})
	job, err := m.Submit(Key{ID: 1, Kind: KindMoment},
		func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}, nil)
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Cancel(job.Key()))
	waitDone(t, job)

	assert.False(t, job.Current())
	assert.ErrorIs(t, context.Cause(job.Context()), errors.ErrJobCancelled)
}

func TestCancel_NoRunningJob(t *testing.T) {
	m := newStartedManager(t)
	err := m.Cancel(Key{ID: 9, Kind: KindPv})
	assert.ErrorIs(t, err, errors.ErrJobNotFound)
}

func TestSubmit_SupersedesRunningJob(t *testing.T) {
	m := newStartedManager(t)
	key := Key{ID: 1, Kind: KindMoment}

	firstStarted := make(chan struct{})
	first, err := m.Submit(key,
		func(ctx context.Context) error {
			close(firstStarted)
			<-ctx.Done()
			return ctx.Err()
		}, nil)
	require.NoError(t, err)
	<-firstStarted

	second, err := m.Submit(key,
		func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, err)

	waitDone(t, first)
	waitDone(t, second)

	assert.Greater(t, second.Generation(), first.Generation())
	assert.ErrorIs(t, context.Cause(first.Context()), errors.ErrJobSuperseded)
	assert.False(t, first.Current())
}

func TestSubmit_SupersededTerminalLandsBeforeNewJobStarts(t *testing.T) {
	m := newStartedManager(t)
	key := Key{ID: 1, Kind: KindMoment}

	var mu sync.Mutex
	var events []string
	record := func(ev string) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	firstStarted := make(chan struct{})
	first, err := m.Submit(key,
		func(ctx context.Context) error {
			close(firstStarted)
			<-ctx.Done()
			record("first body returned")
			return ctx.Err()
		},
		func(o Outcome, err error) { record("first terminal: " + o.String()) })
	require.NoError(t, err)
	<-firstStarted

	second, err := m.Submit(key,
		func(ctx context.Context) error {
			record("second body started")
			return nil
		},
		func(o Outcome, err error) { record("second terminal: " + o.String()) })
	require.NoError(t, err)

	waitDone(t, first)
	waitDone(t, second)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"first body returned",
		"first terminal: cancelled",
		"second body started",
		"second terminal: success",
	}, events)
}

func TestCurrent_GatesCancelledOutput(t *testing.T) {
	m := newStartedManager(t)
	key := Key{ID: 2, Kind: KindCubeHistogram}

	var emitted atomic.Int64
	step := make(chan struct{})
	started := make(chan struct{})

	job, err := m.Submit(key, func(ctx context.Context) error {
		close(started)
		for range step {
			// Output gate: a cancelled job keeps running its loop but
			// stops emitting.
		}
		return nil
	}, nil)
	require.NoError(t, err)
	<-started

	emit := func() {
		if job.Current() {
			emitted.Add(1)
		}
	}

	emit()
	emit()
	assert.Equal(t, int64(2), emitted.Load())

	require.NoError(t, m.Cancel(key))

	emit()
	close(step)
	waitDone(t, job)
	assert.Equal(t, int64(2), emitted.Load(), "no output after cancel")
}

func TestCancelAllForID(t *testing.T) {
	m := newStartedManager(t)

	mkJob := func(key Key) *Job {
		started := make(chan struct{})
		job, err := m.Submit(key, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}, nil)
		require.NoError(t, err)
		<-started
		return job
	}

	momentA := mkJob(Key{ID: 1, Kind: KindMoment})
	pvA := mkJob(Key{ID: 1, Kind: KindPv})
	momentB := mkJob(Key{ID: 2, Kind: KindMoment})

	m.CancelAllForID(1)
	waitDone(t, momentA)
	waitDone(t, pvA)

	assert.True(t, m.Running(momentB.Key()), "other file's job keeps running")
	require.NoError(t, m.Cancel(momentB.Key()))
	waitDone(t, momentB)
}

func TestCancelledOutcomeIsNotFailure(t *testing.T) {
	m := newStartedManager(t)

	outcomes := make(chan Outcome, 1)
	started := make(chan struct{})
	job, err := m.Submit(Key{ID: 3, Kind: KindPv},
		func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		func(o Outcome, err error) { outcomes <- o })
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Cancel(job.Key()))
	waitDone(t, job)

	select {
	case o := <-outcomes:
		assert.Equal(t, OutcomeCancelled, o)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
	}
}

func TestFailedOutcome(t *testing.T) {
	m := newStartedManager(t)

	outcomes := make(chan Outcome, 1)
	errs := make(chan error, 1)
	job, err := m.Submit(Key{ID: 4, Kind: KindFitting},
		func(ctx context.Context) error {
			return errors.WrapFatal(errors.ErrInvalidData, "test", "run", "boom")
		},
		func(o Outcome, err error) {
			outcomes <- o
			errs <- err
		})
	require.NoError(t, err)
	waitDone(t, job)

	assert.Equal(t, OutcomeFailed, <-outcomes)
	assert.Error(t, <-errs)
}
