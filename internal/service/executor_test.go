package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/rollcall/internal/domain"
)

func newTestExecutor(h *harness, attempts int) (*JobExecutor, *[]time.Duration) {
	e := NewJobExecutor(h.processor, h.jobs, &ExecutorConfig{
		Workers:     2,
		QueueSize:   4,
		MaxAttempts: attempts,
		RetryDelay:  time.Minute,
	}, nil)

	var mu sync.Mutex
	slept := &[]time.Duration{}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return e, slept
}

func TestRunRetriesWithoutDuplicatingRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)
	id := h.createJob(t, 250)
	h.records.failOn = func(call int) error {
		if call == 2 {
			return errors.New("connection reset")
		}
		return nil
	}
	e, slept := newTestExecutor(h, 3)

	var statusDuringRetry domain.JobStatus
	e.sleep = func(context.Context, time.Duration) error {
		statusDuringRetry = h.load(t, id).Status
		*slept = append(*slept, time.Minute)
		return nil
	}

	res := e.Run(ctx, id, rawBatch(250))
	require.True(t, res.Success, "unexpected failure: %v", res.Err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Result.SkippedChunks, "first chunk was stored by the failed attempt")
	assert.Equal(t, []time.Duration{time.Minute}, *slept)
	assert.Equal(t, domain.JobStatusFailed, statusDuringRetry, "failed attempt is visible before the retry")

	// attempt 1: chunk 1 ok, chunk 2 insert fails; attempt 2: chunk 1 skipped, chunks 2-3.
	assert.Equal(t, []int{100, 100, 100, 50}, h.downstream.Calls())

	stored, err := h.records.CountByJob(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 250, stored)

	job := h.load(t, id)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 250, job.ProcessedRecords)
	assert.Equal(t, 2, job.Attempts)
	assert.Nil(t, job.ErrorMessage)
	assert.False(t, job.RetriesExhausted)
}

func TestRunRetriesAfterDownstreamFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)
	id := h.createJob(t, 200)
	failures := 0
	h.downstream.onCall = func(n int) error {
		if n == 2 && failures == 0 {
			failures++
			return errors.New("downstream timeout")
		}
		return nil
	}
	e, _ := newTestExecutor(h, 3)

	res := e.Run(ctx, id, rawBatch(200))
	require.True(t, res.Success)

	job := h.load(t, id)
	assert.Equal(t, 200, job.ProcessedRecords)
	assert.Zero(t, job.FailedRecords)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)
	id := h.createJob(t, 250)
	records := rawBatch(250)
	delete(records[0], "first_name")
	h.records.failOn = func(call int) error {
		if call > 1 {
			return errors.New("database is locked")
		}
		return nil
	}
	e, slept := newTestExecutor(h, 3)

	res := e.Run(ctx, id, records)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "giving up after 3 attempts")
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, *slept)

	job := h.load(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.True(t, job.IsTerminal())
	assert.True(t, job.RetriesExhausted)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "database is locked")
	assert.Equal(t, 100, job.ProcessedRecords, "committed chunk survives the failure")
	assert.Equal(t, 250, job.ProcessedRecords+job.FailedRecords)
	assert.Equal(t, 3, job.Attempts)
	require.NotNil(t, job.CompletedAt)
}

func TestRunStopsOnCancellation(t *testing.T) {
	h := newHarness(t, 100)
	id := h.createJob(t, 10)
	e, _ := newTestExecutor(h, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Run(ctx, id, rawBatch(10))
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, context.Canceled)

	job := h.load(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.True(t, job.RetriesExhausted)
}

func TestDecide(t *testing.T) {
	e := NewJobExecutor(nil, nil, &ExecutorConfig{MaxAttempts: 3, RetryDelay: 60 * time.Second}, nil)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	transient := errors.New("timeout")

	tests := []struct {
		name    string
		ctx     context.Context
		attempt int
		err     error
		retry   bool
	}{
		{name: "first failure", ctx: context.Background(), attempt: 1, err: transient, retry: true},
		{name: "second failure", ctx: context.Background(), attempt: 2, err: transient, retry: true},
		{name: "budget exhausted", ctx: context.Background(), attempt: 3, err: transient},
		{name: "cancelled", ctx: cancelled, attempt: 1, err: transient},
		{name: "job gone", ctx: context.Background(), attempt: 1, err: fmt.Errorf("x: %w", ErrJobNotFound)},
		{name: "terminal job", ctx: context.Background(), attempt: 1, err: domain.ErrInvalidTransition},
		{name: "input mismatch", ctx: context.Background(), attempt: 1, err: ErrInputMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			switch d := e.decide(tc.ctx, tc.attempt, tc.err).(type) {
			case Retry:
				assert.True(t, tc.retry)
				assert.Equal(t, 60*time.Second, d.Delay)
			case GiveUp:
				assert.False(t, tc.retry)
				assert.ErrorIs(t, d.Err, tc.err)
			default:
				t.Fatalf("unexpected decision %T", d)
			}
		})
	}
}

func TestEnqueueRejections(t *testing.T) {
	h := newHarness(t, 100)
	e := NewJobExecutor(h.processor, h.jobs, &ExecutorConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1}, nil)

	require.NoError(t, e.Enqueue("a", rawBatch(1)))
	assert.ErrorIs(t, e.Enqueue("a", rawBatch(1)), ErrJobActive)
	assert.ErrorIs(t, e.Enqueue("b", rawBatch(1)), ErrQueueFull)

	require.NoError(t, e.Stop(context.Background()))
	assert.ErrorIs(t, e.Enqueue("c", rawBatch(1)), ErrExecutorStopped)
}

func TestExecutorRunsQueuedJobs(t *testing.T) {
	h := newHarness(t, 100)
	e, _ := newTestExecutor(h, 3)

	results := make(chan *ExecutionResult, 3)
	e.OnResult(func(r *ExecutionResult) { results <- r })
	e.Start(context.Background())

	ids := map[string]int{}
	for _, n := range []int{5, 120, 40} {
		id := h.createJob(t, n)
		ids[id] = n
		require.NoError(t, e.Enqueue(id, rawBatch(n)))
	}

	for range ids {
		select {
		case r := <-results:
			require.True(t, r.Success, "job %s: %v", r.JobID, r.Err)
			assert.Equal(t, ids[r.JobID], r.Result.Processed)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	require.NoError(t, e.Stop(context.Background()))
	for id, n := range ids {
		job := h.load(t, id)
		assert.Equal(t, domain.JobStatusCompleted, job.Status)
		assert.Equal(t, n, job.ProcessedRecords)
	}
	assert.ErrorIs(t, e.Enqueue("late", nil), ErrExecutorStopped)
}

func TestStopCancelsRunningJobsAfterDeadline(t *testing.T) {
	h := newHarness(t, 1)
	e := NewJobExecutor(h.processor, h.jobs, &ExecutorConfig{Workers: 1, QueueSize: 2, MaxAttempts: 3}, nil)

	started := make(chan struct{})
	var once sync.Once
	h.downstream.onCall = func(int) error {
		once.Do(func() { close(started) })
		<-e.ctx.Done()
		return e.ctx.Err()
	}
	e.Start(context.Background())

	id := h.createJob(t, 3)
	require.NoError(t, e.Enqueue(id, rawBatch(3)))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Stop(ctx), context.DeadlineExceeded)

	job := h.load(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.True(t, job.RetriesExhausted)
}
