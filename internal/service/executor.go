package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when no queue slot is free.
	ErrQueueFull = errors.New("executor queue is full")
	// ErrExecutorStopped is returned by Enqueue after Stop.
	ErrExecutorStopped = errors.New("executor is stopped")
	// ErrJobActive is returned by Enqueue when the job is already queued or running.
	ErrJobActive = errors.New("job is already queued or running")
)

// ExecutorConfig holds configuration for the job executor.
type ExecutorConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Decision is the outcome of a failed attempt: Retry or GiveUp.
type Decision interface {
	isDecision()
}

// Retry runs another attempt after Delay.
type Retry struct {
	Delay time.Duration
}

// GiveUp stops retrying; the job fails permanently with Err.
type GiveUp struct {
	Err error
}

func (Retry) isDecision()  {}
func (GiveUp) isDecision() {}

// ExecutionResult is what the executor reports for one job. It never panics or
// returns an error for a failed job; the failure is carried in Err.
type ExecutionResult struct {
	JobID    string
	Success  bool
	Attempts int
	Result   *ProcessResult
	Err      error
}

type task struct {
	jobID   string
	records []domain.RawRecord
}

// JobExecutor runs jobs on a fixed worker pool with a bounded queue and a
// retry harness around each job. At most one attempt per job id runs at a time.
type JobExecutor struct {
	processor Processor
	jobs      *JobService
	cfg       ExecutorConfig
	metrics   *metrics.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	onResult  func(*ExecutionResult)

	queue   chan task
	mu      sync.Mutex
	active  map[string]struct{}
	stopped bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobExecutor creates a JobExecutor. Call Start to launch the workers.
// Parameters:
//   - processor: runs one attempt of a job.
//   - jobs: job state service used to record failures.
//   - cfg: pool size, queue size and retry policy.
//   - m: pipeline metrics, may be nil.
//
// Returns:
//   - *JobExecutor: executor instance.
func NewJobExecutor(processor Processor, jobs *JobService, cfg *ExecutorConfig, m *metrics.Metrics) *JobExecutor {
	c := *cfg
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	return &JobExecutor{
		processor: processor,
		jobs:      jobs,
		cfg:       c,
		metrics:   m,
		sleep:     sleepContext,
		queue:     make(chan task, c.QueueSize),
		active:    make(map[string]struct{}),
	}
}

// OnResult registers a callback invoked after every job finishes.
// It must be set before Start.
func (e *JobExecutor) OnResult(fn func(*ExecutionResult)) {
	e.onResult = fn
}

// Start launches the worker goroutines. Jobs run under a context derived from ctx.
func (e *JobExecutor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(logger.SetComponent(ctx, "executor"))

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go func(workerID int) {
			defer e.wg.Done()
			e.worker(workerID)
		}(i)
	}
	logger.CtxInfo(e.ctx, "Job executor started with %d workers", e.cfg.Workers)
}

// Enqueue schedules a job without blocking.
// Returns ErrQueueFull, ErrExecutorStopped or ErrJobActive when the job cannot be accepted.
func (e *JobExecutor) Enqueue(jobID string, records []domain.RawRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrExecutorStopped
	}
	if _, ok := e.active[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobActive, jobID)
	}

	select {
	case e.queue <- task{jobID: jobID, records: records}:
		e.active[jobID] = struct{}{}
		e.metrics.SetQueueDepth(len(e.queue))
		e.metrics.SetActiveJobs(len(e.active))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs and waits for queued and running jobs to finish.
// When ctx expires first, running jobs are cancelled and fail permanently.
func (e *JobExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.queue)
	started := e.started
	e.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *JobExecutor) worker(workerID int) {
	for t := range e.queue {
		e.metrics.SetQueueDepth(len(e.queue))

		res := e.Run(e.ctx, t.jobID, t.records)
		if e.onResult != nil {
			e.onResult(res)
		}

		e.mu.Lock()
		delete(e.active, t.jobID)
		e.metrics.SetActiveJobs(len(e.active))
		e.mu.Unlock()
	}
	logger.CtxDebug(e.ctx, "Worker %d exiting", workerID)
}

// Run executes a job with the retry policy and returns its final result.
// Every failed attempt is recorded on the job as a non-final failure before the
// retry decision; the last one is recorded as final.
func (e *JobExecutor) Run(ctx context.Context, jobID string, records []domain.RawRecord) *ExecutionResult {
	ctx = logger.SetJobID(ctx, jobID)
	res := &ExecutionResult{JobID: jobID}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		attemptCtx := logger.WithField(ctx, logger.FieldAttempt, attempt)

		var (
			result *ProcessResult
			err    error
		)
		if err = ctx.Err(); err == nil {
			result, err = e.processor.Process(attemptCtx, jobID, records)
		}
		if err == nil {
			res.Success = true
			res.Result = result
			e.metrics.RecordAttempt(metrics.AttemptSucceeded)
			e.metrics.RecordJobFinished(string(domain.JobStatusCompleted))
			return res
		}

		logger.FromContext(attemptCtx).WithError(err).Warnf("Attempt %d/%d failed", attempt, e.cfg.MaxAttempts)
		e.recordFailure(attemptCtx, jobID, err, false)

		switch d := e.decide(ctx, attempt, err).(type) {
		case Retry:
			e.metrics.RecordAttempt(metrics.AttemptRetried)
			if serr := e.sleep(ctx, d.Delay); serr != nil {
				return e.giveUp(attemptCtx, res, fmt.Errorf("%w (retry interrupted: %v)", err, serr))
			}
		case GiveUp:
			return e.giveUp(attemptCtx, res, d.Err)
		}
	}
}

// decide classifies a failed attempt.
func (e *JobExecutor) decide(ctx context.Context, attempt int, err error) Decision {
	switch {
	case ctx.Err() != nil:
		return GiveUp{Err: fmt.Errorf("%w (cancelled: %v)", err, ctx.Err())}
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrInputMismatch),
		errors.Is(err, domain.ErrInvalidTransition):
		return GiveUp{Err: err}
	case attempt >= e.cfg.MaxAttempts:
		return GiveUp{Err: fmt.Errorf("giving up after %d attempts: %w", attempt, err)}
	default:
		return Retry{Delay: e.cfg.RetryDelay}
	}
}

func (e *JobExecutor) giveUp(ctx context.Context, res *ExecutionResult, err error) *ExecutionResult {
	res.Err = err
	e.metrics.RecordAttempt(metrics.AttemptGaveUp)
	e.metrics.RecordJobFinished(string(domain.JobStatusFailed))
	e.recordFailure(ctx, res.JobID, err, true)
	logger.FromContext(ctx).WithError(err).Errorf("Job failed permanently after %d attempts", res.Attempts)
	return res
}

// recordFailure persists FAILED on the job. It runs even when ctx is cancelled
// so shutdown never leaves a job looking active.
func (e *JobExecutor) recordFailure(ctx context.Context, jobID string, cause error, final bool) {
	ctx = context.WithoutCancel(ctx)
	now := e.jobs.Now()

	_, err := e.jobs.Mutate(ctx, jobID, func(j *domain.IngestionJob) error {
		return j.Fail(cause.Error(), final, now)
	})
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		logger.FromContext(ctx).WithError(err).Errorf("Failed to record job failure (final=%t)", final)
	}
}
