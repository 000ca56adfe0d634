package service

import (
	"context"
	"fmt"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/metrics"
	"github.com/timmy/rollcall/internal/validator"
)

// Enqueuer hands accepted jobs to background execution.
type Enqueuer interface {
	Enqueue(jobID string, records []domain.RawRecord) error
}

// Submission is the gateway's answer to an accepted batch.
type Submission struct {
	JobID        string
	Status       domain.JobStatus
	TotalRecords int
}

// IngestService is the gateway between clients and the pipeline: it checks
// submitted batches, creates jobs, schedules them and answers status polls.
type IngestService struct {
	jobs     *JobService
	executor Enqueuer
	maxBatch int
	metrics  *metrics.Metrics
}

// NewIngestService creates a new ingest service.
// Parameters:
//   - jobs: job state service.
//   - executor: background scheduler for accepted jobs.
//   - maxBatch: largest accepted batch; validator.DefaultMaxBatch when not positive.
//   - m: pipeline metrics, may be nil.
//
// Returns:
//   - *IngestService: gateway instance.
func NewIngestService(jobs *JobService, executor Enqueuer, maxBatch int, m *metrics.Metrics) *IngestService {
	if maxBatch <= 0 {
		maxBatch = validator.DefaultMaxBatch
	}
	return &IngestService{
		jobs:     jobs,
		executor: executor,
		maxBatch: maxBatch,
		metrics:  m,
	}
}

// Submit accepts a batch for asynchronous processing.
// Structural problems return *validator.SubmissionError and create no job.
// If the job cannot be scheduled it is failed permanently and the scheduling
// error (for example ErrQueueFull) is returned.
func (s *IngestService) Submit(ctx context.Context, records []domain.RawRecord) (*Submission, error) {
	if err := validator.CheckBatch(records, s.maxBatch); err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, len(records))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	ctx = logger.SetJobID(ctx, job.ID)

	if err := s.executor.Enqueue(job.ID, records); err != nil {
		now := s.jobs.Now()
		msg := fmt.Sprintf("job could not be scheduled: %v", err)
		if _, ferr := s.jobs.Mutate(ctx, job.ID, func(j *domain.IngestionJob) error {
			return j.Fail(msg, true, now)
		}); ferr != nil {
			logger.FromContext(ctx).WithError(ferr).Error("Failed to mark unscheduled job as failed")
		}
		return nil, fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}

	s.metrics.RecordJobSubmitted()
	logger.With(logger.Fields{logger.FieldCount: len(records)}).Info(ctx, "Ingestion job submitted")

	return &Submission{
		JobID:        job.ID,
		Status:       job.Status,
		TotalRecords: job.TotalRecords,
	}, nil
}

// GetStatus returns the job snapshot for id, or ErrJobNotFound.
func (s *IngestService) GetStatus(ctx context.Context, id string) (domain.JobSnapshot, error) {
	return s.jobs.Snapshot(ctx, id)
}
