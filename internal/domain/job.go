package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the status of an ingestion job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrCounterRegression is returned when a progress update would decrease a counter.
	ErrCounterRegression = errors.New("job counters must not decrease")
	// ErrCounterOverflow is returned when processed+failed would exceed the job total.
	ErrCounterOverflow = errors.New("job counters exceed total records")
)

// IngestionJob represents one bulk-ingestion request and its aggregate processing state.
type IngestionJob struct {
	ID               string     `gorm:"type:text;primaryKey" json:"task_id"`
	Status           JobStatus  `gorm:"type:text;not null;default:PENDING;index:idx_jobs_status" json:"status"`
	TotalRecords     int        `gorm:"not null;default:0" json:"total_records"`
	ProcessedRecords int        `gorm:"not null;default:0" json:"processed_records"`
	FailedRecords    int        `gorm:"not null;default:0" json:"failed_records"`
	ErrorMessage     *string    `gorm:"type:text" json:"error_message"`
	Attempts         int        `gorm:"not null;default:0" json:"attempts"`
	RetriesExhausted bool       `gorm:"not null;default:false" json:"retries_exhausted"`
	CreatedAt        time.Time  `gorm:"index:idx_jobs_created_at" json:"created_at"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `gorm:"index:idx_jobs_completed_at" json:"completed_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IngestionJob.
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// NewIngestionJob creates a pending job for total records.
func NewIngestionJob(id string, total int, now time.Time) *IngestionJob {
	return &IngestionJob{
		ID:           id,
		Status:       JobStatusPending,
		TotalRecords: total,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsTerminal reports whether the job accepts no further mutation.
// A failed job is only terminal once its retries are exhausted.
func (j *IngestionJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted:
		return true
	case JobStatusFailed:
		return j.RetriesExhausted
	default:
		return false
	}
}

// Begin moves the job into PROCESSING for a new executor attempt.
// StartedAt is set only on the first entry; leaving a non-final FAILED clears the failure.
func (j *IngestionJob) Begin(now time.Time) error {
	switch j.Status {
	case JobStatusPending, JobStatusProcessing:
	case JobStatusFailed:
		if j.RetriesExhausted {
			return fmt.Errorf("%w: job %s failed permanently", ErrInvalidTransition, j.ID)
		}
		j.ErrorMessage = nil
		j.CompletedAt = nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusProcessing)
	}

	j.Status = JobStatusProcessing
	j.Attempts++
	if j.StartedAt == nil {
		started := now
		j.StartedAt = &started
	}
	return nil
}

// RecordProgress sets cumulative counters while processing.
func (j *IngestionJob) RecordProgress(processed, failed int) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: progress update in status %s", ErrInvalidTransition, j.Status)
	}
	if processed < j.ProcessedRecords || failed < j.FailedRecords {
		return fmt.Errorf("%w: processed %d->%d, failed %d->%d",
			ErrCounterRegression, j.ProcessedRecords, processed, j.FailedRecords, failed)
	}
	if processed+failed > j.TotalRecords {
		return fmt.Errorf("%w: %d+%d > %d", ErrCounterOverflow, processed, failed, j.TotalRecords)
	}
	j.ProcessedRecords = processed
	j.FailedRecords = failed
	return nil
}

// Complete marks a processing job as completed once every record is accounted for.
func (j *IngestionJob) Complete(now time.Time) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	if j.ProcessedRecords+j.FailedRecords != j.TotalRecords {
		return fmt.Errorf("%w: %d+%d != %d before completion",
			ErrInvalidTransition, j.ProcessedRecords, j.FailedRecords, j.TotalRecords)
	}
	j.Status = JobStatusCompleted
	completed := now
	j.CompletedAt = &completed
	return nil
}

// Fail marks the job as failed with msg. When final is set the failure becomes terminal
// and records that were never persisted are charged to FailedRecords.
func (j *IngestionJob) Fail(msg string, final bool, now time.Time) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusFailed)
	}

	j.Status = JobStatusFailed
	j.ErrorMessage = &msg
	completed := now
	j.CompletedAt = &completed
	if final {
		j.RetriesExhausted = true
		if rest := j.TotalRecords - j.ProcessedRecords - j.FailedRecords; rest > 0 {
			j.FailedRecords += rest
		}
	}
	return nil
}

// Snapshot returns an immutable copy of the job state.
func (j *IngestionJob) Snapshot() JobSnapshot {
	s := JobSnapshot{
		ID:               j.ID,
		Status:           j.Status,
		TotalRecords:     j.TotalRecords,
		ProcessedRecords: j.ProcessedRecords,
		FailedRecords:    j.FailedRecords,
		Attempts:         j.Attempts,
		RetriesExhausted: j.RetriesExhausted,
		CreatedAt:        j.CreatedAt,
	}
	if j.ErrorMessage != nil {
		s.ErrorMessage = *j.ErrorMessage
	}
	if j.StartedAt != nil {
		s.StartedAt = *j.StartedAt
	}
	if j.CompletedAt != nil {
		s.CompletedAt = *j.CompletedAt
	}
	return s
}
