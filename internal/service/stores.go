package service

import (
	"context"
	"time"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/repository"
)

// ErrJobNotFound is returned when a job id was never created (or has been swept).
var ErrJobNotFound = repository.ErrJobNotFound

// JobStore is the authoritative job table.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestionJob, error)
	Save(ctx context.Context, job *domain.IngestionJob) error
}

// RecordStore persists validated student records.
type RecordStore interface {
	InsertChunk(ctx context.Context, records []*domain.StudentRecord) (int64, error)
	ExistingStudentIDs(ctx context.Context, jobID string, studentIDs []string) (map[string]struct{}, error)
	CountByJob(ctx context.Context, jobID string) (int64, error)
}

// FailureStore persists per-record validation failures.
type FailureStore interface {
	AppendFailures(ctx context.Context, failures []*domain.IngestionFailure) (int64, error)
	CountByJob(ctx context.Context, jobID string) (int64, error)
	ListByJob(ctx context.Context, jobID string, limit int) ([]domain.IngestionFailure, error)
}

// JobPruner removes finished jobs for the retention sweep.
type JobPruner interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

var (
	_ JobStore     = (*repository.JobRepository)(nil)
	_ JobPruner    = (*repository.JobRepository)(nil)
	_ RecordStore  = (*repository.RecordRepository)(nil)
	_ FailureStore = (*repository.FailureRepository)(nil)
)
