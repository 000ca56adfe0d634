package repository

import (
	"context"
	"fmt"

	"github.com/timmy/rollcall/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FailureRepository handles per-record ingestion failures.
type FailureRepository struct {
	db *gorm.DB
}

// NewFailureRepository creates a new FailureRepository.
func NewFailureRepository(db *gorm.DB) *FailureRepository {
	return &FailureRepository{db: db}
}

// AppendFailures stores failures and returns how many were new. A failure already
// recorded for the same (job_id, record_index) is left untouched.
func (r *FailureRepository) AppendFailures(ctx context.Context, failures []*domain.IngestionFailure) (int64, error) {
	if len(failures) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "record_index"}},
		DoNothing: true,
	}).CreateInBatches(&failures, 200)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to store %d failures: %w", len(failures), res.Error)
	}
	return res.RowsAffected, nil
}

// CountByJob returns the number of failures stored for jobID.
func (r *FailureRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.IngestionFailure{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count failures for job %s: %w", jobID, err)
	}
	return count, nil
}

// ListByJob returns up to limit failures for jobID ordered by input position.
// A non-positive limit returns every failure.
func (r *FailureRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]domain.IngestionFailure, error) {
	var failures []domain.IngestionFailure
	q := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("record_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&failures).Error; err != nil {
		return nil, fmt.Errorf("failed to list failures for job %s: %w", jobID, err)
	}
	return failures, nil
}
