package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/rollcall/internal/domain"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when no job exists for the requested id.
var ErrJobNotFound = errors.New("ingestion job not found")

// JobRepository handles ingestion job rows.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job. Duplicate ids are rejected by the primary key.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestionJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID retrieves a job by its id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id (task id).
//
// Returns:
//   - *domain.IngestionJob: job row if found.
//   - error: ErrJobNotFound when no row matches, or the query error.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return &job, nil
}

// Save writes the full job row.
func (r *JobRepository) Save(ctx context.Context, job *domain.IngestionJob) error {
	res := r.db.WithContext(ctx).Model(job).Select("*").Omit("created_at").Updates(job)
	if res.Error != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	return nil
}

// CountByStatus returns the number of jobs in each status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.IngestionJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteCompletedBefore removes COMPLETED jobs finished before cutoff together with
// their records and failures.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: jobs with completed_at strictly before this instant are removed.
//
// Returns:
//   - []string: ids of the deleted jobs.
//   - error: non-nil if the transaction fails; nothing is deleted in that case.
func (r *JobRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.IngestionJob{}).
			Where("status = ? AND completed_at < ?", domain.JobStatusCompleted, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		// FK enforcement may be off on this connection; delete children first.
		if err := tx.Where("job_id IN ?", ids).Delete(&domain.StudentRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("job_id IN ?", ids).Delete(&domain.IngestionFailure{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&domain.IngestionJob{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete completed jobs: %w", err)
	}
	return ids, nil
}
