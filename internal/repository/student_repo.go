package repository

import (
	"context"
	"fmt"

	"github.com/timmy/rollcall/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRepository handles persisted student records.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// InsertChunk persists one chunk of records atomically.
// Records whose (job_id, student_id) already exist are skipped, which makes
// re-running a partially applied job safe.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - records: validated records, all belonging to the same job.
//
// Returns:
//   - int64: number of rows actually inserted.
//   - error: non-nil if the transaction was rolled back.
func (r *RecordRepository) InsertChunk(ctx context.Context, records []*domain.StudentRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).Create(&records)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk of %d records: %w", len(records), err)
	}
	return inserted, nil
}

// ExistingStudentIDs returns which of studentIDs are already stored for jobID.
func (r *RecordRepository) ExistingStudentIDs(ctx context.Context, jobID string, studentIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(studentIDs) == 0 {
		return existing, nil
	}

	var found []string
	if err := r.db.WithContext(ctx).Model(&domain.StudentRecord{}).
		Where("job_id = ? AND student_id IN ?", jobID, studentIDs).
		Pluck("student_id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to look up stored records for job %s: %w", jobID, err)
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// CountByJob returns the number of records stored for jobID.
func (r *RecordRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.StudentRecord{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count records for job %s: %w", jobID, err)
	}
	return count, nil
}

// GradeBreakdown returns stored record counts per grade for jobID.
func (r *RecordRepository) GradeBreakdown(ctx context.Context, jobID string) (map[string]int64, error) {
	var rows []struct {
		Grade string
		Count int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.StudentRecord{}).
		Select("grade, COUNT(*) AS count").
		Where("job_id = ?", jobID).
		Group("grade").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group records for job %s: %w", jobID, err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Grade] = row.Count
	}
	return out, nil
}
