package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/rollcall/internal/config"
	"github.com/timmy/rollcall/internal/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "rollcall.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedJob(t *testing.T, repo *JobRepository, id string, total int) *domain.IngestionJob {
	t.Helper()
	job := domain.NewIngestionJob(id, total, time.Now().UTC())
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func studentRecords(jobID string, from, to int) []*domain.StudentRecord {
	var out []*domain.StudentRecord
	for i := from; i < to; i++ {
		out = append(out, &domain.StudentRecord{
			JobID:     jobID,
			StudentID: fmt.Sprintf("STU%04d", i),
			FirstName: "First",
			LastName:  "Last",
			Email:     fmt.Sprintf("s%d@school.edu", i),
			Grade:     []string{"1", "2", "LKG"}[i%3],
			Country:   "India",
		})
	}
	return out
}

func TestJobRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))
	job := seedJob(t, repo, "job-1", 10)

	loaded, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, loaded.Status)
	assert.Equal(t, 10, loaded.TotalRecords)

	require.NoError(t, job.Begin(time.Now()))
	require.NoError(t, job.RecordProgress(4, 1))
	require.NoError(t, repo.Save(ctx, job))

	loaded, err = repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, loaded.Status)
	assert.Equal(t, 4, loaded.ProcessedRecords)
	assert.Equal(t, 1, loaded.FailedRecords)
	assert.Equal(t, 1, loaded.Attempts)
	assert.NotNil(t, loaded.StartedAt)
	assert.Nil(t, loaded.ErrorMessage)
}

func TestJobRepositoryNotFound(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	err = repo.Save(context.Background(), domain.NewIngestionJob("ghost", 1, time.Now()))
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestJobRepositoryRejectsDuplicateID(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	seedJob(t, repo, "dup", 1)

	err := repo.Create(context.Background(), domain.NewIngestionJob("dup", 1, time.Now()))
	assert.Error(t, err)
}

func TestRecordRepositoryInsertChunkSkipsConflicts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedJob(t, NewJobRepository(db), "job-1", 150)
	seedJob(t, NewJobRepository(db), "job-2", 10)
	repo := NewRecordRepository(db)

	n, err := repo.InsertChunk(ctx, studentRecords("job-1", 0, 100))
	require.NoError(t, err)
	assert.EqualValues(t, 100, n)

	// Overlapping retry: 50 already stored, 50 new.
	n, err = repo.InsertChunk(ctx, studentRecords("job-1", 50, 150))
	require.NoError(t, err)
	assert.EqualValues(t, 50, n)

	// Same natural keys under another job are independent.
	n, err = repo.InsertChunk(ctx, studentRecords("job-2", 0, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	count, err := repo.CountByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.EqualValues(t, 150, count)

	existing, err := repo.ExistingStudentIDs(ctx, "job-1", []string{"STU0000", "STU0149", "STU9999"})
	require.NoError(t, err)
	assert.Len(t, existing, 2)
	assert.Contains(t, existing, "STU0149")

	grades, err := repo.GradeBreakdown(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"1": 4, "2": 3, "LKG": 3}, grades)
}

func TestRecordRepositoryInsertChunkIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedJob(t, NewJobRepository(db), "job-1", 3)
	repo := NewRecordRepository(db)

	records := studentRecords("job-1", 0, 3)
	records[2].JobID = "unknown-job"

	_, err := repo.InsertChunk(ctx, records)
	require.Error(t, err)

	count, err := repo.CountByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Zero(t, count, "no record of a failed chunk may persist")
}

func TestFailureRepositoryAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedJob(t, NewJobRepository(db), "job-1", 5)
	repo := NewFailureRepository(db)

	build := func(indexes ...int) []*domain.IngestionFailure {
		var out []*domain.IngestionFailure
		for _, i := range indexes {
			f, err := domain.NewValidationFailure("job-1", i,
				domain.RawRecord{"student_id": fmt.Sprintf("BAD%d", i)},
				map[string][]string{"email": {"This field is required."}},
				"invalid record: email: This field is required.")
			require.NoError(t, err)
			out = append(out, f)
		}
		return out
	}

	added, err := repo.AppendFailures(ctx, build(3, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 2, added)
	added, err = repo.AppendFailures(ctx, build(1, 3, 4))
	require.NoError(t, err)
	assert.EqualValues(t, 1, added, "indexes 1 and 3 already recorded")

	count, err := repo.CountByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	listed, err := repo.ListByJob(ctx, "job-1", 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 1, listed[0].RecordIndex)
	assert.Equal(t, 3, listed[1].RecordIndex)
	assert.Equal(t, domain.ErrorTypeValidation, listed[0].ErrorType)
	assert.JSONEq(t, `{"student_id":"BAD1"}`, string(listed[0].RawData))
}

func TestDeleteCompletedBefore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	jobs := NewJobRepository(db)
	records := NewRecordRepository(db)
	failures := NewFailureRepository(db)

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	finish := func(id string, completedAt time.Time) {
		job := seedJob(t, jobs, id, 2)
		require.NoError(t, job.Begin(completedAt))
		_, err := records.InsertChunk(ctx, studentRecords(id, 0, 1))
		require.NoError(t, err)
		f, err := domain.NewValidationFailure(id, 1, domain.RawRecord{}, nil, "bad")
		require.NoError(t, err)
		_, err = failures.AppendFailures(ctx, []*domain.IngestionFailure{f})
		require.NoError(t, err)
		require.NoError(t, job.RecordProgress(1, 1))
		require.NoError(t, job.Complete(completedAt))
		require.NoError(t, jobs.Save(ctx, job))
	}
	finish("old-completed", old)
	finish("recent-completed", now)

	failedOld := seedJob(t, jobs, "old-failed", 1)
	require.NoError(t, failedOld.Fail("boom", true, old))
	require.NoError(t, jobs.Save(ctx, failedOld))

	deleted, err := jobs.DeleteCompletedBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, []string{"old-completed"}, deleted)

	_, err = jobs.GetByID(ctx, "old-completed")
	assert.True(t, errors.Is(err, ErrJobNotFound))
	_, err = jobs.GetByID(ctx, "old-failed")
	assert.NoError(t, err, "failed jobs are kept")

	n, err := records.CountByJob(ctx, "old-completed")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = failures.CountByJob(ctx, "old-completed")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = records.CountByJob(ctx, "recent-completed")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	counts, err := jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[domain.JobStatusCompleted])
	assert.EqualValues(t, 1, counts[domain.JobStatusFailed])
}
