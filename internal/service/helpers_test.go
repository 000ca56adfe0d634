package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmy/rollcall/internal/cache"
	"github.com/timmy/rollcall/internal/config"
	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/repository"
	"github.com/timmy/rollcall/internal/validator"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	jobRepo    *repository.JobRepository
	records    *countingRecordStore
	failures   *repository.FailureRepository
	cache      *cache.MemoryCache
	jobs       *JobService
	downstream *recordingDownstream
	processor  *BatchProcessor
}

func newHarness(t *testing.T, chunkSize int) *harness {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "service.db"),
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

	h := &harness{
		jobRepo:    repository.NewJobRepository(db),
		records:    &countingRecordStore{RecordStore: repository.NewRecordRepository(db)},
		failures:   repository.NewFailureRepository(db),
		cache:      cache.NewMemoryCache(time.Hour),
		downstream: &recordingDownstream{},
	}
	h.jobs = NewJobService(h.jobRepo, h.cache, nil)
	h.jobs.now = func() time.Time { return testNow }
	h.processor = NewBatchProcessor(
		h.jobs, h.records, h.failures,
		validator.NewStudentValidator(func() time.Time { return testNow }),
		h.downstream, chunkSize, nil,
	)
	return h
}

func (h *harness) createJob(t *testing.T, total int) string {
	t.Helper()
	job, err := h.jobs.Create(context.Background(), total)
	require.NoError(t, err)
	return job.ID
}

func (h *harness) load(t *testing.T, id string) *domain.IngestionJob {
	t.Helper()
	job, err := h.jobs.Load(context.Background(), id)
	require.NoError(t, err)
	return job
}

func studentRaw(i int) domain.RawRecord {
	return domain.RawRecord{
		"student_id":    fmt.Sprintf("STU%04d", i),
		"first_name":    "Student",
		"last_name":     fmt.Sprintf("Number%d", i),
		"email":         fmt.Sprintf("student%d@school.edu", i),
		"date_of_birth": "2012-03-04",
		"grade":         []string{"Nursery", "LKG", "UKG", "1", "5", "12"}[i%6],
		"section":       "B",
	}
}

func rawBatch(n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = studentRaw(i)
	}
	return out
}

// recordingDownstream records the size of every chunk it is called with.
type recordingDownstream struct {
	mu     sync.Mutex
	calls  []int
	onCall func(n int) error
}

func (d *recordingDownstream) Call(ctx context.Context, chunk []*domain.StudentRecord) error {
	d.mu.Lock()
	d.calls = append(d.calls, len(chunk))
	n := len(d.calls)
	hook := d.onCall
	d.mu.Unlock()

	if hook != nil {
		return hook(n)
	}
	return ctx.Err()
}

func (d *recordingDownstream) Calls() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.calls...)
}

// countingRecordStore counts inserts and can fail selected insert calls.
type countingRecordStore struct {
	RecordStore

	mu      sync.Mutex
	inserts int
	failOn  func(call int) error
}

func (s *countingRecordStore) InsertChunk(ctx context.Context, records []*domain.StudentRecord) (int64, error) {
	s.mu.Lock()
	s.inserts++
	call := s.inserts
	fail := s.failOn
	s.mu.Unlock()

	if fail != nil {
		if err := fail(call); err != nil {
			return 0, err
		}
	}
	return s.RecordStore.InsertChunk(ctx, records)
}

func (s *countingRecordStore) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}
