package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/rollcall/internal/cache"
	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/metrics"
)

// JobService is the single path for reading and mutating job state.
// Reads go through the cache; writes go to the store and then invalidate the cache.
type JobService struct {
	jobs    JobStore
	cache   cache.JobCache
	metrics *metrics.Metrics
	now     func() time.Time

	// generations counts writes per job so a read that raced a write
	// does not repopulate the cache with the pre-write snapshot.
	generations sync.Map // job id -> *atomic.Uint64
}

// NewJobService creates a JobService.
// Parameters:
//   - jobs: authoritative job store.
//   - jobCache: snapshot cache; nil disables caching.
//   - m: pipeline metrics, may be nil.
//
// Returns:
//   - *JobService: service instance.
func NewJobService(jobs JobStore, jobCache cache.JobCache, m *metrics.Metrics) *JobService {
	if jobCache == nil {
		jobCache = cache.NopCache{}
	}
	return &JobService{
		jobs:    jobs,
		cache:   jobCache,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Now returns the service clock.
func (s *JobService) Now() time.Time {
	return s.now()
}

// Create persists a new PENDING job for total records under a fresh id.
func (s *JobService) Create(ctx context.Context, total int) (*domain.IngestionJob, error) {
	job := domain.NewIngestionJob(uuid.NewString(), total, s.now())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Load reads the authoritative job row, bypassing the cache.
func (s *JobService) Load(ctx context.Context, id string) (*domain.IngestionJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// Snapshot returns the job state for status polling, served from cache when possible.
func (s *JobService) Snapshot(ctx context.Context, id string) (domain.JobSnapshot, error) {
	snap, ok, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		s.metrics.RecordCacheLookup(metrics.CacheError)
		logger.FromContext(ctx).WithError(err).Warn("Job cache read failed, falling back to store")
	case ok:
		s.metrics.RecordCacheLookup(metrics.CacheHit)
		return snap, nil
	default:
		s.metrics.RecordCacheLookup(metrics.CacheMiss)
	}

	gen := s.generation(id)
	before := gen.Load()

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.JobSnapshot{}, err
	}
	snap = job.Snapshot()

	if gen.Load() == before {
		if err := s.cache.Set(ctx, snap); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to cache job snapshot")
		}
	}
	if job.IsTerminal() {
		s.generations.CompareAndDelete(id, gen)
	}
	return snap, nil
}

// Mutate loads the job from the store, applies fn, saves the result and
// invalidates the cached snapshot. Nothing is saved when fn fails.
func (s *JobService) Mutate(ctx context.Context, id string, fn func(job *domain.IngestionJob) error) (*domain.IngestionJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	job.UpdatedAt = s.now()
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	s.generation(id).Add(1)
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Failed to invalidate cached job %s", id)
	}
	if job.IsTerminal() {
		s.generations.Delete(id)
	}
	return job, nil
}

// Forget drops cached state for jobs removed from the store.
func (s *JobService) Forget(ctx context.Context, ids ...string) {
	for _, id := range ids {
		s.generation(id).Add(1)
		if err := s.cache.Invalidate(ctx, id); err != nil {
			logger.FromContext(ctx).WithError(err).Warnf("Failed to invalidate cached job %s", id)
		}
		s.generations.Delete(id)
	}
}

func (s *JobService) generation(id string) *atomic.Uint64 {
	v, _ := s.generations.LoadOrStore(id, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}
