// Package cache holds read-through caches of ingestion job snapshots.
// Entries are only ever populated on reads and invalidated on writes; the
// store stays the source of truth.
package cache

import (
	"context"
	"fmt"

	"github.com/timmy/rollcall/internal/config"
	"github.com/timmy/rollcall/internal/domain"
)

const keyPrefix = "ingestion_job:"

// Key returns the cache key for a job id.
func Key(jobID string) string {
	return keyPrefix + jobID
}

// JobCache caches immutable job snapshots by job id.
type JobCache interface {
	// Get returns the cached snapshot and whether it was present.
	Get(ctx context.Context, jobID string) (domain.JobSnapshot, bool, error)
	// Set stores snap under its job id for the configured TTL.
	Set(ctx context.Context, snap domain.JobSnapshot) error
	// Invalidate drops the entry for jobID, if any.
	Invalidate(ctx context.Context, jobID string) error
	// Close releases backend resources.
	Close() error
}

// New builds the JobCache selected by cfg.Backend.
func New(cfg *config.CacheConfig) (JobCache, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryCache(cfg.TTL), nil
	case "redis":
		return NewRedisCache(&cfg.Redis, cfg.TTL)
	case "none":
		return NopCache{}, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// NopCache never stores anything; every read goes to the store.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (domain.JobSnapshot, bool, error) {
	return domain.JobSnapshot{}, false, nil
}
func (NopCache) Set(context.Context, domain.JobSnapshot) error { return nil }
func (NopCache) Invalidate(context.Context, string) error      { return nil }
func (NopCache) Close() error                                  { return nil }
