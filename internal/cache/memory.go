package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/timmy/rollcall/internal/domain"
)

// MemoryCache is an in-process JobCache backed by go-cache.
// Snapshots are stored by value so callers cannot mutate cached state.
type MemoryCache struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewMemoryCache creates a MemoryCache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cleanup := ttl
	if cleanup <= 0 || cleanup > 10*time.Minute {
		cleanup = 10 * time.Minute
	}
	return &MemoryCache{
		items: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

func (c *MemoryCache) Get(_ context.Context, jobID string) (domain.JobSnapshot, bool, error) {
	v, ok := c.items.Get(Key(jobID))
	if !ok {
		return domain.JobSnapshot{}, false, nil
	}
	snap, ok := v.(domain.JobSnapshot)
	return snap, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, snap domain.JobSnapshot) error {
	c.items.Set(Key(snap.ID), snap, c.ttl)
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, jobID string) error {
	c.items.Delete(Key(jobID))
	return nil
}

// Close empties the cache.
func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}
