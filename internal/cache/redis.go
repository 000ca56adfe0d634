package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/timmy/rollcall/internal/config"
	"github.com/timmy/rollcall/internal/domain"
)

// RedisCache is a JobCache shared between processes. Snapshots are stored as JSON.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to cfg.Addr and verifies the connection with PING.
func NewRedisCache(cfg *config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, jobID string) (domain.JobSnapshot, bool, error) {
	var snap domain.JobSnapshot

	data, err := c.client.WithContext(ctx).Get(Key(jobID)).Bytes()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("redis get %s: %w", Key(jobID), err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("decode cached job %s: %w", jobID, err)
	}
	return snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, snap domain.JobSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", snap.ID, err)
	}
	if err := c.client.WithContext(ctx).Set(Key(snap.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", Key(snap.ID), err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, jobID string) error {
	if err := c.client.WithContext(ctx).Del(Key(jobID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", Key(jobID), err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
