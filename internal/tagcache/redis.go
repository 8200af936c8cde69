// Package tagcache caches the global tag catalog in Redis.
package tagcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trailmemo/api/internal/store"

	"github.com/redis/go-redis/v9"
)

// ErrMiss means the catalog is not cached
var ErrMiss = errors.New("tag catalog not cached")

// RedisCache caches the tag catalog as a single JSON blob. The catalog is
// small and global, so one key with a short TTL is enough; writes invalidate
// it instead of updating in place.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{
		client: client,
		key:    "tags:catalog",
		ttl:    ttl,
	}
}

// Get returns the cached tag catalog, or ErrMiss when absent or expired.
func (c *RedisCache) Get(ctx context.Context) ([]store.Tag, error) {
	jsonData, err := c.client.Get(ctx, c.key).Result()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get tag catalog: %w", err)
	}

	var tags []store.Tag
	if err := json.Unmarshal([]byte(jsonData), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tag catalog: %w", err)
	}
	return tags, nil
}

// Set stores the tag catalog with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, tags []store.Tag) error {
	jsonData, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tag catalog: %w", err)
	}
	if err := c.client.Set(ctx, c.key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("set tag catalog: %w", err)
	}
	return nil
}

// Invalidate drops the cached catalog so the next read hits the database.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("invalidate tag catalog: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
