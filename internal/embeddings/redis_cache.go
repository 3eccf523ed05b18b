package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the embedding cache with a shared Redis instance so
// multiple server processes can pool their embeddings.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const redisKeyPrefix = "emb:"

// NewRedisCache connects to Redis at addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cannot connect to redis at %s: %w", addr, err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get returns the cached vector for (model, text) if present.
func (c *RedisCache) Get(ctx context.Context, model, text string) ([]float64, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+CacheKey(model, text)).Bytes()
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	var vector []float64
	if err := json.Unmarshal(data, &vector); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return vector, true
}

// Put stores a vector with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, model, text string, vector []float64) error {
	if len(vector) == 0 {
		return nil
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("cannot encode embedding: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+CacheKey(model, text), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cannot store embedding in redis: %w", err)
	}
	return nil
}

// Stats returns hit/miss counters. Size is not tracked: Redis owns eviction.
func (c *RedisCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
		TTL:     c.ttl,
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
