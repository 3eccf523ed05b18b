// Package embeddings provides embedding generation, caching, and the
// cache-fronted service the memory layer talks to.
package embeddings

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

// Generator produces embedding vectors. Implementations must be
// deterministic for a fixed (model, text) pair.
type Generator interface {
	// Generate creates an embedding for a single text.
	Generate(ctx context.Context, text string) ([]float64, error)

	// GenerateBatch creates embeddings for multiple texts in one call.
	GenerateBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimension returns the vector dimension this generator produces.
	Dimension() int

	// Model returns the model name, part of every cache key.
	Model() string

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// Cache stores embeddings keyed by (model, text). Implementations must
// tolerate concurrent use without external locking.
type Cache interface {
	Get(ctx context.Context, model, text string) ([]float64, bool)
	Put(ctx context.Context, model, text string, vector []float64) error
	Stats() CacheStats
	Close() error
}

// CacheStats is a snapshot of cache performance counters.
type CacheStats struct {
	Size      int           `json:"size"`
	MaxSize   int           `json:"max_size,omitempty"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Evictions int64         `json:"evictions,omitempty"`
	Expired   int64         `json:"expired,omitempty"`
	HitRate   float64       `json:"hit_rate"`
	TTL       time.Duration `json:"ttl"`
}

// keySeparator keeps "ab"+"c" and "a"+"bc" from colliding in the cache key.
const keySeparator = "\x1f"

// CacheKey returns the content-addressed key for a (model, text) pair:
// hex(SHA-256(model || 0x1F || text)).
func CacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + keySeparator + text))
	return fmt.Sprintf("%x", hash)
}
