package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
)

// Service fronts a Generator with a Cache. Concurrent requests for the same
// uncached text are coalesced into a single backend call, so the generator
// sees each distinct text at most once per flight.
type Service struct {
	generator Generator
	cache     Cache
	group     singleflight.Group
	logger    logging.Logger
	coalesced atomic.Int64
	generated atomic.Int64
}

// NewService wires a generator to a cache. A nil cache disables caching.
func NewService(generator Generator, cache Cache) *Service {
	return &Service{
		generator: generator,
		cache:     cache,
		logger:    logging.WithComponent("embeddings"),
	}
}

// NewServiceFromConfig builds the generator and cache named by the config.
func NewServiceFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	var generator Generator
	switch strings.ToLower(cfg.Embedding.Backend) {
	case "local":
		generator = NewLocalGenerator(cfg.Embedding.Model, cfg.Embedding.Dimension)
	case "openai":
		generator = NewOpenAIGenerator(&cfg.Embedding)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Embedding.Backend)
	}

	var cache Cache
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
		var err error
		switch strings.ToLower(cfg.Cache.Backend) {
		case "sqlite":
			cache, err = NewSQLiteCache(cfg.Cache.Path, ttl)
		case "redis":
			cache, err = NewRedisCache(ctx, cfg.Cache.RedisAddr, ttl)
		case "memory":
			cache = NewMemoryCache(cfg.Cache.MaxMemory, ttl)
		default:
			err = fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
		}
		if err != nil {
			return nil, err
		}
	}

	return NewService(generator, cache), nil
}

// GetEmbedding returns the vector for text, from cache when possible.
func (s *Service) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	vec, _, err := s.GetEmbeddingWithInfo(ctx, text)
	return vec, err
}

// GetEmbeddingWithInfo returns the vector for text plus whether it was served
// without a generator call by this request: a cache hit or a coalesced flight.
func (s *Service) GetEmbeddingWithInfo(ctx context.Context, text string) ([]float64, bool, error) {
	if text == "" {
		return nil, false, errors.NewValidation("cannot embed empty text")
	}
	model := s.generator.Model()

	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, model, text); ok {
			return vec, true, nil
		}
	}

	key := CacheKey(model, text)
	generatedHere := false
	result, err, shared := s.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have filled the cache while we queued.
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, model, text); ok {
				return vec, nil
			}
		}

		vec, err := s.generator.Generate(ctx, text)
		if err != nil {
			return nil, errors.NewEmbedding("embedding generation failed", err)
		}
		s.generated.Add(1)
		generatedHere = true

		if s.cache != nil {
			if putErr := s.cache.Put(ctx, model, text, vec); putErr != nil {
				s.logger.WarnContext(ctx, "failed to cache embedding", "error", putErr.Error())
			}
		}
		return vec, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		s.coalesced.Add(1)
	}
	return result.([]float64), !generatedHere, nil
}

// GetBatchEmbeddings returns vectors for all texts, consulting the cache per
// text and batching only the misses to the generator.
func (s *Service) GetBatchEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := s.generator.Model()
	results := make([][]float64, len(texts))

	var missTexts []string
	var missIndices []int
	for i, text := range texts {
		if text == "" {
			return nil, errors.NewValidation("cannot embed empty text in batch")
		}
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, model, text); ok {
				results[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := s.generator.GenerateBatch(ctx, missTexts)
	if err != nil {
		return nil, errors.NewEmbedding("batch embedding generation failed", err)
	}
	s.generated.Add(int64(len(vecs)))

	for i, vec := range vecs {
		results[missIndices[i]] = vec
		if s.cache != nil {
			if putErr := s.cache.Put(ctx, model, missTexts[i], vec); putErr != nil {
				s.logger.WarnContext(ctx, "failed to cache embedding", "error", putErr.Error())
			}
		}
	}
	return results, nil
}

// Dimension returns the generator's vector dimension.
func (s *Service) Dimension() int {
	return s.generator.Dimension()
}

// Model returns the generator's model name.
func (s *Service) Model() string {
	return s.generator.Model()
}

// HealthCheck probes the generator backend.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.generator.HealthCheck(ctx)
}

// ServiceStats reports cache and coalescing counters.
type ServiceStats struct {
	Cache     *CacheStats `json:"cache,omitempty"`
	Generated int64       `json:"generated"`
	Coalesced int64       `json:"coalesced"`
	Model     string      `json:"model"`
	Dimension int         `json:"dimension"`
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{
		Generated: s.generated.Load(),
		Coalesced: s.coalesced.Load(),
		Model:     s.generator.Model(),
		Dimension: s.generator.Dimension(),
	}
	if s.cache != nil {
		cs := s.cache.Stats()
		stats.Cache = &cs
	}
	return stats
}

// Close releases the cache resources.
func (s *Service) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
