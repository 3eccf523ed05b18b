package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"mcp-semantic-memory/internal/config"
)

// OpenAIGenerator produces embeddings through an OpenAI-compatible API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	dimension   int
	timeout     time.Duration
	maxRetries  int
	rateLimiter *RateLimiter
}

// NewOpenAIGenerator creates a generator from the embedding config.
func NewOpenAIGenerator(cfg *config.EmbeddingConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		timeout:     timeout,
		maxRetries:  retries,
		rateLimiter: NewRateLimiter(60, time.Second),
	}
}

// Generate embeds a single text.
func (g *OpenAIGenerator) Generate(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}
	vecs, err := g.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateBatch embeds multiple texts in one API call, retrying on transient
// failures with exponential backoff.
func (g *OpenAIGenerator) GenerateBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts cannot be empty")
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(g.model),
		Dimensions: g.dimension,
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.client.CreateEmbeddings(callCtx, req)
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
		}

		out := make([][]float64, len(texts))
		for i, item := range resp.Data {
			vec := make([]float64, len(item.Embedding))
			for j, v := range item.Embedding {
				vec[j] = float64(v)
			}
			out[i] = vec
		}
		return out, nil
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", g.maxRetries+1, lastErr)
}

// Dimension returns the configured vector dimension.
func (g *OpenAIGenerator) Dimension() int {
	return g.dimension
}

// Model returns the model name.
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// HealthCheck embeds a short probe string.
func (g *OpenAIGenerator) HealthCheck(ctx context.Context) error {
	_, err := g.Generate(ctx, "health check")
	return err
}

// RateLimiter is a token bucket refilled at a fixed interval.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter creates a bucket holding maxTokens, refilled one token per
// refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens <= 0 {
		maxTokens = 1
	}
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refill := int(now.Sub(rl.lastRefill) / rl.refillRate)
	if refill > 0 {
		rl.tokens = min(rl.maxTokens, rl.tokens+refill)
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
