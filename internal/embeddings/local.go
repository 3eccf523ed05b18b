package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// LocalGenerator is a deterministic, offline embedding backend. Vectors are
// derived from a SHA-256 stream over (model, text) and normalized to unit
// length, so identical inputs always embed identically and similar use in
// tests needs no network.
type LocalGenerator struct {
	model     string
	dimension int
}

// NewLocalGenerator creates a local generator for the given model name and
// dimension.
func NewLocalGenerator(model string, dimension int) *LocalGenerator {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalGenerator{model: model, dimension: dimension}
}

// Generate derives the deterministic vector for text.
func (g *LocalGenerator) Generate(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, g.dimension)

	// Stretch the digest into as many bytes as the dimension needs by
	// re-hashing with a counter suffix.
	seed := []byte(g.model + keySeparator + text)
	var norm float64
	for i := 0; i < g.dimension; i++ {
		block := i / 4
		offset := (i % 4) * 8
		counter := make([]byte, 8)
		binary.BigEndian.PutUint64(counter, uint64(block))
		digest := sha256.Sum256(append(seed, counter...))
		bits := binary.BigEndian.Uint64(digest[offset : offset+8])
		// Map to [-1, 1).
		vec[i] = float64(int64(bits))/float64(math.MaxInt64)
		norm += vec[i] * vec[i]
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// GenerateBatch embeds each text independently.
func (g *LocalGenerator) GenerateBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := g.Generate(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the configured vector dimension.
func (g *LocalGenerator) Dimension() int {
	return g.dimension
}

// Model returns the model name.
func (g *LocalGenerator) Model() string {
	return g.model
}

// HealthCheck always succeeds: the backend is in-process.
func (g *LocalGenerator) HealthCheck(_ context.Context) error {
	return nil
}
