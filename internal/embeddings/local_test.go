package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGeneratorDeterministic(t *testing.T) {
	gen := NewLocalGenerator("local-model", 64)
	ctx := context.Background()

	a, err := gen.Generate(ctx, "the same input")
	require.NoError(t, err)
	b, err := gen.Generate(ctx, "the same input")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalGeneratorDistinguishesInputs(t *testing.T) {
	gen := NewLocalGenerator("local-model", 64)
	ctx := context.Background()

	a, err := gen.Generate(ctx, "first input")
	require.NoError(t, err)
	b, err := gen.Generate(ctx, "second input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalGeneratorModelChangesVector(t *testing.T) {
	ctx := context.Background()
	a, err := NewLocalGenerator("model-a", 64).Generate(ctx, "text")
	require.NoError(t, err)
	b, err := NewLocalGenerator("model-b", 64).Generate(ctx, "text")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalGeneratorUnitNorm(t *testing.T) {
	gen := NewLocalGenerator("local-model", 384)
	vec, err := gen.Generate(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vec, 384)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestLocalGeneratorBatch(t *testing.T) {
	gen := NewLocalGenerator("local-model", 16)
	vecs, err := gen.GenerateBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := gen.Generate(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestLocalGeneratorDefaults(t *testing.T) {
	gen := NewLocalGenerator("m", 0)
	assert.Equal(t, 384, gen.Dimension())
	assert.Equal(t, "m", gen.Model())
	assert.NoError(t, gen.HealthCheck(context.Background()))
}
