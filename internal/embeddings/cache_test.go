package embeddings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeySeparator(t *testing.T) {
	// The separator keeps (model, text) boundaries unambiguous.
	assert.NotEqual(t, CacheKey("ab", "c"), CacheKey("a", "bc"))
	assert.Equal(t, CacheKey("m", "t"), CacheKey("m", "t"))
	assert.NotEqual(t, CacheKey("model-a", "text"), CacheKey("model-b", "text"))
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache(10, time.Hour)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "m", "missing")
	assert.False(t, ok)

	vec := []float64{0.1, 0.2, 0.3}
	require.NoError(t, cache.Put(ctx, "m", "text", vec))

	got, ok := cache.Get(ctx, "m", "text")
	require.True(t, ok)
	assert.Equal(t, vec, got)

	// Returned slice is a copy.
	got[0] = 99
	again, ok := cache.Get(ctx, "m", "text")
	require.True(t, ok)
	assert.Equal(t, 0.1, again[0])
}

func TestMemoryCacheEviction(t *testing.T) {
	cache := NewMemoryCache(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "m", "a", []float64{1}))
	require.NoError(t, cache.Put(ctx, "m", "b", []float64{2}))
	// Touch "a" so "b" becomes least recently used.
	_, _ = cache.Get(ctx, "m", "a")
	require.NoError(t, cache.Put(ctx, "m", "c", []float64{3}))

	_, ok := cache.Get(ctx, "m", "b")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "m", "a")
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	cache := NewMemoryCache(10, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "m", "short lived", []float64{1}))
	time.Sleep(25 * time.Millisecond)

	_, ok := cache.Get(ctx, "m", "short lived")
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().Expired)
}

func TestMemoryCacheCleanExpired(t *testing.T) {
	cache := NewMemoryCache(10, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "m", "a", []float64{1}))
	require.NoError(t, cache.Put(ctx, "m", "b", []float64{2}))
	time.Sleep(25 * time.Millisecond)

	assert.Equal(t, 2, cache.CleanExpired())
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestSQLiteCachePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	cache, err := NewSQLiteCache(path, time.Hour)
	require.NoError(t, err)

	vec := []float64{0.5, -0.25, 1.0}
	require.NoError(t, cache.Put(ctx, "model", "persistent text", vec))
	require.NoError(t, cache.Close())

	reopened, err := NewSQLiteCache(path, time.Hour)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.Get(ctx, "model", "persistent text")
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestSQLiteCacheTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	cache, err := NewSQLiteCache(path, 50*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	require.NoError(t, cache.Put(ctx, "model", "text", []float64{1}))
	_, ok := cache.Get(ctx, "model", "text")
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	_, ok = cache.Get(ctx, "model", "text")
	assert.False(t, ok)
}

func TestSQLiteCacheUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	cache, err := NewSQLiteCache(path, time.Hour)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	require.NoError(t, cache.Put(ctx, "model", "text", []float64{1}))
	require.NoError(t, cache.Put(ctx, "model", "text", []float64{2}))

	got, ok := cache.Get(ctx, "model", "text")
	require.True(t, ok)
	assert.Equal(t, []float64{2}, got)
	assert.Equal(t, 1, cache.Stats().Size)
}
