package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Server.OperationTimeoutSeconds)
	assert.Equal(t, 3, cfg.Search.DedupFetchMultiplier)
	assert.Equal(t, 7, cfg.Cache.TTLDays)
	assert.Equal(t, 0.6, cfg.Search.CompositeWeights.Similarity)
	assert.Equal(t, 48, cfg.Session.TTLHours)
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qdrant:
  host: qdrant.internal
  collection: team_memory
embedding:
  backend: local
  dimension: 128
search:
  deduplication_fetch_multiplier: 5
`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.loadFile(path))
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, "team_memory", cfg.Qdrant.Collection)
	assert.Equal(t, "local", cfg.Embedding.Backend)
	assert.Equal(t, 128, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Search.DedupFetchMultiplier)
	// Untouched keys keep their defaults.
	assert.Equal(t, 6334, cfg.Qdrant.Port)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qdrnt:\n  host: typo\n"), 0o600))

	cfg := DefaultConfig()
	err := cfg.loadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("READ_ONLY_MODE", "true")
	t.Setenv("QDRANT_HOST", "remote-qdrant")
	t.Setenv("EMBEDDING_MODEL", "custom-model")
	t.Setenv("EMBEDDING_CACHE_TTL_DAYS", "14")
	t.Setenv("DEDUPLICATION_FETCH_MULTIPLIER", "4")
	t.Setenv("SESSION_TTL_HOURS", "24")

	cfg := DefaultConfig()
	cfg.loadFromEnv()
	assert.True(t, cfg.Server.ReadOnlyMode)
	assert.Equal(t, "remote-qdrant", cfg.Qdrant.Host)
	assert.Equal(t, "custom-model", cfg.Embedding.Model)
	assert.Equal(t, 14, cfg.Cache.TTLDays)
	assert.Equal(t, 4, cfg.Search.DedupFetchMultiplier)
	assert.Equal(t, 24, cfg.Session.TTLHours)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero timeout", func(c *Config) { c.Server.OperationTimeoutSeconds = 0 }, "operation_timeout_seconds"},
		{"empty qdrant host", func(c *Config) { c.Qdrant.Host = "" }, "qdrant.host"},
		{"bad port", func(c *Config) { c.Qdrant.Port = 70000 }, "qdrant.port"},
		{"empty collection", func(c *Config) { c.Qdrant.Collection = "" }, "qdrant.collection"},
		{"unknown embedding backend", func(c *Config) { c.Embedding.Backend = "quantum" }, "embedding.backend"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "etcd" }, "cache.backend"},
		{"zero cache ttl while enabled", func(c *Config) { c.Cache.TTLDays = 0 }, "cache.ttl_days"},
		{"multiplier below one", func(c *Config) { c.Search.DedupFetchMultiplier = 0 }, "fetch_multiplier"},
		{"negative weight", func(c *Config) { c.Search.CompositeWeights.Recency = -1 }, "composite_weights"},
		{"all-zero weights", func(c *Config) { c.Search.CompositeWeights = CompositeWeights{} }, "composite_weights"},
		{"zero session ttl", func(c *Config) { c.Session.TTLHours = 0 }, "session.ttl_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQdrantURL(t *testing.T) {
	q := QdrantConfig{Host: "localhost", Port: 6334}
	assert.Equal(t, "localhost:6334", q.URL())
}
