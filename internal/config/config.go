// Package config loads the server configuration: defaults, then an optional
// YAML file with a closed schema, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the enumerated server configuration. The YAML schema is closed:
// unknown keys fail the load.
type Config struct {
	Server       ServerConfig       `yaml:"server" json:"server"`
	Qdrant       QdrantConfig       `yaml:"qdrant" json:"qdrant"`
	Embedding    EmbeddingConfig    `yaml:"embedding" json:"embedding"`
	Cache        CacheConfig        `yaml:"cache" json:"cache"`
	Search       SearchConfig       `yaml:"search" json:"search"`
	Memory       MemoryConfig       `yaml:"memory" json:"memory"`
	Analytics    AnalyticsConfig    `yaml:"analytics" json:"analytics"`
	Session      SessionConfig      `yaml:"session" json:"session"`
	CrossProject CrossProjectConfig `yaml:"cross_project" json:"cross_project"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
}

// ServerConfig holds process-level knobs.
type ServerConfig struct {
	ReadOnlyMode            bool `yaml:"read_only_mode" json:"read_only_mode"`
	OperationTimeoutSeconds int  `yaml:"operation_timeout_seconds" json:"operation_timeout_seconds"`
	ShutdownGraceSeconds    int  `yaml:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`
}

// QdrantConfig wires the reference vector store backend.
type QdrantConfig struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	APIKey         string `yaml:"api_key" json:"-"` // never serialized
	UseTLS         bool   `yaml:"use_tls" json:"use_tls"`
	Collection     string `yaml:"collection" json:"collection"`
	PoolSize       int    `yaml:"pool_size" json:"pool_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// URL returns the host:port pair used in connection error reports.
func (q QdrantConfig) URL() string {
	return fmt.Sprintf("%s:%d", q.Host, q.Port)
}

// EmbeddingConfig selects and wires the embedding backend.
type EmbeddingConfig struct {
	// Backend is "openai" or "local". The local backend is deterministic
	// and needs no network.
	Backend        string `yaml:"backend" json:"backend"`
	Model          string `yaml:"model" json:"model"`
	Dimension      int    `yaml:"dimension" json:"dimension"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	APIKey         string `yaml:"api_key" json:"-"` // never serialized
	RequestTimeout int    `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries" json:"max_retries"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	TTLDays int    `yaml:"ttl_days" json:"ttl_days"`
	Path    string `yaml:"path" json:"path"`
	// Backend is "sqlite", "redis", or "memory".
	Backend   string `yaml:"backend" json:"backend"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	MaxMemory int    `yaml:"max_entries" json:"max_entries"`
}

// CompositeWeights are the retrieval re-ranking blend weights.
type CompositeWeights struct {
	Similarity float64 `yaml:"similarity" json:"similarity"`
	Recency    float64 `yaml:"recency" json:"recency"`
	Usage      float64 `yaml:"usage" json:"usage"`
	Lifecycle  float64 `yaml:"lifecycle" json:"lifecycle"`
}

// SearchConfig controls the retrieval pipeline.
type SearchConfig struct {
	DedupFetchMultiplier int              `yaml:"deduplication_fetch_multiplier" json:"deduplication_fetch_multiplier"`
	QueryExpansion       bool             `yaml:"query_expansion" json:"query_expansion"`
	CompositeWeights     CompositeWeights `yaml:"composite_weights" json:"composite_weights"`
}

// MemoryConfig holds memory-service toggles.
type MemoryConfig struct {
	ConversationTracking bool `yaml:"conversation_tracking" json:"conversation_tracking"`
}

// AnalyticsConfig holds analytics toggles.
type AnalyticsConfig struct {
	UsageTracking bool `yaml:"usage_tracking" json:"usage_tracking"`
}

// SessionConfig controls the conversation tracker.
type SessionConfig struct {
	TTLHours       int `yaml:"ttl_hours" json:"ttl_hours"`
	MaxRecent      int `yaml:"max_recent_queries" json:"max_recent_queries"`
	MaxShownIDs    int `yaml:"max_shown_ids" json:"max_shown_ids"`
	SweepMinutes   int `yaml:"sweep_minutes" json:"sweep_minutes"`
	PersistToStore bool `yaml:"persist" json:"persist"`
}

// CrossProjectConfig wires the consent registry.
type CrossProjectConfig struct {
	RegistryPath string `yaml:"registry_path" json:"registry_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// DefaultConfig returns the defaults every load starts from.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ReadOnlyMode:            false,
			OperationTimeoutSeconds: 30,
			ShutdownGraceSeconds:    5,
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			UseTLS:         false,
			Collection:     "semantic_memory",
			PoolSize:       4,
			TimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Backend:        "openai",
			Model:          "text-embedding-3-small",
			Dimension:      384,
			BaseURL:        "https://api.openai.com/v1",
			RequestTimeout: 60,
			MaxRetries:     3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			TTLDays:   7,
			Path:      "./data/embedding_cache.db",
			Backend:   "sqlite",
			RedisAddr: "localhost:6379",
			MaxMemory: 10000,
		},
		Search: SearchConfig{
			DedupFetchMultiplier: 3,
			QueryExpansion:       true,
			CompositeWeights: CompositeWeights{
				Similarity: 0.6,
				Recency:    0.2,
				Usage:      0.1,
				Lifecycle:  0.1,
			},
		},
		Memory: MemoryConfig{
			ConversationTracking: true,
		},
		Analytics: AnalyticsConfig{
			UsageTracking: true,
		},
		Session: SessionConfig{
			TTLHours:     48,
			MaxRecent:    10,
			MaxShownIDs:  1000,
			SweepMinutes: 15,
		},
		CrossProject: CrossProjectConfig{
			RegistryPath: "./data/consent_registry.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then .env and environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile overlays a YAML file. Unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open config file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("READ_ONLY_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.ReadOnlyMode = b
		}
	}
	if v := os.Getenv("OPERATION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.OperationTimeoutSeconds = n
		}
	}

	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Qdrant.Port = n
		}
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Qdrant.APIKey = v
	}
	if v := os.Getenv("QDRANT_USE_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Qdrant.UseTLS = b
		}
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		c.Qdrant.Collection = v
	}
	if v := os.Getenv("QDRANT_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Qdrant.PoolSize = n
		}
	}

	if v := os.Getenv("EMBEDDING_BACKEND"); v != "" {
		c.Embedding.Backend = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.Dimension = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Enabled = b
		}
	}
	if v := os.Getenv("EMBEDDING_CACHE_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLDays = n
		}
	}
	if v := os.Getenv("EMBEDDING_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("EMBEDDING_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}

	if v := os.Getenv("DEDUPLICATION_FETCH_MULTIPLIER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.DedupFetchMultiplier = n
		}
	}
	if v := os.Getenv("USAGE_TRACKING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Analytics.UsageTracking = b
		}
	}
	if v := os.Getenv("CONVERSATION_TRACKING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Memory.ConversationTracking = b
		}
	}

	if v := os.Getenv("SESSION_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.TTLHours = n
		}
	}
	if v := os.Getenv("CONSENT_REGISTRY_PATH"); v != "" {
		c.CrossProject.RegistryPath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.JSON = b
		}
	}
}

// Validate checks value ranges and cross-field coherence.
func (c *Config) Validate() error {
	if c.Server.OperationTimeoutSeconds <= 0 {
		return fmt.Errorf("server.operation_timeout_seconds must be positive, got %d", c.Server.OperationTimeoutSeconds)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant.host cannot be empty")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant.port must be in 1..65535, got %d", c.Qdrant.Port)
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant.collection cannot be empty")
	}
	if c.Qdrant.PoolSize <= 0 {
		return fmt.Errorf("qdrant.pool_size must be positive, got %d", c.Qdrant.PoolSize)
	}

	switch strings.ToLower(c.Embedding.Backend) {
	case "openai", "local":
	default:
		return fmt.Errorf("embedding.backend must be openai or local, got %q", c.Embedding.Backend)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model cannot be empty")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("cache.backend must be sqlite, redis, or memory, got %q", c.Cache.Backend)
	}
	if c.Cache.Enabled && c.Cache.TTLDays <= 0 {
		return fmt.Errorf("cache.ttl_days must be positive when the cache is enabled, got %d", c.Cache.TTLDays)
	}

	if c.Search.DedupFetchMultiplier < 1 {
		return fmt.Errorf("search.deduplication_fetch_multiplier must be at least 1, got %d", c.Search.DedupFetchMultiplier)
	}
	w := c.Search.CompositeWeights
	for name, val := range map[string]float64{
		"similarity": w.Similarity,
		"recency":    w.Recency,
		"usage":      w.Usage,
		"lifecycle":  w.Lifecycle,
	} {
		if val < 0 {
			return fmt.Errorf("search.composite_weights.%s cannot be negative", name)
		}
	}
	if w.Similarity+w.Recency+w.Usage+w.Lifecycle <= 0 {
		return fmt.Errorf("search.composite_weights must not all be zero")
	}

	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("session.ttl_hours must be positive, got %d", c.Session.TTLHours)
	}
	if c.Session.MaxRecent <= 0 {
		return fmt.Errorf("session.max_recent_queries must be positive, got %d", c.Session.MaxRecent)
	}
	if c.Session.MaxShownIDs <= 0 {
		return fmt.Errorf("session.max_shown_ids must be positive, got %d", c.Session.MaxShownIDs)
	}
	return nil
}
