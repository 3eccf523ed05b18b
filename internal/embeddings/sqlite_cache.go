package embeddings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	// SQLite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"

	"mcp-semantic-memory/internal/logging"
)

// SQLiteCache is the persistent embedding cache. Entries survive restarts
// and expire after the configured TTL.
type SQLiteCache struct {
	db     *sql.DB
	ttl    time.Duration
	logger logging.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

const sqliteCacheSchema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	key        TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dimension  INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	created_at INTEGER NOT NULL -- unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_created ON embedding_cache(created_at);
`

// NewSQLiteCache opens (creating if needed) the cache database at path.
func NewSQLiteCache(path string, ttl time.Duration) (*SQLiteCache, error) {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open embedding cache %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteCacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot initialize embedding cache schema: %w", err)
	}

	cache := &SQLiteCache{
		db:     db,
		ttl:    ttl,
		logger: logging.WithComponent("embedding-cache"),
	}
	if purged, err := cache.purgeExpired(); err == nil && purged > 0 {
		cache.logger.Info("purged expired cache entries", "count", purged)
	}
	return cache, nil
}

// Get returns the cached vector for (model, text) if present and fresh.
func (c *SQLiteCache) Get(ctx context.Context, model, text string) ([]float64, bool) {
	key := CacheKey(model, text)
	cutoff := time.Now().Add(-c.ttl).UnixMilli()

	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT vector FROM embedding_cache WHERE key = ? AND created_at >= ?`,
		key, cutoff,
	).Scan(&blob)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	var vector []float64
	if err := json.Unmarshal(blob, &vector); err != nil {
		// Corrupt row: drop it rather than serve garbage.
		_, _ = c.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE key = ?`, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return vector, true
}

// Put upserts a vector for (model, text), refreshing its TTL window.
func (c *SQLiteCache) Put(ctx context.Context, model, text string, vector []float64) error {
	if len(vector) == 0 {
		return nil
	}
	blob, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("cannot encode embedding: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO embedding_cache (key, model, dimension, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at`,
		CacheKey(model, text), model, len(vector), blob, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cannot store embedding: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the cache counters and current size.
func (c *SQLiteCache) Stats() CacheStats {
	var size int
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&size)

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Size:    size,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
		TTL:     c.ttl,
	}
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) purgeExpired() (int64, error) {
	cutoff := time.Now().Add(-c.ttl).UnixMilli()
	res, err := c.db.Exec(`DELETE FROM embedding_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
