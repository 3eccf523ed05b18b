package embeddings

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process LRU cache with TTL. It backs the "memory"
// cache backend and the tests.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]*memEntry
	lru       *list.List
	maxSize   int
	ttl       time.Duration
	hits      int64
	misses    int64
	evictions int64
	expired   int64
}

type memEntry struct {
	key       string
	vector    []float64
	element   *list.Element
	createdAt time.Time
}

// NewMemoryCache creates an LRU cache holding at most maxSize vectors.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &MemoryCache{
		entries: make(map[string]*memEntry),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached vector for (model, text) if present and fresh.
func (c *MemoryCache) Get(_ context.Context, model, text string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := CacheKey(model, text)
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.removeEntry(entry)
		c.expired++
		c.misses++
		return nil, false
	}

	c.lru.MoveToFront(entry.element)
	c.hits++

	out := make([]float64, len(entry.vector))
	copy(out, entry.vector)
	return out, true
}

// Put stores a vector, evicting the least recently used entries when full.
func (c *MemoryCache) Put(_ context.Context, model, text string, vector []float64) error {
	if len(vector) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := CacheKey(model, text)
	now := time.Now()

	if entry, ok := c.entries[key]; ok {
		entry.vector = append([]float64(nil), vector...)
		entry.createdAt = now
		c.lru.MoveToFront(entry.element)
		return nil
	}

	entry := &memEntry{
		key:       key,
		vector:    append([]float64(nil), vector...),
		createdAt: now,
	}
	entry.element = c.lru.PushFront(entry)
	c.entries[key] = entry

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeEntry(oldest.Value.(*memEntry))
		c.evictions++
	}
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:      c.lru.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		HitRate:   hitRate,
		TTL:       c.ttl,
	}
}

// CleanExpired removes expired entries, oldest first.
func (c *MemoryCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for current := c.lru.Back(); current != nil; {
		entry := current.Value.(*memEntry)
		if time.Since(entry.createdAt) <= c.ttl {
			current = current.Prev()
			continue
		}
		prev := current.Prev()
		c.removeEntry(entry)
		c.expired++
		cleaned++
		current = prev
	}
	return cleaned
}

// Close is a no-op for the in-memory cache.
func (c *MemoryCache) Close() error {
	return nil
}

func (c *MemoryCache) removeEntry(entry *memEntry) {
	delete(c.entries, entry.key)
	c.lru.Remove(entry.element)
}
