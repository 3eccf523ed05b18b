package memory

import (
	"math"
	"sort"
	"sync"
	"time"

	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/pkg/types"
)

// recencyHalfLife controls how fast the recency signal decays; a memory
// untouched for one half-life scores 0.5.
const recencyHalfLife = 7 * 24 * time.Hour

// UsageTracker keeps an in-memory overlay of per-memory usage counters and
// blends them into the composite retrieval score.
type UsageTracker struct {
	mu      sync.RWMutex
	usage   map[string]*usageEntry
	weights config.CompositeWeights
	nowFn   func() time.Time
}

type usageEntry struct {
	UseCount int64
	LastUsed time.Time
}

// NewUsageTracker builds a tracker with the configured composite weights.
func NewUsageTracker(weights config.CompositeWeights) *UsageTracker {
	return &UsageTracker{
		usage:   make(map[string]*usageEntry),
		weights: weights,
		nowFn:   time.Now,
	}
}

// RecordBatchUsage counts one use for each id.
func (u *UsageTracker) RecordBatchUsage(ids []string) {
	now := u.nowFn()
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range ids {
		entry, ok := u.usage[id]
		if !ok {
			entry = &usageEntry{}
			u.usage[id] = entry
		}
		entry.UseCount++
		entry.LastUsed = now
	}
}

// UseCount returns the tracked use count for an id.
func (u *UsageTracker) UseCount(id string) int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if entry, ok := u.usage[id]; ok {
		return entry.UseCount
	}
	return 0
}

// recency maps the age of the last use onto (0,1] with exponential decay.
func recency(lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() || !lastUsed.Before(now) {
		return 1
	}
	age := now.Sub(lastUsed)
	return math.Exp2(-float64(age) / float64(recencyHalfLife))
}

// CompositeScore blends similarity with recency, usage, and lifecycle decay.
// The result is clamped to [0,1].
func (u *UsageTracker) CompositeScore(m *types.MemoryUnit, similarity float64) float64 {
	now := u.nowFn()

	lastUsed := m.LastAccessed
	useCount := m.AccessCount
	u.mu.RLock()
	if entry, ok := u.usage[m.ID]; ok {
		if entry.LastUsed.After(lastUsed) {
			lastUsed = entry.LastUsed
		}
		useCount += entry.UseCount
	}
	u.mu.RUnlock()

	// log1p keeps the usage term smooth; it saturates via the final clamp.
	usageTerm := math.Log1p(float64(useCount)) / math.Log1p(100)
	if usageTerm > 1 {
		usageTerm = 1
	}

	score := u.weights.Similarity*similarity +
		u.weights.Recency*recency(lastUsed, now) +
		u.weights.Usage*usageTerm +
		u.weights.Lifecycle*m.LifecycleState.DecayWeight()
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Rerank sorts results by composite score descending, breaking ties by
// created_at descending then id.
func (u *UsageTracker) Rerank(results []types.ScoredMemory) []types.ScoredMemory {
	reranked := make([]types.ScoredMemory, len(results))
	for i, r := range results {
		reranked[i] = types.ScoredMemory{
			Memory: r.Memory,
			Score:  u.CompositeScore(r.Memory, r.Score),
		}
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		if !reranked[i].Memory.CreatedAt.Equal(reranked[j].Memory.CreatedAt) {
			return reranked[i].Memory.CreatedAt.After(reranked[j].Memory.CreatedAt)
		}
		return reranked[i].Memory.ID < reranked[j].Memory.ID
	})
	return reranked
}
