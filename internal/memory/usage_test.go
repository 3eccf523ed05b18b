package memory

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/pkg/types"
)

var testWeights = config.CompositeWeights{Similarity: 0.6, Recency: 0.2, Usage: 0.1, Lifecycle: 0.1}

func TestCompositeScoreFreshUnusedMemory(t *testing.T) {
	tracker := NewUsageTracker(testWeights)
	now := time.Now().UTC()
	tracker.nowFn = func() time.Time { return now }

	m := mustUnit(t, "fresh", types.CategoryFact)
	m.LastAccessed = time.Time{}

	// Never used: recency 1, usage 0, lifecycle ACTIVE = 1.
	want := 0.6*0.8 + 0.2*1 + 0.1*0 + 0.1*1
	assert.InDelta(t, want, tracker.CompositeScore(m, 0.8), 1e-9)
}

func TestCompositeScoreRecencyHalfLife(t *testing.T) {
	tracker := NewUsageTracker(testWeights)
	now := time.Now().UTC()
	tracker.nowFn = func() time.Time { return now }

	m := mustUnit(t, "aging", types.CategoryFact)
	m.LastAccessed = now.Add(-7 * 24 * time.Hour)

	want := 0.6*0.8 + 0.2*0.5 + 0.1*0 + 0.1*1
	assert.InDelta(t, want, tracker.CompositeScore(m, 0.8), 1e-9)
}

func TestCompositeScoreUsageTerm(t *testing.T) {
	tracker := NewUsageTracker(testWeights)
	now := time.Now().UTC()
	tracker.nowFn = func() time.Time { return now }

	m := mustUnit(t, "popular", types.CategoryFact)
	m.AccessCount = 100
	m.LastAccessed = now

	// 100 uses saturate the usage term at 1.
	want := 0.6*0.5 + 0.2*1 + 0.1*1 + 0.1*1
	assert.InDelta(t, want, tracker.CompositeScore(m, 0.5), 1e-9)

	m.AccessCount = 10
	usageTerm := math.Log1p(10) / math.Log1p(100)
	want = 0.6*0.5 + 0.2*1 + 0.1*usageTerm + 0.1*1
	assert.InDelta(t, want, tracker.CompositeScore(m, 0.5), 1e-9)
}

func TestCompositeScoreLifecycleDecay(t *testing.T) {
	tracker := NewUsageTracker(testWeights)
	now := time.Now().UTC()
	tracker.nowFn = func() time.Time { return now }

	m := mustUnit(t, "stale", types.CategoryFact)
	m.LastAccessed = now

	active := tracker.CompositeScore(m, 0.5)
	m.LifecycleState = types.LifecycleArchived
	archived := tracker.CompositeScore(m, 0.5)
	assert.Less(t, archived, active)
}

func TestCompositeScoreClamped(t *testing.T) {
	tracker := NewUsageTracker(config.CompositeWeights{Similarity: 2, Recency: 1, Usage: 1, Lifecycle: 1})
	m := mustUnit(t, "clamped", types.CategoryFact)
	assert.Equal(t, 1.0, tracker.CompositeScore(m, 1.0))
}

func TestRecordBatchUsageOverlay(t *testing.T) {
	tracker := NewUsageTracker(testWeights)

	tracker.RecordBatchUsage([]string{"a", "b"})
	tracker.RecordBatchUsage([]string{"a"})
	assert.Equal(t, int64(2), tracker.UseCount("a"))
	assert.Equal(t, int64(1), tracker.UseCount("b"))
	assert.Equal(t, int64(0), tracker.UseCount("c"))
}

func TestRerankOrdersByComposite(t *testing.T) {
	tracker := NewUsageTracker(testWeights)
	now := time.Now().UTC()
	tracker.nowFn = func() time.Time { return now }

	var results []types.ScoredMemory
	for i := 0; i < 3; i++ {
		m := mustUnit(t, fmt.Sprintf("result %d", i), types.CategoryFact)
		m.ID = fmt.Sprintf("id-%d", i)
		m.CreatedAt = now
		m.LastAccessed = now
		results = append(results, types.ScoredMemory{Memory: m, Score: 0.5})
	}
	// Equal similarity: heavy usage on the last entry should promote it.
	tracker.RecordBatchUsage([]string{"id-2", "id-2", "id-2"})

	reranked := tracker.Rerank(results)
	assert.Equal(t, "id-2", reranked[0].Memory.ID)
	// Remaining tie broken by id ascending (same created_at).
	assert.Equal(t, "id-0", reranked[1].Memory.ID)
	assert.Equal(t, "id-1", reranked[2].Memory.ID)
	for _, r := range reranked {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}
