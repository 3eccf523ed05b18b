package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

func newUnit(t *testing.T, content, project string) *types.MemoryUnit {
	t.Helper()
	scope := types.ScopeProject
	if project == "" {
		scope = types.ScopeGlobal
	}
	unit, err := types.NewMemoryUnit(content, types.CategoryFact, scope, project)
	require.NoError(t, err)
	return unit
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	unit := newUnit(t, "the answer is 42", "alpha")
	unit.Tags = []string{"numbers"}
	require.NoError(t, store.Store(ctx, unit, []float64{1, 0, 0}))

	got, err := store.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, unit.Content, got.Content)
	assert.Equal(t, []string{"numbers"}, got.Tags)

	// The stored copy is isolated from caller mutation.
	unit.Content = "mutated"
	again, err := store.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", again.Content)

	_, vec, err := store.GetWithVector(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetByID(context.Background(), "no-such-id")
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStoreSearchOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	near := newUnit(t, "closest match", "alpha")
	mid := newUnit(t, "middling match", "alpha")
	far := newUnit(t, "distant match", "alpha")
	require.NoError(t, store.Store(ctx, near, []float64{1, 0}))
	require.NoError(t, store.Store(ctx, mid, []float64{0.7, 0.7}))
	require.NoError(t, store.Store(ctx, far, []float64{0, 1}))

	results, err := store.Search(ctx, []float64{1, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, near.ID, results[0].Memory.ID)
	assert.Equal(t, mid.ID, results[1].Memory.ID)
	assert.Equal(t, far.ID, results[2].Memory.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
}

func TestMemoryStoreSearchTieBreak(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	older := newUnit(t, "same direction older", "alpha")
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := newUnit(t, "same direction newer", "alpha")
	newer.CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Store(ctx, older, []float64{1, 0}))
	require.NoError(t, store.Store(ctx, newer, []float64{1, 0}))

	results, err := store.Search(ctx, []float64{1, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Equal scores break newest-first.
	assert.Equal(t, newer.ID, results[0].Memory.ID)
}

func TestMemoryStoreSearchFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	alpha := newUnit(t, "project alpha note", "alpha")
	beta := newUnit(t, "project beta note", "beta")
	require.NoError(t, store.Store(ctx, alpha, []float64{1, 0}))
	require.NoError(t, store.Store(ctx, beta, []float64{1, 0}))

	results, err := store.Search(ctx, []float64{1, 0}, &types.SearchFilters{ProjectName: "beta"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, beta.ID, results[0].Memory.ID)
}

func TestMemoryStoreUpdateAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	unit := newUnit(t, "original content", "alpha")
	require.NoError(t, store.Store(ctx, unit, []float64{1}))

	updated := unit.Clone()
	updated.Content = "revised content"
	require.NoError(t, store.Update(ctx, updated, []float64{1}))

	got, err := store.GetByID(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised content", got.Content)

	missing := newUnit(t, "never stored", "alpha")
	assert.True(t, errors.IsNotFound(store.Update(ctx, missing, []float64{1})))

	require.NoError(t, store.Delete(ctx, unit.ID))
	assert.True(t, errors.IsNotFound(store.Delete(ctx, unit.ID)))
}

func TestMemoryStoreBatchStoreCollectsFailures(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	good := newUnit(t, "valid entry", "alpha")
	bad := newUnit(t, "will be broken", "alpha")
	bad.Importance = 5 // out of range

	result, err := store.BatchStore(ctx,
		[]*types.MemoryUnit{good, bad},
		[][]float64{{1}, {1}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, []string{good.ID}, result.ProcessedIDs)
}

func TestMemoryStoreDeleteByFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		unit := newUnit(t, fmt.Sprintf("alpha note %d", i), "alpha")
		if i == 0 {
			unit.Importance = 0.9
		}
		require.NoError(t, store.Store(ctx, unit, []float64{1}))
	}
	keep := newUnit(t, "beta note", "beta")
	require.NoError(t, store.Store(ctx, keep, []float64{1}))

	filters := &types.SearchFilters{ProjectName: "alpha"}

	dry, err := store.DeleteByFilter(ctx, filters, 0, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 3, dry.DeletedCount)
	assert.Equal(t, 1, dry.HighImportanceCount)
	assert.Equal(t, 3, dry.Breakdown.ByProject["alpha"])

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "dry run must not mutate")

	applied, err := store.DeleteByFilter(ctx, filters, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 3, applied.DeletedCount)

	count, err = store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreDeleteByFilterCap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Store(ctx, newUnit(t, fmt.Sprintf("note %d", i), "alpha"), []float64{1}))
	}

	result, err := store.DeleteByFilter(ctx, nil, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeletedCount)

	count, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryStoreListSortingAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		unit := newUnit(t, fmt.Sprintf("entry %d", i), "alpha")
		unit.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		unit.Importance = float64(i) / 10
		require.NoError(t, store.Store(ctx, unit, []float64{1}))
		ids = append(ids, unit.ID)
	}

	page, total, err := store.List(ctx, nil, SortByCreatedAt, types.SortDesc, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, _, err = store.List(ctx, nil, SortByImportance, types.SortAsc, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[0], page[0].ID)

	page, total, err = store.List(ctx, nil, SortByCreatedAt, types.SortDesc, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	// Offset past the end yields an empty page, not an error.
	page, total, err = store.List(ctx, nil, SortByCreatedAt, types.SortDesc, 10, 99)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, page)

	_, _, err = store.List(ctx, nil, "access_count", types.SortDesc, 10, 0)
	assert.True(t, errors.IsValidation(err))
}

func TestMemoryStoreProjectsAndStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, newUnit(t, "one", "beta"), []float64{1}))
	require.NoError(t, store.Store(ctx, newUnit(t, "two", "alpha"), []float64{1}))
	require.NoError(t, store.Store(ctx, newUnit(t, "three", "alpha"), []float64{1}))
	require.NoError(t, store.Store(ctx, newUnit(t, "global note", ""), []float64{1}))

	projects, err := store.GetAllProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, projects)

	stats, err := store.GetProjectStats(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MemoryCount)
	assert.Equal(t, 2, stats.ByCategory[string(types.CategoryFact)])
	assert.InDelta(t, 0.5, stats.AvgImportance, 1e-9)
	require.NotNil(t, stats.OldestMemory)
	require.NotNil(t, stats.NewestMemory)

	all, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, all.TotalMemories)
	assert.Equal(t, 1, all.ByProject[string(types.ScopeGlobal)])
	assert.Equal(t, 2, all.ByProject["alpha"])
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	err := store.Store(context.Background(), newUnit(t, "too late", ""), []float64{1})
	assert.True(t, errors.IsStorageUnavailable(err))
	assert.Error(t, store.HealthCheck(context.Background()))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	// Opposite vectors clamp to zero rather than going negative.
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}
