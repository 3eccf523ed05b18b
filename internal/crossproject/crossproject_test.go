package crossproject

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(filepath.Join(t.TempDir(), "consent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func newSearchHarness(t *testing.T) (*Searcher, *Registry, *storage.MemoryStore, *embeddings.Service) {
	t.Helper()
	registry := newRegistry(t)
	store := storage.NewMemoryStore()
	emb := embeddings.NewService(
		embeddings.NewLocalGenerator("test-model", 32),
		embeddings.NewMemoryCache(1000, time.Hour))
	t.Cleanup(func() { _ = emb.Close() })
	return NewSearcher(registry, store, emb), registry, store, emb
}

func seedProject(t *testing.T, store storage.VectorStore, emb *embeddings.Service, project, content string) *types.MemoryUnit {
	t.Helper()
	ctx := context.Background()
	unit, err := types.NewMemoryUnit(content, types.CategoryFact, types.ScopeProject, project)
	require.NoError(t, err)
	vector, err := emb.GetEmbedding(ctx, content)
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, unit, vector))
	return unit
}

func TestRegistryOptInOutIdempotent(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	status, err := registry.Status(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, StatusOptedOut, status, "unknown projects are opted out")

	require.NoError(t, registry.OptIn(ctx, "alpha"))
	require.NoError(t, registry.OptIn(ctx, "alpha"))
	status, err = registry.Status(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, StatusOptedIn, status)

	require.NoError(t, registry.OptOut(ctx, "alpha"))
	require.NoError(t, registry.OptOut(ctx, "alpha"))
	status, err = registry.Status(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, StatusOptedOut, status)

	err = registry.OptIn(ctx, "  ")
	assert.True(t, errors.IsValidation(err))
}

func TestRegistryOptedInSorted(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.OptIn(ctx, "zulu"))
	require.NoError(t, registry.OptIn(ctx, "alpha"))
	require.NoError(t, registry.OptIn(ctx, "mike"))
	require.NoError(t, registry.OptOut(ctx, "mike"))

	projects, err := registry.OptedIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zulu"}, projects)
}

func TestSearchNoOptIns(t *testing.T) {
	searcher, _, _, _ := newSearchHarness(t)

	result, err := searcher.Search(context.Background(), "anything", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.ProjectsSearched)
	assert.NotEmpty(t, result.Message, "empty opt-in set is informational, not an error")
}

func TestSearchFansOutAndMerges(t *testing.T) {
	searcher, registry, store, emb := newSearchHarness(t)
	ctx := context.Background()

	content := "shared deployment checklist"
	alphaUnit := seedProject(t, store, emb, "alpha", content)
	betaUnit := seedProject(t, store, emb, "beta", content)
	seedProject(t, store, emb, "gamma", content) // never opted in

	require.NoError(t, registry.OptIn(ctx, "alpha"))
	require.NoError(t, registry.OptIn(ctx, "beta"))

	result, err := searcher.Search(ctx, content, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, result.ProjectsSearched)
	assert.Empty(t, result.FailedProjects)
	assert.GreaterOrEqual(t, result.QueryTimeMs, int64(0))

	ids := make(map[string]bool)
	for _, r := range result.Results {
		ids[r.Memory.ID] = true
		assert.NotEqual(t, "gamma", r.Memory.ProjectName, "non-consenting projects stay invisible")
	}
	assert.True(t, ids[alphaUnit.ID])
	assert.True(t, ids[betaUnit.ID])
}

func TestSearchTruncatesToLimit(t *testing.T) {
	searcher, registry, store, emb := newSearchHarness(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		seedProject(t, store, emb, "alpha", fmt.Sprintf("alpha note %d", i))
		seedProject(t, store, emb, "beta", fmt.Sprintf("beta note %d", i))
	}
	require.NoError(t, registry.OptIn(ctx, "alpha"))
	require.NoError(t, registry.OptIn(ctx, "beta"))

	result, err := searcher.Search(ctx, "note", nil, 3)
	require.NoError(t, err)
	assert.Len(t, result.Results, 3, "merged results truncate to the caller's limit")
	for i := 1; i < len(result.Results); i++ {
		assert.GreaterOrEqual(t, result.Results[i-1].Score, result.Results[i].Score)
	}
}

// flakyStore fails searches against one project to exercise partial failure.
type flakyStore struct {
	*storage.MemoryStore
	failProject string
}

func (f *flakyStore) Search(ctx context.Context, vector []float64, filters *types.SearchFilters, limit int) ([]types.ScoredMemory, error) {
	if filters != nil && filters.ProjectName == f.failProject {
		return nil, errors.NewStorageUnavailable("simulated backend outage", nil)
	}
	return f.MemoryStore.Search(ctx, vector, filters, limit)
}

func TestSearchReportsPartialFailure(t *testing.T) {
	registry := newRegistry(t)
	base := storage.NewMemoryStore()
	emb := embeddings.NewService(
		embeddings.NewLocalGenerator("test-model", 32),
		embeddings.NewMemoryCache(1000, time.Hour))
	t.Cleanup(func() { _ = emb.Close() })

	store := &flakyStore{MemoryStore: base, failProject: "beta"}
	searcher := NewSearcher(registry, store, emb)
	ctx := context.Background()

	alphaUnit := seedProject(t, base, emb, "alpha", "resilient memory")
	seedProject(t, base, emb, "beta", "unreachable memory")
	require.NoError(t, registry.OptIn(ctx, "alpha"))
	require.NoError(t, registry.OptIn(ctx, "beta"))

	result, err := searcher.Search(ctx, "resilient memory", nil, 5)
	require.NoError(t, err, "one project failing is not fatal")
	require.Len(t, result.FailedProjects, 1)
	assert.Equal(t, "beta", result.FailedProjects[0].Project)
	assert.Contains(t, result.FailedProjects[0].Error, "outage")

	found := false
	for _, r := range result.Results {
		if r.Memory.ID == alphaUnit.ID {
			found = true
		}
	}
	assert.True(t, found, "surviving projects still return results")
}

func TestSearchValidation(t *testing.T) {
	searcher, _, _, _ := newSearchHarness(t)
	_, err := searcher.Search(context.Background(), "   ", nil, 5)
	assert.True(t, errors.IsValidation(err))
}
