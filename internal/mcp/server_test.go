package mcp

import (
	"context"
	goerrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-semantic-memory/internal/analytics"
	"mcp-semantic-memory/internal/codeindex"
	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/crossproject"
	"mcp-semantic-memory/internal/dedup"
	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/memory"
	"mcp-semantic-memory/internal/session"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

func newTestServer(t *testing.T, serviceCfg memory.ServiceConfig) *Server {
	t.Helper()

	store := storage.NewMemoryStore()
	emb := embeddings.NewService(
		embeddings.NewLocalGenerator("test-model", 32),
		embeddings.NewMemoryCache(1000, time.Hour))
	tracker := session.NewTracker(config.SessionConfig{TTLHours: 48, MaxRecent: 10, MaxShownIDs: 100})
	collector := analytics.NewCollector()

	if serviceCfg.Weights == (config.CompositeWeights{}) {
		serviceCfg.Weights = config.CompositeWeights{Similarity: 0.6, Recency: 0.2, Usage: 0.1, Lifecycle: 0.1}
	}
	svc := memory.NewService(store, emb, tracker, collector, serviceCfg)

	detector, err := dedup.NewDetector(store, emb, dedup.DefaultThresholds())
	require.NoError(t, err)

	registry, err := crossproject.NewRegistry(filepath.Join(t.TempDir(), "consent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	return NewServer(config.DefaultConfig(), Deps{
		Memory:        svc,
		Dedup:         detector,
		Relationships: dedup.NewRelationshipDetector(store, emb),
		CodeIndex:     codeindex.NewIndexer(store, emb),
		CrossProject:  crossproject.NewSearcher(registry, store, emb),
		Registry:      registry,
		Analytics:     collector,
	})
}

func TestDriveAssignsOperationIDAndDeadline(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})

	var seenOpID string
	var hadDeadline bool
	handler := s.drive("probe_op", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		seenOpID = logging.GetOperationID(ctx)
		_, hadDeadline = ctx.Deadline()
		return "ok", nil
	})

	result, err := handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Len(t, seenOpID, 8)
	assert.True(t, hadDeadline)

	usage := s.analytics.Usage()
	assert.Equal(t, int64(1), usage.OperationCounts["probe_op"])
}

func TestDriveInheritsOperationID(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})

	var seenOpID string
	handler := s.drive("probe_op", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		seenOpID = logging.GetOperationID(ctx)
		return nil, nil
	})

	ctx := logging.WithOperationID(context.Background(), "cafe0123")
	_, err := handler(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "cafe0123", seenOpID)
}

func TestDriveMapsErrorsToTaxonomy(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})

	handler := s.drive("probe_op", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, goerrors.New("backend exploded")
	})

	_, err := handler(context.Background(), nil)
	require.Error(t, err)
	memErr, ok := errors.AsMemoryError(err)
	require.True(t, ok, "driver wraps plain errors into the taxonomy")
	assert.Contains(t, memErr.Message, "backend exploded")

	usage := s.analytics.Usage()
	assert.Equal(t, int64(1), usage.OperationCounts["probe_op"])
}

func TestStoreAndRetrieveThroughHandlers(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	stored, err := s.handleStoreMemory(ctx, map[string]interface{}{
		"content":    "User prefers Python over JavaScript for backend",
		"category":   "PREFERENCE",
		"importance": 0.9,
		"tags":       []interface{}{"Language", "preference"},
	})
	require.NoError(t, err)
	response := stored.(map[string]interface{})
	memoryID := response["memory_id"].(string)
	assert.NotEmpty(t, memoryID)
	assert.Equal(t, types.ContextUserPreference, response["context_level"])

	retrieved, err := s.handleRetrieveMemories(ctx, map[string]interface{}{
		"query": "language preference",
		"limit": float64(5),
	})
	require.NoError(t, err)
	result := retrieved.(*types.RetrieveResult)
	require.NotEmpty(t, result.Results)
	assert.Equal(t, memoryID, result.Results[0].Memory.ID)
}

func TestStoreMemoryRequiresContentAndCategory(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	_, err := s.handleStoreMemory(ctx, map[string]interface{}{"category": "FACT"})
	assert.True(t, errors.IsValidation(err))

	_, err = s.handleStoreMemory(ctx, map[string]interface{}{"content": "something"})
	assert.True(t, errors.IsValidation(err))
}

func TestReadOnlyRejectionThroughHandler(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{ReadOnly: true})

	_, err := s.handleStoreMemory(context.Background(), map[string]interface{}{
		"content":  "should not land",
		"category": "FACT",
	})
	require.Error(t, err)
	assert.True(t, errors.IsReadOnly(err))
}

func TestUpdateMemoryHandlerDecodesPointers(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	stored, err := s.handleStoreMemory(ctx, map[string]interface{}{
		"content":  "The staging cluster lives in eu-west-1",
		"category": "FACT",
	})
	require.NoError(t, err)
	memoryID := stored.(map[string]interface{})["memory_id"].(string)

	updated, err := s.handleUpdateMemory(ctx, map[string]interface{}{
		"memory_id":  memoryID,
		"importance": 0.95,
	})
	require.NoError(t, err)
	unit := updated.(*types.MemoryUnit)
	assert.InDelta(t, 0.95, unit.Importance, 1e-9)
	assert.Equal(t, "The staging cluster lives in eu-west-1", unit.Content)

	_, err = s.handleUpdateMemory(ctx, map[string]interface{}{"memory_id": memoryID})
	assert.True(t, errors.IsValidation(err), "no field besides memory_id")
}

func TestDeleteByQueryHandlerTopLevelFilters(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.handleStoreMemory(ctx, map[string]interface{}{
			"content":      "disposable note about deploys",
			"category":     "FACT",
			"scope":        "PROJECT",
			"project_name": "cleanup-target",
		})
		require.NoError(t, err)
	}

	preview, err := s.handleDeleteByQuery(ctx, map[string]interface{}{
		"project_name": "cleanup-target",
		"dry_run":      true,
	})
	require.NoError(t, err)
	previewResult := preview.(*memory.DeleteByQueryResult)
	assert.True(t, previewResult.Preview)
	assert.Equal(t, 3, previewResult.TotalMatches)
	assert.Equal(t, 0, previewResult.DeletedCount)

	deleted, err := s.handleDeleteByQuery(ctx, map[string]interface{}{
		"project_name": "cleanup-target",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, deleted.(*memory.DeleteByQueryResult).DeletedCount)
}

func TestFindDuplicatesHandlerByID(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	first, err := s.handleStoreMemory(ctx, map[string]interface{}{
		"content":  "Rotate the API keys every ninety days",
		"category": "FACT",
	})
	require.NoError(t, err)
	_, err = s.handleStoreMemory(ctx, map[string]interface{}{
		"content":  "Rotate the API keys every ninety days",
		"category": "FACT",
	})
	require.NoError(t, err)

	memoryID := first.(map[string]interface{})["memory_id"].(string)
	result, err := s.handleFindDuplicates(ctx, map[string]interface{}{"memory_id": memoryID})
	require.NoError(t, err)
	payload := result.(map[string]interface{})
	duplicates := payload["duplicates"].([]types.ScoredMemory)
	require.Len(t, duplicates, 1)
	assert.InDelta(t, 1.0, duplicates[0].Score, 1e-6)
}

func TestCrossProjectHandlersRoundTrip(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	empty, err := s.handleSearchAllProjects(ctx, map[string]interface{}{"query": "anything"})
	require.NoError(t, err)
	assert.NotEmpty(t, empty.(*crossproject.SearchResult).Message)

	_, err = s.handleOptIn(ctx, map[string]interface{}{"project_name": "alpha"})
	require.NoError(t, err)
	_, err = s.handleOptIn(ctx, map[string]interface{}{"project_name": "alpha"})
	require.NoError(t, err, "opt-in is idempotent")

	_, err = s.handleStoreMemory(ctx, map[string]interface{}{
		"content":      "alpha uses feature flags for rollouts",
		"category":     "FACT",
		"scope":        "PROJECT",
		"project_name": "alpha",
	})
	require.NoError(t, err)

	found, err := s.handleSearchAllProjects(ctx, map[string]interface{}{"query": "feature flags rollouts"})
	require.NoError(t, err)
	searchResult := found.(*crossproject.SearchResult)
	assert.Equal(t, []string{"alpha"}, searchResult.ProjectsSearched)
	assert.NotEmpty(t, searchResult.Results)

	listed, err := s.handleListOptedIn(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, listed.(map[string]interface{})["projects"])
}

func TestAnalyticsHandlers(t *testing.T) {
	s := newTestServer(t, memory.ServiceConfig{})
	ctx := context.Background()

	_, err := s.handleSubmitFeedback(ctx, map[string]interface{}{"rating": "HELPFUL"})
	require.NoError(t, err)
	_, err = s.handleSubmitFeedback(ctx, map[string]interface{}{"rating": "SHRUG"})
	assert.True(t, errors.IsValidation(err))

	quality, err := s.handleQualityMetrics(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), quality.(*analytics.QualityMetrics).FeedbackCount)

	health, err := s.handleHealthScore(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, health.(*analytics.HealthReport).Status)

	forecast, err := s.handleCapacityForecast(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, forecast.(*analytics.CapacityForecast).CurrentMemories)

	_, err = s.handleResolveAlert(ctx, map[string]interface{}{"alert_id": "missing"})
	assert.True(t, errors.IsNotFound(err))
}

func TestDecodeFiltersEmptyIsNil(t *testing.T) {
	filters, err := decodeFilters(map[string]interface{}{"dry_run": true, "limit": float64(5)})
	require.NoError(t, err)
	assert.Nil(t, filters)

	filters, err = decodeFilters(map[string]interface{}{"project_name": "alpha", "category": "FACT"})
	require.NoError(t, err)
	require.NotNil(t, filters)
	assert.Equal(t, "alpha", filters.ProjectName)
	require.NotNil(t, filters.Category)
	assert.Equal(t, types.CategoryFact, *filters.Category)
}

func TestOptionalArgHelpers(t *testing.T) {
	args := map[string]interface{}{
		"count":  float64(7),
		"flag":   true,
		"name":   "thing",
		"weight": 0.4,
		"tags":   []interface{}{"a", "b", 3},
	}

	assert.Equal(t, 7, optionalInt(args, "count", 1))
	assert.Equal(t, 1, optionalInt(args, "missing", 1))
	assert.True(t, optionalBool(args, "flag"))
	assert.Equal(t, "thing", optionalString(args, "name"))
	require.NotNil(t, optionalFloat(args, "weight"))
	assert.InDelta(t, 0.4, *optionalFloat(args, "weight"), 1e-9)
	assert.Nil(t, optionalFloat(args, "missing"))
	assert.Equal(t, []string{"a", "b"}, optionalStringSlice(args, "tags"))

	_, err := stringArg(args, "missing")
	assert.True(t, errors.IsValidation(err))
}
