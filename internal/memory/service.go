// Package memory implements the operation core: store, retrieve, update,
// delete, list, merge, scope migration, reclassification, and export/import
// over the memory data model.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mcp-semantic-memory/internal/classify"
	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/query"
	"mcp-semantic-memory/internal/session"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

// Recorder receives operation metrics. The analytics service implements it;
// a nil recorder disables collection.
type Recorder interface {
	RecordOperation(name string, latency time.Duration, isError bool)
	RecordSearch(queryText string, latency time.Duration, usedCache bool, resultCount int)
}

// ServiceConfig carries the toggles the service honors.
type ServiceConfig struct {
	ReadOnly             bool
	DedupFetchMultiplier int
	QueryExpansion       bool
	UsageTracking        bool
	ConversationTracking bool
	Weights              config.CompositeWeights
}

// Service is the memory operation core. It depends on the store adapter and
// embedding service; tracker, usage tracker, and recorder are optional.
type Service struct {
	store      storage.VectorStore
	embeddings *embeddings.Service
	tracker    *session.Tracker
	usage      *UsageTracker
	recorder   Recorder
	cfg        ServiceConfig
	logger     logging.Logger

	memoriesStored   atomic.Int64
	queriesProcessed atomic.Int64
}

// NewService wires the operation core.
func NewService(store storage.VectorStore, emb *embeddings.Service, tracker *session.Tracker, recorder Recorder, cfg ServiceConfig) *Service {
	if cfg.DedupFetchMultiplier < 1 {
		cfg.DedupFetchMultiplier = 3
	}
	s := &Service{
		store:      store,
		embeddings: emb,
		tracker:    tracker,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logging.WithComponent("memory"),
	}
	if cfg.UsageTracking {
		s.usage = NewUsageTracker(cfg.Weights)
	}
	return s
}

// Store returns the underlying vector store.
func (s *Service) Store() storage.VectorStore { return s.store }

// Embeddings returns the embedding service.
func (s *Service) Embeddings() *embeddings.Service { return s.embeddings }

// ReadOnly reports whether mutating operations are rejected.
func (s *Service) ReadOnly() bool { return s.cfg.ReadOnly }

func (s *Service) rejectIfReadOnly(operation string) error {
	if s.cfg.ReadOnly {
		return errors.NewReadOnly(operation)
	}
	return nil
}

func (s *Service) record(name string, start time.Time, err error) {
	if s.recorder != nil {
		s.recorder.RecordOperation(name, time.Since(start), err != nil)
	}
}

// StoreRequest is the store_memory contract.
type StoreRequest struct {
	Content      string
	Category     types.MemoryCategory
	Scope        types.MemoryScope
	ProjectName  string
	Importance   *float64
	Tags         []string
	Metadata     map[string]interface{}
	ContextLevel *types.ContextLevel
	Provenance   *types.MemoryProvenance
}

// StoreResult reports the stored id and the (possibly auto-classified)
// context level.
type StoreResult struct {
	ID           string             `json:"memory_id"`
	ContextLevel types.ContextLevel `json:"context_level"`
}

// StoreMemory validates, classifies, embeds, and persists a new unit.
func (s *Service) StoreMemory(ctx context.Context, req *StoreRequest) (result *StoreResult, err error) {
	start := time.Now()
	defer func() { s.record("store_memory", start, err) }()

	if err = s.rejectIfReadOnly("store_memory"); err != nil {
		return nil, err
	}

	unit, err := types.NewMemoryUnit(req.Content, req.Category, req.Scope, req.ProjectName)
	if err != nil {
		return nil, errors.NewValidation(err.Error())
	}
	if req.Importance != nil {
		unit.Importance = *req.Importance
	}
	unit.Tags = types.NormalizeTags(req.Tags)
	unit.Metadata = req.Metadata
	if req.Provenance != nil {
		unit.Provenance = *req.Provenance
	}
	if req.ContextLevel != nil {
		unit.ContextLevel = *req.ContextLevel
	} else {
		unit.ContextLevel = classify.ContextLevel(unit.Content, unit.Category)
	}
	unit.EmbeddingModel = s.embeddings.Model()
	if err = unit.Validate(); err != nil {
		return nil, errors.NewValidation(err.Error())
	}

	vector, err := s.embeddings.GetEmbedding(ctx, unit.Content)
	if err != nil {
		return nil, err
	}
	if err = s.store.Store(ctx, unit, vector); err != nil {
		return nil, err
	}
	s.memoriesStored.Add(1)
	return &StoreResult{ID: unit.ID, ContextLevel: unit.ContextLevel}, nil
}

// Retrieve runs the retrieval pipeline: expansion, embedding, filtered
// search with the dedup fetch multiplier, session dedup, composite re-rank,
// and session recording.
func (s *Service) Retrieve(ctx context.Context, req *types.QueryRequest) (result *types.RetrieveResult, err error) {
	start := time.Now()
	defer func() { s.record("retrieve_memories", start, err) }()

	if err = req.Validate(); err != nil {
		return nil, errors.NewValidation(err.Error())
	}
	filters := req.Filters()
	s.queriesProcessed.Add(1)

	searchQuery := req.Query
	if req.SessionID != "" && s.tracker != nil && s.cfg.QueryExpansion {
		recent := s.tracker.RecentQueries(req.SessionID)
		if expanded := query.Expand(req.Query, recent); expanded != searchQuery {
			s.logger.DebugContext(ctx, "expanded query", "original", req.Query, "expanded", expanded)
			searchQuery = expanded
		}
	}

	vector, usedCache, err := s.embeddings.GetEmbeddingWithInfo(ctx, searchQuery)
	if err != nil {
		return nil, err
	}

	fetchLimit := req.Limit
	dedupActive := req.SessionID != "" && s.tracker != nil
	if dedupActive {
		fetchLimit = req.Limit * s.cfg.DedupFetchMultiplier
		if fetchLimit > types.MaxRetrieveLimit*s.cfg.DedupFetchMultiplier {
			fetchLimit = types.MaxRetrieveLimit * s.cfg.DedupFetchMultiplier
		}
	}

	scored, err := s.store.Search(ctx, vector, filters, fetchLimit)
	if err != nil {
		return nil, err
	}
	totalFound := len(scored)

	if dedupActive {
		if shown := s.tracker.ShownMemoryIDs(req.SessionID); len(shown) > 0 {
			kept := scored[:0]
			for _, r := range scored {
				if !shown[r.Memory.ID] {
					kept = append(kept, r)
				}
			}
			scored = kept
		}
	}
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	if s.usage != nil {
		scored = s.usage.Rerank(scored)
	}

	ids := make([]string, len(scored))
	for i, r := range scored {
		ids[i] = r.Memory.ID
		r.Memory.Touch(time.Now().UTC())
	}
	if s.usage != nil {
		s.usage.RecordBatchUsage(ids)
	}

	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordSearch(req.Query, elapsed, usedCache, len(scored))
	}
	if req.SessionID != "" && s.tracker != nil {
		var trackedVector []float64
		if s.cfg.ConversationTracking {
			trackedVector = vector
		}
		s.tracker.TrackQuery(req.SessionID, req.Query, ids, trackedVector)
	}

	return &types.RetrieveResult{
		Results:     scored,
		TotalFound:  totalFound,
		QueryTimeMs: elapsed.Milliseconds(),
		UsedCache:   usedCache,
	}, nil
}

// GetByID fetches one unit and marks it accessed.
func (s *Service) GetByID(ctx context.Context, id string) (unit *types.MemoryUnit, err error) {
	start := time.Now()
	defer func() { s.record("get_memory_by_id", start, err) }()

	unit, vector, err := s.store.GetWithVector(ctx, id)
	if err != nil {
		return nil, err
	}
	unit.Touch(time.Now().UTC())
	if !s.cfg.ReadOnly {
		if updateErr := s.store.Update(ctx, unit, vector); updateErr != nil {
			s.logger.WarnContext(ctx, "failed to persist access touch", "memory_id", id, "error", updateErr.Error())
		}
	}
	return unit, nil
}

// UpdateRequest is the update_memory contract. Nil fields stay unchanged.
type UpdateRequest struct {
	ID                  string
	Content             *string
	Category            *types.MemoryCategory
	ContextLevel        *types.ContextLevel
	Importance          *float64
	Tags                *[]string
	Metadata            map[string]interface{}
	RegenerateEmbedding bool
	PreserveTimestamps  *bool
}

// UpdateMemory mutates named attributes of an existing unit.
func (s *Service) UpdateMemory(ctx context.Context, req *UpdateRequest) (unit *types.MemoryUnit, err error) {
	start := time.Now()
	defer func() { s.record("update_memory", start, err) }()

	if err = s.rejectIfReadOnly("update_memory"); err != nil {
		return nil, err
	}
	if req.Content == nil && req.Category == nil && req.ContextLevel == nil &&
		req.Importance == nil && req.Tags == nil && req.Metadata == nil {
		return nil, errors.NewValidation("at least one field besides id must be provided")
	}

	unit, vector, err := s.store.GetWithVector(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	contentChanged := false
	if req.Content != nil && strings.TrimSpace(*req.Content) != unit.Content {
		unit.Content = strings.TrimSpace(*req.Content)
		contentChanged = true
	}
	if req.Category != nil {
		unit.Category = *req.Category
	}
	if req.ContextLevel != nil {
		unit.ContextLevel = *req.ContextLevel
	}
	if req.Importance != nil {
		unit.Importance = *req.Importance
	}
	if req.Tags != nil {
		unit.Tags = types.NormalizeTags(*req.Tags)
	}
	if req.Metadata != nil {
		unit.Metadata = req.Metadata
	}

	preserve := req.PreserveTimestamps == nil || *req.PreserveTimestamps
	now := time.Now().UTC()
	unit.UpdatedAt = now
	if !preserve {
		unit.CreatedAt = now
	}
	if err = unit.Validate(); err != nil {
		return nil, errors.NewValidation(err.Error())
	}

	if contentChanged && req.RegenerateEmbedding {
		vector, err = s.embeddings.GetEmbedding(ctx, unit.Content)
		if err != nil {
			return nil, err
		}
		unit.EmbeddingModel = s.embeddings.Model()
	}
	if err = s.store.Update(ctx, unit, vector); err != nil {
		return nil, err
	}
	return unit, nil
}

// DeleteResult reports a single-id deletion.
type DeleteResult struct {
	Status   string `json:"status"`
	MemoryID string `json:"memory_id"`
}

// DeleteMemory hard-deletes one unit.
func (s *Service) DeleteMemory(ctx context.Context, id string) (result *DeleteResult, err error) {
	start := time.Now()
	defer func() { s.record("delete_memory", start, err) }()

	if err = s.rejectIfReadOnly("delete_memory"); err != nil {
		return nil, err
	}
	if err = s.store.Delete(ctx, id); err != nil {
		if errors.IsNotFound(err) {
			return &DeleteResult{Status: "not_found", MemoryID: id}, nil
		}
		return nil, err
	}
	return &DeleteResult{Status: "success", MemoryID: id}, nil
}

// DeleteByQueryResult reports a bulk deletion or its dry run.
type DeleteByQueryResult struct {
	Preview      bool                   `json:"preview"`
	DeletedCount int                    `json:"deleted_count"`
	TotalMatches int                    `json:"total_matches"`
	Breakdown    *types.DeleteBreakdown `json:"breakdown"`
	Warnings     []string               `json:"warnings,omitempty"`
}

// DeleteByQuery bulk-deletes matching units under the 1000 cap, with dry-run
// support and advisory warnings.
func (s *Service) DeleteByQuery(ctx context.Context, filters *types.SearchFilters, maxCount int, dryRun bool) (result *DeleteByQueryResult, err error) {
	start := time.Now()
	defer func() { s.record("delete_memories_by_query", start, err) }()

	if err = s.rejectIfReadOnly("delete_memories_by_query"); err != nil {
		return nil, err
	}
	if filters != nil {
		if err = filters.Validate(); err != nil {
			return nil, errors.NewValidation(err.Error())
		}
	}
	if maxCount < 1 || maxCount > types.MaxBulkDeleteCap {
		maxCount = types.MaxBulkDeleteCap
	}

	res, err := s.store.DeleteByFilter(ctx, filters, maxCount, dryRun)
	if err != nil {
		return nil, err
	}

	result = &DeleteByQueryResult{
		Preview:      dryRun,
		TotalMatches: res.DeletedCount,
		Breakdown:    res.Breakdown,
	}
	if !dryRun {
		result.DeletedCount = res.DeletedCount
	}
	if res.HighImportanceCount > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d matching memories have importance >= 0.8", res.HighImportanceCount))
	}
	if len(res.Breakdown.ByProject) > 1 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("deletion spans %d projects", len(res.Breakdown.ByProject)))
	}
	return result, nil
}

// List returns a sorted, paginated window of matching units.
func (s *Service) List(ctx context.Context, filters *types.SearchFilters, sortBy string, sortOrder types.SortOrder, limit, offset int) (result *types.ListResult, err error) {
	start := time.Now()
	defer func() { s.record("list_memories", start, err) }()

	if filters != nil {
		if err = filters.Validate(); err != nil {
			return nil, errors.NewValidation(err.Error())
		}
	}
	if limit < 1 {
		limit = types.DefaultListLimit
	}
	units, total, err := s.store.List(ctx, filters, sortBy, sortOrder, limit, offset)
	if err != nil {
		return nil, err
	}
	return &types.ListResult{
		Memories:      units,
		TotalCount:    total,
		ReturnedCount: len(units),
		Offset:        offset,
		Limit:         limit,
		HasMore:       offset+len(units) < total,
	}, nil
}

// MigrateScope atomically reassigns a unit's scope and project binding.
func (s *Service) MigrateScope(ctx context.Context, id string, scope types.MemoryScope, projectName string) (unit *types.MemoryUnit, err error) {
	start := time.Now()
	defer func() { s.record("migrate_memory_scope", start, err) }()

	if err = s.rejectIfReadOnly("migrate_memory_scope"); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, errors.NewValidationField("scope", "invalid scope: "+string(scope))
	}
	if scope == types.ScopeProject && strings.TrimSpace(projectName) == "" {
		return nil, errors.NewValidationField("project_name", "required when scope is PROJECT")
	}
	if scope == types.ScopeGlobal {
		projectName = ""
	}

	unit, vector, err := s.store.GetWithVector(ctx, id)
	if err != nil {
		return nil, err
	}
	unit.Scope = scope
	unit.ProjectName = projectName
	unit.UpdatedAt = time.Now().UTC()
	if err = s.store.Update(ctx, unit, vector); err != nil {
		return nil, err
	}
	return unit, nil
}

// ReclassifyResult summarizes a bulk reclassification.
type ReclassifyResult struct {
	Status    string   `json:"status"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors,omitempty"`
}

// BulkReclassify re-derives the context level for every matching unit and
// persists changes. Per-item failures are collected, never fatal.
func (s *Service) BulkReclassify(ctx context.Context, filters *types.SearchFilters) (result *ReclassifyResult, err error) {
	start := time.Now()
	defer func() { s.record("bulk_reclassify", start, err) }()

	if err = s.rejectIfReadOnly("bulk_reclassify"); err != nil {
		return nil, err
	}

	units, _, err := s.store.List(ctx, filters, storage.SortByCreatedAt, types.SortAsc, types.MaxListLimit, 0)
	if err != nil {
		return nil, err
	}

	result = &ReclassifyResult{}
	for _, unit := range units {
		result.Processed++
		derived := classify.ContextLevel(unit.Content, unit.Category)
		if derived == unit.ContextLevel {
			continue
		}
		full, vector, getErr := s.store.GetWithVector(ctx, unit.ID)
		if getErr != nil {
			result.Errors = append(result.Errors, unit.ID+": "+getErr.Error())
			continue
		}
		full.ContextLevel = derived
		full.Provenance.Source = types.SourceAutoClassified
		full.UpdatedAt = time.Now().UTC()
		if updateErr := s.store.Update(ctx, full, vector); updateErr != nil {
			result.Errors = append(result.Errors, unit.ID+": "+updateErr.Error())
			continue
		}
		result.Updated++
	}
	result.Status = "success"
	if len(result.Errors) > 0 {
		result.Status = "partial"
	}
	return result, nil
}

// Convenience retrievals: filtered views over the same pipeline.

// RetrievePreferences retrieves USER_PREFERENCE memories.
func (s *Service) RetrievePreferences(ctx context.Context, queryText string, limit int) (*types.RetrieveResult, error) {
	level := types.ContextUserPreference
	return s.Retrieve(ctx, &types.QueryRequest{Query: queryText, Limit: limit, ContextLevel: &level})
}

// RetrieveProjectContext retrieves PROJECT_CONTEXT memories for a project.
func (s *Service) RetrieveProjectContext(ctx context.Context, queryText, projectName string, limit int) (*types.RetrieveResult, error) {
	level := types.ContextProjectContext
	return s.Retrieve(ctx, &types.QueryRequest{
		Query:        queryText,
		Limit:        limit,
		ContextLevel: &level,
		ProjectName:  projectName,
	})
}

// RetrieveSessionState retrieves SESSION_STATE memories.
func (s *Service) RetrieveSessionState(ctx context.Context, queryText string, limit int) (*types.RetrieveResult, error) {
	level := types.ContextSessionState
	return s.Retrieve(ctx, &types.QueryRequest{Query: queryText, Limit: limit, ContextLevel: &level})
}

// ServiceStats reports service-local counters.
type ServiceStats struct {
	MemoriesStored   int64 `json:"memories_stored"`
	QueriesProcessed int64 `json:"queries_processed"`
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		MemoriesStored:   s.memoriesStored.Load(),
		QueriesProcessed: s.queriesProcessed.Load(),
	}
}
