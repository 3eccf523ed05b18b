package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

var _ VectorStore = (*MemoryStore)(nil)

// MemoryStore is an in-process VectorStore. It backs tests and the offline
// mode and mirrors the Qdrant adapter's filter and scoring semantics exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	units   map[string]*types.MemoryUnit
	vectors map[string][]float64
	skipped int64
	closed  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:   make(map[string]*types.MemoryUnit),
		vectors: make(map[string][]float64),
	}
}

func (m *MemoryStore) checkOpen() error {
	if m.closed {
		return errors.NewStorageUnavailable("store is closed", nil)
	}
	return nil
}

// Initialize is a no-op for the in-memory store.
func (m *MemoryStore) Initialize(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkOpen()
}

// Store upserts a unit with its vector.
func (m *MemoryStore) Store(ctx context.Context, unit *types.MemoryUnit, vector []float64) error {
	if err := ctx.Err(); err != nil {
		return errors.FromContextErr("store memory", err)
	}
	if err := unit.Validate(); err != nil {
		return errors.NewValidation(err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.units[unit.ID] = unit.Clone()
	m.vectors[unit.ID] = append([]float64(nil), vector...)
	return nil
}

// BatchStore upserts many units, collecting per-item validation failures.
func (m *MemoryStore) BatchStore(ctx context.Context, units []*types.MemoryUnit, vectors [][]float64) (*BatchResult, error) {
	if len(units) != len(vectors) {
		return nil, errors.NewValidation("units and vectors length mismatch")
	}
	result := &BatchResult{}
	for i, unit := range units {
		if err := m.Store(ctx, unit, vectors[i]); err != nil {
			if errors.IsValidation(err) {
				result.Failed++
				result.Errors = append(result.Errors, unit.ID+": "+err.Error())
				continue
			}
			return nil, err
		}
		result.Success++
		result.ProcessedIDs = append(result.ProcessedIDs, unit.ID)
	}
	return result, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0,1]. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clampScore(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Search scores every matching unit by cosine similarity, descending, with
// the created_at-then-id tie-break.
func (m *MemoryStore) Search(ctx context.Context, vector []float64, filters *types.SearchFilters, limit int) ([]types.ScoredMemory, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContextErr("search", err)
	}
	if limit < 1 {
		return nil, errors.NewValidationField("limit", "must be positive")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	results := make([]types.ScoredMemory, 0)
	for id, unit := range m.units {
		if !MatchesFilters(unit, filters) {
			continue
		}
		results = append(results, types.ScoredMemory{
			Memory: unit.Clone(),
			Score:  CosineSimilarity(vector, m.vectors[id]),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Memory.CreatedAt.Equal(results[j].Memory.CreatedAt) {
			return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetByID returns one unit, or NOT_FOUND.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (*types.MemoryUnit, error) {
	unit, _, err := m.GetWithVector(ctx, id)
	return unit, err
}

// GetWithVector returns one unit with its stored embedding.
func (m *MemoryStore) GetWithVector(ctx context.Context, id string) (*types.MemoryUnit, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.FromContextErr("get memory", err)
	}
	if strings.TrimSpace(id) == "" {
		return nil, nil, errors.NewValidationField("id", "cannot be empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, nil, err
	}
	unit, ok := m.units[id]
	if !ok {
		return nil, nil, errors.NewNotFound(id)
	}
	return unit.Clone(), append([]float64(nil), m.vectors[id]...), nil
}

// Update replaces an existing unit.
func (m *MemoryStore) Update(ctx context.Context, unit *types.MemoryUnit, vector []float64) error {
	m.mu.RLock()
	_, exists := m.units[unit.ID]
	m.mu.RUnlock()
	if !exists {
		return errors.NewNotFound(unit.ID)
	}
	return m.Store(ctx, unit, vector)
}

// Delete removes one unit, or fails with NOT_FOUND.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.FromContextErr("delete memory", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.units[id]; !ok {
		return errors.NewNotFound(id)
	}
	delete(m.units, id)
	delete(m.vectors, id)
	return nil
}

// DeleteByFilter removes matching units up to the cap, reporting a
// breakdown; with dryRun it only reports.
func (m *MemoryStore) DeleteByFilter(ctx context.Context, filters *types.SearchFilters, maxCount int, dryRun bool) (*DeleteByFilterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContextErr("bulk delete", err)
	}
	if maxCount < 1 || maxCount > MaxDeleteByFilter {
		maxCount = MaxDeleteByFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	candidates := make([]*types.MemoryUnit, 0)
	for _, unit := range m.units {
		if MatchesFilters(unit, filters) {
			candidates = append(candidates, unit)
		}
	}
	// Deterministic candidate order under the cap.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}

	result := &DeleteByFilterResult{
		DryRun:       dryRun,
		DeletedCount: len(candidates),
		Breakdown:    types.NewDeleteBreakdown(),
	}
	for _, unit := range candidates {
		result.Breakdown.Add(unit)
		if unit.Importance >= 0.8 {
			result.HighImportanceCount++
		}
		if !dryRun {
			delete(m.units, unit.ID)
			delete(m.vectors, unit.ID)
		}
	}
	return result, nil
}

// List returns a sorted page of matching units plus the total match count.
func (m *MemoryStore) List(ctx context.Context, filters *types.SearchFilters, sortBy string, sortOrder types.SortOrder, limit, offset int) ([]*types.MemoryUnit, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, errors.FromContextErr("list", err)
	}
	if limit < 1 {
		limit = types.DefaultListLimit
	}
	if limit > types.MaxListLimit {
		return nil, 0, errors.NewValidationField("limit", "exceeds maximum page size")
	}
	if offset < 0 {
		return nil, 0, errors.NewValidationField("offset", "cannot be negative")
	}
	m.mu.RLock()
	units := make([]*types.MemoryUnit, 0)
	for _, unit := range m.units {
		if MatchesFilters(unit, filters) {
			units = append(units, unit.Clone())
		}
	}
	m.mu.RUnlock()

	if err := SortUnits(units, sortBy, sortOrder); err != nil {
		return nil, 0, err
	}
	total := len(units)
	if offset >= total {
		return []*types.MemoryUnit{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return units[offset:end], total, nil
}

// Count returns the number of matching units.
func (m *MemoryStore) Count(ctx context.Context, filters *types.SearchFilters) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.FromContextErr("count", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	count := 0
	for _, unit := range m.units {
		if MatchesFilters(unit, filters) {
			count++
		}
	}
	return count, nil
}

// GetAllProjects returns the distinct project names in the store.
func (m *MemoryStore) GetAllProjects(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContextErr("list projects", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var projects []string
	for _, unit := range m.units {
		if unit.ProjectName == "" || seen[unit.ProjectName] {
			continue
		}
		seen[unit.ProjectName] = true
		projects = append(projects, unit.ProjectName)
	}
	sort.Strings(projects)
	return projects, nil
}

// GetProjectStats aggregates one project's units.
func (m *MemoryStore) GetProjectStats(ctx context.Context, project string) (*ProjectStats, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.NewValidationField("project", "cannot be empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	units := make([]*types.MemoryUnit, 0)
	for _, unit := range m.units {
		if unit.ProjectName == project {
			units = append(units, unit)
		}
	}
	return AggregateProjectStats(project, units), nil
}

// HealthCheck reports whether the store is open.
func (m *MemoryStore) HealthCheck(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkOpen()
}

// Stats reports store-wide counters.
func (m *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContextErr("stats", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	units := make([]*types.MemoryUnit, 0, len(m.units))
	for _, unit := range m.units {
		units = append(units, unit)
	}
	stats := AggregateStoreStats(units)
	stats.SkippedInvalid = m.skipped
	return stats, nil
}

// Close marks the store closed; later calls fail with STORAGE_UNAVAILABLE.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
