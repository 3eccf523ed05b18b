// Package storage defines the vector store contract and its implementations:
// the Qdrant adapter used in production and an in-memory store used by tests
// and the offline mode.
package storage

import (
	"context"
	"time"

	"mcp-semantic-memory/pkg/types"
)

// Sort columns accepted by List.
const (
	SortByCreatedAt  = "created_at"
	SortByUpdatedAt  = "updated_at"
	SortByImportance = "importance"
)

// MaxDeleteByFilter is the hard cap on bulk deletion.
const MaxDeleteByFilter = 1000

// VectorStore is the logical KV+ANN interface the memory service depends on.
// Implementations map their native failures into the error taxonomy.
type VectorStore interface {
	// Initialize prepares the backend (creates the collection if missing).
	Initialize(ctx context.Context) error

	// Store upserts a unit with its embedding vector.
	Store(ctx context.Context, unit *types.MemoryUnit, vector []float64) error

	// BatchStore upserts many units. Per-item validation failures are
	// collected in the result; they do not abort the batch.
	BatchStore(ctx context.Context, units []*types.MemoryUnit, vectors [][]float64) (*BatchResult, error)

	// Search returns up to limit units scored by cosine similarity against
	// the query vector, descending, after applying filters.
	Search(ctx context.Context, vector []float64, filters *types.SearchFilters, limit int) ([]types.ScoredMemory, error)

	// GetByID returns the unit, or a NOT_FOUND error.
	GetByID(ctx context.Context, id string) (*types.MemoryUnit, error)

	// GetWithVector returns the unit together with its stored vector.
	GetWithVector(ctx context.Context, id string) (*types.MemoryUnit, []float64, error)

	// Update atomically replaces the stored unit. Readers see the old or
	// the new point, never a blend.
	Update(ctx context.Context, unit *types.MemoryUnit, vector []float64) error

	// Delete removes a unit. Deleting a missing id is a NOT_FOUND error.
	Delete(ctx context.Context, id string) error

	// DeleteByFilter removes every unit matching filters up to the hard
	// cap. With dryRun it reports what would be deleted without mutating.
	DeleteByFilter(ctx context.Context, filters *types.SearchFilters, maxCount int, dryRun bool) (*DeleteByFilterResult, error)

	// List returns a sorted, paginated window plus the total match count.
	List(ctx context.Context, filters *types.SearchFilters, sortBy string, sortOrder types.SortOrder, limit, offset int) ([]*types.MemoryUnit, int, error)

	// Count returns the number of units matching filters (nil = all).
	Count(ctx context.Context, filters *types.SearchFilters) (int, error)

	// GetAllProjects returns the distinct project names in the store.
	GetAllProjects(ctx context.Context) ([]string, error)

	// GetProjectStats summarizes one project's units.
	GetProjectStats(ctx context.Context, project string) (*ProjectStats, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Stats reports store-wide counters.
	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}

// BatchResult summarizes a batch operation.
type BatchResult struct {
	Success      int      `json:"success"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors,omitempty"`
	ProcessedIDs []string `json:"processed_ids,omitempty"`
}

// DeleteByFilterResult reports a bulk deletion (or a dry run of one).
type DeleteByFilterResult struct {
	DeletedCount int                    `json:"deleted_count"`
	DryRun       bool                   `json:"dry_run"`
	Breakdown    *types.DeleteBreakdown `json:"breakdown"`
	// HighImportanceCount counts candidates with importance >= 0.8, used
	// by the service layer to emit warnings.
	HighImportanceCount int `json:"high_importance_count,omitempty"`
}

// ProjectStats summarizes one project's footprint in the store.
type ProjectStats struct {
	Project        string         `json:"project"`
	MemoryCount    int            `json:"memory_count"`
	ByCategory     map[string]int `json:"by_category"`
	ByLifecycle    map[string]int `json:"by_lifecycle"`
	AvgImportance  float64        `json:"avg_importance"`
	OldestMemory   *time.Time     `json:"oldest_memory,omitempty"`
	NewestMemory   *time.Time     `json:"newest_memory,omitempty"`
	LastAccessedAt *time.Time     `json:"last_accessed_at,omitempty"`
}

// StoreStats reports store-wide counters.
type StoreStats struct {
	TotalMemories  int            `json:"total_memories"`
	ByCategory     map[string]int `json:"by_category"`
	ByProject      map[string]int `json:"by_project"`
	ByLifecycle    map[string]int `json:"by_lifecycle"`
	SkippedInvalid int64          `json:"skipped_invalid"`
}
