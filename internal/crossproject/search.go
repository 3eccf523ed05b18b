package crossproject

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

// maxFanOut bounds how many project searches run concurrently.
const maxFanOut = 8

// FailedProject records one project whose search failed; partial failure is
// reported alongside results, never as a fatal error.
type FailedProject struct {
	Project string `json:"project"`
	Error   string `json:"error"`
}

// SearchResult is the aggregated cross-project response.
type SearchResult struct {
	Results          []types.ScoredMemory `json:"results"`
	ProjectsSearched []string             `json:"projects_searched"`
	FailedProjects   []FailedProject      `json:"failed_projects,omitempty"`
	QueryTimeMs      int64                `json:"query_time_ms"`
	// Message is set on the informational empty response when no project
	// has opted in.
	Message string `json:"message,omitempty"`
}

// Searcher fans a query out across every opted-in project.
type Searcher struct {
	registry   *Registry
	store      storage.VectorStore
	embeddings *embeddings.Service
	logger     logging.Logger
}

// NewSearcher builds a cross-project searcher over the consent registry.
func NewSearcher(registry *Registry, store storage.VectorStore, emb *embeddings.Service) *Searcher {
	return &Searcher{
		registry:   registry,
		store:      store,
		embeddings: emb,
		logger:     logging.WithComponent("crossproject"),
	}
}

// Search embeds the query once, searches every opted-in project in parallel
// with the caller's limit, then merges, sorts by relevance, and truncates.
// Per-project failures are collected, not fatal.
func (s *Searcher) Search(ctx context.Context, query string, filters *types.SearchFilters, limit int) (*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationField("query", "cannot be empty")
	}
	if limit < 1 || limit > types.MaxRetrieveLimit {
		limit = types.DefaultLimit
	}

	projects, err := s.registry.OptedIn(ctx)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return &SearchResult{
			Results:          []types.ScoredMemory{},
			ProjectsSearched: []string{},
			QueryTimeMs:      time.Since(start).Milliseconds(),
			Message:          "no projects have opted in to cross-project search",
		}, nil
	}

	vector, err := s.embeddings.GetEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		merged   []types.ScoredMemory
		failures []FailedProject
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxFanOut)
	for _, project := range projects {
		group.Go(func() error {
			projectFilters := scopeToProject(filters, project)
			results, searchErr := s.store.Search(groupCtx, vector, projectFilters, limit)
			mu.Lock()
			defer mu.Unlock()
			if searchErr != nil {
				s.logger.WarnContext(groupCtx, "project search failed", "project", project, "error", searchErr.Error())
				failures = append(failures, FailedProject{Project: project, Error: searchErr.Error()})
				return nil
			}
			merged = append(merged, results...)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if !merged[i].Memory.CreatedAt.Equal(merged[j].Memory.CreatedAt) {
			return merged[i].Memory.CreatedAt.After(merged[j].Memory.CreatedAt)
		}
		return merged[i].Memory.ID < merged[j].Memory.ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Project < failures[j].Project })

	return &SearchResult{
		Results:          merged,
		ProjectsSearched: projects,
		FailedProjects:   failures,
		QueryTimeMs:      time.Since(start).Milliseconds(),
	}, nil
}

// scopeToProject narrows the caller's filters to one project without
// mutating the original.
func scopeToProject(filters *types.SearchFilters, project string) *types.SearchFilters {
	scoped := types.SearchFilters{}
	if filters != nil {
		scoped = *filters
	}
	scope := types.ScopeProject
	scoped.Scope = &scope
	scoped.ProjectName = project
	return &scoped
}
