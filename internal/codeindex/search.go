package codeindex

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

// codeFetchMultiplier over-fetches before the metadata filters cut results
// down.
const codeFetchMultiplier = 5

// SearchCode embeds the query, searches CODE memories in the project, and
// applies the code-specific filters and sort.
func (ix *Indexer) SearchCode(ctx context.Context, query, projectName string, filters *types.CodeSearchFilters, limit int) ([]types.ScoredMemory, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationField("query", "cannot be empty")
	}
	if limit < 1 || limit > types.MaxRetrieveLimit {
		limit = types.DefaultListLimit
	}
	if filters != nil {
		if err := filters.Validate(); err != nil {
			return nil, errors.NewValidation(err.Error())
		}
	}

	vector, err := ix.embeddings.GetEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.searchCodeVector(ctx, vector, projectName, filters, limit)
}

// FindSimilarCode embeds a code fragment and returns the closest indexed
// chunks.
func (ix *Indexer) FindSimilarCode(ctx context.Context, fragment, projectName string, limit int) ([]types.ScoredMemory, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, errors.NewValidationField("code", "cannot be empty")
	}
	if limit < 1 || limit > types.MaxRetrieveLimit {
		limit = types.DefaultLimit
	}
	vector, err := ix.embeddings.GetEmbedding(ctx, fragment)
	if err != nil {
		return nil, err
	}
	return ix.searchCodeVector(ctx, vector, projectName, nil, limit)
}

func (ix *Indexer) searchCodeVector(ctx context.Context, vector []float64, projectName string, filters *types.CodeSearchFilters, limit int) ([]types.ScoredMemory, error) {
	category := types.CategoryCode
	searchFilters := &types.SearchFilters{
		Category:    &category,
		ProjectName: projectName,
	}
	scored, err := ix.store.Search(ctx, vector, searchFilters, limit*codeFetchMultiplier)
	if err != nil {
		return nil, err
	}

	kept := scored[:0]
	for _, r := range scored {
		if matchesCodeFilters(r.Memory, filters) {
			kept = append(kept, r)
		}
	}
	sortCodeResults(kept, filters)
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, nil
}

// matchesCodeFilters applies the glob, range, and date predicates against a
// chunk's indexing metadata.
func matchesCodeFilters(m *types.MemoryUnit, filters *types.CodeSearchFilters) bool {
	if filters == nil {
		return true
	}
	path, _ := m.Metadata[types.MetaFilePath].(string)
	if filters.FilePattern != "" && !globMatch(filters.FilePattern, path) {
		return false
	}
	for _, pattern := range filters.ExcludePatterns {
		if globMatch(pattern, path) {
			return false
		}
	}
	complexity := metaInt(m, types.MetaComplexity)
	if filters.MinComplexity != nil && complexity < *filters.MinComplexity {
		return false
	}
	if filters.MaxComplexity != nil && complexity > *filters.MaxComplexity {
		return false
	}
	lines := metaInt(m, types.MetaLineCount)
	if filters.MinLineCount != nil && lines < *filters.MinLineCount {
		return false
	}
	if filters.MaxLineCount != nil && lines > *filters.MaxLineCount {
		return false
	}
	if filters.ModifiedAfter != nil || filters.ModifiedBefore != nil {
		modified, ok := metaTime(m, types.MetaFileModified)
		if !ok {
			return false
		}
		if filters.ModifiedAfter != nil && modified.Before(*filters.ModifiedAfter) {
			return false
		}
		if filters.ModifiedBefore != nil && modified.After(*filters.ModifiedBefore) {
			return false
		}
	}
	return true
}

// globMatch matches a pattern against the full relative path when the
// pattern spans directories, and against the base name otherwise.
func globMatch(pattern, path string) bool {
	if strings.Contains(pattern, "/") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	ok, err := filepath.Match(pattern, filepath.Base(path))
	return err == nil && ok
}

// sortCodeResults applies the multi-criteria sort; without criteria the
// relevance ordering from the store stands.
func sortCodeResults(results []types.ScoredMemory, filters *types.CodeSearchFilters) {
	if filters == nil || len(filters.SortBy) == 0 {
		return
	}
	criteria := filters.SortBy
	sort.SliceStable(results, func(i, j int) bool {
		for _, criterion := range criteria {
			cmp := compareByKey(results[i], results[j], criterion.Key)
			if cmp == 0 {
				continue
			}
			if criterion.Order == types.SortAsc {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func compareByKey(a, b types.ScoredMemory, key types.CodeSortKey) int {
	switch key {
	case types.CodeSortComplexity:
		return compareInt(metaInt(a.Memory, types.MetaComplexity), metaInt(b.Memory, types.MetaComplexity))
	case types.CodeSortSize:
		return compareInt(metaInt(a.Memory, types.MetaLineCount), metaInt(b.Memory, types.MetaLineCount))
	case types.CodeSortRecency:
		at, _ := metaTime(a.Memory, types.MetaFileModified)
		bt, _ := metaTime(b.Memory, types.MetaFileModified)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		}
		return 0
	case types.CodeSortImportance:
		return compareFloat(a.Memory.Importance, b.Memory.Importance)
	default:
		return compareFloat(a.Score, b.Score)
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func metaInt(m *types.MemoryUnit, key string) int {
	switch v := m.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func metaTime(m *types.MemoryUnit, key string) (time.Time, bool) {
	raw, _ := m.Metadata[key].(string)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
