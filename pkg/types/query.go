package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Query limits.
const (
	MaxQueryChars    = 1000
	MaxRetrieveLimit = 100
	DefaultLimit     = 5
	MaxListLimit     = 100
	MaxBulkDeleteCap = 1000
	DefaultListLimit = 20
)

// TagLogic controls how a tag filter combines its members.
type TagLogic string

const (
	TagLogicAny  TagLogic = "ANY"
	TagLogicAll  TagLogic = "ALL"
	TagLogicNone TagLogic = "NONE"
)

// Valid returns true if the tag logic is a known value.
func (tl TagLogic) Valid() bool {
	switch tl {
	case TagLogicAny, TagLogicAll, TagLogicNone:
		return true
	}
	return false
}

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid returns true if the sort order is a known value.
func (so SortOrder) Valid() bool {
	return so == SortAsc || so == SortDesc
}

// CodeSortKey is a sortable attribute of code search results.
type CodeSortKey string

const (
	CodeSortRelevance  CodeSortKey = "relevance"
	CodeSortComplexity CodeSortKey = "complexity"
	CodeSortSize       CodeSortKey = "size"
	CodeSortRecency    CodeSortKey = "recency"
	CodeSortImportance CodeSortKey = "importance"
)

// Valid returns true if the sort key is a known value.
func (k CodeSortKey) Valid() bool {
	switch k {
	case CodeSortRelevance, CodeSortComplexity, CodeSortSize, CodeSortRecency, CodeSortImportance:
		return true
	}
	return false
}

// QueryRequest is the caller-facing retrieval contract.
type QueryRequest struct {
	Query           string                 `json:"query"`
	Limit           int                    `json:"limit,omitempty"`
	ContextLevel    *ContextLevel          `json:"context_level,omitempty"`
	Scope           *MemoryScope           `json:"scope,omitempty"`
	ProjectName     string                 `json:"project_name,omitempty"`
	Category        *MemoryCategory        `json:"category,omitempty"`
	MinImportance   *float64               `json:"min_importance,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	SessionID       string                 `json:"session_id,omitempty"`
	AdvancedFilters *AdvancedSearchFilters `json:"advanced_filters,omitempty"`
}

// Validate checks the query contract and applies the default limit.
func (qr *QueryRequest) Validate() error {
	qr.Query = strings.TrimSpace(qr.Query)
	if qr.Query == "" {
		return errors.New("query cannot be empty")
	}
	if len([]rune(qr.Query)) > MaxQueryChars {
		return fmt.Errorf("query exceeds %d characters", MaxQueryChars)
	}
	if qr.Limit == 0 {
		qr.Limit = DefaultLimit
	}
	if qr.Limit < 1 || qr.Limit > MaxRetrieveLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxRetrieveLimit)
	}
	if qr.ContextLevel != nil && !qr.ContextLevel.Valid() {
		return fmt.Errorf("invalid context_level: %s", *qr.ContextLevel)
	}
	if qr.Scope != nil && !qr.Scope.Valid() {
		return fmt.Errorf("invalid scope: %s", *qr.Scope)
	}
	if qr.Category != nil && !qr.Category.Valid() {
		return fmt.Errorf("invalid category: %s", *qr.Category)
	}
	if qr.MinImportance != nil && (*qr.MinImportance < 0 || *qr.MinImportance > 1) {
		return errors.New("min_importance must be between 0 and 1")
	}
	qr.Tags = NormalizeTags(qr.Tags)
	if qr.AdvancedFilters != nil {
		if err := qr.AdvancedFilters.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Filters builds the storage-level filter set from the request.
func (qr *QueryRequest) Filters() *SearchFilters {
	return &SearchFilters{
		Category:      qr.Category,
		ContextLevel:  qr.ContextLevel,
		Scope:         qr.Scope,
		ProjectName:   qr.ProjectName,
		MinImportance: qr.MinImportance,
		Tags:          qr.Tags,
		Advanced:      qr.AdvancedFilters,
	}
}

// SearchFilters combines the metadata predicates applied alongside the
// vector query. A nil field means "no constraint".
type SearchFilters struct {
	Category      *MemoryCategory        `json:"category,omitempty"`
	ContextLevel  *ContextLevel          `json:"context_level,omitempty"`
	Scope         *MemoryScope           `json:"scope,omitempty"`
	ProjectName   string                 `json:"project_name,omitempty"`
	MinImportance *float64               `json:"min_importance,omitempty"`
	MaxImportance *float64               `json:"max_importance,omitempty"`
	CreatedAfter  *time.Time             `json:"created_after,omitempty"`
	CreatedBefore *time.Time             `json:"created_before,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Advanced      *AdvancedSearchFilters `json:"advanced,omitempty"`
}

// Validate checks numeric and range coherence.
func (sf *SearchFilters) Validate() error {
	if sf.Category != nil && !sf.Category.Valid() {
		return fmt.Errorf("invalid category filter: %s", *sf.Category)
	}
	if sf.ContextLevel != nil && !sf.ContextLevel.Valid() {
		return fmt.Errorf("invalid context_level filter: %s", *sf.ContextLevel)
	}
	if sf.Scope != nil && !sf.Scope.Valid() {
		return fmt.Errorf("invalid scope filter: %s", *sf.Scope)
	}
	if sf.MinImportance != nil && (*sf.MinImportance < 0 || *sf.MinImportance > 1) {
		return errors.New("min_importance must be between 0 and 1")
	}
	if sf.MaxImportance != nil && (*sf.MaxImportance < 0 || *sf.MaxImportance > 1) {
		return errors.New("max_importance must be between 0 and 1")
	}
	if sf.MinImportance != nil && sf.MaxImportance != nil && *sf.MinImportance > *sf.MaxImportance {
		return errors.New("min_importance cannot exceed max_importance")
	}
	if sf.CreatedAfter != nil && sf.CreatedBefore != nil && sf.CreatedAfter.After(*sf.CreatedBefore) {
		return errors.New("created_after cannot be later than created_before")
	}
	sf.Tags = NormalizeTags(sf.Tags)
	if sf.Advanced != nil {
		return sf.Advanced.Validate()
	}
	return nil
}

// AdvancedSearchFilters layers date-range, tag-logic, lifecycle, exclusion,
// and provenance predicates onto a search.
type AdvancedSearchFilters struct {
	CreatedAfter      *time.Time        `json:"created_after,omitempty"`
	CreatedBefore     *time.Time        `json:"created_before,omitempty"`
	UpdatedAfter      *time.Time        `json:"updated_after,omitempty"`
	UpdatedBefore     *time.Time        `json:"updated_before,omitempty"`
	AccessedAfter     *time.Time        `json:"accessed_after,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	TagLogic          TagLogic          `json:"tag_logic,omitempty"`
	LifecycleStates   []LifecycleState  `json:"lifecycle_states,omitempty"`
	ExcludeCategories []MemoryCategory  `json:"exclude_categories,omitempty"`
	ExcludeProjects   []string          `json:"exclude_projects,omitempty"`
	MinTrustScore     *float64          `json:"min_trust_score,omitempty"`
	ProvenanceSource  *ProvenanceSource `json:"provenance_source,omitempty"`
}

// Validate checks the advanced filter constraints.
func (af *AdvancedSearchFilters) Validate() error {
	if af.TagLogic == "" {
		af.TagLogic = TagLogicAny
	}
	if !af.TagLogic.Valid() {
		return fmt.Errorf("invalid tag_logic: %s", af.TagLogic)
	}
	for _, ls := range af.LifecycleStates {
		if !ls.Valid() {
			return fmt.Errorf("invalid lifecycle state filter: %s", ls)
		}
	}
	for _, cat := range af.ExcludeCategories {
		if !cat.Valid() {
			return fmt.Errorf("invalid excluded category: %s", cat)
		}
	}
	if af.MinTrustScore != nil && (*af.MinTrustScore < 0 || *af.MinTrustScore > 1) {
		return errors.New("min_trust_score must be between 0 and 1")
	}
	if af.ProvenanceSource != nil && !af.ProvenanceSource.Valid() {
		return fmt.Errorf("invalid provenance_source filter: %s", *af.ProvenanceSource)
	}
	af.Tags = NormalizeTags(af.Tags)
	return nil
}

// CodeSortCriterion is one entry of a multi-criteria code sort.
type CodeSortCriterion struct {
	Key   CodeSortKey `json:"key"`
	Order SortOrder   `json:"order"`
}

// CodeSearchFilters narrows code search results by file pattern, size,
// complexity, and modification date.
type CodeSearchFilters struct {
	FilePattern     string              `json:"file_pattern,omitempty"`
	ExcludePatterns []string            `json:"exclude_patterns,omitempty"`
	MinComplexity   *int                `json:"min_complexity,omitempty"`
	MaxComplexity   *int                `json:"max_complexity,omitempty"`
	MinLineCount    *int                `json:"line_count_min,omitempty"`
	MaxLineCount    *int                `json:"line_count_max,omitempty"`
	ModifiedAfter   *time.Time          `json:"modified_after,omitempty"`
	ModifiedBefore  *time.Time          `json:"modified_before,omitempty"`
	SortBy          []CodeSortCriterion `json:"sort_by,omitempty"`
}

// Validate checks range coherence and sort criteria.
func (cf *CodeSearchFilters) Validate() error {
	if cf.MinComplexity != nil && *cf.MinComplexity < 0 {
		return errors.New("min_complexity cannot be negative")
	}
	if cf.MinComplexity != nil && cf.MaxComplexity != nil && *cf.MinComplexity > *cf.MaxComplexity {
		return errors.New("min_complexity cannot exceed max_complexity")
	}
	if cf.MinLineCount != nil && cf.MaxLineCount != nil && *cf.MinLineCount > *cf.MaxLineCount {
		return errors.New("line_count_min cannot exceed line_count_max")
	}
	for _, criterion := range cf.SortBy {
		if !criterion.Key.Valid() {
			return fmt.Errorf("invalid sort key: %s", criterion.Key)
		}
		if criterion.Order != "" && !criterion.Order.Valid() {
			return fmt.Errorf("invalid sort order: %s", criterion.Order)
		}
	}
	return nil
}

// ScoredMemory pairs a memory unit with a similarity (or composite) score
// clamped to [0,1].
type ScoredMemory struct {
	Memory *MemoryUnit `json:"memory"`
	Score  float64     `json:"score"`
}

// RetrieveResult is the retrieval response payload.
type RetrieveResult struct {
	Results     []ScoredMemory `json:"results"`
	TotalFound  int            `json:"total_found"`
	QueryTimeMs int64          `json:"query_time_ms"`
	UsedCache   bool           `json:"used_cache"`
}

// ListResult is the paginated listing response payload.
type ListResult struct {
	Memories      []*MemoryUnit `json:"memories"`
	TotalCount    int           `json:"total_count"`
	ReturnedCount int           `json:"returned_count"`
	Offset        int           `json:"offset"`
	Limit         int           `json:"limit"`
	HasMore       bool          `json:"has_more"`
}

// DeleteBreakdown reports what a bulk delete touched (or would touch).
type DeleteBreakdown struct {
	ByProject   map[string]int `json:"by_project"`
	ByCategory  map[string]int `json:"by_category"`
	ByLifecycle map[string]int `json:"by_lifecycle"`
}

// NewDeleteBreakdown returns an empty breakdown with initialized maps.
func NewDeleteBreakdown() *DeleteBreakdown {
	return &DeleteBreakdown{
		ByProject:   make(map[string]int),
		ByCategory:  make(map[string]int),
		ByLifecycle: make(map[string]int),
	}
}

// Add counts a unit into the breakdown.
func (db *DeleteBreakdown) Add(unit *MemoryUnit) {
	project := unit.ProjectName
	if project == "" {
		project = string(ScopeGlobal)
	}
	db.ByProject[project]++
	db.ByCategory[string(unit.Category)]++
	db.ByLifecycle[string(unit.LifecycleState)]++
}
