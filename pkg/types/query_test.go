package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryRequestValidate(t *testing.T) {
	t.Run("applies default limit", func(t *testing.T) {
		qr := &QueryRequest{Query: "  how do we deploy  "}
		require.NoError(t, qr.Validate())
		assert.Equal(t, "how do we deploy", qr.Query)
		assert.Equal(t, DefaultLimit, qr.Limit)
	})

	t.Run("empty query", func(t *testing.T) {
		qr := &QueryRequest{Query: "   "}
		err := qr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("overlong query", func(t *testing.T) {
		qr := &QueryRequest{Query: strings.Repeat("q", MaxQueryChars+1)}
		err := qr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})

	t.Run("limit bounds", func(t *testing.T) {
		qr := &QueryRequest{Query: "x", Limit: MaxRetrieveLimit + 1}
		require.Error(t, qr.Validate())

		qr = &QueryRequest{Query: "x", Limit: -1}
		require.Error(t, qr.Validate())
	})

	t.Run("invalid enum filters", func(t *testing.T) {
		badLevel := ContextLevel("COSMIC")
		qr := &QueryRequest{Query: "x", ContextLevel: &badLevel}
		require.Error(t, qr.Validate())

		badCat := MemoryCategory("GOSSIP")
		qr = &QueryRequest{Query: "x", Category: &badCat}
		require.Error(t, qr.Validate())
	})

	t.Run("min importance range", func(t *testing.T) {
		bad := 1.5
		qr := &QueryRequest{Query: "x", MinImportance: &bad}
		require.Error(t, qr.Validate())
	})

	t.Run("normalizes tags", func(t *testing.T) {
		qr := &QueryRequest{Query: "x", Tags: []string{" Go ", "go", "API"}}
		require.NoError(t, qr.Validate())
		assert.Equal(t, []string{"go", "api"}, qr.Tags)
	})
}

func TestQueryRequestFilters(t *testing.T) {
	cat := CategoryFact
	scope := ScopeProject
	minImp := 0.3
	qr := &QueryRequest{
		Query:         "deploy",
		Category:      &cat,
		Scope:         &scope,
		ProjectName:   "acme",
		MinImportance: &minImp,
		Tags:          []string{"infra"},
	}
	require.NoError(t, qr.Validate())

	filters := qr.Filters()
	assert.Equal(t, &cat, filters.Category)
	assert.Equal(t, &scope, filters.Scope)
	assert.Equal(t, "acme", filters.ProjectName)
	assert.Equal(t, &minImp, filters.MinImportance)
	assert.Equal(t, []string{"infra"}, filters.Tags)
}

func TestSearchFiltersValidate(t *testing.T) {
	t.Run("importance range coherence", func(t *testing.T) {
		lo, hi := 0.8, 0.2
		sf := &SearchFilters{MinImportance: &lo, MaxImportance: &hi}
		err := sf.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("date range coherence", func(t *testing.T) {
		after := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		before := after.AddDate(0, -1, 0)
		sf := &SearchFilters{CreatedAfter: &after, CreatedBefore: &before}
		require.Error(t, sf.Validate())
	})

	t.Run("valid empty filter", func(t *testing.T) {
		assert.NoError(t, (&SearchFilters{}).Validate())
	})
}

func TestAdvancedSearchFiltersValidate(t *testing.T) {
	t.Run("defaults tag logic to ANY", func(t *testing.T) {
		af := &AdvancedSearchFilters{Tags: []string{"Go"}}
		require.NoError(t, af.Validate())
		assert.Equal(t, TagLogicAny, af.TagLogic)
		assert.Equal(t, []string{"go"}, af.Tags)
	})

	t.Run("rejects unknown tag logic", func(t *testing.T) {
		af := &AdvancedSearchFilters{TagLogic: "XOR"}
		require.Error(t, af.Validate())
	})

	t.Run("rejects bad lifecycle state", func(t *testing.T) {
		af := &AdvancedSearchFilters{LifecycleStates: []LifecycleState{"FROZEN"}}
		require.Error(t, af.Validate())
	})

	t.Run("trust score range", func(t *testing.T) {
		bad := -0.1
		af := &AdvancedSearchFilters{MinTrustScore: &bad}
		require.Error(t, af.Validate())
	})
}

func TestCodeSearchFiltersValidate(t *testing.T) {
	t.Run("complexity coherence", func(t *testing.T) {
		lo, hi := 10, 2
		cf := &CodeSearchFilters{MinComplexity: &lo, MaxComplexity: &hi}
		require.Error(t, cf.Validate())
	})

	t.Run("line count coherence", func(t *testing.T) {
		lo, hi := 100, 10
		cf := &CodeSearchFilters{MinLineCount: &lo, MaxLineCount: &hi}
		require.Error(t, cf.Validate())
	})

	t.Run("sort criteria", func(t *testing.T) {
		cf := &CodeSearchFilters{SortBy: []CodeSortCriterion{
			{Key: CodeSortComplexity, Order: SortDesc},
			{Key: CodeSortRecency},
		}}
		assert.NoError(t, cf.Validate())

		cf = &CodeSearchFilters{SortBy: []CodeSortCriterion{{Key: "alphabetical"}}}
		require.Error(t, cf.Validate())

		cf = &CodeSearchFilters{SortBy: []CodeSortCriterion{{Key: CodeSortSize, Order: "sideways"}}}
		require.Error(t, cf.Validate())
	})
}

func TestDeleteBreakdown(t *testing.T) {
	db := NewDeleteBreakdown()
	global, err := NewMemoryUnit("a global fact", CategoryFact, ScopeGlobal, "")
	require.NoError(t, err)
	scoped, err := NewMemoryUnit("a project event", CategoryEvent, ScopeProject, "acme")
	require.NoError(t, err)

	db.Add(global)
	db.Add(scoped)
	db.Add(scoped)

	assert.Equal(t, 1, db.ByProject["GLOBAL"])
	assert.Equal(t, 2, db.ByProject["acme"])
	assert.Equal(t, 1, db.ByCategory["FACT"])
	assert.Equal(t, 2, db.ByCategory["EVENT"])
	assert.Equal(t, 3, db.ByLifecycle["ACTIVE"])
}
