package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryUnit(t *testing.T) {
	unit, err := NewMemoryUnit("User prefers tabs over spaces", CategoryPreference, ScopeGlobal, "")
	require.NoError(t, err)
	assert.NotEmpty(t, unit.ID)
	assert.Equal(t, 0.5, unit.Importance)
	assert.Equal(t, LifecycleActive, unit.LifecycleState)
	assert.False(t, unit.CreatedAt.IsZero())
	assert.Equal(t, unit.CreatedAt, unit.UpdatedAt)
}

func TestMemoryUnitValidate(t *testing.T) {
	valid := func() *MemoryUnit {
		unit, err := NewMemoryUnit("some fact", CategoryFact, ScopeProject, "acme")
		require.NoError(t, err)
		return unit
	}

	tests := []struct {
		name    string
		mutate  func(*MemoryUnit)
		wantErr string
	}{
		{
			name:   "valid project unit",
			mutate: func(u *MemoryUnit) {},
		},
		{
			name:    "empty content",
			mutate:  func(u *MemoryUnit) { u.Content = "   " },
			wantErr: "content cannot be empty",
		},
		{
			name:    "bad category",
			mutate:  func(u *MemoryUnit) { u.Category = "OPINION" },
			wantErr: "invalid category",
		},
		{
			name:    "project scope without project name",
			mutate:  func(u *MemoryUnit) { u.ProjectName = "" },
			wantErr: "project_name is required",
		},
		{
			name:    "importance above one",
			mutate:  func(u *MemoryUnit) { u.Importance = 1.5 },
			wantErr: "importance must be between",
		},
		{
			name:    "importance below zero",
			mutate:  func(u *MemoryUnit) { u.Importance = -0.1 },
			wantErr: "importance must be between",
		},
		{
			name:    "bad lifecycle state",
			mutate:  func(u *MemoryUnit) { u.LifecycleState = "FROZEN" },
			wantErr: "invalid lifecycle_state",
		},
		{
			name: "too many tags",
			mutate: func(u *MemoryUnit) {
				for i := 0; i < MaxTags+1; i++ {
					u.Tags = append(u.Tags, "tag"+strings.Repeat("x", i%5+1))
				}
			},
			wantErr: "tags allowed",
		},
		{
			name:    "overlong tag",
			mutate:  func(u *MemoryUnit) { u.Tags = []string{strings.Repeat("a", MaxTagLength+1)} },
			wantErr: "exceeds 50 characters",
		},
		{
			name:    "provenance confidence out of range",
			mutate:  func(u *MemoryUnit) { u.Provenance.Confidence = 2 },
			wantErr: "confidence must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := valid()
			tt.mutate(unit)
			err := unit.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateContentLimits(t *testing.T) {
	assert.NoError(t, ValidateContent(strings.Repeat("a", MaxContentChars)))

	err := ValidateContent(strings.Repeat("a", MaxContentChars+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "characters")

	// Multi-byte runes trip the byte cap before the rune cap.
	err = ValidateContent(strings.Repeat("é", 30000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bytes")
}

func TestValidateContentInjectionPatterns(t *testing.T) {
	for _, content := range []string{
		"please DROP TABLE users",
		"run delete from memories",
		"x'; -- comment",
		"a UNION SELECT b",
	} {
		err := ValidateContent(content)
		require.Error(t, err, content)
		assert.Contains(t, err.Error(), "disallowed pattern")
	}

	assert.NoError(t, ValidateContent("dropped the table from the design doc"))
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"lowercase and trim", []string{" Go ", "TESTING"}, []string{"go", "testing"}},
		{"dedupe preserves first-seen order", []string{"b", "A", "a", "B"}, []string{"b", "a"}},
		{"drops empties", []string{"", "  ", "x"}, []string{"x"}},
		{"all empty collapses to nil", []string{"", " "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.in))
		})
	}
}

func TestLifecycleStateForAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ageDays int
		want    LifecycleState
	}{
		{0, LifecycleActive},
		{6, LifecycleActive},
		{7, LifecycleRecent},
		{29, LifecycleRecent},
		{30, LifecycleArchived},
		{179, LifecycleArchived},
		{180, LifecycleStale},
		{500, LifecycleStale},
	}
	for _, tt := range tests {
		got := LifecycleStateForAge(now.AddDate(0, 0, -tt.ageDays), now)
		assert.Equal(t, tt.want, got, "age %d days", tt.ageDays)
	}
}

func TestDecayWeightMonotonic(t *testing.T) {
	assert.Equal(t, 1.0, LifecycleActive.DecayWeight())
	assert.Equal(t, 0.7, LifecycleRecent.DecayWeight())
	assert.Equal(t, 0.3, LifecycleArchived.DecayWeight())
	assert.Equal(t, 0.1, LifecycleStale.DecayWeight())
}

func TestTouchResetsLifecycle(t *testing.T) {
	unit, err := NewMemoryUnit("stale fact", CategoryFact, ScopeGlobal, "")
	require.NoError(t, err)
	unit.LastAccessed = time.Now().UTC().AddDate(0, 0, -200)
	unit.RefreshLifecycle(time.Now().UTC())
	require.Equal(t, LifecycleStale, unit.LifecycleState)

	unit.Touch(time.Now().UTC())
	assert.Equal(t, LifecycleActive, unit.LifecycleState)
	assert.Equal(t, int64(1), unit.AccessCount)
}

func TestClone(t *testing.T) {
	unit, err := NewMemoryUnit("original", CategoryFact, ScopeGlobal, "")
	require.NoError(t, err)
	unit.Tags = []string{"a", "b"}
	unit.Metadata = map[string]interface{}{MetaLanguage: "go"}

	clone := unit.Clone()
	clone.Tags[0] = "mutated"
	clone.Metadata[MetaLanguage] = "rust"

	assert.Equal(t, "a", unit.Tags[0])
	assert.Equal(t, "go", unit.Metadata[MetaLanguage])
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, CategoryCode.Valid())
	assert.False(t, MemoryCategory("NOPE").Valid())
	assert.True(t, ContextSessionState.Valid())
	assert.False(t, ContextLevel("").Valid())
	assert.True(t, ScopeProject.Valid())
	assert.False(t, MemoryScope("LOCAL").Valid())
	assert.True(t, SourceCodeIndexed.Valid())
	assert.False(t, ProvenanceSource("UNKNOWN").Valid())
	assert.True(t, MergeContent.Valid())
	assert.False(t, MergeStrategy("SQUASH").Valid())
	assert.True(t, FeedbackHelpful.Valid())
	assert.False(t, FeedbackRating("MEH").Valid())
}

func TestRelationshipValidation(t *testing.T) {
	rel, err := NewMemoryRelationship("a", "b", RelationSupports, 0.8, "detector")
	require.NoError(t, err)
	assert.NotEmpty(t, rel.ID)
	assert.False(t, rel.DetectedAt.IsZero())

	_, err = NewMemoryRelationship("a", "a", RelationDuplicate, 0.9, "detector")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-referential")

	_, err = NewMemoryRelationship("a", "b", "FRIENDS", 0.5, "detector")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid relationship_type")

	_, err = NewMemoryRelationship("a", "b", RelationContradicts, 1.2, "detector")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence")
}
