package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcp-semantic-memory/pkg/types"
)

func TestContextLevelTable(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category types.MemoryCategory
		want     types.ContextLevel
	}{
		{
			name:     "explicit preference",
			content:  "I prefer tabs over spaces for indentation",
			category: types.CategoryPreference,
			want:     types.ContextUserPreference,
		},
		{
			name:     "preference phrasing without category boost",
			content:  "always use conventional commits, never use merge commits, rather than squashing",
			category: types.CategoryFact,
			want:     types.ContextUserPreference,
		},
		{
			name:     "current work is session state",
			content:  "Currently working on refactoring the database layer",
			category: types.CategoryEvent,
			want:     types.ContextSessionState,
		},
		{
			name:     "project architecture",
			content:  "This project uses PostgreSQL with a repository pattern architecture",
			category: types.CategoryContext,
			want:     types.ContextProjectContext,
		},
		{
			name:     "workflow boost lands on project",
			content:  "Deployment pipeline runs database migrations before the api restarts",
			category: types.CategoryWorkflow,
			want:     types.ContextProjectContext,
		},
		{
			name:     "neutral fact falls back to project default",
			content:  "The capital of France is Paris",
			category: types.CategoryFact,
			want:     types.ContextProjectContext,
		},
		{
			name:     "neutral event falls back to session default",
			content:  "Something happened earlier",
			category: types.CategoryEvent,
			want:     types.ContextSessionState,
		},
		{
			name:     "neutral preference falls back to user default",
			content:  "tabs",
			category: types.CategoryPreference,
			want:     types.ContextUserPreference,
		},
		{
			name:     "code constructs nudge toward project",
			content:  "func NewServer(cfg *Config) returns the configured service struct",
			category: types.CategoryCode,
			want:     types.ContextProjectContext,
		},
		{
			name:     "imperative opener nudges toward session",
			content:  "fix the flaky timeout next step before the release today",
			category: types.CategoryFact,
			want:     types.ContextSessionState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContextLevel(tt.content, tt.category))
		})
	}
}

func TestContextLevelDeterministicAndCaseInsensitive(t *testing.T) {
	content := "Currently WORKING ON the deployment pipeline"
	first := ContextLevel(content, types.CategoryEvent)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ContextLevel(content, types.CategoryEvent))
	}
	assert.Equal(t, first, ContextLevel(strings.ToLower(content), types.CategoryEvent))
	assert.Equal(t, first, ContextLevel(strings.ToUpper(content), types.CategoryEvent))
}

func TestContextLevelTiesPreferUserPreference(t *testing.T) {
	// No cues at all: every score is zero, the tie resolves before the
	// fallback threshold kicks in, and the category default decides.
	assert.Equal(t, types.ContextProjectContext, ContextLevel("plain text", types.CategoryFact))
	assert.Equal(t, types.ContextUserPreference, ContextLevel("plain text", types.CategoryPreference))
}
