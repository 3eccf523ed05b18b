// Package types provides the core data model for the semantic memory server:
// memory units, provenance, relationships, and query contracts.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Content limits enforced on every create, update, and import.
const (
	MaxContentChars = 50000
	MaxContentBytes = 51200
	MaxTags         = 20
	MaxTagLength    = 50
)

// Lifecycle age thresholds (days since last access).
const (
	LifecycleActiveDays   = 7
	LifecycleRecentDays   = 30
	LifecycleArchivedDays = 180
)

// injectionPatterns are screened out of content to keep stored payloads free
// of SQL-style injection text. Matching is case-insensitive.
var injectionPatterns = []string{
	"drop table",
	"delete from",
	"'; --",
	"union select",
}

// ContextLevel is the coarse relevance tier of a memory.
type ContextLevel string

const (
	ContextUserPreference ContextLevel = "USER_PREFERENCE"
	ContextProjectContext ContextLevel = "PROJECT_CONTEXT"
	ContextSessionState   ContextLevel = "SESSION_STATE"
)

// Valid returns true if the context level is a known value.
func (cl ContextLevel) Valid() bool {
	switch cl {
	case ContextUserPreference, ContextProjectContext, ContextSessionState:
		return true
	}
	return false
}

// MemoryCategory classifies what kind of information a memory holds.
type MemoryCategory string

const (
	CategoryPreference MemoryCategory = "PREFERENCE"
	CategoryFact       MemoryCategory = "FACT"
	CategoryEvent      MemoryCategory = "EVENT"
	CategoryWorkflow   MemoryCategory = "WORKFLOW"
	CategoryContext    MemoryCategory = "CONTEXT"
	CategoryCode       MemoryCategory = "CODE"
)

// Valid returns true if the category is a known value.
func (mc MemoryCategory) Valid() bool {
	switch mc {
	case CategoryPreference, CategoryFact, CategoryEvent, CategoryWorkflow, CategoryContext, CategoryCode:
		return true
	}
	return false
}

// MemoryScope determines whether a memory is global or bound to one project.
type MemoryScope string

const (
	ScopeGlobal  MemoryScope = "GLOBAL"
	ScopeProject MemoryScope = "PROJECT"
)

// Valid returns true if the scope is a known value.
func (ms MemoryScope) Valid() bool {
	return ms == ScopeGlobal || ms == ScopeProject
}

// LifecycleState is the age-derived decay tier of a memory.
type LifecycleState string

const (
	LifecycleActive   LifecycleState = "ACTIVE"
	LifecycleRecent   LifecycleState = "RECENT"
	LifecycleArchived LifecycleState = "ARCHIVED"
	LifecycleStale    LifecycleState = "STALE"
)

// Valid returns true if the lifecycle state is a known value.
func (ls LifecycleState) Valid() bool {
	switch ls {
	case LifecycleActive, LifecycleRecent, LifecycleArchived, LifecycleStale:
		return true
	}
	return false
}

// DecayWeight returns the composite-scoring weight for the lifecycle state.
func (ls LifecycleState) DecayWeight() float64 {
	switch ls {
	case LifecycleActive:
		return 1.0
	case LifecycleRecent:
		return 0.7
	case LifecycleArchived:
		return 0.3
	case LifecycleStale:
		return 0.1
	default:
		return 0.1
	}
}

// LifecycleStateForAge derives the lifecycle state from the time of last
// access. The derivation is a pure function of now-lastAccessed against the
// 7/30/180-day threshold table.
func LifecycleStateForAge(lastAccessed, now time.Time) LifecycleState {
	age := now.Sub(lastAccessed)
	switch {
	case age < LifecycleActiveDays*24*time.Hour:
		return LifecycleActive
	case age < LifecycleRecentDays*24*time.Hour:
		return LifecycleRecent
	case age < LifecycleArchivedDays*24*time.Hour:
		return LifecycleArchived
	default:
		return LifecycleStale
	}
}

// ProvenanceSource identifies where a memory originated.
type ProvenanceSource string

const (
	SourceUserExplicit   ProvenanceSource = "USER_EXPLICIT"
	SourceClaudeInferred ProvenanceSource = "CLAUDE_INFERRED"
	SourceDocumentation  ProvenanceSource = "DOCUMENTATION"
	SourceAutoClassified ProvenanceSource = "AUTO_CLASSIFIED"
	SourceImported       ProvenanceSource = "IMPORTED"
	SourceCodeIndexed    ProvenanceSource = "CODE_INDEXED"
	SourceLegacy         ProvenanceSource = "LEGACY"
)

// Valid returns true if the provenance source is a known value.
func (ps ProvenanceSource) Valid() bool {
	switch ps {
	case SourceUserExplicit, SourceClaudeInferred, SourceDocumentation,
		SourceAutoClassified, SourceImported, SourceCodeIndexed, SourceLegacy:
		return true
	}
	return false
}

// MergeStrategy selects how merge_memories picks or builds the survivor.
type MergeStrategy string

const (
	MergeKeepMostRecent        MergeStrategy = "KEEP_MOST_RECENT"
	MergeKeepHighestImportance MergeStrategy = "KEEP_HIGHEST_IMPORTANCE"
	MergeKeepMostAccessed      MergeStrategy = "KEEP_MOST_ACCESSED"
	MergeContent               MergeStrategy = "MERGE_CONTENT"
	MergeUserSelected          MergeStrategy = "USER_SELECTED"
)

// Valid returns true if the merge strategy is a known value.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeKeepMostRecent, MergeKeepHighestImportance, MergeKeepMostAccessed, MergeContent, MergeUserSelected:
		return true
	}
	return false
}

// FeedbackRating is user feedback on a search result.
type FeedbackRating string

const (
	FeedbackHelpful    FeedbackRating = "HELPFUL"
	FeedbackNotHelpful FeedbackRating = "NOT_HELPFUL"
)

// Valid returns true if the rating is a known value.
func (fr FeedbackRating) Valid() bool {
	return fr == FeedbackHelpful || fr == FeedbackNotHelpful
}

// MemoryProvenance records how a memory entered the system and how much it
// is trusted.
type MemoryProvenance struct {
	Source         ProvenanceSource `json:"source"`
	CreatedBy      string           `json:"created_by"`
	LastConfirmed  *time.Time       `json:"last_confirmed,omitempty"`
	Confidence     float64          `json:"confidence"`
	Verified       bool             `json:"verified"`
	ConversationID string           `json:"conversation_id,omitempty"`
	FileContext    []string         `json:"file_context,omitempty"`
	Notes          string           `json:"notes,omitempty"`
}

// DefaultProvenance returns a provenance record with the default confidence.
func DefaultProvenance(source ProvenanceSource, createdBy string) MemoryProvenance {
	return MemoryProvenance{
		Source:     source,
		CreatedBy:  createdBy,
		Confidence: 0.8,
	}
}

// Validate checks provenance constraints.
func (mp *MemoryProvenance) Validate() error {
	if !mp.Source.Valid() {
		return fmt.Errorf("invalid provenance source: %s", mp.Source)
	}
	if mp.Confidence < 0 || mp.Confidence > 1 {
		return errors.New("provenance confidence must be between 0 and 1")
	}
	return nil
}

// MemoryUnit is the core persistent record: content plus metadata plus an
// embedding vector.
type MemoryUnit struct {
	ID             string                 `json:"id"`
	Content        string                 `json:"content"`
	Category       MemoryCategory         `json:"category"`
	ContextLevel   ContextLevel           `json:"context_level"`
	Scope          MemoryScope            `json:"scope"`
	ProjectName    string                 `json:"project_name,omitempty"`
	Importance     float64                `json:"importance"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	LastAccessed   time.Time              `json:"last_accessed"`
	LifecycleState LifecycleState         `json:"lifecycle_state"`
	Provenance     MemoryProvenance       `json:"provenance"`
	Tags           []string               `json:"tags,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	AccessCount    int64                  `json:"access_count"`
}

// NewMemoryUnit creates a validated memory unit with a fresh id and
// create/update/access timestamps set to now.
func NewMemoryUnit(content string, category MemoryCategory, scope MemoryScope, projectName string) (*MemoryUnit, error) {
	now := time.Now().UTC()
	unit := &MemoryUnit{
		ID:             uuid.New().String(),
		Content:        strings.TrimSpace(content),
		Category:       category,
		Scope:          scope,
		ProjectName:    projectName,
		Importance:     0.5,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessed:   now,
		LifecycleState: LifecycleActive,
		Provenance:     DefaultProvenance(SourceClaudeInferred, "memory-engine"),
	}
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	return unit, nil
}

// Validate enforces every model invariant. A unit that fails validation is
// never observable by downstream components.
func (mu *MemoryUnit) Validate() error {
	if mu.ID == "" {
		return errors.New("id cannot be empty")
	}
	if err := ValidateContent(mu.Content); err != nil {
		return err
	}
	if !mu.Category.Valid() {
		return fmt.Errorf("invalid category: %s", mu.Category)
	}
	if mu.ContextLevel != "" && !mu.ContextLevel.Valid() {
		return fmt.Errorf("invalid context_level: %s", mu.ContextLevel)
	}
	if !mu.Scope.Valid() {
		return fmt.Errorf("invalid scope: %s", mu.Scope)
	}
	if mu.Scope == ScopeProject && strings.TrimSpace(mu.ProjectName) == "" {
		return errors.New("project_name is required when scope is PROJECT")
	}
	if mu.Importance < 0 || mu.Importance > 1 {
		return errors.New("importance must be between 0.0 and 1.0")
	}
	if mu.LifecycleState != "" && !mu.LifecycleState.Valid() {
		return fmt.Errorf("invalid lifecycle_state: %s", mu.LifecycleState)
	}
	if err := mu.Provenance.Validate(); err != nil {
		return fmt.Errorf("invalid provenance: %w", err)
	}
	if len(mu.Tags) > MaxTags {
		return fmt.Errorf("at most %d tags allowed, got %d", MaxTags, len(mu.Tags))
	}
	for _, tag := range mu.Tags {
		if len(tag) > MaxTagLength {
			return fmt.Errorf("tag %q exceeds %d characters", tag, MaxTagLength)
		}
	}
	return nil
}

// NormalizeTags trims, lower-cases, deduplicates, and drops empty tags while
// preserving first-seen order. All tag comparison anywhere in the system
// happens on normalized tags.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ValidateContent enforces the content constraints: non-empty after
// trimming, bounded in characters and UTF-8 bytes, and free of SQL-style
// injection patterns.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("content cannot be empty")
	}
	runes := len([]rune(trimmed))
	if runes > MaxContentChars {
		return fmt.Errorf("content exceeds %d characters (got %d)", MaxContentChars, runes)
	}
	if len(trimmed) > MaxContentBytes {
		return fmt.Errorf("content exceeds %d bytes (got %d)", MaxContentBytes, len(trimmed))
	}
	lowered := strings.ToLower(trimmed)
	for _, pattern := range injectionPatterns {
		if strings.Contains(lowered, pattern) {
			return fmt.Errorf("content contains disallowed pattern %q", pattern)
		}
	}
	return nil
}

// Touch marks the unit as accessed now and re-derives the lifecycle state.
// Access moves the state back toward ACTIVE, never forward.
func (mu *MemoryUnit) Touch(now time.Time) {
	mu.LastAccessed = now
	mu.AccessCount++
	mu.LifecycleState = LifecycleStateForAge(mu.LastAccessed, now)
}

// RefreshLifecycle re-derives the lifecycle state from the last access time.
func (mu *MemoryUnit) RefreshLifecycle(now time.Time) {
	mu.LifecycleState = LifecycleStateForAge(mu.LastAccessed, now)
}

// Clone returns a deep copy of the unit. Tags and metadata are copied so
// callers can mutate the clone freely.
func (mu *MemoryUnit) Clone() *MemoryUnit {
	clone := *mu
	if mu.Tags != nil {
		clone.Tags = append([]string(nil), mu.Tags...)
	}
	if mu.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(mu.Metadata))
		for k, v := range mu.Metadata {
			clone.Metadata[k] = v
		}
	}
	if mu.Provenance.FileContext != nil {
		clone.Provenance.FileContext = append([]string(nil), mu.Provenance.FileContext...)
	}
	return &clone
}

// Metadata keys recognized by the code-indexing pipeline. Everything else in
// Metadata is opaque to the engine.
const (
	MetaFilePath     = "file_path"
	MetaLanguage     = "language"
	MetaLineCount    = "line_count"
	MetaComplexity   = "complexity"
	MetaFileModified = "file_modified"
	MetaHasDoc       = "has_documentation"
	MetaMergedFrom   = "merged_from"
	MetaMergedAt     = "merged_at"
	MetaChunkIndex   = "chunk_index"
)
