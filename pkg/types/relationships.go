package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RelationshipType is the kind of a directed edge between two memories.
type RelationshipType string

const (
	RelationContradicts RelationshipType = "CONTRADICTS"
	RelationDuplicate   RelationshipType = "DUPLICATE"
	RelationSupports    RelationshipType = "SUPPORTS"
	RelationSupersedes  RelationshipType = "SUPERSEDES"
)

// Valid returns true if the relationship type is a known value.
func (rt RelationshipType) Valid() bool {
	switch rt {
	case RelationContradicts, RelationDuplicate, RelationSupports, RelationSupersedes:
		return true
	}
	return false
}

// MemoryRelationship is a derived, directed, typed edge between two memory
// ids. Relationships are advisory: they never own or mutate the memories
// they reference and may be recomputed at any time.
type MemoryRelationship struct {
	ID               string           `json:"id"`
	SourceID         string           `json:"source_id"`
	TargetID         string           `json:"target_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Confidence       float64          `json:"confidence"`
	DetectedBy       string           `json:"detected_by"`
	DetectedAt       time.Time        `json:"detected_at"`
	Notes            string           `json:"notes,omitempty"`
}

// NewMemoryRelationship creates a validated relationship edge.
func NewMemoryRelationship(sourceID, targetID string, relType RelationshipType, confidence float64, detectedBy string) (*MemoryRelationship, error) {
	rel := &MemoryRelationship{
		ID:               uuid.New().String(),
		SourceID:         sourceID,
		TargetID:         targetID,
		RelationshipType: relType,
		Confidence:       confidence,
		DetectedBy:       detectedBy,
		DetectedAt:       time.Now().UTC(),
	}
	if err := rel.Validate(); err != nil {
		return nil, err
	}
	return rel, nil
}

// Validate checks the relationship constraints.
func (mr *MemoryRelationship) Validate() error {
	if mr.SourceID == "" || mr.TargetID == "" {
		return errors.New("relationship requires both source_id and target_id")
	}
	if mr.SourceID == mr.TargetID {
		return errors.New("relationship cannot be self-referential")
	}
	if !mr.RelationshipType.Valid() {
		return fmt.Errorf("invalid relationship_type: %s", mr.RelationshipType)
	}
	if mr.Confidence < 0 || mr.Confidence > 1 {
		return errors.New("relationship confidence must be between 0 and 1")
	}
	return nil
}
