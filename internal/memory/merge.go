package memory

import (
	"context"
	"strings"
	"time"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

// MergeResult reports which record survived a merge and which were absorbed.
type MergeResult struct {
	SurvivorID  string   `json:"survivor_id"`
	AbsorbedIDs []string `json:"absorbed_ids"`
	Strategy    string   `json:"strategy"`
}

// MergeMemories collapses two or more units into one survivor per the merge
// strategy. The survivor absorbs tags and records the merge in its metadata;
// absorbed units are deleted in the same logical operation.
func (s *Service) MergeMemories(ctx context.Context, ids []string, strategy types.MergeStrategy, keepID string) (result *MergeResult, err error) {
	start := time.Now()
	defer func() { s.record("merge_memories", start, err) }()

	if err = s.rejectIfReadOnly("merge_memories"); err != nil {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, errors.NewValidationField("memory_ids", "at least two ids are required")
	}
	if !strategy.Valid() {
		return nil, errors.NewValidationField("strategy", "invalid merge strategy: "+string(strategy))
	}
	if strategy == types.MergeUserSelected && keepID == "" {
		return nil, errors.NewValidationField("keep_id", "required for USER_SELECTED merges")
	}

	seen := make(map[string]bool, len(ids))
	units := make([]*types.MemoryUnit, 0, len(ids))
	vectors := make(map[string][]float64, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, errors.NewValidationField("memory_ids", "duplicate id: "+id)
		}
		seen[id] = true
		unit, vector, getErr := s.store.GetWithVector(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		units = append(units, unit)
		vectors[id] = vector
	}
	if keepID != "" && !seen[keepID] {
		return nil, errors.NewValidationField("keep_id", "must be one of memory_ids")
	}

	survivor := pickSurvivor(units, strategy, keepID)
	vector := vectors[survivor.ID]

	absorbed := make([]string, 0, len(units)-1)
	maxImportance := survivor.Importance
	tags := append([]string(nil), survivor.Tags...)
	for _, unit := range units {
		if unit.ID == survivor.ID {
			continue
		}
		absorbed = append(absorbed, unit.ID)
		tags = append(tags, unit.Tags...)
		if unit.Importance > maxImportance {
			maxImportance = unit.Importance
		}
	}

	if strategy == types.MergeContent {
		parts := make([]string, 0, len(units))
		for _, unit := range units {
			parts = append(parts, unit.Content)
		}
		survivor.Content = strings.Join(parts, "\n\n")
		vector, err = s.embeddings.GetEmbedding(ctx, survivor.Content)
		if err != nil {
			return nil, err
		}
		survivor.EmbeddingModel = s.embeddings.Model()
	}

	survivor.Importance = maxImportance
	survivor.Tags = types.NormalizeTags(tags)
	if survivor.Metadata == nil {
		survivor.Metadata = make(map[string]interface{})
	}
	survivor.Metadata[types.MetaMergedFrom] = absorbed
	survivor.Metadata[types.MetaMergedAt] = time.Now().UTC().Format(time.RFC3339)
	survivor.UpdatedAt = time.Now().UTC()
	if err = survivor.Validate(); err != nil {
		return nil, errors.NewValidation(err.Error())
	}

	if err = s.store.Update(ctx, survivor, vector); err != nil {
		return nil, err
	}
	for _, id := range absorbed {
		if delErr := s.store.Delete(ctx, id); delErr != nil && !errors.IsNotFound(delErr) {
			return nil, delErr
		}
	}
	return &MergeResult{
		SurvivorID:  survivor.ID,
		AbsorbedIDs: absorbed,
		Strategy:    string(strategy),
	}, nil
}

func pickSurvivor(units []*types.MemoryUnit, strategy types.MergeStrategy, keepID string) *types.MemoryUnit {
	if keepID != "" {
		for _, unit := range units {
			if unit.ID == keepID {
				return unit
			}
		}
	}
	survivor := units[0]
	switch strategy {
	case types.MergeKeepHighestImportance:
		for _, unit := range units[1:] {
			if unit.Importance > survivor.Importance {
				survivor = unit
			}
		}
	case types.MergeKeepMostAccessed:
		for _, unit := range units[1:] {
			if unit.AccessCount > survivor.AccessCount {
				survivor = unit
			}
		}
	default:
		// KEEP_MOST_RECENT and MERGE_CONTENT keep the freshest record.
		for _, unit := range units[1:] {
			if unit.UpdatedAt.After(survivor.UpdatedAt) {
				survivor = unit
			}
		}
	}
	return survivor
}
