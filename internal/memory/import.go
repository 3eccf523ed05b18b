package memory

import (
	"context"
	"strings"
	"time"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

// ConflictMode decides what happens when an imported id already exists.
type ConflictMode string

const (
	ConflictSkip      ConflictMode = "SKIP"
	ConflictOverwrite ConflictMode = "OVERWRITE"
	ConflictMerge     ConflictMode = "MERGE"
)

// Valid returns true if the conflict mode is a known value.
func (cm ConflictMode) Valid() bool {
	switch cm {
	case ConflictSkip, ConflictOverwrite, ConflictMerge:
		return true
	}
	return false
}

// ImportOptions controls an import run.
type ImportOptions struct {
	Mode   ConflictMode
	DryRun bool
	// Embeddings maps memory id to a precomputed vector; missing entries
	// are regenerated from content.
	Embeddings map[string][]float64
}

// ImportSummary accumulates per-record outcomes; a failing record never
// aborts the batch.
type ImportSummary struct {
	Status      string   `json:"status"`
	Imported    int      `json:"imported"`
	Skipped     int      `json:"skipped"`
	Overwritten int      `json:"overwritten"`
	Merged      int      `json:"merged"`
	DryRun      bool     `json:"dry_run"`
	Errors      []string `json:"errors,omitempty"`
}

// ImportMemories loads an export document into the store under the given
// conflict mode. Record ids are preserved when they do not collide.
func (s *Service) ImportMemories(ctx context.Context, doc *ExportDocument, opts ImportOptions) (summary *ImportSummary, err error) {
	start := time.Now()
	defer func() { s.record("import_memories", start, err) }()

	if err = s.rejectIfReadOnly("import_memories"); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.NewValidationField("document", "cannot be nil")
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, errors.NewValidationField("schema_version",
			"unsupported schema version "+doc.SchemaVersion+" (want "+SchemaVersion+")")
	}
	if opts.Mode == "" {
		opts.Mode = ConflictSkip
	}
	if !opts.Mode.Valid() {
		return nil, errors.NewValidationField("mode", "invalid conflict mode: "+string(opts.Mode))
	}

	summary = &ImportSummary{DryRun: opts.DryRun}
	for _, record := range doc.Memories {
		if importErr := s.importOne(ctx, record, opts, summary); importErr != nil {
			summary.Errors = append(summary.Errors, record.ID+": "+importErr.Error())
		}
	}
	summary.Status = "success"
	if len(summary.Errors) > 0 {
		summary.Status = "partial"
	}
	return summary, nil
}

func (s *Service) importOne(ctx context.Context, record *types.MemoryUnit, opts ImportOptions, summary *ImportSummary) error {
	incoming := record.Clone()
	if strings.TrimSpace(incoming.ID) == "" {
		return errors.NewValidationField("id", "cannot be empty")
	}
	if incoming.Provenance.Source == "" {
		incoming.Provenance = types.DefaultProvenance(types.SourceImported, "import")
	}
	if err := incoming.Validate(); err != nil {
		return errors.NewValidation(err.Error())
	}

	existing, _, getErr := s.store.GetWithVector(ctx, incoming.ID)
	switch {
	case getErr == nil:
		// Conflict: the id is already present.
		switch opts.Mode {
		case ConflictSkip:
			summary.Skipped++
			return nil
		case ConflictOverwrite:
			if opts.DryRun {
				summary.Overwritten++
				return nil
			}
			vector, err := s.importVector(ctx, incoming, opts)
			if err != nil {
				return err
			}
			if err := s.store.Update(ctx, incoming, vector); err != nil {
				return err
			}
			summary.Overwritten++
			return nil
		case ConflictMerge:
			merged := mergeImported(existing, incoming)
			if opts.DryRun {
				summary.Merged++
				return nil
			}
			vector, err := s.importVector(ctx, merged, opts)
			if err != nil {
				return err
			}
			if err := s.store.Update(ctx, merged, vector); err != nil {
				return err
			}
			summary.Merged++
			return nil
		}
		return nil
	case errors.IsNotFound(getErr):
		if opts.DryRun {
			summary.Imported++
			return nil
		}
		vector, err := s.importVector(ctx, incoming, opts)
		if err != nil {
			return err
		}
		if err := s.store.Store(ctx, incoming, vector); err != nil {
			return err
		}
		summary.Imported++
		return nil
	default:
		return getErr
	}
}

// importVector prefers a sidecar embedding with the right dimension and
// regenerates otherwise.
func (s *Service) importVector(ctx context.Context, unit *types.MemoryUnit, opts ImportOptions) ([]float64, error) {
	if vector, ok := opts.Embeddings[unit.ID]; ok && len(vector) == s.embeddings.Dimension() {
		return vector, nil
	}
	vector, err := s.embeddings.GetEmbedding(ctx, unit.Content)
	if err != nil {
		return nil, err
	}
	unit.EmbeddingModel = s.embeddings.Model()
	return vector, nil
}

// mergeImported blends an incoming record into an existing one: the newer
// content wins, tags union, importance takes the max, timestamps keep the
// earliest creation and latest update.
func mergeImported(existing, incoming *types.MemoryUnit) *types.MemoryUnit {
	merged := existing.Clone()
	if incoming.UpdatedAt.After(existing.UpdatedAt) {
		merged.Content = incoming.Content
		merged.Category = incoming.Category
		merged.ContextLevel = incoming.ContextLevel
		merged.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.Importance > merged.Importance {
		merged.Importance = incoming.Importance
	}
	merged.Tags = types.NormalizeTags(append(merged.Tags, incoming.Tags...))
	if incoming.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = incoming.CreatedAt
	}
	for k, v := range incoming.Metadata {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]interface{})
		}
		if _, taken := merged.Metadata[k]; !taken {
			merged.Metadata[k] = v
		}
	}
	return merged
}
