package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

// Export document identity.
const (
	ExportVersion = "1.0.0"
	SchemaVersion = "3.0.0"
)

// Archive file names.
const (
	memoriesFile   = "memories.json"
	embeddingsFile = "embeddings.json"
	manifestFile   = "manifest.json"
	checksumsFile  = "checksums.sha256"
)

// ExportDocument is the portable export contract.
type ExportDocument struct {
	Version       string               `json:"version"`
	SchemaVersion string               `json:"schema_version"`
	ExportDate    time.Time            `json:"export_date"`
	ExportType    string               `json:"export_type"`
	Filters       *types.SearchFilters `json:"filters,omitempty"`
	MemoryCount   int                  `json:"memory_count"`
	Memories      []*types.MemoryUnit  `json:"memories"`
}

// ExportOptions controls what an export carries.
type ExportOptions struct {
	Filters           *types.SearchFilters
	IncludeEmbeddings bool
}

// ExportResult pairs the document with the optional embedding sidecar.
type ExportResult struct {
	Document   *ExportDocument
	Embeddings map[string][]float64
}

// ExportMemories snapshots the matching corpus into an export document.
func (s *Service) ExportMemories(ctx context.Context, opts ExportOptions) (result *ExportResult, err error) {
	start := time.Now()
	defer func() { s.record("export_memories", start, err) }()

	if opts.Filters != nil {
		if err = opts.Filters.Validate(); err != nil {
			return nil, errors.NewValidation(err.Error())
		}
	}

	var units []*types.MemoryUnit
	offset := 0
	for {
		page, total, listErr := s.store.List(ctx, opts.Filters, storage.SortByCreatedAt, types.SortAsc, types.MaxListLimit, offset)
		if listErr != nil {
			return nil, listErr
		}
		units = append(units, page...)
		offset += len(page)
		if offset >= total || len(page) == 0 {
			break
		}
	}

	exportType := "full"
	if opts.Filters != nil {
		exportType = "filtered"
	}
	result = &ExportResult{
		Document: &ExportDocument{
			Version:       ExportVersion,
			SchemaVersion: SchemaVersion,
			ExportDate:    time.Now().UTC(),
			ExportType:    exportType,
			Filters:       opts.Filters,
			MemoryCount:   len(units),
			Memories:      units,
		},
	}

	if opts.IncludeEmbeddings {
		result.Embeddings = make(map[string][]float64, len(units))
		for _, unit := range units {
			_, vector, getErr := s.store.GetWithVector(ctx, unit.ID)
			if getErr != nil {
				s.logger.WarnContext(ctx, "export: embedding unavailable", "memory_id", unit.ID, "error", getErr.Error())
				continue
			}
			result.Embeddings[unit.ID] = vector
		}
	}
	return result, nil
}

// archiveManifest describes an export archive's contents.
type archiveManifest struct {
	Version       string    `json:"version"`
	SchemaVersion string    `json:"schema_version"`
	ExportDate    time.Time `json:"export_date"`
	MemoryCount   int       `json:"memory_count"`
	Files         []string  `json:"files"`
	HasEmbeddings bool      `json:"has_embeddings"`
}

// WriteArchive lays the export out as a portable directory: memories.json,
// optional embeddings.json, manifest.json, and checksums.sha256 covering
// every data file.
func WriteArchive(dir string, result *ExportResult) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	files := []string{memoriesFile}
	if err := writeJSON(filepath.Join(dir, memoriesFile), result.Document); err != nil {
		return err
	}
	if len(result.Embeddings) > 0 {
		if err := writeJSON(filepath.Join(dir, embeddingsFile), result.Embeddings); err != nil {
			return err
		}
		files = append(files, embeddingsFile)
	}

	manifest := archiveManifest{
		Version:       result.Document.Version,
		SchemaVersion: result.Document.SchemaVersion,
		ExportDate:    result.Document.ExportDate,
		MemoryCount:   result.Document.MemoryCount,
		Files:         files,
		HasEmbeddings: len(result.Embeddings) > 0,
	}
	if err := writeJSON(filepath.Join(dir, manifestFile), manifest); err != nil {
		return err
	}
	files = append(files, manifestFile)

	var checksums []byte
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		checksums = append(checksums, []byte(hex.EncodeToString(sum[:])+"  "+name+"\n")...)
	}
	if err := os.WriteFile(filepath.Join(dir, checksumsFile), checksums, 0o640); err != nil {
		return fmt.Errorf("write checksums: %w", err)
	}
	return nil
}

// ReadArchive loads an export archive, verifying every checksum.
func ReadArchive(dir string) (*ExportResult, error) {
	sums, err := os.ReadFile(filepath.Join(dir, checksumsFile))
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	if err := verifyChecksums(dir, sums); err != nil {
		return nil, err
	}

	var doc ExportDocument
	if err := readJSON(filepath.Join(dir, memoriesFile), &doc); err != nil {
		return nil, err
	}
	result := &ExportResult{Document: &doc}

	if _, err := os.Stat(filepath.Join(dir, embeddingsFile)); err == nil {
		result.Embeddings = make(map[string][]float64)
		if err := readJSON(filepath.Join(dir, embeddingsFile), &result.Embeddings); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func verifyChecksums(dir string, sums []byte) error {
	for _, line := range splitLines(sums) {
		var wantSum, name string
		if _, err := fmt.Sscanf(line, "%s  %s", &wantSum, &name); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("checksum target %s: %w", name, err)
		}
		got := sha256.Sum256(data)
		if hex.EncodeToString(got[:]) != wantSum {
			return fmt.Errorf("checksum mismatch for %s", name)
		}
	}
	return nil
}

func splitLines(data []byte) []string {
	var lines []string
	startAt := 0
	for i, b := range data {
		if b == '\n' {
			if i > startAt {
				lines = append(lines, string(data[startAt:i]))
			}
			startAt = i + 1
		}
	}
	if startAt < len(data) {
		lines = append(lines, string(data[startAt:]))
	}
	return lines
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
