package codeindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

// maxFileBytes skips generated or vendored blobs masquerading as source.
const maxFileBytes = 1 << 20

// defaultCodeImportance is the importance assigned to indexed chunks; code
// context matters less than explicit user memories.
const defaultCodeImportance = 0.5

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	".idea":        true,
	".vscode":      true,
}

// Indexer turns a source tree into CODE-category memory units.
type Indexer struct {
	store      storage.VectorStore
	embeddings *embeddings.Service
	logger     logging.Logger
}

// NewIndexer builds a code indexer over the given store.
func NewIndexer(store storage.VectorStore, emb *embeddings.Service) *Indexer {
	return &Indexer{
		store:      store,
		embeddings: emb,
		logger:     logging.WithComponent("codeindex"),
	}
}

// IndexResult summarizes one indexing run. Per-file failures are collected,
// never fatal.
type IndexResult struct {
	FilesIndexed int      `json:"files_indexed"`
	FilesSkipped int      `json:"files_skipped"`
	ChunksStored int      `json:"chunks_stored"`
	Errors       []string `json:"errors,omitempty"`
}

// IndexCodebase walks root, chunks every recognized source file, and stores
// each chunk as a CODE memory in the given project.
func (ix *Indexer) IndexCodebase(ctx context.Context, root, projectName string) (*IndexResult, error) {
	if strings.TrimSpace(projectName) == "" {
		return nil, errors.NewValidationField("project_name", "cannot be empty")
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, errors.NewValidationField("path", "must be an existing directory")
	}

	result := &IndexResult{}
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, path+": "+err.Error())
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.FromContextErr("index_codebase", ctxErr)
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] || strings.HasPrefix(entry.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		language := DetectLanguage(path)
		if language == "" {
			return nil
		}
		if fi, statErr := entry.Info(); statErr == nil && fi.Size() > maxFileBytes {
			result.FilesSkipped++
			return nil
		}
		if fileErr := ix.indexFile(ctx, root, path, language, projectName, result); fileErr != nil {
			result.Errors = append(result.Errors, path+": "+fileErr.Error())
			result.FilesSkipped++
			return nil
		}
		result.FilesIndexed++
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	ix.logger.InfoContext(ctx, "codebase indexed",
		"project", projectName,
		"files", result.FilesIndexed,
		"chunks", result.ChunksStored,
		"skipped", result.FilesSkipped)
	return result, nil
}

func (ix *Indexer) indexFile(ctx context.Context, root, path, language, projectName string, result *IndexResult) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)

	chunks := SplitChunks(string(data))
	for i, chunk := range chunks {
		unit, err := types.NewMemoryUnit(chunk.Content, types.CategoryCode, types.ScopeProject, projectName)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s#%d: %v", relPath, i, err))
			continue
		}
		unit.ContextLevel = types.ContextProjectContext
		unit.Importance = defaultCodeImportance
		unit.Tags = types.NormalizeTags([]string{"code", language})
		unit.Provenance = types.DefaultProvenance(types.SourceCodeIndexed, "code-indexer")
		unit.Metadata = map[string]interface{}{
			types.MetaFilePath:     relPath,
			types.MetaLanguage:     language,
			types.MetaLineCount:    chunk.LineCount,
			types.MetaComplexity:   chunk.Complexity,
			types.MetaHasDoc:       chunk.HasDoc,
			types.MetaChunkIndex:   i,
			types.MetaFileModified: info.ModTime().UTC().Format(time.RFC3339),
		}
		if err := unit.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s#%d: %v", relPath, i, err))
			continue
		}
		vector, err := ix.embeddings.GetEmbedding(ctx, chunk.Content)
		if err != nil {
			return err
		}
		unit.EmbeddingModel = ix.embeddings.Model()
		if err := ix.store.Store(ctx, unit, vector); err != nil {
			return err
		}
		result.ChunksStored++
	}
	return nil
}
