package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		res := mustStore(t, src, fmt.Sprintf("exported memory %d", i), types.CategoryFact, "alpha")
		ids = append(ids, res.ID)
	}

	exported, err := src.ExportMemories(ctx, ExportOptions{IncludeEmbeddings: true})
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, exported.Document.Version)
	assert.Equal(t, SchemaVersion, exported.Document.SchemaVersion)
	assert.Equal(t, "full", exported.Document.ExportType)
	assert.Equal(t, 4, exported.Document.MemoryCount)
	assert.Len(t, exported.Embeddings, 4)

	dst := newTestService(t, ServiceConfig{})
	summary, err := dst.ImportMemories(ctx, exported.Document, ImportOptions{
		Mode:       ConflictSkip,
		Embeddings: exported.Embeddings,
	})
	require.NoError(t, err)
	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 4, summary.Imported)
	assert.Empty(t, summary.Errors)

	for _, id := range ids {
		orig, origVec, err := src.store.GetWithVector(ctx, id)
		require.NoError(t, err)
		got, gotVec, err := dst.store.GetWithVector(ctx, id)
		require.NoError(t, err, "ids survive the round trip")
		assert.Equal(t, orig.Content, got.Content)
		assert.Equal(t, orig.Category, got.Category)
		assert.Equal(t, origVec, gotVec, "sidecar embeddings reused, not regenerated")
	}
}

func TestExportFiltered(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	mustStore(t, svc, "alpha project note", types.CategoryFact, "alpha")
	mustStore(t, svc, "beta project note", types.CategoryFact, "beta")

	exported, err := svc.ExportMemories(ctx, ExportOptions{
		Filters: &types.SearchFilters{ProjectName: "alpha"},
	})
	require.NoError(t, err)
	assert.Equal(t, "filtered", exported.Document.ExportType)
	require.Len(t, exported.Document.Memories, 1)
	assert.Equal(t, "alpha", exported.Document.Memories[0].ProjectName)
	assert.Nil(t, exported.Embeddings)
}

func TestImportConflictModes(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Service, *ExportDocument, string) {
		svc := newTestService(t, ServiceConfig{})
		res := mustStore(t, svc, "existing content", types.CategoryFact, "")
		exported, err := svc.ExportMemories(ctx, ExportOptions{})
		require.NoError(t, err)
		// Mutate the exported copy so a conflict outcome is observable.
		incoming := exported.Document.Memories[0]
		incoming.Content = "incoming content"
		incoming.Importance = 0.95
		incoming.Tags = []string{"imported"}
		incoming.UpdatedAt = incoming.UpdatedAt.Add(time.Second)
		return svc, exported.Document, res.ID
	}

	t.Run("skip keeps existing", func(t *testing.T) {
		svc, doc, id := setup(t)
		summary, err := svc.ImportMemories(ctx, doc, ImportOptions{Mode: ConflictSkip})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		unit, err := svc.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "existing content", unit.Content)
	})

	t.Run("overwrite replaces", func(t *testing.T) {
		svc, doc, id := setup(t)
		summary, err := svc.ImportMemories(ctx, doc, ImportOptions{Mode: ConflictOverwrite})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Overwritten)
		unit, err := svc.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "incoming content", unit.Content)
	})

	t.Run("merge blends", func(t *testing.T) {
		svc, doc, id := setup(t)
		summary, err := svc.ImportMemories(ctx, doc, ImportOptions{Mode: ConflictMerge})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Merged)
		unit, err := svc.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "incoming content", unit.Content, "newer update wins content")
		assert.Equal(t, 0.95, unit.Importance)
		assert.Contains(t, unit.Tags, "imported")
	})

	t.Run("dry run mutates nothing", func(t *testing.T) {
		svc, doc, id := setup(t)
		summary, err := svc.ImportMemories(ctx, doc, ImportOptions{Mode: ConflictOverwrite, DryRun: true})
		require.NoError(t, err)
		assert.True(t, summary.DryRun)
		assert.Equal(t, 1, summary.Overwritten)
		unit, err := svc.store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "existing content", unit.Content)
	})
}

func TestImportAccumulatesErrors(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	good := mustUnit(t, "valid import record", types.CategoryFact)
	bad := mustUnit(t, "placeholder", types.CategoryFact)
	bad.Content = ""
	doc := &ExportDocument{
		Version:       ExportVersion,
		SchemaVersion: SchemaVersion,
		MemoryCount:   2,
		Memories:      []*types.MemoryUnit{bad, good},
	}

	summary, err := svc.ImportMemories(ctx, doc, ImportOptions{})
	require.NoError(t, err, "record failures never abort the batch")
	assert.Equal(t, "partial", summary.Status)
	assert.Equal(t, 1, summary.Imported)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], bad.ID)
}

func TestImportRejectsBadSchema(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	_, err := svc.ImportMemories(context.Background(), &ExportDocument{SchemaVersion: "2.0.0"}, ImportOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = svc.ImportMemories(context.Background(), nil, ImportOptions{})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.ImportMemories(context.Background(), &ExportDocument{SchemaVersion: SchemaVersion}, ImportOptions{Mode: "UPSERT"})
	assert.True(t, errors.IsValidation(err))
}

func TestArchiveRoundTrip(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	mustStore(t, svc, "archived memory one", types.CategoryFact, "")
	mustStore(t, svc, "archived memory two", types.CategoryFact, "")

	exported, err := svc.ExportMemories(ctx, ExportOptions{IncludeEmbeddings: true})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, WriteArchive(dir, exported))

	for _, name := range []string{"memories.json", "embeddings.json", "manifest.json", "checksums.sha256"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, statErr, name)
	}

	loaded, err := ReadArchive(dir)
	require.NoError(t, err)
	assert.Equal(t, exported.Document.MemoryCount, loaded.Document.MemoryCount)
	assert.Len(t, loaded.Embeddings, 2)
}

func TestArchiveDetectsTampering(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	mustStore(t, svc, "tamper target", types.CategoryFact, "")

	exported, err := svc.ExportMemories(ctx, ExportOptions{})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteArchive(dir, exported))

	path := filepath.Join(dir, "memories.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, '\n'), 0o640))

	_, err = ReadArchive(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}
