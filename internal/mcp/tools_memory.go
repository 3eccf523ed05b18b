package mcp

import (
	"context"
	"strings"

	mcp "github.com/fredcamaral/gomcp-sdk"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/memory"
	"mcp-semantic-memory/pkg/types"
)

func (s *Server) registerMemoryTools() {
	s.addTool("store_memory",
		"Store a new memory with automatic context-level classification, embedding generation, and advisory relationship detection against its semantic neighborhood.",
		mcp.ObjectSchema("store_memory arguments", map[string]interface{}{
			"content":       stringProp("The information to remember"),
			"category":      enumProp("What kind of information this is", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"scope":         enumProp("GLOBAL applies everywhere; PROJECT binds to project_name", "GLOBAL", "PROJECT"),
			"project_name":  stringProp("Project this memory belongs to (required when scope is PROJECT)"),
			"importance":    numberProp("Importance from 0.0 to 1.0 (default 0.5)"),
			"tags":          arrayProp("Tags for filtering; normalized to lowercase", "string"),
			"metadata":      objectProp("Arbitrary additional metadata"),
			"context_level": enumProp("Explicit context level; auto-classified when omitted", "USER_PREFERENCE", "PROJECT_CONTEXT", "SESSION_STATE"),
		}, []string{"content", "category"}),
		s.handleStoreMemory)

	s.addTool("retrieve_memories",
		"Semantic search over stored memories with optional filters, session deduplication, and composite re-ranking.",
		mcp.ObjectSchema("retrieve_memories arguments", map[string]interface{}{
			"query":            stringProp("Natural-language search query"),
			"limit":            integerProp("Maximum results to return (default 5, max 100)"),
			"context_level":    enumProp("Restrict to one context level", "USER_PREFERENCE", "PROJECT_CONTEXT", "SESSION_STATE"),
			"scope":            enumProp("Restrict to one scope", "GLOBAL", "PROJECT"),
			"project_name":     stringProp("Restrict to one project"),
			"category":         enumProp("Restrict to one category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"min_importance":   numberProp("Minimum importance from 0.0 to 1.0"),
			"tags":             arrayProp("Require these tags", "string"),
			"session_id":       stringProp("Session id enabling dedup of already-shown results and query expansion"),
			"advanced_filters": objectProp("Date ranges, tag logic, lifecycle states, exclusions, provenance predicates"),
		}, []string{"query"}),
		s.handleRetrieveMemories)

	s.addTool("get_memory_by_id",
		"Fetch one memory by id and mark it accessed.",
		mcp.ObjectSchema("get_memory_by_id arguments", map[string]interface{}{
			"memory_id": stringProp("Id of the memory to fetch"),
		}, []string{"memory_id"}),
		s.handleGetMemoryByID)

	s.addTool("update_memory",
		"Update attributes of an existing memory. At least one field besides memory_id must be provided.",
		mcp.ObjectSchema("update_memory arguments", map[string]interface{}{
			"memory_id":            stringProp("Id of the memory to update"),
			"content":              stringProp("Replacement content"),
			"category":             enumProp("Replacement category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"context_level":        enumProp("Replacement context level", "USER_PREFERENCE", "PROJECT_CONTEXT", "SESSION_STATE"),
			"importance":           numberProp("Replacement importance from 0.0 to 1.0"),
			"tags":                 arrayProp("Replacement tag set", "string"),
			"metadata":             objectProp("Replacement metadata"),
			"regenerate_embedding": boolProp("Re-embed when content changed"),
			"preserve_timestamps":  boolProp("Keep created_at (default true)"),
		}, []string{"memory_id"}),
		s.handleUpdateMemory)

	s.addTool("delete_memory",
		"Delete one memory by id.",
		mcp.ObjectSchema("delete_memory arguments", map[string]interface{}{
			"memory_id": stringProp("Id of the memory to delete"),
		}, []string{"memory_id"}),
		s.handleDeleteMemory)

	s.addTool("delete_memories_by_query",
		"Bulk-delete memories matching filters, capped at 1000 per call. Use dry_run to preview what would be deleted.",
		mcp.ObjectSchema("delete_memories_by_query arguments", map[string]interface{}{
			"category":       enumProp("Restrict to one category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"context_level":  enumProp("Restrict to one context level", "USER_PREFERENCE", "PROJECT_CONTEXT", "SESSION_STATE"),
			"scope":          enumProp("Restrict to one scope", "GLOBAL", "PROJECT"),
			"project_name":   stringProp("Restrict to one project"),
			"min_importance": numberProp("Minimum importance"),
			"max_importance": numberProp("Maximum importance"),
			"created_after":  stringProp("RFC 3339 lower bound on creation time"),
			"created_before": stringProp("RFC 3339 upper bound on creation time"),
			"tags":           arrayProp("Require these tags", "string"),
			"max_count":      integerProp("Cap on deletions for this call (default and max 1000)"),
			"dry_run":        boolProp("Report matches without deleting"),
		}, nil),
		s.handleDeleteByQuery)

	s.addTool("list_memories",
		"List memories matching filters as a sorted, paginated window.",
		mcp.ObjectSchema("list_memories arguments", map[string]interface{}{
			"category":      enumProp("Restrict to one category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"context_level": enumProp("Restrict to one context level", "USER_PREFERENCE", "PROJECT_CONTEXT", "SESSION_STATE"),
			"scope":         enumProp("Restrict to one scope", "GLOBAL", "PROJECT"),
			"project_name":  stringProp("Restrict to one project"),
			"tags":          arrayProp("Require these tags", "string"),
			"sort_by":       enumProp("Sort column (default created_at)", "created_at", "updated_at", "importance"),
			"sort_order":    enumProp("Sort direction (default desc)", "asc", "desc"),
			"limit":         integerProp("Page size from 1 to 100 (default 20)"),
			"offset":        integerProp("Pagination offset"),
		}, nil),
		s.handleListMemories)

	s.addTool("migrate_memory_scope",
		"Move a memory between GLOBAL and PROJECT scope.",
		mcp.ObjectSchema("migrate_memory_scope arguments", map[string]interface{}{
			"memory_id":    stringProp("Id of the memory to migrate"),
			"scope":        enumProp("Target scope", "GLOBAL", "PROJECT"),
			"project_name": stringProp("Target project (required when scope is PROJECT)"),
		}, []string{"memory_id", "scope"}),
		s.handleMigrateScope)

	s.addTool("bulk_reclassify",
		"Re-derive the context level for every memory matching the filters and persist changes.",
		mcp.ObjectSchema("bulk_reclassify arguments", map[string]interface{}{
			"category":     enumProp("Restrict to one category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"scope":        enumProp("Restrict to one scope", "GLOBAL", "PROJECT"),
			"project_name": stringProp("Restrict to one project"),
			"tags":         arrayProp("Require these tags", "string"),
		}, nil),
		s.handleBulkReclassify)

	s.addTool("find_duplicate_memories",
		"Find semantic near-duplicates. With memory_id, returns that memory's duplicates; without, clusters the whole filtered corpus.",
		mcp.ObjectSchema("find_duplicate_memories arguments", map[string]interface{}{
			"memory_id":    stringProp("Probe a single memory instead of scanning the corpus"),
			"threshold":    numberProp("Similarity floor for the single-memory probe (default 0.85)"),
			"category":     enumProp("Corpus-scan filter: category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"scope":        enumProp("Corpus-scan filter: scope", "GLOBAL", "PROJECT"),
			"project_name": stringProp("Corpus-scan filter: project"),
		}, nil),
		s.handleFindDuplicates)

	s.addTool("merge_memories",
		"Merge two or more memories into one survivor. Absorbed memories are deleted and recorded in the survivor's metadata.",
		mcp.ObjectSchema("merge_memories arguments", map[string]interface{}{
			"memory_ids": arrayProp("Ids to merge (at least two)", "string"),
			"strategy":   enumProp("How the survivor is chosen or built (default KEEP_MOST_RECENT)", "KEEP_MOST_RECENT", "KEEP_HIGHEST_IMPORTANCE", "KEEP_MOST_ACCESSED", "MERGE_CONTENT", "USER_SELECTED"),
			"keep_id":    stringProp("Survivor id (required for USER_SELECTED)"),
		}, []string{"memory_ids"}),
		s.handleMergeMemories)

	s.addTool("export_memories",
		"Export matching memories as a portable document, optionally with the embedding sidecar, optionally written as a checksummed archive directory.",
		mcp.ObjectSchema("export_memories arguments", map[string]interface{}{
			"category":           enumProp("Restrict to one category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"scope":              enumProp("Restrict to one scope", "GLOBAL", "PROJECT"),
			"project_name":       stringProp("Restrict to one project"),
			"tags":               arrayProp("Require these tags", "string"),
			"include_embeddings": boolProp("Include the embedding sidecar"),
			"archive_path":       stringProp("Directory to write the archive into (memories.json, manifest.json, checksums.sha256)"),
		}, nil),
		s.handleExportMemories)

	s.addTool("import_memories",
		"Import an export document or archive directory under a conflict mode. Per-record failures are collected, never fatal.",
		mcp.ObjectSchema("import_memories arguments", map[string]interface{}{
			"document":     objectProp("Export document to import (alternative to archive_path)"),
			"archive_path": stringProp("Archive directory to import, checksum-verified (alternative to document)"),
			"mode":         enumProp("Conflict mode when an id already exists (default SKIP)", "SKIP", "OVERWRITE", "MERGE"),
			"dry_run":      boolProp("Report counts without mutating"),
		}, nil),
		s.handleImportMemories)

	s.addTool("retrieve_preferences",
		"Retrieve USER_PREFERENCE memories matching a query.",
		mcp.ObjectSchema("retrieve_preferences arguments", map[string]interface{}{
			"query": stringProp("Natural-language search query"),
			"limit": integerProp("Maximum results (default 5)"),
		}, []string{"query"}),
		s.handleRetrievePreferences)

	s.addTool("retrieve_project_context",
		"Retrieve PROJECT_CONTEXT memories for a project matching a query.",
		mcp.ObjectSchema("retrieve_project_context arguments", map[string]interface{}{
			"query":        stringProp("Natural-language search query"),
			"project_name": stringProp("Project to search"),
			"limit":        integerProp("Maximum results (default 5)"),
		}, []string{"query"}),
		s.handleRetrieveProjectContext)

	s.addTool("retrieve_session_state",
		"Retrieve SESSION_STATE memories matching a query.",
		mcp.ObjectSchema("retrieve_session_state arguments", map[string]interface{}{
			"query": stringProp("Natural-language search query"),
			"limit": integerProp("Maximum results (default 5)"),
		}, []string{"query"}),
		s.handleRetrieveSessionState)
}

func (s *Server) handleStoreMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	rawCategory, err := stringArg(args, "category")
	if err != nil {
		return nil, err
	}

	req := &memory.StoreRequest{
		Content:     content,
		Category:    types.MemoryCategory(strings.ToUpper(rawCategory)),
		Scope:       types.ScopeGlobal,
		ProjectName: optionalString(args, "project_name"),
		Importance:  optionalFloat(args, "importance"),
		Tags:        optionalStringSlice(args, "tags"),
		Metadata:    optionalObject(args, "metadata"),
	}
	if raw := optionalString(args, "scope"); raw != "" {
		req.Scope = types.MemoryScope(strings.ToUpper(raw))
	}
	if raw := optionalString(args, "context_level"); raw != "" {
		level := types.ContextLevel(strings.ToUpper(raw))
		req.ContextLevel = &level
	}

	result, err := s.deps.Memory.StoreMemory(ctx, req)
	if err != nil {
		return nil, err
	}

	response := map[string]interface{}{
		"status":        "success",
		"memory_id":     result.ID,
		"context_level": result.ContextLevel,
	}
	// Relationship detection is advisory; a failure never fails the store.
	if s.deps.Relationships != nil {
		if unit, _, getErr := s.deps.Memory.Store().GetWithVector(ctx, result.ID); getErr == nil {
			if edges, detectErr := s.deps.Relationships.DetectRelationships(ctx, unit); detectErr == nil && len(edges) > 0 {
				response["relationships"] = edges
			}
		}
	}
	return response, nil
}

func (s *Server) handleRetrieveMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var req types.QueryRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.deps.Memory.Retrieve(ctx, &req)
}

func (s *Server) handleGetMemoryByID(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := stringArg(args, "memory_id")
	if err != nil {
		return nil, err
	}
	return s.deps.Memory.GetByID(ctx, id)
}

func (s *Server) handleUpdateMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var decoded struct {
		ID                  string                 `json:"memory_id"`
		Content             *string                `json:"content"`
		Category            *types.MemoryCategory  `json:"category"`
		ContextLevel        *types.ContextLevel    `json:"context_level"`
		Importance          *float64               `json:"importance"`
		Tags                *[]string              `json:"tags"`
		Metadata            map[string]interface{} `json:"metadata"`
		RegenerateEmbedding bool                   `json:"regenerate_embedding"`
		PreserveTimestamps  *bool                  `json:"preserve_timestamps"`
	}
	if err := decodeArgs(args, &decoded); err != nil {
		return nil, err
	}
	if decoded.ID == "" {
		return nil, errors.NewValidationField("memory_id", "required string argument")
	}
	return s.deps.Memory.UpdateMemory(ctx, &memory.UpdateRequest{
		ID:                  decoded.ID,
		Content:             decoded.Content,
		Category:            decoded.Category,
		ContextLevel:        decoded.ContextLevel,
		Importance:          decoded.Importance,
		Tags:                decoded.Tags,
		Metadata:            decoded.Metadata,
		RegenerateEmbedding: decoded.RegenerateEmbedding,
		PreserveTimestamps:  decoded.PreserveTimestamps,
	})
}

func (s *Server) handleDeleteMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := stringArg(args, "memory_id")
	if err != nil {
		return nil, err
	}
	return s.deps.Memory.DeleteMemory(ctx, id)
}

func (s *Server) handleDeleteByQuery(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	filters, err := decodeFilters(args)
	if err != nil {
		return nil, err
	}
	maxCount := optionalInt(args, "max_count", types.MaxBulkDeleteCap)
	dryRun := optionalBool(args, "dry_run")
	return s.deps.Memory.DeleteByQuery(ctx, filters, maxCount, dryRun)
}

func (s *Server) handleListMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	filters, err := decodeFilters(args)
	if err != nil {
		return nil, err
	}
	sortBy := optionalString(args, "sort_by")
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := types.SortOrder(optionalString(args, "sort_order"))
	if sortOrder == "" {
		sortOrder = types.SortDesc
	}
	limit := optionalInt(args, "limit", types.DefaultListLimit)
	offset := optionalInt(args, "offset", 0)
	return s.deps.Memory.List(ctx, filters, sortBy, sortOrder, limit, offset)
}

func (s *Server) handleMigrateScope(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := stringArg(args, "memory_id")
	if err != nil {
		return nil, err
	}
	rawScope, err := stringArg(args, "scope")
	if err != nil {
		return nil, err
	}
	scope := types.MemoryScope(strings.ToUpper(rawScope))
	return s.deps.Memory.MigrateScope(ctx, id, scope, optionalString(args, "project_name"))
}

func (s *Server) handleBulkReclassify(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	filters, err := decodeFilters(args)
	if err != nil {
		return nil, err
	}
	return s.deps.Memory.BulkReclassify(ctx, filters)
}

func (s *Server) handleFindDuplicates(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if id := optionalString(args, "memory_id"); id != "" {
		unit, _, err := s.deps.Memory.Store().GetWithVector(ctx, id)
		if err != nil {
			return nil, err
		}
		threshold := s.deps.Dedup.Thresholds().Medium
		if t := optionalFloat(args, "threshold"); t != nil {
			threshold = *t
		}
		duplicates, err := s.deps.Dedup.FindDuplicates(ctx, unit, threshold)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"memory_id":  id,
			"threshold":  threshold,
			"duplicates": duplicates,
		}, nil
	}

	filters, err := decodeFilters(args)
	if err != nil {
		return nil, err
	}
	clusters, err := s.deps.Dedup.FindAllDuplicates(ctx, filters)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"clusters":      clusters,
		"cluster_count": len(clusters),
	}, nil
}

func (s *Server) handleMergeMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ids := optionalStringSlice(args, "memory_ids")
	strategy := types.MergeKeepMostRecent
	if raw := optionalString(args, "strategy"); raw != "" {
		strategy = types.MergeStrategy(strings.ToUpper(raw))
	}
	return s.deps.Memory.MergeMemories(ctx, ids, strategy, optionalString(args, "keep_id"))
}

func (s *Server) handleExportMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	filters, err := decodeFilters(args)
	if err != nil {
		return nil, err
	}
	result, err := s.deps.Memory.ExportMemories(ctx, memory.ExportOptions{
		Filters:           filters,
		IncludeEmbeddings: optionalBool(args, "include_embeddings"),
	})
	if err != nil {
		return nil, err
	}

	response := map[string]interface{}{
		"document":     result.Document,
		"memory_count": result.Document.MemoryCount,
	}
	if archivePath := optionalString(args, "archive_path"); archivePath != "" {
		if writeErr := memory.WriteArchive(archivePath, result); writeErr != nil {
			return nil, errors.NewStorageUnavailable("cannot write export archive", writeErr)
		}
		response["archive_path"] = archivePath
	}
	return response, nil
}

func (s *Server) handleImportMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	opts := memory.ImportOptions{
		Mode:   memory.ConflictMode(strings.ToUpper(optionalString(args, "mode"))),
		DryRun: optionalBool(args, "dry_run"),
	}

	var doc *memory.ExportDocument
	switch {
	case optionalString(args, "archive_path") != "":
		archive, err := memory.ReadArchive(optionalString(args, "archive_path"))
		if err != nil {
			return nil, errors.NewValidation("cannot read export archive: " + err.Error())
		}
		doc = archive.Document
		opts.Embeddings = archive.Embeddings
	case optionalObject(args, "document") != nil:
		doc = &memory.ExportDocument{}
		if err := decodeArgs(optionalObject(args, "document"), doc); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewValidation("either document or archive_path is required")
	}

	return s.deps.Memory.ImportMemories(ctx, doc, opts)
}

func (s *Server) handleRetrievePreferences(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	return s.deps.Memory.RetrievePreferences(ctx, query, optionalInt(args, "limit", types.DefaultLimit))
}

func (s *Server) handleRetrieveProjectContext(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	return s.deps.Memory.RetrieveProjectContext(ctx, query,
		optionalString(args, "project_name"), optionalInt(args, "limit", types.DefaultLimit))
}

func (s *Server) handleRetrieveSessionState(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	return s.deps.Memory.RetrieveSessionState(ctx, query, optionalInt(args, "limit", types.DefaultLimit))
}

// decodeFilters reads the shared top-level filter arguments into a filter
// set, returning nil when no filter argument was given.
func decodeFilters(args map[string]interface{}) (*types.SearchFilters, error) {
	var filters types.SearchFilters
	if err := decodeArgs(args, &filters); err != nil {
		return nil, err
	}
	if filters.Category == nil && filters.ContextLevel == nil && filters.Scope == nil &&
		filters.ProjectName == "" && filters.MinImportance == nil && filters.MaxImportance == nil &&
		filters.CreatedAfter == nil && filters.CreatedBefore == nil &&
		len(filters.Tags) == 0 && filters.Advanced == nil {
		return nil, nil
	}
	return &filters, nil
}
