package mcp

import (
	"context"

	mcp "github.com/fredcamaral/gomcp-sdk"

	"mcp-semantic-memory/pkg/types"
)

func (s *Server) registerCodeTools() {
	s.addTool("index_codebase",
		"Walk a directory tree, chunk every recognized source file, and store the chunks as CODE memories with file, language, size, and complexity metadata.",
		mcp.ObjectSchema("index_codebase arguments", map[string]interface{}{
			"path":         stringProp("Root directory to index"),
			"project_name": stringProp("Project the indexed code belongs to"),
		}, []string{"path", "project_name"}),
		s.handleIndexCodebase)

	s.addTool("search_code",
		"Semantic search over indexed code chunks with glob, complexity, size, and modification-date filters plus multi-criteria sorting.",
		mcp.ObjectSchema("search_code arguments", map[string]interface{}{
			"query":            stringProp("What the code should do, in natural language"),
			"project_name":     stringProp("Project whose index to search"),
			"limit":            integerProp("Maximum results (default 20)"),
			"file_pattern":     stringProp("Glob the file path must match, e.g. *.go or internal/**"),
			"exclude_patterns": arrayProp("Globs the file path must not match", "string"),
			"min_complexity":   integerProp("Minimum estimated complexity"),
			"max_complexity":   integerProp("Maximum estimated complexity"),
			"line_count_min":   integerProp("Minimum chunk line count"),
			"line_count_max":   integerProp("Maximum chunk line count"),
			"modified_after":   stringProp("RFC 3339 lower bound on file modification time"),
			"modified_before":  stringProp("RFC 3339 upper bound on file modification time"),
			"sort_by":          arrayProp("Sort criteria as {key, order} objects, e.g. [{\"key\": \"complexity\", \"order\": \"desc\"}]", "object"),
		}, []string{"query"}),
		s.handleSearchCode)

	s.addTool("find_similar_code",
		"Find indexed code chunks semantically similar to a given code fragment.",
		mcp.ObjectSchema("find_similar_code arguments", map[string]interface{}{
			"code":         stringProp("Code fragment to match against the index"),
			"project_name": stringProp("Project whose index to search"),
			"limit":        integerProp("Maximum results (default 5)"),
		}, []string{"code"}),
		s.handleFindSimilarCode)
}

func (s *Server) handleIndexCodebase(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	projectName, err := stringArg(args, "project_name")
	if err != nil {
		return nil, err
	}
	return s.deps.CodeIndex.IndexCodebase(ctx, path, projectName)
}

func (s *Server) handleSearchCode(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	var filters types.CodeSearchFilters
	if err := decodeArgs(args, &filters); err != nil {
		return nil, err
	}

	results, err := s.deps.CodeIndex.SearchCode(ctx, query,
		optionalString(args, "project_name"), &filters, optionalInt(args, "limit", types.DefaultListLimit))
	if err != nil {
		return nil, err
	}
	if s.analytics != nil {
		for _, r := range results {
			if path, ok := r.Memory.Metadata[types.MetaFilePath].(string); ok {
				s.analytics.RecordCodeAccess(path)
			}
		}
	}
	return map[string]interface{}{
		"results":      results,
		"result_count": len(results),
	}, nil
}

func (s *Server) handleFindSimilarCode(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fragment, err := stringArg(args, "code")
	if err != nil {
		return nil, err
	}
	results, err := s.deps.CodeIndex.FindSimilarCode(ctx, fragment,
		optionalString(args, "project_name"), optionalInt(args, "limit", types.DefaultLimit))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"results":      results,
		"result_count": len(results),
	}, nil
}
