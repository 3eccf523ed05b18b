package mcp

import (
	"context"

	mcp "github.com/fredcamaral/gomcp-sdk"

	"mcp-semantic-memory/pkg/types"
)

func (s *Server) registerCrossProjectTools() {
	s.addTool("search_all_projects",
		"Search every project that has opted in to cross-project search. Per-project failures are reported alongside partial results.",
		mcp.ObjectSchema("search_all_projects arguments", map[string]interface{}{
			"query":          stringProp("Natural-language search query"),
			"limit":          integerProp("Maximum merged results (default 5, max 100)"),
			"category":       enumProp("Restrict to one category", "PREFERENCE", "FACT", "EVENT", "WORKFLOW", "CONTEXT", "CODE"),
			"context_level":  enumProp("Restrict to one context level", "USER_PREFERENCE", "PROJECT_CONTEXT", "SESSION_STATE"),
			"min_importance": numberProp("Minimum importance"),
			"tags":           arrayProp("Require these tags", "string"),
		}, []string{"query"}),
		s.handleSearchAllProjects)

	s.addTool("opt_in_cross_project",
		"Opt a project in to cross-project search. Idempotent.",
		mcp.ObjectSchema("opt_in_cross_project arguments", map[string]interface{}{
			"project_name": stringProp("Project to opt in"),
		}, []string{"project_name"}),
		s.handleOptIn)

	s.addTool("opt_out_cross_project",
		"Opt a project out of cross-project search. Idempotent.",
		mcp.ObjectSchema("opt_out_cross_project arguments", map[string]interface{}{
			"project_name": stringProp("Project to opt out"),
		}, []string{"project_name"}),
		s.handleOptOut)

	s.addTool("list_opted_in_projects",
		"List every project currently opted in to cross-project search.",
		mcp.ObjectSchema("list_opted_in_projects arguments", map[string]interface{}{}, nil),
		s.handleListOptedIn)
}

func (s *Server) handleSearchAllProjects(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	filters, err := decodeFilters(args)
	if err != nil {
		return nil, err
	}
	return s.deps.CrossProject.Search(ctx, query, filters, optionalInt(args, "limit", types.DefaultLimit))
}

func (s *Server) handleOptIn(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	project, err := stringArg(args, "project_name")
	if err != nil {
		return nil, err
	}
	if err := s.deps.Registry.OptIn(ctx, project); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "opted_in", "project_name": project}, nil
}

func (s *Server) handleOptOut(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	project, err := stringArg(args, "project_name")
	if err != nil {
		return nil, err
	}
	if err := s.deps.Registry.OptOut(ctx, project); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "opted_out", "project_name": project}, nil
}

func (s *Server) handleListOptedIn(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	projects, err := s.deps.Registry.OptedIn(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	}, nil
}
