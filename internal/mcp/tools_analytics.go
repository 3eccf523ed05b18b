package mcp

import (
	"context"

	mcp "github.com/fredcamaral/gomcp-sdk"
)

func (s *Server) registerAnalyticsTools() {
	s.addTool("get_usage_statistics",
		"Lifetime usage counters: uptime, operations, searches, queries per day.",
		mcp.ObjectSchema("get_usage_statistics arguments", map[string]interface{}{}, nil),
		s.handleUsageStatistics)

	s.addTool("get_top_queries",
		"The most frequent search queries, normalized and counted.",
		mcp.ObjectSchema("get_top_queries arguments", map[string]interface{}{
			"limit": integerProp("How many queries to return (default 10)"),
		}, nil),
		s.handleTopQueries)

	s.addTool("get_frequently_accessed_code",
		"The indexed files surfaced most often by code search.",
		mcp.ObjectSchema("get_frequently_accessed_code arguments", map[string]interface{}{
			"limit": integerProp("How many files to return (default 10)"),
		}, nil),
		s.handleFrequentCode)

	s.addTool("get_token_analytics",
		"Estimated token traffic in and out of the server.",
		mcp.ObjectSchema("get_token_analytics arguments", map[string]interface{}{}, nil),
		s.handleTokenAnalytics)

	s.addTool("submit_search_feedback",
		"Record whether a search result set was helpful.",
		mcp.ObjectSchema("submit_search_feedback arguments", map[string]interface{}{
			"rating": enumProp("Feedback rating", "HELPFUL", "NOT_HELPFUL"),
		}, []string{"rating"}),
		s.handleSubmitFeedback)

	s.addTool("get_quality_metrics",
		"Search quality derived from feedback and empty-result rates.",
		mcp.ObjectSchema("get_quality_metrics arguments", map[string]interface{}{}, nil),
		s.handleQualityMetrics)

	s.addTool("get_performance_metrics",
		"Latency percentiles, cache hit rate, error rate, and per-operation counts.",
		mcp.ObjectSchema("get_performance_metrics arguments", map[string]interface{}{}, nil),
		s.handlePerformanceMetrics)

	s.addTool("get_health_score",
		"Composite 0-100 health score with its status band and the metrics behind it.",
		mcp.ObjectSchema("get_health_score arguments", map[string]interface{}{}, nil),
		s.handleHealthScore)

	s.addTool("get_active_alerts",
		"Re-evaluate alert rules and return the unresolved alerts, critical first.",
		mcp.ObjectSchema("get_active_alerts arguments", map[string]interface{}{}, nil),
		s.handleActiveAlerts)

	s.addTool("resolve_alert",
		"Mark an alert resolved by id.",
		mcp.ObjectSchema("resolve_alert arguments", map[string]interface{}{
			"alert_id": stringProp("Id of the alert to resolve"),
		}, []string{"alert_id"}),
		s.handleResolveAlert)

	s.addTool("get_capacity_forecast",
		"Project corpus growth 30 and 90 days out from observed store volume.",
		mcp.ObjectSchema("get_capacity_forecast arguments", map[string]interface{}{}, nil),
		s.handleCapacityForecast)

	s.addTool("get_weekly_report",
		"Weekly summary: stores, usage, health, top queries, and quality.",
		mcp.ObjectSchema("get_weekly_report arguments", map[string]interface{}{}, nil),
		s.handleWeeklyReport)

	s.addTool("get_dashboard_stats",
		"Compact dashboard snapshot: health, usage, alert count, and insights.",
		mcp.ObjectSchema("get_dashboard_stats arguments", map[string]interface{}{}, nil),
		s.handleDashboardStats)

	s.addTool("get_recent_activity",
		"The most recent operations, newest first.",
		mcp.ObjectSchema("get_recent_activity arguments", map[string]interface{}{
			"limit": integerProp("How many entries to return (default 20)"),
		}, nil),
		s.handleRecentActivity)
}

func (s *Server) handleUsageStatistics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.Usage(), nil
}

func (s *Server) handleTopQueries(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queries := s.analytics.TopQueries(optionalInt(args, "limit", 10))
	return map[string]interface{}{"queries": queries, "count": len(queries)}, nil
}

func (s *Server) handleFrequentCode(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	files := s.analytics.FrequentlyAccessedCode(optionalInt(args, "limit", 10))
	return map[string]interface{}{"files": files, "count": len(files)}, nil
}

func (s *Server) handleTokenAnalytics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.Tokens(), nil
}

func (s *Server) handleSubmitFeedback(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rating, err := stringArg(args, "rating")
	if err != nil {
		return nil, err
	}
	if err := s.analytics.SubmitFeedback(rating); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "recorded"}, nil
}

func (s *Server) handleQualityMetrics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.Quality(), nil
}

func (s *Server) handlePerformanceMetrics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.Metrics(), nil
}

func (s *Server) handleHealthScore(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.HealthScore(), nil
}

func (s *Server) handleActiveAlerts(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	alerts := s.analytics.EvaluateAlerts()
	return map[string]interface{}{"alerts": alerts, "count": len(alerts)}, nil
}

func (s *Server) handleResolveAlert(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := stringArg(args, "alert_id")
	if err != nil {
		return nil, err
	}
	if err := s.analytics.ResolveAlert(id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "resolved", "alert_id": id}, nil
}

func (s *Server) handleCapacityForecast(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	current, err := s.deps.Memory.Store().Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	return s.analytics.Forecast(current), nil
}

func (s *Server) handleWeeklyReport(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.Weekly(), nil
}

func (s *Server) handleDashboardStats(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.analytics.Dashboard(), nil
}

func (s *Server) handleRecentActivity(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	entries := s.analytics.RecentActivity(optionalInt(args, "limit", 20))
	return map[string]interface{}{"activity": entries, "count": len(entries)}, nil
}
