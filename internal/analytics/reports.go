package analytics

import (
	"sort"
	"strings"
	"time"

	"mcp-semantic-memory/internal/errors"
)

// UsageStatistics summarizes traffic over the collector's lifetime.
type UsageStatistics struct {
	UptimeSeconds   int64            `json:"uptime_seconds"`
	TotalOperations int64            `json:"total_operations"`
	TotalSearches   int64            `json:"total_searches"`
	EmptySearches   int64            `json:"empty_searches"`
	OperationCounts map[string]int64 `json:"operation_counts"`
	QueriesPerDay   float64          `json:"queries_per_day"`
}

// Usage returns the lifetime usage counters.
func (c *Collector) Usage() *UsageStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int64, len(c.ops))
	var total int64
	for name, stats := range c.ops {
		counts[name] = stats.Count
		total += stats.Count
	}
	return &UsageStatistics{
		UptimeSeconds:   int64(c.nowFn().UTC().Sub(c.startedAt).Seconds()),
		TotalOperations: total,
		TotalSearches:   c.searchCount,
		EmptySearches:   c.emptySearches,
		OperationCounts: counts,
		QueriesPerDay:   c.queriesPerDay(),
	}
}

// QueryCount pairs a normalized query with its frequency.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// TopQueries returns the n most frequent normalized queries, count
// descending then query ascending.
func (c *Collector) TopQueries(n int) []QueryCount {
	if n < 1 {
		n = 10
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]QueryCount, 0, len(c.queryCounts))
	for query, count := range c.queryCounts {
		out = append(out, QueryCount{Query: query, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// CodeAccessCount pairs a file path with its access frequency.
type CodeAccessCount struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
}

// FrequentlyAccessedCode returns the n most accessed indexed files.
func (c *Collector) FrequentlyAccessedCode(n int) []CodeAccessCount {
	if n < 1 {
		n = 10
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CodeAccessCount, 0, len(c.codeAccess))
	for path, count := range c.codeAccess {
		out = append(out, CodeAccessCount{FilePath: path, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FilePath < out[j].FilePath
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TokenAnalytics estimates token traffic through the server.
type TokenAnalytics struct {
	TokensIn       int64   `json:"tokens_in"`
	TokensOut      int64   `json:"tokens_out"`
	TokensPerQuery float64 `json:"tokens_per_query"`
}

// Tokens returns the token traffic estimate.
func (c *Collector) Tokens() *TokenAnalytics {
	c.mu.Lock()
	defer c.mu.Unlock()

	perQuery := 0.0
	if c.searchCount > 0 {
		perQuery = float64(c.tokensIn+c.tokensOut) / float64(c.searchCount)
	}
	return &TokenAnalytics{
		TokensIn:       c.tokensIn,
		TokensOut:      c.tokensOut,
		TokensPerQuery: perQuery,
	}
}

// Feedback ratings.
const (
	FeedbackHelpful    = "HELPFUL"
	FeedbackNotHelpful = "NOT_HELPFUL"
)

// SubmitFeedback records one search quality rating.
func (c *Collector) SubmitFeedback(rating string) error {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case FeedbackHelpful:
		c.mu.Lock()
		c.feedbackHelpful++
		c.mu.Unlock()
	case FeedbackNotHelpful:
		c.mu.Lock()
		c.feedbackNotHelpful++
		c.mu.Unlock()
	default:
		return errors.NewValidationField("rating", "must be HELPFUL or NOT_HELPFUL")
	}
	return nil
}

// QualityMetrics summarizes search feedback.
type QualityMetrics struct {
	FeedbackCount int64   `json:"feedback_count"`
	HelpfulCount  int64   `json:"helpful_count"`
	HelpfulRate   float64 `json:"helpful_rate"`
	EmptyRate     float64 `json:"empty_search_rate"`
}

// Quality returns the feedback-derived quality snapshot.
func (c *Collector) Quality() *QualityMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.feedbackHelpful + c.feedbackNotHelpful
	helpfulRate := 0.0
	if total > 0 {
		helpfulRate = float64(c.feedbackHelpful) / float64(total)
	}
	emptyRate := 0.0
	if c.searchCount > 0 {
		emptyRate = float64(c.emptySearches) / float64(c.searchCount)
	}
	return &QualityMetrics{
		FeedbackCount: total,
		HelpfulCount:  c.feedbackHelpful,
		HelpfulRate:   helpfulRate,
		EmptyRate:     emptyRate,
	}
}

// CapacityForecast projects corpus growth from the daily store counts.
type CapacityForecast struct {
	CurrentMemories   int     `json:"current_memories"`
	AvgStoresPerDay   float64 `json:"avg_stores_per_day"`
	ProjectedIn30Days int     `json:"projected_in_30_days"`
	ProjectedIn90Days int     `json:"projected_in_90_days"`
}

// Forecast projects linear growth from observed store volume; the caller
// supplies the current corpus size.
func (c *Collector) Forecast(currentMemories int) *CapacityForecast {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, count := range c.dailyStores {
		total += count
	}
	days := len(c.dailyStores)
	if days == 0 {
		days = 1
	}
	perDay := float64(total) / float64(days)
	return &CapacityForecast{
		CurrentMemories:   currentMemories,
		AvgStoresPerDay:   perDay,
		ProjectedIn30Days: currentMemories + int(perDay*30),
		ProjectedIn90Days: currentMemories + int(perDay*90),
	}
}

// WeeklyReport bundles the last week's headline numbers.
type WeeklyReport struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	StoresThisWeek int64            `json:"stores_this_week"`
	Usage          *UsageStatistics `json:"usage"`
	Health         *HealthReport    `json:"health"`
	TopQueries     []QueryCount     `json:"top_queries"`
	Quality        *QualityMetrics  `json:"quality"`
}

// Weekly builds the weekly summary report.
func (c *Collector) Weekly() *WeeklyReport {
	now := c.nowFn().UTC()

	c.mu.Lock()
	var stores int64
	for day, count := range c.dailyStores {
		if parsed, err := time.Parse("2006-01-02", day); err == nil && now.Sub(parsed) <= 7*24*time.Hour {
			stores += count
		}
	}
	c.mu.Unlock()

	return &WeeklyReport{
		GeneratedAt:    now,
		StoresThisWeek: stores,
		Usage:          c.Usage(),
		Health:         c.HealthScore(),
		TopQueries:     c.TopQueries(5),
		Quality:        c.Quality(),
	}
}

// DashboardStats is the compact snapshot for the dashboard tool.
type DashboardStats struct {
	Health       *HealthReport    `json:"health"`
	Usage        *UsageStatistics `json:"usage"`
	ActiveAlerts int              `json:"active_alerts"`
	Insights     []Insight        `json:"insights"`
}

// Dashboard assembles the dashboard snapshot.
func (c *Collector) Dashboard() *DashboardStats {
	return &DashboardStats{
		Health:       c.HealthScore(),
		Usage:        c.Usage(),
		ActiveAlerts: len(c.ActiveAlerts()),
		Insights:     c.Insights(),
	}
}

// RecentActivity returns the newest n activity entries, newest first.
func (c *Collector) RecentActivity(n int) []ActivityEntry {
	if n < 1 {
		n = 20
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > len(c.activity) {
		n = len(c.activity)
	}
	out := make([]ActivityEntry, 0, n)
	for i := len(c.activity) - 1; i >= len(c.activity)-n; i-- {
		out = append(out, c.activity[i])
	}
	return out
}
