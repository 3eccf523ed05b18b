package analytics

import "sort"

// Health score bands.
const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthStatusCritical = "critical"
)

// PerformanceMetrics is the live metrics snapshot.
type PerformanceMetrics struct {
	QueriesPerDay   float64          `json:"queries_per_day"`
	AvgLatencyMs    float64          `json:"avg_latency_ms"`
	LatencyP50Ms    float64          `json:"search_latency_p50_ms"`
	LatencyP95Ms    float64          `json:"search_latency_p95_ms"`
	LatencyP99Ms    float64          `json:"search_latency_p99_ms"`
	CacheHitRate    float64          `json:"cache_hit_rate"`
	ErrorRate       float64          `json:"error_rate"`
	OperationCounts map[string]int64 `json:"operation_counts"`
}

// Metrics returns the current performance snapshot.
func (c *Collector) Metrics() *PerformanceMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int64, len(c.ops))
	for name, stats := range c.ops {
		counts[name] = stats.Count
	}
	return &PerformanceMetrics{
		QueriesPerDay:   c.queriesPerDay(),
		AvgLatencyMs:    c.avgLatencyMs(),
		LatencyP50Ms:    c.percentile(0.50),
		LatencyP95Ms:    c.percentile(0.95),
		LatencyP99Ms:    c.percentile(0.99),
		CacheHitRate:    c.cacheHitRate(),
		ErrorRate:       c.errorRate(),
		OperationCounts: counts,
	}
}

// HealthReport scores the system from current metrics.
type HealthReport struct {
	Score   int                 `json:"score"`
	Status  string              `json:"status"`
	Metrics *PerformanceMetrics `json:"metrics"`
}

// HealthScore applies the piecewise scoring function over the live metrics:
// latency above 100 ms costs 20 points (above 50 ms, 10), error rate above
// 10% costs 30 (above 5%, 15), and a cache hit rate under 50% costs 10.
func (c *Collector) HealthScore() *HealthReport {
	metrics := c.Metrics()

	score := 100
	switch {
	case metrics.AvgLatencyMs > 100:
		score -= 20
	case metrics.AvgLatencyMs > 50:
		score -= 10
	}
	switch {
	case metrics.ErrorRate > 0.10:
		score -= 30
	case metrics.ErrorRate > 0.05:
		score -= 15
	}
	if metrics.CacheHitRate < 0.5 {
		score -= 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	status := healthStatusHealthy
	switch {
	case score < 50:
		status = healthStatusCritical
	case score < 80:
		status = healthStatusDegraded
	}
	return &HealthReport{Score: score, Status: status, Metrics: metrics}
}

// Insight is one rule-based observation; lower priority means more urgent.
type Insight struct {
	Priority int    `json:"priority"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}

// Insights derives rule-based observations from the current metrics,
// ordered by priority ascending.
func (c *Collector) Insights() []Insight {
	report := c.HealthScore()
	metrics := report.Metrics

	var insights []Insight
	if report.Score < 50 {
		insights = append(insights, Insight{
			Priority: 1,
			Title:    "overall health critical",
			Detail:   "multiple metrics are outside their healthy ranges; check latency and error rate first",
		})
	}
	if metrics.ErrorRate > 0.10 {
		insights = append(insights, Insight{
			Priority: 2,
			Title:    "high error rate",
			Detail:   "more than 10% of operations are failing; inspect recent activity for the failing operation kind",
		})
	}
	if metrics.AvgLatencyMs > 100 {
		insights = append(insights, Insight{
			Priority: 3,
			Title:    "high latency",
			Detail:   "average operation latency exceeds 100ms; the vector store or embedding backend may be slow",
		})
	}
	if metrics.CacheHitRate < 0.5 && c.totalSearches() > 10 {
		insights = append(insights, Insight{
			Priority: 4,
			Title:    "low embedding cache hit rate",
			Detail:   "less than half of searches reuse a cached embedding; consider a longer cache TTL",
		})
	}
	if c.emptySearchRate() > 0.5 && c.totalSearches() > 10 {
		insights = append(insights, Insight{
			Priority: 5,
			Title:    "low memory density",
			Detail:   "most searches return nothing; the corpus may be too small for the query mix",
		})
	}
	if len(insights) == 0 {
		insights = append(insights, Insight{
			Priority: 9,
			Title:    "system healthy",
			Detail:   "all tracked metrics are within their expected ranges",
		})
	}
	sort.Slice(insights, func(i, j int) bool { return insights[i].Priority < insights[j].Priority })
	return insights
}

func (c *Collector) totalSearches() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchCount
}

func (c *Collector) emptySearchRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchCount == 0 {
		return 0
	}
	return float64(c.emptySearches) / float64(c.searchCount)
}
