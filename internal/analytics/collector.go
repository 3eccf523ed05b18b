package analytics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"mcp-semantic-memory/internal/logging"
)

// maxLatencySamples bounds the reservoir used for percentile estimates;
// older samples are overwritten ring-buffer style.
const maxLatencySamples = 2048

// maxActivityEntries bounds the recent-activity feed.
const maxActivityEntries = 200

// opStats accumulates per-operation counters.
type opStats struct {
	Count        int64
	Errors       int64
	TotalLatency time.Duration
}

// ActivityEntry is one row of the recent-activity feed.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	LatencyMs int64     `json:"latency_ms"`
	IsError   bool      `json:"is_error"`
}

// Collector gathers operation, search, feedback, and token metrics. It is
// the process-wide analytics sink; every method is safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	startedAt time.Time
	nowFn     func() time.Time

	ops map[string]*opStats

	searchCount   int64
	emptySearches int64
	cacheHits     int64
	searchLatency []time.Duration
	latencyNext   int
	queryCounts   map[string]int64

	codeAccess map[string]int64

	tokensIn  int64
	tokensOut int64

	feedbackHelpful    int64
	feedbackNotHelpful int64

	dailyStores map[string]int64

	activity []ActivityEntry
	alerts   map[string]*Alert

	logger logging.Logger
}

// NewCollector builds an empty analytics collector.
func NewCollector() *Collector {
	return &Collector{
		startedAt:   time.Now().UTC(),
		nowFn:       time.Now,
		ops:         make(map[string]*opStats),
		queryCounts: make(map[string]int64),
		codeAccess:  make(map[string]int64),
		dailyStores: make(map[string]int64),
		alerts:      make(map[string]*Alert),
		logger:      logging.WithComponent("analytics"),
	}
}

// RecordOperation counts one completed operation of the given kind.
func (c *Collector) RecordOperation(name string, latency time.Duration, isError bool) {
	now := c.nowFn().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.ops[name]
	if !ok {
		stats = &opStats{}
		c.ops[name] = stats
	}
	stats.Count++
	stats.TotalLatency += latency
	if isError {
		stats.Errors++
	}
	if name == "store_memory" && !isError {
		c.dailyStores[now.Format("2006-01-02")]++
	}

	c.activity = append(c.activity, ActivityEntry{
		Timestamp: now,
		Operation: name,
		LatencyMs: latency.Milliseconds(),
		IsError:   isError,
	})
	if len(c.activity) > maxActivityEntries {
		c.activity = c.activity[len(c.activity)-maxActivityEntries:]
	}
}

// RecordSearch counts one retrieval, its latency sample, and its cache
// outcome.
func (c *Collector) RecordSearch(queryText string, latency time.Duration, usedCache bool, resultCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.searchCount++
	if usedCache {
		c.cacheHits++
	}
	if resultCount == 0 {
		c.emptySearches++
	}
	if len(c.searchLatency) < maxLatencySamples {
		c.searchLatency = append(c.searchLatency, latency)
	} else {
		c.searchLatency[c.latencyNext] = latency
		c.latencyNext = (c.latencyNext + 1) % maxLatencySamples
	}

	normalized := strings.ToLower(strings.TrimSpace(queryText))
	if normalized != "" {
		c.queryCounts[normalized]++
	}
	// Rough byte-pair estimate: four characters per token.
	c.tokensIn += int64(len(queryText)+3) / 4
}

// RecordCodeAccess counts one access of an indexed code chunk by file path.
func (c *Collector) RecordCodeAccess(filePath string) {
	if filePath == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeAccess[filePath]++
}

// RecordTokensOut adds to the response-side token estimate.
func (c *Collector) RecordTokensOut(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokensOut += int64(len(text)+3) / 4
}

// percentile returns the pth percentile of the sampled search latencies in
// milliseconds. Callers must hold c.mu.
func (c *Collector) percentile(p float64) float64 {
	if len(c.searchLatency) == 0 {
		return 0
	}
	samples := make([]time.Duration, len(c.searchLatency))
	copy(samples, c.searchLatency)
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	idx := int(p*float64(len(samples))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return float64(samples[idx].Microseconds()) / 1000.0
}

// avgLatencyMs averages all operation latencies. Callers must hold c.mu.
func (c *Collector) avgLatencyMs() float64 {
	var total time.Duration
	var count int64
	for _, stats := range c.ops {
		total += stats.TotalLatency
		count += stats.Count
	}
	if count == 0 {
		return 0
	}
	return float64(total.Microseconds()) / float64(count) / 1000.0
}

// errorRate is the error fraction across all operations. Callers must hold
// c.mu.
func (c *Collector) errorRate() float64 {
	var errors, count int64
	for _, stats := range c.ops {
		errors += stats.Errors
		count += stats.Count
	}
	if count == 0 {
		return 0
	}
	return float64(errors) / float64(count)
}

// cacheHitRate is the fraction of searches answered from the embedding
// cache. Callers must hold c.mu.
func (c *Collector) cacheHitRate() float64 {
	if c.searchCount == 0 {
		return 0
	}
	return float64(c.cacheHits) / float64(c.searchCount)
}

// queriesPerDay extrapolates the search volume over the collector's
// lifetime. Callers must hold c.mu.
func (c *Collector) queriesPerDay() float64 {
	elapsed := c.nowFn().UTC().Sub(c.startedAt)
	if elapsed < time.Minute {
		elapsed = time.Minute
	}
	return float64(c.searchCount) / elapsed.Hours() * 24
}
