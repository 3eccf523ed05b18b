package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"mcp-semantic-memory/internal/errors"
)

// AlertSeverity orders alerts by urgency.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is one raised condition. Alerts are keyed by rule so the same
// condition never stacks; re-evaluation refreshes the existing alert.
type Alert struct {
	ID         string        `json:"id"`
	Rule       string        `json:"rule"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	RaisedAt   time.Time     `json:"raised_at"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// Alert rules.
const (
	ruleHighErrorRate = "high_error_rate"
	ruleHighLatency   = "high_latency"
	ruleLowCacheHits  = "low_cache_hit_rate"
)

// EvaluateAlerts checks the current metrics against the alert rules,
// raising new alerts and auto-resolving ones whose condition cleared. It
// returns the active set.
func (c *Collector) EvaluateAlerts() []*Alert {
	metrics := c.Metrics()
	now := c.nowFn().UTC()

	c.mu.Lock()
	c.applyRule(ruleHighErrorRate, metrics.ErrorRate > 0.10, SeverityCritical,
		"operation error rate exceeds 10%", now)
	c.applyRule(ruleHighLatency, metrics.AvgLatencyMs > 100, SeverityWarning,
		"average operation latency exceeds 100ms", now)
	c.applyRule(ruleLowCacheHits, c.searchCount > 10 && metrics.CacheHitRate < 0.5, SeverityWarning,
		"embedding cache hit rate below 50%", now)
	c.mu.Unlock()

	return c.ActiveAlerts()
}

// applyRule raises, refreshes, or resolves the alert for one rule. Callers
// must hold c.mu.
func (c *Collector) applyRule(rule string, firing bool, severity AlertSeverity, message string, now time.Time) {
	existing := c.alerts[rule]
	switch {
	case firing && (existing == nil || existing.Resolved):
		c.alerts[rule] = &Alert{
			ID:       uuid.New().String(),
			Rule:     rule,
			Severity: severity,
			Message:  message,
			RaisedAt: now,
		}
		c.logger.Warn("alert raised", "rule", rule, "severity", string(severity))
	case !firing && existing != nil && !existing.Resolved:
		existing.Resolved = true
		existing.ResolvedAt = &now
		c.logger.Info("alert auto-resolved", "rule", rule)
	}
}

// ActiveAlerts returns unresolved alerts, critical first, newest first
// within a severity.
func (c *Collector) ActiveAlerts() []*Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	var active []*Alert
	for _, alert := range c.alerts {
		if !alert.Resolved {
			copied := *alert
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Severity != active[j].Severity {
			return active[i].Severity == SeverityCritical
		}
		return active[i].RaisedAt.After(active[j].RaisedAt)
	})
	return active
}

// ResolveAlert marks the alert with the given id resolved. Resolving an
// already-resolved alert is a no-op.
func (c *Collector) ResolveAlert(id string) error {
	now := c.nowFn().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, alert := range c.alerts {
		if alert.ID != id {
			continue
		}
		if !alert.Resolved {
			alert.Resolved = true
			alert.ResolvedAt = &now
		}
		return nil
	}
	return errors.NewNotFound(id)
}
