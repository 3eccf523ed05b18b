// Package session tracks per-session conversation state: the recent query
// window used for query expansion and the set of memory ids already surfaced,
// used for session-level dedup during retrieval.
package session

import (
	"container/list"
	"sync"
	"time"

	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/logging"
)

// TrackedQuery is one entry of a session's recent-query window.
type TrackedQuery struct {
	Query     string
	Vector    []float64
	Timestamp time.Time
}

// sessionState holds one session's windows. shownOrder/shownIndex together
// form an LRU over surfaced memory ids.
type sessionState struct {
	recent     []TrackedQuery
	shownOrder *list.List
	shownIndex map[string]*list.Element
	lastTouch  time.Time
}

// Tracker manages all live sessions. Sessions expire after the configured
// TTL since last touch; a background sweep reclaims them.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	ttl        time.Duration
	maxRecent  int
	maxShown   int
	logger     logging.Logger
	nowFn      func() time.Time
	stop       chan struct{}
	done       sync.WaitGroup
	stopOnce   sync.Once
	sweepEvery time.Duration
}

// NewTracker builds a tracker from the session config and starts the sweep
// loop when a sweep interval is configured.
func NewTracker(cfg config.SessionConfig) *Tracker {
	t := &Tracker{
		sessions:   make(map[string]*sessionState),
		ttl:        time.Duration(cfg.TTLHours) * time.Hour,
		maxRecent:  cfg.MaxRecent,
		maxShown:   cfg.MaxShownIDs,
		logger:     logging.WithComponent("session"),
		nowFn:      time.Now,
		stop:       make(chan struct{}),
		sweepEvery: time.Duration(cfg.SweepMinutes) * time.Minute,
	}
	if t.ttl <= 0 {
		t.ttl = 48 * time.Hour
	}
	if t.maxRecent <= 0 {
		t.maxRecent = 10
	}
	if t.maxShown <= 0 {
		t.maxShown = 1000
	}
	if t.sweepEvery > 0 {
		t.done.Add(1)
		go t.sweepLoop()
	}
	return t
}

func (t *Tracker) state(sessionID string) *sessionState {
	s, ok := t.sessions[sessionID]
	if !ok {
		s = &sessionState{
			shownOrder: list.New(),
			shownIndex: make(map[string]*list.Element),
		}
		t.sessions[sessionID] = s
	}
	return s
}

// TrackQuery appends a query to the session's FIFO window and records the
// surfaced result ids. The oldest query falls off past the window size.
func (t *Tracker) TrackQuery(sessionID, query string, resultsShown []string, vector []float64) {
	if sessionID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(sessionID)
	s.lastTouch = t.nowFn()
	s.recent = append(s.recent, TrackedQuery{
		Query:     query,
		Vector:    vector,
		Timestamp: s.lastTouch,
	})
	if len(s.recent) > t.maxRecent {
		s.recent = s.recent[len(s.recent)-t.maxRecent:]
	}
	for _, id := range resultsShown {
		if elem, ok := s.shownIndex[id]; ok {
			s.shownOrder.MoveToFront(elem)
			continue
		}
		s.shownIndex[id] = s.shownOrder.PushFront(id)
		if s.shownOrder.Len() > t.maxShown {
			oldest := s.shownOrder.Back()
			s.shownOrder.Remove(oldest)
			delete(s.shownIndex, oldest.Value.(string))
		}
	}
}

// RecentQueries returns the session's query window, oldest first. Unknown
// sessions yield an empty window.
func (t *Tracker) RecentQueries(sessionID string) []TrackedQuery {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]TrackedQuery, len(s.recent))
	copy(out, s.recent)
	return out
}

// ShownMemoryIDs returns the set of ids already surfaced in the session.
func (t *Tracker) ShownMemoryIDs(sessionID string) map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(s.shownIndex))
	for id := range s.shownIndex {
		out[id] = true
	}
	return out
}

// Stats reports live session counters.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	TrackedQueries int `json:"tracked_queries"`
	ShownIDs       int `json:"shown_ids"`
}

// Stats returns a snapshot of tracker counters.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := Stats{ActiveSessions: len(t.sessions)}
	for _, s := range t.sessions {
		stats.TrackedQueries += len(s.recent)
		stats.ShownIDs += s.shownOrder.Len()
	}
	return stats
}

// SweepExpired removes sessions idle past the TTL and returns how many were
// reclaimed.
func (t *Tracker) SweepExpired() int {
	cutoff := t.nowFn().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, s := range t.sessions {
		if s.lastTouch.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) sweepLoop() {
	defer t.done.Done()
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if removed := t.SweepExpired(); removed > 0 {
				t.logger.Debug("expired sessions reclaimed", "count", removed)
			}
		}
	}
}

// Close stops the sweep loop.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.done.Wait()
}
