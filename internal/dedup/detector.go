package dedup

import (
	"context"
	"sort"
	"time"

	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

// candidateLimit caps how many neighbors one duplicate probe fetches.
const candidateLimit = 50

// Thresholds splits duplicate candidates into confidence bands. Pairs at or
// above High are safe to merge automatically; pairs at or above Medium go to
// a user review queue; Low is the floor below which a pair is not reported.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultThresholds returns the standard 0.95 / 0.85 / 0.75 bands.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.95, Medium: 0.85, Low: 0.75}
}

// Validate enforces high >= medium >= low, all within [0,1].
func (t Thresholds) Validate() error {
	if t.High < 0 || t.High > 1 || t.Medium < 0 || t.Medium > 1 || t.Low < 0 || t.Low > 1 {
		return errors.NewValidationField("thresholds", "must be within [0,1]")
	}
	if t.High < t.Medium || t.Medium < t.Low {
		return errors.NewValidationField("thresholds", "must satisfy high >= medium >= low")
	}
	return nil
}

// Detector finds semantic near-duplicates in the memory corpus. It is
// stateless between calls; every probe embeds, searches, and returns.
type Detector struct {
	store      storage.VectorStore
	embeddings *embeddings.Service
	thresholds Thresholds
	logger     logging.Logger
}

// NewDetector builds a duplicate detector over the given store.
func NewDetector(store storage.VectorStore, emb *embeddings.Service, thresholds Thresholds) (*Detector, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		store:      store,
		embeddings: emb,
		thresholds: thresholds,
		logger:     logging.WithComponent("dedup"),
	}, nil
}

// Thresholds returns the configured confidence bands.
func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// FindDuplicates returns memories scoring at or above the threshold against
// the given unit, restricted to the unit's category, scope, and project, and
// sorted by similarity descending. The unit itself is excluded.
func (d *Detector) FindDuplicates(ctx context.Context, m *types.MemoryUnit, threshold float64) ([]types.ScoredMemory, error) {
	if threshold < 0 || threshold > 1 {
		return nil, errors.NewValidationField("threshold", "must be within [0,1]")
	}
	vector, err := d.embeddings.GetEmbedding(ctx, m.Content)
	if err != nil {
		return nil, err
	}
	filters := &types.SearchFilters{
		Category:    &m.Category,
		Scope:       &m.Scope,
		ProjectName: m.ProjectName,
	}
	scored, err := d.store.Search(ctx, vector, filters, candidateLimit)
	if err != nil {
		return nil, err
	}

	duplicates := scored[:0]
	for _, r := range scored {
		if r.Memory.ID == m.ID {
			continue
		}
		if r.Score >= threshold {
			duplicates = append(duplicates, r)
		}
	}
	return duplicates, nil
}

// Cluster is one connected component of duplicate pairs. CanonicalID is the
// member every other one should merge into; MinScore is the weakest pair edge
// observed inside the cluster.
type Cluster struct {
	CanonicalID string   `json:"canonical_id"`
	MemberIDs   []string `json:"member_ids"`
	MinScore    float64  `json:"min_score"`
	// AutoMerge is true when every pair in the cluster cleared the high
	// threshold; otherwise the cluster belongs in a review queue.
	AutoMerge bool `json:"auto_merge"`
}

// FindAllDuplicates scans the corpus under the given filters, pairs every
// memory with its duplicates at the medium threshold, and collapses the
// symmetric pairs into clusters.
func (d *Detector) FindAllDuplicates(ctx context.Context, filters *types.SearchFilters) ([]Cluster, error) {
	units, err := d.listAll(ctx, filters)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.MemoryUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	uf := newUnionFind()
	minScore := make(map[string]float64)

	for _, unit := range units {
		duplicates, findErr := d.FindDuplicates(ctx, unit, d.thresholds.Medium)
		if findErr != nil {
			d.logger.WarnContext(ctx, "duplicate probe failed", "memory_id", unit.ID, "error", findErr.Error())
			continue
		}
		for _, dup := range duplicates {
			if _, known := byID[dup.Memory.ID]; !known {
				continue
			}
			ra, rb := uf.find(unit.ID), uf.find(dup.Memory.ID)
			uf.union(unit.ID, dup.Memory.ID)
			root := uf.find(unit.ID)
			low := dup.Score
			for _, r := range []string{ra, rb} {
				if prev, ok := minScore[r]; ok && prev < low {
					low = prev
				}
				delete(minScore, r)
			}
			minScore[root] = low
		}
	}

	var clusters []Cluster
	for root, members := range uf.groups() {
		canonical := pickCanonical(members, byID)
		sort.Strings(members)
		low := minScore[root]
		clusters = append(clusters, Cluster{
			CanonicalID: canonical,
			MemberIDs:   members,
			MinScore:    low,
			AutoMerge:   low >= d.thresholds.High,
		})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].CanonicalID < clusters[j].CanonicalID })
	return clusters, nil
}

func (d *Detector) listAll(ctx context.Context, filters *types.SearchFilters) ([]*types.MemoryUnit, error) {
	var units []*types.MemoryUnit
	offset := 0
	for {
		page, total, err := d.store.List(ctx, filters, storage.SortByCreatedAt, types.SortAsc, types.MaxListLimit, offset)
		if err != nil {
			return nil, err
		}
		units = append(units, page...)
		offset += len(page)
		if offset >= total || len(page) == 0 {
			return units, nil
		}
	}
}

// pickCanonical selects the member the others merge into: documented beats
// undocumented, then lower complexity, then fewer lines, then the smaller id
// so ties are stable.
func pickCanonical(members []string, byID map[string]*types.MemoryUnit) string {
	best := members[0]
	for _, id := range members[1:] {
		if canonicalLess(byID[id], byID[best]) {
			best = id
		}
	}
	return best
}

func canonicalLess(a, b *types.MemoryUnit) bool {
	if a == nil || b == nil {
		return b == nil && a != nil
	}
	aDoc, bDoc := metaBool(a, types.MetaHasDoc), metaBool(b, types.MetaHasDoc)
	if aDoc != bDoc {
		return aDoc
	}
	aCx, bCx := metaInt(a, types.MetaComplexity), metaInt(b, types.MetaComplexity)
	if aCx != bCx {
		return aCx < bCx
	}
	aLines, bLines := metaInt(a, types.MetaLineCount), metaInt(b, types.MetaLineCount)
	if aLines != bLines {
		return aLines < bLines
	}
	return a.ID < b.ID
}

func metaBool(m *types.MemoryUnit, key string) bool {
	if v, ok := m.Metadata[key].(bool); ok {
		return v
	}
	return false
}

func metaInt(m *types.MemoryUnit, key string) int64 {
	switch v := m.Metadata[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// ageGap returns the absolute distance between two creation times.
func ageGap(a, b time.Time) time.Duration {
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	return gap
}
