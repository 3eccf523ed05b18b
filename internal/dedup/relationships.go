package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mcp-semantic-memory/internal/embeddings"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/storage"
	"mcp-semantic-memory/pkg/types"
)

// DetectedByAuto marks relationships produced by the detector rather than a
// human reviewer.
const DetectedByAuto = "auto"

// Relationship detection bands over cosine similarity.
const (
	duplicateThreshold = 0.9
	supportLow         = 0.7
	supportHigh        = 0.85
)

// temporalGap is the age difference beyond which a contradiction is treated
// as a likely change of mind rather than noise.
const temporalGap = 30 * 24 * time.Hour

const (
	contradictionBaseConfidence = 0.7
	temporalGapBoost            = 0.15
	maxContradictionConfidence  = 0.95
)

// Preference polarity cues. A positive cue in one memory and a negative cue
// over the same subject in another is a direct contradiction.
var (
	positiveCue = regexp.MustCompile(`(?:always use|prefer(?:s)?(?: to use)?|switched to|we use|using|standardized on)\s+([a-z0-9.+#@/_-]+)`)
	negativeCue = regexp.MustCompile(`(?:never use|avoid|don't use|do not use|stop(?:ped)? using|moving away from|dropped)\s+([a-z0-9.+#@/_-]+)`)
)

// exclusiveGroups lists tools where committing to one member implies not
// using the others. Mentions of two different members of the same group
// under preference cues contradict each other.
var exclusiveGroups = map[string][]string{
	"frontend":        {"react", "vue", "angular", "svelte", "solid"},
	"backend":         {"django", "flask", "fastapi", "express", "rails", "spring", "gin", "echo"},
	"database":        {"postgres", "postgresql", "mysql", "sqlite", "mongodb", "cassandra"},
	"testing":         {"jest", "mocha", "vitest", "pytest", "rspec"},
	"bundler":         {"webpack", "vite", "rollup", "esbuild", "parcel"},
	"package_manager": {"npm", "yarn", "pnpm", "pip", "poetry"},
}

// groupOf maps each known tool to its exclusivity group, including aliases.
var groupOf = func() map[string]string {
	out := make(map[string]string)
	for group, members := range exclusiveGroups {
		for _, m := range members {
			out[m] = group
		}
	}
	return out
}()

// RelationshipDetector derives advisory edges between a memory and its
// semantic neighborhood. Detection never mutates the memories involved.
type RelationshipDetector struct {
	store      storage.VectorStore
	embeddings *embeddings.Service
	logger     logging.Logger
}

// NewRelationshipDetector builds a detector over the given store.
func NewRelationshipDetector(store storage.VectorStore, emb *embeddings.Service) *RelationshipDetector {
	return &RelationshipDetector{
		store:      store,
		embeddings: emb,
		logger:     logging.WithComponent("relationships"),
	}
}

// DetectRelationships computes contradiction, duplicate, support, and
// supersession edges from the given memory to its same-category,
// same-scope, same-project neighbors.
func (d *RelationshipDetector) DetectRelationships(ctx context.Context, m *types.MemoryUnit) ([]*types.MemoryRelationship, error) {
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

	sourceStances := extractStances(m.Content)
	var relationships []*types.MemoryRelationship
	for _, candidate := range scored {
		other := candidate.Memory
		if other.ID == m.ID {
			continue
		}

		if conf, notes, found := d.contradiction(m, other, sourceStances); found {
			relationships = d.appendEdge(ctx, relationships, m.ID, other.ID, types.RelationContradicts, conf, notes)
			continue
		}

		switch {
		case candidate.Score >= duplicateThreshold:
			if supersedes(m, other) {
				relationships = d.appendEdge(ctx, relationships, m.ID, other.ID, types.RelationSupersedes, candidate.Score,
					"newer memory with higher provenance confidence")
			} else {
				relationships = d.appendEdge(ctx, relationships, m.ID, other.ID, types.RelationDuplicate, candidate.Score, "")
			}
		case candidate.Score >= supportLow && candidate.Score < supportHigh:
			relationships = d.appendEdge(ctx, relationships, m.ID, other.ID, types.RelationSupports, candidate.Score, "")
		}
	}
	return relationships, nil
}

func (d *RelationshipDetector) appendEdge(ctx context.Context, edges []*types.MemoryRelationship, sourceID, targetID string, relType types.RelationshipType, confidence float64, notes string) []*types.MemoryRelationship {
	if confidence > 1 {
		confidence = 1
	}
	rel, err := types.NewMemoryRelationship(sourceID, targetID, relType, confidence, DetectedByAuto)
	if err != nil {
		d.logger.WarnContext(ctx, "dropping invalid relationship", "source", sourceID, "target", targetID, "error", err.Error())
		return edges
	}
	rel.Notes = notes
	return append(edges, rel)
}

// stance is a preference commitment extracted from memory content.
type stance struct {
	subject  string
	group    string
	positive bool
}

// extractStances pulls polarity-tagged subjects out of preference phrasing,
// plus bare mentions of exclusive-group tools when a preference cue exists
// anywhere in the content.
func extractStances(content string) []stance {
	lowered := strings.ToLower(content)
	var stances []stance
	seen := make(map[string]bool)

	add := func(subject string, positive bool) {
		subject = strings.Trim(subject, ".,;:!?")
		if subject == "" {
			return
		}
		key := fmt.Sprintf("%s/%t", subject, positive)
		if seen[key] {
			return
		}
		seen[key] = true
		stances = append(stances, stance{subject: subject, group: groupOf[subject], positive: positive})
	}

	for _, match := range negativeCue.FindAllStringSubmatch(lowered, -1) {
		add(match[1], false)
	}
	for _, match := range positiveCue.FindAllStringSubmatch(lowered, -1) {
		add(match[1], true)
	}
	return stances
}

// contradiction reports whether two memories commit to incompatible
// preferences: opposite polarity over the same subject, or positive
// commitments to different members of the same exclusive group.
func (d *RelationshipDetector) contradiction(m, other *types.MemoryUnit, sourceStances []stance) (float64, string, bool) {
	if len(sourceStances) == 0 {
		return 0, "", false
	}
	otherStances := extractStances(other.Content)
	if len(otherStances) == 0 {
		return 0, "", false
	}

	for _, a := range sourceStances {
		for _, b := range otherStances {
			conflict := ""
			switch {
			case a.subject == b.subject && a.positive != b.positive:
				conflict = "opposite stance on " + a.subject
			case a.positive && b.positive && a.group != "" && a.group == b.group && a.subject != b.subject:
				conflict = fmt.Sprintf("%s and %s are mutually exclusive %s choices", a.subject, b.subject, a.group)
			}
			if conflict == "" {
				continue
			}
			confidence := contradictionBaseConfidence
			if ageGap(m.CreatedAt, other.CreatedAt) > temporalGap {
				confidence += temporalGapBoost
			}
			if confidence > maxContradictionConfidence {
				confidence = maxContradictionConfidence
			}
			return confidence, conflict, true
		}
	}
	return 0, "", false
}

// supersedes reports whether m subsumes other: near-identical content where
// m is newer and carries strictly higher provenance confidence.
func supersedes(m, other *types.MemoryUnit) bool {
	return m.UpdatedAt.After(other.UpdatedAt) &&
		m.Provenance.Confidence > other.Provenance.Confidence
}
