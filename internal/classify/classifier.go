// Package classify derives a context level from memory content and category.
// The mapping is a pure, deterministic function over case-insensitive cues.
package classify

import (
	"regexp"
	"strings"

	"mcp-semantic-memory/pkg/types"
)

// minConfidence is the score floor below which the category default wins.
const minConfidence = 0.3

// cueNormalization caps the cue-match ratio: three matches saturate a set.
const cueNormalization = 3.0

// Cue tables are compiled once at init; the classifier is the only
// process-wide regex table in the system.
var (
	preferenceCues = compileAll(
		`\bprefer(s|red)?\b`,
		`\b(i|we|user)\s+(like|love|hate|want|avoid)s?\b`,
		`\balways\s+use\b`,
		`\bnever\s+use\b`,
		`\bfavou?rite\b`,
		`\b(code|coding|naming|formatting)\s+(style|convention)s?\b`,
		`\brather\s+than\b`,
		`\binstead\s+of\b`,
		`\bby\s+default\b`,
	)

	projectCues = compileAll(
		`\b(this|the|our)\s+(project|repo|repository|codebase|service|module)\b`,
		`\barchitecture\b`,
		`\b(uses|built\s+with|depends\s+on|configured\s+with|powered\s+by)\b`,
		`\b(database|schema|api|endpoint|deployment|pipeline)\b`,
		`\b(framework|library|package|dependency|version)\b`,
		`\b(directory|file)\s+(structure|layout)\b`,
		`\bstack\b`,
		`\bconvention\s+in\b`,
	)

	sessionCues = compileAll(
		`\bcurrently\b`,
		`\bworking\s+on\b`,
		`\bin\s+progress\b`,
		`\b(today|yesterday|right\s+now|at\s+the\s+moment)\b`,
		`\b(next\s+step|todo|to\s+do|remaining)\b`,
		`\b(this|the\s+current)\s+session\b`,
		`\b(debugging|investigating|blocked\s+on|waiting\s+for)\b`,
		`\btemporar(y|ily)\b`,
		`\bjust\s+(finished|started|changed)\b`,
	)

	codeConstructCue = regexp.MustCompile(`(\bfunc\b|\bclass\b|\bdef\b|\bimport\b|\binterface\b|\bstruct\b|[(){}\[\]]|::|->|=>)`)
	imperativeOpener = regexp.MustCompile(`^\s*(fix|add|update|refactor|implement|remove|check|test|finish|continue|resume)\b`)
	categoryDefaults = map[types.MemoryCategory]types.ContextLevel{
		types.CategoryPreference: types.ContextUserPreference,
		types.CategoryEvent:      types.ContextSessionState,
	}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func cueScore(content string, cues []*regexp.Regexp) float64 {
	matches := 0
	for _, cue := range cues {
		if cue.MatchString(content) {
			matches++
		}
	}
	score := float64(matches) / cueNormalization
	if score > 1 {
		return 1
	}
	return score
}

// ContextLevel classifies content into a context level. Scores each cue set,
// boosts by category, nudges on lexical shape, and falls back to the
// category default when no signal is strong enough.
func ContextLevel(content string, category types.MemoryCategory) types.ContextLevel {
	lowered := strings.ToLower(content)

	userScore := cueScore(lowered, preferenceCues)
	projectScore := cueScore(lowered, projectCues)
	sessionScore := cueScore(lowered, sessionCues)

	switch category {
	case types.CategoryPreference:
		userScore += 0.5
	case types.CategoryContext:
		projectScore += 0.3
	case types.CategoryWorkflow:
		projectScore += 0.2
	case types.CategoryEvent:
		sessionScore += 0.3
	}

	if codeConstructCue.MatchString(lowered) {
		projectScore += 0.15
	}
	if imperativeOpener.MatchString(lowered) {
		sessionScore += 0.15
	}

	// Ties break in enum order: user preference, project, session.
	best := types.ContextUserPreference
	bestScore := userScore
	if projectScore > bestScore {
		best = types.ContextProjectContext
		bestScore = projectScore
	}
	if sessionScore > bestScore {
		best = types.ContextSessionState
		bestScore = sessionScore
	}

	if bestScore < minConfidence {
		if fallback, ok := categoryDefaults[category]; ok {
			return fallback
		}
		return types.ContextProjectContext
	}
	return best
}
