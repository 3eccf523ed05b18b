// Package query expands short or ambiguous retrieval queries with salient
// context from the session's recent queries.
package query

import (
	"strings"
	"unicode"

	"mcp-semantic-memory/internal/session"
	"mcp-semantic-memory/pkg/types"
)

const (
	// shortTokenCount marks a query as short enough to expand.
	shortTokenCount = 3
	// maxBorrowedTokens bounds how much context one expansion may add.
	maxBorrowedTokens = 5
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "what": true, "how": true, "where": true, "when": true,
	"does": true, "about": true, "from": true, "into": true, "have": true,
	"are": true, "was": true, "were": true, "can": true, "should": true,
	"would": true, "there": true, "their": true, "them": true, "then": true,
}

// ambiguousCues are deictic words whose referent lives in earlier queries.
var ambiguousCues = map[string]bool{
	"it": true, "that": true, "this": true, "those": true, "them": true,
	"same": true, "again": true, "more": true, "one": true,
}

var injectionFragments = []string{
	"drop table", "delete from", "'; --", "union select",
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '_' && r != '-'
	})
}

func isAmbiguous(tokens []string) bool {
	for _, tok := range tokens {
		if ambiguousCues[tok] {
			return true
		}
	}
	return false
}

// Expand augments a short or ambiguous query with salient tokens from the
// session's recent queries, newest first. Specific queries pass through
// unchanged, and the result always stays within the query length bound and
// free of injection fragments.
func Expand(current string, recent []session.TrackedQuery) string {
	current = strings.TrimSpace(current)
	if current == "" || len(recent) == 0 {
		return current
	}
	tokens := tokenize(current)
	if len(tokens) >= shortTokenCount && !isAmbiguous(tokens) {
		return current
	}

	present := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		present[tok] = true
	}

	var borrowed []string
	for i := len(recent) - 1; i >= 0 && len(borrowed) < maxBorrowedTokens; i-- {
		for _, tok := range tokenize(recent[i].Query) {
			if len(borrowed) >= maxBorrowedTokens {
				break
			}
			if len(tok) <= 3 || stopwords[tok] || present[tok] {
				continue
			}
			present[tok] = true
			borrowed = append(borrowed, tok)
		}
	}
	if len(borrowed) == 0 {
		return current
	}

	expanded := current + " " + strings.Join(borrowed, " ")
	if containsInjection(expanded) {
		return current
	}
	if runes := []rune(expanded); len(runes) > types.MaxQueryChars {
		return current
	}
	return expanded
}

func containsInjection(s string) bool {
	lowered := strings.ToLower(s)
	for _, fragment := range injectionFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}
