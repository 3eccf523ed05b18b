package storage

import (
	"github.com/qdrant/go-client/qdrant"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/pkg/types"
)

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
		Field: &qdrant.FieldCondition{
			Key:   key,
			Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
		},
	}}
}

func keywordsCondition(key string, values []string) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
		Field: &qdrant.FieldCondition{
			Key: key,
			Match: &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
				Keywords: &qdrant.RepeatedStrings{Strings: values},
			}},
		},
	}}
}

func rangeCondition(key string, gte, lt *float64) *qdrant.Condition {
	r := &qdrant.Range{}
	if gte != nil {
		r.Gte = qdrant.PtrOf(*gte)
	}
	if lt != nil {
		r.Lt = qdrant.PtrOf(*lt)
	}
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
		Field: &qdrant.FieldCondition{Key: key, Range: r},
	}}
}

func gteCondition(key string, gte float64) *qdrant.Condition {
	return rangeCondition(key, &gte, nil)
}

func ltCondition(key string, lt float64) *qdrant.Condition {
	return rangeCondition(key, nil, &lt)
}

// buildFilter translates the search filters into a Qdrant filter. A filter
// whose predicates cannot be expressed yields a VALIDATION error rather than
// a silently weaker query.
func buildFilter(filters *types.SearchFilters) (*qdrant.Filter, error) {
	if filters == nil {
		return nil, nil
	}
	var must, mustNot []*qdrant.Condition

	if filters.Category != nil {
		must = append(must, keywordCondition(fieldCategory, string(*filters.Category)))
	}
	if filters.ContextLevel != nil {
		must = append(must, keywordCondition(fieldContextLevel, string(*filters.ContextLevel)))
	}
	if filters.Scope != nil {
		must = append(must, keywordCondition(fieldScope, string(*filters.Scope)))
	}
	if filters.ProjectName != "" {
		must = append(must, keywordCondition(fieldProjectName, filters.ProjectName))
	}
	if filters.MinImportance != nil {
		must = append(must, gteCondition(fieldImportance, *filters.MinImportance))
	}
	if filters.MaxImportance != nil {
		must = append(must, &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   fieldImportance,
				Range: &qdrant.Range{Lte: qdrant.PtrOf(*filters.MaxImportance)},
			},
		}})
	}
	if filters.CreatedAfter != nil {
		must = append(must, gteCondition(fieldCreatedAt, float64(filters.CreatedAfter.Unix())))
	}
	if filters.CreatedBefore != nil {
		must = append(must, ltCondition(fieldCreatedAt, float64(filters.CreatedBefore.Unix())))
	}
	// Top-level tags always combine as ANY.
	if len(filters.Tags) > 0 {
		must = append(must, keywordsCondition(fieldTags, filters.Tags))
	}

	if adv := filters.Advanced; adv != nil {
		if adv.CreatedAfter != nil {
			must = append(must, gteCondition(fieldCreatedAt, float64(adv.CreatedAfter.Unix())))
		}
		if adv.CreatedBefore != nil {
			must = append(must, ltCondition(fieldCreatedAt, float64(adv.CreatedBefore.Unix())))
		}
		if adv.UpdatedAfter != nil {
			must = append(must, gteCondition(fieldUpdatedAt, float64(adv.UpdatedAfter.Unix())))
		}
		if adv.UpdatedBefore != nil {
			must = append(must, ltCondition(fieldUpdatedAt, float64(adv.UpdatedBefore.Unix())))
		}
		if adv.AccessedAfter != nil {
			must = append(must, gteCondition(fieldLastAccessed, float64(adv.AccessedAfter.Unix())))
		}
		if len(adv.Tags) > 0 {
			logic := adv.TagLogic
			if logic == "" {
				logic = types.TagLogicAny
			}
			switch logic {
			case types.TagLogicAny:
				must = append(must, keywordsCondition(fieldTags, adv.Tags))
			case types.TagLogicAll:
				for _, tag := range adv.Tags {
					must = append(must, keywordCondition(fieldTags, tag))
				}
			case types.TagLogicNone:
				mustNot = append(mustNot, keywordsCondition(fieldTags, adv.Tags))
			default:
				return nil, errors.NewValidationField("tag_logic", "unsupported tag logic: "+string(logic))
			}
		}
		if len(adv.LifecycleStates) > 0 {
			states := make([]string, len(adv.LifecycleStates))
			for i, ls := range adv.LifecycleStates {
				states[i] = string(ls)
			}
			must = append(must, keywordsCondition(fieldLifecycleState, states))
		}
		if len(adv.ExcludeCategories) > 0 {
			categories := make([]string, len(adv.ExcludeCategories))
			for i, cat := range adv.ExcludeCategories {
				categories[i] = string(cat)
			}
			mustNot = append(mustNot, keywordsCondition(fieldCategory, categories))
		}
		if len(adv.ExcludeProjects) > 0 {
			mustNot = append(mustNot, keywordsCondition(fieldProjectName, adv.ExcludeProjects))
		}
		if adv.MinTrustScore != nil {
			must = append(must, gteCondition(fieldProvConfidence, *adv.MinTrustScore))
		}
		if adv.ProvenanceSource != nil {
			must = append(must, keywordCondition(fieldProvSource, string(*adv.ProvenanceSource)))
		}
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil, nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}, nil
}

// MatchesFilters evaluates the same predicates buildFilter expresses, against
// an in-memory unit. The in-memory store and a few service-level passes use
// it so both backends agree on filter semantics.
func MatchesFilters(unit *types.MemoryUnit, filters *types.SearchFilters) bool {
	if filters == nil {
		return true
	}
	if filters.Category != nil && unit.Category != *filters.Category {
		return false
	}
	if filters.ContextLevel != nil && unit.ContextLevel != *filters.ContextLevel {
		return false
	}
	if filters.Scope != nil && unit.Scope != *filters.Scope {
		return false
	}
	if filters.ProjectName != "" && unit.ProjectName != filters.ProjectName {
		return false
	}
	if filters.MinImportance != nil && unit.Importance < *filters.MinImportance {
		return false
	}
	if filters.MaxImportance != nil && unit.Importance > *filters.MaxImportance {
		return false
	}
	if filters.CreatedAfter != nil && unit.CreatedAt.Before(*filters.CreatedAfter) {
		return false
	}
	if filters.CreatedBefore != nil && !unit.CreatedAt.Before(*filters.CreatedBefore) {
		return false
	}
	if len(filters.Tags) > 0 && !hasAnyTag(unit.Tags, filters.Tags) {
		return false
	}

	adv := filters.Advanced
	if adv == nil {
		return true
	}
	if adv.CreatedAfter != nil && unit.CreatedAt.Before(*adv.CreatedAfter) {
		return false
	}
	if adv.CreatedBefore != nil && !unit.CreatedAt.Before(*adv.CreatedBefore) {
		return false
	}
	if adv.UpdatedAfter != nil && unit.UpdatedAt.Before(*adv.UpdatedAfter) {
		return false
	}
	if adv.UpdatedBefore != nil && !unit.UpdatedAt.Before(*adv.UpdatedBefore) {
		return false
	}
	if adv.AccessedAfter != nil && unit.LastAccessed.Before(*adv.AccessedAfter) {
		return false
	}
	if len(adv.Tags) > 0 {
		logic := adv.TagLogic
		if logic == "" {
			logic = types.TagLogicAny
		}
		switch logic {
		case types.TagLogicAny:
			if !hasAnyTag(unit.Tags, adv.Tags) {
				return false
			}
		case types.TagLogicAll:
			if !hasAllTags(unit.Tags, adv.Tags) {
				return false
			}
		case types.TagLogicNone:
			if hasAnyTag(unit.Tags, adv.Tags) {
				return false
			}
		}
	}
	if len(adv.LifecycleStates) > 0 {
		found := false
		for _, ls := range adv.LifecycleStates {
			if unit.LifecycleState == ls {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, cat := range adv.ExcludeCategories {
		if unit.Category == cat {
			return false
		}
	}
	for _, project := range adv.ExcludeProjects {
		if unit.ProjectName == project {
			return false
		}
	}
	if adv.MinTrustScore != nil && unit.Provenance.Confidence < *adv.MinTrustScore {
		return false
	}
	if adv.ProvenanceSource != nil && unit.Provenance.Source != *adv.ProvenanceSource {
		return false
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
