package service

import (
	"sort"
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
)

// FilterInput carries the optional constraints of a search.
type FilterInput struct {
	Keywords []string
	Start    *time.Time
	End      *time.Time
	Extra    map[string]any
}

// BuildFilter translates a query's constraints into store predicates.
// Time bounds and extra equality terms are ANDed into the metadata
// predicate; keywords become an OR of substring terms. Absent inputs leave
// the corresponding predicate nil.
func BuildFilter(in FilterInput) (*domain.MetadataPredicate, *domain.ContentPredicate, error) {
	if in.Start != nil && in.End != nil && in.Start.After(*in.End) {
		return nil, nil, domain.ErrInvalidRange
	}

	var conds []domain.Condition
	if in.Start != nil {
		conds = append(conds, domain.Gte(domain.FieldPublishedAtEpoch, in.Start.Unix()))
	}
	if in.End != nil {
		conds = append(conds, domain.Lte(domain.FieldPublishedAtEpoch, in.End.Unix()))
	}

	// sorted for deterministic predicates
	keys := make([]string, 0, len(in.Extra))
	for k := range in.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c, err := domain.NewCondition(domain.Field(k), domain.OpEq, in.Extra[k])
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, c)
	}

	var content *domain.ContentPredicate
	if terms := keywordTerms(in.Keywords); len(terms) > 0 {
		content = &domain.ContentPredicate{Substrings: terms}
	}

	return domain.Where(conds...), content, nil
}

func keywordTerms(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	terms := orderedSet(keywords)
	if len(terms) == 0 {
		return nil
	}
	return terms
}
