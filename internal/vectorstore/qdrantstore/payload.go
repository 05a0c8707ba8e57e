package qdrantstore

import (
	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadText      = "text"
	payloadKeywords  = "keywords"
	payloadCreatedAt = "created_at"
)

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: n}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func encodePayload(r *domain.ChunkRecord) map[string]*qdrant.Value {
	keywords := make([]*qdrant.Value, len(r.Keywords))
	for i, k := range r.Keywords {
		keywords[i] = stringValue(k)
	}

	return map[string]*qdrant.Value{
		string(domain.FieldChunkID):          stringValue(r.ChunkID),
		string(domain.FieldDocumentID):       stringValue(r.DocumentID),
		string(domain.FieldOrdinal):          intValue(int64(r.Ordinal)),
		string(domain.FieldTotalChunks):      intValue(int64(r.TotalChunks)),
		payloadText:                          stringValue(r.Text),
		string(domain.FieldTitle):            stringValue(r.Title),
		string(domain.FieldSource):           stringValue(r.Source),
		string(domain.FieldCategory):         stringValue(r.Category),
		string(domain.FieldLanguage):         stringValue(r.Language),
		string(domain.FieldContentHash):      stringValue(r.ContentHash),
		string(domain.FieldPublishedAt):      stringValue(r.PublishedAt),
		string(domain.FieldPublishedAtEpoch): intValue(r.PublishedAtEpoch),
		string(domain.FieldSentimentScore):   doubleValue(r.SentimentScore),
		string(domain.FieldImportanceScore):  doubleValue(r.ImportanceScore),
		string(domain.FieldMarketRelevance):  doubleValue(r.MarketRelevance),
		payloadKeywords: {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: keywords}}},
		payloadCreatedAt: stringValue(r.CreatedAt),
	}
}

func decodePayload(p map[string]*qdrant.Value) domain.ChunkRecord {
	rec := domain.ChunkRecord{
		ChunkID:     getString(p, string(domain.FieldChunkID)),
		DocumentID:  getString(p, string(domain.FieldDocumentID)),
		Ordinal:     int(getInt(p, string(domain.FieldOrdinal))),
		TotalChunks: int(getInt(p, string(domain.FieldTotalChunks))),
		Text:        getString(p, payloadText),
		DocumentMetadata: domain.DocumentMetadata{
			Title:            getString(p, string(domain.FieldTitle)),
			Source:           getString(p, string(domain.FieldSource)),
			Category:         getString(p, string(domain.FieldCategory)),
			Language:         getString(p, string(domain.FieldLanguage)),
			ContentHash:      getString(p, string(domain.FieldContentHash)),
			PublishedAt:      getString(p, string(domain.FieldPublishedAt)),
			PublishedAtEpoch: getInt(p, string(domain.FieldPublishedAtEpoch)),
			SentimentScore:   getFloat(p, string(domain.FieldSentimentScore)),
			ImportanceScore:  getFloat(p, string(domain.FieldImportanceScore)),
			MarketRelevance:  getFloat(p, string(domain.FieldMarketRelevance)),
			CreatedAt:        getString(p, payloadCreatedAt),
			Keywords:         []string{},
		},
	}

	if v, ok := p[payloadKeywords]; ok {
		for _, item := range v.GetListValue().GetValues() {
			rec.Keywords = append(rec.Keywords, item.GetStringValue())
		}
	}
	return rec
}

func getString(p map[string]*qdrant.Value, key string) string {
	return p[key].GetStringValue()
}

func getInt(p map[string]*qdrant.Value, key string) int64 {
	v, ok := p[key]
	if !ok {
		return 0
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return int64(k.DoubleValue)
	}
	return 0
}

func getFloat(p map[string]*qdrant.Value, key string) float64 {
	v, ok := p[key]
	if !ok {
		return 0
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue)
	}
	return 0
}

func fieldCondition(fc *qdrant.FieldCondition) *qdrant.Condition {
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: fc}}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return fieldCondition(&qdrant.FieldCondition{
		Key:   key,
		Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
	})
}

func rangeCondition(key string, r *qdrant.Range) *qdrant.Condition {
	return fieldCondition(&qdrant.FieldCondition{Key: key, Range: r})
}

func textCondition(key, substring string) *qdrant.Condition {
	return fieldCondition(&qdrant.FieldCondition{
		Key:   key,
		Match: &qdrant.Match{MatchValue: &qdrant.Match_Text{Text: substring}},
	})
}

// buildFilter translates predicates into a Qdrant filter. Range terms on
// text fields have no Qdrant equivalent and are left to the in-memory
// check applied to results; exact is false when any term was left out.
func buildFilter(where *domain.MetadataPredicate, contains *domain.ContentPredicate) (filter *qdrant.Filter, exact bool) {
	f := &qdrant.Filter{}
	exact = true

	if where != nil {
		for _, c := range where.Conditions {
			key := string(c.Field)
			if c.Field.IsNumeric() {
				v, ok := c.Value.(float64)
				if !ok {
					exact = false
					continue
				}
				switch c.Op {
				case domain.OpEq:
					f.Must = append(f.Must, rangeCondition(key, &qdrant.Range{Gte: &v, Lte: &v}))
				case domain.OpNe:
					f.MustNot = append(f.MustNot, rangeCondition(key, &qdrant.Range{Gte: &v, Lte: &v}))
				case domain.OpGte:
					f.Must = append(f.Must, rangeCondition(key, &qdrant.Range{Gte: &v}))
				case domain.OpLte:
					f.Must = append(f.Must, rangeCondition(key, &qdrant.Range{Lte: &v}))
				}
				continue
			}

			v, ok := c.Value.(string)
			if !ok {
				exact = false
				continue
			}
			switch c.Op {
			case domain.OpEq:
				f.Must = append(f.Must, keywordCondition(key, v))
			case domain.OpNe:
				f.MustNot = append(f.MustNot, keywordCondition(key, v))
			default:
				exact = false
			}
		}
	}

	if contains != nil {
		for _, sub := range contains.Substrings {
			f.Should = append(f.Should, textCondition(payloadText, sub))
		}
	}

	if len(f.Must) == 0 && len(f.MustNot) == 0 && len(f.Should) == 0 {
		return nil, exact
	}
	return f, exact
}
