package chromemstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cloo-solutions/newsvec/internal/domain"
)

// chromem metadata is map[string]string; numbers use strconv round-trip
// formatting and keywords are stored as a JSON array.
func encodeMetadata(r *domain.ChunkRecord) map[string]string {
	keywords, _ := json.Marshal(nonNil(r.Keywords))
	return map[string]string{
		string(domain.FieldDocumentID):       r.DocumentID,
		string(domain.FieldOrdinal):          strconv.Itoa(r.Ordinal),
		string(domain.FieldTotalChunks):      strconv.Itoa(r.TotalChunks),
		string(domain.FieldTitle):            r.Title,
		string(domain.FieldSource):           r.Source,
		string(domain.FieldCategory):         r.Category,
		string(domain.FieldLanguage):         r.Language,
		string(domain.FieldContentHash):      r.ContentHash,
		string(domain.FieldPublishedAt):      r.PublishedAt,
		string(domain.FieldPublishedAtEpoch): strconv.FormatInt(r.PublishedAtEpoch, 10),
		string(domain.FieldSentimentScore):   formatFloat(r.SentimentScore),
		string(domain.FieldImportanceScore):  formatFloat(r.ImportanceScore),
		string(domain.FieldMarketRelevance):  formatFloat(r.MarketRelevance),
		"keywords":                           string(keywords),
		"created_at":                         r.CreatedAt,
	}
}

func decodeRecord(id, text string, m map[string]string) (domain.ChunkRecord, error) {
	rec := domain.ChunkRecord{
		ChunkID:    id,
		DocumentID: m[string(domain.FieldDocumentID)],
		Text:       text,
		DocumentMetadata: domain.DocumentMetadata{
			Title:       m[string(domain.FieldTitle)],
			Source:      m[string(domain.FieldSource)],
			Category:    m[string(domain.FieldCategory)],
			Language:    m[string(domain.FieldLanguage)],
			ContentHash: m[string(domain.FieldContentHash)],
			PublishedAt: m[string(domain.FieldPublishedAt)],
			CreatedAt:   m["created_at"],
		},
	}

	var err error
	if rec.Ordinal, err = atoi(m, domain.FieldOrdinal); err != nil {
		return rec, err
	}
	if rec.TotalChunks, err = atoi(m, domain.FieldTotalChunks); err != nil {
		return rec, err
	}
	if v := m[string(domain.FieldPublishedAtEpoch)]; v != "" {
		if rec.PublishedAtEpoch, err = strconv.ParseInt(v, 10, 64); err != nil {
			return rec, fmt.Errorf("chunk %s: bad published_at_epoch: %w", id, err)
		}
	}
	if rec.SentimentScore, err = parseFloat(m, domain.FieldSentimentScore, domain.DefaultSentimentScore); err != nil {
		return rec, err
	}
	if rec.ImportanceScore, err = parseFloat(m, domain.FieldImportanceScore, domain.DefaultImportanceScore); err != nil {
		return rec, err
	}
	if rec.MarketRelevance, err = parseFloat(m, domain.FieldMarketRelevance, domain.DefaultMarketRelevance); err != nil {
		return rec, err
	}

	rec.Keywords = []string{}
	if raw := m["keywords"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Keywords); err != nil {
			return rec, fmt.Errorf("chunk %s: bad keywords: %w", id, err)
		}
	}
	return rec, nil
}

func atoi(m map[string]string, f domain.Field) (int, error) {
	v := m[string(f)]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", f, v, err)
	}
	return n, nil
}

func parseFloat(m map[string]string, f domain.Field, def float64) (float64, error) {
	v := m[string(f)]
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", f, v, err)
	}
	return n, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
