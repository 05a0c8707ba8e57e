package domain

import "fmt"

// DocumentMetadata is the per-document metadata copied onto every chunk.
type DocumentMetadata struct {
	Title            string   `json:"title"`
	Source           string   `json:"source"`
	Category         string   `json:"category"`
	Language         string   `json:"language"`
	ContentHash      string   `json:"content_hash"`
	PublishedAt      string   `json:"published_at"`
	PublishedAtEpoch int64    `json:"published_at_epoch"`
	SentimentScore   float64  `json:"sentiment_score"`
	ImportanceScore  float64  `json:"importance_score"`
	MarketRelevance  float64  `json:"market_relevance"`
	Keywords         []string `json:"keywords"`
	CreatedAt        string   `json:"created_at"`
}

// ChunkRecord is the unit persisted in and returned by a vector store.
type ChunkRecord struct {
	ChunkID     string `json:"chunk_id"`
	DocumentID  string `json:"document_id"`
	Ordinal     int    `json:"ordinal"`
	TotalChunks int    `json:"total_chunks"`
	Text        string `json:"text"`
	DocumentMetadata
	Embedding []float32 `json:"embedding,omitempty"`
}

// ChunkHit is a chunk returned by a nearest-neighbour query.
type ChunkHit struct {
	Record   ChunkRecord
	Distance float64
}

// ChunkID derives the deterministic id of a document's chunk.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// Field names a queryable chunk attribute.
type Field string

const (
	FieldChunkID          Field = "chunk_id"
	FieldDocumentID       Field = "document_id"
	FieldOrdinal          Field = "ordinal"
	FieldTotalChunks      Field = "total_chunks"
	FieldTitle            Field = "title"
	FieldSource           Field = "source"
	FieldCategory         Field = "category"
	FieldLanguage         Field = "language"
	FieldContentHash      Field = "content_hash"
	FieldPublishedAt      Field = "published_at"
	FieldPublishedAtEpoch Field = "published_at_epoch"
	FieldSentimentScore   Field = "sentiment_score"
	FieldImportanceScore  Field = "importance_score"
	FieldMarketRelevance  Field = "market_relevance"
)

var numericFields = map[Field]bool{
	FieldOrdinal:          true,
	FieldTotalChunks:      true,
	FieldPublishedAtEpoch: true,
	FieldSentimentScore:   true,
	FieldImportanceScore:  true,
	FieldMarketRelevance:  true,
}

var stringFields = map[Field]bool{
	FieldChunkID:     true,
	FieldDocumentID:  true,
	FieldTitle:       true,
	FieldSource:      true,
	FieldCategory:    true,
	FieldLanguage:    true,
	FieldContentHash: true,
	FieldPublishedAt: true,
}

// IsValid reports whether f is a known field.
func (f Field) IsValid() bool {
	return numericFields[f] || stringFields[f]
}

// IsNumeric reports whether f holds a number.
func (f Field) IsNumeric() bool {
	return numericFields[f]
}

// Value returns the record's value for f: a string for text fields and a
// float64 for numeric ones.
func (r *ChunkRecord) Value(f Field) (any, bool) {
	switch f {
	case FieldChunkID:
		return r.ChunkID, true
	case FieldDocumentID:
		return r.DocumentID, true
	case FieldOrdinal:
		return float64(r.Ordinal), true
	case FieldTotalChunks:
		return float64(r.TotalChunks), true
	case FieldTitle:
		return r.Title, true
	case FieldSource:
		return r.Source, true
	case FieldCategory:
		return r.Category, true
	case FieldLanguage:
		return r.Language, true
	case FieldContentHash:
		return r.ContentHash, true
	case FieldPublishedAt:
		return r.PublishedAt, true
	case FieldPublishedAtEpoch:
		return float64(r.PublishedAtEpoch), true
	case FieldSentimentScore:
		return r.SentimentScore, true
	case FieldImportanceScore:
		return r.ImportanceScore, true
	case FieldMarketRelevance:
		return r.MarketRelevance, true
	}
	return nil, false
}
