package domain

// SearchResult is one document assembled from its matched chunks.
type SearchResult struct {
	DocumentID     string           `json:"document_id"`
	Excerpt        string           `json:"excerpt"`
	Metadata       DocumentMetadata `json:"metadata"`
	CompositeScore float64          `json:"composite_score"`
	MaxSimilarity  float64          `json:"max_similarity"`
	AvgSimilarity  float64          `json:"avg_similarity"`
	MatchedChunks  int              `json:"matched_chunks_count"`
	TotalChunks    int              `json:"total_chunks"`
}

// IngestStatus is the outcome of an ingest call.
type IngestStatus string

const (
	IngestAccepted  IngestStatus = "accepted"
	IngestDuplicate IngestStatus = "duplicate"
	IngestRejected  IngestStatus = "rejected"
)

// IngestResult reports what happened to a submitted document.
type IngestResult struct {
	Status      IngestStatus `json:"status"`
	DocumentID  string       `json:"document_id"`
	ContentHash string       `json:"content_hash,omitempty"`
	TotalChunks int          `json:"total_chunks,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// Stats describes the stored corpus.
type Stats struct {
	TotalChunks int    `json:"total_chunk_count"`
	Backend     string `json:"backend"`
	Collection  string `json:"collection,omitempty"`
}

// DocumentSummary is a document-level view of stored metadata.
type DocumentSummary struct {
	DocumentID       string   `json:"document_id"`
	Title            string   `json:"title"`
	Source           string   `json:"source"`
	Category         string   `json:"category"`
	PublishedAt      string   `json:"published_at"`
	PublishedAtEpoch int64    `json:"published_at_epoch"`
	MarketRelevance  float64  `json:"market_relevance"`
	SentimentScore   float64  `json:"sentiment_score"`
	Keywords         []string `json:"keywords"`
}

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// SentimentSummary aggregates document sentiment over a time range.
type SentimentSummary struct {
	Total            int                `json:"total"`
	Positive         int                `json:"positive"`
	Negative         int                `json:"negative"`
	Neutral          int                `json:"neutral"`
	AverageSentiment float64            `json:"avg_sentiment"`
	Distribution     map[string]float64 `json:"distribution"`
}
