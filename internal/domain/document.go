package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Document defaults
const (
	DefaultSentimentScore  = 0.0
	DefaultImportanceScore = 0.5
	DefaultMarketRelevance = 0.0
	DefaultLanguage        = "zh"
	MaxTitleLength         = 500
)

// Document is the logical unit a caller submits for ingestion.
// Nil score pointers mean the caller did not supply a value.
type Document struct {
	ID              string    `json:"document_id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Source          string    `json:"source,omitempty"`
	Category        string    `json:"category,omitempty"`
	Language        string    `json:"language,omitempty"`
	PublishedAt     Timestamp `json:"published_at"`
	SentimentScore  *float64  `json:"sentiment_score,omitempty"`
	ImportanceScore *float64  `json:"importance_score,omitempty"`
}

// FullText is the unchunked text used for hashing and enrichment.
func (d *Document) FullText() string {
	return d.Title + "\n" + d.Body
}

// Validate checks the fields ingestion cannot proceed without.
func (d *Document) Validate() error {
	if d.ID == "" {
		return MissingField("document_id")
	}
	if d.Title == "" {
		return MissingField("title")
	}
	if d.Body == "" {
		return MissingField("body")
	}
	return nil
}

// Timestamp is a publication time as supplied by a caller: either a
// structured time or raw text that still needs normalizing.
type Timestamp struct {
	Time time.Time
	Raw  string
}

// TimeOf wraps a structured time.
func TimeOf(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// TimeText wraps raw timestamp text.
func TimeText(s string) Timestamp {
	return Timestamp{Raw: s}
}

// IsZero reports whether no timestamp was supplied.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && t.Raw == ""
}

// MarshalJSON writes the structured time in RFC 3339 or the raw text.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Time.IsZero() {
		return json.Marshal(t.Time.Format(time.RFC3339Nano))
	}
	if t.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(t.Raw)
}

// UnmarshalJSON accepts a string, epoch seconds or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Timestamp{Raw: s}
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp must be a string or epoch seconds: %w", err)
	}
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	*t = Timestamp{Time: time.Unix(whole, nanos).UTC()}
	return nil
}
