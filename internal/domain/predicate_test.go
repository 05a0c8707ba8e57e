package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *ChunkRecord {
	return &ChunkRecord{
		ChunkID:     ChunkID("doc-1", 2),
		DocumentID:  "doc-1",
		Ordinal:     2,
		TotalChunks: 3,
		Text:        "央行宣布降息 25 个基点",
		DocumentMetadata: DocumentMetadata{
			Category:         "macro",
			PublishedAtEpoch: 1705312800,
			SentimentScore:   0.4,
			MarketRelevance:  0.7,
		},
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc-1_chunk_1", ChunkID("doc-1", 1))
}

func TestNewCondition(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		op      Operator
		value   any
		want    any
		wantErr bool
	}{
		{"string field", FieldCategory, OpEq, "macro", "macro", false},
		{"numeric from int64", FieldPublishedAtEpoch, OpGte, int64(10), float64(10), false},
		{"numeric from string", FieldMarketRelevance, OpGte, "0.3", 0.3, false},
		{"unknown field", Field("ds_mnemonic"), OpEq, "x", nil, true},
		{"unknown operator", FieldCategory, Operator("like"), "x", nil, true},
		{"bad number", FieldSentimentScore, OpEq, "high", nil, true},
		{"number for string field", FieldSource, OpEq, 12, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCondition(tt.field, tt.op, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFilter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Value)
		})
	}
}

func TestMetadataPredicate_Match(t *testing.T) {
	r := sampleRecord()

	tests := []struct {
		name string
		pred *MetadataPredicate
		want bool
	}{
		{"nil matches", nil, true},
		{"eq string", Where(Eq(FieldCategory, "macro")), true},
		{"eq string mismatch", Where(Eq(FieldCategory, "equity")), false},
		{"ne document", Where(Ne(FieldDocumentID, "doc-1")), false},
		{"range inside", Where(Gte(FieldPublishedAtEpoch, 1705312800), Lte(FieldPublishedAtEpoch, 1705399200)), true},
		{"range before", Where(Gte(FieldPublishedAtEpoch, 1705312801)), false},
		{"and requires all", Where(Eq(FieldCategory, "macro"), Gte(FieldMarketRelevance, 0.8)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Match(r))
		})
	}
}

func TestMetadataPredicate_And(t *testing.T) {
	var p *MetadataPredicate
	assert.Nil(t, p.And())

	p = p.And(Eq(FieldCategory, "macro"))
	require.NotNil(t, p)
	q := p.And(Ne(FieldDocumentID, "doc-2"))
	assert.Len(t, p.Conditions, 1)
	assert.Len(t, q.Conditions, 2)
}

func TestContentPredicate_Match(t *testing.T) {
	var nilPred *ContentPredicate
	assert.True(t, nilPred.Match("anything"))

	p := &ContentPredicate{Substrings: []string{"降息", "rate cut"}}
	assert.True(t, p.Match("央行宣布降息"))
	assert.True(t, p.Match("a surprise rate cut"))
	assert.False(t, p.Match("Rate Cut"))
}

func TestDomainError_Is(t *testing.T) {
	wrapped := ErrStoreUnavailable.Wrap(errors.New("connection refused"))
	outer := fmt.Errorf("query: %w", wrapped)

	assert.True(t, errors.Is(outer, ErrStoreUnavailable))
	assert.False(t, errors.Is(outer, ErrEmbeddingUnavailable))
	assert.Equal(t, ErrCodeStoreUnavailable, ErrorCode(outer))
	assert.Contains(t, wrapped.Error(), "connection refused")

	assert.True(t, IsCollaboratorFailure(outer))
	assert.True(t, IsCollaboratorFailure(ErrEmbeddingUnavailable.Wrap(errors.New("429"))))
	assert.False(t, IsCollaboratorFailure(MissingField("title")))
	assert.False(t, IsCollaboratorFailure(nil))
}

func TestDocument_Validate(t *testing.T) {
	doc := Document{ID: "a", Title: "t", Body: "b"}
	require.NoError(t, doc.Validate())

	doc.Body = ""
	err := doc.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Contains(t, err.Error(), "body")
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"document_id":"a","published_at":"2024-01-15"}`), &doc))
	assert.Equal(t, "2024-01-15", doc.PublishedAt.Raw)

	require.NoError(t, json.Unmarshal([]byte(`{"published_at":1705312800}`), &doc))
	assert.Equal(t, time.Unix(1705312800, 0).UTC(), doc.PublishedAt.Time)

	require.NoError(t, json.Unmarshal([]byte(`{"published_at":null}`), &doc))
	assert.True(t, doc.PublishedAt.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"published_at":true}`), &doc))
}
