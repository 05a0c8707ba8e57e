package chromemstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(docID string, ordinal, total int, text string, vec []float32) domain.ChunkRecord {
	return domain.ChunkRecord{
		ChunkID:     domain.ChunkID(docID, ordinal),
		DocumentID:  docID,
		Ordinal:     ordinal,
		TotalChunks: total,
		Text:        text,
		DocumentMetadata: domain.DocumentMetadata{
			Title:            "title " + docID,
			Category:         "macro",
			ContentHash:      "hash-" + docID,
			PublishedAt:      "2024-01-15T18:30:00+08:00",
			PublishedAtEpoch: 1705314600,
			SentimentScore:   0.25,
			ImportanceScore:  0.5,
			MarketRelevance:  0.6,
			Keywords:         []string{"央行", "rate"},
		},
		Embedding: vec,
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, []domain.ChunkRecord{
		record("doc-a", 1, 2, "the central bank cut the policy rate", []float32{1, 0, 0}),
		record("doc-a", 2, 2, "markets rallied after the decision", []float32{0.8, 0.6, 0}),
	}))
	b := record("doc-b", 1, 1, "央行维持利率不变", []float32{0, 1, 0})
	b.Category = "policy"
	b.PublishedAtEpoch = 1700000000
	require.NoError(t, s.Insert(ctx, []domain.ChunkRecord{b}))
}

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Dimensions: 3}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestStore_InsertAndCount(t *testing.T) {
	s := newMemoryStore(t)
	seed(t, s)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "chromem", s.Backend())
	assert.Equal(t, DefaultCollection, s.Collection())
}

func TestStore_Query_RanksByDistance(t *testing.T) {
	s := newMemoryStore(t)
	seed(t, s)

	hits, err := s.Query(context.Background(), domain.ChunkQuery{Vector: []float32{1, 0, 0}, N: 10})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "doc-a_chunk_1", hits[0].Record.ChunkID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-6)
	assert.Equal(t, "doc-a_chunk_2", hits[1].Record.ChunkID)
	assert.InDelta(t, 0.2, hits[1].Distance, 1e-6)
	assert.InDelta(t, 1.0, hits[2].Distance, 1e-6)

	// metadata round-trips through string encoding
	got := hits[0].Record
	assert.Equal(t, 1, got.Ordinal)
	assert.Equal(t, 2, got.TotalChunks)
	assert.Equal(t, int64(1705314600), got.PublishedAtEpoch)
	assert.Equal(t, 0.25, got.SentimentScore)
	assert.Equal(t, []string{"央行", "rate"}, got.Keywords)
}

func TestStore_Query_Filters(t *testing.T) {
	s := newMemoryStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name     string
		where    *domain.MetadataPredicate
		contains *domain.ContentPredicate
		n        int
		want     []string
	}{
		{
			name:  "equality pushdown",
			where: domain.Where(domain.Eq(domain.FieldCategory, "policy")),
			n:     10,
			want:  []string{"doc-b_chunk_1"},
		},
		{
			name:  "range filter",
			where: domain.Where(domain.Gte(domain.FieldPublishedAtEpoch, 1705000000)),
			n:     10,
			want:  []string{"doc-a_chunk_1", "doc-a_chunk_2"},
		},
		{
			name:  "not equal",
			where: domain.Where(domain.Ne(domain.FieldDocumentID, "doc-a")),
			n:     10,
			want:  []string{"doc-b_chunk_1"},
		},
		{
			name:     "content any of",
			contains: &domain.ContentPredicate{Substrings: []string{"rallied", "利率"}},
			n:        10,
			want:     []string{"doc-a_chunk_2", "doc-b_chunk_1"},
		},
		{
			name:     "single substring pushdown",
			contains: &domain.ContentPredicate{Substrings: []string{"central bank"}},
			n:        10,
			want:     []string{"doc-a_chunk_1"},
		},
		{
			name: "truncated to n",
			n:    1,
			want: []string{"doc-a_chunk_1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := s.Query(ctx, domain.ChunkQuery{
				Vector:   []float32{1, 0, 0},
				N:        tt.n,
				Where:    tt.where,
				Contains: tt.contains,
			})
			require.NoError(t, err)
			ids := make([]string, len(hits))
			for i, h := range hits {
				ids[i] = h.Record.ChunkID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_Query_EmbedsText(t *testing.T) {
	embed := func(_ context.Context, text string) ([]float32, error) {
		if text == "bank" {
			return []float32{0, 1, 0}, nil
		}
		return []float32{1, 0, 0}, nil
	}
	s, err := New(Config{}, embed, nil)
	require.NoError(t, err)
	seed(t, s)

	hits, err := s.Query(context.Background(), domain.ChunkQuery{Text: "bank", N: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].Record.DocumentID)
}

func TestStore_Query_Empty(t *testing.T) {
	s := newMemoryStore(t)

	hits, err := s.Query(context.Background(), domain.ChunkQuery{Vector: []float32{1, 0, 0}, N: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_Get(t *testing.T) {
	s := newMemoryStore(t)
	seed(t, s)
	ctx := context.Background()

	recs, err := s.Get(ctx, domain.GetRequest{Where: domain.Where(domain.Eq(domain.FieldDocumentID, "doc-a"))})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "doc-a", r.DocumentID)
		assert.Nil(t, r.Embedding)
	}

	recs, err = s.Get(ctx, domain.GetRequest{Where: domain.Where(domain.Eq(domain.FieldContentHash, "hash-doc-b")), Limit: 1, WithEmbeddings: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Embedding, 3)

	recs, err = s.Get(ctx, domain.GetRequest{Where: domain.Where(domain.Gte(domain.FieldMarketRelevance, 0.9))})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.Get(ctx, domain.GetRequest{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestStore_Delete(t *testing.T) {
	s := newMemoryStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, []string{"doc-a_chunk_1", "doc-a_chunk_2"}))

	recs, err := s.Get(ctx, domain.GetRequest{Where: domain.Where(domain.Eq(domain.FieldDocumentID, "doc-a"))})
	require.NoError(t, err)
	assert.Empty(t, recs)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_Insert_EmbeddingFailureWritesNothing(t *testing.T) {
	calls := 0
	embed := func(context.Context, string) ([]float32, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("quota exceeded")
		}
		return []float32{1, 0, 0}, nil
	}
	s, err := New(Config{Dimensions: 3}, embed, nil)
	require.NoError(t, err)

	err = s.Insert(context.Background(), []domain.ChunkRecord{
		record("doc-a", 1, 2, "first", nil),
		record("doc-a", 2, 2, "second", nil),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))

	n, _ := s.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestStore_NoEmbedder(t *testing.T) {
	s := newMemoryStore(t)
	seed(t, s)

	_, err := s.Query(context.Background(), domain.ChunkQuery{Text: "anything", N: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEmbedder))
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{Path: dir, Dimensions: 3}, nil, nil)
	require.NoError(t, err)
	seed(t, s)

	reopened, err := New(Config{Path: dir, Dimensions: 3}, nil, nil)
	require.NoError(t, err)
	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_ConcurrentWritesDuringReads(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	stable := make([]domain.ChunkRecord, 0, 200)
	for i := 0; i < 200; i++ {
		stable = append(stable, record(fmt.Sprintf("doc-%03d", i), 1, 1, "stable chunk", []float32{1, float32(i), 0}))
	}
	require.NoError(t, s.Insert(ctx, stable))

	const cycles = 300
	var wg sync.WaitGroup
	writeErrs := make(chan error, 2*cycles)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < cycles; i++ {
			r := record("churn", 1, 1, "short lived chunk", []float32{0, 0, 1})
			if err := s.Insert(ctx, []domain.ChunkRecord{r}); err != nil {
				writeErrs <- err
				continue
			}
			if err := s.Delete(ctx, []string{r.ChunkID}); err != nil {
				writeErrs <- err
			}
		}
	}()

	// the ne term forces a full-collection query sized by the current count
	where := domain.Where(domain.Ne(domain.FieldDocumentID, "churn"))
	for i := 0; i < cycles; i++ {
		hits, err := s.Query(ctx, domain.ChunkQuery{Vector: []float32{1, 0, 0}, N: 5, Where: where})
		require.NoError(t, err)
		assert.Len(t, hits, 5)

		recs, err := s.Get(ctx, domain.GetRequest{Where: where})
		require.NoError(t, err)
		assert.Len(t, recs, 200)
	}

	wg.Wait()
	close(writeErrs)
	for err := range writeErrs {
		assert.NoError(t, err)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
}
