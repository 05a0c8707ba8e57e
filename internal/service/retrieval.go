package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/telemetry"
	"go.uber.org/zap"
)

const (
	defaultTopN         = 10
	candidateMultiplier = 5

	DefaultMinMarketRelevance = 0.3
	DefaultMarketLimit        = 100

	positiveSentimentThreshold = 0.1
	negativeSentimentThreshold = -0.1
)

// SearchRequest is a semantic search with optional hybrid constraints.
type SearchRequest struct {
	Query    string
	TopN     int
	Keywords []string
	Start    *time.Time
	End      *time.Time
	Filters  map[string]any
}

// RetrievalService answers queries over stored chunks at document level.
type RetrievalService struct {
	store    VectorStore
	embedder EmbeddingClient
	logger   *zap.Logger
	metrics  *Metrics
}

// NewRetrievalService creates a RetrievalService. A nil embedder sends query
// text to the store for embedding.
func NewRetrievalService(store VectorStore, embedder EmbeddingClient, logger *zap.Logger, metrics *Metrics) *RetrievalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalService{
		store:    store,
		embedder: embedder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Search returns up to TopN documents ranked by composite score. No matches
// is an empty slice, not an error.
func (s *RetrievalService) Search(ctx context.Context, req SearchRequest) ([]*domain.SearchResult, error) {
	started := time.Now()
	defer s.metrics.observe("search", started)

	if req.TopN <= 0 {
		req.TopN = defaultTopN
	}
	ctx, span := telemetry.StartSpan(ctx, "retrieval.search", telemetry.SpanAttributes{
		Backend:   s.store.Backend(),
		Operation: "search",
		TopN:      req.TopN,
	})
	defer span.End()

	where, contains, err := BuildFilter(FilterInput{
		Keywords: req.Keywords,
		Start:    req.Start,
		End:      req.End,
		Extra:    req.Filters,
	})
	if err != nil {
		return nil, err
	}

	results, err := s.search(ctx, req.Query, req.TopN, where, contains, "")
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetData("results", len(results))
	return results, nil
}

func (s *RetrievalService) search(
	ctx context.Context,
	query string,
	topN int,
	where *domain.MetadataPredicate,
	contains *domain.ContentPredicate,
	excludeDocumentID string,
) ([]*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.SearchResult{}, nil
	}

	q := domain.ChunkQuery{
		Text:     query,
		N:        topN * candidateMultiplier,
		Where:    where,
		Contains: contains,
	}
	if s.embedder != nil {
		vector, err := embedOne(ctx, s.embedder, query)
		if err != nil {
			return nil, domain.ErrEmbeddingUnavailable.Wrap(err)
		}
		q.Vector = vector
	}

	hits, err := s.store.Query(ctx, q)
	if err != nil {
		s.metrics.storeError("query")
		return nil, storeFailure("query", err)
	}

	if excludeDocumentID != "" {
		kept := hits[:0]
		for _, h := range hits {
			if h.Record.DocumentID != excludeDocumentID {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	s.logger.Debug("chunk candidates",
		zap.Int("requested", q.N),
		zap.Int("returned", len(hits)),
	)
	return aggregateChunkHits(hits, topN), nil
}

// Similar finds documents close to the given one, using its first chunk as
// the query. An unknown document yields an empty slice.
func (s *RetrievalService) Similar(ctx context.Context, documentID string, topN int) ([]*domain.SearchResult, error) {
	started := time.Now()
	defer s.metrics.observe("similar", started)

	if topN <= 0 {
		topN = defaultTopN
	}
	ctx, span := telemetry.StartSpan(ctx, "retrieval.similar", telemetry.SpanAttributes{
		DocumentID: documentID,
		Backend:    s.store.Backend(),
		Operation:  "similar",
		TopN:       topN,
	})
	defer span.End()

	if documentID == "" {
		return nil, domain.MissingField("document_id")
	}

	chunks, err := s.store.Get(ctx, domain.GetRequest{
		Where: domain.Where(domain.Eq(domain.FieldDocumentID, documentID)),
	})
	if err != nil {
		s.metrics.storeError("get")
		err = storeFailure("get", err)
		span.SetError(err)
		return nil, err
	}
	if len(chunks) == 0 {
		return []*domain.SearchResult{}, nil
	}

	first := chunks[0]
	for _, c := range chunks[1:] {
		if c.Ordinal < first.Ordinal {
			first = c
		}
	}

	exclude := domain.Where(domain.Ne(domain.FieldDocumentID, documentID))
	results, err := s.search(ctx, first.Text, topN, exclude, nil, documentID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return results, nil
}

// Delete removes every chunk of a document in one store call. It reports
// whether anything was removed; deleting an unknown document succeeds.
func (s *RetrievalService) Delete(ctx context.Context, documentID string) (bool, error) {
	started := time.Now()
	defer s.metrics.observe("delete", started)

	ctx, span := telemetry.StartSpan(ctx, "retrieval.delete", telemetry.SpanAttributes{
		DocumentID: documentID,
		Backend:    s.store.Backend(),
		Operation:  "delete",
	})
	defer span.End()

	if documentID == "" {
		return false, domain.MissingField("document_id")
	}

	chunks, err := s.store.Get(ctx, domain.GetRequest{
		Where: domain.Where(domain.Eq(domain.FieldDocumentID, documentID)),
	})
	if err != nil {
		s.metrics.storeError("get")
		err = storeFailure("get", err)
		span.SetError(err)
		return false, err
	}
	if len(chunks) == 0 {
		return false, nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		s.metrics.storeError("delete")
		err = storeFailure("delete", err)
		span.SetError(err)
		return false, err
	}

	s.logger.Info("document deleted",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(ids)),
	)
	return true, nil
}

// Stats reports the size of the stored corpus.
func (s *RetrievalService) Stats(ctx context.Context) (*domain.Stats, error) {
	started := time.Now()
	defer s.metrics.observe("stats", started)

	ctx, span := telemetry.StartSpan(ctx, "retrieval.stats", telemetry.SpanAttributes{
		Backend:   s.store.Backend(),
		Operation: "stats",
	})
	defer span.End()

	count, err := s.store.Count(ctx)
	if err != nil {
		s.metrics.storeError("count")
		err = storeFailure("count", err)
		span.SetError(err)
		return nil, err
	}
	span.SetData("chunks", count)

	stats := &domain.Stats{TotalChunks: count, Backend: s.store.Backend()}
	if named, ok := s.store.(CollectionNamer); ok {
		stats.Collection = named.Collection()
	}
	return stats, nil
}

// MarketRelevant lists documents whose market relevance is at least
// minRelevance, most relevant first.
func (s *RetrievalService) MarketRelevant(ctx context.Context, minRelevance float64, limit int) ([]*domain.DocumentSummary, error) {
	if minRelevance < 0 {
		minRelevance = 0
	}
	if limit <= 0 {
		limit = DefaultMarketLimit
	}

	started := time.Now()
	defer s.metrics.observe("market_relevant", started)

	ctx, span := telemetry.StartSpan(ctx, "retrieval.market_relevant", telemetry.SpanAttributes{
		Backend:   s.store.Backend(),
		Operation: "market_relevant",
		TopN:      limit,
	})
	defer span.End()

	chunks, err := s.store.Get(ctx, domain.GetRequest{
		Where: domain.Where(domain.Gte(domain.FieldMarketRelevance, minRelevance)),
	})
	if err != nil {
		s.metrics.storeError("get")
		err = storeFailure("get", err)
		span.SetError(err)
		return nil, err
	}

	docs := summarizeDocuments(chunks)
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].MarketRelevance != docs[j].MarketRelevance {
			return docs[i].MarketRelevance > docs[j].MarketRelevance
		}
		if docs[i].PublishedAtEpoch != docs[j].PublishedAtEpoch {
			return docs[i].PublishedAtEpoch > docs[j].PublishedAtEpoch
		}
		return docs[i].DocumentID < docs[j].DocumentID
	})

	if len(docs) > limit {
		docs = docs[:limit]
	}
	span.SetData("results", len(docs))
	return docs, nil
}

// SentimentSummary counts documents by sentiment within an optional time range.
func (s *RetrievalService) SentimentSummary(ctx context.Context, start, end *time.Time) (*domain.SentimentSummary, error) {
	started := time.Now()
	defer s.metrics.observe("sentiment_summary", started)

	ctx, span := telemetry.StartSpan(ctx, "retrieval.sentiment_summary", telemetry.SpanAttributes{
		Backend:   s.store.Backend(),
		Operation: "sentiment_summary",
	})
	defer span.End()

	where, _, err := BuildFilter(FilterInput{Start: start, End: end})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	chunks, err := s.store.Get(ctx, domain.GetRequest{Where: where})
	if err != nil {
		s.metrics.storeError("get")
		err = storeFailure("get", err)
		span.SetError(err)
		return nil, err
	}

	docs := summarizeDocuments(chunks)
	summary := &domain.SentimentSummary{
		Distribution: map[string]float64{
			domain.SentimentPositive: 0,
			domain.SentimentNegative: 0,
			domain.SentimentNeutral:  0,
		},
	}
	if len(docs) == 0 {
		return summary, nil
	}

	total := 0.0
	for _, d := range docs {
		total += d.SentimentScore
		switch {
		case d.SentimentScore > positiveSentimentThreshold:
			summary.Positive++
		case d.SentimentScore < negativeSentimentThreshold:
			summary.Negative++
		default:
			summary.Neutral++
		}
	}

	n := float64(len(docs))
	summary.Total = len(docs)
	summary.AverageSentiment = total / n
	summary.Distribution[domain.SentimentPositive] = float64(summary.Positive) / n
	summary.Distribution[domain.SentimentNegative] = float64(summary.Negative) / n
	summary.Distribution[domain.SentimentNeutral] = float64(summary.Neutral) / n
	span.SetData("documents", summary.Total)
	return summary, nil
}

// summarizeDocuments keeps one summary per document in first-seen order.
func summarizeDocuments(chunks []domain.ChunkRecord) []*domain.DocumentSummary {
	seen := make(map[string]struct{}, len(chunks))
	docs := make([]*domain.DocumentSummary, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		docs = append(docs, &domain.DocumentSummary{
			DocumentID:       c.DocumentID,
			Title:            c.Title,
			Source:           c.Source,
			Category:         c.Category,
			PublishedAt:      c.PublishedAt,
			PublishedAtEpoch: c.PublishedAtEpoch,
			MarketRelevance:  c.MarketRelevance,
			SentimentScore:   c.SentimentScore,
			Keywords:         c.Keywords,
		})
	}
	return docs
}
