package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/normalize"
	"github.com/cloo-solutions/newsvec/internal/telemetry"
	"go.uber.org/zap"
)

// Rejection reasons reported in IngestResult.Reason.
const (
	ReasonMissingField       = "MissingField"
	ReasonEmptyAfterChunking = "EmptyAfterChunking"
	ReasonEmbeddingFailed    = "EmbeddingFailed"
	ReasonStoreUnavailable   = "StoreUnavailable"
)

// IngestService turns documents into stored chunk records.
type IngestService struct {
	store      VectorStore
	embedder   EmbeddingClient
	chunker    *Chunker
	enricher   *Enricher
	normalizer *normalize.Normalizer
	logger     *zap.Logger
	metrics    *Metrics
}

// NewIngestService creates an IngestService. A nil embedder leaves
// embedding to the store.
func NewIngestService(
	store VectorStore,
	embedder EmbeddingClient,
	chunker *Chunker,
	enricher *Enricher,
	normalizer *normalize.Normalizer,
	logger *zap.Logger,
	metrics *Metrics,
) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chunker == nil {
		chunker = NewChunker(DefaultChunkConfig())
	}
	if enricher == nil {
		enricher = NewEnricher(nil, 0, logger, metrics)
	}
	if normalizer == nil {
		normalizer, _ = normalize.New(normalize.DefaultTimezone, logger)
	}
	return &IngestService{
		store:      store,
		embedder:   embedder,
		chunker:    chunker,
		enricher:   enricher,
		normalizer: normalizer,
		logger:     logger,
		metrics:    metrics,
	}
}

// Ingest validates, deduplicates, chunks, enriches, embeds and stores a
// document. Every rejection returns a non-nil error alongside a result with
// IngestRejected; duplicates are not errors. Nothing is written unless all
// chunks are written.
func (s *IngestService) Ingest(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error) {
	var docID string
	if doc != nil {
		docID = doc.ID
	}
	ctx, span := telemetry.StartSpan(ctx, "ingest.document", telemetry.SpanAttributes{
		DocumentID: docID,
		Backend:    s.store.Backend(),
		Operation:  "ingest",
	})
	defer span.End()

	result, err := s.ingest(ctx, doc)
	s.metrics.ingested(result.Status, result.TotalChunks)

	if err != nil {
		switch result.Reason {
		case ReasonEmbeddingFailed, ReasonStoreUnavailable:
			span.SetError(err)
			s.logger.Error("ingest failed",
				zap.String("document_id", docID),
				zap.String("reason", result.Reason),
				zap.Error(err),
			)
		default:
			s.logger.Warn("ingest rejected",
				zap.String("document_id", docID),
				zap.String("reason", result.Reason),
				zap.Error(err),
			)
		}
	}
	return result, err
}

func (s *IngestService) ingest(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error) {
	if doc == nil {
		return rejected("", ReasonMissingField), domain.MissingField("document")
	}
	result := &domain.IngestResult{DocumentID: doc.ID}

	if err := doc.Validate(); err != nil {
		return reject(result, ReasonMissingField), err
	}

	result.ContentHash = normalize.ContentHash(doc.Title, doc.Body)

	dup, err := s.isDuplicate(ctx, doc.ID, result.ContentHash)
	if err != nil {
		return reject(result, ReasonStoreUnavailable), err
	}
	if dup {
		result.Status = domain.IngestDuplicate
		s.logger.Info("duplicate document skipped",
			zap.String("document_id", doc.ID),
			zap.String("content_hash", result.ContentHash),
		)
		return result, nil
	}

	texts, err := s.chunker.Chunk(doc.Body)
	if err != nil {
		return reject(result, ReasonEmptyAfterChunking), domain.ErrEmptyAfterChunking.Wrap(err)
	}
	if len(texts) == 0 {
		return reject(result, ReasonEmptyAfterChunking), domain.ErrEmptyAfterChunking
	}
	telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("chunked into %d", len(texts)))

	enrichment := s.enricher.Enrich(ctx, doc.FullText())
	meta := s.buildMetadata(doc, result.ContentHash, enrichment)
	records := buildChunkRecords(doc.ID, texts, meta)

	if s.embedder != nil {
		if err := s.embedRecords(ctx, records); err != nil {
			return reject(result, ReasonEmbeddingFailed), err
		}
	}

	if err := s.store.Insert(ctx, records); err != nil {
		if errors.Is(err, domain.ErrDuplicateDocument) {
			result.Status = domain.IngestDuplicate
			s.logger.Info("duplicate document rejected by store", zap.String("document_id", doc.ID))
			return result, nil
		}
		s.metrics.storeError("insert")
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return reject(result, ReasonEmbeddingFailed), err
		}
		return reject(result, ReasonStoreUnavailable), storeFailure("insert", err)
	}

	result.Status = domain.IngestAccepted
	result.TotalChunks = len(records)
	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("total_chunks", len(records)),
		zap.Float64("market_relevance", meta.MarketRelevance),
	)
	return result, nil
}

// isDuplicate checks for a stored document with the same content hash or id.
func (s *IngestService) isDuplicate(ctx context.Context, documentID, hash string) (bool, error) {
	for _, cond := range []domain.Condition{
		domain.Eq(domain.FieldContentHash, hash),
		domain.Eq(domain.FieldDocumentID, documentID),
	} {
		existing, err := s.store.Get(ctx, domain.GetRequest{Where: domain.Where(cond), Limit: 1})
		if err != nil {
			s.metrics.storeError("get")
			return false, storeFailure("dedup lookup", err)
		}
		if len(existing) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *IngestService) embedRecords(ctx context.Context, records []domain.ChunkRecord) error {
	texts := make([]string, len(records))
	for i := range records {
		texts[i] = records[i].Text
	}

	vectors, err := s.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return domain.ErrEmbeddingUnavailable.Wrap(err)
	}
	if len(vectors) != len(records) {
		return domain.ErrEmbeddingUnavailable.Wrap(errVectorCount(len(records), len(vectors)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return domain.ErrEmbeddingUnavailable.Wrap(fmt.Errorf("empty embedding for chunk %d", i+1))
		}
		records[i].Embedding = v
	}
	return nil
}

func (s *IngestService) buildMetadata(doc *domain.Document, hash string, e Enrichment) domain.DocumentMetadata {
	publishedAt, epoch := s.normalizer.Normalize(doc.PublishedAt)

	language := doc.Language
	if language == "" {
		language = domain.DefaultLanguage
	}

	return domain.DocumentMetadata{
		Title:            truncateRunes(doc.Title, domain.MaxTitleLength),
		Source:           doc.Source,
		Category:         doc.Category,
		Language:         language,
		ContentHash:      hash,
		PublishedAt:      publishedAt,
		PublishedAtEpoch: epoch,
		SentimentScore:   s.score(doc.ID, "sentiment_score", doc.SentimentScore, domain.DefaultSentimentScore),
		ImportanceScore:  s.score(doc.ID, "importance_score", doc.ImportanceScore, domain.DefaultImportanceScore),
		MarketRelevance:  finiteOr(e.MarketRelevance, domain.DefaultMarketRelevance),
		Keywords:         e.Keywords,
		CreatedAt:        normalize.Format(s.normalizer.Now()),
	}
}

func (s *IngestService) score(documentID, field string, v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		s.logger.Warn("non-finite score replaced by default",
			zap.String("document_id", documentID),
			zap.String("field", field),
			zap.Float64("default", def),
		)
		return def
	}
	return *v
}

func buildChunkRecords(documentID string, texts []string, meta domain.DocumentMetadata) []domain.ChunkRecord {
	records := make([]domain.ChunkRecord, len(texts))
	for i, text := range texts {
		m := meta
		m.Keywords = append([]string(nil), meta.Keywords...)
		records[i] = domain.ChunkRecord{
			ChunkID:          domain.ChunkID(documentID, i+1),
			DocumentID:       documentID,
			Ordinal:          i + 1,
			TotalChunks:      len(texts),
			Text:             text,
			DocumentMetadata: m,
		}
	}
	return records
}

func rejected(documentID, reason string) *domain.IngestResult {
	return &domain.IngestResult{Status: domain.IngestRejected, DocumentID: documentID, Reason: reason}
}

func reject(r *domain.IngestResult, reason string) *domain.IngestResult {
	r.Status = domain.IngestRejected
	r.Reason = reason
	return r
}

// storeFailure classifies a store error. Typed errors pass through;
// anything else becomes ErrStoreUnavailable.
func storeFailure(op string, err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrStoreUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
}

func errVectorCount(want, got int) error {
	return fmt.Errorf("expected %d embeddings, got %d", want, got)
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
