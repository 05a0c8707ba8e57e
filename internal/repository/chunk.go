package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const (
	backendName = "pgvector"
	chunkTable  = "news_chunks"

	uniqueViolation = "23505"
)

// ErrNoEmbedder is returned when text must be embedded but no embedder was configured.
var ErrNoEmbedder = errors.New("pgvector store has no embedder")

// Embedder computes vectors for records or queries that arrive without one.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

var chunkColumns = []string{
	"chunk_id", "document_id", "ordinal", "total_chunks", "text",
	"title", "source", "category", "language", "content_hash",
	"published_at", "published_at_epoch", "sentiment_score", "importance_score",
	"market_relevance", "keywords", "created_at",
}

var selectColumns = strings.Join(chunkColumns, ", ")

// ChunkRepository stores chunk records in the news_chunks table and ranks
// them by pgvector cosine distance.
type ChunkRepository struct {
	pool     *pgxpool.Pool
	db       dbtx
	embedder Embedder
	logger   *zap.Logger
}

func NewChunkRepository(pool *pgxpool.Pool, embedder Embedder, logger *zap.Logger) *ChunkRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChunkRepository{pool: pool, db: pool, embedder: embedder, logger: logger}
}

// Backend names the store implementation.
func (r *ChunkRepository) Backend() string {
	return backendName
}

// Collection returns the table name.
func (r *ChunkRepository) Collection() string {
	return chunkTable
}

// Insert sends all records as one batch inside a transaction. A content
// hash that is already stored surfaces as domain.ErrDuplicateDocument.
func (r *ChunkRepository) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := r.fillEmbeddings(ctx, records); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	placeholders := make([]string, len(chunkColumns)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s, embedding) VALUES (%s)`,
		chunkTable, selectColumns, strings.Join(placeholders, ", "))

	batch := &pgx.Batch{}
	for i := range records {
		c := &records[i]
		keywords := c.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		batch.Queue(insertSQL,
			c.ChunkID, c.DocumentID, c.Ordinal, c.TotalChunks, c.Text,
			c.Title, c.Source, c.Category, c.Language, c.ContentHash,
			c.PublishedAt, c.PublishedAtEpoch, c.SentimentScore, c.ImportanceScore,
			c.MarketRelevance, keywords, c.CreatedAt,
			pgvector.NewVector(c.Embedding),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return insertError(records[i].ChunkID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertError(chunkID string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateDocument.Wrap(err)
	}
	return fmt.Errorf("insert chunk %s: %w", chunkID, err)
}

func (r *ChunkRepository) fillEmbeddings(ctx context.Context, records []domain.ChunkRecord) error {
	var missing []int
	for i := range records {
		if len(records[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if r.embedder == nil {
		return domain.ErrEmbeddingUnavailable.Wrap(ErrNoEmbedder)
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = records[i].Text
	}
	vectors, err := r.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return domain.ErrEmbeddingUnavailable.Wrap(err)
	}
	if len(vectors) != len(missing) {
		return domain.ErrEmbeddingUnavailable.Wrap(fmt.Errorf("expected %d embeddings, got %d", len(missing), len(vectors)))
	}
	for j, i := range missing {
		records[i].Embedding = vectors[j]
	}
	return nil
}

// Query returns the q.N nearest chunks that satisfy the predicates.
func (r *ChunkRepository) Query(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error) {
	if q.N <= 0 {
		return []domain.ChunkHit{}, nil
	}

	vector := q.Vector
	if len(vector) == 0 {
		if r.embedder == nil {
			return nil, domain.ErrEmbeddingUnavailable.Wrap(ErrNoEmbedder)
		}
		vectors, err := r.embedder.GenerateEmbeddings(ctx, []string{q.Text})
		if err != nil || len(vectors) != 1 {
			if err == nil {
				err = fmt.Errorf("expected 1 embedding, got %d", len(vectors))
			}
			return nil, domain.ErrEmbeddingUnavailable.Wrap(err)
		}
		vector = vectors[0]
	}

	var b whereBuilder
	vecParam := b.bind(pgvector.NewVector(vector))
	if err := b.metadata(q.Where); err != nil {
		return nil, err
	}
	b.content(q.Contains)
	limitParam := b.bind(q.N)

	query := fmt.Sprintf(`SELECT %s, embedding <=> %s AS distance FROM %s%s ORDER BY distance LIMIT %s`,
		selectColumns, vecParam, chunkTable, b.sql(), limitParam)

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.ChunkHit, 0, q.N)
	for rows.Next() {
		var h domain.ChunkHit
		dest := append(scanTargets(&h.Record), &h.Distance)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return hits, nil
}

// Get returns chunks matching req.Where ordered by document and ordinal.
func (r *ChunkRepository) Get(ctx context.Context, req domain.GetRequest) ([]domain.ChunkRecord, error) {
	var b whereBuilder
	if err := b.metadata(req.Where); err != nil {
		return nil, err
	}

	columns := selectColumns
	if req.WithEmbeddings {
		columns += ", embedding"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY document_id, ordinal`, columns, chunkTable, b.sql())
	if req.Limit > 0 {
		query += " LIMIT " + b.bind(req.Limit)
	}

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ChunkRecord, 0)
	for rows.Next() {
		var rec domain.ChunkRecord
		dest := scanTargets(&rec)
		var vec pgvector.Vector
		if req.WithEmbeddings {
			dest = append(dest, &vec)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if req.WithEmbeddings {
			rec.Embedding = vec.Slice()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return records, nil
}

// Delete removes the given chunk ids in one statement.
func (r *ChunkRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM news_chunks WHERE chunk_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	r.logger.Debug("deleted chunks", zap.Int64("rows", tag.RowsAffected()))
	return nil
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM news_chunks`).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func scanTargets(c *domain.ChunkRecord) []any {
	return []any{
		&c.ChunkID, &c.DocumentID, &c.Ordinal, &c.TotalChunks, &c.Text,
		&c.Title, &c.Source, &c.Category, &c.Language, &c.ContentHash,
		&c.PublishedAt, &c.PublishedAtEpoch, &c.SentimentScore, &c.ImportanceScore,
		&c.MarketRelevance, &c.Keywords, &c.CreatedAt,
	}
}
