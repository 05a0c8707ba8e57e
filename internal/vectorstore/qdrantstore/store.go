// Package qdrantstore implements the chunk vector store on a Qdrant server
// reached over gRPC.
package qdrantstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	backendName       = "qdrant"
	DefaultCollection = "news_vectors"
	DefaultPort       = 6334

	scrollPageSize = 256
	// overfetch multiplies N for queries whose filter leaves terms to the
	// in-memory check.
	overfetch = 4
	maxMessageSize = 50 * 1024 * 1024
	healthTimeout  = 5 * time.Second
)

// ErrNoEmbedder is returned when text must be embedded but no embedder was configured.
var ErrNoEmbedder = errors.New("qdrant store has no embedder")

// pointNamespace seeds the UUIDv5 point ids derived from chunk ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("newsvec/chunks"))

// Embedder computes vectors for records or queries that arrive without one.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds Qdrant connection and collection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize uint64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d", c.Port)
	}
	if c.VectorSize == 0 {
		return errors.New("qdrant vector size required")
	}
	return nil
}

// Store keeps chunk records as points in one Qdrant collection.
type Store struct {
	client   *qdrant.Client
	query    func(context.Context, *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	embedder Embedder
	config   Config
	logger   *zap.Logger
}

// New connects to Qdrant and creates the collection when missing.
func New(ctx context.Context, cfg Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &Store{client: client, query: client.Query, embedder: embedder, config: cfg, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC connection is not using TLS", zap.String("host", cfg.Host))
	}
	logger.Info("qdrant store initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	// keyword indexes for the lookups ingest and delete rely on; chunk text
	// stays unindexed so text matches remain plain substring matches
	for _, field := range []domain.Field{domain.FieldDocumentID, domain.FieldContentHash} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.config.Collection,
			FieldName:      string(field),
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("creating %s index: %w", field, err)
		}
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	return nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Backend names the store implementation.
func (s *Store) Backend() string {
	return backendName
}

// Collection returns the collection name.
func (s *Store) Collection() string {
	return s.config.Collection
}

// PointID derives the deterministic point id for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Insert upserts all records in a single request.
func (s *Store) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.fillEmbeddings(ctx, records); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i := range records {
		r := &records[i]
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ChunkID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: encodePayload(r),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

func (s *Store) fillEmbeddings(ctx context.Context, records []domain.ChunkRecord) error {
	var missing []int
	for i := range records {
		if len(records[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if s.embedder == nil {
		return domain.ErrEmbeddingUnavailable.Wrap(ErrNoEmbedder)
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = records[i].Text
	}
	vectors, err := s.embedder.GenerateEmbeddings(ctx, texts)
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

// Query returns the nearest chunks that satisfy the predicates.
func (s *Store) Query(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error) {
	if q.N <= 0 {
		return []domain.ChunkHit{}, nil
	}

	vector := q.Vector
	if len(vector) == 0 {
		if s.embedder == nil {
			return nil, domain.ErrEmbeddingUnavailable.Wrap(ErrNoEmbedder)
		}
		vectors, err := s.embedder.GenerateEmbeddings(ctx, []string{q.Text})
		if err != nil || len(vectors) != 1 {
			if err == nil {
				err = fmt.Errorf("expected 1 embedding, got %d", len(vectors))
			}
			return nil, domain.ErrEmbeddingUnavailable.Wrap(err)
		}
		vector = vectors[0]
	}

	filter, exact := buildFilter(q.Where, q.Contains)
	page := uint64(q.N)
	if !exact {
		page = max(uint64(q.N)*overfetch, scrollPageSize)
	}

	hits := make([]domain.ChunkHit, 0, q.N)
	var offset uint64
	for {
		points, err := s.query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         filter,
			Limit:          qdrant.PtrOf(page),
			Offset:         qdrant.PtrOf(offset),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
		}

		for _, p := range points {
			rec := decodePayload(p.GetPayload())
			if !q.Where.Match(&rec) || !q.Contains.Match(rec.Text) {
				continue
			}
			hits = append(hits, domain.ChunkHit{Record: rec, Distance: 1 - float64(p.GetScore())})
			if len(hits) == q.N {
				return hits, nil
			}
		}

		if exact || uint64(len(points)) < page {
			return hits, nil
		}
		offset += page
		s.logger.Debug("query page short after in-memory filter",
			zap.Int("hits", len(hits)),
			zap.Int("n", q.N),
			zap.Uint64("offset", offset),
		)
	}
}

// Get scrolls through points matching req.Where.
func (s *Store) Get(ctx context.Context, req domain.GetRequest) ([]domain.ChunkRecord, error) {
	filter, _ := buildFilter(req.Where, nil)
	records := make([]domain.ChunkRecord, 0)

	var offset *qdrant.PointId
	for {
		page := uint32(scrollPageSize)
		if req.Limit > 0 && req.Limit-len(records) < scrollPageSize {
			page = uint32(req.Limit - len(records))
		}

		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qdrant.PtrOf(page),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(req.WithEmbeddings),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling collection %s: %w", s.config.Collection, err)
		}

		for _, p := range resp.GetResult() {
			rec := decodePayload(p.GetPayload())
			if !req.Where.Match(&rec) {
				continue
			}
			if req.WithEmbeddings {
				rec.Embedding = p.GetVectors().GetVector().GetData()
			}
			records = append(records, rec)
			if req.Limit > 0 && len(records) == req.Limit {
				return records, nil
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			return records, nil
		}
	}
}

// Delete removes the given chunk ids in a single request.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(PointID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// Count returns the exact number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}
