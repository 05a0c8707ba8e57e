// Package chromemstore implements the chunk vector store on chromem-go, an
// embedded vector database with optional on-disk persistence.
package chromemstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	backendName       = "chromem"
	DefaultCollection = "news_vectors"

	dimensionSampleText = "dimension sample"
)

// ErrNoEmbedder is returned when text must be embedded but no embedding
// function was configured.
var ErrNoEmbedder = errors.New("chromem store has no embedding function")

// Config holds configuration for the chromem store.
type Config struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress enables gzip compression for persisted data.
	Compress bool

	// Collection is the collection chunks are stored in.
	Collection string

	// Dimensions is the embedding size. Zero means sample the embedding
	// function on first use.
	Dimensions int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// Store keeps chunk records in one chromem collection.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	config     Config
	logger     *zap.Logger

	// docsMu keeps the document count read by Query and Get valid until
	// chromem has answered; Insert and Delete take it exclusively.
	docsMu sync.RWMutex

	mu   sync.Mutex
	dims int
}

// New opens (or creates) the configured collection. embed may be nil when
// callers always supply vectors.
func New(cfg Config, embed chromem.EmbeddingFunc, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = path
	}

	if embed == nil {
		embed = func(context.Context, string) ([]float32, error) { return nil, ErrNoEmbedder }
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", collection.Count()),
	)

	return &Store{
		db:         db,
		collection: collection,
		embed:      embed,
		config:     cfg,
		logger:     logger,
		dims:       cfg.Dimensions,
	}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Backend names the store implementation.
func (s *Store) Backend() string {
	return backendName
}

// Collection returns the collection name.
func (s *Store) Collection() string {
	return s.config.Collection
}

// Insert adds all records or none. Records without an embedding are
// embedded first; if any embedding fails nothing is added.
func (s *Store) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	ids := make([]string, len(records))
	for i := range records {
		r := &records[i]
		vector := r.Embedding
		if len(vector) == 0 {
			v, err := s.embed(ctx, r.Text)
			if err != nil {
				return domain.ErrEmbeddingUnavailable.Wrap(err)
			}
			vector = v
		}
		s.observeDims(len(vector))

		ids[i] = r.ChunkID
		docs[i] = chromem.Document{
			ID:        r.ChunkID,
			Content:   r.Text,
			Metadata:  encodeMetadata(r),
			Embedding: vector,
		}
	}

	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		if delErr := s.collection.Delete(ctx, nil, nil, ids...); delErr != nil {
			s.logger.Error("rollback of partial insert failed", zap.Error(delErr))
		}
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("added chunks to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Query ranks chunks by similarity to the query vector. Equality terms on
// text fields and a single substring are pushed into chromem; the remaining
// terms are applied here before truncating to q.N.
func (s *Store) Query(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error) {
	if q.N <= 0 || s.collection.Count() == 0 {
		return []domain.ChunkHit{}, nil
	}

	vector := q.Vector
	if len(vector) == 0 {
		v, err := s.embed(ctx, q.Text)
		if err != nil {
			return nil, domain.ErrEmbeddingUnavailable.Wrap(err)
		}
		vector = v
	}

	where, exact := pushdown(q.Where)
	whereDoc, exactDoc := pushdownContent(q.Contains)

	s.docsMu.RLock()
	count := s.collection.Count()
	if count == 0 {
		s.docsMu.RUnlock()
		return []domain.ChunkHit{}, nil
	}
	n := count
	if exact && exactDoc && q.N < count {
		n = q.N
	}
	results, err := s.collection.QueryEmbedding(ctx, vector, n, where, whereDoc)
	s.docsMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	hits := make([]domain.ChunkHit, 0, min(q.N, len(results)))
	for _, res := range results {
		rec, err := decodeRecord(res.ID, res.Content, res.Metadata)
		if err != nil {
			return nil, err
		}
		if !q.Where.Match(&rec) || !q.Contains.Match(rec.Text) {
			continue
		}
		hits = append(hits, domain.ChunkHit{Record: rec, Distance: 1 - float64(res.Similarity)})
		if len(hits) == q.N {
			break
		}
	}
	return hits, nil
}

// Get returns chunks matching req.Where. chromem has no metadata scan, so
// every document is ranked against a fixed reference vector and filtered here.
func (s *Store) Get(ctx context.Context, req domain.GetRequest) ([]domain.ChunkRecord, error) {
	if s.collection.Count() == 0 {
		return []domain.ChunkRecord{}, nil
	}

	dims, err := s.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	ref := make([]float32, dims)
	ref[0] = 1

	where, _ := pushdown(req.Where)

	s.docsMu.RLock()
	count := s.collection.Count()
	if count == 0 {
		s.docsMu.RUnlock()
		return []domain.ChunkRecord{}, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, ref, count, where, nil)
	s.docsMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", s.config.Collection, err)
	}

	records := make([]domain.ChunkRecord, 0, len(results))
	for _, res := range results {
		rec, err := decodeRecord(res.ID, res.Content, res.Metadata)
		if err != nil {
			return nil, err
		}
		if !req.Where.Match(&rec) {
			continue
		}
		if req.WithEmbeddings {
			rec.Embedding = res.Embedding
		}
		records = append(records, rec)
		if req.Limit > 0 && len(records) == req.Limit {
			break
		}
	}
	return records, nil
}

// Delete removes the given chunk ids in one call.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

func (s *Store) observeDims(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 && n > 0 {
		s.dims = n
	}
}

func (s *Store) dimensions(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims > 0 {
		return s.dims, nil
	}
	v, err := s.embed(ctx, dimensionSampleText)
	if err != nil {
		return 0, fmt.Errorf("probing embedding dimensions: %w", err)
	}
	if len(v) == 0 {
		return 0, errors.New("embedding function returned an empty vector")
	}
	s.dims = len(v)
	return s.dims, nil
}

// pushdown extracts equality terms on text fields into a chromem where
// map. exact reports whether the map captures the whole predicate.
func pushdown(p *domain.MetadataPredicate) (map[string]string, bool) {
	if p == nil {
		return nil, true
	}
	where := make(map[string]string)
	exact := true
	for _, c := range p.Conditions {
		v, isString := c.Value.(string)
		if c.Op != domain.OpEq || c.Field.IsNumeric() || !isString || c.Field == domain.FieldChunkID {
			exact = false
			continue
		}
		if prev, ok := where[string(c.Field)]; ok && prev != v {
			exact = false
			continue
		}
		where[string(c.Field)] = v
	}
	if len(where) == 0 {
		return nil, exact
	}
	return where, exact
}

func pushdownContent(p *domain.ContentPredicate) (map[string]string, bool) {
	if p == nil || len(p.Substrings) == 0 {
		return nil, true
	}
	if len(p.Substrings) == 1 {
		return map[string]string{"$contains": p.Substrings[0]}, true
	}
	return nil, false
}
