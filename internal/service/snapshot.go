package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"go.uber.org/zap"
)

const (
	snapshotContentType = "application/x-ndjson"
	maxSnapshotLine     = 16 << 20
)

// ObjectStore holds snapshot blobs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// ImportResult summarizes a snapshot import.
type ImportResult struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}

// SnapshotService copies the chunk corpus to and from an object store as
// newline-delimited JSON, one chunk record per line.
type SnapshotService struct {
	store   VectorStore
	objects ObjectStore
	logger  *zap.Logger
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(store VectorStore, objects ObjectStore, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{store: store, objects: objects, logger: logger}
}

// Export writes every stored chunk, embeddings included, to key.
func (s *SnapshotService) Export(ctx context.Context, key string) (int, error) {
	records, err := s.store.Get(ctx, domain.GetRequest{WithEmbeddings: true})
	if err != nil {
		return 0, storeFailure("export", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DocumentID != records[j].DocumentID {
			return records[i].DocumentID < records[j].DocumentID
		}
		return records[i].Ordinal < records[j].Ordinal
	})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return 0, fmt.Errorf("failed to encode chunk %s: %w", records[i].ChunkID, err)
		}
	}

	if err := s.objects.PutObject(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), snapshotContentType); err != nil {
		return 0, err
	}

	s.logger.Info("snapshot exported", zap.String("key", key), zap.Int("chunks", len(records)))
	return len(records), nil
}

// Import reads a snapshot and inserts each document's chunks in one call.
// Documents whose id or content hash is already stored are skipped.
func (s *SnapshotService) Import(ctx context.Context, key string) (*ImportResult, error) {
	body, err := s.objects.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	groups, order, err := readSnapshot(body)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, docID := range order {
		records := groups[docID]
		exists, err := s.exists(ctx, docID, records[0].ContentHash)
		if err != nil {
			return result, err
		}
		if exists {
			result.Skipped++
			continue
		}

		sort.SliceStable(records, func(i, j int) bool { return records[i].Ordinal < records[j].Ordinal })
		if err := s.store.Insert(ctx, records); err != nil {
			return result, storeFailure("import insert", err)
		}
		result.Documents++
		result.Chunks += len(records)
	}

	s.logger.Info("snapshot imported",
		zap.String("key", key),
		zap.Int("documents", result.Documents),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *SnapshotService) exists(ctx context.Context, documentID, hash string) (bool, error) {
	conds := []domain.Condition{domain.Eq(domain.FieldDocumentID, documentID)}
	if hash != "" {
		conds = append(conds, domain.Eq(domain.FieldContentHash, hash))
	}
	for _, c := range conds {
		found, err := s.store.Get(ctx, domain.GetRequest{Where: domain.Where(c), Limit: 1})
		if err != nil {
			return false, storeFailure("import lookup", err)
		}
		if len(found) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func readSnapshot(r io.Reader) (map[string][]domain.ChunkRecord, []string, error) {
	groups := make(map[string][]domain.ChunkRecord)
	var order []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec domain.ChunkRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		if rec.DocumentID == "" || rec.ChunkID == "" {
			return nil, nil, fmt.Errorf("snapshot line %d: %w", line, domain.MissingField("document_id/chunk_id"))
		}
		if _, ok := groups[rec.DocumentID]; !ok {
			order = append(order, rec.DocumentID)
		}
		groups[rec.DocumentID] = append(groups[rec.DocumentID], rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return groups, order, nil
}
