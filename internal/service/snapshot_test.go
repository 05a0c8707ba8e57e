package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errObjectNotFound = errors.New("object not found")

// memoryObjects is an in-memory ObjectStore.
type memoryObjects struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memoryObjects) PutObject(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memoryObjects) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestSnapshotService_ExportImport(t *testing.T) {
	ctx := context.Background()
	_, source, _ := newRetrievalFixture(t)
	objects := newMemoryObjects()

	exported, err := NewSnapshotService(source, objects, nil).Export(ctx, "snapshots/corpus.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 3, exported)
	assert.Equal(t, snapshotContentType, objects.contentTypes["snapshots/corpus.jsonl"])

	lines := strings.Split(strings.TrimSpace(string(objects.objects["snapshots/corpus.jsonl"])), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"document_id":"equity-1"`)
	assert.Contains(t, lines[0], `"embedding":[`)

	target := newMemoryStore(t, nil)
	importer := NewSnapshotService(target, objects, nil)

	result, err := importer.Import(ctx, "snapshots/corpus.jsonl")
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Documents: 3, Chunks: 3}, result)

	recs, err := target.Get(ctx, domain.GetRequest{
		Where:          domain.Where(domain.Eq(domain.FieldDocumentID, "macro-1")),
		WithEmbeddings: true,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "央行降息", recs[0].Title)
	assert.Equal(t, 0.3, recs[0].SentimentScore)
	assert.Len(t, recs[0].Embedding, len(testVocabulary)+1)

	// imported vectors answer queries without re-embedding
	embedder := newTermEmbedder(testVocabulary...)
	results, err := NewRetrievalService(target, embedder, nil, nil).Search(ctx, SearchRequest{Query: "股市", TopN: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"equity-1"}, documentIDs(results))

	again, err := importer.Import(ctx, "snapshots/corpus.jsonl")
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Skipped: 3}, again)

	n, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSnapshotService_Import_Errors(t *testing.T) {
	ctx := context.Background()
	objects := newMemoryObjects()
	objects.objects["bad.jsonl"] = []byte("{\"chunk_id\":\"a_chunk_1\",\"document_id\":\"a\"}\nnot json\n")
	objects.objects["incomplete.jsonl"] = []byte("{\"text\":\"orphan\"}\n")

	svc := NewSnapshotService(newMemoryStore(t, nil), objects, nil)

	_, err := svc.Import(ctx, "missing.jsonl")
	assert.ErrorIs(t, err, errObjectNotFound)

	_, err = svc.Import(ctx, "bad.jsonl")
	assert.ErrorContains(t, err, "snapshot line 2")

	_, err = svc.Import(ctx, "incomplete.jsonl")
	assert.True(t, errors.Is(err, domain.ErrMissingField))
}

func TestSnapshotService_Export_Empty(t *testing.T) {
	objects := newMemoryObjects()
	n, err := NewSnapshotService(newMemoryStore(t, nil), objects, nil).Export(context.Background(), "empty.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, objects.objects["empty.jsonl"])
}
