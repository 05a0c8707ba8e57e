package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockIngester is a mock implementation of Ingester
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, doc *domain.Document) (*domain.IngestResult, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func decodeArray(r io.Reader) ([]*domain.Document, error) {
	var docs []*domain.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func writeInbox(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func docID(id string) any {
	return mock.MatchedBy(func(d *domain.Document) bool { return d.ID == id })
}

func TestInboxProcessor_Process(t *testing.T) {
	dir := t.TempDir()
	writeInbox(t, dir, "b.jsonl", `[{"document_id": "n-2"}]`)
	writeInbox(t, dir, "a.json", `[{"document_id": "n-1"}, {"document_id": "n-3"}, {"document_id": "n-4"}]`)
	writeInbox(t, dir, "notes.txt", "ignored")

	ingester := new(MockIngester)
	ingester.On("Ingest", mock.Anything, docID("n-1")).Return(&domain.IngestResult{Status: domain.IngestAccepted, DocumentID: "n-1"}, nil)
	ingester.On("Ingest", mock.Anything, docID("n-2")).Return(&domain.IngestResult{Status: domain.IngestDuplicate, DocumentID: "n-2"}, nil)
	ingester.On("Ingest", mock.Anything, docID("n-3")).Return(&domain.IngestResult{Status: domain.IngestDuplicate, DocumentID: "n-3"}, nil)
	ingester.On("Ingest", mock.Anything, docID("n-4")).Return(
		&domain.IngestResult{Status: domain.IngestRejected, DocumentID: "n-4"}, domain.MissingField("body"))

	var reports []FileReport
	p := NewInboxProcessor(dir, ingester, decodeArray, nil, func(r FileReport) { reports = append(reports, r) })
	require.NoError(t, p.Process(context.Background()))

	assert.Equal(t, []FileReport{
		{File: "a.json", Accepted: 1, Duplicate: 1, Rejected: 1},
		{File: "b.jsonl", Duplicate: 1},
	}, reports)

	assert.FileExists(t, filepath.Join(dir, DoneDir, "a.json"))
	assert.FileExists(t, filepath.Join(dir, DoneDir, "b.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "a.json"))

	// nothing left to do
	require.NoError(t, p.Process(context.Background()))
	assert.Len(t, reports, 2)
	ingester.AssertExpectations(t)
}

func TestInboxProcessor_RetriesCollaboratorFailures(t *testing.T) {
	dir := t.TempDir()
	writeInbox(t, dir, "a.json", `[{"document_id": "n-1"}]`)

	ingester := new(MockIngester)
	ingester.On("Ingest", mock.Anything, docID("n-1")).Return(
		&domain.IngestResult{Status: domain.IngestRejected, DocumentID: "n-1"},
		domain.ErrStoreUnavailable.Wrap(errors.New("connection refused")),
	)

	p := NewInboxProcessor(dir, ingester, decodeArray, nil, nil)
	ctx := context.Background()

	for i := 1; i < MaxAttempts; i++ {
		require.NoError(t, p.Process(ctx))
		assert.FileExists(t, filepath.Join(dir, "a.json"), "attempt %d keeps the file", i)
	}

	require.NoError(t, p.Process(ctx))
	assert.FileExists(t, filepath.Join(dir, FailedDir, "a.json"))
	ingester.AssertNumberOfCalls(t, "Ingest", MaxAttempts)
}

func TestInboxProcessor_Unreadable(t *testing.T) {
	dir := t.TempDir()
	writeInbox(t, dir, "bad.json", `{not json`)

	ingester := new(MockIngester)
	p := NewInboxProcessor(dir, ingester, decodeArray, nil, nil)
	require.NoError(t, p.Process(context.Background()))

	assert.FileExists(t, filepath.Join(dir, FailedDir, "bad.json"))
	ingester.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestInboxProcessor_MissingDir(t *testing.T) {
	p := NewInboxProcessor(filepath.Join(t.TempDir(), "absent"), new(MockIngester), decodeArray, nil, nil)
	err := p.Process(context.Background())
	assert.ErrorContains(t, err, "failed to list inbox")
}
