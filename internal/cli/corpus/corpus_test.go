package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/config"
	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/jobs"
	"github.com/cloo-solutions/newsvec/internal/normalize"
	"github.com/cloo-solutions/newsvec/internal/service"
	"github.com/cloo-solutions/newsvec/internal/vectorstore/chromemstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var vocabulary = []string{"央行", "利率", "股市", "原油", "银行"}

// vocabEmbedder counts vocabulary terms, with a constant bias axis so no
// vector is zero.
type vocabEmbedder struct {
	fail error
}

func (e *vocabEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(vocabulary)+1)
		for j, term := range vocabulary {
			v[j] = float32(strings.Count(text, term))
		}
		v[len(vocabulary)] = 0.01
		out[i] = v
	}
	return out, nil
}

func newTestApp(t *testing.T, embedder *vocabEmbedder) *App {
	t.Helper()

	store, err := chromemstore.New(chromemstore.Config{Dimensions: len(vocabulary) + 1}, nil, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := service.NewMetrics(reg)
	require.NoError(t, err)

	norm, err := normalize.New(normalize.DefaultTimezone, nil)
	require.NoError(t, err)

	logger := zap.NewNop()
	return &App{
		Config:     &config.Config{Backend: config.BackendChromem, EmbedMode: config.EmbedModeClient},
		Logger:     logger,
		Registry:   reg,
		Metrics:    metrics,
		Normalizer: norm,
		Store:      store,
		Ingest: service.NewIngestService(
			store,
			embedder,
			service.NewChunker(service.ChunkConfig{MaxChars: 64, Overlap: 8}),
			service.NewEnricher(service.NewTermFrequencyExtractor(), 5, logger, metrics),
			norm,
			logger,
			metrics,
		),
		Retrieval: service.NewRetrievalService(store, embedder, logger, metrics),
	}
}

func useApp(t *testing.T, app *App) {
	t.Helper()
	prev := openApp
	openApp = func(context.Context) (*App, error) { return app, nil }
	t.Cleanup(func() { openApp = prev })
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "newsvec", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("output", false, "")
	root.PersistentFlags().Bool("metrics", false, "")
	root.AddCommand(Commands()...)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

const newsStream = `{"document_id": "n-1", "title": "央行宣布降息", "body": "央行宣布下调利率。银行股随即走强。", "category": "macro", "published_at": "2024-01-15T10:30:00Z", "sentiment_score": 0.4}
{"document_id": "n-2", "title": "国际原油价格回落", "body": "原油库存上升，油价连续三日下跌。", "category": "commodity", "published_at": "2024-02-20T08:00:00Z", "sentiment_score": -0.5}
{"document_id": "n-3", "title": "股市震荡", "body": "股市午后震荡，成交量萎缩。", "category": "equity", "published_at": "2024-03-05T02:00:00Z"}
`

func seedNews(t *testing.T) *App {
	t.Helper()
	app := newTestApp(t, &vocabEmbedder{})
	useApp(t, app)
	_, err := execute(t, newsStream, "ingest")
	require.NoError(t, err)
	return app
}

func TestIngestCmd(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{}))

	out, err := execute(t, newsStream, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "accepted  n-1")
	assert.Contains(t, out, "3 accepted, 0 duplicate, 0 rejected")

	out, err = execute(t, newsStream, "ingest", "--output")
	require.NoError(t, err)

	var outcomes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &outcomes))
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, "duplicate", o["status"])
	}
}

func TestIngestCmd_RejectedIsNotFailure(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{}))

	out, err := execute(t, `[{"document_id": "n-9", "title": "空正文", "body": ""}]`, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "0 accepted, 0 duplicate, 1 rejected")
}

func TestIngestCmd_EmbeddingFailure(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{fail: errors.New("quota exceeded")}))

	_, err := execute(t, newsStream, "ingest")
	require.Error(t, err)
	assert.Equal(t, "3 of 3 documents failed", err.Error())
}

func TestSearchCmd(t *testing.T) {
	seedNews(t)

	out, err := execute(t, "", "search", "央行 利率", "--output")
	require.NoError(t, err)

	var results []domain.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "n-1", results[0].DocumentID)

	out, err = execute(t, "", "search", "原油", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 results:")
	assert.Contains(t, out, "国际原油价格回落")
	assert.Contains(t, out, "ID: n-2")
}

func TestSearchCmd_Constraints(t *testing.T) {
	seedNews(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "filter", args: []string{"--filter", "category=equity"}, want: []string{"n-3"}},
		{name: "keyword", args: []string{"-k", "油价"}, want: []string{"n-2"}},
		{name: "time range", args: []string{"--since", "2024-02-01", "--until", "2024-02-28"}, want: []string{"n-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"search", "股市 原油 央行", "--output"}, tt.args...)
			out, err := execute(t, "", args...)
			require.NoError(t, err)

			var results []domain.SearchResult
			require.NoError(t, json.Unmarshal([]byte(out), &results))
			ids := make([]string, len(results))
			for i, r := range results {
				ids[i] = r.DocumentID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchCmd_Errors(t *testing.T) {
	seedNews(t)

	_, err := execute(t, "", "search", "央行", "--filter", "category")
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)

	_, err = execute(t, "", "search", "央行", "--filter", "color=red")
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)

	_, err = execute(t, "", "search", "央行", "--since", "yesterday-ish")
	assert.ErrorContains(t, err, "--since")

	_, err = execute(t, "", "search", "央行", "--since", "2024-03-01", "--until", "2024-01-01")
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestSimilarCmd(t *testing.T) {
	seedNews(t)

	out, err := execute(t, "", "similar", "n-1", "--output")
	require.NoError(t, err)

	var results []domain.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	for _, r := range results {
		assert.NotEqual(t, "n-1", r.DocumentID)
	}

	out, err = execute(t, "", "similar", "missing")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestDeleteAndStatsCmd(t *testing.T) {
	seedNews(t)

	out, err := execute(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:    chromem")

	out, err = execute(t, "", "delete", "n-2")
	require.NoError(t, err)
	assert.Equal(t, "Deleted n-2\n", out)

	out, err = execute(t, "", "delete", "n-2", "--output")
	require.NoError(t, err)
	assert.JSONEq(t, `{"document_id": "n-2", "deleted": false}`, out)

	out, err = execute(t, "", "search", "原油", "--output")
	require.NoError(t, err)
	assert.NotContains(t, out, `"n-2"`)
}

func TestMarketCmd(t *testing.T) {
	seedNews(t)

	out, err := execute(t, "", "market", "--min", "0", "--output")
	require.NoError(t, err)

	var docs []domain.DocumentSummary
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 3)
	for i := 1; i < len(docs); i++ {
		assert.GreaterOrEqual(t, docs[i-1].MarketRelevance, docs[i].MarketRelevance)
	}

	out, err = execute(t, "", "market", "--min", "1.5")
	require.NoError(t, err)
	assert.Equal(t, "No documents found.\n", out)
}

func TestSentimentCmd(t *testing.T) {
	seedNews(t)

	out, err := execute(t, "", "sentiment", "--output")
	require.NoError(t, err)

	var summary domain.SentimentSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Positive)
	assert.Equal(t, 1, summary.Negative)
	assert.Equal(t, 1, summary.Neutral)
	assert.InDelta(t, -0.0333, summary.AverageSentiment, 1e-3)

	out, err = execute(t, "", "sentiment", "--until", "2024-01-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 1  Average: 0.400")
}

func TestMetricsFlag(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{}))

	out, err := execute(t, newsStream, "ingest", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, `newsvec_ingest_total{outcome="accepted"} 3`)
	assert.Contains(t, out, "# TYPE newsvec_ingest_chunks_total counter")
}

func TestSnapshotCmd_Disabled(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{}))

	_, err := execute(t, "", "snapshot", "export", "corpus.jsonl")
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
}

func TestReadDocuments(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "array", input: `[{"document_id": "a"}, {"document_id": "b"}]`, want: []string{"a", "b"}},
		{name: "stream", input: "{\"document_id\": \"a\"}\n\n{\"document_id\": \"b\"}\n", want: []string{"a", "b"}},
		{name: "empty", input: "  \n", want: []string{}},
		{name: "bad stream", input: "{\"document_id\": \"a\"}\n{oops}", wantErr: "failed to parse document 2"},
		{name: "bad array", input: `[{"document_id": 1}]`, wantErr: "failed to parse documents"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := ReadDocuments(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(docs))
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestParseFilters(t *testing.T) {
	got, err := ParseFilters([]string{"category=macro", "source = xinhua", "category=equity", "title=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"category": "equity", "source": " xinhua", "title": "a=b"}, got)

	got, err = ParseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseFilters([]string{"=macro"})
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestWatchCmd_Once(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{}))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "morning.jsonl"), []byte(newsStream), 0o644))

	out, err := execute(t, "", "watch", dir, "--once")
	require.NoError(t, err)
	assert.Equal(t, "morning.jsonl: 3 accepted, 0 duplicate, 0 rejected, 0 failed\n", out)
	assert.FileExists(t, filepath.Join(dir, jobs.DoneDir, "morning.jsonl"))

	out, err = execute(t, "", "stats", "--output")
	require.NoError(t, err)
	assert.Contains(t, out, `"backend": "chromem"`)
}

func TestWatchCmd_RejectsNonPositiveInterval(t *testing.T) {
	useApp(t, newTestApp(t, &vocabEmbedder{}))
	dir := t.TempDir()

	for _, interval := range []string{"0s", "-5s"} {
		_, err := execute(t, "", "watch", dir, "--interval="+interval)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInterval))
		assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	}
}
