//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/testutil"
)

const embeddingDimensions = 8

// vocabulary gives the fake embeddings server one axis per term; the last
// axis is a constant bias so no vector is zero.
var vocabulary = []string{"央行", "利率", "股市", "原油", "银行", "通胀", "黄金"}

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	QdrantC    *testutil.QdrantContainer
	RedisC     *testutil.RedisContainer
	RustFSC    *testutil.RustFSContainer
	Embeddings *httptest.Server
	BinaryDir  string
	DataDir    string
}

// SetupE2EEnv starts every backing service the binary can talk to and an
// OpenAI-compatible embeddings server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  testutil.NewPostgresContainer(ctx, t),
		QdrantC:    testutil.NewQdrantContainer(ctx, t),
		RedisC:     testutil.NewRedisContainer(ctx, t),
		RustFSC:    testutil.NewRustFSContainer(ctx, t),
		Embeddings: httptest.NewServer(http.HandlerFunc(embeddingsHandler)),
		DataDir:    t.TempDir(),
	}
	env.BuildBinary()
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Embeddings != nil {
		e.Embeddings.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.RedisC != nil {
		e.RedisC.Terminate(e.Ctx)
	}
	if e.QdrantC != nil {
		e.QdrantC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinary builds the newsvec binary
func (e *E2ETestEnv) BuildBinary() {
	tmpDir, err := os.MkdirTemp("", "newsvec-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "newsvec"), "./cmd/newsvec")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build newsvec: %v\n%s", err, out)
	}
}

// BackendEnv returns the environment for one backend. Every backend embeds
// through the fake server and caches embeddings in Redis.
func (e *E2ETestEnv) BackendEnv(backend, collection string) []string {
	vars := []string{
		"NEWSVEC_BACKEND=" + backend,
		"NEWSVEC_COLLECTION=" + collection,
		"NEWSVEC_LOG_LEVEL=error",
		"NEWSVEC_OPENAI_API_KEY=test-key",
		"NEWSVEC_OPENAI_BASE_URL=" + e.Embeddings.URL + "/v1",
		"NEWSVEC_EMBEDDING_MODEL=text-embedding-3-small",
		fmt.Sprintf("NEWSVEC_EMBEDDING_DIMENSIONS=%d", embeddingDimensions),
		"NEWSVEC_CHUNK_SIZE=64",
		"NEWSVEC_CHUNK_OVERLAP=8",
		"NEWSVEC_REDIS_ADDR=" + e.RedisC.Addr(),
		"NEWSVEC_S3_ENDPOINT=" + e.RustFSC.Endpoint(),
		"NEWSVEC_S3_ACCESS_KEY=" + testutil.RustFSAccessKey,
		"NEWSVEC_S3_SECRET_KEY=" + testutil.RustFSSecretKey,
		"NEWSVEC_S3_BUCKET=newsvec-e2e",
	}

	switch backend {
	case "pgvector":
		vars = append(vars, "NEWSVEC_DATABASE_URL="+e.PostgresC.ConnectionString())
	case "qdrant":
		vars = append(vars,
			"NEWSVEC_QDRANT_HOST="+e.QdrantC.Host,
			fmt.Sprintf("NEWSVEC_QDRANT_PORT=%d", e.QdrantC.GRPCPort),
		)
	default:
		vars = append(vars, "NEWSVEC_CHROMEM_PATH="+filepath.Join(e.DataDir, collection))
	}
	return vars
}

// Run runs the newsvec binary and returns stdout. Logs on stderr are
// attached to the error.
func (e *E2ETestEnv) Run(env []string, stdin string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "newsvec"), args...)
	cmd.Dir = e.DataDir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RunJSON runs the binary with --output and decodes stdout into v.
func (e *E2ETestEnv) RunJSON(env []string, stdin string, v any, args ...string) {
	e.T.Helper()
	out, err := e.Run(env, stdin, append(args, "--output")...)
	if err != nil {
		e.T.Fatalf("newsvec %s: %v", strings.Join(args, " "), err)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		e.T.Fatalf("newsvec %s: invalid JSON %q: %v", strings.Join(args, " "), out, err)
	}
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

func embeddingsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/embeddings") {
		http.NotFound(w, r)
		return
	}

	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := make([]embeddingData, len(req.Input))
	for i, text := range req.Input {
		data[i] = embeddingData{Object: "embedding", Embedding: termVector(text), Index: i}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
	})
}

func termVector(text string) []float32 {
	v := make([]float32, embeddingDimensions)
	for i, term := range vocabulary {
		v[i] = float32(strings.Count(text, term))
	}
	v[embeddingDimensions-1] = 0.01
	return v
}
