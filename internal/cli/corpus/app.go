// Package corpus implements the newsvec commands and wires configuration to
// the stores, embedders and services behind them.
package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/newsvec/internal/config"
	"github.com/cloo-solutions/newsvec/internal/database"
	"github.com/cloo-solutions/newsvec/internal/embedcache"
	"github.com/cloo-solutions/newsvec/internal/jobs"
	"github.com/cloo-solutions/newsvec/internal/logging"
	"github.com/cloo-solutions/newsvec/internal/normalize"
	"github.com/cloo-solutions/newsvec/internal/openai"
	"github.com/cloo-solutions/newsvec/internal/repository"
	"github.com/cloo-solutions/newsvec/internal/service"
	"github.com/cloo-solutions/newsvec/internal/storage"
	"github.com/cloo-solutions/newsvec/internal/telemetry"
	"github.com/cloo-solutions/newsvec/internal/vectorstore/chromemstore"
	"github.com/cloo-solutions/newsvec/internal/vectorstore/qdrantstore"
	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	_ service.VectorStore      = (*chromemstore.Store)(nil)
	_ service.VectorStore      = (*qdrantstore.Store)(nil)
	_ service.VectorStore      = (*repository.ChunkRepository)(nil)
	_ service.CollectionNamer  = (*chromemstore.Store)(nil)
	_ service.CollectionNamer  = (*qdrantstore.Store)(nil)
	_ service.CollectionNamer  = (*repository.ChunkRepository)(nil)
	_ service.EmbeddingClient  = (*openai.Client)(nil)
	_ service.EmbeddingClient  = (*embedcache.Cache)(nil)
	_ service.KeywordExtractor = (*openai.KeywordExtractor)(nil)
	_ service.KeywordExtractor = (*service.TermFrequencyExtractor)(nil)
	_ service.ObjectStore      = (*storage.S3Client)(nil)
	_ jobs.Ingester            = (*service.IngestService)(nil)
)

// Version is reported to Sentry as the release.
var Version = "dev"

// ErrSnapshotsDisabled is returned by snapshot commands when no object store is configured.
var ErrSnapshotsDisabled = errors.New("snapshots require NEWSVEC_S3_ENDPOINT, NEWSVEC_S3_ACCESS_KEY and NEWSVEC_S3_SECRET_KEY")

// App holds the components one command invocation works with.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *service.Metrics
	Normalizer *normalize.Normalizer
	Store      service.VectorStore
	Ingest     *service.IngestService
	Retrieval  *service.RetrievalService

	closers []func()
}

// Open loads configuration and builds every component the configured
// backend needs.
func Open(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return OpenWithConfig(ctx, cfg)
}

// OpenWithConfig builds an App from an explicit configuration.
func OpenWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	app.onClose(func() { _ = logger.Sync() })

	flush, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		TracesSampleRate: cfg.SentryTracesSampleRate,
		Release:          "newsvec@" + Version,
		Backend:          cfg.Backend,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.onClose(flush)

	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	metrics, err := service.NewMetrics(a.Registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	a.Metrics = metrics

	a.Normalizer, err = normalize.New(cfg.Timezone, a.Logger)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	embedder, err := a.buildEmbedder(ctx)
	if err != nil {
		return err
	}

	a.Store, err = a.buildStore(ctx, embedder)
	if err != nil {
		return err
	}

	extractor, err := a.buildExtractor()
	if err != nil {
		return err
	}

	// in store mode the services send text and the store embeds it
	serviceEmbedder := embedder
	if cfg.StoreEmbeds() {
		serviceEmbedder = nil
	}

	chunker := service.NewChunker(service.ChunkConfig{MaxChars: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	enricher := service.NewEnricher(extractor, cfg.KeywordTopK, a.Logger, metrics)

	a.Ingest = service.NewIngestService(a.Store, serviceEmbedder, chunker, enricher, a.Normalizer, a.Logger, metrics)
	a.Retrieval = service.NewRetrievalService(a.Store, serviceEmbedder, a.Logger, metrics)

	a.Logger.Debug("app ready",
		zap.String("backend", a.Store.Backend()),
		zap.String("embed_mode", cfg.EmbedMode),
		zap.String("keyword_extractor", cfg.KeywordExtractor),
	)
	return nil
}

// buildEmbedder returns the OpenAI embedding client, behind the Redis cache
// when one is configured. Without an API key it returns nil.
func (a *App) buildEmbedder(ctx context.Context) (service.EmbeddingClient, error) {
	cfg := a.Config
	if !cfg.HasOpenAI() {
		return nil, nil
	}

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	if !cfg.HasRedis() {
		return client, nil
	}

	rdb, err := embedcache.NewClient(ctx, embedcache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		// the cache is an optimisation; run uncached
		a.Logger.Warn("embedding cache unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		return client, nil
	}
	a.onClose(func() { _ = rdb.Close() })

	return embedcache.New(rdb, client, client.Model(), cfg.EmbeddingCacheTTL, a.Logger), nil
}

func (a *App) buildStore(ctx context.Context, embedder service.EmbeddingClient) (service.VectorStore, error) {
	cfg := a.Config

	switch cfg.Backend {
	case config.BackendPgvector:
		if _, err := database.RunMigrations(cfg.DatabaseURL, a.Logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DatabaseMaxConns})
		if err != nil {
			return nil, err
		}
		a.onClose(pool.Close)
		return repository.NewChunkRepository(pool, embedder, a.Logger), nil

	case config.BackendQdrant:
		store, err := qdrantstore.New(ctx, qdrantstore.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
			Collection: cfg.Collection,
			VectorSize: uint64(cfg.EmbeddingDimensions),
		}, embedder, a.Logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = store.Close() })
		return store, nil

	default:
		embed, dims := a.chromemEmbedding(embedder)
		return chromemstore.New(chromemstore.Config{
			Path:       cfg.ChromemPath,
			Compress:   cfg.ChromemCompress,
			Collection: cfg.Collection,
			Dimensions: dims,
		}, embed, a.Logger)
	}
}

// chromemEmbedding picks the embedding function chromem uses for text that
// arrives without a vector. In store mode chromem calls Ollama or the public
// OpenAI API directly; otherwise it reuses the core's embedder.
func (a *App) chromemEmbedding(embedder service.EmbeddingClient) (chromem.EmbeddingFunc, int) {
	cfg := a.Config

	if cfg.StoreEmbeds() {
		switch {
		case cfg.HasOllama():
			return chromem.NewEmbeddingFuncOllama(cfg.OllamaModel, cfg.OllamaURL), 0
		case cfg.HasOpenAI() && cfg.OpenAIBaseURL == "":
			return chromem.NewEmbeddingFuncOpenAI(cfg.OpenAIAPIKey, chromem.EmbeddingModelOpenAI(cfg.EmbeddingModel)), 0
		}
	}

	if embedder == nil {
		return nil, 0
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := embedder.GenerateEmbeddings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
		}
		return vectors[0], nil
	}, cfg.EmbeddingDimensions
}

func (a *App) buildExtractor() (service.KeywordExtractor, error) {
	cfg := a.Config

	switch cfg.KeywordExtractor {
	case config.ExtractorNone:
		return nil, nil
	case config.ExtractorOpenAI:
		if !cfg.HasOpenAI() {
			return nil, errors.New("the openai keyword extractor requires NEWSVEC_OPENAI_API_KEY")
		}
		return openai.NewKeywordExtractor(openai.NewAPIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), cfg.KeywordModel), nil
	default:
		return service.NewTermFrequencyExtractor(), nil
	}
}

// Snapshots builds the snapshot service over the configured S3 bucket.
func (a *App) Snapshots(ctx context.Context) (*service.SnapshotService, error) {
	client, err := a.ObjectStore(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewSnapshotService(a.Store, client, a.Logger), nil
}

// ObjectStore connects to the snapshot bucket, creating it when missing.
func (a *App) ObjectStore(ctx context.Context) (*storage.S3Client, error) {
	cfg := a.Config
	if !cfg.HasS3() {
		return nil, ErrSnapshotsDisabled
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	a.Logger.Debug("snapshot bucket ready", zap.String("bucket", client.Bucket()))
	return client, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}
