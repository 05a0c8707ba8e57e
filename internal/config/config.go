package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "NEWSVEC"

// Backends
const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
)

// Embedding modes
const (
	EmbedModeClient = "client"
	EmbedModeStore  = "store"
)

// Keyword extractors
const (
	ExtractorTF     = "tf"
	ExtractorOpenAI = "openai"
	ExtractorNone   = "none"
)

type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Backend    string `envconfig:"BACKEND" default:"chromem"`
	EmbedMode  string `envconfig:"EMBED_MODE" default:"client"`
	Collection string `envconfig:"COLLECTION" default:"news_vectors"`

	ChromemPath     string `envconfig:"CHROMEM_PATH"`
	ChromemCompress bool   `envconfig:"CHROMEM_COMPRESS" default:"false"`

	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	QdrantHost   string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort   int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`
	QdrantTLS    bool   `envconfig:"QDRANT_TLS" default:"false"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	KeywordExtractor string `envconfig:"KEYWORD_EXTRACTOR" default:"tf"`
	KeywordModel     string `envconfig:"KEYWORD_MODEL" default:"gpt-4o-mini"`
	KeywordTopK      int    `envconfig:"KEYWORD_TOP_K" default:"10"`

	OllamaURL   string `envconfig:"OLLAMA_URL"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"nomic-embed-text"`

	Timezone     string `envconfig:"TIMEZONE" default:"Asia/Shanghai"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"512"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"50"`

	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"24h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"newsvec-snapshots"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN              string  `envconfig:"SENTRY_DSN"`
	SentryEnvironment      string  `envconfig:"SENTRY_ENVIRONMENT" default:"development"`
	SentryTracesSampleRate float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE" default:"0.1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects combinations no component can run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendChromem, BackendPgvector, BackendQdrant:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch c.EmbedMode {
	case EmbedModeClient, EmbedModeStore:
	default:
		errs = append(errs, fmt.Errorf("unknown embed mode %q", c.EmbedMode))
	}
	switch c.KeywordExtractor {
	case ExtractorTF, ExtractorOpenAI, ExtractorNone:
	default:
		errs = append(errs, fmt.Errorf("unknown keyword extractor %q", c.KeywordExtractor))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be in [0, %d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.Backend == BackendPgvector && c.DatabaseURL == "" {
		errs = append(errs, errors.New("NEWSVEC_DATABASE_URL is required for the pgvector backend"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must be positive, got %d", c.EmbeddingDimensions))
	}

	return errors.Join(errs...)
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasOllama() bool {
	return c.OllamaURL != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// StoreEmbeds reports whether the vector store computes embeddings itself.
func (c *Config) StoreEmbeds() bool {
	return strings.EqualFold(c.EmbedMode, EmbedModeStore)
}
