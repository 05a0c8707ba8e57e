// Package openai adapts the OpenAI API to the embedding client and keyword
// extractor ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from the default model
	DefaultEmbeddingDimensions = 1536
	// DefaultBatchSize caps the number of inputs sent per embeddings request
	DefaultBatchSize = 96
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client generates dimension-checked embeddings in batches.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	batchSize  int
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API and returns vectors in input order
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	}
	// ada-002 rejects the dimensions parameter
	if a.model != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	BatchSize           int
}

// NewAPIClient builds the underlying go-openai client, honouring a custom base URL.
func NewAPIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Client{
		api:        NewOpenAIAdapter(NewAPIClient(cfg.APIKey, cfg.BaseURL), model, dimensions),
		model:      string(model),
		dimensions: dimensions,
		batchSize:  cfg.BatchSize,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the expected embedding size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings embeds texts in order. Either every text gets a vector
// or an error is returned.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	batchSize := c.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := c.api.CreateEmbeddings(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("failed to create embeddings: expected %d vectors, got %d", end-start, len(batch))
		}
		for _, v := range batch {
			if len(v) != c.expectedDimensions() {
				return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(v), c.expectedDimensions())
			}
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (c *Client) expectedDimensions() int {
	if c.dimensions <= 0 {
		return DefaultEmbeddingDimensions
	}
	return c.dimensions
}
