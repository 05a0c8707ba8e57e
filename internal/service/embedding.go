package service

import (
	"context"

	"github.com/cloo-solutions/newsvec/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings.
// Implementations return one vector per input text, in order, or an error
// for the whole batch.
type EmbeddingClient interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// KeywordExtractor ranks the salient terms of a text.
type KeywordExtractor interface {
	ExtractKeywords(ctx context.Context, text string, topK int) ([]string, error)
}

// VectorStore persists chunk records and answers nearest-neighbour queries.
// Records or queries without a vector are embedded by the store itself.
type VectorStore interface {
	Insert(ctx context.Context, records []domain.ChunkRecord) error
	Query(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error)
	Get(ctx context.Context, req domain.GetRequest) ([]domain.ChunkRecord, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Backend() string
}

// CollectionNamer is implemented by stores that keep chunks in a named collection.
type CollectionNamer interface {
	Collection() string
}

func embedOne(ctx context.Context, client EmbeddingClient, text string) ([]float32, error) {
	vectors, err := client.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errVectorCount(1, len(vectors))
	}
	return vectors[0], nil
}
