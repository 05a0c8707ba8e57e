//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbeddings_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()

	embeddings, err := client.GenerateEmbeddings(ctx, []string{
		"央行宣布下调存款准备金率0.5个百分点",
		"The central bank held rates steady.",
	})

	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Len(t, embeddings[0], DefaultEmbeddingDimensions)
}

func TestIntegration_ExtractKeywords_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	extractor := NewKeywordExtractor(NewAPIClient(apiKey, ""), "")
	keywords, err := extractor.ExtractKeywords(context.Background(), "央行宣布下调存款准备金率0.5个百分点，释放长期资金约1万亿元。", 5)

	require.NoError(t, err)
	assert.NotEmpty(t, keywords)
	assert.LessOrEqual(t, len(keywords), 5)
}
