package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermFrequencyExtractor_ExtractKeywords(t *testing.T) {
	x := NewTermFrequencyExtractor()

	tests := []struct {
		name string
		text string
		topK int
		want []string
	}{
		{
			name: "han bigrams ranked by frequency",
			text: "央行下调利率，利率下降",
			topK: 3,
			want: []string{"利率", "央行", "行下"},
		},
		{
			name: "latin words lower-cased without stop words or numbers",
			text: "The bank and the Bank raised rates in 2024",
			topK: 5,
			want: []string{"bank", "raised", "rates"},
		},
		{
			name: "mixed scripts",
			text: "GDP增长 GDP",
			topK: 2,
			want: []string{"gdp", "增长"},
		},
		{
			name: "single han characters ignored",
			text: "涨 跌",
			topK: 5,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.ExtractKeywords(context.Background(), tt.text, tt.topK)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTermFrequencyExtractor_DefaultTopK(t *testing.T) {
	x := NewTermFrequencyExtractor()

	got, err := x.ExtractKeywords(context.Background(), "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu", 0)
	require.NoError(t, err)
	assert.Len(t, got, defaultKeywordTopK)
	assert.Equal(t, "alpha", got[0])
}
