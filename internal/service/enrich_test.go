package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEnricher_MarketRelevance(t *testing.T) {
	e := NewEnricher(nil, 0, nil, nil)

	tests := []struct {
		name     string
		text     string
		keywords []string
		want     float64
	}{
		{
			name:     "vocabulary and keyword hits",
			text:     "央行宣布降息，股市大涨",
			keywords: []string{"央行", "股市"},
			want:     0.6,
		},
		{
			name:     "case insensitive",
			text:     "gdp and CPI beat forecasts",
			keywords: []string{"GDP"},
			want:     0.4,
		},
		{
			name:     "keyword outside vocabulary",
			text:     "weather report",
			keywords: []string{"rain"},
			want:     0,
		},
		{
			name:     "capped",
			text:     "stock market trading investment fund bond forex currency economy finance bank",
			keywords: []string{"stock", "bank"},
			want:     1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.MarketRelevance(tt.text, tt.keywords), 1e-9)
		})
	}
}

func TestEnricher_Enrich(t *testing.T) {
	ctx := context.Background()
	text := "央行宣布降息，股市大涨"

	extractor := new(MockKeywordExtractor)
	extractor.On("ExtractKeywords", ctx, text, 5).Return([]string{"央行", " 股市 ", "央行", ""}, nil).Once()

	e := NewEnricher(extractor, 5, nil, nil)
	got := e.Enrich(ctx, text)

	assert.Equal(t, []string{"央行", "股市"}, got.Keywords)
	assert.InDelta(t, 0.6, got.MarketRelevance, 1e-9)
	extractor.AssertExpectations(t)
}

func TestEnricher_NoExtractor(t *testing.T) {
	e := NewEnricher(nil, 0, nil, nil)

	got := e.Enrich(context.Background(), "央行宣布降息，股市大涨")
	assert.Equal(t, []string{}, got.Keywords)
	assert.Equal(t, 0.0, got.MarketRelevance)
}

func TestEnricher_ExtractorFailureDegrades(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	extractor := new(MockKeywordExtractor)
	extractor.On("ExtractKeywords", ctx, mock.Anything, defaultKeywordTopK).Return(nil, errors.New("model overloaded"))

	e := NewEnricher(extractor, 0, zap.New(core), metrics)
	got := e.Enrich(ctx, "股市大涨")

	assert.Equal(t, []string{}, got.Keywords)
	assert.Equal(t, 0.0, got.MarketRelevance)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.enrichmentDegrades))
	require.True(t, errors.Is(got.Degraded, domain.ErrEnrichmentUnavailable))
	assert.Contains(t, got.Degraded.Error(), "model overloaded")

	entries := logs.FilterMessage("keyword extraction unavailable").All()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ErrCodeEnrichmentUnavailable, entries[0].ContextMap()["error_code"])
}
