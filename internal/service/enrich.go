package service

import (
	"context"
	"math"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/telemetry"
	"go.uber.org/zap"
)

const (
	defaultKeywordTopK = 10

	vocabularyMatchWeight = 0.1
	keywordMatchWeight    = 0.2
)

// MarketVocabulary is the fixed domain-term list used to score market relevance.
var MarketVocabulary = []string{
	"股票", "股市", "股价", "涨跌", "交易", "投资", "基金", "债券", "期货",
	"外汇", "汇率", "央行", "利率", "通胀", "GDP", "CPI", "经济", "金融",
	"银行", "证券", "保险", "房地产", "商品",
	"stock", "market", "trading", "investment", "fund", "bond", "forex",
	"currency", "rate", "economy", "finance", "bank",
}

// Enrichment is the per-document metadata derived from the full text.
type Enrichment struct {
	Keywords        []string
	MarketRelevance float64
	// Degraded wraps domain.ErrEnrichmentUnavailable when the extractor
	// failed and the defaults were applied.
	Degraded error
}

// Enricher derives keywords and market relevance for a document.
type Enricher struct {
	extractor  KeywordExtractor
	topK       int
	vocabulary []string
	vocabSet   map[string]struct{}
	logger     *zap.Logger
	metrics    *Metrics
}

// NewEnricher creates an Enricher. A nil extractor disables keyword
// extraction and every document scores 0.0.
func NewEnricher(extractor KeywordExtractor, topK int, logger *zap.Logger, metrics *Metrics) *Enricher {
	if topK <= 0 {
		topK = defaultKeywordTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	vocab := make([]string, len(MarketVocabulary))
	set := make(map[string]struct{}, len(MarketVocabulary))
	for i, term := range MarketVocabulary {
		vocab[i] = strings.ToLower(term)
		set[vocab[i]] = struct{}{}
	}

	return &Enricher{
		extractor:  extractor,
		topK:       topK,
		vocabulary: vocab,
		vocabSet:   set,
		logger:     logger,
		metrics:    metrics,
	}
}

// Enrich extracts keywords from text and scores its market relevance.
// Extractor failures degrade to empty keywords and 0.0 relevance.
func (e *Enricher) Enrich(ctx context.Context, text string) Enrichment {
	if e.extractor == nil {
		e.degraded(ctx, nil)
		return Enrichment{Keywords: []string{}}
	}

	raw, err := e.extractor.ExtractKeywords(ctx, text, e.topK)
	if err != nil {
		err = domain.ErrEnrichmentUnavailable.Wrap(err)
		e.degraded(ctx, err)
		return Enrichment{Keywords: []string{}, Degraded: err}
	}

	keywords := orderedSet(raw)
	return Enrichment{
		Keywords:        keywords,
		MarketRelevance: e.MarketRelevance(text, keywords),
	}
}

// MarketRelevance scores text against the market vocabulary:
// 0.1 per vocabulary term found in the lower-cased text plus 0.2 per
// keyword in the vocabulary, capped at 1.0.
func (e *Enricher) MarketRelevance(text string, keywords []string) float64 {
	lower := strings.ToLower(text)

	score := 0.0
	for _, term := range e.vocabulary {
		if strings.Contains(lower, term) {
			score += vocabularyMatchWeight
		}
	}
	for _, kw := range keywords {
		if _, ok := e.vocabSet[strings.ToLower(kw)]; ok {
			score += keywordMatchWeight
		}
	}

	return math.Min(1.0, score)
}

func (e *Enricher) degraded(ctx context.Context, err error) {
	if err == nil {
		e.logger.Debug("keyword extractor not configured")
		return
	}
	e.metrics.enrichmentDegraded()
	e.logger.Warn("keyword extraction unavailable",
		zap.String("error_code", domain.ErrorCode(err)),
		zap.Error(err),
	)
	telemetry.AddBreadcrumb(ctx, "enrich", "keyword extraction degraded")
}

// orderedSet trims terms, drops empties and keeps the first occurrence of each.
func orderedSet(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
