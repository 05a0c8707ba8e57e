package service

import (
	"math"
	"sort"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
)

// Ranking constants. These weights define result ordering and are not
// configurable per call.
const (
	maxSimilarityWeight = 0.7
	avgSimilarityWeight = 0.2
	coveragePerChunk    = 0.02
	coverageBonusCap    = 0.1

	excerptChunks    = 3
	excerptSeparator = "\n...\n"
)

type scoredChunk struct {
	record     *domain.ChunkRecord
	similarity float64
}

type documentGroup struct {
	documentID string
	chunks     []scoredChunk
}

// Similarity converts a cosine distance into a similarity clamped at zero.
func Similarity(distance float64) float64 {
	return math.Max(0, 1-distance)
}

// CoverageBonus rewards documents with several matching chunks, capped at 0.1.
func CoverageBonus(matched int) float64 {
	return math.Min(coverageBonusCap, float64(matched)*coveragePerChunk)
}

// CompositeScore combines a document's best and mean chunk similarity with
// its coverage bonus.
func CompositeScore(maxSim, avgSim float64, matched int) float64 {
	return maxSimilarityWeight*maxSim + avgSimilarityWeight*avgSim + CoverageBonus(matched)
}

// aggregateChunkHits collapses chunk hits into ranked documents. Groups keep
// first-seen order and the final sort is stable, so equal scores stay in
// grouping order.
func aggregateChunkHits(hits []domain.ChunkHit, topN int) []*domain.SearchResult {
	if len(hits) == 0 || topN <= 0 {
		return []*domain.SearchResult{}
	}

	groups := make(map[string]*documentGroup, len(hits))
	order := make([]string, 0, len(hits))
	for i := range hits {
		h := &hits[i]
		g, ok := groups[h.Record.DocumentID]
		if !ok {
			g = &documentGroup{documentID: h.Record.DocumentID}
			groups[h.Record.DocumentID] = g
			order = append(order, h.Record.DocumentID)
		}
		g.chunks = append(g.chunks, scoredChunk{record: &h.Record, similarity: Similarity(h.Distance)})
	}

	results := make([]*domain.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, scoreGroup(groups[id]))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompositeScore > results[j].CompositeScore
	})

	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

func scoreGroup(g *documentGroup) *domain.SearchResult {
	maxSim := 0.0
	sum := 0.0
	for _, c := range g.chunks {
		sum += c.similarity
		if c.similarity > maxSim {
			maxSim = c.similarity
		}
	}
	matched := len(g.chunks)
	avgSim := sum / float64(matched)

	ranked := make([]scoredChunk, matched)
	copy(ranked, g.chunks)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].similarity > ranked[j].similarity
	})

	n := min(excerptChunks, len(ranked))
	parts := make([]string, 0, n)
	for _, c := range ranked[:n] {
		parts = append(parts, c.record.Text)
	}

	first := g.chunks[0].record
	return &domain.SearchResult{
		DocumentID:     g.documentID,
		Excerpt:        strings.Join(parts, excerptSeparator),
		Metadata:       first.DocumentMetadata,
		CompositeScore: CompositeScore(maxSim, avgSim, matched),
		MaxSimilarity:  maxSim,
		AvgSimilarity:  avgSim,
		MatchedChunks:  matched,
		TotalChunks:    first.TotalChunks,
	}
}
