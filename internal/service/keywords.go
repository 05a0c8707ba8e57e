package service

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "been": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "he": {},
	"her": {}, "his": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "said": {}, "she": {}, "that": {},
	"the": {}, "their": {}, "there": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"we": {}, "were": {}, "which": {}, "will": {}, "with": {}, "would": {}, "you": {},
}

// TermFrequencyExtractor ranks terms by how often they occur. Latin text is
// split into lower-cased words; Han runs are split into overlapping bigrams.
type TermFrequencyExtractor struct{}

// NewTermFrequencyExtractor creates the built-in keyword extractor.
func NewTermFrequencyExtractor() *TermFrequencyExtractor {
	return &TermFrequencyExtractor{}
}

type termStat struct {
	term  string
	count int
	first int
}

// ExtractKeywords returns up to topK terms, most frequent first, ties broken
// by first occurrence.
func (x *TermFrequencyExtractor) ExtractKeywords(_ context.Context, text string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = defaultKeywordTopK
	}

	stats := make(map[string]*termStat)
	order := 0
	add := func(term string) {
		if s, ok := stats[term]; ok {
			s.count++
			return
		}
		stats[term] = &termStat{term: term, count: 1, first: order}
		order++
	}

	for _, tok := range tokenize(text) {
		if tok.han {
			runes := []rune(tok.text)
			if len(runes) < 2 {
				continue
			}
			for i := 0; i+1 < len(runes); i++ {
				add(string(runes[i : i+2]))
			}
			continue
		}
		word := strings.ToLower(tok.text)
		if utf8.RuneCountInString(word) < 2 || isDigits(word) {
			continue
		}
		if _, stop := englishStopWords[word]; stop {
			continue
		}
		add(word)
	}

	ranked := make([]*termStat, 0, len(stats))
	for _, s := range stats {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.term
	}
	return out, nil
}

type token struct {
	text string
	han  bool
}

func tokenize(text string) []token {
	var tokens []token
	var b strings.Builder
	inHan := false

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, token{text: b.String(), han: inHan})
			b.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			if !inHan {
				flush()
				inHan = true
			}
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if inHan {
				flush()
				inHan = false
			}
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
