package service

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// ChunkConfig controls how document bodies are split into chunks.
// Sizes are measured in characters, not bytes.
type ChunkConfig struct {
	MaxChars   int
	Overlap    int
	Separators []string
}

// DefaultSeparators are tried coarsest first: paragraph, line, sentence
// punctuation (CJK and Latin), then space, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", "。", "！", "？", ". ", "! ", "? ", " ", ""}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:   512,
		Overlap:    50,
		Separators: DefaultSeparators,
	}
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	cfg      ChunkConfig
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a Chunker. Zero values fall back to DefaultChunkConfig.
func NewChunker(cfg ChunkConfig) *Chunker {
	def := DefaultChunkConfig()
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = 0
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = def.Separators
	}

	return &Chunker{
		cfg: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.MaxChars),
			textsplitter.WithChunkOverlap(cfg.Overlap),
			textsplitter.WithSeparators(cfg.Separators),
		),
	}
}

// Config returns the effective configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Chunk splits text into ordered chunks. Whitespace-only text yields none;
// text that fits in one window yields exactly that text.
func (c *Chunker) Chunk(text string) ([]string, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(clean) <= c.cfg.MaxChars {
		return []string{clean}, nil
	}

	parts, err := c.splitter.SplitText(clean)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}
