package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultKeywordModel is the chat model used for keyword extraction
const DefaultKeywordModel = openai.GPT4oMini

const (
	maxKeywordInputRunes = 4000

	keywordSystemPrompt = `You extract search keywords from financial news.
Return a JSON object {"keywords": [...]} listing the most salient terms in the article's own language, most important first. Use short noun phrases, no explanations.`
)

// ErrNoKeywords is returned when the model reply contains no keyword list.
var ErrNoKeywords = errors.New("no keywords in model reply")

// ChatAPI is the subset of the OpenAI client used for completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// KeywordExtractor asks a chat model for an article's keywords.
type KeywordExtractor struct {
	api   ChatAPI
	model string
}

func NewKeywordExtractor(api ChatAPI, model string) *KeywordExtractor {
	if model == "" {
		model = DefaultKeywordModel
	}
	return &KeywordExtractor{api: api, model: model}
}

// ExtractKeywords returns up to topK distinct keywords in the model's order.
func (e *KeywordExtractor) ExtractKeywords(ctx context.Context, text string, topK int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}
	if r := []rune(text); len(r) > maxKeywordInputRunes {
		text = string(r[:maxKeywordInputRunes])
	}

	resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: keywordSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("At most %d keywords.\n\n%s", topK, text)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoKeywords
	}

	keywords, err := parseKeywords(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out, nil
}

// parseKeywords accepts {"keywords": [...]} or a bare array, optionally
// wrapped in a markdown code fence.
func parseKeywords(content string) ([]string, error) {
	content = stripFence(content)

	var obj struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj.Keywords != nil {
		return obj.Keywords, nil
	}

	var list []string
	if err := json.Unmarshal([]byte(content), &list); err == nil {
		return list, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoKeywords, truncate(content, 80))
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
