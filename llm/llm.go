// Package llm implements topic extraction and community relevance scoring
// on top of an OpenAI-compatible chat API. Callers degrade on error; this
// package only reports failures, it never substitutes defaults itself.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client the package uses.
// Satisfied by *openai.Client; faked in tests.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures the client.
type Config struct {
	// Model is the chat model name. Default: gpt-4o-mini.
	Model string
	// MaxTopics caps extracted topics. Default: 5.
	MaxTopics int
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.MaxTopics <= 0 {
		c.MaxTopics = 5
	}
}

// Client is an injected-dependency LLM client: it owns no global state and
// no environment reads.
type Client struct {
	api    ChatCompleter
	config Config
	logger *slog.Logger
}

// New creates a Client over an existing API client.
func New(api ChatCompleter, cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, config: cfg, logger: logger}
}

// NewWithKey creates a Client with its own OpenAI connection.
func NewWithKey(apiKey string, cfg Config, logger *slog.Logger) *Client {
	return New(openai.NewClient(apiKey), cfg, logger)
}

// ExtractTopics derives 3-5 search topics from free query text.
func (c *Client) ExtractTopics(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(`Extract 3-5 key topics from this search query for Reddit communities.
Query: %s

Return ONLY topics separated by commas, no explanations.`, text)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var topics []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		topics = append(topics, t)
		if len(topics) >= c.config.MaxTopics {
			break
		}
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("llm: no topics in response %q", raw)
	}
	c.logger.Debug("llm: topics extracted", "count", len(topics))
	return topics, nil
}

// Score rates a community's relevance to the topics on a 0-1 scale. The
// raw model output is returned; the caller clamps.
func (c *Client) Score(ctx context.Context, name, description string, topics []string) (float64, error) {
	prompt := fmt.Sprintf(`Rate the relevance of this Reddit community to these topics on a scale of 0-1.
Only return the number, nothing else.

Community: %s
Description: %s
Topics: %s`, name, description, strings.Join(topics, ", "))

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("llm: unparseable score %q: %w", raw, err)
	}
	return score, nil
}

// complete runs one chat turn and returns the trimmed, de-fenced content.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return cleanResponse(resp.Choices[0].Message.Content), nil
}

// cleanResponse strips whitespace and Markdown code fences that chat models
// wrap short answers in.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop a language tag on the fence line.
		if i := strings.Index(s, "\n"); i >= 0 && !strings.Contains(s[:i], " ") {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
