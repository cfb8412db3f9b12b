package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
)

type fakeAPI struct {
	content string
	err     error
	gotReq  openai.ChatCompletionRequest
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func TestExtractTopics(t *testing.T) {
	// WHAT: Comma-separated model output parses into trimmed topics.
	// WHY: Topic lists feed the search step verbatim.
	api := &fakeAPI{content: " programming, coding , golang"}
	c := New(api, Config{}, nil)

	topics, err := c.ExtractTopics(context.Background(), "best programming communities")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []string{"programming", "coding", "golang"}
	if len(topics) != len(want) {
		t.Fatalf("topics: got %v", topics)
	}
	for i, w := range want {
		if topics[i] != w {
			t.Errorf("topic %d: got %q, want %q", i, topics[i], w)
		}
	}
}

func TestExtractTopicsCapped(t *testing.T) {
	// WHAT: The topic count is capped at MaxTopics.
	// WHY: A rambling model must not explode the search fan-out.
	api := &fakeAPI{content: "a, b, c, d, e, f, g, h"}
	c := New(api, Config{MaxTopics: 5}, nil)

	topics, err := c.ExtractTopics(context.Background(), "x")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(topics) != 5 {
		t.Errorf("topics: got %d, want 5", len(topics))
	}
}

func TestExtractTopicsEmptyResponseIsError(t *testing.T) {
	// WHAT: A response with no usable topics is a provider error.
	// WHY: The caller's degrade policy needs the error to trigger.
	api := &fakeAPI{content: " , ,"}
	c := New(api, Config{}, nil)
	if _, err := c.ExtractTopics(context.Background(), "x"); err == nil {
		t.Fatal("expected an error for empty topics")
	}
}

func TestScoreParsesNumber(t *testing.T) {
	// WHAT: A bare number parses; code fences and whitespace are stripped.
	// WHY: Chat models wrap short answers unpredictably.
	cases := []struct {
		content string
		want    float64
	}{
		{"0.85", 0.85},
		{"  0.3\n", 0.3},
		{"```\n0.7\n```", 0.7},
		{"1", 1},
	}
	for _, tc := range cases {
		api := &fakeAPI{content: tc.content}
		c := New(api, Config{}, nil)
		got, err := c.Score(context.Background(), "r/golang", "Go", []string{"programming"})
		if err != nil {
			t.Errorf("score(%q): %v", tc.content, err)
			continue
		}
		if got != tc.want {
			t.Errorf("score(%q): got %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestScoreUnparseableIsError(t *testing.T) {
	// WHAT: Prose instead of a number is a provider error, not a score.
	// WHY: The caller substitutes the neutral default on error.
	api := &fakeAPI{content: "I would rate this community highly."}
	c := New(api, Config{}, nil)
	if _, err := c.Score(context.Background(), "r/golang", "", nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProviderErrorPropagates(t *testing.T) {
	// WHAT: API failures surface as errors from both operations.
	// WHY: Degradation happens above this package, never inside it.
	api := &fakeAPI{err: fmt.Errorf("rate limited")}
	c := New(api, Config{}, nil)
	if _, err := c.ExtractTopics(context.Background(), "x"); err == nil {
		t.Error("extract should fail")
	}
	if _, err := c.Score(context.Background(), "a", "b", nil); err == nil {
		t.Error("score should fail")
	}
}

func TestModelConfigured(t *testing.T) {
	// WHAT: The configured model name reaches the request.
	// WHY: Model selection is config, not a constant.
	api := &fakeAPI{content: "0.5"}
	c := New(api, Config{Model: "gpt-4o"}, nil)
	c.Score(context.Background(), "a", "b", nil)
	if api.gotReq.Model != "gpt-4o" {
		t.Errorf("model: got %q", api.gotReq.Model)
	}
}
