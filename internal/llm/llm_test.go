package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/manualqa/internal/models"
)

func chunks() []models.Chunk {
	return []models.Chunk{
		{DocumentID: "A", SequenceIndex: 2, Text: "Tighten the flange bolts. The torque limit: 50 Nm for M8 bolts.",
			Metadata: map[string]string{models.MetaFileName: "A.pdf"}},
		{DocumentID: "B", SequenceIndex: 0, Text: "Coolant must be replaced every six months."},
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("What is the torque limit?", chunks())
	for _, want := range []string{
		"[1] A.pdf (part 2)", "torque limit: 50 Nm", "[2] B (part 0)", "Query: What is the torque limit?",
	} {
		assert.Contains(t, p, want)
	}
	assert.Less(t, strings.Index(p, "[1]"), strings.Index(p, "[2]"))
}

func TestSplitPrompt_RoundTrip(t *testing.T) {
	passages, q := splitPrompt(BuildPrompt("What is the torque limit?", chunks()))
	assert.Equal(t, "What is the torque limit?", q)
	require.Len(t, passages, 2)
	assert.Equal(t, chunks()[1].Text, passages[1])
}

func TestExtractiveGenerator(t *testing.T) {
	g := NewExtractiveGenerator()
	answer, err := g.Generate(context.Background(), BuildPrompt("What is the torque limit?", chunks()))
	require.NoError(t, err)
	assert.Equal(t, "The torque limit: 50 Nm for M8 bolts.", answer)

	answer, err = g.Generate(context.Background(), BuildPrompt("anything", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
}

func TestSentences(t *testing.T) {
	got := sentences("First one. Second? Version 1.2 is fine! tail")
	assert.Equal(t, []string{"First one.", "Second?", "Version 1.2 is fine!", "tail"}, got)
}

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, failFirst int32, answer string) (*httptest.Server, *atomic.Int32, *chatRequest) {
	t.Helper()
	var calls atomic.Int32
	last := &chatRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failFirst {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(last))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "x", "object": "chat.completion", "model": last.Model,
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": answer}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, last
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv, calls, last := chatServer(t, 1, "  The limit is 50 Nm.  ")
	g, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "HuggingFaceH4/zephyr-7b-beta",
		MaxTokens: 256, Temperature: 0.2, MaxRetries: 1, RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "The limit is 50 Nm.", answer)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 256, last.MaxTokens)
	assert.InDelta(t, 0.2, last.Temperature, 1e-6)
	require.Len(t, last.Messages, 2)
	assert.Equal(t, "system", last.Messages[0].Role)
	assert.Equal(t, "prompt text", last.Messages[1].Content)
}

func TestOpenAIGenerator_GivesUpAfterRetries(t *testing.T) {
	srv, calls, _ := chatServer(t, 10, "unused")
	g, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", MaxRetries: 2, RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "p")
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewOpenAIGenerator_Validation(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{Model: "m"}, nil)
	assert.Error(t, err)
	_, err = NewOpenAIGenerator(OpenAIConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestRateLimited(t *testing.T) {
	var calls atomic.Int32
	inner := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	g := NewRateLimited(inner, 20, 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		out, err := g.Generate(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRateLimited(inner, 0.001, 1).Generate(ctx, "p")
	assert.Error(t, err)
}

func TestRateLimited_Unlimited(t *testing.T) {
	g := NewRateLimited(NewExtractiveGenerator(), 0, 0)
	for i := 0; i < 50; i++ {
		_, err := g.Generate(context.Background(), BuildPrompt("q", chunks()))
		require.NoError(t, err)
	}
}

func TestWordCounter(t *testing.T) {
	assert.Equal(t, 4, WordCounter{}.Count(" one two\nthree  four "))
	assert.Equal(t, 0, WordCounter{}.Count(""))
}
