// Package llm provides answer generation: an OpenAI-compatible chat client, an offline
// extractive fallback, rate limiting and prompt token counting.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/manualqa/internal/models"
)

// Generator turns a prompt into text. Calls may be slow, non-deterministic and rate limited.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// SystemPrompt instructs the model to stay within the supplied manual excerpts.
const SystemPrompt = "You answer questions about technical manuals. Use only the provided context. " +
	"If the context does not contain the answer, say that you do not know."

const (
	contextStart = "Context information is below.\n---------------------\n"
	contextEnd   = "---------------------\n"
)

// BuildPrompt combines the question with the retrieved chunks, best match first.
func BuildPrompt(question string, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString(contextStart)
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s (part %d)\n%s\n\n", i+1, c.SourceFilename(), c.SequenceIndex, c.Text)
	}
	b.WriteString(contextEnd)
	b.WriteString("Given the context information and not prior knowledge, answer the query.\n")
	fmt.Fprintf(&b, "Query: %s\nAnswer: ", question)
	return b.String()
}

// splitPrompt recovers the context passages and the question from a prompt built by BuildPrompt.
func splitPrompt(prompt string) (passages []string, question string) {
	body := prompt
	if i := strings.Index(body, contextStart); i >= 0 {
		body = body[i+len(contextStart):]
	}
	ctxText := body
	if i := strings.Index(body, contextEnd); i >= 0 {
		ctxText = body[:i]
		body = body[i+len(contextEnd):]
	}
	if i := strings.LastIndex(body, "Query: "); i >= 0 {
		question = strings.TrimSuffix(strings.TrimSpace(body[i+len("Query: "):]), "Answer:")
	}
	for _, block := range strings.Split(ctxText, "\n\n") {
		lines := strings.SplitN(strings.TrimSpace(block), "\n", 2)
		if len(lines) == 2 && strings.TrimSpace(lines[1]) != "" {
			passages = append(passages, strings.TrimSpace(lines[1]))
		}
	}
	return passages, strings.TrimSpace(question)
}
