package llm

import (
	"context"
	"strings"
	"unicode"
)

// ExtractiveGenerator answers without a model: it returns the context sentence sharing
// the most terms with the question. Used when no LLM endpoint is configured.
type ExtractiveGenerator struct{}

// NewExtractiveGenerator returns the offline generator.
func NewExtractiveGenerator() *ExtractiveGenerator {
	return &ExtractiveGenerator{}
}

// Generate picks the best matching sentence from the prompt's context.
func (g *ExtractiveGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	passages, question := splitPrompt(prompt)
	if len(passages) == 0 {
		return "I could not find anything relevant in the indexed manuals.", nil
	}
	want := termSet(question)
	best, bestScore := "", -1
	for _, p := range passages {
		for _, s := range sentences(p) {
			score := 0
			for t := range termSet(s) {
				if want[t] {
					score++
				}
			}
			if score > bestScore {
				best, bestScore = s, score
			}
		}
	}
	return best, nil
}

func termSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(t) > 2 {
			set[t] = true
		}
	}
	return set
}

// sentences splits on sentence-ending punctuation followed by a space.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') && (i+1 == len(text) || text[i+1] == ' ') {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
