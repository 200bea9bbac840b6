package query

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/manualqa/internal/embedding"
)

// DefaultExcerptLen is the maximum excerpt length in runes.
const DefaultExcerptLen = 240

// Excerpt returns at most maxLen runes of text, starting a little before the first word that
// also appears in question. Cuts fall on word boundaries and are marked with "...".
func Excerpt(text, question string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	words := strings.Fields(text)
	start := 0
	want := make(map[string]bool)
	for _, t := range embedding.Terms(question) {
		if len(t) > 3 {
			want[t] = true
		}
	}
	for i, w := range words {
		if hasTerm(w, want) {
			start = max(i-2, 0)
			break
		}
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	n := 0
	for i := start; i < len(words); i++ {
		l := utf8.RuneCountInString(words[i])
		if n > 0 && n+1+l > maxLen {
			b.WriteString("...")
			return b.String()
		}
		if n > 0 {
			b.WriteByte(' ')
			n++
		}
		if l > maxLen {
			r := []rune(words[i])
			b.WriteString(string(r[:maxLen]))
			b.WriteString("...")
			return b.String()
		}
		b.WriteString(words[i])
		n += l
	}
	return b.String()
}

func hasTerm(word string, want map[string]bool) bool {
	for _, t := range embedding.Terms(word) {
		if want[t] {
			return true
		}
	}
	return false
}
