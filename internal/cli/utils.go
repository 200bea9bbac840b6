// Package cli formats command results for the manualqa CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const (
	separator     = "─────────────────────────────────────────────────────────"
	excerptMaxLen = 200
	hitMaxWords   = 40
)

// FormatFor returns OutputJSON when asJSON is set and OutputText otherwise.
func FormatFor(asJSON bool) OutputFormat {
	if asJSON {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a query result and its sources to w.
func WriteAnswer(w io.Writer, res *models.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\n%s\n\n", res.Answer)
	if len(res.Citations) == 0 {
		return nil
	}
	fmt.Fprintf(w, "Sources (%dms):\n", res.QueryTime)
	for i, c := range res.Citations {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "[%d] %s, chunk %d | Score: %.4f\n", i+1, c.SourceFilename, c.SequenceIndex, c.Score)
		if c.Excerpt != "" {
			fmt.Fprintf(w, "%s\n", utils.Truncate(c.Excerpt, excerptMaxLen))
		}
	}
	fmt.Fprintln(w)
	return nil
}

type reportJSON struct {
	Indexed        []string          `json:"indexed"`
	Failed         map[string]string `json:"failed"`
	ChunksEmbedded int               `json:"chunks_embedded"`
	ChunksSkipped  int               `json:"chunks_skipped"`
	IndexSize      int               `json:"index_size"`
	DurationMs     int64             `json:"duration_ms"`
}

// WriteReport writes an indexing report to w.
func WriteReport(w io.Writer, rep *models.IndexReport, format OutputFormat) error {
	if format == OutputJSON {
		indexed := rep.Indexed
		if indexed == nil {
			indexed = []string{}
		}
		return writeJSON(w, reportJSON{
			Indexed:        indexed,
			Failed:         rep.FailedFiles(),
			ChunksEmbedded: rep.ChunksEmbedded,
			ChunksSkipped:  rep.ChunksSkipped,
			IndexSize:      rep.IndexSize,
			DurationMs:     rep.Duration.Milliseconds(),
		})
	}
	fmt.Fprintf(w, "Indexed %d file(s) in %s: %d chunk(s) embedded, %d unchanged, %d in index\n",
		len(rep.Indexed), rep.Duration.Round(time.Millisecond), rep.ChunksEmbedded, rep.ChunksSkipped, rep.IndexSize)
	for _, name := range rep.Indexed {
		fmt.Fprintf(w, "  + %s\n", name)
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "  ! %s: %v\n", f.Path, f.Err)
	}
	return nil
}

// WriteStatus writes the index status to w.
func WriteStatus(w io.Writer, st *models.IndexStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	ready := "no"
	if st.Ready {
		ready = "yes"
	}
	fmt.Fprintf(w, "Ready:          %s\n", ready)
	fmt.Fprintf(w, "Chunks:         %d (%d dims)\n", st.Chunks, st.Dimensions)
	fmt.Fprintf(w, "Documents:      %d\n", st.Documents)
	fmt.Fprintf(w, "Keyword docs:   %d\n", st.KeywordDocs)
	fmt.Fprintf(w, "Index:          %s (%s)\n", st.IndexPath, FormatBytes(st.IndexSizeBytes))
	fmt.Fprintf(w, "Corpus:         %s\n", st.CorpusDir)
	if !st.LastIndexedAt.IsZero() {
		fmt.Fprintf(w, "Last indexed:   %s\n", st.LastIndexedAt.Local().Format(time.RFC3339))
	}
	return nil
}

// WriteSearchHits writes hybrid search results to w.
func WriteSearchHits(w io.Writer, q string, hits []models.SearchHit, format OutputFormat) error {
	if format == OutputJSON {
		if hits == nil {
			hits = []models.SearchHit{}
		}
		return writeJSON(w, map[string]interface{}{"query": q, "results": hits})
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(hits), q)
	for i, h := range hits {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
			i+1, h.Score, h.KeywordScore, h.SemanticScore)
		fmt.Fprintf(w, "Source: %s, chunk %d\n", h.SourceFilename, h.SequenceIndex)
		fmt.Fprintf(w, "\n%s\n\n", TruncateWords(h.Text, hitMaxWords))
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
