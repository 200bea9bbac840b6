package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/manualqa/internal/embedding"
	"github.com/hyperjump/manualqa/internal/fileid"
	"github.com/hyperjump/manualqa/internal/llm"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/vector"
	"github.com/hyperjump/manualqa/internal/workerpool"
)

const dims = 64

func buildIndex(t *testing.T, emb embedding.Embedder, docs map[string][]string) *vector.MemoryIndex {
	t.Helper()
	idx, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for docID, texts := range docs {
		for seq, text := range texts {
			vec, err := emb.Embed(ctx, text)
			if err != nil {
				t.Fatal(err)
			}
			err = idx.Insert(ctx, models.EmbeddedChunk{
				Chunk: models.Chunk{
					ID:            fileid.ChunkID(docID, seq),
					DocumentID:    docID,
					SequenceIndex: seq,
					Text:          text,
					Metadata:      map[string]string{models.MetaFileName: docID + ".pdf"},
				},
				Vector: vec,
			})
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	return idx
}

// recordingGenerator remembers the last prompt.
type recordingGenerator struct {
	prompt string
	answer string
	err    error
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, g.err
}

func TestEngine_Query(t *testing.T) {
	emb := embedding.NewHashEmbedder(dims)
	idx := buildIndex(t, emb, map[string][]string{
		"pump": {
			"The torque limit for the flange bolts is 45 Nm.",
			"Replace the impeller every 2000 hours.",
		},
		"lathe": {"Lubricate the spindle bearings weekly."},
	})
	gen := &recordingGenerator{answer: "  45 Nm.\n"}
	engine := NewEngine(emb, gen, WithTopK(2), WithPool(workerpool.New(2)))

	res, err := engine.Query(context.Background(), idx, "  What is the torque limit?  ")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Question != "What is the torque limit?" {
		t.Errorf("Question = %q", res.Question)
	}
	if res.Answer != "45 Nm." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(res.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(res.Citations))
	}
	top := res.Citations[0]
	if top.ChunkID != fileid.ChunkID("pump", 0) || top.SourceFilename != "pump.pdf" || top.SequenceIndex != 0 {
		t.Errorf("top citation = %+v", top)
	}
	if res.Citations[0].Score < res.Citations[1].Score {
		t.Error("citations not ordered by score")
	}
	if !strings.Contains(gen.prompt, "The torque limit for the flange bolts is 45 Nm.") {
		t.Errorf("prompt is missing the retrieved chunk:\n%s", gen.prompt)
	}
	if !strings.Contains(gen.prompt, "Query: What is the torque limit?") {
		t.Errorf("prompt is missing the question:\n%s", gen.prompt)
	}
}

func TestEngine_QueryErrors(t *testing.T) {
	emb := embedding.NewHashEmbedder(dims)
	empty, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	full := buildIndex(t, emb, map[string][]string{"a": {"alpha"}})
	genErr := errors.New("model overloaded")

	tests := []struct {
		name     string
		index    vector.VectorIndex
		question string
		gen      llm.Generator
		want     error
	}{
		{"blank question", full, "   ", &recordingGenerator{}, models.ErrEmptyQuestion},
		{"empty index", empty, "alpha?", &recordingGenerator{}, models.ErrEmptyIndex},
		{"generator failure", full, "alpha?", &recordingGenerator{err: genErr}, genErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(emb, tt.gen).Query(context.Background(), tt.index, tt.question)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_FewerChunksThanTopK(t *testing.T) {
	emb := embedding.NewHashEmbedder(dims)
	idx := buildIndex(t, emb, map[string][]string{"a": {"only chunk"}})
	res, err := NewEngine(emb, llm.NewExtractiveGenerator(), WithTopK(5)).Query(context.Background(), idx, "chunk?")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Citations) != 1 {
		t.Errorf("got %d citations, want 1", len(res.Citations))
	}
}

func TestEngine_ContextBudgetDropsLowestRanked(t *testing.T) {
	emb := embedding.NewHashEmbedder(dims)
	idx := buildIndex(t, emb, map[string][]string{
		"a": {
			"torque limit 45 Nm",
			"torque wrench calibration " + strings.Repeat("filler ", 50),
			"unrelated text " + strings.Repeat("padding ", 50),
		},
	})
	gen := &recordingGenerator{answer: "45 Nm"}
	engine := NewEngine(emb, gen, WithTopK(3), WithContextBudget(60, llm.WordCounter{}))
	res, err := engine.Query(context.Background(), idx, "torque limit")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(res.Citations))
	}
	if res.Citations[0].ChunkID != fileid.ChunkID("a", 0) {
		t.Errorf("kept %s, want the best match", res.Citations[0].ChunkID)
	}
	if strings.Contains(gen.prompt, "padding") || strings.Contains(gen.prompt, "filler") {
		t.Error("dropped chunk still in prompt")
	}

	// A budget smaller than any prompt still keeps one chunk.
	tiny := NewEngine(emb, gen, WithTopK(3), WithContextBudget(1, llm.WordCounter{}))
	res, err = tiny.Query(context.Background(), idx, "torque limit")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Citations) != 1 {
		t.Errorf("got %d citations, want 1", len(res.Citations))
	}
}
