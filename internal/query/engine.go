// Package query answers questions against a vector index snapshot.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/embedding"
	"github.com/hyperjump/manualqa/internal/llm"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/vector"
	"github.com/hyperjump/manualqa/internal/workerpool"
)

// DefaultTopK is the number of chunks given to the language model.
const DefaultTopK = 3

// Engine retrieves the chunks closest to a question and asks the generator for an answer.
// It keeps no index of its own; every call receives the snapshot to read.
type Engine struct {
	embedder         embedding.Embedder
	generator        llm.Generator
	pool             *workerpool.Pool
	topK             int
	maxContextTokens int
	counter          llm.TokenCounter
	excerptLen       int
	logger           *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPool runs embedding and generation on p.
func WithPool(p *workerpool.Pool) Option {
	return func(e *Engine) {
		if p != nil {
			e.pool = p
		}
	}
}

// WithTopK sets how many chunks are retrieved. Values <= 0 keep the default.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithContextBudget drops the lowest-ranked chunks until the prompt fits in maxTokens
// as counted by counter. At least one chunk is always kept. maxTokens <= 0 disables the budget.
func WithContextBudget(maxTokens int, counter llm.TokenCounter) Option {
	return func(e *Engine) {
		e.maxContextTokens = maxTokens
		if counter != nil {
			e.counter = counter
		}
	}
}

// NewEngine creates a query engine.
func NewEngine(embedder embedding.Embedder, generator llm.Generator, opts ...Option) *Engine {
	e := &Engine{
		embedder:   embedder,
		generator:  generator,
		pool:       workerpool.New(1),
		topK:       DefaultTopK,
		counter:    llm.WordCounter{},
		excerptLen: DefaultExcerptLen,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TopK returns the number of chunks retrieved per question.
func (e *Engine) TopK() int {
	return e.topK
}

// Retrieve embeds question and returns the k nearest chunks of index, best first.
func (e *Engine) Retrieve(ctx context.Context, index vector.VectorIndex, question string, k int) ([]*vector.Result, error) {
	vec, err := workerpool.Do(ctx, e.pool, func(ctx context.Context) ([]float32, error) {
		return e.embedder.Embed(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	results, err := index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return results, nil
}

// Query answers question from index. Blank questions fail with models.ErrEmptyQuestion and an
// empty index with models.ErrEmptyIndex.
func (e *Engine) Query(ctx context.Context, index vector.VectorIndex, question string) (*models.QueryResult, error) {
	start := time.Now()
	req := models.QueryRequest{Question: question}
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	results, err := e.Retrieve(ctx, index, req.Question, e.topK)
	if err != nil {
		return nil, err
	}
	results = e.fit(req.Question, results)

	chunks := make([]models.Chunk, len(results))
	citations := make([]models.Citation, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk.Chunk
		citations[i] = models.Citation{
			ChunkID:        r.Chunk.ID,
			DocumentID:     r.Chunk.DocumentID,
			SourceFilename: r.Chunk.SourceFilename(),
			SequenceIndex:  r.Chunk.SequenceIndex,
			Score:          r.Score,
			Excerpt:        Excerpt(r.Chunk.Text, req.Question, e.excerptLen),
		}
	}
	prompt := llm.BuildPrompt(req.Question, chunks)
	answer, err := workerpool.Do(ctx, e.pool, func(ctx context.Context) (string, error) {
		return e.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	took := time.Since(start)
	e.logger.Debug("question answered",
		zap.String("question", req.Question),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", took))
	return &models.QueryResult{
		Question:  req.Question,
		Answer:    strings.TrimSpace(answer),
		Citations: citations,
		QueryTime: took.Milliseconds(),
	}, nil
}

// fit trims results from the end until the prompt fits the context budget.
func (e *Engine) fit(question string, results []*vector.Result) []*vector.Result {
	if e.maxContextTokens <= 0 {
		return results
	}
	for len(results) > 1 {
		chunks := make([]models.Chunk, len(results))
		for i, r := range results {
			chunks[i] = r.Chunk.Chunk
		}
		n := e.counter.Count(llm.BuildPrompt(question, chunks))
		if n <= e.maxContextTokens {
			break
		}
		e.logger.Debug("prompt over budget, dropping chunk",
			zap.Int("tokens", n),
			zap.Int("budget", e.maxContextTokens),
			zap.String("chunk", results[len(results)-1].Chunk.ID))
		results = results[:len(results)-1]
	}
	return results
}
