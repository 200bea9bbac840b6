// Package keyword provides BM25 keyword search over indexed chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/manualqa/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the source file name. Values <= 1 disable the boost.
	TitleBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Default 1.
	Fuzziness int
}

// KeywordIndex is a secondary text index over chunks. The vector index stays the source of truth;
// a keyword index can always be rebuilt from it.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids ...string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. ID is a chunk ID.
type KeywordResult struct {
	ID    string
	Score float64
}
