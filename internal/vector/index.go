// Package vector provides the chunk vector index and similarity search.
package vector

import (
	"context"

	"github.com/hyperjump/manualqa/internal/models"
)

// VectorIndex stores embedded chunks keyed by chunk ID and answers top-k similarity queries.
// There is no deletion: entries are only inserted or replaced.
type VectorIndex interface {
	Insert(ctx context.Context, chunk models.EmbeddedChunk) error
	Query(ctx context.Context, vector []float32, k int) ([]*Result, error)
	Get(id string) (models.EmbeddedChunk, bool)
	Entries() []models.EmbeddedChunk
	Len() int
	Dimensions() int
}

// Result is a single query hit.
type Result struct {
	Chunk models.EmbeddedChunk
	Score float64 // cosine similarity in [-1, 1]
}
