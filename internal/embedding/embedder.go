// Package embedding provides text embedding providers: feature hashing, ONNX and OpenAI-compatible APIs.
package embedding

import (
	"context"

	"github.com/hyperjump/manualqa/internal/models"
)

// Embedder produces vector embeddings for text. Identical input yields identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// checkDimensions rejects vectors whose length differs from want.
func checkDimensions(vec []float32, want int) error {
	if len(vec) != want {
		return &models.DimensionMismatchError{Want: want, Got: len(vec)}
	}
	return nil
}

// embedEach implements EmbedBatch for providers that embed one text at a time.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
