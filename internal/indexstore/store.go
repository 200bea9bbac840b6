// Package indexstore persists the vector index as a single versioned binary artifact.
package indexstore

import (
	"context"

	"github.com/hyperjump/manualqa/internal/vector"
)

// Store saves and restores the vector index between process runs.
type Store interface {
	// Save replaces the persisted artifact atomically. On failure the previous artifact is untouched.
	Save(ctx context.Context, index *vector.MemoryIndex) error
	// Load returns models.ErrIndexNotFound when nothing was persisted yet.
	Load(ctx context.Context) (*vector.MemoryIndex, error)
	Exists() bool
	Path() string
}
