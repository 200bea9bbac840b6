// Package storage keeps a catalog of ingested source documents.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/manualqa/internal/models"
)

// Catalog records which source files were ingested, when, and with what outcome.
// The vector index stays the source of truth for chunks; the catalog serves status and listings.
type Catalog interface {
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	CountDocuments(ctx context.Context, status string) (int64, error)
	LastIndexedAt(ctx context.Context) (time.Time, error)
	Close() error
}
