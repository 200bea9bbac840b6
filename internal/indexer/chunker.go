// Package indexer splits documents into chunks and orchestrates full and incremental index builds.
package indexer

import (
	"strings"

	"github.com/hyperjump/manualqa/internal/fileid"
	"github.com/hyperjump/manualqa/internal/models"
)

// Chunk splits text into whitespace-token windows of size tokens, consecutive windows sharing
// overlap tokens. The last window may be shorter than size. Empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	stride := size - overlap
	windows := make([]string, 0, len(tokens)/stride+1)
	for i := 0; i < len(tokens); i += stride {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, strings.Join(tokens[i:end], " "))
		if end >= len(tokens) {
			break
		}
	}
	return windows, nil
}

func validateWindow(size, overlap int) error {
	switch {
	case size <= 0:
		return &models.ConfigurationError{Field: "chunk_size", Reason: "must be positive"}
	case overlap < 0:
		return &models.ConfigurationError{Field: "chunk_overlap", Reason: "must not be negative"}
	case size <= overlap:
		return &models.ConfigurationError{Field: "chunk_size", Reason: "must be greater than chunk_overlap"}
	}
	return nil
}

// Chunker applies Chunk with fixed parameters and attaches provenance to every window.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given size and overlap (in tokens).
func NewChunker(size, overlap int) (*Chunker, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of tokens shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// ChunkDocument splits one document into chunks with sequence indices starting at 0.
func (c *Chunker) ChunkDocument(doc models.RawDocument) []models.Chunk {
	windows, _ := Chunk(doc.Text, c.size, c.overlap)
	chunks := make([]models.Chunk, 0, len(windows))
	for seq, text := range windows {
		chunks = append(chunks, models.Chunk{
			ID:            fileid.ChunkID(doc.ID, seq),
			DocumentID:    doc.ID,
			SequenceIndex: seq,
			Text:          text,
			Metadata:      models.ChunkMetadata(doc.Metadata, doc.ID, seq),
		})
	}
	return chunks
}

// ChunkDocuments chunks every document in order.
func (c *Chunker) ChunkDocuments(docs []models.RawDocument) []models.Chunk {
	var out []models.Chunk
	for _, doc := range docs {
		out = append(out, c.ChunkDocument(doc)...)
	}
	return out
}
