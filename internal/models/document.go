// Package models defines core data structures for documents, chunks, queries, and index reports.
package models

import (
	"strconv"
	"time"
)

// Metadata keys attached to raw documents and chunks.
const (
	MetaSourceDocumentID = "source_document_id"
	MetaSequenceIndex    = "sequence_index"
	MetaFileName         = "file_name"
	MetaFilePath         = "file_path"
	MetaPageCount        = "page_count"
)

// RawDocument is the text of one source file as produced by the loader.
type RawDocument struct {
	ID             string            `json:"id"`
	SourceFilename string            `json:"source_filename"`
	Path           string            `json:"path"`
	Text           string            `json:"text"`
	Metadata       map[string]string `json:"metadata"`
}

// Chunk is one overlapping token window of a raw document.
// ID is derived from (DocumentID, SequenceIndex) so re-chunking the same source yields the same IDs.
type Chunk struct {
	ID            string            `json:"chunk_id"`
	DocumentID    string            `json:"source_document_id"`
	SequenceIndex int               `json:"sequence_index"`
	Text          string            `json:"text"`
	Metadata      map[string]string `json:"metadata"`
}

// SourceFilename returns the file name recorded in the chunk metadata, falling back to the document ID.
func (c Chunk) SourceFilename() string {
	if name := c.Metadata[MetaFileName]; name != "" {
		return name
	}
	return c.DocumentID
}

// EmbeddedChunk is a chunk plus its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"-"`
}

// Clone returns a deep copy so callers cannot mutate index-owned data.
func (e EmbeddedChunk) Clone() EmbeddedChunk {
	out := e
	out.Metadata = CopyMetadata(e.Metadata)
	out.Vector = append([]float32(nil), e.Vector...)
	return out
}

// CopyMetadata returns a shallow copy of m (nil stays nil).
func CopyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ChunkMetadata builds the metadata of a chunk from its parent document metadata.
func ChunkMetadata(parent map[string]string, documentID string, seq int) map[string]string {
	md := make(map[string]string, len(parent)+2)
	for k, v := range parent {
		md[k] = v
	}
	md[MetaSourceDocumentID] = documentID
	md[MetaSequenceIndex] = strconv.Itoa(seq)
	return md
}

// Document is a catalog row describing one ingested source file.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	Path       string    `json:"path" db:"path"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	PageCount  int       `json:"page_count" db:"page_count"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	Status     string    `json:"status" db:"status"`
	Error      string    `json:"error,omitempty" db:"error"`
	IndexedAt  time.Time `json:"indexed_at" db:"indexed_at"`
}

// Document statuses stored in the catalog.
const (
	DocumentIndexed = "indexed"
	DocumentFailed  = "failed"
)
