package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/manualqa/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine similarity.
// Entries keep their insertion order; replacing an entry keeps its original position.
type MemoryIndex struct {
	dimensions int
	entries    []models.EmbeddedChunk
	norms      []float64
	positions  map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty index whose vectors all have the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		positions:  make(map[string]int),
	}, nil
}

// Insert adds chunk or replaces the entry with the same chunk ID.
func (m *MemoryIndex) Insert(ctx context.Context, chunk models.EmbeddedChunk) error {
	if len(chunk.Vector) != m.dimensions {
		return &models.DimensionMismatchError{Want: m.dimensions, Got: len(chunk.Vector)}
	}
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	entry := chunk.Clone()
	norm := L2Norm(entry.Vector)
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[entry.ID]; ok {
		m.entries[pos] = entry
		m.norms[pos] = norm
		return nil
	}
	m.positions[entry.ID] = len(m.entries)
	m.entries = append(m.entries, entry)
	m.norms = append(m.norms, norm)
	return nil
}

// Query returns the k entries most similar to vector, highest score first.
// Equal scores keep insertion order. k larger than the index returns every entry.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]*Result, error) {
	if len(vector) != m.dimensions {
		return nil, &models.DimensionMismatchError{Want: m.dimensions, Got: len(vector)}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	if len(m.entries) == 0 {
		return nil, models.ErrEmptyIndex
	}
	queryNorm := L2Norm(vector)
	results := make([]*Result, len(m.entries))
	for i := range m.entries {
		results[i] = &Result{
			Chunk: m.entries[i],
			Score: cosine(InnerProduct(vector, m.entries[i].Vector), queryNorm, m.norms[i]),
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	results = results[:k]
	for _, r := range results {
		r.Chunk = r.Chunk.Clone()
	}
	return results, nil
}

// Get returns a copy of the entry with the given chunk ID.
func (m *MemoryIndex) Get(id string) (models.EmbeddedChunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return models.EmbeddedChunk{}, false
	}
	return m.entries[pos].Clone(), true
}

// Entries returns copies of all entries in insertion order.
func (m *MemoryIndex) Entries() []models.EmbeddedChunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EmbeddedChunk, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Dimensions returns the vector dimension of the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Clone returns an independent deep copy. Writers mutate a clone and publish it,
// so readers holding the previous index never observe a partial batch.
func (m *MemoryIndex) Clone() *MemoryIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := &MemoryIndex{
		dimensions: m.dimensions,
		entries:    make([]models.EmbeddedChunk, len(m.entries)),
		norms:      append([]float64(nil), m.norms...),
		positions:  make(map[string]int, len(m.positions)),
	}
	for i, e := range m.entries {
		out.entries[i] = e.Clone()
	}
	for id, pos := range m.positions {
		out.positions[id] = pos
	}
	return out
}

// DocumentIDs returns the distinct source document IDs in first-seen order.
func (m *MemoryIndex) DocumentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var ids []string
	for _, e := range m.entries {
		if !seen[e.DocumentID] {
			seen[e.DocumentID] = true
			ids = append(ids, e.DocumentID)
		}
	}
	return ids
}
