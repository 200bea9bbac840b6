package models

import (
	"strings"
	"time"
)

// Citation points at a retrieved chunk that was given to the language model.
type Citation struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"source_document_id"`
	SourceFilename string  `json:"source_filename"`
	SequenceIndex  int     `json:"sequence_index"`
	Score          float64 `json:"score"`
	Excerpt        string  `json:"excerpt"`
}

// QueryResult is the answer to one question plus its citations, in retrieval order.
type QueryResult struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"sources"`
	QueryTime int64      `json:"query_time_ms"`
}

// QueryRequest is the input of a question-answering request.
type QueryRequest struct {
	Question string `json:"question" form:"question" validate:"required,max=4096"`
}

// Normalize trims the question and rejects blank input.
func (q *QueryRequest) Normalize() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// IndexReport summarizes one indexing operation.
type IndexReport struct {
	Indexed        []string      `json:"indexed"`
	Failed         []FileError   `json:"-"`
	ChunksEmbedded int           `json:"chunks_embedded"`
	ChunksSkipped  int           `json:"chunks_skipped"`
	IndexSize      int           `json:"index_size"`
	Duration       time.Duration `json:"-"`
}

// FailedFiles returns the failures as path to message pairs for JSON output.
func (r *IndexReport) FailedFiles() map[string]string {
	out := make(map[string]string, len(r.Failed))
	for _, f := range r.Failed {
		out[f.Path] = f.Err.Error()
	}
	return out
}

// IndexStatus describes the current state of the index service.
type IndexStatus struct {
	Ready          bool      `json:"ready"`
	Chunks         int       `json:"chunks"`
	Dimensions     int       `json:"dimensions"`
	Documents      int64     `json:"documents"`
	KeywordDocs    uint64    `json:"keyword_docs"`
	IndexPath      string    `json:"index_path"`
	CorpusDir      string    `json:"corpus_dir"`
	IndexSizeBytes int64     `json:"index_size_bytes"`
	LastIndexedAt  time.Time `json:"last_indexed_at,omitempty"`
}

// SearchHit is one chunk returned by hybrid keyword and semantic search.
type SearchHit struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"source_document_id"`
	SourceFilename string  `json:"source_filename"`
	SequenceIndex  int     `json:"sequence_index"`
	Text           string  `json:"text"`
	Score          float64 `json:"score"`
	KeywordScore   float64 `json:"keyword_score"`
	SemanticScore  float64 `json:"semantic_score"`
}
