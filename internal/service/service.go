// Package service owns the live vector index: its lifecycle, the single writer lock and the
// snapshot that queries read.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/indexer"
	"github.com/hyperjump/manualqa/internal/indexstore"
	"github.com/hyperjump/manualqa/internal/keyword"
	"github.com/hyperjump/manualqa/internal/loader"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/query"
	"github.com/hyperjump/manualqa/internal/storage"
	"github.com/hyperjump/manualqa/internal/vector"
)

// ErrClosed is returned by every operation after Shutdown.
var ErrClosed = errors.New("index service closed")

// Hybrid search weights.
const (
	keywordWeight  = 0.5
	semanticWeight = 0.5
)

// IndexService serializes index mutations and publishes immutable snapshots to readers.
// Writers clone the current index, mutate and persist the clone, then swap it in; readers
// never take the write lock.
type IndexService struct {
	indexer *indexer.Indexer
	engine  *query.Engine
	store   indexstore.Store
	catalog storage.Catalog
	keyword keyword.KeywordIndex
	closers []io.Closer
	logger  *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[vector.MemoryIndex]
	closed  atomic.Bool
}

// Option configures an IndexService.
type Option func(*IndexService)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *IndexService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCatalog serves Documents and status counts from c. Shutdown closes it.
func WithCatalog(c storage.Catalog) Option {
	return func(s *IndexService) { s.catalog = c }
}

// WithKeywordIndex enables hybrid Search and keyword reconciliation. Shutdown closes it.
func WithKeywordIndex(k keyword.KeywordIndex) Option {
	return func(s *IndexService) { s.keyword = k }
}

// WithCloser registers resources (embedder, generator clients) that Shutdown closes last.
func WithCloser(c io.Closer) Option {
	return func(s *IndexService) {
		if c != nil {
			s.closers = append(s.closers, c)
		}
	}
}

// New creates a service. No index is loaded until Init.
func New(ix *indexer.Indexer, engine *query.Engine, store indexstore.Store, opts ...Option) *IndexService {
	s := &IndexService{
		indexer: ix,
		engine:  engine,
		store:   store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads the persisted index, or builds one from the corpus when none exists.
// Calling Init on a ready service is a no-op.
func (s *IndexService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	return s.initLocked(ctx)
}

func (s *IndexService) initLocked(ctx context.Context) error {
	if s.current.Load() != nil {
		return nil
	}
	start := time.Now()
	idx, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, models.ErrIndexNotFound):
		s.logger.Info("no persisted index, building from corpus", zap.String("corpus", s.indexer.CorpusDir()))
		built, report, buildErr := s.indexer.Build(ctx)
		if buildErr != nil {
			return fmt.Errorf("initial build: %w", buildErr)
		}
		logReport(s.logger, "initial build", report)
		idx = built
	case err != nil:
		return fmt.Errorf("load index: %w", err)
	default:
		if idx.Dimensions() != s.indexer.Dimensions() {
			return fmt.Errorf("persisted index %s: %w", s.store.Path(),
				&models.DimensionMismatchError{Want: s.indexer.Dimensions(), Got: idx.Dimensions()})
		}
	}
	s.reconcileKeywords(ctx, idx)
	s.current.Store(idx)
	s.logger.Info("index ready",
		zap.Int("chunks", idx.Len()),
		zap.Int("dimensions", idx.Dimensions()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// reconcileKeywords rebuilds the keyword index from idx when their sizes disagree.
func (s *IndexService) reconcileKeywords(ctx context.Context, idx *vector.MemoryIndex) {
	if s.keyword == nil {
		return
	}
	n, err := s.keyword.DocCount()
	if err == nil && n == uint64(idx.Len()) {
		return
	}
	s.logger.Info("keyword index out of sync, rebuilding", zap.Uint64("keyword_docs", n), zap.Int("chunks", idx.Len()))
	entries := idx.Entries()
	chunks := make([]models.Chunk, len(entries))
	for i, e := range entries {
		chunks[i] = e.Chunk
	}
	if err := s.keyword.Index(ctx, chunks); err != nil {
		s.logger.Warn("keyword reindex failed", zap.Error(err))
	}
}

// Rebuild re-indexes the whole corpus into a fresh index and publishes it.
func (s *IndexService) Rebuild(ctx context.Context) (*models.IndexReport, error) {
	// Shutdown sets closed under the lock, so a caller that waited for it sees the flag here.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	idx, report, err := s.indexer.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	s.reconcileKeywords(ctx, idx)
	s.current.Store(idx)
	logReport(s.logger, "rebuild", report)
	return report, nil
}

// Update indexes paths into the current index. Per-file failures are in the report; any other
// error leaves the published index and the persisted artifact unchanged.
func (s *IndexService) Update(ctx context.Context, paths []string) (*models.IndexReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := s.initLocked(ctx); err != nil {
		return nil, err
	}
	idx, report, err := s.indexer.Update(ctx, s.current.Load(), paths)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	s.current.Store(idx)
	logReport(s.logger, "update", report)
	return report, nil
}

// UpdateCorpus submits every PDF in the corpus directory as an update. Unchanged chunks are not
// re-embedded, so this is the cheap way to pick up files added while the service was down.
func (s *IndexService) UpdateCorpus(ctx context.Context) (*models.IndexReport, error) {
	paths, err := loader.ListCorpus(s.indexer.CorpusDir())
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, paths)
}

// Ready reports whether an index has been published.
func (s *IndexService) Ready() bool {
	return s.current.Load() != nil
}

// Snapshot returns the published index, or nil before Init. Callers must not mutate it.
func (s *IndexService) Snapshot() *vector.MemoryIndex {
	return s.current.Load()
}

// Query answers question from the current snapshot. It fails fast with models.ErrNotReady
// before Init and never waits for a running index operation.
func (s *IndexService) Query(ctx context.Context, question string) (*models.QueryResult, error) {
	idx, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return s.engine.Query(ctx, idx, question)
}

// Search returns up to limit chunks ranked by fused keyword and cosine scores. Without a keyword
// index the ranking is purely semantic.
func (s *IndexService) Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error) {
	idx, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, models.ErrEmptyQuestion
	}
	if limit <= 0 {
		limit = 10
	}
	semantic, err := s.engine.Retrieve(ctx, idx, q, limit)
	if err != nil && !errors.Is(err, models.ErrEmptyIndex) {
		return nil, err
	}
	kwScores := map[string]float64{}
	if s.keyword != nil {
		kw, err := s.keyword.Search(ctx, q, limit, &keyword.SearchOptions{TitleBoost: 2})
		if err != nil {
			s.logger.Warn("keyword search failed", zap.String("q", q), zap.Error(err))
		} else {
			kwScores = query.NormalizeKeywordScores(kw)
		}
	}

	fused := query.Fuse(kwScores, query.SemanticScores(semantic), keywordWeight, semanticWeight)
	hits := make([]models.SearchHit, 0, min(limit, len(fused)))
	for _, r := range fused {
		if len(hits) == limit {
			break
		}
		// Keyword hits can outlive a chunk only until the next reconcile.
		c, ok := idx.Get(r.ChunkID)
		if !ok {
			continue
		}
		hits = append(hits, models.SearchHit{
			ChunkID:        c.ID,
			DocumentID:     c.DocumentID,
			SourceFilename: c.SourceFilename(),
			SequenceIndex:  c.SequenceIndex,
			Text:           c.Text,
			Score:          r.Score,
			KeywordScore:   r.KeywordScore,
			SemanticScore:  r.SemanticScore,
		})
	}
	return hits, nil
}

// Status describes the index and the corpus.
func (s *IndexService) Status(ctx context.Context) (*models.IndexStatus, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	st := &models.IndexStatus{
		IndexPath:  s.store.Path(),
		CorpusDir:  s.indexer.CorpusDir(),
		Dimensions: s.indexer.Dimensions(),
	}
	if idx := s.current.Load(); idx != nil {
		st.Ready = true
		st.Chunks = idx.Len()
		st.Documents = int64(len(idx.DocumentIDs()))
	}
	if size, err := storage.DiskUsageBytes(s.store.Path()); err == nil {
		st.IndexSizeBytes = size
	}
	if s.keyword != nil {
		if n, err := s.keyword.DocCount(); err == nil {
			st.KeywordDocs = n
		}
	}
	if s.catalog != nil {
		if n, err := s.catalog.CountDocuments(ctx, models.DocumentIndexed); err == nil && n > 0 {
			st.Documents = n
		}
		if at, err := s.catalog.LastIndexedAt(ctx); err == nil {
			st.LastIndexedAt = at
		}
	}
	return st, nil
}

// Documents lists ingested documents from the catalog, or from the index when no catalog is set.
func (s *IndexService) Documents(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.catalog != nil {
		return s.catalog.ListDocuments(ctx, offset, limit)
	}
	idx, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	files := make(map[string]string)
	for _, e := range idx.Entries() {
		counts[e.DocumentID]++
		files[e.DocumentID] = e.SourceFilename()
	}
	ids := idx.DocumentIDs()
	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	docs := make([]*models.Document, len(ids))
	for i, id := range ids {
		docs[i] = &models.Document{
			ID:         id,
			Filename:   files[id],
			ChunkCount: counts[id],
			Status:     models.DocumentIndexed,
		}
	}
	return docs, nil
}

// Shutdown waits for a running index operation, then releases the catalog, the keyword index
// and registered closers. Every published index is already persisted.
func (s *IndexService) Shutdown(ctx context.Context) error {
	locked := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-ctx.Done():
		go func() {
			<-locked
			s.mu.Unlock()
		}()
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}

	var errs []error
	if s.keyword != nil {
		if err := s.keyword.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close keyword index: %w", err))
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("index service stopped")
	return errors.Join(errs...)
}

func (s *IndexService) snapshot() (*vector.MemoryIndex, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	idx := s.current.Load()
	if idx == nil {
		return nil, models.ErrNotReady
	}
	return idx, nil
}

func logReport(logger *zap.Logger, op string, r *models.IndexReport) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.Int("indexed", len(r.Indexed)),
		zap.Int("failed", len(r.Failed)),
		zap.Int("embedded", r.ChunksEmbedded),
		zap.Int("skipped", r.ChunksSkipped),
		zap.Int("size", r.IndexSize),
	}
	for _, f := range r.Failed {
		logger.Warn("file not indexed", zap.String("path", f.Path), zap.Error(f.Err))
	}
	logger.Info("index updated", fields...)
}
