package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/manualqa/internal/embedding"
	"github.com/hyperjump/manualqa/internal/fileid"
	"github.com/hyperjump/manualqa/internal/indexstore"
	"github.com/hyperjump/manualqa/internal/keyword"
	"github.com/hyperjump/manualqa/internal/loader"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/storage"
	"github.com/hyperjump/manualqa/internal/vector"
	"github.com/hyperjump/manualqa/internal/workerpool"
)

// DefaultEmbedBatchSize is the number of chunk texts sent to the embedder per call.
const DefaultEmbedBatchSize = 32

// Indexer builds and updates vector indexes. It holds no index itself: callers pass the base
// index in and receive the new one, so publishing stays the caller's decision.
type Indexer struct {
	corpusDir string
	loader    loader.Loader
	chunker   *Chunker
	embedder  embedding.Embedder
	store     indexstore.Store
	pool      *workerpool.Pool
	catalog   storage.Catalog
	keyword   keyword.KeywordIndex
	batchSize int
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithPool runs embedding calls on p instead of a private single-slot pool.
func WithPool(p *workerpool.Pool) IndexerOption {
	return func(idx *Indexer) {
		if p != nil {
			idx.pool = p
		}
	}
}

// WithCatalog records document outcomes in c after every persisted batch.
func WithCatalog(c storage.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// WithKeywordIndex mirrors indexed chunks into k after every persisted batch.
func WithKeywordIndex(k keyword.KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keyword = k }
}

// WithEmbedBatchSize sets how many texts go into one embedder call.
func WithEmbedBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer over the PDFs in corpusDir.
func NewIndexer(
	corpusDir string,
	l loader.Loader,
	chunker *Chunker,
	embedder embedding.Embedder,
	store indexstore.Store,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		corpusDir: corpusDir,
		loader:    l,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		pool:      workerpool.New(1),
		batchSize: DefaultEmbedBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// CorpusDir returns the directory Build reads from.
func (idx *Indexer) CorpusDir() string {
	return idx.corpusDir
}

// Dimensions returns the vector dimension of indexes built by this indexer.
func (idx *Indexer) Dimensions() int {
	return idx.embedder.Dimensions()
}

// Build indexes every PDF in the corpus directory into a fresh index and persists it.
// An empty corpus yields an empty persisted index.
func (idx *Indexer) Build(ctx context.Context) (*vector.MemoryIndex, *models.IndexReport, error) {
	paths, err := loader.ListCorpus(idx.corpusDir)
	if err != nil {
		return nil, nil, err
	}
	next, err := vector.NewMemoryIndex(idx.Dimensions())
	if err != nil {
		return nil, nil, fmt.Errorf("new index: %w", err)
	}
	idx.logger.Info("building index", zap.String("corpus", idx.corpusDir), zap.Int("files", len(paths)))
	return idx.apply(ctx, next, paths)
}

// Update loads exactly paths and upserts their chunks into a copy of base. Only chunks that are
// new or whose text changed are embedded. base is never modified; on error nothing is persisted.
func (idx *Indexer) Update(ctx context.Context, base *vector.MemoryIndex, paths []string) (*vector.MemoryIndex, *models.IndexReport, error) {
	var next *vector.MemoryIndex
	if base == nil {
		var err error
		if next, err = vector.NewMemoryIndex(idx.Dimensions()); err != nil {
			return nil, nil, fmt.Errorf("new index: %w", err)
		}
	} else {
		if base.Dimensions() != idx.Dimensions() {
			return nil, nil, &models.DimensionMismatchError{Want: idx.Dimensions(), Got: base.Dimensions()}
		}
		next = base.Clone()
	}
	idx.logger.Debug("updating index", zap.Strings("paths", paths), zap.Int("base_chunks", next.Len()))
	return idx.apply(ctx, next, paths)
}

// apply loads, chunks and embeds paths into next, persists it and notifies the sinks.
func (idx *Indexer) apply(ctx context.Context, next *vector.MemoryIndex, paths []string) (*vector.MemoryIndex, *models.IndexReport, error) {
	start := time.Now()
	report := &models.IndexReport{}

	docs, failed := idx.loader.Load(ctx, paths)
	report.Failed = failed
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var all, pending []models.Chunk
	chunkCounts := make(map[string]int, len(docs))
	for _, doc := range docs {
		chunks := idx.chunker.ChunkDocument(doc)
		chunkCounts[doc.ID] = len(chunks)
		for _, c := range chunks {
			all = append(all, c)
			if existing, ok := next.Get(c.ID); ok && existing.Text == c.Text {
				continue
			}
			pending = append(pending, c)
		}
		report.Indexed = append(report.Indexed, doc.SourceFilename)
	}

	vectors, err := idx.embed(ctx, pending)
	if err != nil {
		return nil, nil, err
	}
	for i, c := range pending {
		if err := next.Insert(ctx, models.EmbeddedChunk{Chunk: c, Vector: vectors[i]}); err != nil {
			return nil, nil, fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := idx.store.Save(ctx, next); err != nil {
		return nil, nil, fmt.Errorf("persist index: %w", err)
	}

	report.ChunksEmbedded = len(pending)
	report.ChunksSkipped = len(all) - len(pending)
	report.IndexSize = next.Len()
	report.Duration = time.Since(start)

	idx.notify(ctx, docs, chunkCounts, failed, all)
	idx.logger.Info("index persisted",
		zap.Int("files", len(docs)),
		zap.Int("failed", len(failed)),
		zap.Int("embedded", report.ChunksEmbedded),
		zap.Int("skipped", report.ChunksSkipped),
		zap.Int("size", report.IndexSize),
		zap.Duration("took", report.Duration))
	return next, report, nil
}

// embed returns one vector per chunk, in order. Batches run concurrently on the worker pool;
// the first failure cancels the rest and fails the whole call.
func (idx *Indexer) embed(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	if len(chunks) == 0 {
		return vectors, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(chunks); lo += idx.batchSize {
		hi := min(lo+idx.batchSize, len(chunks))
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Text)
		}
		g.Go(func() error {
			out, err := workerpool.Do(gctx, idx.pool, func(ctx context.Context) ([][]float32, error) {
				return idx.embedder.EmbedBatch(ctx, texts)
			})
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", lo, hi, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", lo, hi, len(out))
			}
			copy(vectors[lo:hi], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// notify updates the catalog and keyword index. Failures are logged; the vector index is already durable.
func (idx *Indexer) notify(ctx context.Context, docs []models.RawDocument, chunkCounts map[string]int, failed []models.FileError, chunks []models.Chunk) {
	if idx.catalog != nil {
		now := time.Now().UTC()
		for _, doc := range docs {
			row := &models.Document{
				ID:         doc.ID,
				Filename:   doc.SourceFilename,
				Path:       doc.Path,
				SizeBytes:  fileSize(doc.Path),
				ChunkCount: chunkCounts[doc.ID],
				Status:     models.DocumentIndexed,
				IndexedAt:  now,
			}
			row.PageCount, _ = strconv.Atoi(doc.Metadata[models.MetaPageCount])
			if err := idx.catalog.UpsertDocument(ctx, row); err != nil {
				idx.logger.Warn("catalog update failed", zap.String("document", doc.ID), zap.Error(err))
			}
		}
		for _, f := range failed {
			row := &models.Document{
				ID:        fileid.DocumentID(f.Path),
				Filename:  filepath.Base(f.Path),
				Path:      f.Path,
				SizeBytes: fileSize(f.Path),
				Status:    models.DocumentFailed,
				Error:     f.Err.Error(),
				IndexedAt: now,
			}
			if err := idx.catalog.UpsertDocument(ctx, row); err != nil {
				idx.logger.Warn("catalog update failed", zap.String("path", f.Path), zap.Error(err))
			}
		}
	}
	if idx.keyword != nil && len(chunks) > 0 {
		if err := idx.keyword.Index(ctx, chunks); err != nil {
			idx.logger.Warn("keyword index update failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		}
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
