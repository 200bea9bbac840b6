package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/manualqa/internal/embedding"
	"github.com/hyperjump/manualqa/internal/indexer"
	"github.com/hyperjump/manualqa/internal/indexstore"
	"github.com/hyperjump/manualqa/internal/keyword"
	"github.com/hyperjump/manualqa/internal/llm"
	"github.com/hyperjump/manualqa/internal/loader"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/pdftest"
	"github.com/hyperjump/manualqa/internal/query"
	"github.com/hyperjump/manualqa/internal/storage"
	"github.com/hyperjump/manualqa/internal/vector"
)

const dims = 32

// gatedEmbedder counts batch texts and, when gate is set, blocks EmbedBatch until it is closed.
// Embed (used for questions) never blocks.
type gatedEmbedder struct {
	embedding.Embedder
	texts   atomic.Int64
	gate    chan struct{}
	entered chan struct{}
	closed  atomic.Bool
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.gate != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-g.gate
	}
	g.texts.Add(int64(len(texts)))
	return g.Embedder.EmbedBatch(ctx, texts)
}

func (g *gatedEmbedder) Close() error {
	g.closed.Store(true)
	return nil
}

type env struct {
	corpus   string
	store    *indexstore.FileStore
	embedder *gatedEmbedder
	svc      *IndexService
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		corpus:   filepath.Join(dir, "Documents"),
		store:    indexstore.NewFileStore(filepath.Join(dir, "index.bin")),
		embedder: &gatedEmbedder{Embedder: embedding.NewHashEmbedder(dims)},
	}
	e.svc = e.newService(t, opts...)
	return e
}

func (e *env) newService(t *testing.T, opts ...Option) *IndexService {
	t.Helper()
	chunker, err := indexer.NewChunker(20, 5)
	require.NoError(t, err)
	ix := indexer.NewIndexer(e.corpus, loader.NewPDFLoader(), chunker, e.embedder, e.store)
	engine := query.NewEngine(e.embedder, llm.NewExtractiveGenerator())
	return New(ix, engine, e.store, append(opts, WithCloser(e.embedder))...)
}

func TestQuery_BeforeInitIsNotReady(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Query(context.Background(), "anything?")
	assert.ErrorIs(t, err, models.ErrNotReady)
	_, err = e.svc.Search(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, models.ErrNotReady)
	assert.False(t, e.svc.Ready())
}

func TestInit_BuildsFromCorpusThenLoadsPersisted(t *testing.T) {
	e := newEnv(t)
	pdftest.Write(t, mkdir(t, e.corpus), "pump.pdf", "The torque limit for the flange bolts is 45 Nm.")
	ctx := context.Background()

	require.NoError(t, e.svc.Init(ctx))
	require.True(t, e.svc.Ready())
	assert.Equal(t, 1, e.svc.Snapshot().Len())
	assert.True(t, e.store.Exists())
	embedded := e.embedder.texts.Load()

	// A second service over the same artifact loads instead of rebuilding.
	again := e.newService(t)
	require.NoError(t, again.Init(ctx))
	assert.Equal(t, 1, again.Snapshot().Len())
	assert.Equal(t, embedded, e.embedder.texts.Load())

	res, err := again.Query(ctx, "What is the torque limit?")
	require.NoError(t, err)
	assert.Contains(t, res.Answer, "45 Nm")
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "pump.pdf", res.Citations[0].SourceFilename)
}

func TestInit_EmptyCorpusIsReadyButEmpty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	assert.True(t, e.svc.Ready())
	_, err := e.svc.Query(ctx, "torque?")
	assert.ErrorIs(t, err, models.ErrEmptyIndex)
}

func TestInit_DimensionMismatchIsFatal(t *testing.T) {
	e := newEnv(t)
	other, err := vector.NewMemoryIndex(dims * 2)
	require.NoError(t, err)
	require.NoError(t, e.store.Save(context.Background(), other))

	err = e.svc.Init(context.Background())
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.False(t, e.svc.Ready())
}

func TestUpdate_BeforeInitInitializes(t *testing.T) {
	e := newEnv(t)
	dir := mkdir(t, e.corpus)
	pdftest.Write(t, dir, "A.pdf", pdftest.Words(10))
	b := pdftest.Write(t, dir, "B.pdf", pdftest.Words(10))
	ctx := context.Background()

	report, err := e.svc.Update(ctx, []string{b})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.pdf"}, report.Indexed)
	// Init built A and B from the corpus; the update re-submitted B without embedding.
	assert.Equal(t, 2, e.svc.Snapshot().Len())
	assert.Equal(t, 0, report.ChunksEmbedded)
}

func TestUpdate_ResubmissionMakesNoEmbeddingCalls(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	path := pdftest.Write(t, mkdir(t, e.corpus), "A.pdf", pdftest.Words(50))

	_, err := e.svc.Update(ctx, []string{path})
	require.NoError(t, err)
	size := e.svc.Snapshot().Len()
	calls := e.embedder.texts.Load()

	report, err := e.svc.Update(ctx, []string{path})
	require.NoError(t, err)
	assert.Equal(t, size, e.svc.Snapshot().Len())
	assert.Equal(t, calls, e.embedder.texts.Load())
	assert.Equal(t, size, report.ChunksSkipped)
}

func TestUpdateCorpus_PicksUpNewFilesOnly(t *testing.T) {
	e := newEnv(t)
	dir := mkdir(t, e.corpus)
	pdftest.Write(t, dir, "A.pdf", pdftest.Words(10))
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	before := e.embedder.texts.Load()

	pdftest.Write(t, dir, "B.pdf", pdftest.Words(10))
	report, err := e.svc.UpdateCorpus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, report.Indexed)
	assert.Equal(t, 1, report.ChunksEmbedded)
	assert.Equal(t, 1, report.ChunksSkipped)
	assert.Equal(t, before+1, e.embedder.texts.Load())
	assert.Equal(t, 2, e.svc.Snapshot().Len())
}

func TestUpdate_ConcurrentUpdatesAreSerialized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	dir := mkdir(t, e.corpus)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		path := pdftest.Write(t, dir, fmt.Sprintf("doc%d.pdf", i), fmt.Sprintf("document %d text", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Update(ctx, []string{path})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, e.svc.Snapshot().Len())

	persisted, err := e.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, persisted.Len(), "a persist clobbered another update")
}

func TestQuery_DoesNotWaitForRunningUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dir := mkdir(t, e.corpus)
	pdftest.Write(t, dir, "pump.pdf", "The torque limit is 45 Nm.")
	require.NoError(t, e.svc.Init(ctx))
	before := e.svc.Snapshot()

	e.embedder.gate = make(chan struct{})
	e.embedder.entered = make(chan struct{}, 1)
	path := pdftest.Write(t, dir, "lathe.pdf", "Lubricate the spindle weekly.")
	done := make(chan error, 1)
	go func() {
		_, err := e.svc.Update(ctx, []string{path})
		done <- err
	}()
	<-e.embedder.entered

	qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := e.svc.Query(qctx, "torque limit?")
	require.NoError(t, err)
	assert.Len(t, res.Citations, 1, "query must read the pre-update snapshot")
	assert.Same(t, before, e.svc.Snapshot())

	close(e.embedder.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, e.svc.Snapshot().Len())
	assert.Equal(t, 1, before.Len(), "published snapshot was mutated")
}

func TestSearch_FusesKeywordAndSemantic(t *testing.T) {
	dir := t.TempDir()
	kw, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	require.NoError(t, err)
	e := newEnv(t, WithKeywordIndex(kw))
	corpus := mkdir(t, e.corpus)
	pdftest.Write(t, corpus, "pump.pdf", "The torque limit for the flange bolts is 45 Nm.")
	pdftest.Write(t, corpus, "lathe.pdf", "Lubricate the spindle bearings weekly.")
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))

	hits, err := e.svc.Search(ctx, "torque", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "pump.pdf", hits[0].SourceFilename)
	assert.Greater(t, hits[0].KeywordScore, 0.0)

	_, err = e.svc.Search(ctx, "  ", 5)
	assert.ErrorIs(t, err, models.ErrEmptyQuestion)
	require.NoError(t, e.svc.Shutdown(ctx))
}

func TestInit_ReconcilesEmptyKeywordIndex(t *testing.T) {
	e := newEnv(t)
	pdftest.Write(t, mkdir(t, e.corpus), "A.pdf", pdftest.Words(50))
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))

	kw, err := keyword.NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	require.NoError(t, err)
	withKeyword := e.newService(t, WithKeywordIndex(kw))
	require.NoError(t, withKeyword.Init(ctx))
	n, err := kw.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, withKeyword.Snapshot().Len(), n)
	require.NoError(t, withKeyword.Shutdown(ctx))
}

func TestStatusAndDocuments(t *testing.T) {
	dir := t.TempDir()
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	e := newEnv(t, WithCatalog(catalog))
	ctx := context.Background()

	st, err := e.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Ready)
	assert.Equal(t, dims, st.Dimensions)

	corpus := mkdir(t, e.corpus)
	pdftest.Write(t, corpus, "A.pdf", pdftest.Words(30))
	pdftest.Write(t, corpus, "B.pdf", pdftest.Words(5))
	require.NoError(t, e.svc.Init(ctx))

	st, err = e.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Ready)
	assert.Equal(t, e.svc.Snapshot().Len(), st.Chunks)
	assert.EqualValues(t, 2, st.Documents)
	assert.Greater(t, st.IndexSizeBytes, int64(0))
	assert.False(t, st.LastIndexedAt.IsZero())

	docs, err := e.svc.Documents(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.NoError(t, e.svc.Shutdown(ctx))
}

func TestDocuments_WithoutCatalogUsesIndex(t *testing.T) {
	e := newEnv(t)
	corpus := mkdir(t, e.corpus)
	pdftest.Write(t, corpus, "A.pdf", pdftest.Words(30))
	pdftest.Write(t, corpus, "B.pdf", pdftest.Words(5))
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))

	docs, err := e.svc.Documents(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0].ID)
	assert.Equal(t, "B.pdf", docs[0].Filename)
	assert.Equal(t, 1, docs[0].ChunkCount)
}

func TestShutdown(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	require.NoError(t, e.svc.Shutdown(ctx))
	assert.True(t, e.embedder.closed.Load())
	require.NoError(t, e.svc.Shutdown(ctx), "second shutdown")

	_, err := e.svc.Query(ctx, "q?")
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = e.svc.Update(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUpdate_WaitingForShutdownReturnsClosed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	before := e.svc.Snapshot()
	embedded := e.embedder.texts.Load()
	path := pdftest.Write(t, mkdir(t, e.corpus), "A.pdf", "some text")

	// Hold the lock the way Shutdown does while the update queues behind it.
	e.svc.mu.Lock()
	done := make(chan error, 2)
	go func() {
		_, err := e.svc.Update(ctx, []string{path})
		done <- err
	}()
	go func() {
		_, err := e.svc.Rebuild(ctx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	e.svc.closed.Store(true)
	e.svc.mu.Unlock()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, <-done, ErrClosed)
	}
	assert.Same(t, before, e.svc.Snapshot())
	assert.Equal(t, embedded, e.embedder.texts.Load())
}

func TestShutdown_WaitsForRunningUpdate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.svc.Init(ctx))
	e.embedder.gate = make(chan struct{})
	e.embedder.entered = make(chan struct{}, 1)
	path := pdftest.Write(t, mkdir(t, e.corpus), "A.pdf", "some text")
	done := make(chan error, 1)
	go func() {
		_, err := e.svc.Update(ctx, []string{path})
		done <- err
	}()
	<-e.embedder.entered

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.svc.Shutdown(short), context.DeadlineExceeded)

	close(e.embedder.gate)
	require.NoError(t, <-done)
	require.NoError(t, e.svc.Shutdown(ctx))
	persisted, err := e.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.Len())
}

func mkdir(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}
