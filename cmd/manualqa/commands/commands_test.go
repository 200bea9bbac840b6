package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/embedding"
	"github.com/hyperjump/manualqa/internal/llm"
	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/pdftest"
)

const testConfig = `storage:
  corpus_dir: ./corpus
  index_path: ./data/index.mqix
  catalog_path: ./data/catalog.db
  keyword_index_path: ./data/bleve
chunking:
  size: 50
  overlap: 10
embedding:
  provider: hash
  dimensions: 64
llm:
  provider: extractive
watch:
  enabled: false
`

func writeConfig(t *testing.T, content string) (cfgPath, corpus string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	corpus = filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	return cfgPath, corpus
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "manualqa", cmd.Use)
	want := []string{"serve", "index", "add", "ask", "search", "status", "mcp", "version"}
	var got []string
	for _, c := range cmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
	for _, flag := range []string{"config", "debug"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "manualqa 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
}

func TestIndexAskStatusAdd(t *testing.T) {
	cfgPath, corpus := writeConfig(t, testConfig)
	pdftest.Write(t, corpus, "pump.pdf", "The torque limit for the flange bolts is 45 Nm. Check the seals every month.")

	out, err := run(t, "--config", cfgPath, "index", "--json")
	require.NoError(t, err, out)
	var report struct {
		Indexed        []string `json:"indexed"`
		ChunksEmbedded int      `json:"chunks_embedded"`
		IndexSize      int      `json:"index_size"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, []string{"pump.pdf"}, report.Indexed)
	assert.Equal(t, 1, report.IndexSize)
	assert.Equal(t, 0, report.ChunksEmbedded, "the first load builds the index, the corpus update then skips")

	out, err = run(t, "--config", cfgPath, "ask", "What", "is", "the", "torque", "limit?")
	require.NoError(t, err, out)
	assert.Contains(t, out, "45 Nm")
	assert.Contains(t, out, "pump.pdf")

	out, err = run(t, "--config", cfgPath, "status", "--json")
	require.NoError(t, err, out)
	var st models.IndexStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 64, st.Dimensions)

	outside := pdftest.Write(t, t.TempDir(), "valve.pdf", "Open the relief valve slowly before service.")
	out, err = run(t, "--config", cfgPath, "add", outside)
	require.NoError(t, err, out)
	assert.Contains(t, out, "+ valve.pdf")
	assert.FileExists(t, filepath.Join(corpus, "valve.pdf"))

	out, err = run(t, "--config", cfgPath, "search", "--json", "relief", "valve")
	require.NoError(t, err, out)
	assert.Contains(t, out, "valve.pdf")

	out, err = run(t, "--config", cfgPath, "index", "--rebuild")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 2 file(s)")
	assert.Contains(t, out, "2 chunk(s) embedded")
}

func TestAdd_ReportsNonPDF(t *testing.T) {
	cfgPath, corpus := writeConfig(t, testConfig)
	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("not a manual"), 0o600))

	out, err := run(t, "--config", cfgPath, "add", notes)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 0 file(s)")
	assert.Contains(t, out, "unsupported format")
	assert.NoFileExists(t, filepath.Join(corpus, "notes.txt"))
}

func TestStatus_DoesNotBuild(t *testing.T) {
	cfgPath, corpus := writeConfig(t, testConfig)
	pdftest.Write(t, corpus, "pump.pdf", "torque 45 Nm")

	out, err := run(t, "--config", cfgPath, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ready:          no")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfgPath), "data", "index.mqix"))
}

func TestInvalidConfigIsRejected(t *testing.T) {
	cfgPath, _ := writeConfig(t, "chunking:\n  size: 10\n  overlap: 20\n")
	_, err := run(t, "--config", cfgPath, "index")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestAsk_BlankQuestion(t *testing.T) {
	_, err := run(t, "ask", "   ")
	assert.ErrorIs(t, err, models.ErrEmptyQuestion)
}

func TestAsk_ViaServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"question": r.FormValue("question"),
			"answer":   "Use 45 Nm.",
			"sources":  []map[string]interface{}{{"source_filename": "pump.pdf", "excerpt": "45 Nm"}},
		})
	}))
	defer srv.Close()

	out, err := run(t, "ask", "--server", srv.URL, "--json", "torque?")
	require.NoError(t, err, out)
	var res models.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "torque?", res.Question)
	assert.Equal(t, "Use 45 Nm.", res.Answer)
	require.Len(t, res.Citations, 1)
}

func TestAsk_ViaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"index not ready"}`))
	}))
	defer srv.Close()

	_, err := run(t, "ask", "--server", srv.URL, "torque?")
	require.Error(t, err)
	assert.Equal(t, "server returned 503: index not ready", err.Error())
}

func TestCopyIntoCorpus(t *testing.T) {
	corpus := filepath.Join(t.TempDir(), "corpus")
	src := pdftest.Write(t, t.TempDir(), "a.pdf", "hello")

	dst, err := copyIntoCorpus(src, corpus)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(corpus, "a.pdf"), dst)
	entries, err := os.ReadDir(corpus)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".upload-"))

	again, err := copyIntoCorpus(dst, corpus)
	require.NoError(t, err)
	assert.Equal(t, dst, again)

	_, err = copyIntoCorpus(filepath.Join(t.TempDir(), "missing.pdf"), corpus)
	assert.Error(t, err)
}

// blockingEmbedder holds every EmbedBatch call until release is closed. Embed is never held.
type blockingEmbedder struct {
	embedding.Embedder
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.Embedder.EmbedBatch(ctx, texts)
}

func TestAssembleService_QueryDuringIndexing(t *testing.T) {
	cfgPath, corpus := writeConfig(t, testConfig+"workers:\n  size: 1\n  query_size: 1\n")
	cfg, err := (&rootOptions{configPath: cfgPath}).loadConfig()
	require.NoError(t, err)

	emb := &blockingEmbedder{
		Embedder: embedding.NewHashEmbedder(cfg.Embedding.Dimensions),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	close(emb.release)
	svc, err := assembleService(cfg, emb, llm.NewExtractiveGenerator(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	pdftest.Write(t, corpus, "pump.pdf", "The torque limit for the flange bolts is 45 Nm.")
	ctx := context.Background()
	require.NoError(t, svc.Init(ctx))

	emb.entered = make(chan struct{}, 1)
	emb.release = make(chan struct{})
	path := pdftest.Write(t, corpus, "lathe.pdf", pdftest.Words(400))
	done := make(chan error, 1)
	go func() {
		_, err := svc.Update(ctx, []string{path})
		done <- err
	}()
	<-emb.entered

	qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := svc.Query(qctx, "torque limit?")
	require.NoError(t, err, "query waited behind indexing")
	assert.Contains(t, res.Answer, "45 Nm")

	close(emb.release)
	require.NoError(t, <-done)
}
