package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/manualqa/internal/models"
)

type recordingUpdater struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (r *recordingUpdater) Update(_ context.Context, paths []string) (*models.IndexReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]string(nil), paths...))
	if r.err != nil {
		return nil, r.err
	}
	return &models.IndexReport{Indexed: paths}, nil
}

func (r *recordingUpdater) calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func startWatcher(t *testing.T, dir string, u Updater, debounce time.Duration) *Watcher {
	t.Helper()
	w := NewWatcher(dir, u, WithDebounce(debounce))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_BatchesPDFs(t *testing.T) {
	dir := t.TempDir()
	u := &recordingUpdater{}
	startWatcher(t, dir, u, 150*time.Millisecond)

	writeFile(t, filepath.Join(dir, "b.pdf"), "%PDF-1.4 b")
	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF-1.4 a")
	writeFile(t, filepath.Join(dir, "notes.txt"), "skip")
	writeFile(t, filepath.Join(dir, ".upload-123"), "skip")

	require.Eventually(t, func() bool { return len(u.calls()) > 0 }, 5*time.Second, 20*time.Millisecond)
	// Give a late event the chance to produce a spurious second batch.
	time.Sleep(300 * time.Millisecond)

	var seen []string
	for _, batch := range u.calls() {
		seen = append(seen, batch...)
	}
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.pdf")}, dedupe(seen))
	first := u.calls()[0]
	assert.IsIncreasing(t, first)
}

func TestWatcher_RenamedUploadIsPickedUp(t *testing.T) {
	dir := t.TempDir()
	u := &recordingUpdater{}
	startWatcher(t, dir, u, 100*time.Millisecond)

	tmp := filepath.Join(dir, ".upload-42")
	writeFile(t, tmp, "%PDF-1.4 manual")
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "manual.pdf")))

	require.Eventually(t, func() bool { return len(u.calls()) > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{filepath.Join(dir, "manual.pdf")}, u.calls()[0])
}

func TestWatcher_IgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	u := &recordingUpdater{}
	startWatcher(t, dir, u, 50*time.Millisecond)

	writeFile(t, filepath.Join(sub, "old.pdf"), "%PDF-1.4")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "new.pdf"), 0o755))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, u.calls())
}

func TestWatcher_StopDropsPending(t *testing.T) {
	dir := t.TempDir()
	u := &recordingUpdater{}
	w := NewWatcher(dir, u, WithDebounce(time.Hour))
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF-1.4")
	require.Eventually(t, func() bool { return w.Pending() == 1 }, 5*time.Second, 20*time.Millisecond)

	w.Stop()
	assert.Equal(t, 0, w.Pending())
	assert.Empty(t, u.calls())
	w.Stop()
}

func TestWatcher_UpdateErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	u := &recordingUpdater{err: errors.New("embed down")}
	startWatcher(t, dir, u, 50*time.Millisecond)

	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF-1.4")
	require.Eventually(t, func() bool { return len(u.calls()) >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	n := len(u.calls())

	writeFile(t, filepath.Join(dir, "b.pdf"), "%PDF-1.4")
	require.Eventually(t, func() bool { return len(u.calls()) > n }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_StartCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "corpus", "manuals")
	startWatcher(t, dir, &recordingUpdater{}, 0)
	assert.DirExists(t, dir)
}

func TestWatcher_Accepts(t *testing.T) {
	w := NewWatcher("/data/corpus", nil)
	tests := []struct {
		path string
		want bool
	}{
		{"/data/corpus/a.pdf", true},
		{"/data/corpus/A.PDF", true},
		{"/data/corpus/a.txt", false},
		{"/data/corpus/.upload-1", false},
		{"/data/corpus/.hidden.pdf", false},
		{"/data/corpus/sub/a.pdf", false},
		{"/data/other/a.pdf", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.accepts(tt.path), tt.path)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestWatcher_NilLoggerKeepsDefault(t *testing.T) {
	dir := t.TempDir()
	u := &recordingUpdater{err: errors.New("embed failed")}
	w := NewWatcher(dir, u, WithLogger(nil), WithDebounce(50*time.Millisecond))
	require.NotNil(t, w.logger)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	writeFile(t, filepath.Join(dir, "a.pdf"), "%PDF-1.4 a")
	require.Eventually(t, func() bool { return len(u.calls()) > 0 }, 5*time.Second, 20*time.Millisecond)
}
