// Package watcher watches the corpus directory with fsnotify and feeds debounced batches of new or
// changed PDFs to the index service.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/loader"
	"github.com/hyperjump/manualqa/internal/models"
)

// DefaultDebounce is the quiet period after the last event before a batch is flushed.
const DefaultDebounce = 2 * time.Second

// Updater receives batches of changed corpus files.
type Updater interface {
	Update(ctx context.Context, paths []string) (*models.IndexReport, error)
}

// Watcher watches one corpus directory and calls Updater.Update with debounced batches.
type Watcher struct {
	dir      string
	updater  Updater
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]struct{}
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	flushWg sync.WaitGroup
	loopWg  sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period; non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for dir. It does nothing until Start.
func NewWatcher(dir string, updater Updater, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		updater:  updater,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The corpus directory is created when missing. It runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Debug("watcher starting", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	w.loopWg.Add(1)
	go w.run(w.ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.loopWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !w.accepts(ev.Name) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || info.IsDir() {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.schedule(ev.Name)
}

// accepts reports whether path is a visible PDF directly inside the corpus directory.
// Upload temp files are hidden and therefore ignored until renamed.
func (w *Watcher) accepts(path string) bool {
	if filepath.Dir(filepath.Clean(path)) != w.dir {
		return false
	}
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && loader.IsSupported(name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.fsw == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	ctx := w.ctx
	w.flushWg.Add(1)
	w.mu.Unlock()
	defer w.flushWg.Done()

	sort.Strings(paths)
	w.logger.Info("watcher updating index", zap.Strings("files", paths))
	report, err := w.updater.Update(ctx, paths)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("watcher update failed", zap.Error(err))
		}
		return
	}
	for _, f := range report.Failed {
		w.logger.Warn("watcher file failed", zap.String("path", f.Path), zap.Error(f.Err))
	}
	w.logger.Debug("watcher update done",
		zap.Strings("indexed", report.Indexed),
		zap.Int("embedded", report.ChunksEmbedded),
		zap.Int("skipped", report.ChunksSkipped))
}

// Pending returns the number of files waiting for the debounce timer.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop stops watching, drops pending files and waits for a running flush to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]struct{})
	w.cancel()
	_ = w.fsw.Close()
	w.fsw = nil
	w.mu.Unlock()
	w.loopWg.Wait()
	w.flushWg.Wait()
}
