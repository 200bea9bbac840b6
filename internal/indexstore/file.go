package indexstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/vector"
)

// FileStore keeps the index in one file and replaces it by write-to-temp then rename.
type FileStore struct {
	path   string
	logger *zap.Logger
	// wrap lets tests interpose on the temp file writer.
	wrap func(io.Writer) io.Writer
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore returns a store persisting to path. The parent directory is created on first save.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the artifact path.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether an artifact is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes index to a temp file in the same directory, syncs it and renames it over the artifact.
func (s *FileStore) Save(ctx context.Context, index *vector.MemoryIndex) (err error) {
	if index == nil {
		return fmt.Errorf("save index: nil index")
	}
	start := time.Now()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	var w io.Writer = tmp
	if s.wrap != nil {
		w = s.wrap(tmp)
	}
	if err = Encode(w, index); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync index file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	syncDir(dir)
	s.logger.Debug("index saved",
		zap.String("path", s.path),
		zap.Int("chunks", index.Len()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Load decodes the artifact. A missing file is models.ErrIndexNotFound.
func (s *FileStore) Load(ctx context.Context) (*vector.MemoryIndex, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrIndexNotFound
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	index, err := Decode(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	s.logger.Debug("index loaded", zap.String("path", s.path), zap.Int("chunks", index.Len()))
	return index, nil
}

// Header reads the artifact header without decoding the records.
func (s *FileStore) Header() (Header, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Header{}, models.ErrIndexNotFound
		}
		return Header{}, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	return ReadHeader(f)
}

// SizeBytes returns the artifact size, or 0 when it does not exist.
func (s *FileStore) SizeBytes() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// syncDir makes the rename durable where the platform supports directory fsync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
