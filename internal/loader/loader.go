// Package loader turns source files into raw text documents.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/hyperjump/manualqa/internal/models"
)

// SupportedExtension is the only source format accepted into the corpus.
const SupportedExtension = ".pdf"

// Loader converts source files into raw documents. Files that cannot be read are reported
// individually; the remaining files are still returned.
type Loader interface {
	Load(ctx context.Context, paths []string) ([]models.RawDocument, []models.FileError)
}

// IsSupported reports whether path has a supported extension (case-insensitive).
func IsSupported(path string) bool {
	return strings.EqualFold(filepath.Ext(path), SupportedExtension)
}

// ListCorpus returns the supported files directly inside dir, sorted by name.
// A missing directory is an empty corpus.
func ListCorpus(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !IsSupported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Clean normalizes extracted text: control characters are dropped and whitespace runs collapse to one space.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}
