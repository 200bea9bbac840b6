package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/fileid"
	"github.com/hyperjump/manualqa/internal/models"
)

var disableConfigDir sync.Once

// PDFLoader extracts text from PDF files, one raw document per file.
type PDFLoader struct {
	logger   *zap.Logger
	validate bool
}

// Option configures a PDFLoader.
type Option func(*PDFLoader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *PDFLoader) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithValidation runs a structural PDF validation before text extraction.
func WithValidation(enabled bool) Option {
	return func(p *PDFLoader) {
		p.validate = enabled
	}
}

// NewPDFLoader returns a loader for PDF files.
func NewPDFLoader(opts ...Option) *PDFLoader {
	l := &PDFLoader{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every path. Failures are collected per file and never abort the batch.
func (l *PDFLoader) Load(ctx context.Context, paths []string) ([]models.RawDocument, []models.FileError) {
	var docs []models.RawDocument
	var failed []models.FileError
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			failed = append(failed, models.FileError{Path: path, Err: err})
			continue
		}
		doc, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("failed to load file", zap.String("path", path), zap.Error(err))
			failed = append(failed, models.FileError{Path: path, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, failed
}

// LoadFile reads one PDF into a raw document.
func (l *PDFLoader) LoadFile(path string) (models.RawDocument, error) {
	if !IsSupported(path) {
		return models.RawDocument{}, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return models.RawDocument{}, fmt.Errorf("read file: %w", err)
	}
	pages := 0
	if l.validate {
		if pages, err = Validate(bytes.NewReader(content)); err != nil {
			return models.RawDocument{}, err
		}
	}
	text, numPages, err := extractPDF(content)
	if err != nil {
		return models.RawDocument{}, fmt.Errorf("%w: %v", models.ErrUnsupportedFormat, err)
	}
	if pages == 0 {
		pages = numPages
	}
	text = Clean(text)
	if text == "" {
		l.logger.Warn("no extractable text", zap.String("path", path))
	}
	name := filepath.Base(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return models.RawDocument{
		ID:             fileid.DocumentID(path),
		SourceFilename: name,
		Path:           abs,
		Text:           text,
		Metadata: map[string]string{
			models.MetaFileName:  name,
			models.MetaFilePath:  abs,
			models.MetaPageCount: strconv.Itoa(pages),
		},
	}, nil
}

// Validate checks PDF structure in relaxed mode and returns the page count.
// Invalid input fails with models.ErrUnsupportedFormat.
func Validate(rs io.ReadSeeker) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(rs, conf); err != nil {
		return 0, fmt.Errorf("%w: invalid pdf: %v", models.ErrUnsupportedFormat, err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind pdf: %w", err)
	}
	n, err := api.PageCount(rs, conf)
	if err != nil {
		return 0, fmt.Errorf("%w: page count: %v", models.ErrUnsupportedFormat, err)
	}
	return n, nil
}

// extractPDF returns the plain text of every page, pages separated by newlines.
// The parser panics on some malformed files, so panics become errors.
func extractPDF(content []byte) (text string, numPages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages = r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(pageText)
		buf.WriteByte('\n')
	}
	return buf.String(), numPages, nil
}
