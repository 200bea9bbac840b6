package loader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/manualqa/internal/models"
	"github.com/hyperjump/manualqa/internal/pdftest"
)

func TestPDFLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, dir, "Pump Manual.pdf",
		"Section 1 torque limit: 50 Nm for the main flange",
		"Section 2 (inlet) pressure 4 bar")
	doc, err := NewPDFLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.ID != "Pump Manual" {
		t.Errorf("ID = %q", doc.ID)
	}
	if doc.SourceFilename != "Pump Manual.pdf" || doc.Metadata[models.MetaFileName] != "Pump Manual.pdf" {
		t.Errorf("filename metadata = %q / %q", doc.SourceFilename, doc.Metadata[models.MetaFileName])
	}
	if doc.Metadata[models.MetaPageCount] != "2" {
		t.Errorf("page_count = %q", doc.Metadata[models.MetaPageCount])
	}
	for _, want := range []string{"torque limit: 50 Nm", "(inlet) pressure 4 bar"} {
		if !strings.Contains(doc.Text, want) {
			t.Errorf("text %q missing %q", doc.Text, want)
		}
	}
}

func TestPDFLoader_WordCountPreserved(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "A.pdf", pdftest.Words(200))
	doc, err := NewPDFLoader().LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Fields(doc.Text); len(got) != 200 || got[0] != "w0" || got[199] != "w199" {
		t.Errorf("got %d words, first/last %v", len(got), []string{got[0], got[len(got)-1]})
	}
}

func TestPDFLoader_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := filepath.Join(dir, "fake.pdf")
	if err := os.WriteFile(fake, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewPDFLoader()
	for _, path := range []string{txt, fake} {
		if _, err := l.LoadFile(path); !errors.Is(err, models.ErrUnsupportedFormat) {
			t.Errorf("LoadFile(%s) error = %v, want ErrUnsupportedFormat", filepath.Base(path), err)
		}
	}
}

func TestPDFLoader_LoadReportsPerFileErrors(t *testing.T) {
	dir := t.TempDir()
	good1 := pdftest.Write(t, dir, "A.pdf", "alpha manual")
	bad := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(bad, []byte("%PDF-1.4 garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	good2 := pdftest.Write(t, dir, "B.pdf", "beta manual")
	missing := filepath.Join(dir, "missing.pdf")

	docs, failed := NewPDFLoader().Load(context.Background(), []string{good1, bad, good2, missing})
	if len(docs) != 2 || docs[0].ID != "A" || docs[1].ID != "B" {
		t.Errorf("docs = %+v", docs)
	}
	if len(failed) != 2 || failed[0].Path != bad || failed[1].Path != missing {
		t.Errorf("failed = %+v", failed)
	}
}

func TestValidate(t *testing.T) {
	n, err := Validate(bytes.NewReader(pdftest.Build("one", "two", "three")))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if n != 3 {
		t.Errorf("pages = %d, want 3", n)
	}
	if _, err := Validate(bytes.NewReader([]byte("not a pdf"))); !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestPDFLoader_WithValidation(t *testing.T) {
	path := pdftest.Write(t, t.TempDir(), "A.pdf", "validated text")
	doc, err := NewPDFLoader(WithValidation(true)).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.Text != "validated text" {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestListCorpus(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "A.PDF", "notes.txt", ".hidden.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}
	paths, err := ListCorpus(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "A.PDF"), filepath.Join(dir, "b.pdf")}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("ListCorpus = %v, want %v", paths, want)
	}
	paths, err = ListCorpus(filepath.Join(dir, "missing"))
	if err != nil || len(paths) != 0 {
		t.Errorf("missing dir: %v, %v", paths, err)
	}
}

func TestClean(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  a  b  ", "a b"},
		{"line1\n\n\tline2", "line1 line2"},
		{"bell\x07char", "bellchar"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
