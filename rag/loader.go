package rag

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// Kind is the file type of an upload.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
)

// KindOf returns the upload kind for filename, judged by its extension.
func KindOf(filename string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".txt", ".md", ".markdown":
		return KindText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(filename))
}

// LoadText extracts the plain text of an upload. PDF pages are joined with a
// "--- Sayfa N ---" marker in front of each page.
func LoadText(ctx context.Context, filename string, r io.ReaderAt, size int64) (string, error) {
	kind, err := KindOf(filename)
	if err != nil {
		return "", err
	}

	var loader documentloaders.Loader
	switch kind {
	case KindPDF:
		loader = documentloaders.NewPDF(r, size)
	default:
		loader = documentloaders.NewText(io.NewSectionReader(r, 0, size))
	}

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", filename, err)
	}
	if kind == KindPDF {
		return joinPages(docs), nil
	}
	return joinDocuments(docs), nil
}

func joinPages(docs []schema.Document) string {
	var b strings.Builder
	for i, d := range docs {
		page := strings.TrimSpace(d.PageContent)
		if page == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Sayfa %d ---\n%s", i+1, page)
	}
	return strings.TrimSpace(b.String())
}

func joinDocuments(docs []schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if s := strings.TrimSpace(d.PageContent); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
