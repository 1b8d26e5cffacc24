// Package parser turns uploaded files into importable notes.
package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions no parser handles.
var ErrUnsupportedFormat = errors.New("parser: unsupported file format")

// ImportedNote is a note extracted from an uploaded file.
type ImportedNote struct {
	Title    string
	Content  string
	Markdown bool
}

// Parse extracts a note from the uploaded file content, dispatching on
// the filename extension. The note title comes from the document itself
// when one can be found, otherwise from the filename.
func Parse(ctx context.Context, filename string, data []byte) (*ImportedNote, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	switch ext {
	case ".md", ".markdown":
		return parseMarkdown(stem, data), nil
	case ".txt", ".text":
		return parseText(stem, data), nil
	case ".pdf":
		return parsePDF(ctx, stem, data)
	case ".xlsx":
		return parseXLSX(stem, data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// SupportedExtensions lists the file extensions Parse accepts.
func SupportedExtensions() []string {
	return []string{".md", ".markdown", ".txt", ".text", ".pdf", ".xlsx"}
}

// titleOr returns fallback when title is blank.
func titleOr(title, fallback string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return fallback
	}
	return title
}
