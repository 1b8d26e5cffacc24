package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts plain text from every readable page. Pages that fail
// to extract are skipped rather than failing the whole import.
func parsePDF(ctx context.Context, stem string, data []byte) (*ImportedNote, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	content := sb.String()
	if content == "" {
		return nil, fmt.Errorf("no extractable text in PDF")
	}

	return &ImportedNote{Title: stem, Content: content}, nil
}
