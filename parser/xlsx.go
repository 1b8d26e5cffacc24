package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseXLSX renders every sheet as a markdown table under a heading
// named after the sheet.
func parseXLSX(stem string, data []byte) (*ImportedNote, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## " + sheet + "\n\n")
		for _, row := range rows {
			sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}

	return &ImportedNote{
		Title:    stem,
		Content:  strings.TrimSpace(sb.String()),
		Markdown: true,
	}, nil
}
