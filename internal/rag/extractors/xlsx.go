package extractors

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

// XlsxExtractor renders each sheet of an Excel (.xlsx) upload as a Markdown
// table, one paragraph per sheet.
type XlsxExtractor struct{}

// NewXlsxExtractor creates a new XlsxExtractor.
func NewXlsxExtractor() *XlsxExtractor {
	return &XlsxExtractor{}
}

func (e *XlsxExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("cannot open xlsx: %w", err)
	}
	defer f.Close()

	var out strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			continue
		}

		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString("## " + sheetName + "\n\n")

		out.WriteString("| " + strings.Join(rows[0], " | ") + " |\n")
		out.WriteString("|" + strings.Repeat(" --- |", len(rows[0])) + "\n")
		for _, row := range rows[1:] {
			out.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}

	return out.String(), nil
}

var _ interfaces.Extractor = (*XlsxExtractor)(nil)
