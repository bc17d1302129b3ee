package extractors

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

// PDFExtractor pulls the text layer out of PDF uploads. Scanned PDFs without
// a text layer come back empty and are rejected by the registry.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads the whole document's plain text.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("cannot open PDF: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("cannot extract PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("cannot read PDF text: %w", err)
	}
	return buf.String(), nil
}

var _ interfaces.Extractor = (*PDFExtractor)(nil)
