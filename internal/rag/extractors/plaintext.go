package extractors

import (
	"bytes"
	"context"
	"strings"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

// PlainTextExtractor handles text/plain and text/markdown payloads. Markdown
// is kept as-is since its heading structure helps the splitter pick topics.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a new PlainTextExtractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extract decodes the payload as UTF-8 text with normalized line endings.
func (e *PlainTextExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return text, nil
}

var _ interfaces.Extractor = (*PlainTextExtractor)(nil)
