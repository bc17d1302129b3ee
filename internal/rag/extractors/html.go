package extractors

import (
	"context"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

// HTMLExtractor converts HTML to Markdown rather than stripping tags, so
// headings survive and the splitter can use them as topics.
type HTMLExtractor struct{}

// NewHTMLExtractor creates a new HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	markdown, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("cannot convert HTML: %w", err)
	}
	return markdown, nil
}

var _ interfaces.Extractor = (*HTMLExtractor)(nil)
