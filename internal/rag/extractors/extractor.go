package extractors

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

var (
	// ErrUnsupportedContentType is returned when no extractor is registered
	// for the uploaded content type. It is permanent: retrying cannot help.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrEmptyDocument is returned when extraction yields no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Registry dispatches extraction to the extractor registered for the
// normalized content type. When the content type is missing it is sniffed
// from the payload bytes.
type Registry struct {
	extractors map[string]interfaces.Extractor
}

// NewRegistry creates a Registry with all built-in extractors registered.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]interfaces.Extractor)}

	plain := NewPlainTextExtractor()
	r.Register("text/plain", plain)
	r.Register("text/markdown", plain)
	r.Register("application/pdf", NewPDFExtractor())
	r.Register("text/html", NewHTMLExtractor())
	r.Register("application/vnd.openxmlformats-officedocument.wordprocessingml.document", NewDocxExtractor())
	r.Register("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", NewXlsxExtractor())

	cues := NewCueExtractor()
	r.Register("text/vtt", cues)
	r.Register("application/x-subrip", cues)

	return r
}

// Register binds an extractor to a content type, replacing any previous one.
func (r *Registry) Register(contentType string, e interfaces.Extractor) {
	r.extractors[normalizeContentType(contentType)] = e
}

// Extract converts data to plain text using the extractor for contentType.
func (r *Registry) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(mimetype.Detect(data).String())
	}

	extractor, ok := r.extractors[ct]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContentType, ct)
	}

	text, err := extractor.Extract(ctx, data, ct)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// normalizeContentType lowercases the media type and strips parameters such
// as charset.
func normalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

var _ interfaces.Extractor = (*Registry)(nil)
