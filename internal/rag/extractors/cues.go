package extractors

import (
	"context"
	"regexp"
	"strings"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

// CueExtractor handles WebVTT and SRT subtitle files, the formats call
// recording tools export transcripts in. Cue timestamps and identifiers are
// dropped; only the spoken text survives, one cue per line.
type CueExtractor struct{}

// NewCueExtractor creates a new CueExtractor.
func NewCueExtractor() *CueExtractor {
	return &CueExtractor{}
}

var (
	timestampLine = regexp.MustCompile(`-->`)
	cueIndexLine  = regexp.MustCompile(`^\d+$`)
	voiceTags     = regexp.MustCompile(`<[^>]*>`)
)

func (e *CueExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var out []string
	skipBlock := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			skipBlock = false
			continue
		case skipBlock:
			continue
		case strings.HasPrefix(trimmed, "WEBVTT"):
			continue
		case strings.HasPrefix(trimmed, "NOTE"),
			strings.HasPrefix(trimmed, "STYLE"),
			strings.HasPrefix(trimmed, "REGION"):
			// Metadata blocks run until the next blank line.
			skipBlock = true
			continue
		case timestampLine.MatchString(trimmed):
			continue
		case cueIndexLine.MatchString(trimmed) && nextLineIsTimestamp(lines, i):
			continue
		}

		cleaned := strings.TrimSpace(voiceTags.ReplaceAllString(trimmed, ""))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}

	return strings.Join(out, "\n"), nil
}

func nextLineIsTimestamp(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		next := strings.TrimSpace(lines[j])
		if next == "" {
			return false
		}
		return timestampLine.MatchString(next)
	}
	return false
}

var _ interfaces.Extractor = (*CueExtractor)(nil)
