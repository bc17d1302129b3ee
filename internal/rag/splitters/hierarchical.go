package splitters

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

const (
	defaultParentThreshold = 1500
	defaultMinChildWords   = 5

	// topicMaxLen caps topic labels so they always fit the index column.
	topicMaxLen = 200
)

// paragraphBreak matches one or more blank lines between paragraphs.
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// HierarchicalSplitter implements the Splitter interface with a two-level
// strategy: paragraphs are grouped into large "parent" chunks that keep
// surrounding context, and each parent is split into sentence-level "child"
// chunks that give the vector index precise targets. Children carry a
// ParentID back to their parent so retrieval can widen a hit to its context.
type HierarchicalSplitter struct {
	// ParentThreshold is the length, in bytes, past which a running parent
	// buffer is sealed. Every parent except the last one of a document is at
	// least this long.
	ParentThreshold int

	// MinChildWords filters out short sentences: only sentences with more
	// than this many words become child chunks.
	MinChildWords int
}

// NewHierarchicalSplitter creates a splitter with the given limits. Values
// of zero or less fall back to the package defaults.
func NewHierarchicalSplitter(parentThreshold, minChildWords int) *HierarchicalSplitter {
	if parentThreshold <= 0 {
		parentThreshold = defaultParentThreshold
	}
	if minChildWords <= 0 {
		minChildWords = defaultMinChildWords
	}
	return &HierarchicalSplitter{
		ParentThreshold: parentThreshold,
		MinChildWords:   minChildWords,
	}
}

// parentSpan is a sealed parent buffer before it becomes a Passage.
type parentSpan struct {
	content string
	topic   string
}

// Split chunks the text into parent and child passages. Passages come back
// in document order, each parent immediately followed by its children, with
// positions counted per parent for parents and per sibling set for children.
// The caller owns stamping DocumentID, UserID and Source onto the result.
func (s *HierarchicalSplitter) Split(ctx context.Context, text string) ([]*schema.Passage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("hierarchical splitter: input text is empty")
	}

	paragraphs := s.paragraphs(text)

	// Group paragraphs into parent spans. A span is sealed as soon as a
	// paragraph pushes it past ParentThreshold, labelled with the first
	// sentence of the following paragraph as a naive topic.
	var spans []parentSpan
	var buf strings.Builder
	for i, p := range paragraphs {
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
		if buf.Len() > s.ParentThreshold {
			topic := ""
			if i+1 < len(paragraphs) {
				topic = firstSentence(paragraphs[i+1])
			}
			spans = append(spans, parentSpan{content: buf.String(), topic: topic})
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		spans = append(spans, parentSpan{content: buf.String()})
	}

	// The remainder span, and a span sealed by the last paragraph, have no
	// following paragraph to take a topic from. Label them with their own
	// opening sentence instead.
	for i := range spans {
		if spans[i].topic == "" {
			spans[i].topic = firstSentence(spans[i].content)
		}
	}

	var passages []*schema.Passage
	for pos, span := range spans {
		parent := &schema.Passage{
			ID:        uuid.New().String(),
			ChunkType: schema.ChunkTypeParent,
			Content:   span.content,
			Topic:     span.topic,
			Position:  pos,
			Strategy:  schema.StrategyHierarchical,
		}
		passages = append(passages, parent)

		childPos := 0
		for _, sentence := range splitSentences(span.content) {
			if len(strings.Fields(sentence)) <= s.MinChildWords {
				continue
			}
			passages = append(passages, &schema.Passage{
				ID:        uuid.New().String(),
				ChunkType: schema.ChunkTypeChild,
				Content:   sentence,
				Topic:     span.topic,
				Position:  childPos,
				ParentID:  parent.ID,
				Strategy:  schema.StrategyHierarchical,
			})
			childPos++
		}
	}

	return passages, nil
}

// paragraphs splits the text on blank lines. A single paragraph longer than
// ParentThreshold, which subtitle-style transcripts produce when every line
// is a cue, is subdivided at sentence boundaries so it still yields multiple
// parents instead of one oversized chunk.
func (s *HierarchicalSplitter) paragraphs(text string) []string {
	var out []string
	for _, block := range paragraphBreak.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if len(block) <= s.ParentThreshold {
			out = append(out, block)
			continue
		}
		out = append(out, s.subdivide(block)...)
	}
	return out
}

// subdivide re-accumulates the sentences of an oversized paragraph into
// pieces sealed past ParentThreshold, mirroring the paragraph grouping one
// level down. A paragraph that is a single huge sentence stays whole.
func (s *HierarchicalSplitter) subdivide(paragraph string) []string {
	sentences := splitSentences(paragraph)
	if len(sentences) <= 1 {
		return []string{paragraph}
	}
	var parts []string
	var buf strings.Builder
	for _, sentence := range sentences {
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sentence)
		if buf.Len() > s.ParentThreshold {
			parts = append(parts, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		parts = append(parts, buf.String())
	}
	return parts
}

// splitSentences breaks text into sentences at terminator runes and line
// breaks. Terminator runs such as "..." or "?!" stay attached to their
// sentence.
func splitSentences(text string) []string {
	var sentences []string
	var buf strings.Builder

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			sentences = append(sentences, s)
		}
		buf.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		buf.WriteRune(r)
		if isTerminator(r) {
			for i+1 < len(runes) && isTerminator(runes[i+1]) {
				i++
				buf.WriteRune(runes[i])
			}
			flush()
		}
	}
	flush()

	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// firstSentence returns the opening sentence of a paragraph for use as a
// topic label, with markdown heading markers stripped and the length capped.
func firstSentence(paragraph string) string {
	topic := strings.TrimSpace(paragraph)
	if sentences := splitSentences(paragraph); len(sentences) > 0 {
		topic = sentences[0]
	}
	topic = strings.TrimSpace(strings.TrimLeft(topic, "#"))
	if len(topic) > topicMaxLen {
		cut := strings.ToValidUTF8(topic[:topicMaxLen], "")
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		topic = cut
	}
	return topic
}

// compile-time check to ensure HierarchicalSplitter implements the Splitter interface
var _ interfaces.Splitter = (*HierarchicalSplitter)(nil)
