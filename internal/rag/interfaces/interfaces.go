package interfaces

import (
	"context"

	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

// Extractor converts raw uploaded bytes into plain text based on the
// declared content type.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// Splitter splits extracted text into passages. Implementations generate
// chunk ids and parent/child links; the caller stamps document ownership.
type Splitter interface {
	Split(ctx context.Context, text string) ([]*schema.Passage, error)
}

// ChunkStore persists chunk rows keyed by their document.
type ChunkStore interface {
	// Replace deletes a document's stored chunks and writes the given set
	// in batches. A failed batch leaves the earlier batches in place; the
	// next attempt starts over from the delete.
	Replace(ctx context.Context, documentID string, passages []*schema.Passage) error
	ListByDocument(ctx context.Context, documentID string) ([]*schema.Passage, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// VectorStore stores passage vectors and answers similarity queries scoped
// to one owner.
type VectorStore interface {
	Upsert(ctx context.Context, passages []*schema.Passage) error
	Query(ctx context.Context, userID string, embedding []float32, topK int) ([]*schema.Passage, error)
	DeleteByDocument(ctx context.Context, userID, documentID string) error
}

// Reranker reorders retrieved passages before they enter the prompt.
type Reranker interface {
	Rerank(ctx context.Context, queryEmbedding []float32, passages []*schema.Passage, topK int) ([]*schema.Passage, error)
}

// EmbeddingModel turns texts into vectors, preserving input order.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// LLM generates an answer from a system instruction and a prompt.
type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
