package embedding

import "context"

// Embedding is the interface every embedding provider implements.
type Embedding interface {
	// Embed generates the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts. The
	// result preserves input order: vector i belongs to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
