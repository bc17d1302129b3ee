package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bigballadanny/dwschatbot/internal/embedding"
	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
)

const (
	defaultBatchSize   = 64
	defaultParallelism = 4
)

// Batcher adapts a provider embedding client to the pipeline's
// EmbeddingModel interface. It slices large inputs into provider-sized
// batches and runs a bounded number of batch requests concurrently, writing
// each result back into its slot so output order always matches input order.
type Batcher struct {
	model       embedding.Embedding
	batchSize   int
	parallelism int
}

// NewBatcher wraps the given embedding client. Non-positive sizes fall back
// to the package defaults.
func NewBatcher(model embedding.Embedding, batchSize, parallelism int) *Batcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Batcher{
		model:       model,
		batchSize:   batchSize,
		parallelism: parallelism,
	}
}

// Embed generates vectors for all texts. One failed batch fails the whole
// call; embedding a chunk set is all-or-nothing for the caller.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := b.model.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d): %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embed batch [%d:%d): got %d vectors", start, end, len(vectors))
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// compile-time check to ensure Batcher implements the EmbeddingModel interface
var _ interfaces.EmbeddingModel = (*Batcher)(nil)
