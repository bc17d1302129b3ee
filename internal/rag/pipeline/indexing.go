package pipeline

import (
	"context"
	"fmt"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// IndexingPipeline turns an uploaded transcript into stored, searchable
// chunks. The stages are exposed as separate methods so the processing
// state machine can record, retry and resume each one on its own.
type IndexingPipeline struct {
	extractor   interfaces.Extractor
	splitter    interfaces.Splitter
	embedder    interfaces.EmbeddingModel
	chunkStore  interfaces.ChunkStore
	vectorStore interfaces.VectorStore
	log         *logger.Logger
}

// NewIndexingPipeline creates an IndexingPipeline from its stage components.
func NewIndexingPipeline(
	extractor interfaces.Extractor,
	splitter interfaces.Splitter,
	embedder interfaces.EmbeddingModel,
	chunkStore interfaces.ChunkStore,
	vectorStore interfaces.VectorStore,
	log *logger.Logger,
) *IndexingPipeline {
	return &IndexingPipeline{
		extractor:   extractor,
		splitter:    splitter,
		embedder:    embedder,
		chunkStore:  chunkStore,
		vectorStore: vectorStore,
		log:         log,
	}
}

// Extract converts uploaded bytes into plain text. Sentinel errors from the
// extractor pass through unchanged so callers can tell permanent failures
// from transient ones.
func (p *IndexingPipeline) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	return p.extractor.Extract(ctx, data, contentType)
}

// Chunk splits text hierarchically, stamps document ownership on every
// passage and replaces the document's stored chunk rows.
func (p *IndexingPipeline) Chunk(ctx context.Context, documentID, userID, source, text string) ([]*schema.Passage, error) {
	// 1. Split the text into parent and child passages.
	passages, err := p.splitter.Split(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to split document %s: %w", documentID, err)
	}

	// 2. Stamp ownership so every row and vector can be filtered by user.
	for _, passage := range passages {
		passage.DocumentID = documentID
		passage.UserID = userID
		passage.Source = source
	}

	// 3. Drop the document's old vectors first. They reference chunk ids
	// that are about to disappear, and retrieval must never serve them.
	if err := p.vectorStore.DeleteByDocument(ctx, userID, documentID); err != nil {
		return nil, fmt.Errorf("failed to drop stale vectors for document %s: %w", documentID, err)
	}

	// 4. Replace whatever chunk rows an earlier run may have written.
	if err := p.chunkStore.Replace(ctx, documentID, passages); err != nil {
		return nil, fmt.Errorf("failed to store chunks for document %s: %w", documentID, err)
	}

	p.log.WithUser(userID).Info(fmt.Sprintf("Stored %d chunks for document %s", len(passages), documentID))
	return passages, nil
}

// Chunks loads a document's stored chunk rows, used when resuming a run
// whose chunking stage finished in an earlier attempt.
func (p *IndexingPipeline) Chunks(ctx context.Context, documentID string) ([]*schema.Passage, error) {
	return p.chunkStore.ListByDocument(ctx, documentID)
}

// Embed computes vectors for the passages and upserts them into the vector
// store. Parents and children are both embedded so retrieval can match at
// either granularity.
func (p *IndexingPipeline) Embed(ctx context.Context, passages []*schema.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	// 1. Embed every passage text in document order.
	texts := make([]string, len(passages))
	for i, passage := range passages {
		texts[i] = passage.Content
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("embedding count mismatch: got %d vectors for %d passages", len(vectors), len(passages))
	}

	// 2. Attach the vectors and upsert. The passage id is the primary key,
	// so rerunning the stage overwrites instead of duplicating.
	for i, passage := range passages {
		passage.Embedding = vectors[i]
	}
	if err := p.vectorStore.Upsert(ctx, passages); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}

	p.log.Info(fmt.Sprintf("Upserted %d vectors", len(passages)))
	return nil
}

// Purge removes every chunk and vector of a document. Both deletes are
// idempotent, so Purge may be called again after a partial failure.
func (p *IndexingPipeline) Purge(ctx context.Context, userID, documentID string) error {
	if err := p.vectorStore.DeleteByDocument(ctx, userID, documentID); err != nil {
		return fmt.Errorf("failed to delete vectors for document %s: %w", documentID, err)
	}
	if err := p.chunkStore.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}
