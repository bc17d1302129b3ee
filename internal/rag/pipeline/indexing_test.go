package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigballadanny/dwschatbot/internal/rag/extractors"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/internal/rag/splitters"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/chunkstore"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/vectorstore"
)

// miscountEmbedder always returns a single vector regardless of input size.
type miscountEmbedder struct{}

func (miscountEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}

func newTestIndexing(embedder *countingEmbedder) (*IndexingPipeline, *chunkstore.InMemoryChunkStore, *vectorstore.InMemoryStore) {
	chunks := chunkstore.NewInMemoryChunkStore()
	vectors := vectorstore.NewInMemoryStore()
	p := NewIndexingPipeline(
		extractors.NewRegistry(),
		splitters.NewHierarchicalSplitter(100, 2),
		embedder,
		chunks,
		vectors,
		newTestLogger(),
	)
	return p, chunks, vectors
}

const indexingText = "The quarterly revenue grew by twelve percent over the prior year. The team closed four enterprise deals in the period.\n\n" +
	"Action items were assigned to the operations group. A follow up call is planned for the second week of March."

func TestChunkStampsOwnershipAndStoresRows(t *testing.T) {
	p, chunks, _ := newTestIndexing(&countingEmbedder{vector: []float32{0.5, 0.5}})

	passages, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", indexingText)
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	for _, passage := range passages {
		assert.Equal(t, "doc-1", passage.DocumentID)
		assert.Equal(t, "alice", passage.UserID)
		assert.Equal(t, "Call 12", passage.Source)
	}

	stored, err := chunks.ListByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, stored, len(passages))
}

func TestChunkReplacesEarlierRun(t *testing.T) {
	p, chunks, _ := newTestIndexing(&countingEmbedder{vector: []float32{0.5, 0.5}})

	_, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", indexingText)
	require.NoError(t, err)

	shorter := "A single short paragraph about one topic for the second run of processing."
	second, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", shorter)
	require.NoError(t, err)

	stored, err := chunks.ListByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, stored, len(second), "rechunking must not leave rows from the first run behind")
}

func TestChunkRejectsEmptyText(t *testing.T) {
	p, _, _ := newTestIndexing(&countingEmbedder{vector: []float32{0.5, 0.5}})

	_, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", "   \n\n  ")
	require.Error(t, err)
}

func TestEmbedUpsertsVectorsForAllPassages(t *testing.T) {
	embedder := &countingEmbedder{vector: []float32{0.5, 0.5}}
	p, _, vectors := newTestIndexing(embedder)

	passages, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", indexingText)
	require.NoError(t, err)

	require.NoError(t, p.Embed(context.Background(), passages))

	got, err := vectors.Query(context.Background(), "alice", []float32{0.5, 0.5}, 50)
	require.NoError(t, err)
	assert.Len(t, got, len(passages))
	for _, passage := range got {
		assert.Equal(t, "doc-1", passage.DocumentID)
	}
}

func TestEmbedNoPassagesIsANoOp(t *testing.T) {
	p, _, _ := newTestIndexing(&countingEmbedder{vector: []float32{0.5, 0.5}})
	assert.NoError(t, p.Embed(context.Background(), nil))
}

func TestEmbedRejectsVectorCountMismatch(t *testing.T) {
	chunks := chunkstore.NewInMemoryChunkStore()
	vectors := vectorstore.NewInMemoryStore()
	p := NewIndexingPipeline(
		extractors.NewRegistry(),
		splitters.NewHierarchicalSplitter(100, 2),
		miscountEmbedder{},
		chunks,
		vectors,
		newTestLogger(),
	)

	passages := testPassages("Call 1", "Call 2")
	err := p.Embed(context.Background(), passages)
	require.ErrorContains(t, err, "mismatch")
}

func TestRechunkDropsStaleVectors(t *testing.T) {
	embedder := &countingEmbedder{vector: []float32{0.5, 0.5}}
	p, _, vectors := newTestIndexing(embedder)

	first, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", indexingText)
	require.NoError(t, err)
	require.NoError(t, p.Embed(context.Background(), first))

	second, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12",
		"A single short paragraph about one topic for the second run of processing.")
	require.NoError(t, err)
	require.NoError(t, p.Embed(context.Background(), second))

	got, err := vectors.Query(context.Background(), "alice", []float32{0.5, 0.5}, 50)
	require.NoError(t, err)
	assert.Len(t, got, len(second), "vectors from the first run must not survive rechunking")
}

func TestPurgeRemovesChunksAndVectors(t *testing.T) {
	embedder := &countingEmbedder{vector: []float32{0.5, 0.5}}
	p, chunks, vectors := newTestIndexing(embedder)

	passages, err := p.Chunk(context.Background(), "doc-1", "alice", "Call 12", indexingText)
	require.NoError(t, err)
	require.NoError(t, p.Embed(context.Background(), passages))

	require.NoError(t, p.Purge(context.Background(), "alice", "doc-1"))

	stored, err := chunks.ListByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, stored)

	got, err := vectors.Query(context.Background(), "alice", []float32{0.5, 0.5}, 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractKeepsSentinelErrors(t *testing.T) {
	p, _, _ := newTestIndexing(&countingEmbedder{vector: []float32{0.5, 0.5}})

	t.Run("empty document", func(t *testing.T) {
		_, err := p.Extract(context.Background(), []byte("   \n  "), "text/plain")
		require.ErrorIs(t, err, extractors.ErrEmptyDocument)
	})

	t.Run("unsupported content type", func(t *testing.T) {
		_, err := p.Extract(context.Background(), []byte("hello"), "application/x-widget")
		require.ErrorIs(t, err, extractors.ErrUnsupportedContentType)
	})

	t.Run("plain text passes through", func(t *testing.T) {
		text, err := p.Extract(context.Background(), []byte("hello world"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
	})
}
