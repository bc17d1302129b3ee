package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigballadanny/dwschatbot/internal/rag/rerankers"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/vectorstore"
)

// countingEmbedder returns the same vector for every text and counts how
// often it is called.
type countingEmbedder struct {
	vector []float32
	calls  int
	err    error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = c.vector
	}
	return out, nil
}

type failingVectorStore struct{}

func (failingVectorStore) Upsert(context.Context, []*schema.Passage) error { return nil }
func (failingVectorStore) Query(context.Context, string, []float32, int) ([]*schema.Passage, error) {
	return nil, errors.New("vector store down")
}
func (failingVectorStore) DeleteByDocument(context.Context, string, string) error { return nil }

type failingReranker struct{}

func (failingReranker) Rerank(context.Context, []float32, []*schema.Passage, int) ([]*schema.Passage, error) {
	return nil, errors.New("rerank failed")
}

// seedStore fills an in-memory vector store with three passages for alice
// and one for bob that matches the query vector exactly.
func seedStore(t *testing.T) *vectorstore.InMemoryStore {
	t.Helper()
	store := vectorstore.NewInMemoryStore()
	passages := []*schema.Passage{
		{ID: "a-near", DocumentID: "doc-a", UserID: "alice", ChunkType: schema.ChunkTypeChild, Content: "near content", Source: "Call 1", Embedding: []float32{0.9, 0}},
		{ID: "a-mid", DocumentID: "doc-a", UserID: "alice", ChunkType: schema.ChunkTypeChild, Content: "mid content", Source: "Call 1", Embedding: []float32{0.5, 0}},
		{ID: "a-far", DocumentID: "doc-b", UserID: "alice", ChunkType: schema.ChunkTypeChild, Content: "far content", Source: "Call 2", Embedding: []float32{0, 1}},
		{ID: "b-exact", DocumentID: "doc-c", UserID: "bob", ChunkType: schema.ChunkTypeChild, Content: "bob content", Source: "Call 3", Embedding: []float32{1, 0}},
	}
	require.NoError(t, store.Upsert(context.Background(), passages))
	return store
}

func TestRunScopesResultsToOwner(t *testing.T) {
	store := seedStore(t)
	embedder := &countingEmbedder{vector: []float32{1, 0}}
	rp := NewRetrievalPipeline(embedder, store, rerankers.NewMMRReranker(1.0), 2, 2, 0, 0, newTestLogger())

	got := rp.Run(context.Background(), "what happened?", "alice")

	require.Len(t, got, 2)
	assert.Equal(t, "a-near", got[0].ID)
	assert.Equal(t, "a-mid", got[1].ID)
	for _, passage := range got {
		assert.Equal(t, "alice", passage.UserID, "bob's exact match must never surface for alice")
	}

	assert.Empty(t, rp.Run(context.Background(), "what happened?", "carol"))
}

func TestRunServesRepeatedQueriesFromCache(t *testing.T) {
	store := seedStore(t)
	embedder := &countingEmbedder{vector: []float32{1, 0}}
	rp := NewRetrievalPipeline(embedder, store, rerankers.NewMMRReranker(1.0), 2, 2, 8, 0, newTestLogger())

	rp.Run(context.Background(), "same question", "alice")
	rp.Run(context.Background(), "same question", "alice")
	assert.Equal(t, 1, embedder.calls, "second identical query should hit the cache")

	rp.Run(context.Background(), "different question", "alice")
	assert.Equal(t, 2, embedder.calls)
}

func TestRunDegradesToEmptyOnEmbedderFailure(t *testing.T) {
	store := seedStore(t)
	embedder := &countingEmbedder{err: errors.New("embedding service down")}
	rp := NewRetrievalPipeline(embedder, store, rerankers.NewMMRReranker(1.0), 2, 2, 0, 0, newTestLogger())

	assert.Empty(t, rp.Run(context.Background(), "anything", "alice"))
}

func TestRunDegradesToEmptyOnVectorStoreFailure(t *testing.T) {
	embedder := &countingEmbedder{vector: []float32{1, 0}}
	rp := NewRetrievalPipeline(embedder, failingVectorStore{}, rerankers.NewMMRReranker(1.0), 2, 2, 0, 0, newTestLogger())

	assert.Empty(t, rp.Run(context.Background(), "anything", "alice"))
}

func TestRunFallsBackToSimilarityOrderWhenRerankerFails(t *testing.T) {
	store := seedStore(t)
	embedder := &countingEmbedder{vector: []float32{1, 0}}
	rp := NewRetrievalPipeline(embedder, store, failingReranker{}, 2, 2, 0, 0, newTestLogger())

	got := rp.Run(context.Background(), "what happened?", "alice")

	require.Len(t, got, 2, "fallback should still honor topK")
	assert.Equal(t, "a-near", got[0].ID)
	assert.Equal(t, "a-mid", got[1].ID)
}

func TestRetrieveContextReturnsTextsInOrder(t *testing.T) {
	store := seedStore(t)
	embedder := &countingEmbedder{vector: []float32{1, 0}}
	rp := NewRetrievalPipeline(embedder, store, rerankers.NewMMRReranker(1.0), 2, 2, 0, 0, newTestLogger())

	texts := rp.RetrieveContext(context.Background(), "what happened?", "alice")

	assert.Equal(t, []string{"near content", "mid content"}, texts)
	assert.Nil(t, rp.RetrieveContext(context.Background(), "what happened?", "carol"))
}
