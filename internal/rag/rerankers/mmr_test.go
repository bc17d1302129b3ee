package rerankers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

func passage(id string, embedding []float32) *schema.Passage {
	return &schema.Passage{ID: id, Content: id, Embedding: embedding}
}

func ids(passages []*schema.Passage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		out = append(out, p.ID)
	}
	return out
}

func TestRerankLambdaOneIsRelevanceOrder(t *testing.T) {
	query := []float32{1, 0}
	candidates := []*schema.Passage{
		passage("mid", []float32{1, 1}),
		passage("best", []float32{1, 0}),
		passage("worst", []float32{0, 1}),
	}

	got, err := NewMMRReranker(1).Rerank(context.Background(), query, candidates, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "mid", "worst"}, ids(got))
}

func TestRerankLambdaZeroAvoidsDuplicates(t *testing.T) {
	query := []float32{1, 0}
	// Two near-identical candidates lead on relevance; with lambda 0 the
	// second pick must jump to the dissimilar one instead.
	candidates := []*schema.Passage{
		passage("dup-a", []float32{1, 0}),
		passage("dup-b", []float32{0.999, 0.01}),
		passage("other", []float32{0, 1}),
	}

	got, err := NewMMRReranker(0).Rerank(context.Background(), query, candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"dup-a", "other"}, ids(got))
}

func TestRerankBalancesRelevanceAndDiversity(t *testing.T) {
	query := []float32{1, 0}
	// "similar" is closer to the first pick than "diverse" is, so with the
	// penalty weighted in, its higher relevance no longer carries it.
	candidates := []*schema.Passage{
		passage("best", []float32{0.92, -0.39}),
		passage("similar", []float32{0.9, 0.436}),
		passage("diverse", []float32{0.5, 0.866}),
	}

	got, err := NewMMRReranker(0.5).Rerank(context.Background(), query, candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "diverse"}, ids(got))
}

func TestRerankTiesKeepOriginalRank(t *testing.T) {
	query := []float32{1, 0}
	same := []float32{1, 0}
	candidates := []*schema.Passage{
		passage("first", same),
		passage("second", same),
		passage("third", same),
	}

	got, err := NewMMRReranker(1).Rerank(context.Background(), query, candidates, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids(got))
}

func TestRerankBounds(t *testing.T) {
	query := []float32{1, 0}
	candidates := []*schema.Passage{
		passage("a", []float32{1, 0}),
		passage("b", []float32{0, 1}),
	}
	r := NewMMRReranker(0.6)

	t.Run("topK beyond candidates returns all", func(t *testing.T) {
		got, err := r.Rerank(context.Background(), query, candidates, 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("zero topK returns nothing", func(t *testing.T) {
		got, err := r.Rerank(context.Background(), query, candidates, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("no candidates returns nothing", func(t *testing.T) {
		got, err := r.Rerank(context.Background(), query, nil, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
