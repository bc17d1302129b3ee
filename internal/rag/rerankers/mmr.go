package rerankers

import (
	"context"
	"math"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

// MMRReranker re-orders retrieval candidates with Maximal Marginal Relevance:
// each round selects the candidate maximizing
//
//	lambda*relevance(c) - (1-lambda)*max similarity(c, already selected)
//
// so results stay relevant to the query without repeating each other.
// Lambda 1 is pure relevance ranking, lambda 0 pure diversity.
type MMRReranker struct {
	Lambda float64
}

// NewMMRReranker creates a reranker with the given relevance/diversity
// trade-off. Lambda is clamped into [0, 1].
func NewMMRReranker(lambda float64) *MMRReranker {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMRReranker{Lambda: lambda}
}

// Rerank selects up to topK passages from the candidates. Candidates must
// carry the embeddings they were indexed with. Ties keep the earlier
// candidate so equal-scoring results preserve the original ranking.
func (r *MMRReranker) Rerank(ctx context.Context, queryEmbedding []float32, candidates []*schema.Passage, topK int) ([]*schema.Passage, error) {
	if topK <= 0 || len(candidates) == 0 {
		return nil, nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = cosineSimilarity(queryEmbedding, c.Embedding)
	}

	// maxSim[i] tracks the highest similarity between candidate i and any
	// already-selected passage, updated incrementally per round.
	maxSim := make([]float64, len(candidates))
	picked := make([]bool, len(candidates))
	selected := make([]*schema.Passage, 0, topK)

	for len(selected) < topK {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			score := r.Lambda*relevance[i] - (1-r.Lambda)*maxSim[i]
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best < 0 {
			break
		}

		picked[best] = true
		selected = append(selected, candidates[best])

		for i := range candidates {
			if picked[i] {
				continue
			}
			if sim := cosineSimilarity(candidates[i].Embedding, candidates[best].Embedding); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either vector is empty or zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// compile-time check to ensure MMRReranker implements the Reranker interface
var _ interfaces.Reranker = (*MMRReranker)(nil)
