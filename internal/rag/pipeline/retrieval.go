package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/util"
)

const (
	defaultTopK                = 12
	defaultCandidateMultiplier = 3
)

// RetrievalPipeline answers similarity queries over one user's documents.
// Retrieval is best effort: every failure degrades to an empty result so
// the chat flow can still respond instead of erroring out.
type RetrievalPipeline struct {
	embedder            interfaces.EmbeddingModel
	vectorStore         interfaces.VectorStore
	reranker            interfaces.Reranker
	queryCache          *util.LRUCache[string, []float32]
	topK                int
	candidateMultiplier int
	log                 *logger.Logger
}

// NewRetrievalPipeline creates a RetrievalPipeline. cacheSize 0 disables
// the query embedding cache; cacheTTL 0 keeps cached embeddings forever.
func NewRetrievalPipeline(
	embedder interfaces.EmbeddingModel,
	vectorStore interfaces.VectorStore,
	reranker interfaces.Reranker,
	topK, candidateMultiplier, cacheSize int,
	cacheTTL time.Duration,
	log *logger.Logger,
) *RetrievalPipeline {
	if topK <= 0 {
		topK = defaultTopK
	}
	if candidateMultiplier <= 0 {
		candidateMultiplier = defaultCandidateMultiplier
	}

	var queryCache *util.LRUCache[string, []float32]
	if cacheSize > 0 {
		cache, err := util.NewWithConfig(util.CacheConfig[string, []float32]{
			Capacity: cacheSize,
			TTL:      cacheTTL,
		})
		if err == nil {
			queryCache = cache
		}
	}

	return &RetrievalPipeline{
		embedder:            embedder,
		vectorStore:         vectorStore,
		reranker:            reranker,
		queryCache:          queryCache,
		topK:                topK,
		candidateMultiplier: candidateMultiplier,
		log:                 log,
	}
}

// Run retrieves the passages most relevant to query among the user's own
// documents. It never fails: any error is logged and an empty result is
// returned, so an unreachable vector store cannot take the chat down.
func (p *RetrievalPipeline) Run(ctx context.Context, query, userID string) []*schema.Passage {
	// 1. Embed the query, consulting the cache first.
	queryVector, err := p.embedQuery(ctx, query)
	if err != nil {
		p.log.WithUser(userID).Error(fmt.Sprintf("Failed to embed query: %v. Returning no context.", err))
		return nil
	}

	// 2. Over-fetch candidates so the reranker has room to trade relevance
	// for diversity.
	fetchK := p.topK * p.candidateMultiplier
	candidates, err := p.vectorStore.Query(ctx, userID, queryVector, fetchK)
	if err != nil {
		p.log.WithUser(userID).Error(fmt.Sprintf("Vector search failed: %v. Returning no context.", err))
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	// 3. Rerank down to topK. A reranker failure falls back to the raw
	// similarity order.
	reranked, err := p.reranker.Rerank(ctx, queryVector, candidates, p.topK)
	if err != nil {
		p.log.WithUser(userID).Warn(fmt.Sprintf("Reranker failed: %v. Returning passages in similarity order.", err))
		if len(candidates) > p.topK {
			candidates = candidates[:p.topK]
		}
		return candidates
	}

	p.log.WithUser(userID).Debug(fmt.Sprintf("Retrieved %d of %d candidate passages", len(reranked), len(candidates)))
	return reranked
}

// RetrieveContext returns the chunk texts to ground an answer on, most
// relevant first.
func (p *RetrievalPipeline) RetrieveContext(ctx context.Context, query, userID string) []string {
	passages := p.Run(ctx, query, userID)
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, 0, len(passages))
	for _, passage := range passages {
		texts = append(texts, passage.Content)
	}
	return texts
}

// embedQuery embeds a query string, serving repeated questions from the
// cache.
func (p *RetrievalPipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if p.queryCache != nil {
		if vector, ok := p.queryCache.Get(query); ok {
			return vector, nil
		}
	}

	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedding model returned no vector")
	}

	if p.queryCache != nil {
		p.queryCache.Put(query, vectors[0], 1)
	}
	return vectors[0], nil
}
