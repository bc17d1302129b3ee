package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

// InMemoryStore is a thread-safe, in-memory implementation of the
// VectorStore interface with brute-force L2 search. It backs tests and
// single-node development runs; owner scoping follows the same query-layer
// rule as the Milvus store.
type InMemoryStore struct {
	mu       sync.RWMutex
	passages map[string]*schema.Passage // keyed by passage id
}

// NewInMemoryStore creates a new empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		passages: make(map[string]*schema.Passage),
	}
}

// Upsert stores the passages, replacing any existing ones with the same id.
func (s *InMemoryStore) Upsert(ctx context.Context, passages []*schema.Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range passages {
		copied := *p
		s.passages[p.ID] = &copied
	}
	return nil
}

// Query returns the owner's topK passages closest to the embedding by L2
// distance, closest first.
func (s *InMemoryStore) Query(ctx context.Context, userID string, embedding []float32, topK int) ([]*schema.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*schema.Passage
	for _, p := range s.passages {
		if p.UserID != userID {
			continue
		}
		copied := *p
		copied.Score = l2Distance(embedding, p.Embedding)
		results = append(results, &copied)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByDocument removes every passage of the owner's document.
func (s *InMemoryStore) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.passages {
		if p.UserID == userID && p.DocumentID == documentID {
			delete(s.passages, id)
		}
	}
	return nil
}

func l2Distance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// compile-time check to ensure InMemoryStore implements the VectorStore interface
var _ interfaces.VectorStore = (*InMemoryStore)(nil)
