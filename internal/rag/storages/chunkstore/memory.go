package chunkstore

import (
	"context"
	"sync"

	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

// InMemoryChunkStore is a thread-safe, in-memory implementation of the
// ChunkStore interface for tests and single-node development runs.
type InMemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]*schema.Passage // keyed by document id
}

// NewInMemoryChunkStore creates a new empty InMemoryChunkStore.
func NewInMemoryChunkStore() *InMemoryChunkStore {
	return &InMemoryChunkStore{
		chunks: make(map[string][]*schema.Passage),
	}
}

// Replace swaps the stored chunk set of a document for the given one.
func (s *InMemoryChunkStore) Replace(ctx context.Context, documentID string, passages []*schema.Passage) error {
	copied := make([]*schema.Passage, len(passages))
	for i, p := range passages {
		c := *p
		copied[i] = &c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentID] = copied
	return nil
}

// ListByDocument returns the stored chunks of a document in insertion order.
func (s *InMemoryChunkStore) ListByDocument(ctx context.Context, documentID string) ([]*schema.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.chunks[documentID]
	out := make([]*schema.Passage, len(stored))
	for i, p := range stored {
		c := *p
		out[i] = &c
	}
	return out, nil
}

// DeleteByDocument removes all chunks of a document.
func (s *InMemoryChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

// CountByDocument returns how many chunks a document has stored.
func (s *InMemoryChunkStore) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks[documentID])), nil
}

// compile-time check to ensure InMemoryChunkStore implements the ChunkStore interface
var _ interfaces.ChunkStore = (*InMemoryChunkStore)(nil)
