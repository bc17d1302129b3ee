package store

import (
	"gorm.io/gorm"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

const defaultChunkBatch = 50

// Store wraps all MySQL persistence of the transcript service: documents,
// chunk rows and the per-document processing state.
type Store struct {
	db         *gorm.DB
	chunkBatch int
}

// NewStore creates a new Store. chunkBatch bounds how many chunk rows go
// into a single INSERT during a replace; non-positive values fall back to
// the default.
func NewStore(db *gorm.DB, chunkBatch int) *Store {
	if chunkBatch <= 0 {
		chunkBatch = defaultChunkBatch
	}
	return &Store{db: db, chunkBatch: chunkBatch}
}

// Migrate creates or updates the tables the service owns.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.Document{},
		&models.Chunk{},
		&models.ProcessingState{},
	)
}
