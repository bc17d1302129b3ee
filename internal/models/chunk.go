package models

import "time"

// ChunkType discriminates the two levels of the hierarchical chunking
// scheme: large topic-coherent parent spans and short sentence-level
// child spans linked to a parent.
type ChunkType string

const (
	ChunkTypeParent ChunkType = "parent"
	ChunkTypeChild  ChunkType = "child"
)

// Chunk is one stored passage of a document. Parent chunks have a nil
// ParentID; child chunks reference a parent chunk of the same document.
// Position is unique within its parent scope: document order for parents,
// sentence order within the parent for children.
type Chunk struct {
	ID         string    `gorm:"primaryKey;size:36"`
	DocumentID string    `gorm:"index:idx_chunks_doc_type;not null;size:36"`
	UserID     string    `gorm:"index:idx_chunks_user;not null;size:64"`
	ChunkType  ChunkType `gorm:"index:idx_chunks_doc_type;not null;size:16"`
	Content    string    `gorm:"type:text;not null"`
	Topic      string    `gorm:"size:512"`
	Position   int       `gorm:"not null"`
	ParentID   *string   `gorm:"size:36"`
	Strategy   string    `gorm:"size:64"`
	CreatedAt  time.Time
}

// TableName overrides the default gorm table name.
func (Chunk) TableName() string {
	return "chunks"
}
