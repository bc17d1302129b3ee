package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document represents one uploaded call transcript owned by a single user.
// RawContent and Summary are filled in by the processing pipeline; the
// original bytes live in object storage under StorageKey.
type Document struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	UserID       string `gorm:"index:idx_documents_user;not null;size:64" json:"user_id"`
	Title        string `gorm:"size:255" json:"title"`
	Source       string `gorm:"size:255" json:"source"` // source tag used in citations, e.g. "Call 12"
	StorageKey   string `gorm:"size:512" json:"storage_key"`
	ContentType  string `gorm:"size:128" json:"content_type"`
	RawContent   string `gorm:"type:longtext" json:"-"`
	Summary      string `gorm:"type:text" json:"summary,omitempty"`
	IsProcessed  bool   `json:"is_processed"`
	IsSummarized bool   `json:"is_summarized"`
	UploadMeta   datatypes.JSON `json:"upload_meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName overrides the default gorm table name.
func (Document) TableName() string {
	return "documents"
}
