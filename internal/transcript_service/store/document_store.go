package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

// DocumentStore defines the document persistence the pipeline and API need.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetOwnedDocument(ctx context.Context, id, userID string) (*models.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]*models.Document, error)
	SetRawContent(ctx context.Context, id, text string) error
	SetSummary(ctx context.Context, id, summary string) error
	SetProcessed(ctx context.Context, id string, processed bool) error
	SetSummarized(ctx context.Context, id string, summarized bool) error
	DeleteDocument(ctx context.Context, id string) error
}

// CreateDocument inserts a document row. Replayed upload events hit the same
// primary key and are ignored, so consuming a topic twice stays harmless.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(doc).Error
}

// GetDocument retrieves a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetOwnedDocument retrieves a document only when it belongs to userID. A
// document owned by someone else is indistinguishable from a missing one.
func (s *Store) GetOwnedDocument(ctx context.Context, id, userID string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).
		First(&doc, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all documents of a user, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]*models.Document, error) {
	var docs []*models.Document
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// SetRawContent stores the extracted plain text of a document.
func (s *Store) SetRawContent(ctx context.Context, id, text string) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Update("raw_content", text).Error
}

// SetSummary stores the generated summary of a document.
func (s *Store) SetSummary(ctx context.Context, id, summary string) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Update("summary", summary).Error
}

// SetProcessed flips the processed flag. The pipeline clears it when chunking
// or embedding fails so a half-indexed document never looks queryable.
func (s *Store) SetProcessed(ctx context.Context, id string, processed bool) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Update("is_processed", processed).Error
}

// SetSummarized flips the summarized flag.
func (s *Store) SetSummarized(ctx context.Context, id string, summarized bool) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Update("is_summarized", summarized).Error
}

// DeleteDocument removes a document together with its chunks and processing
// state.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.ProcessingState{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Document{}, "id = ?", id).Error
	})
}

// compile-time check to ensure Store implements the DocumentStore interface
var _ DocumentStore = (*Store)(nil)
