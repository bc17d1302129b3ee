package store

import (
	"context"
	"fmt"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
)

// Replace swaps the stored chunk set of a document: existing rows are
// deleted, then the new set is written in bounded batches. A failed batch
// aborts the remaining ones without rolling back batches already committed;
// the caller records the stage as failed and the next attempt starts from
// the delete again, so stale partial sets never survive a successful run.
func (s *Store) Replace(ctx context.Context, documentID string, passages []*schema.Passage) error {
	if err := s.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete existing chunks: %w", err)
	}

	rows := make([]*models.Chunk, 0, len(passages))
	for _, p := range passages {
		rows = append(rows, chunkRow(p))
	}

	for start := 0; start < len(rows); start += s.chunkBatch {
		end := min(start+s.chunkBatch, len(rows))
		if err := s.db.WithContext(ctx).Create(rows[start:end]).Error; err != nil {
			return fmt.Errorf("insert chunk batch [%d:%d): %w", start, end, err)
		}
	}
	return nil
}

// ListByDocument returns the stored chunks of a document, parents first.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]*schema.Passage, error) {
	var rows []*models.Chunk
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_type DESC, parent_id, position").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	passages := make([]*schema.Passage, 0, len(rows))
	for _, row := range rows {
		passages = append(passages, rowPassage(row))
	}
	return passages, nil
}

// DeleteByDocument removes all chunks of a document.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&models.Chunk{}).Error
}

// CountByDocument returns how many chunks a document has stored.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

func chunkRow(p *schema.Passage) *models.Chunk {
	row := &models.Chunk{
		ID:         p.ID,
		DocumentID: p.DocumentID,
		UserID:     p.UserID,
		ChunkType:  models.ChunkType(p.ChunkType),
		Content:    p.Content,
		Topic:      p.Topic,
		Position:   p.Position,
		Strategy:   p.Strategy,
	}
	if p.ParentID != "" {
		parentID := p.ParentID
		row.ParentID = &parentID
	}
	return row
}

func rowPassage(row *models.Chunk) *schema.Passage {
	p := &schema.Passage{
		ID:         row.ID,
		DocumentID: row.DocumentID,
		UserID:     row.UserID,
		ChunkType:  string(row.ChunkType),
		Content:    row.Content,
		Topic:      row.Topic,
		Position:   row.Position,
		Strategy:   row.Strategy,
	}
	if row.ParentID != nil {
		p.ParentID = *row.ParentID
	}
	return p
}

// compile-time check to ensure Store implements the ChunkStore interface
var _ interfaces.ChunkStore = (*Store)(nil)
