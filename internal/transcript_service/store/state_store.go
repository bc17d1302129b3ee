package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

// StateStore defines the processing-state persistence the pipeline needs.
// Claiming and completing stages are conditional updates so concurrent
// triggers for the same document cannot double-run or reorder stages.
type StateStore interface {
	CreateState(ctx context.Context, state *models.ProcessingState) error
	GetState(ctx context.Context, documentID string) (*models.ProcessingState, error)
	ClaimStage(ctx context.Context, documentID string, stage models.ProcessingStage, staleBefore time.Time) (bool, error)
	CompleteStage(ctx context.Context, documentID string, stage models.ProcessingStage) error
	FailStage(ctx context.Context, documentID string, stage models.ProcessingStage, message string) error
	WarnStage(ctx context.Context, documentID string, stage models.ProcessingStage, message string) error
	IncrementRetries(ctx context.Context, documentID string, stage models.ProcessingStage) error
	ListStuck(ctx context.Context, olderThan time.Time) ([]*models.ProcessingState, error)
	ResetForReprocess(ctx context.Context, documentID string) error
}

// CreateState inserts the initial state row for a document. Replayed upload
// events are ignored.
func (s *Store) CreateState(ctx context.Context, state *models.ProcessingState) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(state).Error
}

// GetState retrieves the processing state of a document.
func (s *Store) GetState(ctx context.Context, documentID string) (*models.ProcessingState, error) {
	var state models.ProcessingState
	if err := s.db.WithContext(ctx).
		First(&state, "document_id = ?", documentID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// ClaimStage marks a stage as processing with a fresh start timestamp. The
// claim succeeds only when the stage is idle or failed, or when a previous
// claim is older than staleBefore and therefore considered stuck. Finished
// stages cannot be claimed again, and exactly one of any set of concurrent
// claimers wins.
func (s *Store) ClaimStage(ctx context.Context, documentID string, stage models.ProcessingStage, staleBefore time.Time) (bool, error) {
	prefix, err := stagePrefix(stage)
	if err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).Model(&models.ProcessingState{}).
		Where("document_id = ?", documentID).
		Where(prefix+"status IN ? OR ("+prefix+"status = ? AND ("+prefix+"started_at IS NULL OR "+prefix+"started_at < ?))",
			[]models.StageStatus{models.StatusIdle, models.StatusFailed},
			models.StatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			prefix + "status":       models.StatusProcessing,
			prefix + "started_at":   time.Now(),
			prefix + "completed_at": nil,
			prefix + "error":        "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteStage marks a stage completed. For every stage after the first the
// update carries a guard on the previous stage, so a later stage can never
// report completed while an earlier one has not finished.
func (s *Store) CompleteStage(ctx context.Context, documentID string, stage models.ProcessingStage) error {
	prefix, err := stagePrefix(stage)
	if err != nil {
		return err
	}

	query := s.db.WithContext(ctx).Model(&models.ProcessingState{}).
		Where("document_id = ?", documentID)
	if prev := models.PreviousStage(stage); prev != "" {
		prevPrefix, err := stagePrefix(prev)
		if err != nil {
			return err
		}
		query = query.Where(prevPrefix+"status IN ?",
			[]models.StageStatus{models.StatusCompleted, models.StatusWarning})
	}

	res := query.Updates(map[string]interface{}{
		prefix + "status":       models.StatusCompleted,
		prefix + "completed_at": time.Now(),
		prefix + "error":        "",
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("stage %s of document %s not completed: state missing or earlier stage unfinished", stage, documentID)
	}
	return nil
}

// FailStage records a stage failure with its error message.
func (s *Store) FailStage(ctx context.Context, documentID string, stage models.ProcessingStage, message string) error {
	return s.setStageOutcome(ctx, documentID, stage, models.StatusFailed, message, false)
}

// WarnStage records a non-fatal stage outcome. A warning still counts as
// finished, so the pipeline moves on.
func (s *Store) WarnStage(ctx context.Context, documentID string, stage models.ProcessingStage, message string) error {
	return s.setStageOutcome(ctx, documentID, stage, models.StatusWarning, message, true)
}

func (s *Store) setStageOutcome(ctx context.Context, documentID string, stage models.ProcessingStage, status models.StageStatus, message string, done bool) error {
	prefix, err := stagePrefix(stage)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		prefix + "status": status,
		prefix + "error":  message,
	}
	if done {
		updates[prefix+"completed_at"] = time.Now()
	}

	return s.db.WithContext(ctx).Model(&models.ProcessingState{}).
		Where("document_id = ?", documentID).
		Updates(updates).Error
}

// IncrementRetries bumps the automatic retry counter of a stage.
func (s *Store) IncrementRetries(ctx context.Context, documentID string, stage models.ProcessingStage) error {
	prefix, err := stagePrefix(stage)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.ProcessingState{}).
		Where("document_id = ?", documentID).
		Update(prefix+"retries", gorm.Expr(prefix+"retries + ?", 1)).Error
}

// ListStuck returns unfinished states that have not moved since olderThan:
// either a stage claimed before olderThan whose worker presumably died, or an
// idle pipeline nobody is driving, e.g. because its trigger was lost during a
// shutdown. States with a failed stage are excluded; failure is permanent
// until a manual reprocess. Every transition bumps updated_at, so the
// updated_at guard keeps rows that were just claimed or rescued out of the
// result.
func (s *Store) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.ProcessingState, error) {
	var stale []string
	var staleArgs []interface{}
	var notFailed []string
	var notFailedArgs []interface{}
	for _, stage := range models.StageOrder {
		prefix, err := stagePrefix(stage)
		if err != nil {
			return nil, err
		}
		stale = append(stale, "("+prefix+"status = ? AND "+prefix+"started_at < ?)")
		staleArgs = append(staleArgs, models.StatusProcessing, olderThan)
		notFailed = append(notFailed, prefix+"status <> ?")
		notFailedArgs = append(notFailedArgs, models.StatusFailed)
	}

	abandoned := "(completion_status NOT IN ? AND " + strings.Join(notFailed, " AND ") + ")"

	cond := "updated_at < ? AND (" + strings.Join(stale, " OR ") + " OR " + abandoned + ")"
	args := make([]interface{}, 0, 2+len(staleArgs)+len(notFailedArgs))
	args = append(args, olderThan)
	args = append(args, staleArgs...)
	args = append(args, []models.StageStatus{models.StatusCompleted, models.StatusWarning})
	args = append(args, notFailedArgs...)

	var states []*models.ProcessingState
	if err := s.db.WithContext(ctx).
		Where(cond, args...).
		Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// ResetForReprocess clears every stage after upload back to idle with a zero
// retry counter, so a manual reprocess runs the full pipeline regardless of
// the recorded state.
func (s *Store) ResetForReprocess(ctx context.Context, documentID string) error {
	updates := map[string]interface{}{}
	for _, stage := range models.StageOrder[1:] {
		prefix, err := stagePrefix(stage)
		if err != nil {
			return err
		}
		updates[prefix+"status"] = models.StatusIdle
		updates[prefix+"started_at"] = nil
		updates[prefix+"completed_at"] = nil
		updates[prefix+"error"] = ""
		updates[prefix+"retries"] = 0
	}

	res := s.db.WithContext(ctx).Model(&models.ProcessingState{}).
		Where("document_id = ?", documentID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// stagePrefix maps a stage to its column prefix, rejecting anything outside
// the known stage set before it reaches a SQL string.
func stagePrefix(stage models.ProcessingStage) (string, error) {
	for _, known := range models.StageOrder {
		if known == stage {
			return string(stage) + "_", nil
		}
	}
	return "", fmt.Errorf("unknown processing stage: %s", stage)
}

// compile-time check to ensure Store implements the StateStore interface
var _ StateStore = (*Store)(nil)
