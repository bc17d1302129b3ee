package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/extractors"
	"github.com/bigballadanny/dwschatbot/internal/rag/pipeline"
	"github.com/bigballadanny/dwschatbot/internal/rag/schema"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/store"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/retry"
)

// EventPublisher is the slice of the Kafka publisher the processor needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// ProgressNotifier pushes stage transitions to the document owner.
type ProgressNotifier interface {
	Notify(userID string, update models.ProgressUpdate)
}

// ProcessorConfig wires the processor's collaborators and tuning.
type ProcessorConfig struct {
	Documents  store.DocumentStore
	States     store.StateStore
	Audits     store.AuditStore
	Objects    ObjectStore
	Indexing   *pipeline.IndexingPipeline
	Summarizer *pipeline.SummarizePipeline
	Events     EventPublisher
	Progress   ProgressNotifier
	Topics     config.KafkaTopics
	Retry      retry.Policy
	StuckAfter time.Duration
	Logger     *logger.Logger
}

// Processor drives one document through extraction, chunking, embedding,
// summarization and completion. Every transition is recorded on the state
// row, mirrored into the audit trail and pushed to the owner's WebSocket.
// All stage work is idempotent, so redelivered events and rescued claims
// re-run stages safely.
type Processor struct {
	documents  store.DocumentStore
	states     store.StateStore
	audits     store.AuditStore
	objects    ObjectStore
	indexing   *pipeline.IndexingPipeline
	summarizer *pipeline.SummarizePipeline
	events     EventPublisher
	progress   ProgressNotifier
	topics     config.KafkaTopics
	policy     retry.Policy
	stuckAfter time.Duration
	log        *logger.Logger
}

// NewProcessor creates a Processor. A zero retry policy and stuck threshold
// get bounded defaults.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
		}
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	return &Processor{
		documents:  cfg.Documents,
		states:     cfg.States,
		audits:     cfg.Audits,
		objects:    cfg.Objects,
		indexing:   cfg.Indexing,
		summarizer: cfg.Summarizer,
		events:     cfg.Events,
		progress:   cfg.Progress,
		topics:     cfg.Topics,
		policy:     cfg.Retry,
		stuckAfter: cfg.StuckAfter,
		log:        cfg.Logger,
	}
}

// processRun carries data between the stages of one drive so a stage does
// not have to reload what an earlier stage just produced.
type processRun struct {
	doc      *models.Document
	text     string
	passages []*schema.Passage
}

// Process materializes the document and state rows from an uploaded event
// and drives the pipeline. Calling it again for a redelivered event is
// harmless: the inserts are ignored on conflict and finished stages are
// never claimed again.
func (p *Processor) Process(ctx context.Context, evt models.TranscriptUploadedEvent) error {
	if err := p.materialize(ctx, evt); err != nil {
		return err
	}
	return p.drive(ctx, evt.DocumentID)
}

// materialize creates the document and state rows for an uploaded event. It
// runs before the consumer commits the offset, so once an event is counted
// as consumed the document is at least discoverable by the sweeper.
func (p *Processor) materialize(ctx context.Context, evt models.TranscriptUploadedEvent) error {
	if evt.DocumentID == "" || evt.UserID == "" {
		return fmt.Errorf("uploaded event is missing document or user id")
	}

	doc := &models.Document{
		ID:          evt.DocumentID,
		UserID:      evt.UserID,
		Title:       evt.Title,
		Source:      evt.Source,
		StorageKey:  evt.StorageKey,
		ContentType: evt.ContentType,
	}
	if doc.Source == "" {
		doc.Source = doc.Title
	}
	if err := p.documents.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to materialize document %s: %w", evt.DocumentID, err)
	}

	uploadedAt := evt.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	completedAt := time.Now()
	state := &models.ProcessingState{
		DocumentID: evt.DocumentID,
		UserID:     evt.UserID,
		Upload: models.StageState{
			Status:      models.StatusCompleted,
			StartedAt:   &uploadedAt,
			CompletedAt: &completedAt,
		},
	}
	if err := p.states.CreateState(ctx, state); err != nil {
		return fmt.Errorf("failed to materialize state of document %s: %w", evt.DocumentID, err)
	}
	return nil
}

// Resume re-drives a document that is already materialized. The stuck
// sweeper and the reprocess flow use it.
func (p *Processor) Resume(ctx context.Context, documentID string) error {
	return p.drive(ctx, documentID)
}

// drive walks the stages after upload in order, skipping finished ones and
// stopping when another worker holds a fresh claim. A returned error means
// the state machinery itself failed and the triggering event should be
// redelivered.
func (p *Processor) drive(ctx context.Context, documentID string) error {
	doc, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.log.Warn(fmt.Sprintf("Dropping trigger for unknown document %s", documentID))
			return nil
		}
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	run := &processRun{doc: doc, text: doc.RawContent}

	for _, stage := range models.StageOrder[1:] {
		state, err := p.states.GetState(ctx, documentID)
		if err != nil {
			return fmt.Errorf("failed to load state of document %s: %w", documentID, err)
		}

		st := state.Stage(stage)
		if st.Status == models.StatusCompleted || st.Status == models.StatusWarning {
			continue
		}
		if st.Status == models.StatusProcessing && st.StartedAt != nil &&
			st.StartedAt.After(time.Now().Add(-p.stuckAfter)) {
			// Another worker is on it and the claim is fresh.
			p.log.WithUser(doc.UserID).Info(fmt.Sprintf("Document %s is being processed elsewhere (stage %s)", doc.ID, stage))
			return nil
		}

		proceed, err := p.runStage(ctx, run, stage)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	}

	p.log.WithUser(doc.UserID).Info(fmt.Sprintf("Document %s finished the processing pipeline", doc.ID))
	return nil
}

// runStage claims one stage, executes it under the retry policy and records
// the outcome. It reports whether the pipeline should move to the next
// stage.
func (p *Processor) runStage(ctx context.Context, run *processRun, stage models.ProcessingStage) (bool, error) {
	doc := run.doc

	claimed, err := p.states.ClaimStage(ctx, doc.ID, stage, time.Now().Add(-p.stuckAfter))
	if err != nil {
		return false, fmt.Errorf("failed to claim stage %s of document %s: %w", stage, doc.ID, err)
	}
	if !claimed {
		p.log.WithUser(doc.UserID).Info(fmt.Sprintf("Stage %s of document %s was claimed elsewhere", stage, doc.ID))
		return false, nil
	}

	p.notify(doc, stage, models.StatusProcessing, "")

	policy := p.stagePolicy(stage)
	policy.OnRetry = func(attempt int, err error) {
		p.log.WithUser(doc.UserID).Warn(fmt.Sprintf("Stage %s of document %s failed: %v. Retrying (attempt %d).", stage, doc.ID, err, attempt))
		if rerr := p.states.IncrementRetries(ctx, doc.ID, stage); rerr != nil {
			p.log.Error(fmt.Sprintf("Failed to record retry of stage %s for document %s: %v", stage, doc.ID, rerr))
		}
	}
	policy.Permanent = func(err error) bool {
		return errors.Is(err, extractors.ErrUnsupportedContentType) ||
			errors.Is(err, extractors.ErrEmptyDocument)
	}

	_, err = retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.execStage(ctx, run, stage)
	})
	if err != nil {
		if stage == models.StageSummarization {
			// A missing summary degrades the document, it does not halt it.
			return true, p.warnSummarization(ctx, doc, err)
		}
		return false, p.haltPipeline(ctx, doc, stage, err)
	}

	if err := p.states.CompleteStage(ctx, doc.ID, stage); err != nil {
		return false, fmt.Errorf("failed to complete stage %s of document %s: %w", stage, doc.ID, err)
	}
	p.audit(ctx, doc, stage, models.StatusCompleted, "")
	p.notify(doc, stage, models.StatusCompleted, "")
	return true, nil
}

// stagePolicy returns the retry policy for a stage. Summarization retries
// inside its own pipeline, so the stage level runs it once.
func (p *Processor) stagePolicy(stage models.ProcessingStage) retry.Policy {
	if stage == models.StageSummarization {
		return retry.Policy{MaxAttempts: 1}
	}
	return p.policy
}

func (p *Processor) execStage(ctx context.Context, run *processRun, stage models.ProcessingStage) error {
	switch stage {
	case models.StageExtraction:
		return p.extract(ctx, run)
	case models.StageChunking:
		return p.chunk(ctx, run)
	case models.StageEmbedding:
		return p.embed(ctx, run)
	case models.StageSummarization:
		return p.summarize(ctx, run)
	case models.StageCompletion:
		return p.complete(ctx, run)
	default:
		return fmt.Errorf("unknown processing stage %s", stage)
	}
}

// extract pulls the uploaded bytes out of object storage, converts them to
// plain text and persists the text on the document row.
func (p *Processor) extract(ctx context.Context, run *processRun) error {
	data, err := p.objects.Fetch(ctx, run.doc.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to fetch upload %s: %w", run.doc.StorageKey, err)
	}

	// Sentinel errors pass through so the retry policy can tell permanent
	// failures from transient ones.
	text, err := p.indexing.Extract(ctx, data, run.doc.ContentType)
	if err != nil {
		return err
	}

	if err := p.documents.SetRawContent(ctx, run.doc.ID, text); err != nil {
		return fmt.Errorf("failed to store extracted text of document %s: %w", run.doc.ID, err)
	}
	run.text = text
	return nil
}

// chunk splits the transcript and replaces the stored chunk rows.
func (p *Processor) chunk(ctx context.Context, run *processRun) error {
	text, err := p.transcriptText(ctx, run)
	if err != nil {
		return err
	}
	passages, err := p.indexing.Chunk(ctx, run.doc.ID, run.doc.UserID, run.doc.Source, text)
	if err != nil {
		return err
	}
	run.passages = passages
	return nil
}

// embed vectorizes the chunks and marks the document searchable.
func (p *Processor) embed(ctx context.Context, run *processRun) error {
	if run.passages == nil {
		passages, err := p.indexing.Chunks(ctx, run.doc.ID)
		if err != nil {
			return fmt.Errorf("failed to load chunks of document %s: %w", run.doc.ID, err)
		}
		run.passages = passages
	}

	if err := p.indexing.Embed(ctx, run.passages); err != nil {
		return err
	}

	if err := p.documents.SetProcessed(ctx, run.doc.ID, true); err != nil {
		return fmt.Errorf("failed to mark document %s processed: %w", run.doc.ID, err)
	}
	run.doc.IsProcessed = true
	return nil
}

// summarize generates and persists the document summary.
func (p *Processor) summarize(ctx context.Context, run *processRun) error {
	text, err := p.transcriptText(ctx, run)
	if err != nil {
		return err
	}
	summary, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		return err
	}
	if err := p.documents.SetSummary(ctx, run.doc.ID, summary); err != nil {
		return fmt.Errorf("failed to store summary of document %s: %w", run.doc.ID, err)
	}
	if err := p.documents.SetSummarized(ctx, run.doc.ID, true); err != nil {
		return fmt.Errorf("failed to mark document %s summarized: %w", run.doc.ID, err)
	}
	run.doc.IsSummarized = true
	return nil
}

// complete announces the finished document on the processed topic.
func (p *Processor) complete(ctx context.Context, run *processRun) error {
	if run.passages == nil {
		passages, err := p.indexing.Chunks(ctx, run.doc.ID)
		if err != nil {
			return fmt.Errorf("failed to count chunks of document %s: %w", run.doc.ID, err)
		}
		run.passages = passages
	}

	evt := models.TranscriptProcessedEvent{
		DocumentID:  run.doc.ID,
		UserID:      run.doc.UserID,
		ChunkCount:  len(run.passages),
		Summarized:  run.doc.IsSummarized,
		CompletedAt: time.Now(),
	}
	if err := p.events.Publish(ctx, p.topics.Processed, run.doc.ID, evt); err != nil {
		return fmt.Errorf("failed to publish processed event for document %s: %w", run.doc.ID, err)
	}
	return nil
}

// transcriptText returns the extracted text, reloading it from the document
// row when this worker did not run the extraction stage itself.
func (p *Processor) transcriptText(ctx context.Context, run *processRun) (string, error) {
	if run.text != "" {
		return run.text, nil
	}
	doc, err := p.documents.GetDocument(ctx, run.doc.ID)
	if err != nil {
		return "", fmt.Errorf("failed to reload document %s: %w", run.doc.ID, err)
	}
	if strings.TrimSpace(doc.RawContent) == "" {
		return "", fmt.Errorf("document %s has no extracted text", run.doc.ID)
	}
	run.text = doc.RawContent
	return run.text, nil
}

// warnSummarization records a summarization failure as a warning so the
// pipeline can finish without a summary.
func (p *Processor) warnSummarization(ctx context.Context, doc *models.Document, cause error) error {
	msg := cause.Error()
	if err := p.states.WarnStage(ctx, doc.ID, models.StageSummarization, msg); err != nil {
		return fmt.Errorf("failed to record summarization warning of document %s: %w", doc.ID, err)
	}
	p.audit(ctx, doc, models.StageSummarization, models.StatusWarning, msg)
	p.notify(doc, models.StageSummarization, models.StatusWarning, msg)
	p.log.WithUser(doc.UserID).Warn(fmt.Sprintf("Document %s continues without a summary: %v", doc.ID, cause))
	return nil
}

// haltPipeline records a permanent stage failure, tells the owner and
// announces it on the failed topic. The document stays where it is until a
// manual reprocess.
func (p *Processor) haltPipeline(ctx context.Context, doc *models.Document, stage models.ProcessingStage, cause error) error {
	msg := cause.Error()
	if err := p.states.FailStage(ctx, doc.ID, stage, msg); err != nil {
		return fmt.Errorf("failed to record %s failure of document %s: %w", stage, doc.ID, err)
	}
	if stage == models.StageChunking || stage == models.StageEmbedding {
		// The index may be half rebuilt at this point; the document must not
		// look queryable until a reprocess finishes.
		if err := p.documents.SetProcessed(ctx, doc.ID, false); err != nil {
			p.log.Error(fmt.Sprintf("Failed to clear processed flag of document %s: %v", doc.ID, err))
		}
		doc.IsProcessed = false
	}
	p.audit(ctx, doc, stage, models.StatusFailed, msg)
	p.notify(doc, stage, models.StatusFailed, msg)

	evt := models.TranscriptFailedEvent{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		Stage:      string(stage),
		Reason:     msg,
		FailedAt:   time.Now(),
	}
	if err := p.events.Publish(ctx, p.topics.Failed, doc.ID, evt); err != nil {
		// The state row is authoritative; the event stream is best effort.
		p.log.Error(fmt.Sprintf("Failed to publish failed event for document %s: %v", doc.ID, err))
	}

	p.log.WithUser(doc.UserID).Error(fmt.Sprintf("Document %s halted at stage %s: %v", doc.ID, stage, cause))
	return nil
}

// abandonStuck permanently fails a stage that kept stalling after its
// rescue budget ran out.
func (p *Processor) abandonStuck(ctx context.Context, documentID string, stage models.ProcessingStage, rescues int) error {
	doc, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load stuck document %s: %w", documentID, err)
	}
	return p.haltPipeline(ctx, doc, stage,
		fmt.Errorf("stage stalled and exhausted its retry budget after %d attempts", rescues))
}

func (p *Processor) audit(ctx context.Context, doc *models.Document, stage models.ProcessingStage, status models.StageStatus, message string) {
	entry := &models.AuditEntry{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		Stage:      string(stage),
		Status:     string(status),
		Message:    message,
	}
	if err := p.audits.Record(ctx, entry); err != nil {
		p.log.WithUser(doc.UserID).Error(fmt.Sprintf("Failed to record audit entry for document %s: %v", doc.ID, err))
	}
}

func (p *Processor) notify(doc *models.Document, stage models.ProcessingStage, status models.StageStatus, errMsg string) {
	if p.progress == nil {
		return
	}
	p.progress.Notify(doc.UserID, models.ProgressUpdate{
		DocumentID: doc.ID,
		Stage:      string(stage),
		Status:     string(status),
		Error:      errMsg,
	})
}
