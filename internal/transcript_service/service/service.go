package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/pipeline"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/store"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/worker"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

const defaultAuditLimit = 50

// ErrInvalidPattern reports a source glob that does not compile. Handlers
// map it to a client error instead of a server failure.
var ErrInvalidPattern = errors.New("invalid source pattern")

func compileSourceGlob(pattern string) (glob.Glob, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	return matcher, nil
}

// ChunkCounter is the slice of the chunk store the status endpoint needs.
type ChunkCounter interface {
	CountByDocument(ctx context.Context, documentID string) (int64, error)
}

// DocumentStatus is the status view of one document: the row itself, its
// per-stage processing state and how many chunks it currently has stored.
type DocumentStatus struct {
	Document *models.Document        `json:"document"`
	State    *models.ProcessingState `json:"state,omitempty"`
	Chunks   int64                   `json:"chunks"`
}

// ServiceConfig wires the transcript service's collaborators.
type ServiceConfig struct {
	Documents   store.DocumentStore
	States      store.StateStore
	Audits      store.AuditStore
	Chunks      ChunkCounter
	Objects     ObjectStore
	Indexing    *pipeline.IndexingPipeline
	Processor   *Processor
	Pool        *worker.Pool
	Events      EventPublisher
	Connections *ConnectionManager
	Topics      config.KafkaTopics
	StuckAfter  time.Duration
	Logger      *logger.Logger
}

// TranscriptService is the API-facing facade over uploads, processing state
// and document management. Uploads only store the raw bytes and publish an
// event; everything else happens asynchronously behind the Kafka topic.
type TranscriptService struct {
	documents  store.DocumentStore
	states     store.StateStore
	audits     store.AuditStore
	chunks     ChunkCounter
	objects    ObjectStore
	indexing   *pipeline.IndexingPipeline
	processor  *Processor
	pool       *worker.Pool
	events     EventPublisher
	conns      *ConnectionManager
	topics     config.KafkaTopics
	stuckAfter time.Duration
	log        *logger.Logger
}

// NewTranscriptService creates a TranscriptService.
func NewTranscriptService(cfg ServiceConfig) *TranscriptService {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 5 * time.Minute
	}
	return &TranscriptService{
		documents:  cfg.Documents,
		states:     cfg.States,
		audits:     cfg.Audits,
		chunks:     cfg.Chunks,
		objects:    cfg.Objects,
		indexing:   cfg.Indexing,
		processor:  cfg.Processor,
		pool:       cfg.Pool,
		events:     cfg.Events,
		conns:      cfg.Connections,
		topics:     cfg.Topics,
		stuckAfter: cfg.StuckAfter,
		log:        cfg.Logger,
	}
}

// Upload stores the raw transcript bytes and publishes an uploaded event
// keyed by the new document id. No database rows are written here; the
// consumer materializes them, so the API stays fast and a lost event can
// only cost an orphaned object, never a half-created document.
func (s *TranscriptService) Upload(ctx context.Context, userID, title, source, contentType string, data []byte) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("title is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("upload is empty")
	}
	// An empty content type stays empty; the extractor sniffs it from the
	// payload bytes instead.

	documentID := uuid.New().String()
	key := fmt.Sprintf("%s/%s", userID, documentID)

	if err := s.objects.Store(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	evt := models.TranscriptUploadedEvent{
		DocumentID:  documentID,
		UserID:      userID,
		Title:       strings.TrimSpace(title),
		Source:      strings.TrimSpace(source),
		StorageKey:  key,
		ContentType: contentType,
		UploadedAt:  time.Now(),
	}
	if err := s.events.Publish(ctx, s.topics.Uploaded, documentID, evt); err != nil {
		// Without the event nothing will ever pick the object up.
		if derr := s.objects.Delete(ctx, key); derr != nil {
			s.log.Error(fmt.Sprintf("Failed to remove orphaned upload %s: %v", key, derr))
		}
		return "", fmt.Errorf("failed to announce upload: %w", err)
	}

	s.log.WithUser(userID).Info(fmt.Sprintf("Accepted upload %s (%d bytes, %s)", documentID, len(data), contentType))
	return documentID, nil
}

// HandleUploaded consumes one uploaded event. It materializes the document
// rows synchronously and queues the pipeline drive on the worker pool; a
// nil return lets the consumer commit the offset. Malformed events are
// dropped, anything the sweeper can later rediscover is safe to commit.
func (s *TranscriptService) HandleUploaded(ctx context.Context, msg kafka.Message) error {
	var evt models.TranscriptUploadedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		s.log.Error(fmt.Sprintf("Dropping malformed upload event at offset %d: %v", msg.Offset, err))
		return nil
	}
	if evt.DocumentID == "" || evt.UserID == "" {
		s.log.Error(fmt.Sprintf("Dropping upload event without document or user id at offset %d", msg.Offset))
		return nil
	}

	// Keeping materialization in the consumer ties it to the offset commit:
	// once the event counts as consumed, the rows exist and the sweeper can
	// rescue the document even if the queued drive never runs.
	if err := s.processor.materialize(ctx, evt); err != nil {
		return err
	}

	documentID := evt.DocumentID
	return s.pool.Submit(ctx, func(taskCtx context.Context) {
		if err := s.processor.Resume(taskCtx, documentID); err != nil {
			s.log.Error(fmt.Sprintf("Processing of document %s failed: %v", documentID, err))
		}
	})
}

// Status returns a document with its processing state and chunk count. The
// state can be missing for a moment right after upload while the event is
// still in flight.
func (s *TranscriptService) Status(ctx context.Context, userID, documentID string) (*DocumentStatus, error) {
	doc, err := s.documents.GetOwnedDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	state, err := s.states.GetState(ctx, documentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load state of document %s: %w", documentID, err)
		}
		state = nil
	}

	chunks, err := s.chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks of document %s: %w", documentID, err)
	}

	return &DocumentStatus{Document: doc, State: state, Chunks: chunks}, nil
}

// List returns the caller's documents, newest first. A non-empty source
// pattern keeps only documents whose source tag matches it (glob syntax,
// e.g. "Call *").
func (s *TranscriptService) List(ctx context.Context, userID, sourceGlob string) ([]*models.Document, error) {
	docs, err := s.documents.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sourceGlob == "" {
		return docs, nil
	}

	matcher, err := compileSourceGlob(sourceGlob)
	if err != nil {
		return nil, err
	}
	matched := docs[:0]
	for _, doc := range docs {
		if matcher.Match(doc.Source) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// Stuck returns processing states that have not moved within the stuck
// threshold. Operators use it to see what the sweeper is about to rescue.
func (s *TranscriptService) Stuck(ctx context.Context) ([]*models.ProcessingState, error) {
	return s.states.ListStuck(ctx, time.Now().Add(-s.stuckAfter))
}

// Reprocess resets a document's pipeline and republishes its uploaded event
// so the consumer drives it through every stage again. The stored object is
// reused; chunks and vectors are rebuilt from scratch during the run.
func (s *TranscriptService) Reprocess(ctx context.Context, userID, documentID string) error {
	doc, err := s.documents.GetOwnedDocument(ctx, documentID, userID)
	if err != nil {
		return err
	}

	if err := s.documents.SetProcessed(ctx, doc.ID, false); err != nil {
		return fmt.Errorf("failed to clear processed flag of document %s: %w", doc.ID, err)
	}
	if err := s.documents.SetSummarized(ctx, doc.ID, false); err != nil {
		return fmt.Errorf("failed to clear summarized flag of document %s: %w", doc.ID, err)
	}
	if err := s.states.ResetForReprocess(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to reset state of document %s: %w", doc.ID, err)
	}

	evt := models.TranscriptUploadedEvent{
		DocumentID:  doc.ID,
		UserID:      doc.UserID,
		Title:       doc.Title,
		Source:      doc.Source,
		StorageKey:  doc.StorageKey,
		ContentType: doc.ContentType,
		UploadedAt:  time.Now(),
	}
	if err := s.events.Publish(ctx, s.topics.Uploaded, doc.ID, evt); err != nil {
		// The state is already reset, so the sweeper will eventually pick
		// the document up even without the event.
		return fmt.Errorf("failed to announce reprocess of document %s: %w", doc.ID, err)
	}

	s.log.WithUser(userID).Info(fmt.Sprintf("Queued document %s for reprocessing", doc.ID))
	return nil
}

// ReprocessMatching reprocesses every document of the caller whose source
// tag matches the glob pattern. It returns the ids queued so far; an error
// during the run leaves the earlier documents queued.
func (s *TranscriptService) ReprocessMatching(ctx context.Context, userID, sourceGlob string) ([]string, error) {
	matcher, err := compileSourceGlob(sourceGlob)
	if err != nil {
		return nil, err
	}

	docs, err := s.documents.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}

	var queued []string
	for _, doc := range docs {
		if !matcher.Match(doc.Source) {
			continue
		}
		if err := s.Reprocess(ctx, userID, doc.ID); err != nil {
			return queued, fmt.Errorf("bulk reprocess stopped at document %s: %w", doc.ID, err)
		}
		queued = append(queued, doc.ID)
	}

	s.log.WithUser(userID).Info(fmt.Sprintf("Queued %d documents matching %q for reprocessing", len(queued), sourceGlob))
	return queued, nil
}

// Audit returns the newest audit entries of a document the caller owns.
func (s *TranscriptService) Audit(ctx context.Context, userID, documentID string, limit int) ([]*models.AuditEntry, error) {
	if _, err := s.documents.GetOwnedDocument(ctx, documentID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	return s.audits.ListByDocument(ctx, documentID, limit)
}

// Delete removes a document with its chunks, vectors, state and stored
// object. Vectors go first so a failure can never leave searchable vectors
// pointing at a deleted document.
func (s *TranscriptService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.documents.GetOwnedDocument(ctx, documentID, userID)
	if err != nil {
		return err
	}

	if err := s.indexing.Purge(ctx, doc.UserID, doc.ID); err != nil {
		return fmt.Errorf("failed to purge index of document %s: %w", doc.ID, err)
	}
	if err := s.documents.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
	}
	if err := s.objects.Delete(ctx, doc.StorageKey); err != nil {
		s.log.Warn(fmt.Sprintf("Failed to remove stored object %s: %v", doc.StorageKey, err))
	}

	s.log.WithUser(userID).Info(fmt.Sprintf("Deleted document %s", doc.ID))
	return nil
}

// AddConnection registers a WebSocket connection for progress updates.
func (s *TranscriptService) AddConnection(userID string, conn *websocket.Conn) {
	s.conns.Add(userID, conn)
}

// RemoveConnection unregisters a WebSocket connection.
func (s *TranscriptService) RemoveConnection(userID string, conn *websocket.Conn) {
	s.conns.Remove(userID, conn)
}
