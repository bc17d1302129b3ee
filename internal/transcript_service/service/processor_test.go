package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/extractors"
	"github.com/bigballadanny/dwschatbot/internal/rag/pipeline"
	"github.com/bigballadanny/dwschatbot/internal/rag/splitters"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/chunkstore"
	"github.com/bigballadanny/dwschatbot/internal/rag/storages/vectorstore"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/store"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
	"github.com/bigballadanny/dwschatbot/pkg/retry"
)

func newTestLogger() *logger.Logger {
	return logger.New("test", "", "")
}

var testTopics = config.KafkaTopics{
	Uploaded:  "transcript.uploaded",
	Processed: "transcript.processed",
	Failed:    "transcript.failed",
}

const transcriptBody = "We talked through the due diligence list for the laundromat deal. The seller wants ninety days to close and the financing terms are mostly agreed. There are open questions about the lease transfer and the equipment appraisal that still need answers.\n\nNext steps are short. Our lawyer reviews the lease assignment before Friday. The broker sends the updated numbers to everyone on the thread."

// memDocs is an in-memory DocumentStore with the same conflict and
// missing-row behavior as the gorm store.
type memDocs struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]*models.Document)}
}

func (m *memDocs) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return nil
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memDocs) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocs) GetOwnedDocument(ctx context.Context, id, userID string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocs) ListDocuments(ctx context.Context, userID string) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Document
	for _, doc := range m.docs {
		if doc.UserID == userID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDocs) update(id string, fn func(*models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[id]; ok {
		fn(doc)
	}
	return nil
}

func (m *memDocs) SetRawContent(ctx context.Context, id, text string) error {
	return m.update(id, func(d *models.Document) { d.RawContent = text })
}

func (m *memDocs) SetSummary(ctx context.Context, id, summary string) error {
	return m.update(id, func(d *models.Document) { d.Summary = summary })
}

func (m *memDocs) SetProcessed(ctx context.Context, id string, processed bool) error {
	return m.update(id, func(d *models.Document) { d.IsProcessed = processed })
}

func (m *memDocs) SetSummarized(ctx context.Context, id string, summarized bool) error {
	return m.update(id, func(d *models.Document) { d.IsSummarized = summarized })
}

func (m *memDocs) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

var _ store.DocumentStore = (*memDocs)(nil)

// memStates is an in-memory StateStore mirroring the conditional update
// semantics of the gorm store, including the updated-at guard of ListStuck.
type memStates struct {
	mu      sync.Mutex
	states  map[string]*models.ProcessingState
	updated map[string]time.Time
}

func newMemStates() *memStates {
	return &memStates{
		states:  make(map[string]*models.ProcessingState),
		updated: make(map[string]time.Time),
	}
}

func (m *memStates) CreateState(ctx context.Context, state *models.ProcessingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[state.DocumentID]; ok {
		return nil
	}
	cp := *state
	m.states[state.DocumentID] = &cp
	m.updated[state.DocumentID] = time.Now()
	return nil
}

func (m *memStates) GetState(ctx context.Context, documentID string) (*models.ProcessingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[documentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *state
	return &cp, nil
}

func (m *memStates) ClaimStage(ctx context.Context, documentID string, stage models.ProcessingStage, staleBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[documentID]
	if !ok {
		return false, nil
	}
	st := state.Stage(stage)
	claimable := st.Status == models.StatusIdle || st.Status == models.StatusFailed ||
		(st.Status == models.StatusProcessing && (st.StartedAt == nil || st.StartedAt.Before(staleBefore)))
	if !claimable {
		return false, nil
	}
	now := time.Now()
	st.Status = models.StatusProcessing
	st.StartedAt = &now
	st.CompletedAt = nil
	st.Error = ""
	m.updated[documentID] = now
	return true, nil
}

func (m *memStates) CompleteStage(ctx context.Context, documentID string, stage models.ProcessingStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[documentID]
	if !ok {
		return fmt.Errorf("stage %s of document %s not completed: state missing", stage, documentID)
	}
	if prev := models.PreviousStage(stage); prev != "" {
		ps := state.Stage(prev)
		if ps.Status != models.StatusCompleted && ps.Status != models.StatusWarning {
			return fmt.Errorf("stage %s of document %s not completed: earlier stage unfinished", stage, documentID)
		}
	}
	now := time.Now()
	st := state.Stage(stage)
	st.Status = models.StatusCompleted
	st.CompletedAt = &now
	st.Error = ""
	m.updated[documentID] = now
	return nil
}

func (m *memStates) setOutcome(documentID string, stage models.ProcessingStage, status models.StageStatus, message string, done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[documentID]
	if !ok {
		return nil
	}
	now := time.Now()
	st := state.Stage(stage)
	st.Status = status
	st.Error = message
	if done {
		st.CompletedAt = &now
	}
	m.updated[documentID] = now
	return nil
}

func (m *memStates) FailStage(ctx context.Context, documentID string, stage models.ProcessingStage, message string) error {
	return m.setOutcome(documentID, stage, models.StatusFailed, message, false)
}

func (m *memStates) WarnStage(ctx context.Context, documentID string, stage models.ProcessingStage, message string) error {
	return m.setOutcome(documentID, stage, models.StatusWarning, message, true)
}

func (m *memStates) IncrementRetries(ctx context.Context, documentID string, stage models.ProcessingStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[documentID]; ok {
		state.Stage(stage).Retries++
		m.updated[documentID] = time.Now()
	}
	return nil
}

func (m *memStates) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.ProcessingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProcessingState
	for id, state := range m.states {
		if !m.updated[id].Before(olderThan) {
			continue
		}
		stale, failed := false, false
		for _, stage := range models.StageOrder {
			st := state.Stage(stage)
			if st.Status == models.StatusProcessing && st.StartedAt != nil && st.StartedAt.Before(olderThan) {
				stale = true
			}
			if st.Status == models.StatusFailed {
				failed = true
			}
		}
		unfinished := state.Completion.Status != models.StatusCompleted &&
			state.Completion.Status != models.StatusWarning
		if stale || (unfinished && !failed) {
			cp := *state
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStates) ResetForReprocess(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[documentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, stage := range models.StageOrder[1:] {
		*state.Stage(stage) = models.StageState{Status: models.StatusIdle}
	}
	m.updated[documentID] = time.Now()
	return nil
}

// setStage overwrites one stage record without touching the updated-at
// bookkeeping, to stage pre-existing situations in tests.
func (m *memStates) setStage(documentID string, stage models.ProcessingStage, st models.StageState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.states[documentID].Stage(stage) = st
}

// backdate shifts the last-touched timestamp into the past.
func (m *memStates) backdate(documentID string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated[documentID] = m.updated[documentID].Add(-by)
}

var _ store.StateStore = (*memStates)(nil)

// memAudits is an in-memory append-only AuditStore.
type memAudits struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (m *memAudits) Record(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	if cp.ID == "" {
		cp.ID = fmt.Sprintf("audit-%d", len(m.entries)+1)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAudits) ListByDocument(ctx context.Context, documentID string, limit int) ([]*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].DocumentID == documentID {
			cp := *m.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAudits) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ store.AuditStore = (*memAudits)(nil)

// memObjects is an in-memory ObjectStore with injectable fetch failures.
type memObjects struct {
	mu          sync.Mutex
	data        map[string][]byte
	fetchCalls  int
	failFetches int
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

func (m *memObjects) Store(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) Fetch(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.failFetches > 0 {
		m.failFetches--
		return nil, errors.New("object store unavailable")
	}
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memObjects) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
}

func (m *memObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memObjects) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *memObjects) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

var _ ObjectStore = (*memObjects)(nil)

type publishedEvent struct {
	topic string
	key   string
	value interface{}
}

// capturePublisher records published events and can fail selected topics.
type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   map[string]error
}

func (p *capturePublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[topic]; err != nil {
		return err
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, value: value})
	return nil
}

func (p *capturePublisher) byTopic(topic string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// captureNotifier records progress updates per user.
type captureNotifier struct {
	mu      sync.Mutex
	updates []models.ProgressUpdate
}

func (n *captureNotifier) Notify(userID string, update models.ProgressUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
}

func (n *captureNotifier) seen(stage, status string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, u := range n.updates {
		if u.Stage == stage && u.Status == status {
			return true
		}
	}
	return false
}

// stubEmbedder returns the same unit vector for every text.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *stubEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// stubLLM fails call i when errs[i] is set and answers reply otherwise.
type stubLLM struct {
	mu    sync.Mutex
	reply string
	errs  []error
	calls int
}

func (l *stubLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.calls
	l.calls++
	if idx < len(l.errs) && l.errs[idx] != nil {
		return "", l.errs[idx]
	}
	return l.reply, nil
}

func (l *stubLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type procEnv struct {
	docs      *memDocs
	states    *memStates
	audits    *memAudits
	objects   *memObjects
	events    *capturePublisher
	progress  *captureNotifier
	llm       *stubLLM
	embedder  *stubEmbedder
	chunks    *chunkstore.InMemoryChunkStore
	vectors   *vectorstore.InMemoryStore
	indexing  *pipeline.IndexingPipeline
	processor *Processor
}

func newProcEnv(t *testing.T) *procEnv {
	t.Helper()
	log := newTestLogger()
	env := &procEnv{
		docs:     newMemDocs(),
		states:   newMemStates(),
		audits:   &memAudits{},
		objects:  newMemObjects(),
		events:   &capturePublisher{},
		progress: &captureNotifier{},
		llm:      &stubLLM{reply: "A concise summary."},
		embedder: &stubEmbedder{},
		chunks:   chunkstore.NewInMemoryChunkStore(),
		vectors:  vectorstore.NewInMemoryStore(),
	}
	env.indexing = pipeline.NewIndexingPipeline(
		extractors.NewRegistry(),
		splitters.NewHierarchicalSplitter(200, 2),
		env.embedder,
		env.chunks,
		env.vectors,
		log,
	)
	env.processor = NewProcessor(ProcessorConfig{
		Documents:  env.docs,
		States:     env.states,
		Audits:     env.audits,
		Objects:    env.objects,
		Indexing:   env.indexing,
		Summarizer: pipeline.NewSummarizePipeline(env.llm, retry.Policy{MaxAttempts: 1}, log),
		Events:     env.events,
		Progress:   env.progress,
		Topics:     testTopics,
		Retry:      retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond},
		StuckAfter: 5 * time.Minute,
		Logger:     log,
	})
	return env
}

func uploadedEvent(documentID, userID string) models.TranscriptUploadedEvent {
	return models.TranscriptUploadedEvent{
		DocumentID:  documentID,
		UserID:      userID,
		Title:       "Call 12",
		StorageKey:  userID + "/" + documentID,
		ContentType: "text/plain",
		UploadedAt:  time.Now(),
	}
}

func TestProcessorRunsDocumentToCompletion(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))

	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	doc, err := env.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Call 12", doc.Source, "source should default to the title")
	assert.Equal(t, transcriptBody, doc.RawContent)
	assert.Equal(t, "A concise summary.", doc.Summary)
	assert.True(t, doc.IsProcessed)
	assert.True(t, doc.IsSummarized)

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	for _, stage := range models.StageOrder {
		assert.Equal(t, models.StatusCompleted, state.Stage(stage).Status, string(stage))
	}

	processed := env.events.byTopic(testTopics.Processed)
	require.Len(t, processed, 1)
	assert.Equal(t, "doc-1", processed[0].key)
	evt, ok := processed[0].value.(models.TranscriptProcessedEvent)
	require.True(t, ok)
	assert.True(t, evt.Summarized)
	assert.Greater(t, evt.ChunkCount, 0)

	count, err := env.chunks.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.EqualValues(t, evt.ChunkCount, count)

	hits, err := env.vectors.Query(ctx, "user-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits, "chunks should be searchable after embedding")

	assert.True(t, env.progress.seen(string(models.StageExtraction), string(models.StatusProcessing)))
	assert.True(t, env.progress.seen(string(models.StageCompletion), string(models.StatusCompleted)))
	assert.GreaterOrEqual(t, env.audits.count(), len(models.StageOrder)-1)
}

func TestProcessorIgnoresRedeliveredEvent(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	evt := uploadedEvent("doc-1", "user-1")

	require.NoError(t, env.processor.Process(ctx, evt))
	require.NoError(t, env.processor.Process(ctx, evt))

	assert.Len(t, env.events.byTopic(testTopics.Processed), 1, "finished stages must not run twice")
	assert.Equal(t, 1, env.embedder.callCount())
}

func TestProcessorHaltsOnUnsupportedContent(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte{0x01, 0x02, 0x03, 0x04})
	evt := uploadedEvent("doc-1", "user-1")
	evt.ContentType = "application/x-widget"

	require.NoError(t, env.processor.Process(ctx, evt))

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, state.Extraction.Status)
	assert.Contains(t, state.Extraction.Error, "unsupported content type")
	assert.Equal(t, 0, state.Extraction.Retries, "a permanent failure must not be retried")
	assert.Equal(t, models.StatusIdle, state.Chunking.Status)

	failed := env.events.byTopic(testTopics.Failed)
	require.Len(t, failed, 1)
	fevt, ok := failed[0].value.(models.TranscriptFailedEvent)
	require.True(t, ok)
	assert.Equal(t, string(models.StageExtraction), fevt.Stage)

	assert.Equal(t, 0, env.llm.callCount())
	assert.Equal(t, 1, env.objects.fetchCount())
}

func TestProcessorHaltsOnEmptyDocument(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte("   \n\t  "))

	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, state.Extraction.Status)
	assert.Contains(t, state.Extraction.Error, "no extractable text")
	assert.Equal(t, 0, state.Extraction.Retries, "a permanent failure must not be retried")

	doc, err := env.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.IsProcessed)

	count, err := env.chunks.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, count, "a failed extraction must leave no chunks behind")

	require.Len(t, env.events.byTopic(testTopics.Failed), 1)
}

func TestProcessorRetriesTransientFetchFailure(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	env.objects.failFetches = 1

	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, state.Extraction.Status)
	assert.Equal(t, 1, state.Extraction.Retries)
	assert.Equal(t, 2, env.objects.fetchCount())
	assert.True(t, state.IsCompleted())
}

func TestProcessorHaltsWhenRetriesExhaust(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	env.objects.failFetches = 99

	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, state.Extraction.Status)
	assert.Equal(t, 2, state.Extraction.Retries)
	assert.Equal(t, 3, env.objects.fetchCount())
	assert.Equal(t, models.StatusIdle, state.Chunking.Status)
	require.Len(t, env.events.byTopic(testTopics.Failed), 1)

	doc, err := env.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.IsProcessed)
}

func TestProcessorTreatsSummarizationFailureAsWarning(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	env.llm.errs = []error{errors.New("model unavailable")}

	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarning, state.Summarization.Status)
	assert.Contains(t, state.Summarization.Error, "model unavailable")
	assert.Equal(t, models.StatusCompleted, state.Completion.Status)

	doc, err := env.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, doc.IsProcessed)
	assert.False(t, doc.IsSummarized)
	assert.Empty(t, doc.Summary)

	processed := env.events.byTopic(testTopics.Processed)
	require.Len(t, processed, 1)
	evt, ok := processed[0].value.(models.TranscriptProcessedEvent)
	require.True(t, ok)
	assert.False(t, evt.Summarized)

	assert.Empty(t, env.events.byTopic(testTopics.Failed))
	assert.True(t, env.progress.seen(string(models.StageSummarization), string(models.StatusWarning)))
}

func TestProcessorYieldsToFreshClaim(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	require.NoError(t, env.processor.materialize(ctx, uploadedEvent("doc-1", "user-1")))

	now := time.Now()
	env.states.setStage("doc-1", models.StageExtraction, models.StageState{
		Status:    models.StatusProcessing,
		StartedAt: &now,
	})

	require.NoError(t, env.processor.Resume(ctx, "doc-1"))

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, state.Extraction.Status)
	assert.Equal(t, 0, env.objects.fetchCount(), "the other worker's stage must not be re-run")
	assert.Empty(t, env.events.byTopic(testTopics.Processed))
}

func TestProcessorResumesAfterFinishedStages(t *testing.T) {
	ctx := context.Background()
	env := newProcEnv(t)
	require.NoError(t, env.processor.materialize(ctx, uploadedEvent("doc-1", "user-1")))

	// Another worker already extracted and chunked before dying.
	require.NoError(t, env.docs.SetRawContent(ctx, "doc-1", transcriptBody))
	passages, err := env.indexing.Chunk(ctx, "doc-1", "user-1", "Call 12", transcriptBody)
	require.NoError(t, err)
	done := time.Now()
	finished := models.StageState{Status: models.StatusCompleted, CompletedAt: &done}
	env.states.setStage("doc-1", models.StageExtraction, finished)
	env.states.setStage("doc-1", models.StageChunking, finished)

	require.NoError(t, env.processor.Resume(ctx, "doc-1"))

	assert.Equal(t, 0, env.objects.fetchCount(), "extraction must not re-run")
	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, state.IsCompleted())

	processed := env.events.byTopic(testTopics.Processed)
	require.Len(t, processed, 1)
	evt, ok := processed[0].value.(models.TranscriptProcessedEvent)
	require.True(t, ok)
	assert.Equal(t, len(passages), evt.ChunkCount)
}

func TestProcessorDropsUnknownDocumentTrigger(t *testing.T) {
	env := newProcEnv(t)

	require.NoError(t, env.processor.Resume(context.Background(), "ghost"))

	assert.Empty(t, env.events.byTopic(testTopics.Failed))
	assert.Equal(t, 0, env.audits.count())
}
