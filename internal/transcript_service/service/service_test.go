package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/transcript_service/worker"
)

type svcEnv struct {
	*procEnv
	pool    *worker.Pool
	service *TranscriptService
}

func newSvcEnv(t *testing.T, ctx context.Context) *svcEnv {
	t.Helper()
	p := newProcEnv(t)
	pool := worker.NewPool(2, 8, newTestLogger())
	pool.Start(ctx)
	svc := NewTranscriptService(ServiceConfig{
		Documents:   p.docs,
		States:      p.states,
		Audits:      p.audits,
		Chunks:      p.chunks,
		Objects:     p.objects,
		Indexing:    p.indexing,
		Processor:   p.processor,
		Pool:        pool,
		Events:      p.events,
		Connections: NewConnectionManager(newTestLogger()),
		Topics:      testTopics,
		StuckAfter:  5 * time.Minute,
		Logger:      newTestLogger(),
	})
	return &svcEnv{procEnv: p, pool: pool, service: svc}
}

func TestServiceUploadStoresObjectAndPublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)

	documentID, err := env.service.Upload(ctx, "user-1", "Call 12", "", "text/plain", []byte(transcriptBody))
	require.NoError(t, err)
	require.NotEmpty(t, documentID)

	assert.True(t, env.objects.has("user-1/"+documentID))

	uploaded := env.events.byTopic(testTopics.Uploaded)
	require.Len(t, uploaded, 1)
	assert.Equal(t, documentID, uploaded[0].key)
	evt, ok := uploaded[0].value.(models.TranscriptUploadedEvent)
	require.True(t, ok)
	assert.Equal(t, "Call 12", evt.Title)
	assert.Equal(t, "user-1/"+documentID, evt.StorageKey)

	// The upload path writes no rows; the consumer does that.
	_, err = env.docs.GetDocument(ctx, documentID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestServiceUploadValidatesInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)

	cases := []struct {
		name   string
		userID string
		title  string
		data   []byte
	}{
		{name: "missing user", userID: "", title: "Call 12", data: []byte("hello")},
		{name: "missing title", userID: "user-1", title: "  ", data: []byte("hello")},
		{name: "empty payload", userID: "user-1", title: "Call 12", data: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.service.Upload(ctx, tc.userID, tc.title, "", "text/plain", tc.data)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, env.events.byTopic(testTopics.Uploaded))
}

func TestServiceUploadRemovesObjectWhenPublishFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.events.fail = map[string]error{testTopics.Uploaded: errors.New("broker down")}

	_, err := env.service.Upload(ctx, "user-1", "Call 12", "", "text/plain", []byte(transcriptBody))
	require.Error(t, err)
	assert.Zero(t, env.objects.size(), "the orphaned object should have been removed")
}

func TestHandleUploadedDrivesDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))

	payload, err := json.Marshal(uploadedEvent("doc-1", "user-1"))
	require.NoError(t, err)

	require.NoError(t, env.service.HandleUploaded(ctx, kafka.Message{Topic: testTopics.Uploaded, Value: payload}))

	// The rows exist before the handler returns, even though the drive is
	// still queued.
	_, err = env.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		state, err := env.states.GetState(context.Background(), "doc-1")
		return err == nil && state.IsCompleted()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleUploadedDropsMalformedEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)

	msg := kafka.Message{Topic: testTopics.Uploaded, Value: []byte("not json")}
	assert.NoError(t, env.service.HandleUploaded(ctx, msg), "poison messages must be committed, not redelivered")

	empty := kafka.Message{Topic: testTopics.Uploaded, Value: []byte(`{"title":"no ids"}`)}
	assert.NoError(t, env.service.HandleUploaded(ctx, empty))
}

func TestServiceStatusScopesToOwner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	status, err := env.service.Status(ctx, "user-1", "doc-1")
	require.NoError(t, err)
	assert.True(t, status.Document.IsProcessed)
	require.NotNil(t, status.State)
	assert.True(t, status.State.IsCompleted())
	assert.Greater(t, status.Chunks, int64(0))

	_, err = env.service.Status(ctx, "intruder", "doc-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "someone else's document must look missing")
}

func TestServiceReprocessRunsPipelineAgain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	require.NoError(t, env.service.Reprocess(ctx, "user-1", "doc-1"))

	doc, err := env.docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.IsProcessed)
	assert.False(t, doc.IsSummarized)

	state, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, state.Extraction.Status)

	uploaded := env.events.byTopic(testTopics.Uploaded)
	require.Len(t, uploaded, 1)

	// Feed the republished event back through the consumer path.
	payload, err := json.Marshal(uploaded[0].value)
	require.NoError(t, err)
	require.NoError(t, env.service.HandleUploaded(ctx, kafka.Message{Topic: testTopics.Uploaded, Value: payload}))

	assert.Eventually(t, func() bool {
		doc, err := env.docs.GetDocument(context.Background(), "doc-1")
		return err == nil && doc.IsProcessed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, env.embedder.callCount(), "the pipeline should have run twice")
}

func TestServiceReprocessRejectsForeignDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	err := env.service.Reprocess(ctx, "intruder", "doc-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestServiceDeleteRemovesEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	require.NoError(t, env.service.Delete(ctx, "user-1", "doc-1"))

	_, err := env.docs.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := env.chunks.CountByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	hits, err := env.vectors.Query(ctx, "user-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "deleted documents must not be searchable")

	assert.False(t, env.objects.has("user-1/doc-1"))
}

func TestServiceListFiltersBySourceGlob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	for id, source := range map[string]string{"doc-1": "Call 7", "doc-2": "Call 12", "doc-3": "Webinar 3"} {
		env.objects.put("user-1/"+id, []byte(transcriptBody))
		evt := uploadedEvent(id, "user-1")
		evt.Source = source
		require.NoError(t, env.processor.Process(ctx, evt))
	}

	all, err := env.service.List(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	calls, err := env.service.List(ctx, "user-1", "Call *")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	for _, doc := range calls {
		assert.Contains(t, doc.Source, "Call")
	}

	_, err = env.service.List(ctx, "user-1", "[")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestServiceBulkReprocessMatchesSourceTags(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	for id, source := range map[string]string{"doc-1": "Call 7", "doc-2": "Webinar 3"} {
		env.objects.put("user-1/"+id, []byte(transcriptBody))
		evt := uploadedEvent(id, "user-1")
		evt.Source = source
		require.NoError(t, env.processor.Process(ctx, evt))
	}

	queued, err := env.service.ReprocessMatching(ctx, "user-1", "Call *")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, queued)

	reset, err := env.states.GetState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, reset.Extraction.Status)

	untouched, err := env.states.GetState(ctx, "doc-2")
	require.NoError(t, err)
	assert.True(t, untouched.IsCompleted(), "documents outside the pattern must stay finished")

	uploaded := env.events.byTopic(testTopics.Uploaded)
	require.Len(t, uploaded, 1)
	assert.Equal(t, "doc-1", uploaded[0].key)

	_, err = env.service.ReprocessMatching(ctx, "user-1", "[")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestServiceAuditRequiresOwnership(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newSvcEnv(t, ctx)
	env.objects.put("user-1/doc-1", []byte(transcriptBody))
	require.NoError(t, env.processor.Process(ctx, uploadedEvent("doc-1", "user-1")))

	entries, err := env.service.Audit(ctx, "user-1", "doc-1", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	_, err = env.service.Audit(ctx, "intruder", "doc-1", 0)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
