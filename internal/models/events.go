package models

import "time"

// TranscriptUploadedEvent announces that a transcript landed in object
// storage and is ready for processing. Published by the upload handler (or
// any external uploader) and consumed by the transcript service, which
// materializes the document and processing-state rows from it.
type TranscriptUploadedEvent struct {
	DocumentID  string    `json:"document_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// TranscriptProcessedEvent announces that a document finished the whole
// pipeline and is queryable.
type TranscriptProcessedEvent struct {
	DocumentID  string    `json:"document_id"`
	UserID      string    `json:"user_id"`
	ChunkCount  int       `json:"chunk_count"`
	Summarized  bool      `json:"summarized"`
	CompletedAt time.Time `json:"completed_at"`
}

// TranscriptFailedEvent announces that a document's pipeline halted, either
// on a stage failure or after exhausting the automatic retry budget.
type TranscriptFailedEvent struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}

// ProgressUpdate is pushed over the owner's WebSocket connection on every
// stage transition.
type ProgressUpdate struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}
