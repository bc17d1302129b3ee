package models

import "time"

// ProcessingStage is one step of the document processing pipeline.
type ProcessingStage string

const (
	StageUpload        ProcessingStage = "upload"
	StageExtraction    ProcessingStage = "extraction"
	StageChunking      ProcessingStage = "chunking"
	StageEmbedding     ProcessingStage = "embedding"
	StageSummarization ProcessingStage = "summarization"
	StageCompletion    ProcessingStage = "completion"
)

// StageOrder lists the pipeline stages in execution order.
var StageOrder = []ProcessingStage{
	StageUpload,
	StageExtraction,
	StageChunking,
	StageEmbedding,
	StageSummarization,
	StageCompletion,
}

// StageStatus is the status of a single pipeline stage.
type StageStatus string

const (
	StatusIdle       StageStatus = "idle"
	StatusProcessing StageStatus = "processing"
	StatusCompleted  StageStatus = "completed"
	StatusFailed     StageStatus = "failed"
	StatusWarning    StageStatus = "warning"
)

// StageState holds the typed per-stage record: status, claim timestamp,
// completion timestamp, last error message and the automatic retry count.
type StageState struct {
	Status      StageStatus `gorm:"size:16;default:idle" json:"status"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `gorm:"size:1024" json:"error,omitempty"`
	Retries     int         `json:"retries"`
}

// ProcessingState tracks one document through the pipeline, one embedded
// StageState per stage. Each stage has its own typed columns instead of a
// free-form metadata blob, so reads are never ambiguous about which stage
// a timestamp or error belongs to.
type ProcessingState struct {
	DocumentID    string     `gorm:"primaryKey;size:36" json:"document_id"`
	UserID        string     `gorm:"index:idx_states_user;not null;size:64" json:"user_id"`
	Upload        StageState `gorm:"embedded;embeddedPrefix:upload_" json:"upload"`
	Extraction    StageState `gorm:"embedded;embeddedPrefix:extraction_" json:"extraction"`
	Chunking      StageState `gorm:"embedded;embeddedPrefix:chunking_" json:"chunking"`
	Embedding     StageState `gorm:"embedded;embeddedPrefix:embedding_" json:"embedding"`
	Summarization StageState `gorm:"embedded;embeddedPrefix:summarization_" json:"summarization"`
	Completion    StageState `gorm:"embedded;embeddedPrefix:completion_" json:"completion"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName overrides the default gorm table name.
func (ProcessingState) TableName() string {
	return "processing_states"
}

// Stage returns a pointer to the StageState for the given stage, or nil
// for an unknown stage name.
func (s *ProcessingState) Stage(stage ProcessingStage) *StageState {
	switch stage {
	case StageUpload:
		return &s.Upload
	case StageExtraction:
		return &s.Extraction
	case StageChunking:
		return &s.Chunking
	case StageEmbedding:
		return &s.Embedding
	case StageSummarization:
		return &s.Summarization
	case StageCompletion:
		return &s.Completion
	default:
		return nil
	}
}

// CurrentStage returns the first stage that has not completed, or
// StageCompletion when the whole pipeline is done.
func (s *ProcessingState) CurrentStage() ProcessingStage {
	for _, stage := range StageOrder {
		st := s.Stage(stage)
		if st.Status != StatusCompleted && st.Status != StatusWarning {
			return stage
		}
	}
	return StageCompletion
}

// IsCompleted reports whether the completion stage has finished, i.e. the
// document went through the whole pipeline.
func (s *ProcessingState) IsCompleted() bool {
	return s.Completion.Status == StatusCompleted
}

// PreviousStage returns the stage immediately before the given one, or ""
// for the first stage.
func PreviousStage(stage ProcessingStage) ProcessingStage {
	for i, st := range StageOrder {
		if st == stage && i > 0 {
			return StageOrder[i-1]
		}
	}
	return ""
}
