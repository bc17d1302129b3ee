package models

import "time"

// AuditEntry is one processing-pipeline event kept for diagnostics: stage
// transitions, recorded failures, retry exhaustion, completion. Stored in
// MongoDB so the trail survives reprocessing.
type AuditEntry struct {
	ID         string    `bson:"_id" json:"id"`
	DocumentID string    `bson:"document_id" json:"document_id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	Stage      string    `bson:"stage" json:"stage"`
	Status     string    `bson:"status" json:"status"`
	Message    string    `bson:"message,omitempty" json:"message,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
