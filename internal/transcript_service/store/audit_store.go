package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

// AuditStore records pipeline events for diagnostics. The trail is
// append-only and survives reprocessing, unlike the state row which each
// run overwrites.
type AuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
	ListByDocument(ctx context.Context, documentID string, limit int) ([]*models.AuditEntry, error)
}

// MongoAuditStore is an implementation of AuditStore using MongoDB.
type MongoAuditStore struct {
	collection *mongo.Collection
}

// NewMongoAuditStore creates a new MongoAuditStore.
func NewMongoAuditStore(db *mongo.Database, collectionName string) *MongoAuditStore {
	return &MongoAuditStore{
		collection: db.Collection(collectionName),
	}
}

// Record appends one audit entry, filling in the id and timestamp when the
// caller left them empty.
func (s *MongoAuditStore) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.collection.InsertOne(ctx, entry)
	return err
}

// ListByDocument returns the newest audit entries of a document.
func (s *MongoAuditStore) ListByDocument(ctx context.Context, documentID string, limit int) ([]*models.AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// compile-time check to ensure MongoAuditStore implements the AuditStore interface
var _ AuditStore = (*MongoAuditStore)(nil)
