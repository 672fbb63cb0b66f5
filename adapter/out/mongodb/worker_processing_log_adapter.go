package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// =============================================================================
// MongoDB Processing Log Adapter
// =============================================================================

const (
	collectionProcessingLogs = "processing_logs"

	// entries older than this are expired by the TTL index
	processingLogRetention = 90 * 24 * time.Hour
)

// ProcessingLogAdapter implements out.ProcessingLogRepository using MongoDB.
type ProcessingLogAdapter struct {
	collection *mongo.Collection
}

func NewProcessingLogAdapter(db *mongo.Database) *ProcessingLogAdapter {
	return &ProcessingLogAdapter{collection: db.Collection(collectionProcessingLogs)}
}

var _ out.ProcessingLogRepository = (*ProcessingLogAdapter)(nil)

// EnsureIndexes creates necessary indexes for the collection.
func (a *ProcessingLogAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "correlation_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(processingLogRetention.Seconds())),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Append inserts the entry. Entries are never updated afterwards.
func (a *ProcessingLogAdapter) Append(ctx context.Context, entry *domain.ProcessingLogEntry) error {
	doc := toDocument(entry)
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

// toDocument fills the id and timestamp the caller may have left empty.
func toDocument(entry *domain.ProcessingLogEntry) domain.ProcessingLogEntry {
	doc := *entry
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	return doc
}
