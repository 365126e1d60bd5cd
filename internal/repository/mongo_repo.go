package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ AuditStore = (*MongoRecordRepo)(nil)

type recordDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Channel      string             `bson:"channel"`
	Source       string             `bson:"source"`
	Recipient    string             `bson:"recipient"`
	Subject      string             `bson:"subject,omitempty"`
	Message      string             `bson:"message,omitempty"`
	Outcome      string             `bson:"outcome"`
	ErrorMessage string             `bson:"errorMessage,omitempty"`
	AttemptCount int                `bson:"attemptCount"`
	Metadata     map[string]string  `bson:"metadata,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

// MongoRecordRepo stores audit records in a MongoDB collection.
type MongoRecordRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRecordRepo(coll *mongo.Collection) *MongoRecordRepo {
	return &MongoRecordRepo{coll: coll, now: time.Now}
}

func (r *MongoRecordRepo) Create(ctx context.Context, record *domain.NotificationRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}

	doc := documentFromDomain(record)
	doc.ID = primitive.NewObjectID()
	now := r.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	*record = *documentToDomain(doc)
	return nil
}

func (r *MongoRecordRepo) Update(ctx context.Context, id string, record *domain.NotificationRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("record is required")
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	now := r.now().UTC()
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"recipient":    record.Recipient,
		"subject":      record.Subject,
		"message":      record.Message,
		"outcome":      record.Outcome.String(),
		"errorMessage": record.ErrorMessage,
		"attemptCount": record.AttemptCount,
		"metadata":     copyMetadata(record.Metadata),
		"updatedAt":    now,
	}})
	if err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}
	if result.MatchedCount == 0 {
		return false, nil
	}

	record.UpdatedAt = now
	return true, nil
}

func (r *MongoRecordRepo) GetByID(ctx context.Context, id string) (*domain.NotificationRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var doc recordDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return documentToDomain(doc), nil
}

func (r *MongoRecordRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error) {
	filter := mongoFilter(params)
	if params.Outcome != nil {
		filter["outcome"] = params.Outcome.String()
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // best-effort cursor close

	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode records: %w", err)
	}

	records := make([]domain.NotificationRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, *documentToDomain(doc))
	}
	return records, total, nil
}

func (r *MongoRecordRepo) Stats(ctx context.Context, params ListParams) (Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoFilter(params)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$outcome"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate records: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // best-effort cursor close

	var rows []struct {
		Outcome string `bson:"_id"`
		Count   int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return Stats{}, fmt.Errorf("failed to decode stats: %w", err)
	}

	var stats Stats
	for _, row := range rows {
		stats.add(domain.Outcome(row.Outcome), row.Count)
	}
	return stats, nil
}

func (r *MongoRecordRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *MongoRecordRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func mongoFilter(params ListParams) bson.M {
	filter := bson.M{}

	if recipient := strings.TrimSpace(params.Recipient); recipient != "" {
		filter["recipient"] = recipient
	}
	if params.Channel != nil {
		filter["channel"] = params.Channel.String()
	}

	created := bson.M{}
	if params.From != nil {
		created["$gte"] = *params.From
	}
	if params.To != nil {
		created["$lte"] = *params.To
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	return filter
}

func documentFromDomain(r *domain.NotificationRecord) recordDocument {
	return recordDocument{
		Channel:      r.Channel.String(),
		Source:       r.Source.String(),
		Recipient:    r.Recipient,
		Subject:      r.Subject,
		Message:      r.Message,
		Outcome:      r.Outcome.String(),
		ErrorMessage: r.ErrorMessage,
		AttemptCount: r.AttemptCount,
		Metadata:     copyMetadata(r.Metadata),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func documentToDomain(doc recordDocument) *domain.NotificationRecord {
	return &domain.NotificationRecord{
		ID:           doc.ID.Hex(),
		Channel:      domain.Channel(doc.Channel),
		Source:       domain.Source(doc.Source),
		Recipient:    doc.Recipient,
		Subject:      doc.Subject,
		Message:      doc.Message,
		Outcome:      domain.Outcome(doc.Outcome),
		ErrorMessage: doc.ErrorMessage,
		AttemptCount: doc.AttemptCount,
		Metadata:     copyMetadata(doc.Metadata),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
