package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 15 * time.Second

func NewMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(25).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// RecordIndexes are the indexes the audit record collection is queried by.
func RecordIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "channel", Value: 1}, {Key: "outcome", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "metadata.NotificationId", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
}

// RecordCollection returns the audit collection with its indexes ensured.
func RecordCollection(ctx context.Context, client *mongo.Client, database, collection string) (*mongo.Collection, error) {
	coll := client.Database(database).Collection(collection)
	if _, err := coll.Indexes().CreateMany(ctx, RecordIndexes()); err != nil {
		return nil, fmt.Errorf("failed to create indexes on %s.%s: %w", database, collection, err)
	}
	return coll, nil
}
