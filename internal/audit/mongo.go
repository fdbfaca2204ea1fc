package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const writeTimeout = 3 * time.Second

type MongoLogger struct {
	log        *slog.Logger
	client     *mongo.Client
	collection *mongo.Collection
	service    string
}

func NewMongoLogger(ctx context.Context, log *slog.Logger, uri, database, collection, service string) (*MongoLogger, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		log.Warn("audit index not created", "err", err)
	}
	return &MongoLogger{log: log, client: client, collection: coll, service: service}, nil
}

func (m *MongoLogger) Record(ctx context.Context, e Entry) {
	if e.Service == "" {
		e.Service = m.service
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if _, err := m.collection.InsertOne(ctx, e); err != nil {
		m.log.Warn("audit write failed", "action", e.Action, "entity_id", e.EntityID, "err", err)
	}
}

func (m *MongoLogger) History(ctx context.Context, entityID string, limit int64) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := m.collection.Find(ctx, bson.M{"entity_id": entityID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]Entry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	return entries, nil
}

func (m *MongoLogger) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
