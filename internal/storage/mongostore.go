package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultMongoDatabase = "ndc"
	processingLogName    = "processing_log"
	itemsPrefix          = "items_"
)

// MongoStore keeps one Mongo collection of items per catalog collection id
// and a shared processing_log collection.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logging.Logger
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, uri, database string, log *logging.Logger) (*MongoStore, error) {
	log = logging.OrNop(log).Component("storage")
	if database == "" {
		database = DefaultMongoDatabase
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	log.Info("mongodb store ready", "database", database)
	return &MongoStore{client: client, db: client.Database(database), log: log}, nil
}

func itemsCollection(collectionID string) string {
	return itemsPrefix + collectionID
}

func (s *MongoStore) SaveBatch(ctx context.Context, collectionID string, b *models.Batch) error {
	now := time.Now().UTC()
	if len(b.Records) > 0 {
		docs := make([]interface{}, 0, len(b.Records))
		for _, rec := range b.Records {
			docs = append(docs, ItemFromRecord(collectionID, b.Meta.SourceURL, rec, now))
		}
		if _, err := s.db.Collection(itemsCollection(collectionID)).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to insert items: %w", err)
		}
	}
	if _, err := s.db.Collection(processingLogName).InsertOne(ctx, logEntryFromBatch(collectionID, b, now)); err != nil {
		return fmt.Errorf("failed to write processing log: %w", err)
	}
	return nil
}

func (s *MongoStore) Items(ctx context.Context, collectionID string, limit int) ([]Item, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(itemsCollection(collectionID)).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	items := make([]Item, 0)
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

func (s *MongoStore) ProcessingLog(ctx context.Context, limit int) ([]LogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "logged_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(processingLogName).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing log: %w", err)
	}
	entries := make([]LogEntry, 0)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode processing log: %w", err)
	}
	return entries, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
