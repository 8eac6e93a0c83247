package collection

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const (
	defaultMongoCollection = "collection_entries"
	mongoConnectTimeout    = 10 * time.Second
)

// MongoStore keeps entries as documents in a MongoDB collection.
type MongoStore struct {
	client  *mongo.Client
	entries *mongo.Collection
	log     logger.Logger
}

// NewMongoStore connects to MongoDB and ensures the owner index exists.
func NewMongoStore(ctx context.Context, settings conf.MongoDBSettings, log logger.Logger) (*MongoStore, error) {
	if settings.URI == "" || settings.Database == "" {
		return nil, errors.Newf("mongodb uri and database are required").
			Component("collection").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("collection")
	}

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(settings.URI))
	if err != nil {
		return nil, collectionError(err, "connect").Category(errors.CategoryDatabase).Build()
	}

	name := settings.Collection
	if name == "" {
		name = defaultMongoCollection
	}

	store, err := NewMongoStoreFromDatabase(connectCtx, client.Database(settings.Database), name, log)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	store.client = client
	return store, nil
}

// NewMongoStoreFromDatabase wraps an existing database handle. The caller keeps ownership
// of the client.
func NewMongoStoreFromDatabase(ctx context.Context, db *mongo.Database, collectionName string, log logger.Logger) (*MongoStore, error) {
	if log == nil {
		log = logger.Global().Module("collection")
	}
	entries := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "slot_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := entries.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, collectionError(err, "create_indexes").Category(errors.CategoryDatabase).Build()
	}

	return &MongoStore{entries: entries, log: log.Module("mongodb")}, nil
}

// Save inserts entry as a new document.
func (s *MongoStore) Save(ctx context.Context, entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := s.entries.InsertOne(ctx, entry); err != nil {
		return collectionError(err, "save").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// List returns an owner's entries, newest first.
func (s *MongoStore) List(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(listLimit(limit)))
	cursor, err := s.entries.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, collectionError(err, "list").Category(errors.CategoryDatabase).Build()
	}
	defer func() { _ = cursor.Close(ctx) }()

	entries := []Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, collectionError(err, "decode").Category(errors.CategoryDatabase).Build()
	}
	return entries, nil
}

// Count returns the number of entries an owner has.
func (s *MongoStore) Count(ctx context.Context, ownerID string) (int64, error) {
	if err := validateOwner(ownerID); err != nil {
		return 0, err
	}
	count, err := s.entries.CountDocuments(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, collectionError(err, "count").Category(errors.CategoryDatabase).Build()
	}
	return count, nil
}

// Close disconnects the client when the store owns it.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
