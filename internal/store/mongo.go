package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const stateCollection = "storefront_state"

// stateDocument holds one key. Removal is a soft delete so that the change
// stream still carries the origin of the writer.
type stateDocument struct {
	ID        string    `bson:"_id"`
	Namespace string    `bson:"namespace"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	Removed   bool      `bson:"removed"`
	Origin    string    `bson:"origin"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoStore struct {
	collection *mongo.Collection
	namespace  string
	origin     string
	log        *slog.Logger
	listeners  *listeners

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMongoStore(db *mongo.Database, namespace, origin string, log *slog.Logger) *MongoStore {
	return &MongoStore{
		collection: db.Collection(stateCollection),
		namespace:  namespace,
		origin:     origin,
		log:        log,
		listeners:  newListeners(),
	}
}

// MongoOpener opens one MongoStore per origin over a shared database handle.
func MongoOpener(db *mongo.Database, log *slog.Logger) Opener {
	return func(_ context.Context, namespace, origin string) (Store, error) {
		return NewMongoStore(db, namespace, origin, log), nil
	}
}

func (m *MongoStore) Get(ctx context.Context, key string) (string, error) {
	var doc stateDocument

	filter := bson.M{"_id": m.docID(key), "removed": false}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return doc.Value, nil
}

func (m *MongoStore) Set(ctx context.Context, key, value string) error {
	return m.upsert(ctx, key, value, false)
}

func (m *MongoStore) Remove(ctx context.Context, key string) error {
	return m.upsert(ctx, key, "", true)
}

func (m *MongoStore) upsert(ctx context.Context, key, value string, removed bool) error {
	filter := bson.M{"_id": m.docID(key)}
	update := bson.M{
		"$set": bson.M{
			"namespace":  m.namespace,
			"key":        key,
			"value":      value,
			"removed":    removed,
			"origin":     m.origin,
			"updated_at": time.Now(),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert key: %w", err)
	}
	return nil
}

func (m *MongoStore) OnExternalChange(key string, fn ChangeFunc) (func(), error) {
	if err := m.watch(); err != nil {
		return nil, err
	}
	return m.listeners.add(key, fn), nil
}

// watch opens a change stream on the namespace once.
func (m *MongoStore) watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType":          bson.M{"$in": bson.A{"insert", "update", "replace"}},
			"fullDocument.namespace": m.namespace,
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := m.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	m.cancel = cancel

	m.wg.Add(1)
	go m.follow(ctx, stream)
	return nil
}

func (m *MongoStore) follow(ctx context.Context, stream *mongo.ChangeStream) {
	defer m.wg.Done()
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var event struct {
			FullDocument stateDocument `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			m.log.Warn("dropping undecodable change event", slog.Any("error", err))
			continue
		}
		doc := event.FullDocument
		if doc.Origin == m.origin {
			continue
		}
		m.listeners.dispatch(Change{Key: doc.Key, Value: doc.Value, Removed: doc.Removed})
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		m.log.Error("change stream stopped", slog.String("namespace", m.namespace), slog.Any("error", err))
	}
}

// Close stops the change stream; the shared client stays open.
func (m *MongoStore) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
	return nil
}

// EnsureIndexes creates the namespace index and expires documents idle for
// 90 days.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "key", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}

	_, err := db.Collection(stateCollection).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoStore) docID(key string) string {
	return m.namespace + ":" + key
}
