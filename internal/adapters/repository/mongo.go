package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

const driverMongo = "mongo"

// MongoStore keeps ratings in a MongoDB collection, one document per photo
// keyed by image id. It backs the cloud mirror.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger logger.Logger
}

// OpenMongoStore connects to uri and pings the server before returning.
func OpenMongoStore(ctx context.Context, uri, database string, opts ...Option) (*MongoStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cctx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, mongoopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(o.collection),
		logger: o.logger,
	}, nil
}

// Get returns the stored entry or the default one.
func (s *MongoStore) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(driverMongo, msSince(start)) }()
	return findEntry(ctx, s.coll, imageID)
}

// Set upserts entry.
func (s *MongoStore) Set(ctx context.Context, entry model.RatingEntry) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(driverMongo, msSince(start)) }()
	return replaceEntry(ctx, s.coll, entry)
}

// All returns every document in the collection.
func (s *MongoStore) All(ctx context.Context) ([]model.RatingEntry, error) {
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	var out []model.RatingEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode ratings: %w", err)
	}
	return out, nil
}

// BulkSet upserts entries with one unordered bulk write.
func (s *MongoStore) BulkSet(ctx context.Context, entries []model.RatingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		if err := validate(e); err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": e.ImageID}).
			SetReplacement(e).
			SetUpsert(true))
	}
	if _, err := s.coll.BulkWrite(ctx, models, mongoopts.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upsert ratings: %w", err)
	}
	return nil
}

// Clear deletes every document.
func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear ratings: %w", err)
	}
	return nil
}

// Transact runs fn in a multi-document transaction. The server must be a
// replica set or sharded cluster.
func (s *MongoStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&mongoTx{coll: s.coll, sc: sc})
	})
	return err
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type mongoTx struct {
	coll *mongo.Collection
	sc   mongo.SessionContext
}

// The session context carries the transaction; the caller's ctx is ignored.
func (t *mongoTx) Get(_ context.Context, imageID string) (model.RatingEntry, error) {
	return findEntry(t.sc, t.coll, imageID)
}

func (t *mongoTx) Set(_ context.Context, entry model.RatingEntry) error {
	return replaceEntry(t.sc, t.coll, entry)
}

func findEntry(ctx context.Context, coll *mongo.Collection, imageID string) (model.RatingEntry, error) {
	var e model.RatingEntry
	err := coll.FindOne(ctx, bson.M{"_id": imageID}).Decode(&e)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return model.NewRatingEntry(imageID), nil
	case err != nil:
		return model.RatingEntry{}, fmt.Errorf("get rating %s: %w", imageID, err)
	}
	return e, nil
}

func replaceEntry(ctx context.Context, coll *mongo.Collection, entry model.RatingEntry) error {
	if err := validate(entry); err != nil {
		return err
	}
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": entry.ImageID}, entry, mongoopts.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save rating %s: %w", entry.ImageID, err)
	}
	return nil
}
