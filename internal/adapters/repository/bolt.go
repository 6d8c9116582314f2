package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asdine/storm"
	bolt "go.etcd.io/bbolt"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

const (
	driverBolt      = "bolt"
	boltOpenTimeout = time.Second
)

// ratingRecord is the on-disk shape of a rating entry.
type ratingRecord struct {
	ImageID  string `storm:"id"`
	Rating   int
	Wins     int
	Losses   int
	Matchups int
}

func toRecord(e model.RatingEntry) *ratingRecord {
	return &ratingRecord{ImageID: e.ImageID, Rating: e.Rating, Wins: e.Wins, Losses: e.Losses, Matchups: e.Matchups}
}

func (r ratingRecord) entry() model.RatingEntry {
	return model.RatingEntry{ImageID: r.ImageID, Rating: r.Rating, Wins: r.Wins, Losses: r.Losses, Matchups: r.Matchups}
}

// BoltStore persists ratings in a single bbolt file through storm.
type BoltStore struct {
	db     *storm.DB
	logger logger.Logger
}

// OpenBoltStore opens (creating if needed) the database at path.
func OpenBoltStore(path string, opts ...Option) (*BoltStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	db, err := storm.Open(path, storm.BoltOptions(0o600, &bolt.Options{Timeout: boltOpenTimeout}))
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	if err := db.Init(&ratingRecord{}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt store %s: %w", path, err)
	}
	return &BoltStore{db: db, logger: o.logger}, nil
}

// Get returns the stored entry or the default one.
func (s *BoltStore) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(driverBolt, msSince(start)) }()

	if err := ctx.Err(); err != nil {
		return model.RatingEntry{}, err
	}
	return getRecord(s.db, imageID)
}

// Set stores entry.
func (s *BoltStore) Set(ctx context.Context, entry model.RatingEntry) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(driverBolt, msSince(start)) }()

	if err := validate(entry); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Save(toRecord(entry)); err != nil {
		return fmt.Errorf("save rating %s: %w", entry.ImageID, err)
	}
	return nil
}

// All returns every stored entry in key order.
func (s *BoltStore) All(ctx context.Context) ([]model.RatingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []ratingRecord
	if err := s.db.All(&recs); err != nil && !errors.Is(err, storm.ErrNotFound) {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	out := make([]model.RatingEntry, len(recs))
	for i, r := range recs {
		out[i] = r.entry()
	}
	metrics.UpdateRepositoryRecordsTotal(len(out))
	return out, nil
}

// BulkSet stores all entries in one bolt transaction.
func (s *BoltStore) BulkSet(ctx context.Context, entries []model.RatingEntry) error {
	return s.Transact(ctx, func(tx Tx) error {
		for _, e := range entries {
			if err := tx.Set(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear drops the ratings bucket.
func (s *BoltStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Drop(&ratingRecord{}); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return fmt.Errorf("clear ratings: %w", err)
	}
	metrics.UpdateRepositoryRecordsTotal(0)
	return nil
}

// Transact runs fn inside a writable bolt transaction.
func (s *BoltStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := s.db.Begin(true)
	if err != nil {
		return fmt.Errorf("begin bolt tx: %w", err)
	}
	defer func() { _ = node.Rollback() }()

	if err := fn(&boltTx{node: node}); err != nil {
		return err
	}
	if err := node.Commit(); err != nil {
		return fmt.Errorf("commit bolt tx: %w", err)
	}
	return nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltTx struct {
	node storm.Node
}

func (t *boltTx) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.RatingEntry{}, err
	}
	return getRecord(t.node, imageID)
}

func (t *boltTx) Set(ctx context.Context, entry model.RatingEntry) error {
	if err := validate(entry); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.node.Save(toRecord(entry)); err != nil {
		return fmt.Errorf("save rating %s: %w", entry.ImageID, err)
	}
	return nil
}

type finder interface {
	One(fieldName string, value interface{}, to interface{}) error
}

func getRecord(f finder, imageID string) (model.RatingEntry, error) {
	var rec ratingRecord
	err := f.One("ImageID", imageID, &rec)
	switch {
	case errors.Is(err, storm.ErrNotFound):
		return model.NewRatingEntry(imageID), nil
	case err != nil:
		return model.RatingEntry{}, fmt.Errorf("get rating %s: %w", imageID, err)
	}
	return rec.entry(), nil
}
