package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/logger"
)

// Publisher hands written entries to an asynchronous replicator.
// Publish reports false when the entry was dropped.
type Publisher interface {
	Publish(ctx context.Context, entry model.RatingEntry) bool
}

// MirroredStore writes to a primary store and publishes every committed
// entry so it can be copied to a remote store. Reads come from the primary.
// Clear is applied to the remote synchronously.
type MirroredStore struct {
	primary Store
	remote  Store
	pub     Publisher
	logger  logger.Logger
}

// NewMirroredStore wraps primary. remote may be nil, in which case Clear
// only affects the primary.
func NewMirroredStore(primary, remote Store, pub Publisher, opts ...Option) *MirroredStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MirroredStore{primary: primary, remote: remote, pub: pub, logger: o.logger}
}

// Get reads from the primary.
func (m *MirroredStore) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	return m.primary.Get(ctx, imageID)
}

// All reads from the primary.
func (m *MirroredStore) All(ctx context.Context) ([]model.RatingEntry, error) {
	return m.primary.All(ctx)
}

// Set writes to the primary then publishes.
func (m *MirroredStore) Set(ctx context.Context, entry model.RatingEntry) error {
	if err := m.primary.Set(ctx, entry); err != nil {
		return err
	}
	m.publish(ctx, entry)
	return nil
}

// BulkSet writes to the primary then publishes each entry.
func (m *MirroredStore) BulkSet(ctx context.Context, entries []model.RatingEntry) error {
	if err := m.primary.BulkSet(ctx, entries); err != nil {
		return err
	}
	for _, e := range entries {
		m.publish(ctx, e)
	}
	return nil
}

// Clear clears the primary and then the remote.
func (m *MirroredStore) Clear(ctx context.Context) error {
	if err := m.primary.Clear(ctx); err != nil {
		return err
	}
	if m.remote == nil {
		return nil
	}
	if err := m.remote.Clear(ctx); err != nil {
		return fmt.Errorf("clear mirror: %w", err)
	}
	return nil
}

// Transact delegates to the primary when it supports transactions and
// publishes the staged entries after commit.
func (m *MirroredStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	tr, ok := m.primary.(Transactor)
	if !ok {
		return fn(&directTx{store: m})
	}
	var written []model.RatingEntry
	err := tr.Transact(ctx, func(tx Tx) error {
		written = written[:0]
		return fn(&recordingTx{Tx: tx, written: &written})
	})
	if err != nil {
		return err
	}
	for _, e := range written {
		m.publish(ctx, e)
	}
	return nil
}

// Close closes the primary and the remote.
func (m *MirroredStore) Close() error {
	err := m.primary.Close()
	if m.remote != nil {
		err = errors.Join(err, m.remote.Close())
	}
	return err
}

func (m *MirroredStore) publish(ctx context.Context, e model.RatingEntry) {
	if m.pub == nil {
		return
	}
	if !m.pub.Publish(ctx, e) {
		m.logger.Warn(ctx, "mirror dropped rating", logger.String("image_id", e.ImageID))
	}
}

type recordingTx struct {
	Tx
	written *[]model.RatingEntry
}

func (t *recordingTx) Set(ctx context.Context, entry model.RatingEntry) error {
	if err := t.Tx.Set(ctx, entry); err != nil {
		return err
	}
	*t.written = append(*t.written, entry)
	return nil
}

type directTx struct {
	store *MirroredStore
}

func (t *directTx) Get(ctx context.Context, imageID string) (model.RatingEntry, error) {
	return t.store.Get(ctx, imageID)
}

func (t *directTx) Set(ctx context.Context, entry model.RatingEntry) error {
	return t.store.Set(ctx, entry)
}
