// Package repository defines the rating store interface and its drivers.
package repository

import (
	"context"

	"github.com/okian/catbracket/internal/domain/model"
)

// Store provides read/write access to per-photo ratings.
type Store interface {
	// Get returns the entry for imageID, or the default entry
	// (rating 1500, no history) when none is stored.
	Get(ctx context.Context, imageID string) (model.RatingEntry, error)

	// Set persists entry, replacing any previous entry for the same photo.
	Set(ctx context.Context, entry model.RatingEntry) error

	// All returns every stored entry. Order is unspecified.
	All(ctx context.Context) ([]model.RatingEntry, error)

	// BulkSet persists entries in one batch. It does not clear first.
	BulkSet(ctx context.Context, entries []model.RatingEntry) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// Tx is the read/write view of a store inside a transaction.
type Tx interface {
	Get(ctx context.Context, imageID string) (model.RatingEntry, error)
	Set(ctx context.Context, entry model.RatingEntry) error
}

// Transactor is implemented by stores that can apply several writes atomically.
// When fn returns an error, none of its writes are visible.
type Transactor interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// validate rejects entries that cannot be stored under a key.
func validate(entry model.RatingEntry) error {
	if entry.ImageID == "" {
		return ErrEmptyImageID
	}
	return nil
}
