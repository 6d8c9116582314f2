// Package catalog lists the photos that can enter a tournament.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/metrics"
)

// ErrUnavailable wraps every failure to reach or read a catalog backend.
var ErrUnavailable = errors.New("photo catalog unavailable")

// Catalog returns the full list of photos, newest first.
type Catalog interface {
	ListPhotos(ctx context.Context) ([]model.Photo, error)
}

// Static serves a fixed list of photos.
type Static struct {
	photos []model.Photo
}

// NewStatic returns a catalog over a copy of photos.
func NewStatic(photos []model.Photo) *Static {
	return &Static{photos: append([]model.Photo(nil), photos...)}
}

// ListPhotos returns a copy of the configured photos.
func (s *Static) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]model.Photo(nil), s.photos...), nil
}

func observe(driver string, start time.Time, photos []model.Photo) {
	metrics.RecordCatalogFetch(driver, float64(time.Since(start).Microseconds())/1000, len(photos))
}
