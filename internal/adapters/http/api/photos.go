package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/catbracket/internal/domain/model"
)

// PhotoDependencies lists the catalog.
type PhotoDependencies interface {
	Photos(ctx context.Context) ([]model.Photo, error)
}

// PhotoHandler serves the catalog.
type PhotoHandler struct {
	deps PhotoDependencies
}

// NewPhotoHandler creates a new photo handler.
func NewPhotoHandler(deps PhotoDependencies) *PhotoHandler {
	return &PhotoHandler{deps: deps}
}

// HandleListPhotos handles GET /photos.
func (h *PhotoHandler) HandleListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.deps.Photos(r.Context())
	if err != nil {
		writeFailure(w, fmt.Errorf("api.list_photos: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, photos)
}
