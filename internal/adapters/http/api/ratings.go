package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/catbracket/internal/domain/backup"
)

// RatingDependencies backs up, restores and resets ratings.
type RatingDependencies interface {
	ExportRatings(ctx context.Context) (backup.Document, error)
	ImportRatings(ctx context.Context, doc backup.Document) (int, error)
	ResetRatings(ctx context.Context) error
}

// RatingHandler serves the /ratings routes.
type RatingHandler struct {
	deps RatingDependencies
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(deps RatingDependencies) *RatingHandler {
	return &RatingHandler{deps: deps}
}

type importResponse struct {
	Imported int `json:"imported"`
}

// HandleExport handles GET /ratings/export.
func (h *RatingHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.ExportRatings(r.Context())
	if err != nil {
		writeFailure(w, fmt.Errorf("api.export_ratings: %w", err))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="ratings.json"`)
	writeJSON(w, http.StatusOK, doc)
}

// HandleImport handles POST /ratings/import with a body in the export format.
func (h *RatingHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import_ratings"
	var doc backup.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBytes)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err))
		return
	}
	n, err := h.deps.ImportRatings(r.Context(), doc)
	if err != nil {
		writeFailure(w, fmt.Errorf("%s: %w", op, err))
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}

// HandleReset handles DELETE /ratings.
func (h *RatingHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetRatings(r.Context()); err != nil {
		writeFailure(w, fmt.Errorf("api.reset_ratings: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
