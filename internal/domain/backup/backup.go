// Package backup converts ratings to and from the portable export document,
// a JSON object keyed by image id.
package backup

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okian/catbracket/internal/domain/model"
)

// ErrInvalidEntry is returned for entries that cannot be imported.
var ErrInvalidEntry = errors.New("invalid backup entry")

// Entry is one photo in an export document.
type Entry struct {
	ImageID  string `json:"imageId"`
	Elo      int    `json:"elo"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Matchups int    `json:"matchups"`
}

// Document maps image id to its entry.
type Document map[string]Entry

// Export builds a document from stored entries.
func Export(entries []model.RatingEntry) Document {
	doc := make(Document, len(entries))
	for _, e := range entries {
		doc[e.ImageID] = Entry{ImageID: e.ImageID, Elo: e.Rating, Wins: e.Wins, Losses: e.Losses, Matchups: e.Matchups}
	}
	return doc
}

// Import validates doc and returns its entries ordered by image id.
// An entry without imageId takes its key.
func Import(doc Document) ([]model.RatingEntry, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.RatingEntry, 0, len(doc))
	for _, k := range keys {
		e := doc[k]
		id := e.ImageID
		if id == "" {
			id = k
		}
		switch {
		case id == "":
			return nil, fmt.Errorf("%w: empty image id", ErrInvalidEntry)
		case id != k:
			return nil, fmt.Errorf("%w: key %q holds image %q", ErrInvalidEntry, k, id)
		case e.Elo <= 0:
			return nil, fmt.Errorf("%w: %s: rating %d", ErrInvalidEntry, id, e.Elo)
		case e.Wins < 0 || e.Losses < 0 || e.Matchups < 0:
			return nil, fmt.Errorf("%w: %s: negative counters", ErrInvalidEntry, id)
		case e.Matchups != e.Wins+e.Losses:
			return nil, fmt.Errorf("%w: %s: %d matchups for %d wins and %d losses",
				ErrInvalidEntry, id, e.Matchups, e.Wins, e.Losses)
		}
		out = append(out, model.RatingEntry{ImageID: id, Rating: e.Elo, Wins: e.Wins, Losses: e.Losses, Matchups: e.Matchups})
	}
	return out, nil
}
