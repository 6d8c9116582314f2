// Package model contains domain models passed between layers.
package model

import "time"

// DefaultRating is the rating assigned to a photo that has never been rated.
const DefaultRating = 1500

// Photo is a single contestant in a tournament.
type Photo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	// URL is a display location resolved by the catalog, when it knows one.
	URL string `json:"url,omitempty"`
	// ThumbURL is a smaller rendition for list views.
	ThumbURL string `json:"thumb_url,omitempty"`
}

// RatingEntry is the persistent rating record of one photo.
type RatingEntry struct {
	ImageID  string `json:"image_id" bson:"_id"`
	Rating   int    `json:"rating" bson:"rating"`
	Wins     int    `json:"wins" bson:"wins"`
	Losses   int    `json:"losses" bson:"losses"`
	Matchups int    `json:"matchups" bson:"matchups"`
}

// NewRatingEntry returns the default entry for a photo with no history.
func NewRatingEntry(imageID string) RatingEntry {
	return RatingEntry{ImageID: imageID, Rating: DefaultRating}
}

// WinRate is wins over matchups, zero when the photo has not played.
func (e RatingEntry) WinRate() float64 {
	if e.Matchups == 0 {
		return 0
	}
	return float64(e.Wins) / float64(e.Matchups)
}

// Matchup is an ordered pair of photos; Left is presented first.
type Matchup struct {
	Left  Photo `json:"left"`
	Right Photo `json:"right"`
}

// Has reports whether id belongs to one of the two competitors.
func (m Matchup) Has(id string) bool {
	return id != "" && (m.Left.ID == id || m.Right.ID == id)
}

// Split returns the competitor with id and its opponent.
func (m Matchup) Split(id string) (winner, loser Photo, ok bool) {
	switch id {
	case "":
		return Photo{}, Photo{}, false
	case m.Left.ID:
		return m.Left, m.Right, true
	case m.Right.ID:
		return m.Right, m.Left, true
	}
	return Photo{}, Photo{}, false
}
