// Package standings orders rating entries into a leaderboard.
package standings

import (
	"sort"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/internal/domain/types"
)

// Played returns the entries with at least one matchup, highest rating
// first. Equal ratings are ordered by image id so positions are stable.
func Played(entries []model.RatingEntry) []model.RatingEntry {
	out := make([]model.RatingEntry, 0, len(entries))
	for _, e := range entries {
		if e.Matchups > 0 {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ImageID < out[j].ImageID
	})
	return out
}

// Position is the 1-based place of imageID in a Played list, or 0.
func Position(played []model.RatingEntry, imageID string) int {
	for i, e := range played {
		if e.ImageID == imageID {
			return i + 1
		}
	}
	return 0
}

// Top converts the first n played entries into leaderboard rows. n <= 0
// returns every row.
func Top(entries []model.RatingEntry, n int) []types.Entry {
	played := Played(entries)
	if n > 0 && n < len(played) {
		played = played[:n]
	}
	rows := make([]types.Entry, len(played))
	for i, e := range played {
		rows[i] = Row(e, i+1)
	}
	return rows
}

// Row builds a leaderboard row for e at rank.
func Row(e model.RatingEntry, rank int) types.Entry {
	return types.Entry{
		Rank:     rank,
		ImageID:  e.ImageID,
		Rating:   e.Rating,
		Wins:     e.Wins,
		Losses:   e.Losses,
		Matchups: e.Matchups,
		WinRate:  e.WinRate(),
	}
}
