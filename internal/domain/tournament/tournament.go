// Package tournament selects the photos entering a single-elimination
// bracket and pairs them into matches.
package tournament

import (
	"math"
	"math/bits"
	"sort"

	"github.com/okian/catbracket/internal/domain/model"
)

const (
	// DefaultSize is the number of photos entering a tournament.
	DefaultSize = 32
	// underPlayedShare of the field is reserved for the least-played photos.
	underPlayedShare = 0.7
)

// Rand is the randomness source used for shuffling. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Shuffle permutes photos in place with Fisher-Yates.
func Shuffle(photos []model.Photo, rng Rand) {
	for i := len(photos) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		photos[i], photos[j] = photos[j], photos[i]
	}
}

// SelectCandidates picks up to target photos for a tournament. When there are
// more photos than target it keeps the floor(target*0.7) least-played photos,
// fills the rest at random from the remainder and shuffles the result.
// Photos missing from ratings count as never played. all is not modified.
func SelectCandidates(all []model.Photo, ratings map[string]model.RatingEntry, target int, rng Rand) []model.Photo {
	if target <= 0 {
		target = DefaultSize
	}
	out := append([]model.Photo(nil), all...)
	if len(out) <= target {
		Shuffle(out, rng)
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return ratings[out[i].ID].Matchups < ratings[out[j].ID].Matchups
	})

	keep := int(math.Floor(float64(target) * underPlayedShare))
	rest := out[keep:]
	Shuffle(rest, rng)

	selected := out[:target]
	Shuffle(selected, rng)
	return selected
}

// BuildBracket pairs consecutive photos. An odd last photo is dropped
// without a match being recorded for it.
func BuildBracket(photos []model.Photo) []model.Matchup {
	matchups := make([]model.Matchup, 0, len(photos)/2)
	for i := 0; i+1 < len(photos); i += 2 {
		matchups = append(matchups, model.Matchup{Left: photos[i], Right: photos[i+1]})
	}
	return matchups
}

// EstimateRounds is ceil(log2(n)), zero for n < 2. It is computed once per
// tournament for display and goes stale when odd photos are dropped.
func EstimateRounds(n int) int {
	if n < 2 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
