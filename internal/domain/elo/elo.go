// Package elo applies Elo rating updates to stored photo ratings.
package elo

import (
	"math"

	"github.com/okian/catbracket/internal/domain/model"
)

// Rating constants.
const (
	K     = 32  // maximum points exchanged per match
	Scale = 400 // rating gap at which the favourite is expected to win 10:1
)

// Expected is the probability that a rating of a beats a rating of b.
func Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/Scale))
}

// round rounds half up, so -0.5 goes to 0.
func round(f float64) int {
	return int(math.Floor(f + .5))
}

// ApplyWin returns the winner and loser entries after a decided match.
// Both sides are computed from the pre-match ratings.
func ApplyWin(winner, loser model.RatingEntry) (model.RatingEntry, model.RatingEntry) {
	ew := Expected(winner.Rating, loser.Rating)
	el := Expected(loser.Rating, winner.Rating)

	winner.Rating = round(float64(winner.Rating) + K*(1-ew))
	loser.Rating = round(float64(loser.Rating) + K*(0-el))
	winner.Wins++
	loser.Losses++
	winner.Matchups++
	loser.Matchups++
	return winner, loser
}

// ApplyNoDecision returns both entries after a match nobody picked.
// Each side takes the loss update against the other's pre-match rating.
func ApplyNoDecision(a, b model.RatingEntry) (model.RatingEntry, model.RatingEntry) {
	ea := Expected(a.Rating, b.Rating)
	eb := Expected(b.Rating, a.Rating)

	a.Rating = round(float64(a.Rating) + K*(0-ea))
	b.Rating = round(float64(b.Rating) + K*(0-eb))
	a.Losses++
	b.Losses++
	a.Matchups++
	b.Matchups++
	return a, b
}
