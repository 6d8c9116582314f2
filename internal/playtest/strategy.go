package playtest

import (
	"fmt"
	"math/rand"

	"github.com/okian/catbracket/internal/domain/model"
)

// Strategies understood by NewPicker.
const (
	StrategyLeft     = "left"
	StrategyRight    = "right"
	StrategyRandom   = "random"
	StrategyFavorite = "favorite"
)

// Picker chooses the winner of a match. An empty result is a no-decision.
type Picker func(m model.Matchup) string

// NewPicker returns the picker for strategy. noDecision is the share of
// matches the picker leaves undecided. rng is used by one goroutine only.
func NewPicker(strategy string, noDecision float64, rng *rand.Rand) (Picker, error) {
	var pick Picker
	switch strategy {
	case StrategyLeft:
		pick = func(m model.Matchup) string { return m.Left.ID }
	case StrategyRight:
		pick = func(m model.Matchup) string { return m.Right.ID }
	case StrategyRandom:
		pick = func(m model.Matchup) string {
			if rng.Intn(2) == 0 {
				return m.Left.ID
			}
			return m.Right.ID
		}
	case StrategyFavorite:
		// Always prefer the lexically smaller id, so ratings converge on
		// a known order.
		pick = func(m model.Matchup) string {
			if m.Left.ID < m.Right.ID {
				return m.Left.ID
			}
			return m.Right.ID
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	if noDecision <= 0 {
		return pick, nil
	}
	return func(m model.Matchup) string {
		if rng.Float64() < noDecision {
			return ""
		}
		return pick(m)
	}, nil
}
