package game

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/catbracket/internal/domain/model"
)

// Presenter shows a match to a player. It must call decide once with the
// chosen photo or NoDecision; further calls are ignored, and so is any
// call after the deadline has already resolved the match. Present should
// return when ctx is cancelled.
type Presenter interface {
	Present(ctx context.Context, m model.Matchup, deadline time.Time, decide func(Outcome))
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, m model.Matchup, deadline time.Time, decide func(Outcome))

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, m model.Matchup, deadline time.Time, decide func(Outcome)) {
	f(ctx, m, deadline, decide)
}

// Run drives g to the finale, presenting each match through p with a
// per-match timeout. It starts g if it is still loading and returns
// ErrCannotStart when the game ends in not-enough.
func Run(ctx context.Context, g *Game, p Presenter, timeout time.Duration) error {
	if g.State() == StateLoading {
		g.Start(ctx)
	}
	seq := 0
	for g.State() == StatePlaying {
		m, _ := g.Current()
		seq++

		outcomes := make(chan Outcome, 1)
		b := NewBallot(seq, m, timeout, func(o Outcome) { outcomes <- o })
		mctx, cancel := context.WithCancel(ctx)
		go p.Present(mctx, m, b.Deadline(), func(o Outcome) { b.Resolve(o) })

		select {
		case o := <-outcomes:
			cancel()
			if err := g.Resolve(ctx, o); err != nil {
				return fmt.Errorf("match %d: %w", seq, err)
			}
		case <-ctx.Done():
			b.Cancel()
			cancel()
			return ctx.Err()
		}
	}
	if g.State() == StateNotEnough {
		s := g.Snapshot()
		if s.Cause != nil {
			return fmt.Errorf("%w: %s: %w", ErrCannotStart, s.Reason, s.Cause)
		}
		return fmt.Errorf("%w: %s", ErrCannotStart, s.Reason)
	}
	return nil
}
