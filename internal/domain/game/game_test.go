package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/catbracket/internal/adapters/repository"
	"github.com/okian/catbracket/internal/domain/elo"
	"github.com/okian/catbracket/internal/domain/model"
)

// inOrder never swaps, so selection keeps catalog order.
type inOrder struct{}

func (inOrder) Intn(n int) int { return n - 1 }

type countingCatalog struct {
	photos []model.Photo
	err    error
	calls  atomic.Int32
}

func (c *countingCatalog) ListPhotos(context.Context) ([]model.Photo, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.photos, nil
}

type flakyRecorder struct {
	Recorder
	mu    sync.Mutex
	fails int
}

func (f *flakyRecorder) RecordWin(ctx context.Context, w, l string) (elo.Result, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return elo.Result{}, errors.New("store offline")
	}
	f.mu.Unlock()
	return f.Recorder.RecordWin(ctx, w, l)
}

func cats(n int) []model.Photo {
	out := make([]model.Photo, n)
	for i := range out {
		out[i] = model.Photo{ID: fmt.Sprintf("P%d", i+1)}
	}
	return out
}

type fixture struct {
	catalog *countingCatalog
	store   *repository.MemoryStore
	engine  *elo.Engine
	game    *Game
}

func newFixture(n int) *fixture {
	f := &fixture{catalog: &countingCatalog{photos: cats(n)}, store: repository.NewMemoryStore()}
	f.engine = elo.NewEngine(f.store)
	f.game = New(f.catalog, f.store, f.engine, WithRand(inOrder{}))
	return f
}

func (f *fixture) rating(id string) model.RatingEntry {
	e, err := f.store.Get(context.Background(), id)
	So(err, ShouldBeNil)
	return e
}

func current(g *Game) model.Matchup {
	m, ok := g.Current()
	So(ok, ShouldBeTrue)
	return m
}

func TestGameFourPhotoTournament(t *testing.T) {
	Convey("Given four fresh photos", t, func() {
		ctx := context.Background()
		f := newFixture(4)
		f.game.Start(ctx)

		Convey("The first round pairs P1-P2 and P3-P4", func() {
			snap := f.game.Snapshot()
			So(snap.State, ShouldEqual, StatePlaying)
			So(snap.Round, ShouldEqual, 1)
			So(snap.TotalRounds, ShouldEqual, 2)
			So(snap.MatchesInRound, ShouldEqual, 2)
			m := current(f.game)
			So(m.Left.ID, ShouldEqual, "P1")
			So(m.Right.ID, ShouldEqual, "P2")
		})

		Convey("When P1, P3 and then P1 win", func() {
			So(f.game.Resolve(ctx, Choice("P1")), ShouldBeNil)
			So(f.rating("P1").Rating, ShouldEqual, 1516)
			So(f.rating("P2").Rating, ShouldEqual, 1484)

			So(f.game.Resolve(ctx, Choice("P3")), ShouldBeNil)
			snap := f.game.Snapshot()
			So(snap.Round, ShouldEqual, 2)
			So(snap.MatchInRound, ShouldEqual, 1)
			m := current(f.game)
			So(m.Left.ID, ShouldEqual, "P1")
			So(m.Right.ID, ShouldEqual, "P3")

			So(f.game.Resolve(ctx, Choice("P1")), ShouldBeNil)

			Convey("Then P1 is champion at rank 1", func() {
				snap := f.game.Snapshot()
				So(snap.State, ShouldEqual, StateFinale)
				So(snap.Champion, ShouldNotBeNil)
				So(snap.Champion.Photo.ID, ShouldEqual, "P1")
				So(snap.Champion.Rank, ShouldEqual, 1)
				So(snap.Champion.Entry.Rating, ShouldEqual, 1532)
				So(snap.Champion.Entry.Wins, ShouldEqual, 2)
				So(snap.Current, ShouldBeNil)
			})

			Convey("And further outcomes are refused", func() {
				So(errors.Is(f.game.Resolve(ctx, Choice("P1")), ErrNotPlaying), ShouldBeTrue)
			})

			Convey("And playing again reuses the cached catalog", func() {
				f.game.Restart(ctx)
				So(f.game.State(), ShouldEqual, StatePlaying)
				So(f.catalog.calls.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestGameNoDecision(t *testing.T) {
	Convey("Given two fresh photos", t, func() {
		ctx := context.Background()
		f := newFixture(2)
		f.game.Start(ctx)

		Convey("When the only match ends without a decision", func() {
			So(f.game.Resolve(ctx, NoDecision()), ShouldBeNil)

			Convey("Then both lose 16 points", func() {
				for _, id := range []string{"P1", "P2"} {
					e := f.rating(id)
					So(e.Rating, ShouldEqual, 1484)
					So(e.Matchups, ShouldEqual, 1)
					So(e.Wins, ShouldEqual, 0)
					So(e.Losses, ShouldEqual, 1)
				}
			})

			Convey("And the tournament restarts without refetching", func() {
				snap := f.game.Snapshot()
				So(snap.State, ShouldEqual, StatePlaying)
				So(snap.Round, ShouldEqual, 1)
				So(snap.Restarts, ShouldEqual, 1)
				So(f.catalog.calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given four photos where only the first match is decided", t, func() {
		ctx := context.Background()
		f := newFixture(4)
		f.game.Start(ctx)
		So(f.game.Resolve(ctx, Choice("P2")), ShouldBeNil)
		So(f.game.Resolve(ctx, NoDecision()), ShouldBeNil)

		Convey("Then the lone winner is champion", func() {
			snap := f.game.Snapshot()
			So(snap.State, ShouldEqual, StateFinale)
			So(snap.Champion.Photo.ID, ShouldEqual, "P2")
			So(snap.Champion.Rank, ShouldEqual, 1)
		})
	})

	Convey("Given six photos where the middle match is undecided", t, func() {
		ctx := context.Background()
		f := newFixture(6)
		f.game.Start(ctx)
		So(f.game.Resolve(ctx, Choice("P1")), ShouldBeNil)
		So(f.game.Resolve(ctx, NoDecision()), ShouldBeNil)
		So(f.game.Snapshot().Round, ShouldEqual, 1)
		So(f.game.Resolve(ctx, Choice("P6")), ShouldBeNil)

		Convey("Then round two pairs the two winners", func() {
			snap := f.game.Snapshot()
			So(snap.Round, ShouldEqual, 2)
			So(snap.MatchesInRound, ShouldEqual, 1)
			m := current(f.game)
			So(m.Left.ID, ShouldEqual, "P1")
			So(m.Right.ID, ShouldEqual, "P6")
			So(snap.TotalRounds, ShouldEqual, 3)
		})
	})
}

func TestGameOddField(t *testing.T) {
	Convey("Given three photos", t, func() {
		ctx := context.Background()
		f := newFixture(3)
		f.game.Start(ctx)

		Convey("The third photo is dropped and the single match decides the title", func() {
			snap := f.game.Snapshot()
			So(snap.MatchesInRound, ShouldEqual, 1)
			So(snap.TotalRounds, ShouldEqual, 2)
			So(f.game.Resolve(ctx, Choice("P2")), ShouldBeNil)
			So(f.game.State(), ShouldEqual, StateFinale)
			So(f.rating("P3").Matchups, ShouldEqual, 0)
		})
	})
}

func TestGameCannotStart(t *testing.T) {
	Convey("Given a catalog with one photo", t, func() {
		f := newFixture(1)
		f.game.Start(context.Background())

		Convey("The game is not-enough for too few photos", func() {
			snap := f.game.Snapshot()
			So(snap.State, ShouldEqual, StateNotEnough)
			So(snap.Reason, ShouldEqual, ReasonTooFewPhotos)
			So(snap.Cause, ShouldBeNil)
		})
	})

	Convey("Given a failing catalog", t, func() {
		f := newFixture(0)
		f.catalog.err = errors.New("dns failure")
		f.game.Start(context.Background())

		Convey("The game is not-enough because the catalog is unavailable", func() {
			snap := f.game.Snapshot()
			So(snap.State, ShouldEqual, StateNotEnough)
			So(snap.Reason, ShouldEqual, ReasonUnavailable)
			So(snap.Cause, ShouldNotBeNil)
		})

		Convey("Run reports why", func() {
			g := New(f.catalog, f.store, f.engine)
			err := Run(context.Background(), g, PresenterFunc(func(context.Context, model.Matchup, time.Time, func(Outcome)) {}), time.Second)
			So(errors.Is(err, ErrCannotStart), ShouldBeTrue)
		})
	})

	Convey("Given a closed rating store", t, func() {
		f := newFixture(4)
		So(f.store.Close(), ShouldBeNil)
		f.game.Start(context.Background())

		Convey("The ratings are unavailable", func() {
			So(f.game.Snapshot().Reason, ShouldEqual, ReasonUnavailable)
		})
	})
}

func TestGameResolveErrors(t *testing.T) {
	Convey("Given a game in play", t, func() {
		ctx := context.Background()
		f := newFixture(4)
		rec := &flakyRecorder{Recorder: f.engine, fails: 1}
		g := New(f.catalog, f.store, rec, WithRand(inOrder{}))
		g.Start(ctx)

		Convey("A winner outside the match is rejected", func() {
			So(errors.Is(g.Resolve(ctx, Choice("P4")), ErrUnknownCompetitor), ShouldBeTrue)
			So(current(g).Left.ID, ShouldEqual, "P1")
		})

		Convey("A store failure leaves the game where it was", func() {
			err := g.Resolve(ctx, Choice("P1"))
			So(err, ShouldNotBeNil)
			snap := g.Snapshot()
			So(snap.MatchInRound, ShouldEqual, 1)
			So(snap.State, ShouldEqual, StatePlaying)

			Convey("And a retry succeeds", func() {
				So(g.Resolve(ctx, Choice("P1")), ShouldBeNil)
				So(g.Snapshot().MatchInRound, ShouldEqual, 2)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a presenter that always picks the left photo", t, func() {
		f := newFixture(8)
		left := PresenterFunc(func(_ context.Context, m model.Matchup, _ time.Time, decide func(Outcome)) {
			decide(Choice(m.Left.ID))
			decide(Choice(m.Right.ID))
		})

		Convey("Run plays to the finale", func() {
			So(Run(context.Background(), f.game, left, time.Second), ShouldBeNil)
			snap := f.game.Snapshot()
			So(snap.State, ShouldEqual, StateFinale)
			So(snap.Champion.Photo.ID, ShouldEqual, "P1")
			So(f.rating("P1").Wins, ShouldEqual, 3)
			So(f.rating("P2").Losses, ShouldEqual, 1)
		})
	})

	Convey("Given a presenter that never answers", t, func() {
		f := newFixture(2)
		silent := PresenterFunc(func(ctx context.Context, _ model.Matchup, _ time.Time, _ func(Outcome)) {
			<-ctx.Done()
		})

		Convey("Each match times out into a no-decision", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			err := Run(ctx, f.game, silent, 30*time.Millisecond)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			e := f.rating("P1")
			So(e.Matchups, ShouldBeGreaterThanOrEqualTo, 1)
			So(e.Wins, ShouldEqual, 0)
			So(e.Losses, ShouldEqual, e.Matchups)
			So(f.game.Snapshot().Restarts, ShouldBeGreaterThanOrEqualTo, 1)
		})
	})
}
