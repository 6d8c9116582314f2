package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/catbracket/internal/domain/model"
)

func TestBallot(t *testing.T) {
	m := model.Matchup{Left: model.Photo{ID: "a"}, Right: model.Photo{ID: "b"}}

	Convey("Given an open ballot", t, func() {
		var calls atomic.Int32
		var got Outcome
		var mu sync.Mutex
		b := NewBallot(1, m, time.Hour, func(o Outcome) {
			calls.Add(1)
			mu.Lock()
			got = o
			mu.Unlock()
		})

		Convey("The first choice wins and later ones are ignored", func() {
			So(b.Resolve(Choice("a")), ShouldBeTrue)
			So(b.Resolve(Choice("b")), ShouldBeFalse)
			So(b.Resolve(NoDecision()), ShouldBeFalse)
			So(calls.Load(), ShouldEqual, 1)
			So(got.WinnerID, ShouldEqual, "a")
			So(b.Closed(), ShouldBeTrue)
		})

		Convey("A photo outside the match does not close it", func() {
			So(b.Resolve(Choice("zzz")), ShouldBeFalse)
			So(b.Closed(), ShouldBeFalse)
			So(calls.Load(), ShouldEqual, 0)
		})

		Convey("A cancelled ballot never decides", func() {
			b.Cancel()
			So(b.Resolve(Choice("a")), ShouldBeFalse)
			So(calls.Load(), ShouldEqual, 0)
		})

		Convey("Concurrent resolvers produce exactly one decision", func() {
			var wg sync.WaitGroup
			var wins atomic.Int32
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					o := Choice("a")
					if i%2 == 0 {
						o = NoDecision()
					}
					if b.Resolve(o) {
						wins.Add(1)
					}
				}(i)
			}
			wg.Wait()
			So(wins.Load(), ShouldEqual, 1)
			So(calls.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given a ballot with a short deadline", t, func() {
		done := make(chan Outcome, 1)
		b := NewBallot(1, m, 10*time.Millisecond, func(o Outcome) { done <- o })

		Convey("It resolves to no-decision on its own", func() {
			select {
			case o := <-done:
				So(o.Decided(), ShouldBeFalse)
			case <-time.After(time.Second):
				So("deadline never fired", ShouldBeEmpty)
			}
			So(b.Resolve(Choice("a")), ShouldBeFalse)
		})
	})
}

func TestSession(t *testing.T) {
	Convey("Given a session over four photos", t, func() {
		ctx := context.Background()
		f := newFixture(4)
		s := NewSession(ctx, "s1", f.game, time.Hour)
		defer s.Close()

		snap, err := s.Start(ctx)
		So(err, ShouldBeNil)
		So(snap.State, ShouldEqual, StatePlaying)
		So(snap.Seq, ShouldEqual, 1)
		So(snap.Deadline.After(time.Now()), ShouldBeTrue)

		Convey("Deciding the open match advances the bracket", func() {
			snap, err := s.Decide(ctx, 1, "P1")
			So(err, ShouldBeNil)
			So(snap.Seq, ShouldEqual, 2)
			So(snap.Current.Left.ID, ShouldEqual, "P3")

			Convey("And replaying the same decision is stale", func() {
				_, err := s.Decide(ctx, 1, "P1")
				So(errors.Is(err, ErrStaleMatch), ShouldBeTrue)
				So(f.rating("P1").Matchups, ShouldEqual, 1)
			})
		})

		Convey("An outsider is rejected without consuming the match", func() {
			_, err := s.Decide(ctx, 1, "P4")
			So(errors.Is(err, ErrUnknownCompetitor), ShouldBeTrue)
			snap, err := s.Decide(ctx, 1, "P2")
			So(err, ShouldBeNil)
			So(snap.MatchInRound, ShouldEqual, 2)
		})

		Convey("An empty pick records a no-decision", func() {
			_, err := s.Decide(ctx, 1, "")
			So(err, ShouldBeNil)
			So(f.rating("P1").Rating, ShouldEqual, 1484)
			So(f.rating("P2").Rating, ShouldEqual, 1484)
		})

		Convey("Playing every match reaches the finale", func() {
			_, err := s.Decide(ctx, 1, "P1")
			So(err, ShouldBeNil)
			_, err = s.Decide(ctx, 2, "P4")
			So(err, ShouldBeNil)
			snap, err := s.Decide(ctx, 3, "P4")
			So(err, ShouldBeNil)
			So(snap.State, ShouldEqual, StateFinale)
			So(snap.Champion.Photo.ID, ShouldEqual, "P4")
			So(snap.Seq, ShouldEqual, 0)

			Convey("And restart opens a fresh tournament", func() {
				snap, err := s.Restart(ctx)
				So(err, ShouldBeNil)
				So(snap.State, ShouldEqual, StatePlaying)
				So(snap.Seq, ShouldEqual, 4)
			})
		})

		Convey("A closed session refuses decisions", func() {
			s.Close()
			_, err := s.Decide(ctx, 1, "P1")
			So(errors.Is(err, ErrSessionClosed), ShouldBeTrue)
		})
	})

	Convey("Given a session with a short match timeout", t, func() {
		ctx := context.Background()
		f := newFixture(4)
		s := NewSession(ctx, "s2", f.game, 20*time.Millisecond)
		defer s.Close()
		_, err := s.Start(ctx)
		So(err, ShouldBeNil)

		Convey("An unanswered match resolves itself and late picks are stale", func() {
			deadline := time.Now().Add(2 * time.Second)
			for s.Snapshot().Seq == 1 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			So(s.Snapshot().Seq, ShouldBeGreaterThan, 1)
			_, err := s.Decide(ctx, 1, "P1")
			So(errors.Is(err, ErrStaleMatch), ShouldBeTrue)

			// Later deadlines may have fired too; only no-decisions happened.
			e := f.rating("P1")
			So(e.Rating, ShouldBeLessThanOrEqualTo, 1484)
			So(e.Wins, ShouldEqual, 0)
			So(e.Losses, ShouldEqual, e.Matchups)
		})
	})

	Convey("Given a session whose store fails once", t, func() {
		ctx := context.Background()
		f := newFixture(4)
		rec := &flakyRecorder{Recorder: f.engine, fails: 1}
		s := NewSession(ctx, "s3", New(f.catalog, f.store, rec, WithRand(inOrder{})), time.Hour)
		defer s.Close()
		_, err := s.Start(ctx)
		So(err, ShouldBeNil)

		Convey("The error is returned and the same match reopens", func() {
			snap, err := s.Decide(ctx, 1, "P1")
			So(err, ShouldNotBeNil)
			So(snap.LastError, ShouldNotBeEmpty)
			So(snap.Seq, ShouldEqual, 2)
			So(snap.MatchInRound, ShouldEqual, 1)

			snap, err = s.Decide(ctx, 2, "P1")
			So(err, ShouldBeNil)
			So(snap.MatchInRound, ShouldEqual, 2)
			So(snap.LastError, ShouldBeEmpty)
		})
	})
}
