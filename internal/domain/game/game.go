// Package game runs one player's single-elimination tournament: it picks
// the field, walks the bracket match by match, records every outcome with
// the rating engine and crowns a champion.
package game

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/okian/catbracket/internal/domain/elo"
	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/internal/domain/standings"
	"github.com/okian/catbracket/internal/domain/tournament"
	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

// minPhotos is the smallest field that can produce a match.
const minPhotos = 2

// State is the coarse phase of a game.
type State string

// Game states.
const (
	StateLoading   State = "loading"
	StateNotEnough State = "not-enough"
	StatePlaying   State = "playing"
	StateFinale    State = "finale"
)

// Reason explains a not-enough state.
type Reason string

// Not-enough reasons.
const (
	ReasonNone         Reason = ""
	ReasonTooFewPhotos Reason = "too_few_photos"
	ReasonUnavailable  Reason = "unavailable"
)

// Catalog lists the photos that may enter a tournament.
type Catalog interface {
	ListPhotos(ctx context.Context) ([]model.Photo, error)
}

// Ratings reads stored rating entries.
type Ratings interface {
	Get(ctx context.Context, imageID string) (model.RatingEntry, error)
	All(ctx context.Context) ([]model.RatingEntry, error)
}

// Recorder applies match outcomes to ratings.
type Recorder interface {
	RecordWin(ctx context.Context, winnerID, loserID string) (elo.Result, error)
	RecordNoDecision(ctx context.Context, aID, bID string) error
}

// Outcome is the result of one match: a winner id, or none.
type Outcome struct {
	WinnerID string
}

// NoDecision is the outcome of a match nobody picked in time.
func NoDecision() Outcome { return Outcome{} }

// Choice is the outcome of a match won by id.
func Choice(id string) Outcome { return Outcome{WinnerID: id} }

// Decided reports whether a winner was picked.
func (o Outcome) Decided() bool { return o.WinnerID != "" }

// Champion is the result of a finished tournament.
type Champion struct {
	Photo model.Photo
	Entry model.RatingEntry
	Rank  int
}

// Snapshot is a read-only view of a game.
type Snapshot struct {
	State          State
	Reason         Reason
	Cause          error
	Round          int
	TotalRounds    int
	MatchInRound   int
	MatchesInRound int
	Current        *model.Matchup
	Champion       *Champion
	TotalPhotos    int
	Restarts       int
}

// Game is the tournament state machine. It is not safe for concurrent
// use; Session serializes access for concurrent callers.
type Game struct {
	catalog  Catalog
	ratings  Ratings
	recorder Recorder
	rng      tournament.Rand
	size     int
	logger   logger.Logger

	state  State
	reason Reason
	cause  error

	photos []model.Photo
	loaded bool

	matchups    []model.Matchup
	index       int
	round       int
	totalRounds int
	winners     []model.Photo
	champion    *Champion
	restarts    int
}

// Option configures a Game.
type Option func(*Game)

// WithRand sets the randomness source used for selection and shuffling.
func WithRand(rng tournament.Rand) Option {
	return func(g *Game) {
		if rng != nil {
			g.rng = rng
		}
	}
}

// WithSize sets how many photos enter a tournament.
func WithSize(n int) Option {
	return func(g *Game) {
		if n >= minPhotos {
			g.size = n
		}
	}
}

// WithLogger sets the game logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns a game in the loading state. Call Start to enter play.
func New(catalog Catalog, ratings Ratings, recorder Recorder, opts ...Option) *Game {
	g := &Game{
		catalog:  catalog,
		ratings:  ratings,
		recorder: recorder,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // shuffling, not security
		size:     tournament.DefaultSize,
		logger:   logger.Get().Named("game"),
		state:    StateLoading,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start begins a new tournament. The catalog is read on the first call
// only; later calls reuse that list. Failures leave the game in not-enough
// with Reason and Cause set.
func (g *Game) Start(ctx context.Context) {
	g.state = StateLoading
	g.reason, g.cause = ReasonNone, nil
	g.matchups, g.winners, g.champion = nil, nil, nil
	g.index, g.round, g.totalRounds = 0, 0, 0

	if !g.loaded {
		photos, err := g.catalog.ListPhotos(ctx)
		if err != nil {
			g.notEnough(ctx, ReasonUnavailable, fmt.Errorf("list photos: %w", err))
			return
		}
		g.photos, g.loaded = photos, true
	}
	if len(g.photos) < minPhotos {
		g.notEnough(ctx, ReasonTooFewPhotos, nil)
		return
	}

	entries, err := g.ratings.All(ctx)
	if err != nil {
		g.notEnough(ctx, ReasonUnavailable, fmt.Errorf("list ratings: %w", err))
		return
	}
	byID := make(map[string]model.RatingEntry, len(entries))
	for _, e := range entries {
		byID[e.ImageID] = e
	}

	selected := tournament.SelectCandidates(g.photos, byID, g.size, g.rng)
	g.matchups = tournament.BuildBracket(selected)
	g.totalRounds = tournament.EstimateRounds(len(selected))
	g.round = 1
	g.state = StatePlaying

	metrics.RecordTournamentStarted()
	metrics.UpdateRatedPhotos(len(standings.Played(entries)))
	g.logger.Debug(ctx, "tournament started",
		logger.Int("photos", len(g.photos)),
		logger.Int("selected", len(selected)),
		logger.Int("rounds", g.totalRounds))
}

// Restart starts over with the cached photo list.
func (g *Game) Restart(ctx context.Context) {
	g.Start(ctx)
}

// Reload drops the cached photo list and starts over.
func (g *Game) Reload(ctx context.Context) {
	g.photos, g.loaded = nil, false
	g.Start(ctx)
}

// Resolve applies the outcome of the current match and advances the
// bracket. When recording fails the game does not move and the error is
// returned; retrying re-applies any half that was written.
func (g *Game) Resolve(ctx context.Context, o Outcome) error {
	if g.state != StatePlaying || g.index >= len(g.matchups) {
		return ErrNotPlaying
	}
	m := g.matchups[g.index]
	last := g.index == len(g.matchups)-1

	if !o.Decided() {
		if err := g.recorder.RecordNoDecision(ctx, m.Left.ID, m.Right.ID); err != nil {
			return fmt.Errorf("record no decision: %w", err)
		}
		if !last {
			g.index++
			return nil
		}
		switch len(g.winners) {
		case 0:
			g.restarts++
			metrics.RecordTournamentRestarted()
			g.logger.Info(ctx, "round ended without winners, restarting", logger.Int("round", g.round))
			g.Start(ctx)
		case 1:
			g.crown(ctx, g.winners[0])
		default:
			g.nextRound()
		}
		return nil
	}

	winner, loser, ok := m.Split(o.WinnerID)
	if !ok {
		return ErrUnknownCompetitor
	}
	if _, err := g.recorder.RecordWin(ctx, winner.ID, loser.ID); err != nil {
		return fmt.Errorf("record win: %w", err)
	}
	g.winners = append(g.winners, winner)
	if !last {
		g.index++
		return nil
	}
	if len(g.winners) == 1 {
		g.crown(ctx, winner)
		return nil
	}
	g.nextRound()
	return nil
}

func (g *Game) nextRound() {
	g.matchups = tournament.BuildBracket(g.winners)
	g.winners = nil
	g.index = 0
	g.round++
}

// crown finishes the tournament. Lookup failures fall back to the
// default entry and rank 1; the match itself is already recorded.
func (g *Game) crown(ctx context.Context, p model.Photo) {
	c := &Champion{Photo: p, Entry: model.NewRatingEntry(p.ID), Rank: 1}
	if e, err := g.ratings.Get(ctx, p.ID); err != nil {
		g.logger.Warn(ctx, "champion rating lookup failed", logger.String("image_id", p.ID), logger.Error(err))
	} else {
		c.Entry = e
	}
	if all, err := g.ratings.All(ctx); err != nil {
		g.logger.Warn(ctx, "champion rank lookup failed", logger.String("image_id", p.ID), logger.Error(err))
	} else if pos := standings.Position(standings.Played(all), p.ID); pos > 0 {
		c.Rank = pos
	}

	g.champion = c
	g.matchups, g.winners, g.index = nil, nil, 0
	g.state = StateFinale
	metrics.RecordTournamentCompleted(c.Rank)
	g.logger.Info(ctx, "champion crowned",
		logger.String("image_id", p.ID),
		logger.Int("rating", c.Entry.Rating),
		logger.Int("rank", c.Rank),
		logger.Int("rounds", g.round))
}

func (g *Game) notEnough(ctx context.Context, reason Reason, cause error) {
	g.state, g.reason, g.cause = StateNotEnough, reason, cause
	metrics.RecordGameNotStarted(string(reason))
	if cause != nil {
		g.logger.Warn(ctx, "tournament cannot start", logger.String("reason", string(reason)), logger.Error(cause))
		return
	}
	g.logger.Info(ctx, "tournament cannot start", logger.String("reason", string(reason)), logger.Int("photos", len(g.photos)))
}

// State returns the current phase.
func (g *Game) State() State { return g.state }

// Current returns the match awaiting a decision.
func (g *Game) Current() (model.Matchup, bool) {
	if g.state != StatePlaying || g.index >= len(g.matchups) {
		return model.Matchup{}, false
	}
	return g.matchups[g.index], true
}

// Snapshot returns a copy of the observable state.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		State:       g.state,
		Reason:      g.reason,
		Cause:       g.cause,
		Round:       g.round,
		TotalRounds: g.totalRounds,
		TotalPhotos: len(g.photos),
		Restarts:    g.restarts,
	}
	if m, ok := g.Current(); ok {
		s.Current = &m
		s.MatchInRound = g.index + 1
		s.MatchesInRound = len(g.matchups)
	}
	if g.champion != nil {
		c := *g.champion
		s.Champion = &c
	}
	return s
}
