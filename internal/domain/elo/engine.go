package elo

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/catbracket/internal/adapters/repository"
	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/logger"
	"github.com/okian/catbracket/pkg/metrics"
)

// ErrSameCompetitor is returned when both sides of a match are the same photo.
var ErrSameCompetitor = errors.New("a photo cannot play itself")

// Result carries the post-match ratings of a decided match.
type Result struct {
	Winner model.RatingEntry
	Loser  model.RatingEntry
}

// Store is the subset of a rating store the engine needs.
type Store interface {
	Get(ctx context.Context, imageID string) (model.RatingEntry, error)
	Set(ctx context.Context, entry model.RatingEntry) error
}

// Engine reads, updates and writes back pairs of ratings.
// Updates are not idempotent: recording the same match twice applies it twice.
type Engine struct {
	store  Store
	logger logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an engine writing to store. When store also implements
// repository.Transactor both entries of a match are written atomically;
// otherwise the two writes run concurrently and either may fail alone.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, logger: logger.Get().Named("elo")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordWin applies a decided match and returns the new ratings.
func (e *Engine) RecordWin(ctx context.Context, winnerID, loserID string) (Result, error) {
	before, after, err := e.update(ctx, winnerID, loserID, ApplyWin)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordMatchResolved("win")
	metrics.RecordRatingDelta(after[0].Rating - before[0].Rating)
	e.logger.Debug(ctx, "win recorded",
		logger.String("winner", winnerID),
		logger.String("loser", loserID),
		logger.Int("winner_rating", after[0].Rating),
		logger.Int("loser_rating", after[1].Rating))
	return Result{Winner: after[0], Loser: after[1]}, nil
}

// RecordNoDecision applies a match that ended without a choice.
func (e *Engine) RecordNoDecision(ctx context.Context, aID, bID string) error {
	before, after, err := e.update(ctx, aID, bID, ApplyNoDecision)
	if err != nil {
		return err
	}
	metrics.RecordMatchResolved("no_decision")
	metrics.RecordRatingDelta(after[0].Rating - before[0].Rating)
	e.logger.Debug(ctx, "no decision recorded", logger.String("a", aID), logger.String("b", bID))
	return nil
}

type pairUpdate func(a, b model.RatingEntry) (model.RatingEntry, model.RatingEntry)

func (e *Engine) update(ctx context.Context, aID, bID string, apply pairUpdate) (before, after [2]model.RatingEntry, err error) {
	if aID == bID {
		return before, after, ErrSameCompetitor
	}
	if tr, ok := e.store.(repository.Transactor); ok {
		err = tr.Transact(ctx, func(tx repository.Tx) error {
			var txErr error
			before, after, txErr = readApply(ctx, tx, aID, bID, apply)
			if txErr != nil {
				return txErr
			}
			if txErr = tx.Set(ctx, after[0]); txErr != nil {
				return txErr
			}
			return tx.Set(ctx, after[1])
		})
	} else {
		before, after, err = readApply(ctx, e.store, aID, bID, apply)
		if err == nil {
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return e.store.Set(gctx, after[0]) })
			g.Go(func() error { return e.store.Set(gctx, after[1]) })
			err = g.Wait()
		}
	}
	if err != nil {
		return before, after, fmt.Errorf("update ratings %s/%s: %w", aID, bID, err)
	}
	return before, after, nil
}

func readApply(ctx context.Context, r Store, aID, bID string, apply pairUpdate) (before, after [2]model.RatingEntry, err error) {
	if before[0], err = r.Get(ctx, aID); err != nil {
		return before, after, err
	}
	if before[1], err = r.Get(ctx, bID); err != nil {
		return before, after, err
	}
	after[0], after[1] = apply(before[0], before[1])
	return before, after, nil
}
