package playtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/sync/errgroup"

	"github.com/okian/catbracket/internal/adapters/catalog"
	"github.com/okian/catbracket/internal/adapters/repository"
	"github.com/okian/catbracket/internal/domain/elo"
	"github.com/okian/catbracket/internal/domain/game"
	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/internal/domain/standings"
	"github.com/okian/catbracket/internal/domain/tournament"
	"github.com/okian/catbracket/pkg/logger"
)

// GeneratePhotos returns n synthetic photos, newest first. Ids are
// cat-0000, cat-0001 and so on; filenames carry a made-up pet name.
func GeneratePhotos(n int) []model.Photo {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	faker := gofakeit.New(uint64(n))
	out := make([]model.Photo, n)
	for i := range out {
		name := strings.ToLower(strings.Join(strings.Fields(faker.PetName()), "-"))
		out[i] = model.Photo{
			ID:        fmt.Sprintf("cat-%04d", i),
			Filename:  fmt.Sprintf("%s-%04d.webp", name, i),
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

// RunLocal plays cfg.Games tournaments over photos without a server, on a
// private in-memory store.
func RunLocal(ctx context.Context, cfg *Config, photos []model.Photo) (*Stats, error) {
	log := logger.Get().Named("playtest")
	if _, err := NewPicker(cfg.Strategy, cfg.NoDecisionRate, nil); err != nil {
		return nil, err
	}
	store := repository.NewMemoryStore()
	defer func() { _ = store.Close() }()
	cat := catalog.NewStatic(photos)
	engine := elo.NewEngine(store, elo.WithLogger(logger.Nop()))

	rec := newRecorder()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := 0; i < cfg.Games; i++ {
		g.Go(func() error {
			pick, _ := NewPicker(cfg.Strategy, cfg.NoDecisionRate, playerRand(cfg.Seed, i))
			tg := game.New(cat, store, engine,
				game.WithRand(playerRand(cfg.Seed, -1-i)),
				game.WithSize(tournament.DefaultSize),
				game.WithLogger(logger.Nop()))
			rec.add(func(s *Stats) { s.GamesStarted++ })

			presenter := game.PresenterFunc(func(_ context.Context, m model.Matchup, _ time.Time, decide func(game.Outcome)) {
				winner := pick(m)
				rec.add(func(s *Stats) {
					if winner == "" {
						s.NoDecisions++
					} else {
						s.Decisions++
					}
				})
				decide(game.Outcome{WinnerID: winner})
			})
			if err := game.Run(gctx, tg, presenter, cfg.Timeout); err != nil {
				rec.add(func(s *Stats) { s.GamesFailed++ })
				return err
			}
			snap := tg.Snapshot()
			rec.add(func(s *Stats) {
				s.GamesFinished++
				if snap.Champion != nil {
					s.Champions[snap.Champion.Photo.ID]++
				}
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rec.finish(), err
	}

	entries, err := store.All(ctx)
	if err != nil {
		return rec.finish(), err
	}
	rows := standings.Top(entries, max(cfg.TopN, 1))
	board := make([]Entry, len(rows))
	for i, r := range rows {
		board[i] = Entry{Rank: r.Rank, ImageID: r.ImageID, Rating: r.Rating, Matchups: r.Matchups, WinRate: r.WinRate}
	}
	rec.add(func(s *Stats) { s.Leaderboard = board })

	stats := rec.finish()
	displayFinalStats(ctx, log, stats)
	return stats, nil
}
