package playtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/catbracket/internal/domain/model"
	"github.com/okian/catbracket/pkg/logger"
)

const (
	throttleBackoff = 100 * time.Millisecond
	percent         = 100
)

// recorder collects per-game results from concurrent players.
type recorder struct {
	mu    sync.Mutex
	stats *Stats
}

func newRecorder() *recorder {
	return &recorder{stats: &Stats{StartTime: time.Now(), Champions: make(map[string]int)}}
}

func (r *recorder) add(fn func(s *Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.stats)
}

func (r *recorder) finish() *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	return r.stats
}

func playerRand(seed int64, player int) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed + int64(player)))
}

// Run plays cfg.Games tournaments against the service at cfg.BaseURL.
// Individual game failures are counted, not returned.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("playtest")
	log.Info(ctx, "starting play test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("games", cfg.Games),
		logger.Int("workers", cfg.Workers),
		logger.String("strategy", cfg.Strategy),
		logger.Float64("noDecisionRate", cfg.NoDecisionRate))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	if _, err := NewPicker(cfg.Strategy, cfg.NoDecisionRate, nil); err != nil {
		return nil, err
	}

	rec := newRecorder()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := 0; i < cfg.Games; i++ {
		g.Go(func() error {
			pick, _ := NewPicker(cfg.Strategy, cfg.NoDecisionRate, playerRand(cfg.Seed, i))
			if err := playOne(gctx, client, pick, rec); err != nil {
				rec.add(func(s *Stats) { s.GamesFailed++ })
				if cfg.Verbose {
					log.Warn(gctx, "game failed", logger.Int("game", i), logger.Error(err))
				}
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return rec.finish(), err
	}

	rows, err := client.leaderboard(ctx, max(cfg.TopN, 1))
	if err != nil {
		return rec.finish(), fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	rec.add(func(s *Stats) { s.Leaderboard = rows })

	stats := rec.finish()
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// playOne plays a single tournament to its finale and abandons the game.
func playOne(ctx context.Context, c *HTTPClient, pick Picker, rec *recorder) error {
	g, err := c.createGame(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.endGame(context.WithoutCancel(ctx), g.ID) }()
	rec.add(func(s *Stats) { s.GamesStarted++ })

	for g.State == "playing" && g.Match != nil {
		winner := pick(model.Matchup{Left: g.Match.Left, Right: g.Match.Right})
		next, err := c.decide(ctx, g.ID, g.Match.Seq, winner)
		switch {
		case err == nil:
			rec.add(func(s *Stats) {
				if winner == "" {
					s.NoDecisions++
				} else {
					s.Decisions++
				}
			})
			g = next
			continue
		case errors.Is(err, errConflict):
			// The deadline resolved the match first.
			rec.add(func(s *Stats) { s.Conflicts++ })
		case errors.Is(err, errThrottled):
			rec.add(func(s *Stats) { s.Throttled++ })
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(throttleBackoff):
			}
		default:
			return err
		}
		if g, err = c.game(ctx, g.ID); err != nil {
			return err
		}
	}
	if g.State != "finale" {
		return fmt.Errorf("game %s ended in %s (%s)", g.ID, g.State, g.Reason)
	}
	rec.add(func(s *Stats) {
		s.GamesFinished++
		if g.Champion != nil {
			s.Champions[g.Champion.Photo.ID]++
		}
	})
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var finishRate float64
	if stats.GamesStarted > 0 {
		finishRate = float64(stats.GamesFinished) / float64(stats.GamesStarted) * percent
	}
	log.Info(ctx, "final statistics",
		logger.Int("gamesStarted", stats.GamesStarted),
		logger.Int("gamesFinished", stats.GamesFinished),
		logger.Int("gamesFailed", stats.GamesFailed),
		logger.Int("decisions", stats.Decisions),
		logger.Int("noDecisions", stats.NoDecisions),
		logger.Int("conflicts", stats.Conflicts),
		logger.Int("throttled", stats.Throttled),
		logger.Int("distinctChampions", len(stats.Champions)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("finishRate", finishRate))
	for _, row := range stats.Leaderboard {
		log.Info(ctx, "leaderboard",
			logger.Int("rank", row.Rank),
			logger.String("imageID", row.ImageID),
			logger.Int("rating", row.Rating),
			logger.Int("matchups", row.Matchups))
	}
}
