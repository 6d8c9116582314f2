package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/catbracket/internal/playtest"
	"github.com/okian/catbracket/pkg/logger"
)

// Default configuration constants.
const (
	defaultGames       = 50
	defaultWorkers     = 8
	defaultTopN        = 10
	defaultPhotos      = 64
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	app := &cli.App{
		Name:  "playtest",
		Usage: "play whole tournaments with scripted players",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "games", Value: defaultGames, Usage: "number of tournaments to play"},
			&cli.IntFlag{Name: "workers", Value: defaultWorkers, Usage: "number of concurrent players"},
			&cli.StringFlag{Name: "strategy", Value: playtest.StrategyRandom, Usage: "left, right, random or favorite"},
			&cli.Float64Flag{Name: "no-decision", Usage: "share of matches left undecided, 0..1"},
			&cli.IntFlag{Name: "top", Value: defaultTopN, Usage: "leaderboard rows to show at the end"},
			&cli.Int64Flag{Name: "seed", Usage: "seed for player randomness (default: clock)"},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "HTTP request timeout, or match timeout for local runs"},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable verbose logging"},
		},
		Before: func(c *cli.Context) error {
			if err := logger.Init(logger.WithFormat(c.String("log-format"))); err != nil {
				return err
			}
			if c.Bool("verbose") {
				return logger.SetLevelString("debug")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "remote",
				Usage: "play against a running service",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Value: "http://localhost:9080", Usage: "base URL of the service"},
				},
				Action: func(c *cli.Context) error {
					cfg := configFrom(c)
					cfg.BaseURL = c.String("url")
					_, err := playtest.Run(c.Context, cfg)
					return err
				},
			},
			{
				Name:  "local",
				Usage: "play in-process over generated photos",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "photos", Value: defaultPhotos, Usage: "number of generated photos"},
				},
				Action: func(c *cli.Context) error {
					_, err := playtest.RunLocal(c.Context, configFrom(c), playtest.GeneratePhotos(c.Int("photos")))
					return err
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Get().Error(ctx, "play test failed", logger.Error(err))
		os.Exit(1)
	}
}

func configFrom(c *cli.Context) *playtest.Config {
	return &playtest.Config{
		Games:          c.Int("games"),
		Workers:        c.Int("workers"),
		Timeout:        c.Duration("timeout"),
		Strategy:       c.String("strategy"),
		NoDecisionRate: c.Float64("no-decision"),
		TopN:           c.Int("top"),
		Seed:           c.Int64("seed"),
		Verbose:        c.Bool("verbose"),
	}
}
