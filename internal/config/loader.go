package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "CATBRACKET_"
	envFile    = "CATBRACKET_ENV_FILE"
	configFile = "CATBRACKET_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if CATBRACKET_CONFIG is set
//  3. env (prefix CATBRACKET_), after .env (or CATBRACKET_ENV_FILE) has
//     filled in variables that are not already set
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	dotenv := ".env"
	if p := os.Getenv(envFile); p != "" {
		dotenv = p
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, dotenv, err)
	}

	k := koanf.New(".")
	if path := os.Getenv(configFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CATBRACKET_MATCH_TIMEOUT_MS -> match_timeout_ms (flat keys).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.StoreDriver != StoreMemory && c.StoreDriver != StoreBolt:
		return invalid("unknown store_driver %q", c.StoreDriver)
	case c.StoreDriver == StoreBolt && c.BoltPath == "":
		return invalid("bolt_path must be set for the bolt driver")
	case c.CatalogDriver != CatalogFile && c.CatalogDriver != CatalogREST:
		return invalid("unknown catalog_driver %q", c.CatalogDriver)
	case c.CatalogDriver == CatalogFile && c.CatalogFile == "":
		return invalid("catalog_file must be set for the file driver")
	case c.CatalogDriver == CatalogREST && c.CatalogURL == "":
		return invalid("catalog_url must be set for the rest driver")
	case c.TournamentSize < 2:
		return invalid("tournament_size must be at least 2, got %d", c.TournamentSize)
	case c.MatchTimeoutMS <= 0:
		return invalid("match_timeout_ms must be positive")
	case c.SessionTTLMS <= 0:
		return invalid("session_ttl_ms must be positive")
	case c.MaxSessions <= 0:
		return invalid("max_sessions must be positive")
	case c.MaxLeaderboardLimit <= 0:
		return invalid("max_leaderboard_limit must be positive")
	case c.DecisionRatePerSec <= 0 || c.DecisionBurst <= 0:
		return invalid("decision_rate_per_sec and decision_burst must be positive")
	case c.MirrorMongoURI != "" && (c.MirrorDatabase == "" || c.MirrorQueueSize <= 0 || c.MirrorWorkers <= 0):
		return invalid("mirror needs mirror_database, mirror_queue_size and mirror_workers")
	case c.MetricsNamespace == "":
		return invalid("metrics_namespace must not be empty")
	case c.MetricsRefreshMS <= 0:
		return invalid("metrics_refresh_ms must be positive")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
