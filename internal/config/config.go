// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"time"
)

// Supported drivers.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"

	CatalogFile = "file"
	CatalogREST = "rest"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json records.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the primary rating store: memory or bolt.
	StoreDriver string `koanf:"store_driver"`
	// BoltPath is the database file used by the bolt driver.
	BoltPath string `koanf:"bolt_path"`

	// CatalogDriver selects where photos come from: file or rest.
	CatalogDriver string `koanf:"catalog_driver"`
	// CatalogFile is the YAML manifest read by the file driver.
	CatalogFile string `koanf:"catalog_file"`
	// CatalogURL and CatalogAPIKey address the rest driver.
	CatalogURL    string `koanf:"catalog_url"`
	CatalogAPIKey string `koanf:"catalog_api_key"`
	// CatalogTimeoutMS bounds one catalog request.
	CatalogTimeoutMS int `koanf:"catalog_timeout_ms"`

	// TournamentSize is how many photos enter a tournament.
	TournamentSize int `koanf:"tournament_size"`
	// MatchTimeoutMS is how long a player has to pick before no-decision.
	MatchTimeoutMS int `koanf:"match_timeout_ms"`
	// SessionTTLMS evicts sessions idle for longer.
	SessionTTLMS int `koanf:"session_ttl_ms"`
	// MaxSessions caps concurrently held sessions.
	MaxSessions int `koanf:"max_sessions"`
	// RandomSeed fixes bracket shuffling when non-zero.
	RandomSeed int64 `koanf:"random_seed"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
	// DecisionRatePerSec and DecisionBurst throttle POST decisions.
	DecisionRatePerSec float64 `koanf:"decision_rate_per_sec"`
	DecisionBurst      int     `koanf:"decision_burst"`

	// MirrorMongoURI enables replication of ratings to MongoDB when set.
	MirrorMongoURI  string `koanf:"mirror_mongo_uri"`
	MirrorDatabase  string `koanf:"mirror_database"`
	MirrorQueueSize int    `koanf:"mirror_queue_size"`
	MirrorWorkers   int    `koanf:"mirror_workers"`

	// MetricsEnabled toggles Prometheus observations.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	// MetricsRefreshMS is how often runtime gauges are sampled.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
	// MetricsLabels are attached to every metric, e.g. {env: prod}.
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New returns a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         StoreMemory,
		BoltPath:            "catbracket.db",
		CatalogDriver:       CatalogFile,
		CatalogFile:         "photos.yaml",
		CatalogTimeoutMS:    10_000,
		TournamentSize:      32,
		MatchTimeoutMS:      8_000,
		SessionTTLMS:        30 * 60 * 1000,
		MaxSessions:         1_000,
		MaxLeaderboardLimit: 100,
		DecisionRatePerSec:  20,
		DecisionBurst:       40,
		MirrorDatabase:      "catbracket",
		MirrorQueueSize:     10_000,
		MirrorWorkers:       2,
		MetricsEnabled:      true,
		MetricsNamespace:    "catbracket",
		MetricsRefreshMS:    10_000,
	}
}

// MatchTimeout is MatchTimeoutMS as a duration.
func (c *Config) MatchTimeout() time.Duration { return ms(c.MatchTimeoutMS) }

// SessionTTL is SessionTTLMS as a duration.
func (c *Config) SessionTTL() time.Duration { return ms(c.SessionTTLMS) }

// CatalogTimeout is CatalogTimeoutMS as a duration.
func (c *Config) CatalogTimeout() time.Duration { return ms(c.CatalogTimeoutMS) }

// MetricsRefresh is MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration { return ms(c.MetricsRefreshMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
