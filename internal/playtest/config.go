// Package playtest drives tournaments with scripted players, either against
// a running service over HTTP or in-process.
package playtest

import (
	"time"

	"github.com/okian/catbracket/internal/domain/model"
)

// Config holds configuration for a play test.
type Config struct {
	BaseURL        string        // Base URL of the service
	Games          int           // Number of tournaments to play
	Workers        int           // Number of concurrent players
	Timeout        time.Duration // HTTP request timeout
	Strategy       string        // How players pick: left, right, random, favorite
	NoDecisionRate float64       // Share of matches left undecided, 0..1
	TopN           int           // Leaderboard rows to fetch at the end
	Seed           int64         // Seed for player randomness; zero uses the clock
	Verbose        bool          // Enable verbose logging
}

// Game is the subset of a game snapshot a player reads.
type Game struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Reason   string `json:"reason"`
	Round    int    `json:"round"`
	Match    *Match `json:"match"`
	Champion *struct {
		Photo model.Photo `json:"photo"`
		Rank  int         `json:"rank"`
	} `json:"champion"`
}

// Match is an open match offered to a player.
type Match struct {
	Seq   int         `json:"seq"`
	Left  model.Photo `json:"left"`
	Right model.Photo `json:"right"`
}

// Entry represents a leaderboard entry.
type Entry struct {
	Rank     int     `json:"rank"`
	ImageID  string  `json:"image_id"`
	Rating   int     `json:"rating"`
	Matchups int     `json:"matchups"`
	WinRate  float64 `json:"win_rate"`
}

// Stats holds play test statistics.
type Stats struct {
	GamesStarted  int
	GamesFinished int
	GamesFailed   int
	Decisions     int
	NoDecisions   int
	Conflicts     int
	Throttled     int
	Champions     map[string]int
	Leaderboard   []Entry
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}
