// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int     `json:"rank"`
	ImageID  string  `json:"image_id"`
	Rating   int     `json:"rating"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Matchups int     `json:"matchups"`
	WinRate  float64 `json:"win_rate"`
}
