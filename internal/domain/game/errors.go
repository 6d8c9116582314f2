package game

import "errors"

// Sentinel errors returned by games and sessions.
var (
	ErrNotPlaying        = errors.New("game is not in play")
	ErrUnknownCompetitor = errors.New("winner is not part of the current match")
	ErrStaleMatch        = errors.New("match already resolved")
	ErrSessionClosed     = errors.New("session closed")
	ErrCannotStart       = errors.New("tournament cannot start")
)
