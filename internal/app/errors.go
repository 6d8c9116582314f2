package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrGameNotFound    = errors.New("game not found")
	ErrTooManyGames    = errors.New("too many active games")
	ErrNotRanked       = errors.New("photo has not played yet")
	ErrInvalidArgument = errors.New("invalid argument")
)
