package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrEmptyImageID  = errors.New("image id must not be empty")
	ErrClosed        = errors.New("rating store closed")
	ErrUnknownDriver = errors.New("unknown rating store driver")
)
