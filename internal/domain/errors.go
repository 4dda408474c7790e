package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidCadence  = errors.New("invalid cadence")
	ErrInvalidConfig   = errors.New("invalid simulation config")
	ErrDataUnavailable = errors.New("price data unavailable")
	ErrInvalidDate     = errors.New("invalid date")
	ErrRateLimited     = errors.New("rate limited")
	ErrNoStorage       = errors.New("storage backend not configured")
	ErrLockHeld        = errors.New("lock already held")
)

// ErrInvalidInterval is the name the HTTP API uses for ErrInvalidCadence.
var ErrInvalidInterval = ErrInvalidCadence
