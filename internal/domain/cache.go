package domain

import (
	"context"
	"time"
)

// SeriesCache keeps recently fetched price series keyed by symbol and range.
type SeriesCache interface {
	GetSeries(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
	SetSeries(ctx context.Context, symbol string, from, to time.Time, series []PricePoint) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out short-lived exclusive locks shared between processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
