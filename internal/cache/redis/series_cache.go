package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// SeriesCache implements domain.SeriesCache. A series is stored as one JSON
// string at "series:{symbol}:{from}:{to}" and expires after the TTL.
type SeriesCache struct {
	c   *Client
	ttl time.Duration
}

// NewSeriesCache creates a SeriesCache. A zero ttl stores keys without
// expiry.
func NewSeriesCache(c *Client, ttl time.Duration) *SeriesCache {
	return &SeriesCache{c: c, ttl: ttl}
}

func (sc *SeriesCache) seriesKey(symbol string, from, to time.Time) string {
	return sc.c.key("series", symbol, from.Format(domain.DateFormat), to.Format(domain.DateFormat))
}

// GetSeries returns the cached series or domain.ErrNotFound.
func (sc *SeriesCache) GetSeries(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	raw, err := sc.c.rdb.Get(ctx, sc.seriesKey(symbol, from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get series %s: %w", symbol, err)
	}
	return decodeSeries(raw)
}

// SetSeries stores series under the range key.
func (sc *SeriesCache) SetSeries(ctx context.Context, symbol string, from, to time.Time, series []domain.PricePoint) error {
	raw, err := encodeSeries(series)
	if err != nil {
		return fmt.Errorf("redis: encode series %s: %w", symbol, err)
	}
	if err := sc.c.rdb.Set(ctx, sc.seriesKey(symbol, from, to), raw, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set series %s: %w", symbol, err)
	}
	return nil
}

func encodeSeries(series []domain.PricePoint) ([]byte, error) {
	if series == nil {
		series = []domain.PricePoint{}
	}
	return json.Marshal(series)
}

func decodeSeries(raw []byte) ([]domain.PricePoint, error) {
	var series []domain.PricePoint
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("redis: decode series: %w", err)
	}
	return series, nil
}

var _ domain.SeriesCache = (*SeriesCache)(nil)
