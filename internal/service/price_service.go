package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
)

// errNoProviderData marks a provider answer with no points in the range.
var errNoProviderData = errors.New("provider returned no data")

// PriceService resolves the index close series for a year range. It reads
// through the series cache, then the market data provider, and falls back
// to the price history store when the provider fails. Cache and store are
// optional.
type PriceService struct {
	symbol   string
	provider domain.MarketDataProvider
	cache    domain.SeriesCache
	store    domain.PriceStore
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewPriceService creates a PriceService for symbol. cache, store and
// metrics may be nil.
func NewPriceService(
	symbol string,
	provider domain.MarketDataProvider,
	cache domain.SeriesCache,
	store domain.PriceStore,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		symbol:   symbol,
		provider: provider,
		cache:    cache,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
}

// YearRange returns Jan 1 of startYear and Dec 31 of endYear.
func YearRange(startYear, endYear int) (from, to time.Time) {
	return time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(endYear, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// FetchSeries returns the daily closes from Jan 1 of startYear through
// Dec 31 of endYear, oldest first. An empty provider answer counts as a
// failure. When neither the provider nor the store can serve the range the
// error wraps domain.ErrDataUnavailable.
func (s *PriceService) FetchSeries(ctx context.Context, startYear, endYear int) ([]domain.PricePoint, error) {
	from, to := YearRange(startYear, endYear)

	if s.cache != nil {
		series, err := s.cache.GetSeries(ctx, s.symbol, from, to)
		switch {
		case err == nil && len(series) > 0:
			s.metrics.ObserveSeriesFetch("cache", nil)
			return series, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.metrics.ObserveSeriesFetch("cache", err)
			s.logger.WarnContext(ctx, "price_service: cache read failed",
				slog.String("symbol", s.symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	series, provErr := s.provider.DailyCloses(ctx, s.symbol, from, to)
	if provErr == nil && len(series) == 0 {
		provErr = errNoProviderData
	}
	s.metrics.ObserveSeriesFetch("provider", provErr)
	if provErr == nil {
		series = normalizeSeries(series)
		s.remember(ctx, from, to, series)
		return series, nil
	}

	s.logger.WarnContext(ctx, "price_service: provider failed",
		slog.String("symbol", s.symbol),
		slog.Int("start_year", startYear),
		slog.Int("end_year", endYear),
		slog.String("error", provErr.Error()),
	)

	if s.store != nil {
		stored, err := s.store.ListRange(ctx, s.symbol, from, to)
		s.metrics.ObserveSeriesFetch("store", err)
		if err != nil {
			s.logger.WarnContext(ctx, "price_service: history store read failed",
				slog.String("symbol", s.symbol),
				slog.String("error", err.Error()),
			)
		} else if len(stored) > 0 {
			s.logger.InfoContext(ctx, "price_service: served from history store",
				slog.String("symbol", s.symbol),
				slog.Int("points", len(stored)),
			)
			return normalizeSeries(stored), nil
		}
	}

	return nil, fmt.Errorf("price_service: fetch %s %d-%d: %w: %v",
		s.symbol, startYear, endYear, domain.ErrDataUnavailable, provErr)
}

// remember writes a fresh series to the cache and history store. Failures
// are logged and otherwise ignored.
func (s *PriceService) remember(ctx context.Context, from, to time.Time, series []domain.PricePoint) {
	if len(series) == 0 {
		return
	}
	if s.cache != nil {
		if err := s.cache.SetSeries(ctx, s.symbol, from, to, series); err != nil {
			s.logger.WarnContext(ctx, "price_service: cache write failed",
				slog.String("symbol", s.symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.store != nil {
		if err := s.store.UpsertBatch(ctx, s.symbol, series); err != nil {
			s.logger.WarnContext(ctx, "price_service: history store write failed",
				slog.String("symbol", s.symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// normalizeSeries sorts by date and keeps the last close seen for a day.
func normalizeSeries(series []domain.PricePoint) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(series))
	for _, p := range series {
		p.Date = domain.Day(p.Date)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Date.Equal(p.Date) {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

var _ domain.SeriesProvider = (*PriceService)(nil)
