package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alanyoungcy/indexlab/internal/blob"
	localblob "github.com/alanyoungcy/indexlab/internal/blob/local"
	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func localStores(t *testing.T) (blob.Stores, *localblob.Store) {
	t.Helper()
	local := localblob.New(t.TempDir())
	return blob.Stores{Local: local, Default: domain.StorageLocal}, local
}

// fakeProvider serves canned closes and quotes.
type fakeProvider struct {
	mu       sync.Mutex
	closes   map[string][]domain.PricePoint
	quotes   map[string]domain.Quote
	failSyms map[string]bool
	err      error
	calls    int
}

func (f *fakeProvider) DailyCloses(_ context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.failSyms[symbol] {
		return nil, errors.New("upstream: no data")
	}
	var out []domain.PricePoint
	for _, p := range f.closes[symbol] {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProvider) Quotes(_ context.Context, symbols []string) (map[string]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]domain.Quote{}
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

// memCache is an in-memory domain.SeriesCache.
type memCache struct {
	data map[string][]domain.PricePoint
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]domain.PricePoint{}} }

func cacheKey(symbol string, from, to time.Time) string {
	return symbol + from.Format(domain.DateFormat) + to.Format(domain.DateFormat)
}

func (c *memCache) GetSeries(_ context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	s, ok := c.data[cacheKey(symbol, from, to)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (c *memCache) SetSeries(_ context.Context, symbol string, from, to time.Time, series []domain.PricePoint) error {
	c.sets++
	c.data[cacheKey(symbol, from, to)] = series
	return nil
}

// memPriceStore is an in-memory domain.PriceStore.
type memPriceStore struct {
	points map[string][]domain.PricePoint
}

func newMemPriceStore() *memPriceStore {
	return &memPriceStore{points: map[string][]domain.PricePoint{}}
}

func (s *memPriceStore) UpsertBatch(_ context.Context, symbol string, points []domain.PricePoint) error {
	s.points[symbol] = append(s.points[symbol], points...)
	return nil
}

func (s *memPriceStore) ListRange(_ context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	var out []domain.PricePoint
	for _, p := range s.points[symbol] {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// memSnapshots is an in-memory domain.SnapshotStore.
type memSnapshots struct {
	saved []domain.MarketSnapshot
}

func (m *memSnapshots) Save(_ context.Context, snap domain.MarketSnapshot) error {
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memSnapshots) Load(_ context.Context, date time.Time) (domain.MarketSnapshot, error) {
	for _, s := range m.saved {
		if s.Date.Equal(date) {
			return s, nil
		}
	}
	return domain.MarketSnapshot{}, domain.ErrNotFound
}

// memLocks is an in-process domain.LockManager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func testutilCount(m *observability.Metrics) float64 {
	return promtestutil.ToFloat64(m.SnapshotSymbolsFailed)
}
