package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// stubMarket returns a fixed snapshot and index change.
type stubMarket struct {
	snap    domain.MarketSnapshot
	stored  map[string]domain.MarketSnapshot
	change  *float64
	err     error
	collect int
}

func (s *stubMarket) Collect(context.Context, time.Time, domain.StorageBackend) (domain.MarketSnapshot, error) {
	s.collect++
	return s.snap, s.err
}

func (s *stubMarket) Snapshot(_ context.Context, date time.Time, _ domain.StorageBackend) (domain.MarketSnapshot, error) {
	snap, ok := s.stored[date.Format(domain.DateFormat)]
	if !ok {
		return domain.MarketSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (s *stubMarket) IndexChange(context.Context, time.Time) (*float64, error) {
	return s.change, nil
}

func sampleSnapshot(date time.Time) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Date:           date,
		TotalMarketCap: 4e12,
		Constituents: []domain.ConstituentSnapshot{
			{Constituent: domain.Constituent{Symbol: "AAPL", Security: "Apple Inc.", Sector: "Information Technology", SubIndustry: "Technology Hardware"}, MarketCap: 3e12, PercentChange: ptr(1.0), ShareOfTotal: 75},
			{Constituent: domain.Constituent{Symbol: "XOM", Security: "Exxon Mobil", Sector: "Energy", SubIndustry: "Integrated Oil & Gas"}, MarketCap: 1e12, ShareOfTotal: 25},
		},
	}
}

func treemapFixture(t *testing.T, now time.Time) (*TreemapService, *stubMarket, domain.BlobStore) {
	t.Helper()
	stores, local := localStores(t)
	market := &stubMarket{snap: sampleSnapshot(day(2026, 1, 2)), change: ptr(0.18946)}
	svc := NewTreemapService(market, stores, &memLocks{}, false, nil, testLogger())
	svc.now = func() time.Time { return now }
	return svc, market, local
}

func readAll(t *testing.T, store domain.BlobReader, key string) string {
	t.Helper()
	rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestTreemapService_GenerateFromStoredSnapshot(t *testing.T) {
	svc, market, store := treemapFixture(t, time.Now())
	ctx := context.Background()
	market.stored = map[string]domain.MarketSnapshot{"2026-01-02": sampleSnapshot(day(2026, 1, 2))}

	meta, err := svc.Generate(ctx, day(2026, 1, 2), domain.StorageLocal)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02", meta.Date)
	assert.Equal(t, "$4.00T", meta.TotalMarketCap)

	page := readAll(t, store, "treemaps/2026-01-02_treemap.html")
	assert.Contains(t, page, "plotly")
	assert.Contains(t, page, "AAPL")

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(readAll(t, store, "treemap_metadata/2026-01-02.json")), &stored))
	assert.Equal(t, "2026-01-02", stored["date"])
	assert.InDelta(t, 0.18946, stored["sp500_percent_change"], 1e-12)
	assert.Equal(t, "$4.00T", stored["total_market_cap"])
}

func TestTreemapService_GenerateMissingSnapshot(t *testing.T) {
	svc, _, _ := treemapFixture(t, time.Now())
	_, err := svc.Generate(context.Background(), day(2026, 1, 2), domain.StorageLocal)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func statusLogs(t *testing.T, store domain.BlobReader) []string {
	t.Helper()
	infos, err := store.List(context.Background(), StatusPrefix)
	require.NoError(t, err)
	var out []string
	for _, i := range infos {
		out = append(out, i.Path)
	}
	return out
}

func TestTreemapService_RunDaily(t *testing.T) {
	now := time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC)
	tests := []struct {
		name    string
		date    string
		outcome string
		errIs   error
		collect int
	}{
		{"past trading day", "2026-01-02", OutcomeSuccess, nil, 1},
		{"today", "2026-01-05", OutcomeSuccessToday, nil, 1},
		{"weekend", "2026-01-03", OutcomeNonTradingDay, nil, 0},
		{"future", "2026-01-06", OutcomeFuture, domain.ErrInvalidDate, 0},
		{"bad format", "01/02/2026", OutcomeBadDate, domain.ErrInvalidDate, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, market, store := treemapFixture(t, now)

			outcome, err := svc.RunDaily(context.Background(), tt.date, domain.StorageLocal)
			assert.Equal(t, tt.outcome, outcome)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.collect, market.collect)

			logs := statusLogs(t, store)
			require.Len(t, logs, 1)
			assert.Equal(t, "status_logs/2026-01-05_22-30-00_"+tt.outcome+".txt", logs[0])
		})
	}
}

func TestTreemapService_RunDailyCollectFailure(t *testing.T) {
	svc, market, store := treemapFixture(t, time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC))
	market.err = errors.New("quotes: rate limited")

	outcome, err := svc.RunDaily(context.Background(), "2026-01-02", domain.StorageLocal)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	logs := statusLogs(t, store)
	require.Len(t, logs, 1)
	assert.Contains(t, readAll(t, store, logs[0]), "quotes: rate limited")
}

func TestTreemapService_RunDailyLockHeld(t *testing.T) {
	svc, market, _ := treemapFixture(t, time.Date(2026, 1, 5, 22, 30, 0, 0, time.UTC))
	release, err := svc.locks.Acquire(context.Background(), "treemap:local:2026-01-02", time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = svc.RunDaily(context.Background(), "2026-01-02", domain.StorageLocal)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Zero(t, market.collect)
}

func TestTreemapService_ListMetadataAndPages(t *testing.T) {
	svc, _, store := treemapFixture(t, time.Now())
	ctx := context.Background()

	put := func(key, body string) {
		require.NoError(t, store.Put(ctx, key, strings.NewReader(body), ""))
	}
	put("treemap_metadata/2026-01-05.json", `{"date":"2026-01-05","sp500_percent_change":-0.6449,"total_market_cap":"$57.80T"}`)
	put("treemap_metadata/2026-01-02.json", `{"date":"2026-01-02","sp500_percent_change":0.18946,"total_market_cap":"$57.12T"}`)
	put("treemap_metadata/2025-12-31.json", `{"date":"2025-12-31","sp500_percent_change":null,"total_market_cap":"$57.00T"}`)
	put("treemap_metadata/notes.txt", "ignored")
	put("treemaps/2026-01-02_treemap.html", "<html></html>")
	put("treemaps/2026-01-05_treemap.html", "<html></html>")
	put("treemaps/index.html", "ignored")

	metas, err := svc.ListMetadata(ctx, domain.StorageLocal)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "2025-12-31", metas[0].Date)
	assert.Nil(t, metas[0].SP500PercentChange)
	assert.Equal(t, "2026-01-02", metas[1].Date)
	assert.Equal(t, 0.19, *metas[1].SP500PercentChange)
	assert.Equal(t, -0.64, *metas[2].SP500PercentChange)

	pages, err := svc.ListPages(ctx, domain.StorageLocal)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-05_treemap.html", "2026-01-02_treemap.html"}, pages)

	rc, err := svc.OpenPage(ctx, domain.StorageLocal, "2026-01-05_treemap.html")
	require.NoError(t, err)
	rc.Close()

	_, err = svc.OpenPage(ctx, domain.StorageLocal, "../data/2026-01-02.csv")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.OpenPage(ctx, domain.StorageLocal, "2020-01-01_treemap.html")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTreemapService_NoStorage(t *testing.T) {
	svc, _, _ := treemapFixture(t, time.Now())
	_, err := svc.ListPages(context.Background(), domain.StorageS3)
	assert.ErrorIs(t, err, domain.ErrNoStorage)
}
