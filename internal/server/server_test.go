package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
	"github.com/alanyoungcy/indexlab/internal/server/handler"
)

type fakeRunner struct {
	got domain.SimulationConfig
	res domain.SimulationResult
	err error
}

func (f *fakeRunner) Run(_ context.Context, cfg domain.SimulationConfig) (domain.SimulationResult, error) {
	f.got = cfg
	return f.res, f.err
}

type fakeTreemaps struct {
	backends []domain.StorageBackend
	pages    []string
	metas    []domain.TreemapMetadata
	html     string
	err      error
}

func (f *fakeTreemaps) ListPages(_ context.Context, b domain.StorageBackend) ([]string, error) {
	f.backends = append(f.backends, b)
	return f.pages, f.err
}

func (f *fakeTreemaps) ListMetadata(_ context.Context, b domain.StorageBackend) ([]domain.TreemapMetadata, error) {
	f.backends = append(f.backends, b)
	return f.metas, f.err
}

func (f *fakeTreemaps) OpenPage(_ context.Context, b domain.StorageBackend, name string) (io.ReadCloser, error) {
	f.backends = append(f.backends, b)
	if f.err != nil {
		return nil, f.err
	}
	if name != "2024-01-02_treemap.html" {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(f.html)), nil
}

type denyAll struct{ err error }

func (d denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, d.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoutes(runner *fakeRunner, treemaps *fakeTreemaps, limiter domain.RateLimiter, metrics *observability.Metrics) http.Handler {
	logger := testLogger()
	cfg := Config{RateLimit: 1, RateWindow: time.Minute}
	return Routes(cfg, Handlers{
		Health:   handler.NewHealthHandler(nil, logger),
		Returns:  handler.NewReturnsHandler(runner, logger),
		Treemaps: handler.NewTreemapHandler(treemaps, domain.StorageLocal, logger),
	}, metrics, limiter, logger)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newTestRoutes(&fakeRunner{}, &fakeTreemaps{}, nil, nil)
	rec := do(t, h, http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReturnsMapsRequest(t *testing.T) {
	price := 110.0
	runner := &fakeRunner{res: domain.SimulationResult{
		TotalInvested: 200,
		FinalValue:    220,
		Events: []domain.ContributionEvent{{
			Date:         time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
			Strategy:     domain.StrategyImmediate,
			BuyPrice:     &price,
			Contribution: 100,
		}},
	}}
	h := newTestRoutes(runner, &fakeTreemaps{}, nil, nil)

	body := `{"start_year":"2020","end_year":2021,"contribution":"100","interval":"custom","custom_days":10,"strategy":" Dip_Windowed ","dip_threshold":2.5}`
	rec := do(t, h, http.MethodPost, "/api/returns", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.SimulationConfig{
		StartYear:       2020,
		EndYear:         2021,
		Contribution:    100,
		Cadence:         domain.CadenceCustom,
		CustomDays:      10,
		Strategy:        domain.StrategyDipWindowed,
		DipThresholdPct: 2.5,
	}, runner.got)

	out := decodeBody(t, rec)
	assert.Equal(t, 200.0, out["total_invested"])
	events := out["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "2020-01-02", events[0].(map[string]any)["date"])
}

func TestReturnsErrors(t *testing.T) {
	valid := `{"start_year":2020,"end_year":2021,"contribution":100,"interval":"weekly"}`
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, ""},
		{"missing fields", `{"interval":"weekly"}`, nil, http.StatusBadRequest, "start_year"},
		{"fractional custom days", `{"start_year":2020,"end_year":2021,"contribution":1,"interval":"custom","custom_days":1.5}`, nil, http.StatusBadRequest, "Invalid interval"},
		{"invalid cadence", valid, fmt.Errorf("simulate: %w", domain.ErrInvalidCadence), http.StatusBadRequest, "Invalid interval"},
		{"invalid config", valid, fmt.Errorf("%w: start year after end year", domain.ErrInvalidConfig), http.StatusBadRequest, "start year after end year"},
		{"no data", valid, fmt.Errorf("fetch: %w", domain.ErrDataUnavailable), http.StatusBadGateway, "price data unavailable"},
		{"other", valid, errors.New("boom"), http.StatusInternalServerError, "simulation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRoutes(&fakeRunner{err: tt.err}, &fakeTreemaps{}, nil, nil)
			rec := do(t, h, http.MethodPost, "/api/returns", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tt.msg)
		})
	}
}

func TestReturnsRequiresDipThreshold(t *testing.T) {
	for _, strategy := range []string{"dip_immediate", "DIP_WINDOWED"} {
		t.Run(strategy, func(t *testing.T) {
			runner := &fakeRunner{}
			h := newTestRoutes(runner, &fakeTreemaps{}, nil, nil)
			body := `{"start_year":2020,"end_year":2020,"contribution":100,"interval":"weekly","strategy":"` + strategy + `"}`
			rec := do(t, h, http.MethodPost, "/api/returns", body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], "dip_threshold")
			assert.Zero(t, runner.got, "runner must not be called")
		})
	}
}

func TestReturnsRejectsGet(t *testing.T) {
	h := newTestRoutes(&fakeRunner{}, &fakeTreemaps{}, nil, nil)
	rec := do(t, h, http.MethodGet, "/api/returns", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTreemapListingUsesStorageParam(t *testing.T) {
	change := 1.25
	tm := &fakeTreemaps{
		pages: []string{"2024-01-03_treemap.html", "2024-01-02_treemap.html"},
		metas: []domain.TreemapMetadata{{Date: "2024-01-02", SP500PercentChange: &change, TotalMarketCap: "$40.10T"}},
	}
	h := newTestRoutes(&fakeRunner{}, tm, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/treemaps?storage=S3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, "s3", out["storage"])
	assert.Len(t, out["files"], 2)

	rec = do(t, h, http.MethodGet, "/api/treemaps/metadata", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var metas []domain.TreemapMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
	assert.Equal(t, tm.metas, metas)

	assert.Equal(t, []domain.StorageBackend{domain.StorageS3, domain.StorageLocal}, tm.backends)

	rec = do(t, h, http.MethodGet, "/api/treemaps?storage=ftp", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTreemapPage(t *testing.T) {
	tm := &fakeTreemaps{html: "<html>ok</html>"}
	h := newTestRoutes(&fakeRunner{}, tm, nil, nil)

	rec := do(t, h, http.MethodGet, "/treemaps/2024-01-02_treemap.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>ok</html>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = do(t, h, http.MethodGet, "/treemaps/missing.html", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tm.err = fmt.Errorf("blob: s3: %w", domain.ErrNoStorage)
	rec = do(t, h, http.MethodGet, "/treemaps/2024-01-02_treemap.html?storage=s3", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitRejects(t *testing.T) {
	h := newTestRoutes(&fakeRunner{}, &fakeTreemaps{}, denyAll{}, nil)
	rec := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := newTestRoutes(&fakeRunner{}, &fakeTreemaps{}, denyAll{err: errors.New("redis down")}, nil)
	rec := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	m := observability.NewMetrics("test")
	h := newTestRoutes(&fakeRunner{}, &fakeTreemaps{}, nil, m)

	do(t, h, http.MethodGet, "/api/health", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="GET /api/health"`)
}

func TestMetricsEndpointWithoutMetrics(t *testing.T) {
	h := newTestRoutes(&fakeRunner{}, &fakeTreemaps{}, nil, nil)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
