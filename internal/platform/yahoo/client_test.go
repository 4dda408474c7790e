package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Timestamps are 09:30 New York (UTC-5) on 2020-01-02, 01-03 and 01-06.
const chartBody = `{"chart":{"result":[{
  "meta":{"symbol":"^GSPC","gmtoffset":-18000},
  "timestamp":[1577975400,1578061800,1578321000],
  "indicators":{"quote":[{"close":[3257.850098,null,3246.280029]}]}
}],"error":null}}`

func TestClient_DailyCloses(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "indexlab-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithUserAgent("indexlab-test"))
	points, err := c.DailyCloses(context.Background(), "^GSPC", day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, "period1=1577836800")
	assert.Equal(t, []domain.PricePoint{
		{Date: day(2020, 1, 2), Close: 3257.85},
		{Date: day(2020, 1, 6), Close: 3246.28},
	}, points)
}

func TestClient_DailyClosesFiltersRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	points, err := NewClient(srv.URL).DailyCloses(context.Background(), "^GSPC", day(2020, 1, 3), day(2020, 1, 5))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestClient_DailyClosesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "MISSING"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
		case strings.Contains(r.URL.Path, "BUSY"):
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("Too Many Requests"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	_, err := c.DailyCloses(context.Background(), "MISSING", day(2020, 1, 1), day(2020, 1, 31))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "symbol may be delisted")

	_, err = c.DailyCloses(context.Background(), "BUSY", day(2020, 1, 1), day(2020, 1, 31))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, err = c.DailyCloses(context.Background(), "OTHER", day(2020, 1, 1), day(2020, 1, 31))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestClient_QuotesBatches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v7/finance/quote", r.URL.Path)
		syms := strings.Split(r.URL.Query().Get("symbols"), ",")
		var b strings.Builder
		b.WriteString(`{"quoteResponse":{"result":[`)
		for i, s := range syms {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"symbol":"` + s + `","regularMarketPrice":10.5,"marketCap":1000000000}`)
		}
		b.WriteString(`],"error":null}}`)
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	symbols := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		symbols = append(symbols, "S"+strconv.Itoa(i))
	}

	quotes, err := NewClient(srv.URL).Quotes(context.Background(), symbols)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, quotes, 120)
	assert.Equal(t, domain.Quote{Symbol: "S0", Price: 10.5, MarketCap: 1e9}, quotes["S0"])
}

func TestErrorDescription(t *testing.T) {
	assert.Equal(t, "bad crumb", errorDescription([]byte(`{"finance":{"error":{"description":"bad crumb"}}}`)))
	assert.Equal(t, "plain text", errorDescription([]byte("plain text")))
}
