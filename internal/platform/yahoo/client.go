// Package yahoo is a REST client for the Yahoo Finance chart and quote
// endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// DefaultBaseURL is the public Yahoo Finance query host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// quoteBatchSize caps the symbols sent in one quote request.
const quoteBatchSize = 50

// Client fetches daily closes and quotes. It implements
// domain.MarketDataProvider.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for baseURL, e.g. DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "indexlab/1.0",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DailyCloses returns the daily closes of symbol for from <= date <= to,
// oldest first, rounded to cents. Days with no close are dropped.
func (c *Client) DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	from, to = domain.Day(from), domain.Day(to)
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	params.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")

	path := "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("yahoo: chart %s: %w", symbol, err)
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("yahoo: decode chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: chart %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: chart %s: %w", symbol, domain.ErrNotFound)
	}

	points := resp.Chart.Result[0].points()
	out := points[:0]
	for _, p := range points {
		if p.Date.Before(from) || p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Quotes returns the latest price and market cap per symbol. Symbols the
// API does not return are absent from the map.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes := make(map[string]domain.Quote, len(symbols))
	for start := 0; start < len(symbols); start += quoteBatchSize {
		end := min(start+quoteBatchSize, len(symbols))
		batch := symbols[start:end]

		params := url.Values{}
		params.Set("symbols", strings.Join(batch, ","))
		body, err := c.doGet(ctx, "/v7/finance/quote?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("yahoo: quotes: %w", err)
		}

		var resp quoteResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("yahoo: decode quotes: %w", err)
		}
		for _, q := range resp.QuoteResponse.Result {
			quotes[q.Symbol] = domain.Quote{
				Symbol:    q.Symbol,
				Price:     q.RegularMarketPrice,
				MarketCap: q.MarketCap,
			}
		}
	}
	return quotes, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, errorDescription(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, errorDescription(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorDescription(body))
	}
	return body, nil
}

// errorPaths are where the chart and quote endpoints put their error text.
var errorPaths = []string{
	"$.chart.error.description",
	"$.finance.error.description",
	"$.quoteResponse.error.description",
}

// errorDescription pulls the error message out of a Yahoo error body, or
// falls back to the raw body.
func errorDescription(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		for _, p := range errorPaths {
			if got, err := jsonpath.Get(p, v); err == nil {
				if s, ok := got.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// points converts the parallel timestamp/close arrays into sorted,
// de-duplicated daily points.
func (r chartResult) points() []domain.PricePoint {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	closes := r.Indicators.Quote[0].Close
	byDay := make(map[time.Time]float64, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		v := *closes[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		d := domain.Day(time.Unix(ts+r.Meta.GMTOffset, 0).UTC())
		byDay[d] = math.Round(v*100) / 100
	}

	points := make([]domain.PricePoint, 0, len(byDay))
	for d, v := range byDay {
		points = append(points, domain.PricePoint{Date: d, Close: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			MarketCap          float64 `json:"marketCap"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

var _ domain.MarketDataProvider = (*Client)(nil)
