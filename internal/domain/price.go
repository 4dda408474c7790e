package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DateFormat is the ISO 8601 calendar date layout used on the wire and in
// blob keys.
const DateFormat = "2006-01-02"

// PricePoint is a single daily close. Date is normalised to midnight UTC.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// pricePointJSON is the wire form of PricePoint.
type pricePointJSON struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// MarshalJSON encodes the point with an ISO date.
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pricePointJSON{Date: p.Date.Format(DateFormat), Close: p.Close})
}

// UnmarshalJSON decodes a point written by MarshalJSON.
func (p *PricePoint) UnmarshalJSON(b []byte) error {
	var raw pricePointJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}
	p.Date = d
	p.Close = raw.Close
	return nil
}

// Day truncates t to its calendar day at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q want format %s", ErrInvalidDate, s, DateFormat)
	}
	return t, nil
}

// Quote is the current quote of a listed security.
type Quote struct {
	Symbol    string
	Price     float64
	MarketCap float64
}

// MarketDataProvider supplies price history and quotes from an external
// market data source.
type MarketDataProvider interface {
	DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// SeriesProvider returns the ordered daily series for the tracked index over
// an inclusive calendar-year range.
type SeriesProvider interface {
	FetchSeries(ctx context.Context, startYear, endYear int) ([]PricePoint, error)
}
