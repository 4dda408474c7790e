package simulate

import (
	"github.com/alanyoungcy/indexlab/internal/domain"
)

// Lookback is the slice of observations dated within Days calendar days
// before the current trading day, oldest first. Near the start of a series it
// simply holds fewer points.
type Lookback struct {
	Points []domain.PricePoint
	Days   int
}

// WorstChange returns the most negative percent change from any close in the
// window to close. Zero closes are skipped. ok is false when no usable
// observation exists.
func (lb Lookback) WorstChange(close float64) (worst float64, ok bool) {
	for _, p := range lb.Points {
		if p.Close == 0 {
			continue
		}
		change := (close - p.Close) / p.Close * 100
		if !ok || change < worst {
			worst = change
			ok = true
		}
	}
	return worst, ok
}

// windowStart advances start until series[start] lies inside
// [series[i].Date - days, series[i].Date) and returns it.
func windowStart(series []domain.PricePoint, start, i, days int) int {
	from := series[i].Date.AddDate(0, 0, -days)
	for start < i && series[start].Date.Before(from) {
		start++
	}
	return start
}
