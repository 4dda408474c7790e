package simulate

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

const (
	moneyPlaces  = 2
	sharesPlaces = 6
)

// round rounds v half away from zero to the given number of decimal places.
// NaN and infinities are returned unchanged.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func roundPtr(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}

// roundResult applies output rounding. Accumulation has already finished at
// full precision by the time this runs.
func roundResult(res domain.SimulationResult) domain.SimulationResult {
	out := domain.SimulationResult{
		TotalInvested:  round(res.TotalInvested, moneyPlaces),
		FinalValue:     round(res.FinalValue, moneyPlaces),
		TotalReturn:    round(res.TotalReturn, moneyPlaces),
		TotalReturnPct: round(res.TotalReturnPct, moneyPlaces),
		FinalPrice:     round(res.FinalPrice, moneyPlaces),
		Events:         make([]domain.ContributionEvent, len(res.Events)),
	}
	for i, e := range res.Events {
		out.Events[i] = domain.ContributionEvent{
			Date:                e.Date,
			Strategy:            e.Strategy,
			BuyPrice:            roundPtr(e.BuyPrice, moneyPlaces),
			Contribution:        round(e.Contribution, moneyPlaces),
			Shares:              round(e.Shares, sharesPlaces),
			FinalValue:          round(e.FinalValue, moneyPlaces),
			Profit:              round(e.Profit, moneyPlaces),
			PercentChangeVsPrev: roundPtr(e.PercentChangeVsPrev, moneyPlaces),
			WorstChangeInWindow: roundPtr(e.WorstChangeInWindow, moneyPlaces),
			WindowDays:          e.WindowDays,
		}
	}
	return out
}
