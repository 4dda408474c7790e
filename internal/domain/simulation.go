package domain

import (
	"encoding/json"
	"time"
)

// Cadence names a contribution interval.
type Cadence string

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceBiannual  Cadence = "biannual"
	CadenceAnnually  Cadence = "annually"
	CadenceCustom    Cadence = "custom"
)

// Strategy selects how scheduled contributions are deployed.
type Strategy string

const (
	StrategyImmediate    Strategy = "immediate"
	StrategyDipImmediate Strategy = "dip_immediate"
	StrategyDipWindowed  Strategy = "dip_windowed"

	// StrategyUninvested labels the terminal record holding cash that a dip
	// strategy never deployed.
	StrategyUninvested Strategy = "uninvested_cash"
)

// Defers reports whether contributions wait in accumulated cash for a dip.
func (s Strategy) Defers() bool {
	return s == StrategyDipImmediate || s == StrategyDipWindowed
}

// SimulationConfig describes one contribution plan.
type SimulationConfig struct {
	StartYear    int
	EndYear      int
	Contribution float64
	Cadence      Cadence
	// CustomDays is the step used when Cadence is CadenceCustom.
	CustomDays      int
	Strategy        Strategy
	DipThresholdPct float64
}

// ContributionEvent is one entry of the simulation ledger. BuyPrice is nil
// only for the terminal uninvested-cash record.
type ContributionEvent struct {
	Date         time.Time
	Strategy     Strategy
	BuyPrice     *float64
	Contribution float64
	Shares       float64
	FinalValue   float64
	Profit       float64

	PercentChangeVsPrev *float64
	WorstChangeInWindow *float64
	WindowDays          *int
}

type contributionEventJSON struct {
	Date                string   `json:"date"`
	BuyPrice            *float64 `json:"buy_price"`
	Contribution        float64  `json:"contribution"`
	Shares              float64  `json:"shares"`
	FinalValue          float64  `json:"final_value"`
	Profit              float64  `json:"profit"`
	Strategy            Strategy `json:"strategy"`
	PercentChangeVsPrev *float64 `json:"percent_change_vs_prev,omitempty"`
	WorstChangeInWindow *float64 `json:"worst_change_in_window,omitempty"`
	WindowDays          *int     `json:"window_days,omitempty"`
}

// MarshalJSON flattens the event and formats the date as YYYY-MM-DD.
func (e ContributionEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(contributionEventJSON{
		Date:                e.Date.Format(DateFormat),
		BuyPrice:            e.BuyPrice,
		Contribution:        e.Contribution,
		Shares:              e.Shares,
		FinalValue:          e.FinalValue,
		Profit:              e.Profit,
		Strategy:            e.Strategy,
		PercentChangeVsPrev: e.PercentChangeVsPrev,
		WorstChangeInWindow: e.WorstChangeInWindow,
		WindowDays:          e.WindowDays,
	})
}

// UnmarshalJSON reverses MarshalJSON.
func (e *ContributionEvent) UnmarshalJSON(b []byte) error {
	var raw contributionEventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}
	*e = ContributionEvent{
		Date:                d,
		Strategy:            raw.Strategy,
		BuyPrice:            raw.BuyPrice,
		Contribution:        raw.Contribution,
		Shares:              raw.Shares,
		FinalValue:          raw.FinalValue,
		Profit:              raw.Profit,
		PercentChangeVsPrev: raw.PercentChangeVsPrev,
		WorstChangeInWindow: raw.WorstChangeInWindow,
		WindowDays:          raw.WindowDays,
	}
	return nil
}

// SimulationResult is the aggregate outcome of a run plus its ledger.
type SimulationResult struct {
	TotalInvested  float64             `json:"total_invested"`
	FinalValue     float64             `json:"final_value"`
	TotalReturn    float64             `json:"total_return"`
	TotalReturnPct float64             `json:"total_return_pct"`
	FinalPrice     float64             `json:"final_price"`
	Events         []ContributionEvent `json:"events"`
}
