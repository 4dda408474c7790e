package simulate

import (
	"github.com/alanyoungcy/indexlab/internal/domain"
)

// Simulate replays cfg over series and returns the ledger and totals.
//
// series must be sorted ascending by date without duplicates. An empty
// series yields a zero result with an empty ledger. The only errors are an
// unresolvable cadence (domain.ErrInvalidCadence) and an unknown strategy
// (domain.ErrInvalidConfig); both are reported before any replay happens.
func Simulate(series []domain.PricePoint, cfg domain.SimulationConfig) (domain.SimulationResult, error) {
	step, err := StepDays(cfg.Cadence, cfg.CustomDays)
	if err != nil {
		return domain.SimulationResult{}, err
	}
	policy, err := NewPolicy(cfg.Strategy, cfg.DipThresholdPct)
	if err != nil {
		return domain.SimulationResult{}, err
	}

	if len(series) == 0 {
		return domain.SimulationResult{Events: []domain.ContributionEvent{}}, nil
	}

	r := &replay{
		policy:       policy,
		step:         step,
		contribution: cfg.Contribution,
		sched:        newSchedule(step),
	}
	r.run(series)

	last := series[len(series)-1]
	if r.state.AccumulatedCash > 0 {
		r.events = append(r.events, domain.ContributionEvent{
			Date:         last.Date,
			Strategy:     domain.StrategyUninvested,
			Contribution: r.state.AccumulatedCash,
		})
	}

	res := summarize(r.state, last.Close)
	res.Events = finalize(r.events, last.Close)
	return roundResult(res), nil
}

// replay holds the mutable state of a single run.
type replay struct {
	policy       Policy
	step         int
	contribution float64
	sched        *schedule

	state  State
	events []domain.ContributionEvent
}

func (r *replay) run(series []domain.PricePoint) {
	defers := r.policy.Strategy().Defers()
	start := 0

	for i, pt := range series {
		if r.sched.due(pt.Date) {
			r.state.TotalInvested += r.contribution
			if defers || pt.Close <= 0 {
				r.state.AccumulatedCash += r.contribution
			} else {
				r.buy(pt, r.contribution, Decision{})
			}
		}

		start = windowStart(series, start, i, r.step)
		lb := Lookback{Points: series[start:i], Days: r.step}
		if d := r.policy.Evaluate(pt, r.state, lb); d.Deploy && pt.Close > 0 {
			cash := r.state.AccumulatedCash
			r.state.AccumulatedCash = 0
			r.buy(pt, cash, d)
		}

		r.state.PreviousClose = pt.Close
		r.state.HasPrevious = true
	}
}

func (r *replay) buy(pt domain.PricePoint, amount float64, d Decision) {
	shares := amount / pt.Close
	r.state.SharesOwned += shares

	price := pt.Close
	r.events = append(r.events, domain.ContributionEvent{
		Date:                pt.Date,
		Strategy:            r.policy.Strategy(),
		BuyPrice:            &price,
		Contribution:        amount,
		Shares:              shares,
		PercentChangeVsPrev: d.PercentChangeVsPrev,
		WorstChangeInWindow: d.WorstChangeInWindow,
		WindowDays:          d.WindowDays,
	})
}

// summarize computes the run totals at full precision.
func summarize(st State, finalPrice float64) domain.SimulationResult {
	finalValue := st.SharesOwned*finalPrice + st.AccumulatedCash
	totalReturn := finalValue - st.TotalInvested
	var pct float64
	if st.TotalInvested > 0 {
		pct = totalReturn / st.TotalInvested * 100
	}
	return domain.SimulationResult{
		TotalInvested:  st.TotalInvested,
		FinalValue:     finalValue,
		TotalReturn:    totalReturn,
		TotalReturnPct: pct,
		FinalPrice:     finalPrice,
	}
}

// finalize is the second pass over the ledger: once the last close is known
// each event gets its final value and profit.
func finalize(events []domain.ContributionEvent, finalPrice float64) []domain.ContributionEvent {
	out := make([]domain.ContributionEvent, len(events))
	for i, e := range events {
		if e.Shares > 0 {
			e.FinalValue = e.Shares * finalPrice
			e.Profit = e.FinalValue - e.Contribution
		} else {
			e.FinalValue = e.Contribution
			e.Profit = 0
		}
		out[i] = e
	}
	return out
}
