package simulate

import (
	"fmt"
	"math"
	"strings"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// State is the replay state a Policy may inspect. Policies never mutate it.
type State struct {
	SharesOwned     float64
	TotalInvested   float64
	AccumulatedCash float64
	PreviousClose   float64
	HasPrevious     bool
}

// Decision is a Policy's verdict for one trading day. The diagnostic fields
// are copied onto the event recorded for a deployment.
type Decision struct {
	Deploy              bool
	PercentChangeVsPrev *float64
	WorstChangeInWindow *float64
	WindowDays          *int
}

// Policy decides once per trading day whether accumulated cash is deployed.
type Policy interface {
	Strategy() domain.Strategy
	Evaluate(today domain.PricePoint, state State, lookback Lookback) Decision
}

// NewPolicy builds the Policy for a strategy. thresholdPct is the dip size in
// percent; its sign is ignored.
func NewPolicy(strategy domain.Strategy, thresholdPct float64) (Policy, error) {
	switch domain.Strategy(strings.ToLower(string(strategy))) {
	case domain.StrategyImmediate, "":
		return Immediate{}, nil
	case domain.StrategyDipImmediate:
		return DipImmediate{ThresholdPct: thresholdPct}, nil
	case domain.StrategyDipWindowed:
		return DipWindowed{ThresholdPct: thresholdPct}, nil
	default:
		return nil, fmt.Errorf("simulate: unknown strategy %q: %w", strategy, domain.ErrInvalidConfig)
	}
}

// Immediate buys every contribution on its due day; it never holds cash back.
type Immediate struct{}

func (Immediate) Strategy() domain.Strategy { return domain.StrategyImmediate }

func (Immediate) Evaluate(domain.PricePoint, State, Lookback) Decision { return Decision{} }

// DipImmediate deploys all accumulated cash when today's close is at least
// ThresholdPct below the previous trading day's close.
type DipImmediate struct {
	ThresholdPct float64
}

func (DipImmediate) Strategy() domain.Strategy { return domain.StrategyDipImmediate }

func (p DipImmediate) Evaluate(today domain.PricePoint, st State, _ Lookback) Decision {
	if !st.HasPrevious || p.ThresholdPct <= 0 || st.AccumulatedCash <= 0 {
		return Decision{}
	}
	if st.PreviousClose == 0 {
		return Decision{}
	}
	change := (today.Close - st.PreviousClose) / st.PreviousClose * 100
	if change > -math.Abs(p.ThresholdPct) {
		return Decision{}
	}
	return Decision{Deploy: true, PercentChangeVsPrev: &change}
}

// DipWindowed deploys all accumulated cash when today's close is at least
// ThresholdPct below any close inside the lookback window.
type DipWindowed struct {
	ThresholdPct float64
}

func (DipWindowed) Strategy() domain.Strategy { return domain.StrategyDipWindowed }

func (p DipWindowed) Evaluate(today domain.PricePoint, st State, lb Lookback) Decision {
	if p.ThresholdPct <= 0 || st.AccumulatedCash <= 0 {
		return Decision{}
	}
	worst, ok := lb.WorstChange(today.Close)
	if !ok || worst > -math.Abs(p.ThresholdPct) {
		return Decision{}
	}
	days := lb.Days
	return Decision{Deploy: true, WorstChangeInWindow: &worst, WindowDays: &days}
}
