package simulate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pp(t time.Time, c float64) domain.PricePoint {
	return domain.PricePoint{Date: t, Close: c}
}

// dailySeries builds one point per weekday starting at from.
func dailySeries(from time.Time, closes ...float64) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(closes))
	d := from
	for _, c := range closes {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		out = append(out, pp(d, c))
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func weekly(strategy domain.Strategy, threshold float64) domain.SimulationConfig {
	return domain.SimulationConfig{
		StartYear:       2020,
		EndYear:         2020,
		Contribution:    100,
		Cadence:         domain.CadenceWeekly,
		Strategy:        strategy,
		DipThresholdPct: threshold,
	}
}

func TestSimulate_ImmediateBuysEachDueDay(t *testing.T) {
	series := []domain.PricePoint{
		pp(day(2020, 1, 6), 100),
		pp(day(2020, 1, 13), 100),
	}

	res, err := Simulate(series, weekly(domain.StrategyImmediate, 0))
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	for _, e := range res.Events {
		assert.Equal(t, 1.0, e.Shares)
		require.NotNil(t, e.BuyPrice)
		assert.Equal(t, 100.0, *e.BuyPrice)
		assert.Equal(t, domain.StrategyImmediate, e.Strategy)
		assert.Equal(t, 0.0, e.Profit)
	}
	assert.Equal(t, 200.0, res.TotalInvested)
	assert.Equal(t, 200.0, res.FinalValue)
	assert.Equal(t, 0.0, res.TotalReturn)
	assert.Equal(t, 0.0, res.TotalReturnPct)
	assert.Equal(t, 100.0, res.FinalPrice)
}

func TestSimulate_DipImmediateDeploysOnNextDayDrop(t *testing.T) {
	series := []domain.PricePoint{
		pp(day(2020, 1, 6), 100),
		pp(day(2020, 1, 7), 95),
	}

	res, err := Simulate(series, weekly(domain.StrategyDipImmediate, 2))
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	e := res.Events[0]
	assert.Equal(t, day(2020, 1, 7), e.Date)
	require.NotNil(t, e.BuyPrice)
	assert.Equal(t, 95.0, *e.BuyPrice)
	assert.Equal(t, 100.0, e.Contribution)
	assert.Equal(t, 1.052632, e.Shares)
	require.NotNil(t, e.PercentChangeVsPrev)
	assert.Equal(t, -5.0, *e.PercentChangeVsPrev)
	assert.Nil(t, e.WorstChangeInWindow)

	assert.Equal(t, 100.0, res.TotalInvested)
	assert.Equal(t, 100.0, res.FinalValue)
	assert.Equal(t, 0.0, res.TotalReturn)
}

func TestSimulate_EmptySeries(t *testing.T) {
	res, err := Simulate(nil, weekly(domain.StrategyDipWindowed, 5))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.TotalInvested)
	assert.Equal(t, 0.0, res.FinalValue)
	assert.Equal(t, 0.0, res.TotalReturn)
	assert.Equal(t, 0.0, res.TotalReturnPct)
	assert.Equal(t, 0.0, res.FinalPrice)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestSimulate_UnknownCadence(t *testing.T) {
	cfg := weekly(domain.StrategyImmediate, 0)
	cfg.Cadence = "fortnightly"

	res, err := Simulate(dailySeries(day(2020, 1, 6), 100, 101), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidCadence)
	assert.Nil(t, res.Events)
	assert.Zero(t, res.TotalInvested)
}

func TestSimulate_NoDipLeavesUninvestedCash(t *testing.T) {
	series := dailySeries(day(2021, 3, 1), 100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111)

	res, err := Simulate(series, weekly(domain.StrategyDipImmediate, 3))
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	e := res.Events[0]
	assert.Equal(t, domain.StrategyUninvested, e.Strategy)
	assert.Nil(t, e.BuyPrice)
	assert.Equal(t, 0.0, e.Shares)
	assert.Equal(t, 0.0, e.Profit)
	assert.Equal(t, series[len(series)-1].Date, e.Date)
	assert.Equal(t, res.TotalInvested, e.Contribution)
	assert.Equal(t, e.Contribution, e.FinalValue)

	// Mar 1, Mar 8 and Mar 15 fall due.
	assert.Equal(t, 300.0, res.TotalInvested)
	assert.Equal(t, 300.0, res.FinalValue)
	assert.Equal(t, 0.0, res.TotalReturnPct)
}

func TestSimulate_DueAndDipSameDay(t *testing.T) {
	series := []domain.PricePoint{
		pp(day(2020, 1, 6), 100),
		pp(day(2020, 1, 13), 90),
	}

	res, err := Simulate(series, weekly(domain.StrategyDipImmediate, 5))
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Equal(t, 200.0, res.Events[0].Contribution)
	assert.Equal(t, 2.222222, res.Events[0].Shares)
	assert.Equal(t, 200.0, res.TotalInvested)
}

func TestSimulate_DipWindowedUsesWorstChangeInWindow(t *testing.T) {
	// Each daily move is under 3%, but Thursday is 5.45% below Tuesday.
	series := dailySeries(day(2020, 1, 6), 100, 110, 107, 104)

	windowed, err := Simulate(series, weekly(domain.StrategyDipWindowed, 5))
	require.NoError(t, err)

	require.Len(t, windowed.Events, 1)
	e := windowed.Events[0]
	assert.Equal(t, day(2020, 1, 9), e.Date)
	assert.Equal(t, domain.StrategyDipWindowed, e.Strategy)
	require.NotNil(t, e.WorstChangeInWindow)
	assert.Equal(t, -5.45, *e.WorstChangeInWindow)
	require.NotNil(t, e.WindowDays)
	assert.Equal(t, 7, *e.WindowDays)
	assert.Equal(t, 0.961538, e.Shares)

	prev, err := Simulate(series, weekly(domain.StrategyDipImmediate, 5))
	require.NoError(t, err)
	require.Len(t, prev.Events, 1)
	assert.Equal(t, domain.StrategyUninvested, prev.Events[0].Strategy)
}

func TestSimulate_ZeroThresholdNeverDeploys(t *testing.T) {
	series := dailySeries(day(2020, 1, 6), 100, 50, 25)

	for _, s := range []domain.Strategy{domain.StrategyDipImmediate, domain.StrategyDipWindowed} {
		res, err := Simulate(series, weekly(s, 0))
		require.NoError(t, err)
		require.Len(t, res.Events, 1, s)
		assert.Equal(t, domain.StrategyUninvested, res.Events[0].Strategy, s)
	}
}

func TestSimulate_ZeroPriceIsNotBought(t *testing.T) {
	series := []domain.PricePoint{
		pp(day(2020, 1, 6), 0),
		pp(day(2020, 1, 13), 50),
	}

	res, err := Simulate(series, weekly(domain.StrategyImmediate, 0))
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	assert.Equal(t, day(2020, 1, 13), res.Events[0].Date)
	assert.Equal(t, 2.0, res.Events[0].Shares)
	assert.Equal(t, domain.StrategyUninvested, res.Events[1].Strategy)
	assert.Equal(t, 100.0, res.Events[1].Contribution)
	assert.Equal(t, 200.0, res.FinalValue)
}

func TestSimulate_ProfitAndReturn(t *testing.T) {
	series := []domain.PricePoint{
		pp(day(2020, 1, 6), 100),
		pp(day(2020, 1, 13), 50),
		pp(day(2020, 1, 20), 200),
	}

	res, err := Simulate(series, weekly(domain.StrategyImmediate, 0))
	require.NoError(t, err)

	require.Len(t, res.Events, 3)
	assert.Equal(t, 200.0, res.Events[0].FinalValue)
	assert.Equal(t, 100.0, res.Events[0].Profit)
	assert.Equal(t, 400.0, res.Events[1].FinalValue)
	assert.Equal(t, 300.0, res.Events[1].Profit)
	assert.Equal(t, 0.0, res.Events[2].Profit)

	assert.Equal(t, 300.0, res.TotalInvested)
	assert.Equal(t, 700.0, res.FinalValue)
	assert.Equal(t, 400.0, res.TotalReturn)
	assert.Equal(t, 133.33, res.TotalReturnPct)
}

func TestSimulate_DueDateOnWeekendWaitsForNextTradingDay(t *testing.T) {
	// Custom 5-day step from Monday Jan 6: Jan 11 is a Saturday, so the second
	// buy happens Monday Jan 13 and the third stays on Jan 16.
	series := dailySeries(day(2020, 1, 6), 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	cfg := weekly(domain.StrategyImmediate, 0)
	cfg.Cadence = domain.CadenceCustom
	cfg.CustomDays = 5

	res, err := Simulate(series, cfg)
	require.NoError(t, err)

	var dates []time.Time
	for _, e := range res.Events {
		dates = append(dates, e.Date)
	}
	assert.Equal(t, []time.Time{day(2020, 1, 6), day(2020, 1, 13), day(2020, 1, 16)}, dates)
}

func TestSimulate_ClosureBacklogBuysEveryTradingDay(t *testing.T) {
	series := []domain.PricePoint{
		pp(day(2001, 9, 10), 100),
		pp(day(2001, 9, 17), 100),
		pp(day(2001, 9, 18), 100),
		pp(day(2001, 9, 19), 100),
		pp(day(2001, 9, 20), 100),
		pp(day(2001, 9, 21), 100),
	}
	cfg := weekly(domain.StrategyImmediate, 0)
	cfg.StartYear, cfg.EndYear = 2001, 2001
	cfg.Cadence = domain.CadenceCustom
	cfg.CustomDays = 2

	res, err := Simulate(series, cfg)
	require.NoError(t, err)

	var dates []time.Time
	for _, e := range res.Events {
		assert.Equal(t, domain.StrategyImmediate, e.Strategy)
		dates = append(dates, e.Date)
	}
	want := make([]time.Time, 0, len(series))
	for _, p := range series {
		want = append(want, p.Date)
	}
	assert.Equal(t, want, dates)
	assert.Equal(t, 600.0, res.TotalInvested)
}

func TestSimulate_Properties(t *testing.T) {
	closes := make([]float64, 0, 400)
	price := 100.0
	for i := 0; i < 400; i++ {
		switch i % 7 {
		case 0, 3:
			price *= 0.96
		default:
			price *= 1.013
		}
		closes = append(closes, price)
	}
	series := dailySeries(day(2019, 1, 2), closes...)

	for _, s := range []domain.Strategy{domain.StrategyImmediate, domain.StrategyDipImmediate, domain.StrategyDipWindowed} {
		for _, c := range []domain.Cadence{domain.CadenceWeekly, domain.CadenceMonthly, domain.CadenceQuarterly} {
			cfg := domain.SimulationConfig{
				StartYear: 2019, EndYear: 2020, Contribution: 250,
				Cadence: c, Strategy: s, DipThresholdPct: 3,
			}
			res, err := Simulate(series, cfg)
			require.NoError(t, err)

			var sum float64
			for _, e := range res.Events {
				sum += e.Contribution
				if s == domain.StrategyImmediate {
					require.NotNil(t, e.BuyPrice)
					assert.InDelta(t, e.Contribution / *e.BuyPrice, e.Shares, 1e-6)
				}
			}
			assert.InDelta(t, res.TotalInvested, sum, 0.01, "%s/%s", s, c)

			again, err := Simulate(series, cfg)
			require.NoError(t, err)
			assert.Equal(t, res, again, "%s/%s", s, c)
		}
	}
}

func TestSimulate_FinalValueMonotonicInFinalPrice(t *testing.T) {
	base := dailySeries(day(2020, 1, 6), 100, 100, 100, 100, 100, 100, 100, 100)
	cfg := weekly(domain.StrategyImmediate, 0)

	prev := -1.0
	for _, last := range []float64{50, 80, 100, 120, 300} {
		series := append([]domain.PricePoint(nil), base...)
		series[len(series)-1].Close = last
		res, err := Simulate(series, cfg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.FinalValue, prev)
		prev = res.FinalValue
	}
}
