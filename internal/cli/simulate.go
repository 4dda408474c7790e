package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// simulateCmd holds the flags for the 'simulate' subcommand.
type simulateCmd struct {
	start     int
	end       int
	amount    float64
	interval  string
	days      int
	strategy  string
	threshold float64
	events    bool
	asJSON    bool
}

func (*simulateCmd) Name() string     { return "simulate" }
func (*simulateCmd) Synopsis() string { return "replay a contribution plan over the S&P 500" }
func (*simulateCmd) Usage() string {
	return `indexctl simulate [-start y] [-end y] [-amount n] [-interval i] [-days n] [-strategy s] [-threshold pct] [-events] [-json]

  Replays a dollar-cost-averaging or dip-buying plan over the daily closes of
  the index and prints the totals.
`
}

func (c *simulateCmd) SetFlags(f *flag.FlagSet) {
	year := time.Now().Year()
	f.IntVar(&c.start, "start", year-10, "First calendar year")
	f.IntVar(&c.end, "end", year-1, "Last calendar year")
	f.Float64Var(&c.amount, "amount", 100, "Contribution per period")
	f.StringVar(&c.interval, "interval", "monthly", "weekly, monthly, quarterly, biannual, annually or custom")
	f.IntVar(&c.days, "days", 0, "Step in days when -interval=custom")
	f.StringVar(&c.strategy, "strategy", "immediate", "immediate, dip_immediate or dip_windowed")
	f.Float64Var(&c.threshold, "threshold", 0, "Dip threshold in percent for the dip strategies")
	f.BoolVar(&c.events, "events", false, "Print every contribution")
	f.BoolVar(&c.asJSON, "json", false, "Print the raw result as JSON")
}

func (c *simulateCmd) config() domain.SimulationConfig {
	return domain.SimulationConfig{
		StartYear:       c.start,
		EndYear:         c.end,
		Contribution:    c.amount,
		Cadence:         domain.Cadence(c.interval),
		CustomDays:      c.days,
		Strategy:        domain.Strategy(c.strategy),
		DipThresholdPct: c.threshold,
	}
}

func (c *simulateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := open(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	cfg := c.config()
	res, err := e.svcs.Simulations.Run(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fail(fmt.Errorf("encode result: %w", err))
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(simulationMarkdown(cfg, res, c.events))
	return subcommands.ExitSuccess
}
