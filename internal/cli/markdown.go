package cli

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

func usd(v float64) string {
	return money.NewFromFloat(v, money.USD).Display()
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// simulationMarkdown formats a result as a markdown report. events adds the
// full contribution ledger.
func simulationMarkdown(cfg domain.SimulationConfig, res domain.SimulationResult, events bool) string {
	var b strings.Builder

	cadence := string(cfg.Cadence)
	if cfg.Cadence == domain.CadenceCustom {
		cadence = fmt.Sprintf("every %d days", cfg.CustomDays)
	}
	fmt.Fprintf(&b, "# %s, %d-%d\n\n", cfg.Strategy, cfg.StartYear, cfg.EndYear)
	fmt.Fprintf(&b, "%s contributed %s", usd(cfg.Contribution), cadence)
	if cfg.Strategy.Defers() {
		fmt.Fprintf(&b, ", deployed on a %.2f%% dip", cfg.DipThresholdPct)
	}
	b.WriteString(".\n\n")

	b.WriteString("| | |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Total invested | %s |\n", usd(res.TotalInvested))
	fmt.Fprintf(&b, "| Final value | %s |\n", usd(res.FinalValue))
	fmt.Fprintf(&b, "| Total return | %s |\n", usd(res.TotalReturn))
	fmt.Fprintf(&b, "| Return | %s |\n", pct(res.TotalReturnPct))
	fmt.Fprintf(&b, "| Final price | %.2f |\n", res.FinalPrice)
	fmt.Fprintf(&b, "| Contributions | %d |\n", len(res.Events))

	if !events || len(res.Events) == 0 {
		return b.String()
	}

	b.WriteString("\n## Contributions\n\n")
	b.WriteString("| Date | Price | Amount | Shares | Value | Profit | Trigger |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---|\n")
	for _, e := range res.Events {
		price := "-"
		if e.BuyPrice != nil {
			price = fmt.Sprintf("%.2f", *e.BuyPrice)
		}
		trigger := ""
		switch {
		case e.PercentChangeVsPrev != nil:
			trigger = pct(*e.PercentChangeVsPrev) + " vs prev"
		case e.WorstChangeInWindow != nil && e.WindowDays != nil:
			trigger = fmt.Sprintf("%s in %dd", pct(*e.WorstChangeInWindow), *e.WindowDays)
		case e.Strategy == domain.StrategyUninvested:
			trigger = "uninvested"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %.6f | %s | %s | %s |\n",
			e.Date.Format(domain.DateFormat), price, usd(e.Contribution), e.Shares,
			usd(e.FinalValue), usd(e.Profit), trigger)
	}
	return b.String()
}

// metadataMarkdown lists treemap metadata records.
func metadataMarkdown(backend domain.StorageBackend, metas []domain.TreemapMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Treemaps (%s)\n\n", backend)
	if len(metas) == 0 {
		b.WriteString("No treemaps stored.\n")
		return b.String()
	}
	b.WriteString("| Date | S&P 500 | Market cap |\n|---|---:|---:|\n")
	for _, m := range metas {
		change := "n/a"
		if m.SP500PercentChange != nil {
			change = pct(*m.SP500PercentChange)
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", m.Date, change, m.TotalMarketCap)
	}
	return b.String()
}
