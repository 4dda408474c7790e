package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/alanyoungcy/indexlab/internal/calendar"
	"github.com/alanyoungcy/indexlab/internal/domain"
)

type tradingDayCmd struct{}

func (*tradingDayCmd) Name() string     { return "tradingday" }
func (*tradingDayCmd) Synopsis() string { return "check a date against the NYSE calendar" }
func (*tradingDayCmd) Usage() string {
	return `indexctl tradingday <yyyy-mm-dd>

  Exits 0 when the date is a trading day and 1 otherwise.
`
}

func (*tradingDayCmd) SetFlags(*flag.FlagSet) {}

func (*tradingDayCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one date")
		return subcommands.ExitUsageError
	}
	d, err := domain.ParseDate(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	fmt.Println(describeDay(d))
	if !calendar.IsTradingDay(d) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func describeDay(d time.Time) string {
	day := d.Format(domain.DateFormat)
	prev := calendar.PreviousTradingDay(d).Format(domain.DateFormat)
	next := calendar.NextTradingDay(d).Format(domain.DateFormat)
	if calendar.IsTradingDay(d) {
		return fmt.Sprintf("%s is a trading day (previous %s, next %s)", day, prev, next)
	}
	return fmt.Sprintf("%s is not a trading day (previous %s, next %s)", day, prev, next)
}
