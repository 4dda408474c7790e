package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/alanyoungcy/indexlab/internal/blob"
	"github.com/alanyoungcy/indexlab/internal/calendar"
	"github.com/alanyoungcy/indexlab/internal/domain"
)

// backendArg reads an optional positional storage backend.
func backendArg(f *flag.FlagSet, i int, def domain.StorageBackend) (domain.StorageBackend, error) {
	return blob.ParseBackend(f.Arg(i), def)
}

// treemapCmd runs the daily collection job for one date.
type treemapCmd struct{}

func (*treemapCmd) Name() string     { return "treemap" }
func (*treemapCmd) Synopsis() string { return "collect a market snapshot and publish its treemap" }
func (*treemapCmd) Usage() string {
	return `indexctl treemap [<yyyy-mm-dd>] [s3|local]

  Collects the S&P 500 snapshot for the date (today by default), renders the
  treemap and records the outcome under status_logs/.
`
}

func (*treemapCmd) SetFlags(*flag.FlagSet) {}

func (*treemapCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Error: expected at most a date and a storage backend")
		return subcommands.ExitUsageError
	}
	e, err := open(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	date := f.Arg(0)
	if date == "" {
		date = calendar.Today(time.Now()).Format(domain.DateFormat)
	}
	backend, err := backendArg(f, 1, e.deps.Stores.Default)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	outcome, err := e.svcs.Treemaps.RunDaily(ctx, date, backend)
	fmt.Printf("%s: %s (%s)\n", date, outcome, backend)
	if nerr := e.deps.Notifier.JobOutcome(ctx, date, outcome, err); nerr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", nerr)
	}
	if err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// renderCmd re-renders a treemap from an already collected snapshot.
type renderCmd struct{}

func (*renderCmd) Name() string     { return "render" }
func (*renderCmd) Synopsis() string { return "re-render a treemap from a stored snapshot" }
func (*renderCmd) Usage() string {
	return `indexctl render <yyyy-mm-dd> [s3|local]

  Reads the stored snapshot (data/<date>.csv, or the Postgres snapshot store
  when the file is missing) and rewrites the treemap page and metadata
  without fetching constituent prices.
`
}

func (*renderCmd) SetFlags(*flag.FlagSet) {}

func (*renderCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Error: expected a date and an optional storage backend")
		return subcommands.ExitUsageError
	}
	date, err := domain.ParseDate(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	e, err := open(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	backend, err := backendArg(f, 1, e.deps.Stores.Default)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	meta, err := e.svcs.Treemaps.Generate(ctx, date, backend)
	if err != nil {
		return fail(err)
	}
	printMarkdown(metadataMarkdown(backend, []domain.TreemapMetadata{meta}))
	return subcommands.ExitSuccess
}

// metadataCmd lists treemap metadata.
type metadataCmd struct {
	storage string
}

func (*metadataCmd) Name() string     { return "metadata" }
func (*metadataCmd) Synopsis() string { return "list published treemaps with their index change" }
func (*metadataCmd) Usage() string {
	return `indexctl metadata [-storage s3|local]
`
}

func (c *metadataCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.storage, "storage", "", "Storage backend (defaults to the configured one)")
}

func (c *metadataCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := open(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	backend, err := blob.ParseBackend(c.storage, e.deps.Stores.Default)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	metas, err := e.svcs.Treemaps.ListMetadata(ctx, backend)
	if err != nil {
		return fail(err)
	}
	printMarkdown(metadataMarkdown(backend, metas))
	return subcommands.ExitSuccess
}
