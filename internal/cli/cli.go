// Package cli implements the indexctl subcommands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"github.com/alanyoungcy/indexlab/internal/app"
	"github.com/alanyoungcy/indexlab/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to the TOML configuration file (defaults plus INDEXLAB_* env when empty)")
	plain      = flag.Bool("plain", false, "Print raw markdown instead of rendering it for the terminal")
)

// Register adds every indexctl subcommand to c.
func Register(c *subcommands.Commander) {
	c.Register(&simulateCmd{}, "simulation")
	c.Register(&treemapCmd{}, "market")
	c.Register(&renderCmd{}, "market")
	c.Register(&metadataCmd{}, "market")
	c.Register(&tradingDayCmd{}, "calendar")
}

// env is the wired application a subcommand runs against.
type env struct {
	cfg     *config.Config
	deps    *app.Dependencies
	svcs    *app.Services
	cleanup func()
}

// open loads the configuration and wires dependencies. Logs go to stderr so
// stdout stays clean for reports.
func open(ctx context.Context) (*env, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// indexctl never serves, so only validate what it uses.
	cfg.Mode = "snapshot"
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		deps:    deps,
		svcs:    app.NewServices(cfg, deps, logger),
		cleanup: cleanup,
	}, nil
}

func (e *env) Close() { e.cleanup() }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	if *plain {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}
