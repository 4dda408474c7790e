package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/indexlab/internal/calendar"
	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/scheduler"
	"github.com/alanyoungcy/indexlab/internal/server"
	"github.com/alanyoungcy/indexlab/internal/server/handler"
)

// ServerMode serves the HTTP API until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svcs *Services) error {
	a.logger.InfoContext(ctx, "starting server mode")

	var limiter domain.RateLimiter
	if a.cfg.RateLimit.Enabled {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			RateLimit:   a.cfg.RateLimit.Requests,
			RateWindow:  a.cfg.RateLimit.Window.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(deps.Checks, a.logger),
			Returns:  handler.NewReturnsHandler(svcs.Simulations, a.logger),
			Treemaps: handler.NewTreemapHandler(svcs.Treemaps, deps.Stores.Default, a.logger),
		},
		deps.Metrics,
		limiter,
		a.logger,
	)

	var sched *scheduler.Scheduler
	if a.cfg.Schedule.Enabled {
		schedule, err := scheduler.Parse(a.cfg.Schedule.Cron)
		if err != nil {
			return err
		}
		sched = scheduler.New(schedule, svcs.Treemaps, deps.Stores.Default, deps.Notifier, a.logger)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	if sched != nil {
		g.Go(func() error {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// SnapshotMode runs the daily collection job once for SnapshotDate (today by
// default) on the default storage backend.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies, svcs *Services) error {
	date := a.SnapshotDate
	if date == "" {
		date = calendar.Today(time.Now()).Format(domain.DateFormat)
	}
	backend := deps.Stores.Default

	a.logger.InfoContext(ctx, "starting snapshot mode",
		slog.String("date", date),
		slog.String("storage", string(backend)),
	)

	outcome, err := svcs.Treemaps.RunDaily(ctx, date, backend)
	if nerr := deps.Notifier.JobOutcome(ctx, date, outcome, err); nerr != nil {
		a.logger.WarnContext(ctx, "snapshot notification failed", slog.String("error", nerr.Error()))
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "snapshot job failed",
			slog.String("date", date),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return err
	}
	a.logger.InfoContext(ctx, "snapshot job finished",
		slog.String("date", date),
		slog.String("outcome", outcome),
	)
	return nil
}
