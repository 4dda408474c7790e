// Package scheduler runs the daily market snapshot on a cron schedule in the
// exchange time zone.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/indexlab/internal/calendar"
	"github.com/alanyoungcy/indexlab/internal/domain"
)

// DailyJob runs the snapshot for one date on one backend.
type DailyJob interface {
	RunDaily(ctx context.Context, dateStr string, backend domain.StorageBackend) (string, error)
}

// OutcomeNotifier is told about every finished run.
type OutcomeNotifier interface {
	JobOutcome(ctx context.Context, date, outcome string, jobErr error) error
}

// Scheduler triggers the daily job whenever the schedule fires.
type Scheduler struct {
	schedule Schedule
	job      DailyJob
	backend  domain.StorageBackend
	notifier OutcomeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Scheduler. notifier may be nil.
func New(schedule Schedule, job DailyJob, backend domain.StorageBackend, notifier OutcomeNotifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		job:      job,
		backend:  backend,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, running the job at each scheduled
// minute. A failed run is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "snapshot schedule started",
		slog.String("cron", s.schedule.String()),
		slog.String("storage", string(s.backend)),
	)

	for {
		next, err := s.schedule.Next(s.now().In(calendar.Location()))
		if err != nil {
			return err
		}
		wait := next.Sub(s.now())
		s.logger.InfoContext(ctx, "waiting for next snapshot",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.InfoContext(ctx, "snapshot schedule stopped")
			return ctx.Err()
		case <-timer.C:
			s.RunOnce(ctx, next)
		}
	}
}

// RunOnce runs the job for the exchange date of at and returns its outcome.
func (s *Scheduler) RunOnce(ctx context.Context, at time.Time) string {
	date := calendar.Today(at).Format(domain.DateFormat)
	outcome, err := s.job.RunDaily(ctx, date, s.backend)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled snapshot failed",
			slog.String("date", date),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.InfoContext(ctx, "scheduled snapshot finished",
			slog.String("date", date),
			slog.String("outcome", outcome),
		)
	}
	if s.notifier != nil {
		if nerr := s.notifier.JobOutcome(ctx, date, outcome, err); nerr != nil {
			s.logger.WarnContext(ctx, "snapshot notification failed", slog.String("error", nerr.Error()))
		}
	}
	return outcome
}
