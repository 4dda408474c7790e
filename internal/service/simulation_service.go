package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
	"github.com/alanyoungcy/indexlab/internal/simulate"
)

// SimulationService validates a contribution plan, loads the index series
// and replays the plan over it.
type SimulationService struct {
	series  domain.SeriesProvider
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSimulationService creates a SimulationService.
func NewSimulationService(series domain.SeriesProvider, metrics *observability.Metrics, logger *slog.Logger) *SimulationService {
	return &SimulationService{series: series, metrics: metrics, logger: logger}
}

// Run validates cfg before fetching any data, then simulates it. Errors wrap
// domain.ErrInvalidCadence, domain.ErrInvalidConfig or
// domain.ErrDataUnavailable.
func (s *SimulationService) Run(ctx context.Context, cfg domain.SimulationConfig) (domain.SimulationResult, error) {
	if err := simulate.Validate(cfg); err != nil {
		return domain.SimulationResult{}, err
	}
	if cfg.Strategy == "" {
		cfg.Strategy = domain.StrategyImmediate
	}

	runID := uuid.NewString()
	logger := s.logger.With(
		slog.String("run_id", runID),
		slog.String("strategy", string(cfg.Strategy)),
		slog.String("cadence", string(cfg.Cadence)),
	)

	series, err := s.series.FetchSeries(ctx, cfg.StartYear, cfg.EndYear)
	if err != nil {
		s.metrics.ObserveSimulation(string(cfg.Strategy), err, 0, 0)
		logger.ErrorContext(ctx, "simulation_service: fetch series failed", slog.String("error", err.Error()))
		return domain.SimulationResult{}, fmt.Errorf("simulation_service: run %s: %w", runID, err)
	}

	start := time.Now()
	res, err := simulate.Simulate(series, cfg)
	elapsed := time.Since(start)
	s.metrics.ObserveSimulation(string(cfg.Strategy), err, len(res.Events), elapsed)
	if err != nil {
		return domain.SimulationResult{}, fmt.Errorf("simulation_service: run %s: %w", runID, err)
	}

	logger.InfoContext(ctx, "simulation_service: run complete",
		slog.Int("start_year", cfg.StartYear),
		slog.Int("end_year", cfg.EndYear),
		slog.Int("points", len(series)),
		slog.Int("events", len(res.Events)),
		slog.Float64("total_invested", res.TotalInvested),
		slog.Float64("final_value", res.FinalValue),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}
