package simulate

import (
	"fmt"
	"math"
	"strings"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// Validate checks cfg before any price data is fetched. Cadence problems are
// reported as domain.ErrInvalidCadence; everything else as
// domain.ErrInvalidConfig with every problem listed.
func Validate(cfg domain.SimulationConfig) error {
	if _, err := StepDays(cfg.Cadence, cfg.CustomDays); err != nil {
		return err
	}

	var errs []string
	if cfg.StartYear <= 0 || cfg.EndYear <= 0 {
		errs = append(errs, "start_year and end_year must be positive")
	} else if cfg.StartYear > cfg.EndYear {
		errs = append(errs, fmt.Sprintf("start_year %d is after end_year %d", cfg.StartYear, cfg.EndYear))
	}
	if !(cfg.Contribution > 0) || math.IsInf(cfg.Contribution, 0) {
		errs = append(errs, "contribution must be a positive number")
	}
	policy, err := NewPolicy(cfg.Strategy, cfg.DipThresholdPct)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("unknown strategy %q", cfg.Strategy))
	case policy.Strategy().Defers():
		if !(cfg.DipThresholdPct > 0) || math.IsInf(cfg.DipThresholdPct, 0) {
			errs = append(errs, fmt.Sprintf("dip_threshold must be a positive number for strategy %s", policy.Strategy()))
		}
	default:
		if cfg.DipThresholdPct < 0 || math.IsNaN(cfg.DipThresholdPct) {
			errs = append(errs, "dip_threshold must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
