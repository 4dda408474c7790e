package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// SimulationRunner is what the returns endpoint needs from the service
// layer.
type SimulationRunner interface {
	Run(ctx context.Context, cfg domain.SimulationConfig) (domain.SimulationResult, error)
}

// ReturnsHandler serves contribution plan simulations.
type ReturnsHandler struct {
	sims   SimulationRunner
	logger *slog.Logger
}

// NewReturnsHandler creates a ReturnsHandler.
func NewReturnsHandler(sims SimulationRunner, logger *slog.Logger) *ReturnsHandler {
	return &ReturnsHandler{sims: sims, logger: logHandler(logger, "returns")}
}

// number accepts a JSON number or a numeric string, as HTML forms tend to
// send both. null and "" leave it unset.
type number struct {
	set bool
	v   float64
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		n.set, n.v = true, v
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.set, n.v = true, v
	return nil
}

func (n number) int() (int, bool) {
	if !n.set || n.v != float64(int(n.v)) {
		return 0, false
	}
	return int(n.v), true
}

type returnsRequest struct {
	StartYear    number `json:"start_year"`
	EndYear      number `json:"end_year"`
	Contribution number `json:"contribution"`
	Interval     string `json:"interval"`
	CustomDays   number `json:"custom_days"`
	Strategy     string `json:"strategy"`
	DipThreshold number `json:"dip_threshold"`
}

func (req returnsRequest) config() (domain.SimulationConfig, error) {
	var missing []string
	start, ok := req.StartYear.int()
	if !ok {
		missing = append(missing, "start_year")
	}
	end, ok := req.EndYear.int()
	if !ok {
		missing = append(missing, "end_year")
	}
	if !req.Contribution.set {
		missing = append(missing, "contribution")
	}
	strategy := domain.Strategy(strings.ToLower(strings.TrimSpace(req.Strategy)))
	if strategy.Defers() && !req.DipThreshold.set {
		missing = append(missing, "dip_threshold")
	}
	if len(missing) > 0 {
		return domain.SimulationConfig{}, fmt.Errorf("%w: missing or invalid %s",
			domain.ErrInvalidConfig, strings.Join(missing, ", "))
	}

	custom := 0
	if req.CustomDays.set {
		v, ok := req.CustomDays.int()
		if !ok {
			return domain.SimulationConfig{}, domain.ErrInvalidCadence
		}
		custom = v
	}

	return domain.SimulationConfig{
		StartYear:       start,
		EndYear:         end,
		Contribution:    req.Contribution.v,
		Cadence:         domain.Cadence(req.Interval),
		CustomDays:      custom,
		Strategy:        strategy,
		DipThresholdPct: req.DipThreshold.v,
	}, nil
}

// Returns simulates a contribution plan.
// POST /api/returns
func (h *ReturnsHandler) Returns(w http.ResponseWriter, r *http.Request) {
	var req returnsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, err := req.config()
	if err == nil {
		var res domain.SimulationResult
		res, err = h.sims.Run(r.Context(), cfg)
		if err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "Invalid interval")
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDataUnavailable):
		h.logger.WarnContext(r.Context(), "price data unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "price data unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "simulation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "simulation failed")
	}
}
