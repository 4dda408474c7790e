package simulate

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/indexlab/internal/domain"
)

// cadenceSteps maps the named cadences to a fixed calendar-day step.
var cadenceSteps = map[domain.Cadence]int{
	domain.CadenceWeekly:    7,
	domain.CadenceMonthly:   30,
	domain.CadenceQuarterly: 91,
	domain.CadenceBiannual:  182,
	domain.CadenceAnnually:  365,
}

// StepDays resolves a cadence selector to its step in calendar days.
// customDays is only consulted for domain.CadenceCustom.
func StepDays(cadence domain.Cadence, customDays int) (int, error) {
	c := domain.Cadence(strings.ToLower(strings.TrimSpace(string(cadence))))
	if c == domain.CadenceCustom {
		if customDays <= 0 {
			return 0, fmt.Errorf("simulate: custom cadence needs a positive day count, got %d: %w",
				customDays, domain.ErrInvalidCadence)
		}
		return customDays, nil
	}
	step, ok := cadenceSteps[c]
	if !ok {
		return 0, fmt.Errorf("simulate: unknown cadence %q: %w", cadence, domain.ErrInvalidCadence)
	}
	return step, nil
}

// schedule tracks the next due date. The first trading day it sees is due;
// every later due date is the previous one plus step calendar days, so a due
// date on a weekend or holiday waits for the next trading day without
// shifting the dates after it.
type schedule struct {
	step    int
	next    time.Time
	started bool
}

func newSchedule(step int) *schedule {
	return &schedule{step: step}
}

// due reports whether a contribution falls due on day and, if so, advances
// the schedule by one step.
func (s *schedule) due(day time.Time) bool {
	if !s.started {
		s.started = true
		s.next = day.AddDate(0, 0, s.step)
		return true
	}
	if day.Before(s.next) {
		return false
	}
	s.next = s.next.AddDate(0, 0, s.step)
	return true
}
