package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is a parsed 5-field cron expression
// "minute hour day-of-month month day-of-week".
type Schedule struct {
	expr string
	spec cron.Schedule
}

// Parse parses a standard 5-field cron expression. Day-of-week runs 0-6 from
// Sunday and accepts names; descriptors such as "@daily" work too.
func Parse(expr string) (Schedule, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("scheduler: cron %q: %w", expr, err)
	}
	return Schedule{expr: expr, spec: spec}, nil
}

func (s Schedule) String() string { return s.expr }

// Next returns the first matching minute strictly after after, evaluated in
// after's location.
func (s Schedule) Next(after time.Time) (time.Time, error) {
	if s.spec == nil {
		return time.Time{}, errors.New("scheduler: empty schedule")
	}
	next := s.spec.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("scheduler: cron %q never matches", s.expr)
	}
	return next, nil
}
