// Package calendar answers whether the New York Stock Exchange is open on a
// given day. It knows the regular full-day holidays, their weekend
// observance rules and the one-off closures since 2001.
package calendar

import (
	"time"
	_ "time/tzdata"
)

// exchangeTZ is the exchange's local time zone. The embedded tzdata makes
// the lookup independent of the host.
var exchangeTZ = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Location is the exchange's time zone.
func Location() *time.Location {
	return exchangeTZ
}

// Today returns the exchange's current calendar day for the instant now.
func Today(now time.Time) time.Time {
	return Day(now.In(exchangeTZ))
}

// Day is the canonical representation of a calendar day: midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether the exchange holds a regular session on d.
func IsTradingDay(d time.Time) bool {
	d = Day(d)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, ok := specialClosures[d]; ok {
		return false
	}
	for _, h := range Holidays(d.Year()) {
		if h.Equal(d) {
			return false
		}
	}
	return true
}

// PreviousTradingDay returns the last trading day strictly before d.
func PreviousTradingDay(d time.Time) time.Time {
	d = Day(d).AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the first trading day strictly after d.
func NextTradingDay(d time.Time) time.Time {
	d = Day(d).AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TradingDays lists the trading days in [from, to].
func TradingDays(from, to time.Time) []time.Time {
	var out []time.Time
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// specialClosures are unscheduled full-day closures: national days of
// mourning, the September 2001 attacks and Hurricane Sandy.
var specialClosures = map[time.Time]struct{}{
	date(2001, time.September, 11): {},
	date(2001, time.September, 12): {},
	date(2001, time.September, 13): {},
	date(2001, time.September, 14): {},
	date(2004, time.June, 11):      {},
	date(2007, time.January, 2):    {},
	date(2012, time.October, 29):   {},
	date(2012, time.October, 30):   {},
	date(2018, time.December, 5):   {},
	date(2025, time.January, 9):    {},
}

// Holidays returns the observed full-day holidays falling in year, in
// calendar order.
func Holidays(year int) []time.Time {
	var hs []time.Time

	// A Saturday New Year's Day is not moved back into the previous year.
	if ny := date(year, time.January, 1); ny.Weekday() != time.Saturday {
		hs = append(hs, observed(ny))
	}
	if year >= 1998 {
		hs = append(hs, nthWeekday(year, time.January, time.Monday, 3))
	}
	hs = append(hs, nthWeekday(year, time.February, time.Monday, 3))
	hs = append(hs, easter(year).AddDate(0, 0, -2))
	hs = append(hs, lastWeekday(year, time.May, time.Monday))
	if year >= 2022 {
		hs = append(hs, observed(date(year, time.June, 19)))
	}
	hs = append(hs, observed(date(year, time.July, 4)))
	hs = append(hs, nthWeekday(year, time.September, time.Monday, 1))
	hs = append(hs, nthWeekday(year, time.November, time.Thursday, 4))
	hs = append(hs, observed(date(year, time.December, 25)))
	return hs
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observed moves a Saturday holiday to Friday and a Sunday holiday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// nthWeekday returns the n-th (1-based) wd of the month.
func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	d := date(y, m, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) time.Time {
	d := date(y, m+1, 1).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easter computes Easter Sunday with the anonymous Gregorian algorithm.
func easter(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(y, time.Month(month), day)
}
