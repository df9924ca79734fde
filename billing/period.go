package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - A billing month
// =============================================================================

// Period identifies one billing month. All invoice, carry-forward, and
// summary math is scoped to a Period.
type Period struct {
	Month time.Month
	Year  int
}

// NewPeriod validates and builds a period.
func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: time.Month(month), Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the period containing the given date.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 2000 || p.Year > 2200 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// Start returns the first day of the period (UTC midnight).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period (UTC midnight).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	return p.End().Day()
}

// Previous returns the immediately preceding period.
func (p Period) Previous() Period {
	t := p.Start().AddDate(0, -1, 0)
	return Period{Month: t.Month(), Year: t.Year()}
}

// Next returns the immediately following period.
func (p Period) Next() Period {
	t := p.Start().AddDate(0, 1, 0)
	return Period{Month: t.Month(), Year: t.Year()}
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// Before reports strict chronological ordering of periods.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// DueDate returns the payment due date: netDays after the period's last day.
func (p Period) DueDate(netDays int) time.Time {
	return p.End().AddDate(0, 0, netDays)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// =============================================================================
// DAY MATH
// =============================================================================

// DateOnly truncates a time to UTC midnight. All day counting in this
// package operates on date-only values.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// OverlapDays counts the whole days, inclusive on both ends, shared by
// [aFrom, aTo] and [bFrom, bTo]. Returns 0 when the ranges are disjoint.
func OverlapDays(aFrom, aTo, bFrom, bTo time.Time) int {
	from := DateOnly(aFrom)
	if b := DateOnly(bFrom); b.After(from) {
		from = b
	}
	to := DateOnly(aTo)
	if b := DateOnly(bTo); b.Before(to) {
		to = b
	}
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// DaysIn enumerates every day of [from, to] inclusive, date-only.
func DaysIn(from, to time.Time) []time.Time {
	var days []time.Time
	for d := DateOnly(from); !d.After(DateOnly(to)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
