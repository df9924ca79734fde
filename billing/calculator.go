/*
calculator.go - Monthly billing proration

PURPOSE:
  Converts a school's postings and the employees' leave records into
  per-employee billable line items for one period.

FORMULA (per posting):
  deployed days  = whole-day overlap of [start, end-or-period-end] with the
                   period, inclusive
  leave days     = whole-day overlaps of approved deductible leaves with the
                   deployed window, excluding holidays
  billable days  = max(0, deployed - leave)
  working days   = fixed constant (default 26), or calendar days minus
                   holidays in calendar mode
  amount         = round(monthly rate / working days * billable days)

ROUNDING:
  Applied per line item to whole currency units, never on the aggregate.
  Invoice totals sum already-rounded lines; sub-unit drift is absorbed by
  the invoice round-off field.

EDGE CASES:
  - Zero-billable postings (entirely on leave) emit no line item.
  - A school with zero line items is "not billable this period".
*/
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type WorkingDaysMode string

const (
	// WorkingDaysFixed uses a configurable constant per month.
	WorkingDaysFixed WorkingDaysMode = "fixed"

	// WorkingDaysCalendar uses calendar days in the period minus holidays.
	WorkingDaysCalendar WorkingDaysMode = "calendar"
)

const DefaultFixedWorkingDays = 26

type CalculatorConfig struct {
	Mode             WorkingDaysMode
	FixedWorkingDays int
}

func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{Mode: WorkingDaysFixed, FixedWorkingDays: DefaultFixedWorkingDays}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator is stateless; it reads posting, leave, and holiday data through
// the store handed to each call, so it can run inside a caller's transaction.
type Calculator struct {
	Config CalculatorConfig
}

func NewCalculator(cfg CalculatorConfig) *Calculator {
	if cfg.FixedWorkingDays <= 0 {
		cfg.FixedWorkingDays = DefaultFixedWorkingDays
	}
	if cfg.Mode == "" {
		cfg.Mode = WorkingDaysFixed
	}
	return &Calculator{Config: cfg}
}

// LineItems computes one line item per billable posting for the school and
// period. Read-only; safe to run in parallel across schools.
func (c *Calculator) LineItems(ctx context.Context, s Store, schoolID SchoolID, p Period) ([]LineItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	postings, err := s.PostingsForPeriod(ctx, schoolID, p)
	if err != nil {
		return nil, err
	}

	holidays, err := s.HolidaysBetween(ctx, schoolID, p.Start(), p.End())
	if err != nil {
		return nil, err
	}
	holidaySet := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		holidaySet[DateOnly(h.Date).Format("2006-01-02")] = true
	}

	workingDays := c.workingDays(p, len(holidaySet))

	var items []LineItem
	for _, posting := range postings {
		item, err := c.lineItem(ctx, s, posting, p, workingDays, holidaySet)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue // zero billable days, dropped
		}
		items = append(items, *item)
	}

	// Deterministic order: by employee name, then posting ID.
	sort.Slice(items, func(i, j int) bool {
		if items[i].EmployeeName != items[j].EmployeeName {
			return items[i].EmployeeName < items[j].EmployeeName
		}
		return items[i].PostingID < items[j].PostingID
	})
	return items, nil
}

func (c *Calculator) workingDays(p Period, holidayCount int) int {
	if c.Config.Mode == WorkingDaysCalendar {
		wd := p.Days() - holidayCount
		if wd < 1 {
			wd = 1
		}
		return wd
	}
	return c.Config.FixedWorkingDays
}

func (c *Calculator) lineItem(
	ctx context.Context,
	s Store,
	posting Posting,
	p Period,
	workingDays int,
	holidaySet map[string]bool,
) (*LineItem, error) {
	deployedFrom := DateOnly(posting.StartDate)
	deployedTo := DateOnly(posting.DeployedUntil(p.End()))

	deployed := OverlapDays(deployedFrom, deployedTo, p.Start(), p.End())
	if deployed == 0 {
		return nil, nil
	}

	// Clamp the deployed window to the period for leave overlap.
	windowFrom := deployedFrom
	if windowFrom.Before(p.Start()) {
		windowFrom = p.Start()
	}
	windowTo := deployedTo
	if windowTo.After(p.End()) {
		windowTo = p.End()
	}

	leaveDays, err := c.deductibleLeaveDays(ctx, s, posting.EmployeeID, windowFrom, windowTo, holidaySet)
	if err != nil {
		return nil, err
	}

	billable := deployed - leaveDays
	if billable <= 0 {
		return nil, nil
	}

	perDay := posting.MonthlyRate.Div(decimal.NewFromInt(int64(workingDays)))
	amount := perDay.Mul(decimal.NewFromInt(int64(billable))).Round(0)

	return &LineItem{
		PostingID:    posting.ID,
		EmployeeID:   posting.EmployeeID,
		EmployeeName: posting.EmployeeName,
		MonthlyRate:  posting.MonthlyRate,
		WorkingDays:  workingDays,
		DeployedDays: deployed,
		LeaveDays:    leaveDays,
		BillableDays: billable,
		Amount:       amount,
	}, nil
}

// deductibleLeaveDays sums whole-day overlaps of approved deductible leaves
// with [from, to], counting each day at most once and skipping holidays.
func (c *Calculator) deductibleLeaveDays(
	ctx context.Context,
	s Store,
	employeeID EmployeeID,
	from, to time.Time,
	holidaySet map[string]bool,
) (int, error) {
	leaves, err := s.LeavesOverlapping(ctx, employeeID, from, to)
	if err != nil {
		return 0, err
	}

	counted := make(map[string]bool)
	for _, leave := range leaves {
		if !leave.Approved || !leave.Deductible {
			continue
		}
		lf := DateOnly(leave.From)
		if lf.Before(from) {
			lf = from
		}
		lt := DateOnly(leave.To)
		if lt.After(to) {
			lt = to
		}
		for _, day := range DaysIn(lf, lt) {
			key := day.Format("2006-01-02")
			if holidaySet[key] {
				continue
			}
			counted[key] = true
		}
	}
	return len(counted), nil
}
