package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/billing-engine/billing"
)

// =============================================================================
// PERIOD VALIDATION
// =============================================================================

func TestNewPeriod_Valid(t *testing.T) {
	p, err := billing.NewPeriod(3, 2025)
	require.NoError(t, err)
	assert.Equal(t, time.March, p.Month)
	assert.Equal(t, 2025, p.Year)
}

func TestNewPeriod_InvalidMonth(t *testing.T) {
	_, err := billing.NewPeriod(0, 2025)
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)

	_, err = billing.NewPeriod(13, 2025)
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

func TestNewPeriod_InvalidYear(t *testing.T) {
	_, err := billing.NewPeriod(3, 1999)
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

// =============================================================================
// PERIOD MATH
// =============================================================================

func TestPeriod_StartEndDays(t *testing.T) {
	p := billing.Period{Month: time.February, Year: 2025}
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, 28, p.Days())

	leap := billing.Period{Month: time.February, Year: 2024}
	assert.Equal(t, 29, leap.Days())
}

func TestPeriod_PreviousNext_YearBoundary(t *testing.T) {
	jan := billing.Period{Month: time.January, Year: 2025}
	dec := jan.Previous()
	assert.Equal(t, time.December, dec.Month)
	assert.Equal(t, 2024, dec.Year)
	assert.Equal(t, jan, dec.Next())
}

func TestPeriod_Before(t *testing.T) {
	a := billing.Period{Month: time.December, Year: 2024}
	b := billing.Period{Month: time.January, Year: 2025}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(a))
}

func TestPeriod_DueDate(t *testing.T) {
	p := billing.Period{Month: time.March, Year: 2025}
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), p.DueDate(15))
}

func TestPeriod_String(t *testing.T) {
	p := billing.Period{Month: time.March, Year: 2025}
	assert.Equal(t, "2025-03", p.String())
}

func TestPeriodOf(t *testing.T) {
	p := billing.PeriodOf(time.Date(2025, 3, 17, 14, 30, 0, 0, time.UTC))
	assert.Equal(t, billing.Period{Month: time.March, Year: 2025}, p)
}

// =============================================================================
// DAY MATH
// =============================================================================

func TestOverlapDays(t *testing.T) {
	mar1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mar10 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mar31 := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	apr5 := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)

	// Full containment, inclusive on both ends
	assert.Equal(t, 10, billing.OverlapDays(mar1, mar10, mar1, mar31))

	// Partial overlap spills past the period
	assert.Equal(t, 22, billing.OverlapDays(mar10, apr5, mar1, mar31))

	// Single shared day
	assert.Equal(t, 1, billing.OverlapDays(mar31, apr5, mar1, mar31))

	// Disjoint
	assert.Equal(t, 0, billing.OverlapDays(apr5, apr5, mar1, mar31))
}

func TestOverlapDays_IgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 3, 10, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, billing.OverlapDays(a, a, b, b))
}

func TestDaysIn(t *testing.T) {
	from := time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	days := billing.DaysIn(from, to)
	require.Len(t, days, 4)
	assert.Equal(t, from, days[0])
	assert.Equal(t, to, days[3])
}
