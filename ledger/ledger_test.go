package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/ledger"
	"github.com/stafflink/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	feb   = billing.Period{Month: time.February, Year: 2025}
	march = billing.Period{Month: time.March, Year: 2025}
)

func entry(school string, p billing.Period, debit, credit int64) billing.LedgerEntry {
	return billing.LedgerEntry{
		SchoolID: billing.SchoolID(school),
		Type:     billing.LedgerInvoice,
		Period:   p,
		Debit:    decimal.NewFromInt(debit),
		Credit:   decimal.NewFromInt(credit),
		ActorID:  "admin",
	}
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppend_SequenceAndRunningBalance(t *testing.T) {
	// GIVEN: Empty ledger
	// WHEN: Appending debit 1000, credit 400, debit 250
	// THEN: Seq runs 1..3 and each balance = previous + debit - credit

	store := memory.New()
	ctx := context.Background()

	first, err := ledger.Append(ctx, store, entry("school-1", march, 1000, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "1000", first.Balance.String())
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := ledger.Append(ctx, store, entry("school-1", march, 0, 400))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, "600", second.Balance.String())

	third, err := ledger.Append(ctx, store, entry("school-1", march, 250, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), third.Seq)
	assert.Equal(t, "850", third.Balance.String())
}

func TestAppend_BalancesIsolatedPerSchool(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := ledger.Append(ctx, store, entry("school-1", march, 1000, 0))
	require.NoError(t, err)

	other, err := ledger.Append(ctx, store, entry("school-2", march, 500, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Seq)
	assert.Equal(t, "500", other.Balance.String())
}

func TestAppend_InvalidPeriod(t *testing.T) {
	store := memory.New()
	_, err := ledger.Append(context.Background(), store,
		entry("school-1", billing.Period{Month: 0, Year: 2025}, 100, 0))
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

// =============================================================================
// MONTHLY SUMMARIES
// =============================================================================

func TestAppend_FoldsIntoMonthlySummary(t *testing.T) {
	// GIVEN: Two entries in March
	// THEN: One summary with totals and closing = opening + invoiced - paid

	store := memory.New()
	ctx := context.Background()

	_, err := ledger.Append(ctx, store, entry("school-1", march, 1000, 0))
	require.NoError(t, err)
	_, err = ledger.Append(ctx, store, entry("school-1", march, 0, 300))
	require.NoError(t, err)

	summary, err := store.GetSummary(ctx, "school-1", march)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, "0", summary.OpeningBalance.String())
	assert.Equal(t, "1000", summary.TotalInvoiced.String())
	assert.Equal(t, "300", summary.TotalPaid.String())
	assert.Equal(t, "700", summary.ClosingBalance.String())
}

func TestAppend_NewSummaryOpensAtPriorBalance(t *testing.T) {
	// GIVEN: February closed at balance 600
	// WHEN: The first March entry arrives
	// THEN: The March summary opens at 600

	store := memory.New()
	ctx := context.Background()

	febEntry := entry("school-1", feb, 600, 0)
	febEntry.CreatedAt = time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	_, err := ledger.Append(ctx, store, febEntry)
	require.NoError(t, err)

	marEntry := entry("school-1", march, 1000, 0)
	marEntry.CreatedAt = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	_, err = ledger.Append(ctx, store, marEntry)
	require.NoError(t, err)

	summary, err := store.GetSummary(ctx, "school-1", march)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "600", summary.OpeningBalance.String())
	assert.Equal(t, "1600", summary.ClosingBalance.String())
}

// =============================================================================
// CARRY-FORWARD
// =============================================================================

func saveInvoice(t *testing.T, store *memory.Store, status billing.InvoiceStatus, balance int64) {
	t.Helper()
	inv := billing.Invoice{
		ID:         "inv-feb",
		Number:     "INV-202502-0001",
		SchoolID:   "school-1",
		Period:     feb,
		Status:     status,
		BalanceDue: decimal.NewFromInt(balance),
	}
	require.NoError(t, store.CreateInvoice(context.Background(), inv))
}

func TestCarryForward_UnpaidSentInvoice(t *testing.T) {
	store := memory.New()
	saveInvoice(t, store, billing.InvoiceSent, 750)

	due, err := ledger.CarryForward(context.Background(), store, "school-1", march)
	require.NoError(t, err)
	assert.Equal(t, "750", due.String())
}

func TestCarryForward_NoPriorInvoice(t *testing.T) {
	store := memory.New()
	due, err := ledger.CarryForward(context.Background(), store, "school-1", march)
	require.NoError(t, err)
	assert.True(t, due.IsZero())
}

func TestCarryForward_UnsettledInvoice_Ignored(t *testing.T) {
	// Generated invoices have not been agreed with the school yet.

	store := memory.New()
	saveInvoice(t, store, billing.InvoiceGenerated, 750)

	due, err := ledger.CarryForward(context.Background(), store, "school-1", march)
	require.NoError(t, err)
	assert.True(t, due.IsZero())
}

func TestCarryForward_NegativeBalance_ClampedToZero(t *testing.T) {
	// An overpaid prior invoice never becomes a negative carry-forward.

	store := memory.New()
	saveInvoice(t, store, billing.InvoicePaid, -50)

	due, err := ledger.CarryForward(context.Background(), store, "school-1", march)
	require.NoError(t, err)
	assert.True(t, due.IsZero())
}

// =============================================================================
// READ SURFACE
// =============================================================================

func TestBook_Ledger_CurrentBalanceIsLastEntry(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := ledger.Append(ctx, store, entry("school-1", march, 1000, 0))
	require.NoError(t, err)
	_, err = ledger.Append(ctx, store, entry("school-1", march, 0, 400))
	require.NoError(t, err)

	book := ledger.NewBook(store)
	entries, balance, err := book.Ledger(ctx, "school-1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "600", balance.String())
}

func TestBook_Ledger_TimeBoundedWindow(t *testing.T) {
	// GIVEN: Entries on March 1 and March 20
	// WHEN: Reading the window up to March 10
	// THEN: Only the first entry returns, but the balance stays current

	store := memory.New()
	ctx := context.Background()

	early := entry("school-1", march, 1000, 0)
	early.CreatedAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := ledger.Append(ctx, store, early)
	require.NoError(t, err)

	late := entry("school-1", march, 500, 0)
	late.CreatedAt = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	_, err = ledger.Append(ctx, store, late)
	require.NoError(t, err)

	to := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	book := ledger.NewBook(store)
	entries, balance, err := book.Ledger(ctx, "school-1", nil, &to)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1000", entries[0].Balance.String())
	assert.Equal(t, "1500", balance.String())
}

func TestBook_MonthlySummaries_YearInMonthOrder(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	marEntry := entry("school-1", march, 1000, 0)
	marEntry.CreatedAt = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	_, err := ledger.Append(ctx, store, marEntry)
	require.NoError(t, err)

	febEntry := entry("school-1", feb, 400, 0)
	febEntry.CreatedAt = time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	_, err = ledger.Append(ctx, store, febEntry)
	require.NoError(t, err)

	book := ledger.NewBook(store)
	summaries, err := book.MonthlySummaries(ctx, "school-1", 2025)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, time.February, summaries[0].Period.Month)
	assert.Equal(t, time.March, summaries[1].Period.Month)
}
