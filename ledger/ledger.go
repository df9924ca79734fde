/*
Package ledger maintains the append-only per-school financial ledger and
computes carry-forward balances between billing periods.

PURPOSE:
  Every invoice debit, payment credit, and manual adjustment lands here,
  each carrying the running balance at the time it was appended. The ledger
  is the auditable explanation of a school's current balance.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted.
  2. BALANCE IDENTITY: entry.Balance = previous.Balance + debit - credit.
  3. Corrections are offsetting adjustment entries, never edits.

TRANSACTIONS:
  Append and CarryForward take the store as a parameter so callers can run
  them inside their own WithTx unit of work. An invoice and its ledger entry
  commit together or not at all.

SEE ALSO:
  - billing/store.go: LedgerStore interface
  - invoice/service.go: posts entries during generation and payment
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/billing-engine/billing"
)

// =============================================================================
// APPEND - The only write path
// =============================================================================

// Append assigns the next sequence number, computes the running balance from
// the school's last entry, persists the entry, and folds it into the monthly
// summary for the entry's period. Call inside the caller's transaction.
func Append(ctx context.Context, s billing.Store, e billing.LedgerEntry) (billing.LedgerEntry, error) {
	if err := e.Period.Validate(); err != nil {
		return billing.LedgerEntry{}, err
	}

	last, err := s.LastEntry(ctx, e.SchoolID)
	if err != nil {
		return billing.LedgerEntry{}, err
	}

	prev := decimal.Zero
	e.Seq = 1
	if last != nil {
		prev = last.Balance
		e.Seq = last.Seq + 1
	}
	e.Balance = prev.Add(e.Debit).Sub(e.Credit)

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if err := s.AppendEntry(ctx, e); err != nil {
		return billing.LedgerEntry{}, err
	}
	if err := updateSummary(ctx, s, e); err != nil {
		return billing.LedgerEntry{}, err
	}
	return e, nil
}

// updateSummary folds the entry into its (month, year) rollup. A new
// summary's opening balance is seeded from the last entry strictly before
// that period.
func updateSummary(ctx context.Context, s billing.Store, e billing.LedgerEntry) error {
	summary, err := s.GetSummary(ctx, e.SchoolID, e.Period)
	if err != nil {
		return err
	}
	if summary == nil {
		opening := decimal.Zero
		if before, err := s.LastEntryBefore(ctx, e.SchoolID, e.Period); err != nil {
			return err
		} else if before != nil {
			opening = before.Balance
		}
		summary = &billing.MonthlySummary{
			SchoolID:       e.SchoolID,
			Period:         e.Period,
			OpeningBalance: opening,
			TotalInvoiced:  decimal.Zero,
			TotalPaid:      decimal.Zero,
		}
	}

	summary.TotalInvoiced = summary.TotalInvoiced.Add(e.Debit)
	summary.TotalPaid = summary.TotalPaid.Add(e.Credit)
	summary.ClosingBalance = summary.OpeningBalance.
		Add(summary.TotalInvoiced).
		Sub(summary.TotalPaid)

	return s.SaveSummary(ctx, *summary)
}

// =============================================================================
// CARRY-FORWARD
// =============================================================================

// settledStatuses are the invoice states whose balance is trusted as the
// prior period's unpaid amount.
var settledStatuses = map[billing.InvoiceStatus]bool{
	billing.InvoiceVerified: true,
	billing.InvoiceSent:     true,
	billing.InvoicePaid:     true,
	billing.InvoiceOverdue:  true,
}

// CarryForward returns the unpaid balance of the immediately preceding
// period's invoice, clamped to >= 0, or zero when no settled invoice exists.
// Only one prior period is consulted: that invoice's balance already embeds
// any earlier carry-forward.
func CarryForward(ctx context.Context, s billing.Store, schoolID billing.SchoolID, p billing.Period) (decimal.Decimal, error) {
	prev, err := s.InvoiceForPeriod(ctx, schoolID, p.Previous())
	if err != nil {
		return decimal.Zero, err
	}
	if prev == nil || !settledStatuses[prev.Status] {
		return decimal.Zero, nil
	}
	if prev.BalanceDue.IsNegative() {
		return decimal.Zero, nil
	}
	return prev.BalanceDue, nil
}

// =============================================================================
// READ SURFACE
// =============================================================================

// Book is the read-only ledger surface handed to the API layer.
type Book struct {
	Store billing.Store
}

func NewBook(s billing.Store) *Book {
	return &Book{Store: s}
}

// Ledger returns a school's entries (optionally bounded by creation time)
// plus the current balance, which is always the last entry's balance.
func (b *Book) Ledger(ctx context.Context, schoolID billing.SchoolID, from, to *time.Time) ([]billing.LedgerEntry, decimal.Decimal, error) {
	entries, err := b.Store.Entries(ctx, schoolID, from, to)
	if err != nil {
		return nil, decimal.Zero, err
	}
	last, err := b.Store.LastEntry(ctx, schoolID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	current := decimal.Zero
	if last != nil {
		current = last.Balance
	}
	return entries, current, nil
}

// MonthlySummaries returns the rollups for one calendar year, month order.
func (b *Book) MonthlySummaries(ctx context.Context, schoolID billing.SchoolID, year int) ([]billing.MonthlySummary, error) {
	return b.Store.SummariesForYear(ctx, schoolID, year)
}
