/*
store.go - Persistence interfaces for the billing core

PURPOSE:
  Defines the contract between the engines (posting, invoice, ledger) and
  the database. Implementations live in store/sqlite (production) and
  store/memory (tests).

ATOMICITY CONTRACT:
  Several operations touch multiple records that must change together:
  invoice + ledger entry, posting + school roster, payment + invoice.
  TxStore.WithTx runs a function against a transactional view; if the
  function errors, every write inside it is rolled back.

COMMIT-TIME UNIQUENESS:
  CreateInvoice must enforce the one-non-cancelled-invoice-per-(school,
  month, year) invariant at commit time, not by pre-check, because
  concurrent generation requests for the same period are possible.

APPEND-ONLY LEDGER:
  LedgerStore exposes AppendEntry and reads only. No update, no delete.
  Corrections are offsetting adjustment entries.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - store/memory/memory.go: in-memory implementation with rollback
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// POSTING / SCHOOL / LEAVE / HOLIDAY STORES
// =============================================================================

type PostingStore interface {
	// SavePosting inserts or replaces a posting by ID.
	SavePosting(ctx context.Context, p Posting) error

	GetPosting(ctx context.Context, id PostingID) (*Posting, error)

	// PostingsByEmployee returns every posting for the employee, newest first.
	PostingsByEmployee(ctx context.Context, id EmployeeID) ([]Posting, error)

	// ActivePostingByEmployee returns the employee's single active posting,
	// or nil if none.
	ActivePostingByEmployee(ctx context.Context, id EmployeeID) (*Posting, error)

	// PostingsForPeriod returns the school's postings overlapping the period:
	// active ones that started on or before the period end, and closed ones
	// whose end date falls on or after the period start.
	PostingsForPeriod(ctx context.Context, schoolID SchoolID, p Period) ([]Posting, error)
}

type SchoolStore interface {
	SaveSchool(ctx context.Context, s School) error
	GetSchool(ctx context.Context, id SchoolID) (*School, error)
	ListSchools(ctx context.Context) ([]School, error)
}

type LeaveStore interface {
	SaveLeave(ctx context.Context, l Leave) error

	// LeavesOverlapping returns the employee's leaves intersecting [from, to].
	LeavesOverlapping(ctx context.Context, id EmployeeID, from, to time.Time) ([]Leave, error)
}

type HolidayStore interface {
	SaveHoliday(ctx context.Context, h Holiday) error

	// HolidaysBetween returns school-specific plus global holidays in
	// [from, to].
	HolidaysBetween(ctx context.Context, schoolID SchoolID, from, to time.Time) ([]Holiday, error)
}

// =============================================================================
// INVOICE / PAYMENT STORES
// =============================================================================

// InvoiceFilter narrows ListInvoices. Nil fields match everything.
type InvoiceFilter struct {
	SchoolID *SchoolID
	Period   *Period
	Statuses []InvoiceStatus
}

type InvoiceStore interface {
	// CreateInvoice persists a new invoice. Fails with DuplicateInvoiceError
	// if a non-cancelled invoice exists for the same (school, month, year).
	// The check is enforced at commit time.
	CreateInvoice(ctx context.Context, inv Invoice) error

	// UpdateInvoice replaces an existing invoice by ID.
	UpdateInvoice(ctx context.Context, inv Invoice) error

	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// InvoiceForPeriod returns the non-cancelled invoice for the school and
	// period, or nil if none.
	InvoiceForPeriod(ctx context.Context, schoolID SchoolID, p Period) (*Invoice, error)

	ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error)

	// NextInvoiceSeq returns the next number in the (month, year) scope and
	// advances it. Must be collision-free under concurrent generation, which
	// in practice means calling it inside WithTx.
	NextInvoiceSeq(ctx context.Context, p Period) (int64, error)
}

type PaymentStore interface {
	SavePayment(ctx context.Context, pay Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	PaymentsByInvoice(ctx context.Context, id InvoiceID) ([]Payment, error)
}

// =============================================================================
// LEDGER STORE - Append-only
// =============================================================================

type LedgerStore interface {
	// AppendEntry persists a ledger entry. Entries are immutable afterwards.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// LastEntry returns the school's highest-sequence entry, or nil.
	LastEntry(ctx context.Context, schoolID SchoolID) (*LedgerEntry, error)

	// LastEntryBefore returns the school's last entry belonging to a period
	// strictly before p, or nil. Seeds monthly summary opening balances.
	LastEntryBefore(ctx context.Context, schoolID SchoolID, p Period) (*LedgerEntry, error)

	// Entries returns the school's entries in sequence order, optionally
	// bounded by creation time.
	Entries(ctx context.Context, schoolID SchoolID, from, to *time.Time) ([]LedgerEntry, error)

	SaveSummary(ctx context.Context, s MonthlySummary) error
	GetSummary(ctx context.Context, schoolID SchoolID, p Period) (*MonthlySummary, error)
	SummariesForYear(ctx context.Context, schoolID SchoolID, year int) ([]MonthlySummary, error)
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

// Store bundles every persistence concern of the billing core.
type Store interface {
	PostingStore
	SchoolStore
	LeaveStore
	HolidayStore
	InvoiceStore
	PaymentStore
	LedgerStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error, every write inside it is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
