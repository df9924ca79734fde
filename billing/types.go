/*
Package billing contains the core domain model for the trainer staffing and
school billing engine.

PURPOSE:
  Defines the entities shared by every engine in this repository:
  postings (trainer-to-school assignments), schools and their derived
  rosters, leave records, invoices with their line items and audit history,
  payments, and the per-school financial ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Posting: one time-bounded assignment of an employee to a school
  - School: client site with a derived active-trainer roster
  - Invoice: immutable-once-sent billing document with audit history
  - Payment: a recorded settlement against an invoice
  - LedgerEntry: one debit/credit movement with a running balance

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every monetary quantity
  2. Type Safety: strong ID types prevent mixing employee/school/invoice IDs
  3. Auditability: invoices carry an append-only adjustment and
     verification history instead of overwriting prior state

SEE ALSO:
  - period.go: (month, year) period math
  - calculator.go: per-posting proration
  - store.go: persistence interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	EmployeeID string
	SchoolID   string
	PostingID  string
	InvoiceID  string
	PaymentID  string
	LeaveID    string
)

// =============================================================================
// POSTING - Assignment of an employee to a school
// =============================================================================

type PostingStatus string

const (
	PostingContinue     PostingStatus = "continue"
	PostingChangeSchool PostingStatus = "change_school"
	PostingResign       PostingStatus = "resign"
	PostingTerminate    PostingStatus = "terminate"
)

// IsOpening reports whether the status represents an active assignment.
func (s PostingStatus) IsOpening() bool {
	return s == PostingContinue || s == PostingChangeSchool
}

// IsClosing reports whether the status ends an assignment.
func (s PostingStatus) IsClosing() bool {
	return s == PostingResign || s == PostingTerminate
}

func (s PostingStatus) Valid() bool {
	return s.IsOpening() || s.IsClosing()
}

// Posting is one assignment record. Postings are never deleted; a closed
// posting stays as a historical record with IsActive=false and EndDate set.
//
// INVARIANT: at most one posting per employee has IsActive=true at any instant.
// The posting package enforces this via its cascade; nothing else may flip
// IsActive.
type Posting struct {
	ID           PostingID
	EmployeeID   EmployeeID
	EmployeeName string // identity snapshot carried onto invoice lines
	SchoolID     SchoolID
	MonthlyRate  decimal.Decimal // required, > 0 while active
	StartDate    time.Time
	EndDate      *time.Time // nil while active
	Status       PostingStatus
	IsActive     bool
	Remark       string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeployedUntil returns the posting's effective end for billing purposes:
// the end date when closed, otherwise the supplied fallback.
func (p Posting) DeployedUntil(fallback time.Time) time.Time {
	if p.EndDate != nil {
		return *p.EndDate
	}
	return fallback
}

// =============================================================================
// SCHOOL - Client site with derived roster
// =============================================================================

// School is a client site. CurrentTrainers is DERIVED state: it must always
// equal the set of employees holding an active posting at this school, and is
// mutated only by the posting lifecycle engine.
type School struct {
	ID               SchoolID
	Name             string
	RequiredTrainers int
	BillingContact   string
	CurrentTrainers  []EmployeeID
	CreatedAt        time.Time
}

// HasTrainer reports roster membership.
func (s *School) HasTrainer(id EmployeeID) bool {
	for _, t := range s.CurrentTrainers {
		if t == id {
			return true
		}
	}
	return false
}

// AddTrainer adds an employee to the roster. Idempotent: adding an existing
// member is a no-op, which makes cascade retries safe.
func (s *School) AddTrainer(id EmployeeID) {
	if s.HasTrainer(id) {
		return
	}
	s.CurrentTrainers = append(s.CurrentTrainers, id)
}

// RemoveTrainer removes an employee from the roster. Idempotent.
func (s *School) RemoveTrainer(id EmployeeID) {
	for i, t := range s.CurrentTrainers {
		if t == id {
			s.CurrentTrainers = append(s.CurrentTrainers[:i], s.CurrentTrainers[i+1:]...)
			return
		}
	}
}

// =============================================================================
// LEAVE - Consumed by the billing calculator, owned elsewhere
// =============================================================================

// Leave is a read-only input to billing: an employee absence with approval
// status and a deductibility flag. Only approved, deductible leaves reduce
// billable days.
type Leave struct {
	ID         LeaveID
	EmployeeID EmployeeID
	From       time.Time
	To         time.Time
	Approved   bool
	Deductible bool
	Reason     string
}

// =============================================================================
// HOLIDAY - Excluded from working days and leave overlap
// =============================================================================

// Holiday is a non-working day. SchoolID is empty for global holidays.
type Holiday struct {
	ID       string
	SchoolID SchoolID
	Date     time.Time
	Name     string
}

// =============================================================================
// INVOICE - Billing document with state machine and audit history
// =============================================================================

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceGenerated InvoiceStatus = "generated"
	InvoiceVerified  InvoiceStatus = "verified"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceCancelled
}

// LineItem is one billed employee on an invoice. Amount is rounded per line
// to whole currency units; invoice totals sum already-rounded lines.
type LineItem struct {
	PostingID    PostingID
	EmployeeID   EmployeeID
	EmployeeName string
	MonthlyRate  decimal.Decimal
	WorkingDays  int
	DeployedDays int
	LeaveDays    int
	BillableDays int
	Amount       decimal.Decimal
}

// Adjustment is one structured entry in the invoice's override log: a single
// field changed during verification, with original and new value.
type Adjustment struct {
	Field    string
	Original string
	New      string
	Reason   string
	ActorID  string
	At       time.Time
}

// VerificationRecord is one entry in the invoice's verification history.
// History is append-only; re-verification never overwrites prior entries.
type VerificationRecord struct {
	Tag     string // "verified" or "re-verified"
	ActorID string
	At      time.Time
	Changes []string // human-readable, only fields that actually changed
}

// Invoice is the billing document for one (school, month, year).
//
// INVARIANTS:
//   - Unique per (school, month, year) among non-cancelled invoices.
//   - Once sent, mutable only through the audited re-verification path.
//   - BalanceDue == TotalPayable - PaidAmount at all times.
type Invoice struct {
	ID       InvoiceID
	Number   string
	SchoolID SchoolID
	Period   Period

	LineItems []LineItem

	Subtotal     decimal.Decimal // sum of line amounts
	TDSPercent   decimal.Decimal
	TDSAmount    decimal.Decimal
	GSTPercent   decimal.Decimal
	GSTAmount    decimal.Decimal
	RoundOff     decimal.Decimal // GrandTotal minus the unrounded taxed total
	GrandTotal   decimal.Decimal // round(Subtotal - TDSAmount + GSTAmount)
	PreviousDue  decimal.Decimal // carry-forward from the preceding period
	TotalPayable decimal.Decimal
	PaidAmount   decimal.Decimal
	BalanceDue   decimal.Decimal

	Status  InvoiceStatus
	DueDate time.Time
	SentAt  *time.Time
	SentBy  string

	Adjustments   []Adjustment
	Verifications []VerificationRecord
	CancelReason  string

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeTotals rederives every derived monetary field from the line items,
// tax percentages, carry-forward, and paid amount. Call after any mutation of
// those inputs.
func (inv *Invoice) RecomputeTotals() {
	subtotal := decimal.Zero
	for _, li := range inv.LineItems {
		subtotal = subtotal.Add(li.Amount)
	}
	inv.Subtotal = subtotal
	inv.TDSAmount = subtotal.Mul(inv.TDSPercent).Div(decimal.NewFromInt(100)).Round(2)
	inv.GSTAmount = subtotal.Mul(inv.GSTPercent).Div(decimal.NewFromInt(100)).Round(2)

	raw := subtotal.Sub(inv.TDSAmount).Add(inv.GSTAmount)
	inv.GrandTotal = raw.Round(0)
	inv.RoundOff = inv.GrandTotal.Sub(raw)
	inv.TotalPayable = inv.GrandTotal.Add(inv.PreviousDue)
	inv.BalanceDue = inv.TotalPayable.Sub(inv.PaidAmount)
}

// LineByPosting returns the line item backed by the given posting, or nil.
func (inv *Invoice) LineByPosting(id PostingID) *LineItem {
	for i := range inv.LineItems {
		if inv.LineItems[i].PostingID == id {
			return &inv.LineItems[i]
		}
	}
	return nil
}

// =============================================================================
// PAYMENT - Recorded settlement against an invoice
// =============================================================================

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCheque   PaymentMethod = "cheque"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentUPI      PaymentMethod = "upi"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentCleared PaymentStatus = "cleared"
	PaymentBounced PaymentStatus = "bounced"
)

// Payment is never mutated after creation except its status transition to
// cleared or bounced. Cash clears immediately; other instruments start pending.
type Payment struct {
	ID        PaymentID
	InvoiceID InvoiceID
	Amount    decimal.Decimal
	Method    PaymentMethod
	Status    PaymentStatus
	Reference string // cheque number, transaction ID, etc.

	RecordedBy string
	RecordedAt time.Time
	ClearedAt  *time.Time
}

// =============================================================================
// LEDGER - Per-school running balance
// =============================================================================

type LedgerEntryType string

const (
	LedgerInvoice    LedgerEntryType = "invoice"    // debit
	LedgerPayment    LedgerEntryType = "payment"    // credit
	LedgerAdjustment LedgerEntryType = "adjustment" // manual correction or memo
)

// LedgerEntry is one movement on a school's ledger. Entries are immutable
// once appended; corrections are offsetting adjustment entries.
//
// INVARIANT: Balance == previous entry's Balance + Debit - Credit.
type LedgerEntry struct {
	ID       string
	SchoolID SchoolID
	Seq      int64 // per-school, assigned on append
	Type     LedgerEntryType
	Period   Period // the (month, year) this movement belongs to
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	Balance  decimal.Decimal

	ReferenceID string // invoice or payment ID
	Memo        string
	ActorID     string
	CreatedAt   time.Time
}

// MonthlySummary is the derived rollup for one (school, month, year).
//
// INVARIANT: ClosingBalance == OpeningBalance + TotalInvoiced - TotalPaid.
type MonthlySummary struct {
	SchoolID       SchoolID
	Period         Period
	OpeningBalance decimal.Decimal
	TotalInvoiced  decimal.Decimal
	TotalPaid      decimal.Decimal
	ClosingBalance decimal.Decimal
}
