/*
errors.go - Centralized error types for the billing core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Engine packages wrap these with additional context.

ERROR CATEGORIES:
  1. Validation errors - bad input, no state change
  2. Conflict errors - invariant violations, no partial mutation
  3. Not-found errors - missing entity IDs
  4. Transient errors - retryable storage conflicts

USAGE:
  The HTTP layer maps categories to status codes:

    if billing.IsConflict(err) { ... 409 ... }

SEE ALSO:
  - api/handlers.go: status-code mapping
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidBillingRate is returned when a posting's monthly rate is
	// missing or not positive. Checked before any roster mutation.
	ErrInvalidBillingRate = errors.New("billing rate must be positive")

	// ErrInvalidPeriod is returned for a malformed (month, year).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidAmount is returned for a zero or negative payment amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNotCurrentlyPosted is returned when a change_school request finds
	// no active posting anywhere for the employee.
	ErrNotCurrentlyPosted = errors.New("employee not currently posted")

	// ErrAlreadyPostedAtSchool is returned when opening a posting at a school
	// where the employee already holds the active posting.
	ErrAlreadyPostedAtSchool = errors.New("employee already posted at this school")

	// ErrPostingClosed is returned when reactivating a resigned/terminated
	// posting. A new posting record must be created instead.
	ErrPostingClosed = errors.New("posting is closed")

	// ErrDuplicateInvoice is returned when a non-cancelled invoice already
	// exists for the (school, month, year).
	ErrDuplicateInvoice = errors.New("invoice already exists for period")

	// ErrNoBillableEmployees is returned when generation finds no line items.
	ErrNoBillableEmployees = errors.New("no billable employees for period")

	// ErrInvalidTransition is returned for a disallowed invoice status change.
	ErrInvalidTransition = errors.New("invalid invoice transition")

	// ErrInvoiceLocked is returned when mutating a sent invoice outside the
	// re-verification path.
	ErrInvoiceLocked = errors.New("invoice is locked")

	// ErrConfirmationRequired is returned when re-verifying a sent invoice
	// without the explicit confirmation flag.
	ErrConfirmationRequired = errors.New("re-verifying a sent invoice requires confirmation")

	// ErrAmountExceedsDue is returned when a payment would drive the paid
	// amount above the total payable.
	ErrAmountExceedsDue = errors.New("payment exceeds amount due")

	// ErrConcurrentModification is returned when a storage conflict is
	// detected. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Not-found sentinels.
	ErrPostingNotFound = errors.New("posting not found")
	ErrSchoolNotFound  = errors.New("school not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateInvoiceError identifies the existing invoice blocking generation.
type DuplicateInvoiceError struct {
	SchoolID SchoolID
	Period   Period
	Existing InvoiceID
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("invoice already exists for school %s period %s (invoice %s)",
		e.SchoolID, e.Period, e.Existing)
}

func (e *DuplicateInvoiceError) Unwrap() error { return ErrDuplicateInvoice }

// AmountExceedsDueError reports how far a payment overshoots the balance.
type AmountExceedsDueError struct {
	InvoiceID InvoiceID
	Requested decimal.Decimal
	Due       decimal.Decimal
}

func (e *AmountExceedsDueError) Error() string {
	return fmt.Sprintf("payment of %s exceeds amount due %s on invoice %s",
		e.Requested, e.Due, e.InvoiceID)
}

func (e *AmountExceedsDueError) Unwrap() error { return ErrAmountExceedsDue }

// TransitionError reports a disallowed invoice state change.
type TransitionError struct {
	InvoiceID InvoiceID
	From      InvoiceStatus
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s invoice %s in status %s", e.Attempted, e.InvoiceID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true for invalid caller input. No state was changed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidBillingRate) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAmountExceedsDue) ||
		errors.Is(err, ErrConfirmationRequired)
}

// IsConflict returns true for invariant violations. No partial mutation
// occurred.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateInvoice) ||
		errors.Is(err, ErrNotCurrentlyPosted) ||
		errors.Is(err, ErrAlreadyPostedAtSchool) ||
		errors.Is(err, ErrPostingClosed) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvoiceLocked) ||
		errors.Is(err, ErrNoBillableEmployees)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPostingNotFound) ||
		errors.Is(err, ErrSchoolNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
