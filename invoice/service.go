/*
Package invoice implements the invoice lifecycle engine.

STATE MACHINE:
  draft -> generated -> verified <-> re-verified -> sent -> paid | overdue
  cancelled is reachable from any state except paid and cancelled.

PURPOSE:
  Generation runs the billing calculator, fetches the carry-forward, and
  posts the invoice ledger debit in the same transaction as invoice
  creation. Verification applies audited tax and leave-day overrides.
  Sending locks the document; later corrections go through the explicit
  re-verification path. Payments reduce the balance and post ledger
  credits atomically with the invoice update.

AUDIT:
  Every override is recorded in the invoice's adjustment log (original
  value, new value, reason, actor, timestamp) and each (re-)verification
  appends a history entry listing only the fields that actually changed.

SEE ALSO:
  - billing/calculator.go: line item math
  - ledger: carry-forward and entry appends
*/
package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store billing.TxStore
	Calc  *billing.Calculator
	Clock func() time.Time

	// Defaults applied at generation; overridable at verification.
	DefaultTDSPercent decimal.Decimal
	DefaultGSTPercent decimal.Decimal
	DueInDays         int
}

func NewService(store billing.TxStore, calc *billing.Calculator) *Service {
	return &Service{
		Store:     store,
		Calc:      calc,
		Clock:     func() time.Time { return time.Now().UTC() },
		DueInDays: 15,
	}
}

// =============================================================================
// GENERATE
// =============================================================================

type GenerateInput struct {
	SchoolID billing.SchoolID
	Period   billing.Period
	ActorID  string
	AsDraft  bool // start in draft instead of generated
}

// Generate creates the invoice for one (school, period). The invoice and
// its ledger debit commit in one transaction; the store's commit-time
// uniqueness check makes concurrent generation safe.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*billing.Invoice, error) {
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}

	var created *billing.Invoice
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		school, err := tx.GetSchool(ctx, in.SchoolID)
		if err != nil {
			return err
		}
		if school == nil {
			return billing.ErrSchoolNotFound
		}

		if existing, err := tx.InvoiceForPeriod(ctx, in.SchoolID, in.Period); err != nil {
			return err
		} else if existing != nil {
			return &billing.DuplicateInvoiceError{
				SchoolID: in.SchoolID,
				Period:   in.Period,
				Existing: existing.ID,
			}
		}

		items, err := s.Calc.LineItems(ctx, tx, in.SchoolID, in.Period)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return billing.ErrNoBillableEmployees
		}

		previousDue, err := ledger.CarryForward(ctx, tx, in.SchoolID, in.Period)
		if err != nil {
			return err
		}

		seq, err := tx.NextInvoiceSeq(ctx, in.Period)
		if err != nil {
			return err
		}

		now := s.Clock()
		status := billing.InvoiceGenerated
		if in.AsDraft {
			status = billing.InvoiceDraft
		}

		inv := billing.Invoice{
			ID:          billing.InvoiceID(uuid.NewString()),
			Number:      Number(in.Period, seq),
			SchoolID:    in.SchoolID,
			Period:      in.Period,
			LineItems:   items,
			TDSPercent:  s.DefaultTDSPercent,
			GSTPercent:  s.DefaultGSTPercent,
			PreviousDue: previousDue,
			PaidAmount:  decimal.Zero,
			Status:      status,
			DueDate:     in.Period.DueDate(s.DueInDays),
			CreatedBy:   in.ActorID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		inv.RecomputeTotals()

		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}

		// The ledger debit is the newly billed amount only; the
		// carry-forward is already on the ledger from the prior period.
		if _, err := ledger.Append(ctx, tx, billing.LedgerEntry{
			SchoolID:    in.SchoolID,
			Type:        billing.LedgerInvoice,
			Period:      in.Period,
			Debit:       inv.GrandTotal,
			Credit:      decimal.Zero,
			ReferenceID: string(inv.ID),
			Memo:        fmt.Sprintf("invoice %s", inv.Number),
			ActorID:     in.ActorID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		created = &inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("invoice generated",
		"invoice", created.Number,
		"school", created.SchoolID,
		"period", created.Period.String(),
		"total", created.TotalPayable,
	)
	return created, nil
}

// =============================================================================
// BULK GENERATION - Scheduler entry point
// =============================================================================

type BulkSuccess struct {
	SchoolID      billing.SchoolID
	InvoiceNumber string
	Amount        decimal.Decimal
}

type BulkFailure struct {
	SchoolID billing.SchoolID
	Reason   string
}

type BulkResult struct {
	Successful []BulkSuccess
	Failed     []BulkFailure
}

// GenerateForPeriod generates an invoice for every school, isolating
// per-school failures so one school's error cannot abort the batch.
// Safe to re-invoke: duplicates fail individually with a conflict.
func (s *Service) GenerateForPeriod(ctx context.Context, p billing.Period, actorID string) (*BulkResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	schools, err := s.Store.ListSchools(ctx)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, school := range schools {
		inv, err := s.Generate(ctx, GenerateInput{SchoolID: school.ID, Period: p, ActorID: actorID})
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{SchoolID: school.ID, Reason: err.Error()})
			slog.Warn("bulk generation failed for school",
				"school", school.ID, "period", p.String(), "error", err)
			continue
		}
		result.Successful = append(result.Successful, BulkSuccess{
			SchoolID:      school.ID,
			InvoiceNumber: inv.Number,
			Amount:        inv.TotalPayable,
		})
	}
	return result, nil
}

// =============================================================================
// VERIFY / RE-VERIFY
// =============================================================================

type VerifyInput struct {
	InvoiceID billing.InvoiceID
	ActorID   string
	Reason    string

	// Overrides; nil/absent means unchanged.
	TDSPercent *decimal.Decimal
	GSTPercent *decimal.Decimal
	LeaveDays  map[billing.PostingID]int

	// Required when re-verifying a sent invoice: the document has already
	// been delivered to the counterparty.
	ConfirmSent bool
}

// Verify moves a generated invoice to verified, applying any overrides.
// From verified or sent it acts as a re-verification: overrides are applied
// the same way and a further history entry is appended.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*billing.Invoice, error) {
	var verified *billing.Invoice
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		inv, err := tx.GetInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return billing.ErrInvoiceNotFound
		}

		tag := "verified"
		switch inv.Status {
		case billing.InvoiceGenerated, billing.InvoiceDraft:
			// first verification
		case billing.InvoiceVerified:
			tag = "re-verified"
		case billing.InvoiceSent:
			if !in.ConfirmSent {
				return billing.ErrConfirmationRequired
			}
			tag = "re-verified"
		default:
			return &billing.TransitionError{InvoiceID: inv.ID, From: inv.Status, Attempted: "verify"}
		}

		now := s.Clock()
		changes, err := s.applyOverrides(inv, in, now)
		if err != nil {
			return err
		}

		inv.RecomputeTotals()
		inv.Verifications = append(inv.Verifications, billing.VerificationRecord{
			Tag:     tag,
			ActorID: in.ActorID,
			At:      now,
			Changes: changes,
		})
		if inv.Status != billing.InvoiceSent {
			inv.Status = billing.InvoiceVerified
		}
		inv.UpdatedAt = now

		if err := tx.UpdateInvoice(ctx, *inv); err != nil {
			return err
		}
		verified = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

// applyOverrides mutates the invoice per the input, records each change in
// the adjustment log, and returns the human-readable change list.
func (s *Service) applyOverrides(inv *billing.Invoice, in VerifyInput, now time.Time) ([]string, error) {
	var changes []string

	record := func(field, original, updated string) {
		inv.Adjustments = append(inv.Adjustments, billing.Adjustment{
			Field:    field,
			Original: original,
			New:      updated,
			Reason:   in.Reason,
			ActorID:  in.ActorID,
			At:       now,
		})
		changes = append(changes, fmt.Sprintf("%s: %s -> %s", field, original, updated))
	}

	if in.TDSPercent != nil && !in.TDSPercent.Equal(inv.TDSPercent) {
		record("tds_percent", inv.TDSPercent.String(), in.TDSPercent.String())
		inv.TDSPercent = *in.TDSPercent
	}
	if in.GSTPercent != nil && !in.GSTPercent.Equal(inv.GSTPercent) {
		record("gst_percent", inv.GSTPercent.String(), in.GSTPercent.String())
		inv.GSTPercent = *in.GSTPercent
	}

	for postingID, leaveDays := range in.LeaveDays {
		line := inv.LineByPosting(postingID)
		if line == nil {
			return nil, fmt.Errorf("%w: no line item for posting %s", billing.ErrPostingNotFound, postingID)
		}
		if leaveDays < 0 {
			return nil, fmt.Errorf("%w: negative leave days", billing.ErrInvalidAmount)
		}
		if leaveDays == line.LeaveDays {
			continue
		}

		field := fmt.Sprintf("line[%s].leave_days", postingID)
		record(field, fmt.Sprintf("%d", line.LeaveDays), fmt.Sprintf("%d", leaveDays))

		// Recompute against the ORIGINAL working-days figure stored on the
		// line at generation time.
		line.LeaveDays = leaveDays
		billable := line.DeployedDays - leaveDays
		if billable < 0 {
			billable = 0
		}
		line.BillableDays = billable
		perDay := line.MonthlyRate.Div(decimal.NewFromInt(int64(line.WorkingDays)))
		line.Amount = perDay.Mul(decimal.NewFromInt(int64(billable))).Round(0)
	}

	return changes, nil
}

// =============================================================================
// SEND
// =============================================================================

// Send marks a verified invoice as delivered and locks it. Further edits
// must go through Verify with ConfirmSent.
func (s *Service) Send(ctx context.Context, id billing.InvoiceID, actorID string) (*billing.Invoice, error) {
	var sent *billing.Invoice
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return billing.ErrInvoiceNotFound
		}
		if inv.Status != billing.InvoiceVerified {
			return &billing.TransitionError{InvoiceID: inv.ID, From: inv.Status, Attempted: "send"}
		}

		now := s.Clock()
		inv.Status = billing.InvoiceSent
		inv.SentAt = &now
		inv.SentBy = actorID
		inv.UpdatedAt = now

		if err := tx.UpdateInvoice(ctx, *inv); err != nil {
			return err
		}
		sent = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("invoice sent", "invoice", sent.Number, "actor", actorID)
	return sent, nil
}

// SendAll sends every verified invoice for the period, isolating failures.
func (s *Service) SendAll(ctx context.Context, p billing.Period, actorID string) (*BulkResult, error) {
	verified := billing.InvoiceVerified
	invoices, err := s.Store.ListInvoices(ctx, billing.InvoiceFilter{
		Period:   &p,
		Statuses: []billing.InvoiceStatus{verified},
	})
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, inv := range invoices {
		sent, err := s.Send(ctx, inv.ID, actorID)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{SchoolID: inv.SchoolID, Reason: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, BulkSuccess{
			SchoolID:      sent.SchoolID,
			InvoiceNumber: sent.Number,
			Amount:        sent.TotalPayable,
		})
	}
	return result, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentInput struct {
	InvoiceID billing.InvoiceID
	Amount    decimal.Decimal
	Method    billing.PaymentMethod
	Reference string
	ActorID   string
}

// RecordPayment applies a payment to the invoice and posts the ledger
// credit atomically. Rejects non-positive amounts and amounts that would
// drive the paid total above the payable total. The invoice flips to paid
// when the balance reaches zero.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*billing.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, billing.ErrInvalidAmount
	}

	var recorded *billing.Payment
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		inv, err := tx.GetInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return billing.ErrInvoiceNotFound
		}
		if inv.Status == billing.InvoicePaid || inv.Status == billing.InvoiceCancelled {
			return &billing.TransitionError{InvoiceID: inv.ID, From: inv.Status, Attempted: "record payment on"}
		}
		if !inv.BalanceDue.IsPositive() {
			return &billing.TransitionError{InvoiceID: inv.ID, From: inv.Status, Attempted: "record payment on settled"}
		}
		if inv.PaidAmount.Add(in.Amount).GreaterThan(inv.TotalPayable) {
			return &billing.AmountExceedsDueError{
				InvoiceID: inv.ID,
				Requested: in.Amount,
				Due:       inv.BalanceDue,
			}
		}

		now := s.Clock()
		inv.PaidAmount = inv.PaidAmount.Add(in.Amount)
		inv.RecomputeTotals()
		if inv.BalanceDue.IsZero() {
			inv.Status = billing.InvoicePaid
		}
		inv.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, *inv); err != nil {
			return err
		}

		pay := billing.Payment{
			ID:         billing.PaymentID(uuid.NewString()),
			InvoiceID:  inv.ID,
			Amount:     in.Amount,
			Method:     in.Method,
			Status:     billing.PaymentPending,
			Reference:  in.Reference,
			RecordedBy: in.ActorID,
			RecordedAt: now,
		}
		if in.Method == billing.PaymentCash {
			pay.Status = billing.PaymentCleared
			pay.ClearedAt = &now
		}
		if err := tx.SavePayment(ctx, pay); err != nil {
			return err
		}

		if _, err := ledger.Append(ctx, tx, billing.LedgerEntry{
			SchoolID:    inv.SchoolID,
			Type:        billing.LedgerPayment,
			Period:      billing.PeriodOf(now),
			Debit:       decimal.Zero,
			Credit:      in.Amount,
			ReferenceID: string(pay.ID),
			Memo:        fmt.Sprintf("payment against %s", inv.Number),
			ActorID:     in.ActorID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		recorded = &pay
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("payment recorded",
		"payment", recorded.ID,
		"invoice", recorded.InvoiceID,
		"amount", recorded.Amount,
		"method", recorded.Method,
	)
	return recorded, nil
}

// ClearPayment marks a pending instrument as cleared. No financial effect:
// the payment was applied when recorded.
func (s *Service) ClearPayment(ctx context.Context, id billing.PaymentID, actorID string) (*billing.Payment, error) {
	var cleared *billing.Payment
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		pay, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if pay == nil {
			return billing.ErrPaymentNotFound
		}
		if pay.Status != billing.PaymentPending {
			return fmt.Errorf("%w: payment %s is %s", billing.ErrInvalidTransition, id, pay.Status)
		}
		now := s.Clock()
		pay.Status = billing.PaymentCleared
		pay.ClearedAt = &now
		if err := tx.SavePayment(ctx, *pay); err != nil {
			return err
		}
		cleared = pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

// BouncePayment reverses a pending instrument: the payment flips to
// bounced, its amount is backed out of the invoice, and an offsetting
// ledger debit is appended (the original credit entry stays, immutable).
func (s *Service) BouncePayment(ctx context.Context, id billing.PaymentID, actorID string) (*billing.Payment, error) {
	var bounced *billing.Payment
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		pay, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if pay == nil {
			return billing.ErrPaymentNotFound
		}
		if pay.Status != billing.PaymentPending {
			return fmt.Errorf("%w: payment %s is %s", billing.ErrInvalidTransition, id, pay.Status)
		}

		inv, err := tx.GetInvoice(ctx, pay.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return billing.ErrInvoiceNotFound
		}

		now := s.Clock()
		pay.Status = billing.PaymentBounced
		if err := tx.SavePayment(ctx, *pay); err != nil {
			return err
		}

		inv.PaidAmount = inv.PaidAmount.Sub(pay.Amount)
		inv.RecomputeTotals()
		if inv.Status == billing.InvoicePaid {
			if inv.SentAt != nil {
				inv.Status = billing.InvoiceSent
			} else {
				inv.Status = billing.InvoiceVerified
			}
		}
		inv.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, *inv); err != nil {
			return err
		}

		if _, err := ledger.Append(ctx, tx, billing.LedgerEntry{
			SchoolID:    inv.SchoolID,
			Type:        billing.LedgerAdjustment,
			Period:      billing.PeriodOf(now),
			Debit:       pay.Amount,
			Credit:      decimal.Zero,
			ReferenceID: string(pay.ID),
			Memo:        fmt.Sprintf("payment %s bounced", pay.Reference),
			ActorID:     actorID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		bounced = pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bounced, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel voids an invoice. Disallowed once paid. Prior ledger movements are
// NOT reversed automatically; a zero-amount memo entry records the event
// and any reversal is a manual adjustment.
func (s *Service) Cancel(ctx context.Context, id billing.InvoiceID, actorID, reason string) (*billing.Invoice, error) {
	var cancelled *billing.Invoice
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return billing.ErrInvoiceNotFound
		}
		if inv.Status.Terminal() {
			return &billing.TransitionError{InvoiceID: inv.ID, From: inv.Status, Attempted: "cancel"}
		}

		now := s.Clock()
		inv.Status = billing.InvoiceCancelled
		inv.CancelReason = reason
		inv.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, *inv); err != nil {
			return err
		}

		if _, err := ledger.Append(ctx, tx, billing.LedgerEntry{
			SchoolID:    inv.SchoolID,
			Type:        billing.LedgerAdjustment,
			Period:      inv.Period,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
			ReferenceID: string(inv.ID),
			Memo:        fmt.Sprintf("invoice %s cancelled: %s", inv.Number, reason),
			ActorID:     actorID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		cancelled = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("invoice cancelled", "invoice", cancelled.Number, "reason", reason)
	return cancelled, nil
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

// MarkOverdue relabels every sent or verified invoice past its due date
// with an outstanding balance. A label change only; payments still apply.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := s.Clock()
	candidates, err := s.Store.ListInvoices(ctx, billing.InvoiceFilter{
		Statuses: []billing.InvoiceStatus{billing.InvoiceSent, billing.InvoiceVerified},
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, inv := range candidates {
		if !inv.DueDate.Before(now) || !inv.BalanceDue.IsPositive() {
			continue
		}
		inv := inv
		err := s.Store.WithTx(ctx, func(tx billing.Store) error {
			fresh, err := tx.GetInvoice(ctx, inv.ID)
			if err != nil {
				return err
			}
			if fresh == nil || (fresh.Status != billing.InvoiceSent && fresh.Status != billing.InvoiceVerified) {
				return nil // changed underneath the sweep, skip
			}
			fresh.Status = billing.InvoiceOverdue
			fresh.UpdatedAt = now
			return tx.UpdateInvoice(ctx, *fresh)
		})
		if err != nil {
			slog.Warn("overdue sweep failed for invoice", "invoice", inv.Number, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	inv, err := s.Store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, billing.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	return s.Store.ListInvoices(ctx, f)
}

func (s *Service) Payments(ctx context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	return s.Store.PaymentsByInvoice(ctx, id)
}
