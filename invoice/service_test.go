package invoice_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/invoice"
	"github.com/stafflink/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	march = billing.Period{Month: time.March, Year: 2025}
	april = billing.Period{Month: time.April, Year: 2025}
)

// newTestService seeds one school with one full-month posting: rate 30000,
// 26 working days, March deployed = 31 days -> line amount 35769.
func newTestService(t *testing.T) (*invoice.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, store.SaveSchool(ctx, billing.School{ID: "school-1", Name: "Lakeside"}))
	require.NoError(t, store.SavePosting(ctx, billing.Posting{
		ID:           "p1",
		EmployeeID:   "emp-1",
		EmployeeName: "Asha",
		SchoolID:     "school-1",
		MonthlyRate:  decimal.NewFromInt(30000),
		StartDate:    time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:       billing.PostingContinue,
		IsActive:     true,
	}))

	svc := invoice.NewService(store, billing.NewCalculator(billing.DefaultCalculatorConfig()))
	svc.Clock = func() time.Time { return time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC) }
	return svc, store
}

func generate(t *testing.T, svc *invoice.Service, p billing.Period) *billing.Invoice {
	t.Helper()
	inv, err := svc.Generate(context.Background(), invoice.GenerateInput{
		SchoolID: "school-1",
		Period:   p,
		ActorID:  "admin",
	})
	require.NoError(t, err)
	return inv
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerate_BuildsInvoiceAndLedgerDebit(t *testing.T) {
	// GIVEN: One billable posting for March
	// WHEN: Generating the March invoice
	// THEN: Totals, numbering, due date, and the ledger debit all line up

	svc, store := newTestService(t)
	ctx := context.Background()

	inv := generate(t, svc, march)

	assert.Equal(t, "INV-202503-0001", inv.Number)
	assert.Equal(t, billing.InvoiceGenerated, inv.Status)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "35769", inv.Subtotal.String())
	assert.Equal(t, "35769", inv.GrandTotal.String())
	assert.Equal(t, "0", inv.PreviousDue.String())
	assert.Equal(t, "35769", inv.TotalPayable.String())
	assert.Equal(t, "35769", inv.BalanceDue.String())
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), inv.DueDate)

	entries, err := store.Entries(ctx, "school-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, billing.LedgerInvoice, entries[0].Type)
	assert.Equal(t, "35769", entries[0].Debit.String())
	assert.Equal(t, "35769", entries[0].Balance.String())
	assert.Equal(t, string(inv.ID), entries[0].ReferenceID)
}

func TestGenerate_Duplicate_Conflict(t *testing.T) {
	svc, _ := newTestService(t)

	first := generate(t, svc, march)

	_, err := svc.Generate(context.Background(), invoice.GenerateInput{
		SchoolID: "school-1", Period: march, ActorID: "admin",
	})
	require.Error(t, err)

	var dup *billing.DuplicateInvoiceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.Existing)
	assert.True(t, billing.IsConflict(err))
}

func TestGenerate_NoBillableEmployees(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSchool(ctx, billing.School{ID: "school-empty", Name: "Empty"}))

	_, err := svc.Generate(ctx, invoice.GenerateInput{
		SchoolID: "school-empty", Period: march, ActorID: "admin",
	})
	assert.ErrorIs(t, err, billing.ErrNoBillableEmployees)

	// Nothing leaked onto the ledger.
	entries, err := store.Entries(ctx, "school-empty", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerate_AsDraft(t *testing.T) {
	svc, _ := newTestService(t)
	inv, err := svc.Generate(context.Background(), invoice.GenerateInput{
		SchoolID: "school-1", Period: march, ActorID: "admin", AsDraft: true,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceDraft, inv.Status)
}

func TestGenerate_UnknownSchool(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Generate(context.Background(), invoice.GenerateInput{
		SchoolID: "school-x", Period: march, ActorID: "admin",
	})
	assert.ErrorIs(t, err, billing.ErrSchoolNotFound)
}

func TestGenerate_AppliesDefaultTaxes(t *testing.T) {
	svc, _ := newTestService(t)
	svc.DefaultTDSPercent = decimal.NewFromInt(10)

	inv := generate(t, svc, march)

	// TDS = 35769 * 10% = 3576.90; grand = round(35769 - 3576.90) = 32192
	assert.Equal(t, "3576.9", inv.TDSAmount.String())
	assert.Equal(t, "32192", inv.GrandTotal.String())
	assert.Equal(t, "-0.1", inv.RoundOff.String())
}

func TestGenerateForPeriod_IsolatesFailures(t *testing.T) {
	// GIVEN: One billable school and one with no postings
	// THEN: The batch reports one success and one failure

	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSchool(ctx, billing.School{ID: "school-empty", Name: "Empty"}))

	result, err := svc.GenerateForPeriod(ctx, march, "scheduler")
	require.NoError(t, err)

	require.Len(t, result.Successful, 1)
	assert.Equal(t, billing.SchoolID("school-1"), result.Successful[0].SchoolID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, billing.SchoolID("school-empty"), result.Failed[0].SchoolID)
}

// =============================================================================
// CARRY-FORWARD
// =============================================================================

func TestCarryForward_UnpaidBalanceChainsIntoNextPeriod(t *testing.T) {
	// GIVEN: March invoice sent, 10000 paid of 35769
	// WHEN: Generating April (30 deployed days -> 34615 new billing)
	// THEN: PreviousDue = 25769; ledger debit is the new amount only

	svc, store := newTestService(t)
	ctx := context.Background()

	marchInv := generate(t, svc, march)
	_, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: marchInv.ID, ActorID: "admin"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, marchInv.ID, "admin")
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: marchInv.ID,
		Amount:    decimal.NewFromInt(10000),
		Method:    billing.PaymentCash,
		ActorID:   "admin",
	})
	require.NoError(t, err)

	aprilInv := generate(t, svc, april)

	assert.Equal(t, "25769", aprilInv.PreviousDue.String())
	assert.Equal(t, "34615", aprilInv.GrandTotal.String())
	assert.Equal(t, "60384", aprilInv.TotalPayable.String())

	// Ledger: march debit 35769, payment credit 10000, april debit 34615.
	entries, err := store.Entries(ctx, "school-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "34615", entries[2].Debit.String())
	assert.Equal(t, "60384", entries[2].Balance.String())
}

func TestCarryForward_UnsettledPreviousInvoice_Ignored(t *testing.T) {
	// A merely generated invoice has not been settled with the school yet,
	// so its balance does not carry forward.

	svc, _ := newTestService(t)

	generate(t, svc, march) // stays in generated status
	aprilInv := generate(t, svc, april)
	assert.Equal(t, "0", aprilInv.PreviousDue.String())
}

// =============================================================================
// VERIFY / RE-VERIFY
// =============================================================================

func TestVerify_MovesToVerifiedWithHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)

	verified, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "auditor"})
	require.NoError(t, err)

	assert.Equal(t, billing.InvoiceVerified, verified.Status)
	require.Len(t, verified.Verifications, 1)
	assert.Equal(t, "verified", verified.Verifications[0].Tag)
	assert.Equal(t, "auditor", verified.Verifications[0].ActorID)
	assert.Empty(t, verified.Verifications[0].Changes)
}

func TestVerify_TaxOverride_RecordedAndRecomputed(t *testing.T) {
	// GIVEN: Generated invoice with 0% TDS
	// WHEN: Verifying with a 10% TDS override
	// THEN: Totals recompute and the adjustment log names the change

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)

	tds := decimal.NewFromInt(10)
	verified, err := svc.Verify(ctx, invoice.VerifyInput{
		InvoiceID:  inv.ID,
		ActorID:    "auditor",
		Reason:     "contract requires TDS",
		TDSPercent: &tds,
	})
	require.NoError(t, err)

	assert.Equal(t, "32192", verified.GrandTotal.String())
	require.Len(t, verified.Adjustments, 1)
	assert.Equal(t, "tds_percent", verified.Adjustments[0].Field)
	assert.Equal(t, "0", verified.Adjustments[0].Original)
	assert.Equal(t, "10", verified.Adjustments[0].New)
	assert.Equal(t, "contract requires TDS", verified.Adjustments[0].Reason)
	require.Len(t, verified.Verifications, 1)
	assert.NotEmpty(t, verified.Verifications[0].Changes)
}

func TestVerify_LeaveDaysOverride_RecomputesLine(t *testing.T) {
	// Line had 0 leave days; override to 2 -> billable 29 -> 33462.

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)

	verified, err := svc.Verify(ctx, invoice.VerifyInput{
		InvoiceID: inv.ID,
		ActorID:   "auditor",
		Reason:    "unreported leave",
		LeaveDays: map[billing.PostingID]int{"p1": 2},
	})
	require.NoError(t, err)

	line := verified.LineByPosting("p1")
	require.NotNil(t, line)
	assert.Equal(t, 2, line.LeaveDays)
	assert.Equal(t, 29, line.BillableDays)
	assert.Equal(t, "33462", line.Amount.String())
	assert.Equal(t, "33462", verified.Subtotal.String())
}

func TestVerify_LeaveDaysOverride_UnknownPosting(t *testing.T) {
	svc, _ := newTestService(t)
	inv := generate(t, svc, march)

	_, err := svc.Verify(context.Background(), invoice.VerifyInput{
		InvoiceID: inv.ID,
		ActorID:   "auditor",
		LeaveDays: map[billing.PostingID]int{"ghost": 1},
	})
	assert.ErrorIs(t, err, billing.ErrPostingNotFound)
}

func TestVerify_SecondPass_TaggedReVerified(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)

	_, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "auditor"})
	require.NoError(t, err)
	again, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "auditor"})
	require.NoError(t, err)

	require.Len(t, again.Verifications, 2)
	assert.Equal(t, "re-verified", again.Verifications[1].Tag)
}

func TestVerify_SentInvoice_RequiresConfirmation(t *testing.T) {
	// GIVEN: Sent invoice
	// WHEN: Re-verifying without the confirmation flag
	// THEN: Rejected; with the flag it succeeds and stays sent

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)
	_, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "admin"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, inv.ID, "admin")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "admin"})
	assert.ErrorIs(t, err, billing.ErrConfirmationRequired)

	again, err := svc.Verify(ctx, invoice.VerifyInput{
		InvoiceID: inv.ID, ActorID: "admin", ConfirmSent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceSent, again.Status)
	assert.Equal(t, "re-verified", again.Verifications[1].Tag)
}

func TestVerify_CancelledInvoice_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)
	_, err := svc.Cancel(ctx, inv.ID, "admin", "wrong school")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "admin"})
	var trans *billing.TransitionError
	require.ErrorAs(t, err, &trans)
	assert.Equal(t, billing.InvoiceCancelled, trans.From)
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_OnlyFromVerified(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)

	_, err := svc.Send(ctx, inv.ID, "admin")
	var trans *billing.TransitionError
	require.ErrorAs(t, err, &trans)

	_, err = svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "admin"})
	require.NoError(t, err)

	sent, err := svc.Send(ctx, inv.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, "admin", sent.SentBy)
}

func TestSendAll_SendsEveryVerifiedInvoice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)
	_, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "admin"})
	require.NoError(t, err)

	result, err := svc.SendAll(ctx, march, "admin")
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	assert.Equal(t, inv.Number, result.Successful[0].InvoiceNumber)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func sentInvoice(t *testing.T, svc *invoice.Service) *billing.Invoice {
	t.Helper()
	ctx := context.Background()
	inv := generate(t, svc, march)
	_, err := svc.Verify(ctx, invoice.VerifyInput{InvoiceID: inv.ID, ActorID: "admin"})
	require.NoError(t, err)
	sent, err := svc.Send(ctx, inv.ID, "admin")
	require.NoError(t, err)
	return sent
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	// GIVEN: Sent invoice for 35769
	// WHEN: Paying 10000 then 25769
	// THEN: Balance steps down and the invoice flips to paid at zero

	svc, store := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	_, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(10000),
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)

	mid, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "25769", mid.BalanceDue.String())
	assert.Equal(t, billing.InvoiceSent, mid.Status)

	_, err = svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(25769),
		Method: billing.PaymentTransfer, Reference: "TXN-9", ActorID: "admin",
	})
	require.NoError(t, err)

	final, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, final.Status)
	assert.Equal(t, "0", final.BalanceDue.String())

	// Ledger has the invoice debit plus two credits; balance back to zero.
	entries, err := store.Entries(ctx, "school-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "0", entries[2].Balance.String())
}

func TestRecordPayment_InstrumentStatus(t *testing.T) {
	// Cash clears immediately; cheque starts pending.

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	cash, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1000),
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentCleared, cash.Status)
	assert.NotNil(t, cash.ClearedAt)

	cheque, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1000),
		Method: billing.PaymentCheque, Reference: "CHQ-1", ActorID: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentPending, cheque.Status)
	assert.Nil(t, cheque.ClearedAt)
}

func TestRecordPayment_Overpayment_Rejected(t *testing.T) {
	// Boundary: exactly the balance is fine, one unit more is not.

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc) // payable 35769

	_, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(35770),
		Method: billing.PaymentCash, ActorID: "admin",
	})
	var exceeds *billing.AmountExceedsDueError
	require.ErrorAs(t, err, &exceeds)
	assert.Equal(t, "35769", exceeds.Due.String())
	assert.True(t, billing.IsValidation(err))

	_, err = svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(35769),
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)
}

func TestRecordPayment_InvalidAmount(t *testing.T) {
	svc, _ := newTestService(t)
	inv := sentInvoice(t, svc)

	_, err := svc.RecordPayment(context.Background(), invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.Zero,
		Method: billing.PaymentCash, ActorID: "admin",
	})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)
}

func TestRecordPayment_OnPaidInvoice_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	_, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: inv.TotalPayable,
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1),
		Method: billing.PaymentCash, ActorID: "admin",
	})
	var trans *billing.TransitionError
	assert.ErrorAs(t, err, &trans)
}

func TestClearPayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	pay, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1000),
		Method: billing.PaymentCheque, Reference: "CHQ-1", ActorID: "admin",
	})
	require.NoError(t, err)

	cleared, err := svc.ClearPayment(ctx, pay.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentCleared, cleared.Status)
	assert.NotNil(t, cleared.ClearedAt)

	// Clearing twice is rejected.
	_, err = svc.ClearPayment(ctx, pay.ID, "admin")
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestBouncePayment_ReversesSettlement(t *testing.T) {
	// GIVEN: Invoice fully paid by cheque (status paid, pending instrument)
	// WHEN: The cheque bounces
	// THEN: Paid amount is backed out, status reverts to sent, and an
	//       offsetting ledger debit restores the balance

	svc, store := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	pay, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: inv.TotalPayable,
		Method: billing.PaymentCheque, Reference: "CHQ-1", ActorID: "admin",
	})
	require.NoError(t, err)

	paid, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePaid, paid.Status)

	bounced, err := svc.BouncePayment(ctx, pay.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentBounced, bounced.Status)

	reverted, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceSent, reverted.Status)
	assert.Equal(t, "0", reverted.PaidAmount.String())
	assert.Equal(t, "35769", reverted.BalanceDue.String())

	entries, err := store.Entries(ctx, "school-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3) // debit, credit, offsetting debit
	assert.Equal(t, billing.LedgerAdjustment, entries[2].Type)
	assert.Equal(t, "35769", entries[2].Balance.String())
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancel_FreesThePeriod(t *testing.T) {
	// A cancelled invoice no longer blocks regeneration for its period.

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := generate(t, svc, march)

	cancelled, err := svc.Cancel(ctx, inv.ID, "admin", "billing error")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceCancelled, cancelled.Status)
	assert.Equal(t, "billing error", cancelled.CancelReason)

	regenerated := generate(t, svc, march)
	assert.Equal(t, "INV-202503-0002", regenerated.Number)
}

func TestCancel_PaidInvoice_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)
	_, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: inv.TotalPayable,
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, inv.ID, "admin", "too late")
	var trans *billing.TransitionError
	require.ErrorAs(t, err, &trans)
	assert.Equal(t, billing.InvoicePaid, trans.From)
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

func TestMarkOverdue(t *testing.T) {
	// GIVEN: Sent invoice due April 15, clock at April 20
	// THEN: The sweep relabels it overdue exactly once

	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	svc.Clock = func() time.Time { return time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC) }

	count, err := svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	overdue, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceOverdue, overdue.Status)

	// Second sweep finds nothing.
	count, err = svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMarkOverdue_SkipsSettledAndFutureInvoices(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)
	_, err := svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: inv.TotalPayable,
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)

	svc.Clock = func() time.Time { return time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC) }
	count, err := svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// PAYMENTS AFTER OVERDUE
// =============================================================================

func TestRecordPayment_OnOverdueInvoice_StillApplies(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv := sentInvoice(t, svc)

	svc.Clock = func() time.Time { return time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC) }
	_, err := svc.MarkOverdue(ctx)
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, invoice.PaymentInput{
		InvoiceID: inv.ID, Amount: inv.TotalPayable,
		Method: billing.PaymentCash, ActorID: "admin",
	})
	require.NoError(t, err)

	paid, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, paid.Status)
}
