/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  All monetary values cross the wire as decimal strings ("27692"), never
  floats. Clients must not do float math on them either.

VALIDATION:
  Validation is done in handlers and engines, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: The domain model these mirror
*/
package api

import (
	"time"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/invoice"
)

// =============================================================================
// SCHOOLS
// =============================================================================

type SchoolDTO struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	RequiredTrainers int      `json:"required_trainers"`
	BillingContact   string   `json:"billing_contact,omitempty"`
	CurrentTrainers  []string `json:"current_trainers"`
	CreatedAt        string   `json:"created_at,omitempty"`
}

type CreateSchoolRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RequiredTrainers int    `json:"required_trainers"`
	BillingContact   string `json:"billing_contact"`
}

func toSchoolDTO(s billing.School) SchoolDTO {
	trainers := make([]string, len(s.CurrentTrainers))
	for i, t := range s.CurrentTrainers {
		trainers[i] = string(t)
	}
	return SchoolDTO{
		ID:               string(s.ID),
		Name:             s.Name,
		RequiredTrainers: s.RequiredTrainers,
		BillingContact:   s.BillingContact,
		CurrentTrainers:  trainers,
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// POSTINGS
// =============================================================================

type PostingDTO struct {
	ID           string `json:"id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name,omitempty"`
	SchoolID     string `json:"school_id"`
	MonthlyRate  string `json:"monthly_rate"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date,omitempty"`
	Status       string `json:"status"`
	IsActive     bool   `json:"is_active"`
	Remark       string `json:"remark,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type OpenPostingRequest struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	SchoolID     string `json:"school_id"`
	MonthlyRate  string `json:"monthly_rate"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD, defaults to today
	Status       string `json:"status"`     // continue or change_school
	Remark       string `json:"remark"`
	ActorID      string `json:"actor_id"`
}

type ChangePostingStatusRequest struct {
	Status  string `json:"status"`
	ActorID string `json:"actor_id"`
}

func toPostingDTO(p billing.Posting) PostingDTO {
	dto := PostingDTO{
		ID:           string(p.ID),
		EmployeeID:   string(p.EmployeeID),
		EmployeeName: p.EmployeeName,
		SchoolID:     string(p.SchoolID),
		MonthlyRate:  p.MonthlyRate.String(),
		StartDate:    p.StartDate.Format("2006-01-02"),
		Status:       string(p.Status),
		IsActive:     p.IsActive,
		Remark:       p.Remark,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
	if p.EndDate != nil {
		dto.EndDate = p.EndDate.Format("2006-01-02")
	}
	return dto
}

// =============================================================================
// LEAVES & HOLIDAYS
// =============================================================================

type CreateLeaveRequest struct {
	EmployeeID string `json:"employee_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Approved   bool   `json:"approved"`
	Deductible bool   `json:"deductible"`
	Reason     string `json:"reason"`
}

type CreateHolidayRequest struct {
	SchoolID string `json:"school_id"` // empty means global
	Date     string `json:"date"`
	Name     string `json:"name"`
}

type HolidayDTO struct {
	ID       string `json:"id"`
	SchoolID string `json:"school_id,omitempty"`
	Date     string `json:"date"`
	Name     string `json:"name"`
}

// =============================================================================
// INVOICES
// =============================================================================

type LineItemDTO struct {
	PostingID    string `json:"posting_id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	MonthlyRate  string `json:"monthly_rate"`
	WorkingDays  int    `json:"working_days"`
	DeployedDays int    `json:"deployed_days"`
	LeaveDays    int    `json:"leave_days"`
	BillableDays int    `json:"billable_days"`
	Amount       string `json:"amount"`
}

type AdjustmentDTO struct {
	Field    string `json:"field"`
	Original string `json:"original"`
	New      string `json:"new"`
	Reason   string `json:"reason,omitempty"`
	ActorID  string `json:"actor_id"`
	At       string `json:"at"`
}

type VerificationDTO struct {
	Tag     string   `json:"tag"`
	ActorID string   `json:"actor_id"`
	At      string   `json:"at"`
	Changes []string `json:"changes"`
}

type InvoiceDTO struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	SchoolID      string            `json:"school_id"`
	Month         int               `json:"month"`
	Year          int               `json:"year"`
	Status        string            `json:"status"`
	DueDate       string            `json:"due_date"`
	SentAt        string            `json:"sent_at,omitempty"`
	SentBy        string            `json:"sent_by,omitempty"`
	LineItems     []LineItemDTO     `json:"line_items"`
	Subtotal      string            `json:"subtotal"`
	TDSPercent    string            `json:"tds_percent"`
	TDSAmount     string            `json:"tds_amount"`
	GSTPercent    string            `json:"gst_percent"`
	GSTAmount     string            `json:"gst_amount"`
	RoundOff      string            `json:"round_off"`
	GrandTotal    string            `json:"grand_total"`
	PreviousDue   string            `json:"previous_due"`
	TotalPayable  string            `json:"total_payable"`
	PaidAmount    string            `json:"paid_amount"`
	BalanceDue    string            `json:"balance_due"`
	Adjustments   []AdjustmentDTO   `json:"adjustments,omitempty"`
	Verifications []VerificationDTO `json:"verifications,omitempty"`
	CancelReason  string            `json:"cancel_reason,omitempty"`
	CreatedAt     string            `json:"created_at,omitempty"`
}

type GenerateInvoiceRequest struct {
	SchoolID string `json:"school_id"`
	Month    int    `json:"month"`
	Year     int    `json:"year"`
	AsDraft  bool   `json:"as_draft"`
	ActorID  string `json:"actor_id"`
}

type BulkGenerateRequest struct {
	Month   int    `json:"month"`
	Year    int    `json:"year"`
	ActorID string `json:"actor_id"`
}

type BulkSuccessDTO struct {
	SchoolID      string `json:"school_id"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"`
}

type BulkFailureDTO struct {
	SchoolID string `json:"school_id"`
	Reason   string `json:"reason"`
}

type BulkResultDTO struct {
	Successful []BulkSuccessDTO `json:"successful"`
	Failed     []BulkFailureDTO `json:"failed"`
}

type VerifyInvoiceRequest struct {
	ActorID     string         `json:"actor_id"`
	Reason      string         `json:"reason"`
	TDSPercent  *string        `json:"tds_percent,omitempty"`
	GSTPercent  *string        `json:"gst_percent,omitempty"`
	LeaveDays   map[string]int `json:"leave_days,omitempty"` // posting ID -> days
	ConfirmSent bool           `json:"confirm_sent"`
}

type SendInvoiceRequest struct {
	ActorID string `json:"actor_id"`
}

type CancelInvoiceRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:           string(inv.ID),
		Number:       inv.Number,
		SchoolID:     string(inv.SchoolID),
		Month:        int(inv.Period.Month),
		Year:         inv.Period.Year,
		Status:       string(inv.Status),
		DueDate:      inv.DueDate.Format("2006-01-02"),
		SentBy:       inv.SentBy,
		Subtotal:     inv.Subtotal.String(),
		TDSPercent:   inv.TDSPercent.String(),
		TDSAmount:    inv.TDSAmount.String(),
		GSTPercent:   inv.GSTPercent.String(),
		GSTAmount:    inv.GSTAmount.String(),
		RoundOff:     inv.RoundOff.String(),
		GrandTotal:   inv.GrandTotal.String(),
		PreviousDue:  inv.PreviousDue.String(),
		TotalPayable: inv.TotalPayable.String(),
		PaidAmount:   inv.PaidAmount.String(),
		BalanceDue:   inv.BalanceDue.String(),
		CancelReason: inv.CancelReason,
		CreatedAt:    inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.SentAt != nil {
		dto.SentAt = inv.SentAt.Format(time.RFC3339)
	}
	for _, li := range inv.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemDTO{
			PostingID:    string(li.PostingID),
			EmployeeID:   string(li.EmployeeID),
			EmployeeName: li.EmployeeName,
			MonthlyRate:  li.MonthlyRate.String(),
			WorkingDays:  li.WorkingDays,
			DeployedDays: li.DeployedDays,
			LeaveDays:    li.LeaveDays,
			BillableDays: li.BillableDays,
			Amount:       li.Amount.String(),
		})
	}
	for _, a := range inv.Adjustments {
		dto.Adjustments = append(dto.Adjustments, AdjustmentDTO{
			Field:    a.Field,
			Original: a.Original,
			New:      a.New,
			Reason:   a.Reason,
			ActorID:  a.ActorID,
			At:       a.At.Format(time.RFC3339),
		})
	}
	for _, v := range inv.Verifications {
		dto.Verifications = append(dto.Verifications, VerificationDTO{
			Tag:     v.Tag,
			ActorID: v.ActorID,
			At:      v.At.Format(time.RFC3339),
			Changes: v.Changes,
		})
	}
	return dto
}

func toBulkResultDTO(r *invoice.BulkResult) BulkResultDTO {
	dto := BulkResultDTO{
		Successful: []BulkSuccessDTO{},
		Failed:     []BulkFailureDTO{},
	}
	for _, s := range r.Successful {
		dto.Successful = append(dto.Successful, BulkSuccessDTO{
			SchoolID:      string(s.SchoolID),
			InvoiceNumber: s.InvoiceNumber,
			Amount:        s.Amount.String(),
		})
	}
	for _, f := range r.Failed {
		dto.Failed = append(dto.Failed, BulkFailureDTO{
			SchoolID: string(f.SchoolID),
			Reason:   f.Reason,
		})
	}
	return dto
}

// =============================================================================
// PAYMENTS
// =============================================================================

type RecordPaymentRequest struct {
	Amount    string `json:"amount"`
	Method    string `json:"method"` // cash, cheque, transfer, upi
	Reference string `json:"reference"`
	ActorID   string `json:"actor_id"`
}

type PaymentActionRequest struct {
	ActorID string `json:"actor_id"`
}

type PaymentDTO struct {
	ID         string `json:"id"`
	InvoiceID  string `json:"invoice_id"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	Status     string `json:"status"`
	Reference  string `json:"reference,omitempty"`
	RecordedAt string `json:"recorded_at"`
	ClearedAt  string `json:"cleared_at,omitempty"`
}

func toPaymentDTO(p billing.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:         string(p.ID),
		InvoiceID:  string(p.InvoiceID),
		Amount:     p.Amount.String(),
		Method:     string(p.Method),
		Status:     string(p.Status),
		Reference:  p.Reference,
		RecordedAt: p.RecordedAt.Format(time.RFC3339),
	}
	if p.ClearedAt != nil {
		dto.ClearedAt = p.ClearedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerEntryDTO struct {
	Seq         int64  `json:"seq"`
	Type        string `json:"type"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Balance     string `json:"balance"`
	ReferenceID string `json:"reference_id,omitempty"`
	Memo        string `json:"memo,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type LedgerResponse struct {
	SchoolID       string           `json:"school_id"`
	CurrentBalance string           `json:"current_balance"`
	Entries        []LedgerEntryDTO `json:"entries"`
}

type MonthlySummaryDTO struct {
	Month          int    `json:"month"`
	Year           int    `json:"year"`
	OpeningBalance string `json:"opening_balance"`
	TotalInvoiced  string `json:"total_invoiced"`
	TotalPaid      string `json:"total_paid"`
	ClosingBalance string `json:"closing_balance"`
}

func toLedgerEntryDTO(e billing.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		Seq:         e.Seq,
		Type:        string(e.Type),
		Month:       int(e.Period.Month),
		Year:        e.Period.Year,
		Debit:       e.Debit.String(),
		Credit:      e.Credit.String(),
		Balance:     e.Balance.String(),
		ReferenceID: e.ReferenceID,
		Memo:        e.Memo,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
