/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the posting, invoice, and ledger engines via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Schools:
    GET    /api/schools                  List schools
    POST   /api/schools                  Register school
    GET    /api/schools/{id}             Get school with roster
    GET    /api/schools/{id}/ledger      Ledger entries + current balance
    GET    /api/schools/{id}/summaries   Monthly rollups for a year

  Postings:
    POST   /api/postings                 Open posting (continue/change_school)
    GET    /api/postings/{id}            Get posting
    POST   /api/postings/{id}/close      Close posting (resign/terminate)
    POST   /api/postings/{id}/status     Change status
    GET    /api/employees/{id}/postings  Posting history

  Invoices:
    POST   /api/invoices                 Generate for one school
    POST   /api/invoices/bulk            Generate for every school
    GET    /api/invoices                 List with filters
    GET    /api/invoices/{id}            Get invoice
    POST   /api/invoices/{id}/verify     Verify / re-verify with overrides
    POST   /api/invoices/{id}/send       Send (locks the document)
    POST   /api/invoices/send-all        Send every verified invoice
    POST   /api/invoices/{id}/cancel     Cancel with reason
    POST   /api/invoices/{id}/payments   Record payment
    GET    /api/invoices/{id}/payments   Payment history

  Payments:
    POST   /api/payments/{id}/clear      Mark pending instrument cleared
    POST   /api/payments/{id}/bounce     Reverse a bounced instrument

  Admin:
    POST   /api/admin/overdue-sweep      Relabel past-due invoices

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate invoice, illegal transition)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. Actor IDs are taken from
  request bodies on trust.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/invoice"
	"github.com/stafflink/billing-engine/ledger"
	"github.com/stafflink/billing-engine/posting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    billing.TxStore
	Postings *posting.Service
	Invoices *invoice.Service
	Ledger   *ledger.Book
}

// NewHandler creates a handler wired to the given store and engines.
func NewHandler(store billing.TxStore, postings *posting.Service, invoices *invoice.Service) *Handler {
	return &Handler{
		Store:    store,
		Postings: postings,
		Invoices: invoices,
		Ledger:   ledger.NewBook(store),
	}
}

// =============================================================================
// SCHOOL HANDLERS
// =============================================================================

func (h *Handler) ListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.Store.ListSchools(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schools", err)
		return
	}
	dtos := make([]SchoolDTO, len(schools))
	for i, s := range schools {
		dtos[i] = toSchoolDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSchool(w http.ResponseWriter, r *http.Request) {
	var req CreateSchoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	school := billing.School{
		ID:               billing.SchoolID(req.ID),
		Name:             req.Name,
		RequiredTrainers: req.RequiredTrainers,
		BillingContact:   req.BillingContact,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.Store.SaveSchool(r.Context(), school); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save school", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSchoolDTO(school))
}

func (h *Handler) GetSchool(w http.ResponseWriter, r *http.Request) {
	id := billing.SchoolID(chi.URLParam(r, "id"))
	school, err := h.Store.GetSchool(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get school", err)
		return
	}
	if school == nil {
		writeError(w, http.StatusNotFound, "School not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSchoolDTO(*school))
}

// GetLedger returns the school's ledger entries plus the current balance.
// Optional from/to query parameters (YYYY-MM-DD) bound by creation time.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := billing.SchoolID(chi.URLParam(r, "id"))

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		// Inclusive end of day.
		t = t.Add(24*time.Hour - time.Nanosecond)
		to = &t
	}

	entries, balance, err := h.Ledger.Ledger(r.Context(), id, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read ledger", err)
		return
	}

	resp := LedgerResponse{
		SchoolID:       string(id),
		CurrentBalance: balance.String(),
		Entries:        []LedgerEntryDTO{},
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toLedgerEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSummaries returns the school's monthly rollups for ?year= (default:
// current year).
func (h *Handler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	id := billing.SchoolID(chi.URLParam(r, "id"))
	year := time.Now().UTC().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	summaries, err := h.Ledger.MonthlySummaries(r.Context(), id, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read summaries", err)
		return
	}

	dtos := []MonthlySummaryDTO{}
	for _, s := range summaries {
		dtos = append(dtos, MonthlySummaryDTO{
			Month:          int(s.Period.Month),
			Year:           s.Period.Year,
			OpeningBalance: s.OpeningBalance.String(),
			TotalInvoiced:  s.TotalInvoiced.String(),
			TotalPaid:      s.TotalPaid.String(),
			ClosingBalance: s.ClosingBalance.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// POSTING HANDLERS
// =============================================================================

func (h *Handler) OpenPosting(w http.ResponseWriter, r *http.Request) {
	var req OpenPostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.MonthlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid monthly_rate", err)
		return
	}
	var startDate time.Time
	if req.StartDate != "" {
		startDate, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date", err)
			return
		}
	}

	p, err := h.Postings.Open(r.Context(), posting.OpenInput{
		EmployeeID:   billing.EmployeeID(req.EmployeeID),
		EmployeeName: req.EmployeeName,
		SchoolID:     billing.SchoolID(req.SchoolID),
		MonthlyRate:  rate,
		StartDate:    startDate,
		Status:       billing.PostingStatus(req.Status),
		Remark:       req.Remark,
		ActorID:      req.ActorID,
	})
	if err != nil {
		writeDomainError(w, err, "Failed to open posting")
		return
	}
	writeJSON(w, http.StatusCreated, toPostingDTO(*p))
}

func (h *Handler) GetPosting(w http.ResponseWriter, r *http.Request) {
	id := billing.PostingID(chi.URLParam(r, "id"))
	p, err := h.Postings.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to get posting")
		return
	}
	writeJSON(w, http.StatusOK, toPostingDTO(*p))
}

func (h *Handler) ClosePosting(w http.ResponseWriter, r *http.Request) {
	id := billing.PostingID(chi.URLParam(r, "id"))
	var req ChangePostingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Postings.Close(r.Context(), id, billing.PostingStatus(req.Status), req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to close posting")
		return
	}
	writeJSON(w, http.StatusOK, toPostingDTO(*p))
}

func (h *Handler) ChangePostingStatus(w http.ResponseWriter, r *http.Request) {
	id := billing.PostingID(chi.URLParam(r, "id"))
	var req ChangePostingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Postings.ChangeStatus(r.Context(), id, billing.PostingStatus(req.Status), req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to change posting status")
		return
	}
	writeJSON(w, http.StatusOK, toPostingDTO(*p))
}

func (h *Handler) EmployeePostings(w http.ResponseWriter, r *http.Request) {
	id := billing.EmployeeID(chi.URLParam(r, "id"))
	postings, err := h.Postings.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list postings", err)
		return
	}
	dtos := make([]PostingDTO, len(postings))
	for i, p := range postings {
		dtos[i] = toPostingDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE & HOLIDAY HANDLERS
// =============================================================================

func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to date precedes from date", nil)
		return
	}

	l := billing.Leave{
		ID:         billing.LeaveID(uuid.NewString()),
		EmployeeID: billing.EmployeeID(req.EmployeeID),
		From:       from,
		To:         to,
		Approved:   req.Approved,
		Deductible: req.Deductible,
		Reason:     req.Reason,
	}
	if err := h.Store.SaveLeave(r.Context(), l); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(l.ID)})
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	hol := billing.Holiday{
		ID:       uuid.NewString(),
		SchoolID: billing.SchoolID(req.SchoolID),
		Date:     date,
		Name:     req.Name,
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID:       hol.ID,
		SchoolID: req.SchoolID,
		Date:     req.Date,
		Name:     req.Name,
	})
}

// ListHolidays returns holidays visible to ?school_id= within [from, to]
// (default: the current calendar year).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	schoolID := billing.SchoolID(r.URL.Query().Get("school_id"))
	now := time.Now().UTC()
	from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), 12, 31, 0, 0, 0, 0, time.UTC)

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
	}

	holidays, err := h.Store.HolidaysBetween(r.Context(), schoolID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := []HolidayDTO{}
	for _, hol := range holidays {
		dtos = append(dtos, HolidayDTO{
			ID:       hol.ID,
			SchoolID: string(hol.SchoolID),
			Date:     hol.Date.Format("2006-01-02"),
			Name:     hol.Name,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, err := h.Invoices.Generate(r.Context(), invoice.GenerateInput{
		SchoolID: billing.SchoolID(req.SchoolID),
		Period:   billing.Period{Month: time.Month(req.Month), Year: req.Year},
		ActorID:  req.ActorID,
		AsDraft:  req.AsDraft,
	})
	if err != nil {
		writeDomainError(w, err, "Failed to generate invoice")
		return
	}
	invoicesGenerated.Inc()
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

func (h *Handler) BulkGenerate(w http.ResponseWriter, r *http.Request) {
	var req BulkGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Invoices.GenerateForPeriod(r.Context(),
		billing.Period{Month: time.Month(req.Month), Year: req.Year}, req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to generate invoices")
		return
	}
	invoicesGenerated.Add(float64(len(result.Successful)))
	writeJSON(w, http.StatusOK, toBulkResultDTO(result))
}

// ListInvoices supports ?school_id=, ?month=&year=, and ?status= filters.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	var f billing.InvoiceFilter
	if v := r.URL.Query().Get("school_id"); v != "" {
		id := billing.SchoolID(v)
		f.SchoolID = &id
	}
	month := r.URL.Query().Get("month")
	year := r.URL.Query().Get("year")
	if month != "" && year != "" {
		m, err1 := strconv.Atoi(month)
		y, err2 := strconv.Atoi(year)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "Invalid month/year", nil)
			return
		}
		p := billing.Period{Month: time.Month(m), Year: y}
		f.Period = &p
	}
	if v := r.URL.Query().Get("status"); v != "" {
		f.Statuses = []billing.InvoiceStatus{billing.InvoiceStatus(v)}
	}

	invoices, err := h.Invoices.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	dtos := []InvoiceDTO{}
	for _, inv := range invoices {
		dtos = append(dtos, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Invoices.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to get invoice")
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

func (h *Handler) VerifyInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req VerifyInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := invoice.VerifyInput{
		InvoiceID:   id,
		ActorID:     req.ActorID,
		Reason:      req.Reason,
		ConfirmSent: req.ConfirmSent,
	}
	if req.TDSPercent != nil {
		d, err := decimal.NewFromString(*req.TDSPercent)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tds_percent", err)
			return
		}
		in.TDSPercent = &d
	}
	if req.GSTPercent != nil {
		d, err := decimal.NewFromString(*req.GSTPercent)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid gst_percent", err)
			return
		}
		in.GSTPercent = &d
	}
	if len(req.LeaveDays) > 0 {
		in.LeaveDays = make(map[billing.PostingID]int, len(req.LeaveDays))
		for postingID, days := range req.LeaveDays {
			in.LeaveDays[billing.PostingID(postingID)] = days
		}
	}

	inv, err := h.Invoices.Verify(r.Context(), in)
	if err != nil {
		writeDomainError(w, err, "Failed to verify invoice")
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req SendInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, err := h.Invoices.Send(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to send invoice")
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

func (h *Handler) SendAllInvoices(w http.ResponseWriter, r *http.Request) {
	var req BulkGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Invoices.SendAll(r.Context(),
		billing.Period{Month: time.Month(req.Month), Year: req.Year}, req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to send invoices")
		return
	}
	writeJSON(w, http.StatusOK, toBulkResultDTO(result))
}

func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req CancelInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	inv, err := h.Invoices.Cancel(r.Context(), id, req.ActorID, req.Reason)
	if err != nil {
		writeDomainError(w, err, "Failed to cancel invoice")
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	pay, err := h.Invoices.RecordPayment(r.Context(), invoice.PaymentInput{
		InvoiceID: id,
		Amount:    amount,
		Method:    billing.PaymentMethod(req.Method),
		Reference: req.Reference,
		ActorID:   req.ActorID,
	})
	if err != nil {
		writeDomainError(w, err, "Failed to record payment")
		return
	}
	paymentsRecorded.Inc()
	writeJSON(w, http.StatusCreated, toPaymentDTO(*pay))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	payments, err := h.Invoices.Payments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	dtos := []PaymentDTO{}
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ClearPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.PaymentID(chi.URLParam(r, "id"))
	var req PaymentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pay, err := h.Invoices.ClearPayment(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to clear payment")
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*pay))
}

func (h *Handler) BouncePayment(w http.ResponseWriter, r *http.Request) {
	id := billing.PaymentID(chi.URLParam(r, "id"))
	var req PaymentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pay, err := h.Invoices.BouncePayment(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, err, "Failed to bounce payment")
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*pay))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// OverdueSweep relabels every sent or verified invoice past its due date.
func (h *Handler) OverdueSweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.Invoices.MarkOverdue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Overdue sweep failed", err)
		return
	}
	overdueMarked.Add(float64(count))
	writeJSON(w, http.StatusOK, map[string]int{"marked_overdue": count})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses via the billing
// error predicates.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
