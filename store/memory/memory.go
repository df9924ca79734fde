// Package memory provides an in-memory billing.TxStore for tests and dev.
//
// WithTx is simulated with a full snapshot taken before the function runs
// and restored if it fails, giving the same all-or-nothing semantics as the
// SQL store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stafflink/billing-engine/billing"
)

// =============================================================================
// STATE - Unlocked storage core shared by Store and its tx view
// =============================================================================

type summaryKey struct {
	SchoolID billing.SchoolID
	Period   billing.Period
}

type state struct {
	postings  map[billing.PostingID]billing.Posting
	schools   map[billing.SchoolID]billing.School
	leaves    map[billing.LeaveID]billing.Leave
	holidays  map[string]billing.Holiday
	invoices  map[billing.InvoiceID]billing.Invoice
	payments  map[billing.PaymentID]billing.Payment
	entries   map[billing.SchoolID][]billing.LedgerEntry
	summaries map[summaryKey]billing.MonthlySummary
	seqs      map[billing.Period]int64
}

func newState() *state {
	return &state{
		postings:  make(map[billing.PostingID]billing.Posting),
		schools:   make(map[billing.SchoolID]billing.School),
		leaves:    make(map[billing.LeaveID]billing.Leave),
		holidays:  make(map[string]billing.Holiday),
		invoices:  make(map[billing.InvoiceID]billing.Invoice),
		payments:  make(map[billing.PaymentID]billing.Payment),
		entries:   make(map[billing.SchoolID][]billing.LedgerEntry),
		summaries: make(map[summaryKey]billing.MonthlySummary),
		seqs:      make(map[billing.Period]int64),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.postings {
		c.postings[k] = clonePosting(v)
	}
	for k, v := range st.schools {
		c.schools[k] = cloneSchool(v)
	}
	for k, v := range st.leaves {
		c.leaves[k] = v
	}
	for k, v := range st.holidays {
		c.holidays[k] = v
	}
	for k, v := range st.invoices {
		c.invoices[k] = cloneInvoice(v)
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = append([]billing.LedgerEntry(nil), v...)
	}
	for k, v := range st.summaries {
		c.summaries[k] = v
	}
	for k, v := range st.seqs {
		c.seqs[k] = v
	}
	return c
}

func clonePosting(p billing.Posting) billing.Posting {
	if p.EndDate != nil {
		end := *p.EndDate
		p.EndDate = &end
	}
	return p
}

func cloneSchool(s billing.School) billing.School {
	s.CurrentTrainers = append([]billing.EmployeeID(nil), s.CurrentTrainers...)
	return s
}

func cloneInvoice(inv billing.Invoice) billing.Invoice {
	inv.LineItems = append([]billing.LineItem(nil), inv.LineItems...)
	inv.Adjustments = append([]billing.Adjustment(nil), inv.Adjustments...)
	inv.Verifications = append([]billing.VerificationRecord(nil), inv.Verifications...)
	if inv.SentAt != nil {
		at := *inv.SentAt
		inv.SentAt = &at
	}
	return inv
}

// =============================================================================
// POSTING / SCHOOL / LEAVE / HOLIDAY
// =============================================================================

func (st *state) SavePosting(_ context.Context, p billing.Posting) error {
	st.postings[p.ID] = clonePosting(p)
	return nil
}

func (st *state) GetPosting(_ context.Context, id billing.PostingID) (*billing.Posting, error) {
	p, ok := st.postings[id]
	if !ok {
		return nil, nil
	}
	c := clonePosting(p)
	return &c, nil
}

func (st *state) PostingsByEmployee(_ context.Context, id billing.EmployeeID) ([]billing.Posting, error) {
	var out []billing.Posting
	for _, p := range st.postings {
		if p.EmployeeID == id {
			out = append(out, clonePosting(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (st *state) ActivePostingByEmployee(_ context.Context, id billing.EmployeeID) (*billing.Posting, error) {
	for _, p := range st.postings {
		if p.EmployeeID == id && p.IsActive {
			c := clonePosting(p)
			return &c, nil
		}
	}
	return nil, nil
}

func (st *state) PostingsForPeriod(_ context.Context, schoolID billing.SchoolID, period billing.Period) ([]billing.Posting, error) {
	var out []billing.Posting
	for _, p := range st.postings {
		if p.SchoolID != schoolID {
			continue
		}
		if p.StartDate.After(period.End()) {
			continue
		}
		if p.EndDate != nil && p.EndDate.Before(period.Start()) {
			continue
		}
		out = append(out, clonePosting(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) SaveSchool(_ context.Context, s billing.School) error {
	st.schools[s.ID] = cloneSchool(s)
	return nil
}

func (st *state) GetSchool(_ context.Context, id billing.SchoolID) (*billing.School, error) {
	s, ok := st.schools[id]
	if !ok {
		return nil, nil
	}
	c := cloneSchool(s)
	return &c, nil
}

func (st *state) ListSchools(_ context.Context) ([]billing.School, error) {
	out := make([]billing.School, 0, len(st.schools))
	for _, s := range st.schools {
		out = append(out, cloneSchool(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) SaveLeave(_ context.Context, l billing.Leave) error {
	st.leaves[l.ID] = l
	return nil
}

func (st *state) LeavesOverlapping(_ context.Context, id billing.EmployeeID, from, to time.Time) ([]billing.Leave, error) {
	var out []billing.Leave
	for _, l := range st.leaves {
		if l.EmployeeID != id {
			continue
		}
		if billing.DateOnly(l.From).After(billing.DateOnly(to)) ||
			billing.DateOnly(l.To).Before(billing.DateOnly(from)) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From.Before(out[j].From) })
	return out, nil
}

func (st *state) SaveHoliday(_ context.Context, h billing.Holiday) error {
	st.holidays[h.ID] = h
	return nil
}

func (st *state) HolidaysBetween(_ context.Context, schoolID billing.SchoolID, from, to time.Time) ([]billing.Holiday, error) {
	var out []billing.Holiday
	for _, h := range st.holidays {
		if h.SchoolID != "" && h.SchoolID != schoolID {
			continue
		}
		d := billing.DateOnly(h.Date)
		if d.Before(billing.DateOnly(from)) || d.After(billing.DateOnly(to)) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// INVOICE / PAYMENT
// =============================================================================

func (st *state) CreateInvoice(_ context.Context, inv billing.Invoice) error {
	for _, existing := range st.invoices {
		if existing.SchoolID == inv.SchoolID &&
			existing.Period == inv.Period &&
			existing.Status != billing.InvoiceCancelled {
			return &billing.DuplicateInvoiceError{
				SchoolID: inv.SchoolID,
				Period:   inv.Period,
				Existing: existing.ID,
			}
		}
	}
	st.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (st *state) UpdateInvoice(_ context.Context, inv billing.Invoice) error {
	if _, ok := st.invoices[inv.ID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	st.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (st *state) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	inv, ok := st.invoices[id]
	if !ok {
		return nil, nil
	}
	c := cloneInvoice(inv)
	return &c, nil
}

func (st *state) InvoiceForPeriod(_ context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.Invoice, error) {
	for _, inv := range st.invoices {
		if inv.SchoolID == schoolID && inv.Period == p && inv.Status != billing.InvoiceCancelled {
			c := cloneInvoice(inv)
			return &c, nil
		}
	}
	return nil, nil
}

func (st *state) ListInvoices(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range st.invoices {
		if f.SchoolID != nil && inv.SchoolID != *f.SchoolID {
			continue
		}
		if f.Period != nil && inv.Period != *f.Period {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, s := range f.Statuses {
				if inv.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (st *state) NextInvoiceSeq(_ context.Context, p billing.Period) (int64, error) {
	st.seqs[p]++
	return st.seqs[p], nil
}

func (st *state) SavePayment(_ context.Context, pay billing.Payment) error {
	st.payments[pay.ID] = pay
	return nil
}

func (st *state) GetPayment(_ context.Context, id billing.PaymentID) (*billing.Payment, error) {
	pay, ok := st.payments[id]
	if !ok {
		return nil, nil
	}
	return &pay, nil
}

func (st *state) PaymentsByInvoice(_ context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	var out []billing.Payment
	for _, pay := range st.payments {
		if pay.InvoiceID == id {
			out = append(out, pay)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (st *state) AppendEntry(_ context.Context, e billing.LedgerEntry) error {
	st.entries[e.SchoolID] = append(st.entries[e.SchoolID], e)
	return nil
}

func (st *state) LastEntry(_ context.Context, schoolID billing.SchoolID) (*billing.LedgerEntry, error) {
	entries := st.entries[schoolID]
	if len(entries) == 0 {
		return nil, nil
	}
	e := entries[len(entries)-1]
	return &e, nil
}

func (st *state) LastEntryBefore(_ context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.LedgerEntry, error) {
	var found *billing.LedgerEntry
	for _, e := range st.entries[schoolID] {
		if e.Period.Before(p) {
			e := e
			found = &e
		}
	}
	return found, nil
}

func (st *state) Entries(_ context.Context, schoolID billing.SchoolID, from, to *time.Time) ([]billing.LedgerEntry, error) {
	var out []billing.LedgerEntry
	for _, e := range st.entries[schoolID] {
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (st *state) SaveSummary(_ context.Context, s billing.MonthlySummary) error {
	st.summaries[summaryKey{SchoolID: s.SchoolID, Period: s.Period}] = s
	return nil
}

func (st *state) GetSummary(_ context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.MonthlySummary, error) {
	s, ok := st.summaries[summaryKey{SchoolID: schoolID, Period: p}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (st *state) SummariesForYear(_ context.Context, schoolID billing.SchoolID, year int) ([]billing.MonthlySummary, error) {
	var out []billing.MonthlySummary
	for k, s := range st.summaries {
		if k.SchoolID == schoolID && k.Period.Year == year {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Month < out[j].Period.Month })
	return out, nil
}

// =============================================================================
// STORE - Locked wrapper implementing billing.TxStore
// =============================================================================

type Store struct {
	mu sync.RWMutex
	st *state
}

var _ billing.TxStore = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// WithTx locks the store for the duration of fn and restores a snapshot if
// fn fails, so a failed multi-record operation leaves no partial state.
func (m *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *Store) SavePosting(ctx context.Context, p billing.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SavePosting(ctx, p)
}

func (m *Store) GetPosting(ctx context.Context, id billing.PostingID) (*billing.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetPosting(ctx, id)
}

func (m *Store) PostingsByEmployee(ctx context.Context, id billing.EmployeeID) ([]billing.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.PostingsByEmployee(ctx, id)
}

func (m *Store) ActivePostingByEmployee(ctx context.Context, id billing.EmployeeID) (*billing.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ActivePostingByEmployee(ctx, id)
}

func (m *Store) PostingsForPeriod(ctx context.Context, schoolID billing.SchoolID, p billing.Period) ([]billing.Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.PostingsForPeriod(ctx, schoolID, p)
}

func (m *Store) SaveSchool(ctx context.Context, s billing.School) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveSchool(ctx, s)
}

func (m *Store) GetSchool(ctx context.Context, id billing.SchoolID) (*billing.School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetSchool(ctx, id)
}

func (m *Store) ListSchools(ctx context.Context) ([]billing.School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListSchools(ctx)
}

func (m *Store) SaveLeave(ctx context.Context, l billing.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveLeave(ctx, l)
}

func (m *Store) LeavesOverlapping(ctx context.Context, id billing.EmployeeID, from, to time.Time) ([]billing.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LeavesOverlapping(ctx, id, from, to)
}

func (m *Store) SaveHoliday(ctx context.Context, h billing.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveHoliday(ctx, h)
}

func (m *Store) HolidaysBetween(ctx context.Context, schoolID billing.SchoolID, from, to time.Time) ([]billing.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.HolidaysBetween(ctx, schoolID, from, to)
}

func (m *Store) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateInvoice(ctx, inv)
}

func (m *Store) UpdateInvoice(ctx context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateInvoice(ctx, inv)
}

func (m *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetInvoice(ctx, id)
}

func (m *Store) InvoiceForPeriod(ctx context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.InvoiceForPeriod(ctx, schoolID, p)
}

func (m *Store) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListInvoices(ctx, f)
}

func (m *Store) NextInvoiceSeq(ctx context.Context, p billing.Period) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.NextInvoiceSeq(ctx, p)
}

func (m *Store) SavePayment(ctx context.Context, pay billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SavePayment(ctx, pay)
}

func (m *Store) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetPayment(ctx, id)
}

func (m *Store) PaymentsByInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.PaymentsByInvoice(ctx, id)
}

func (m *Store) AppendEntry(ctx context.Context, e billing.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendEntry(ctx, e)
}

func (m *Store) LastEntry(ctx context.Context, schoolID billing.SchoolID) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LastEntry(ctx, schoolID)
}

func (m *Store) LastEntryBefore(ctx context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LastEntryBefore(ctx, schoolID, p)
}

func (m *Store) Entries(ctx context.Context, schoolID billing.SchoolID, from, to *time.Time) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Entries(ctx, schoolID, from, to)
}

func (m *Store) SaveSummary(ctx context.Context, s billing.MonthlySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveSummary(ctx, s)
}

func (m *Store) GetSummary(ctx context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.MonthlySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetSummary(ctx, schoolID, p)
}

func (m *Store) SummariesForYear(ctx context.Context, schoolID billing.SchoolID, year int) ([]billing.MonthlySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.SummariesForYear(ctx, schoolID, year)
}
