/*
Package sqlite provides the SQLite-backed implementation of billing.TxStore.

PURPOSE:
  Implements every persistence interface in billing/store.go using SQLite.
  The same patterns apply to PostgreSQL - only minor dialect differences.

KEY TABLES:
  schools            client sites with roster stored as JSON
  postings           assignment records (never deleted, closed in place)
  leaves, holidays   billing calculator inputs
  invoices           billing documents; line items and audit history as JSON
  invoice_sequences  per-(month, year) monotonic invoice numbering
  payments           recorded settlements
  ledger_entries     append-only per-school movements
  monthly_summaries  derived (school, month, year) rollups

COMMIT-TIME UNIQUENESS:
  A partial unique index on invoices(school_id, year, month) WHERE status
  is not 'cancelled' enforces one live invoice per period. Concurrent
  generation loses the race at commit, not at the pre-check.

NOTE ON POSTINGS:
  The single-active-posting invariant is deliberately NOT a unique index:
  the posting cascade activates the new posting before closing its
  siblings inside one transaction, and SQLite checks unique constraints
  per statement. The posting engine owns that invariant.

WAL MODE:
  Opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: interface definitions
  - store/memory/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/stafflink/billing-engine/billing"
)

// Store implements billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	session
}

var _ billing.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, session: session{q: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		required_trainers INTEGER NOT NULL DEFAULT 0,
		billing_contact TEXT,
		roster_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS postings (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		employee_name TEXT,
		school_id TEXT NOT NULL,
		monthly_rate TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		status TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		remark TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_postings_employee
		ON postings(employee_id);
	CREATE INDEX IF NOT EXISTS idx_postings_school_dates
		ON postings(school_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_postings_active
		ON postings(employee_id, is_active) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0,
		deductible INTEGER NOT NULL DEFAULT 0,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_employee_dates
		ON leaves(employee_id, from_date, to_date);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		school_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		school_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL,
		due_date TEXT NOT NULL,
		sent_at TEXT,
		sent_by TEXT,
		subtotal TEXT NOT NULL,
		tds_percent TEXT NOT NULL,
		tds_amount TEXT NOT NULL,
		gst_percent TEXT NOT NULL,
		gst_amount TEXT NOT NULL,
		round_off TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		previous_due TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		balance_due TEXT NOT NULL,
		line_items_json TEXT NOT NULL,
		adjustments_json TEXT NOT NULL DEFAULT '[]',
		verifications_json TEXT NOT NULL DEFAULT '[]',
		cancel_reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_period
		ON invoices(school_id, year, month) WHERE status != 'cancelled';
	CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);

	CREATE TABLE IF NOT EXISTS invoice_sequences (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		next_seq INTEGER NOT NULL,
		PRIMARY KEY (year, month)
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT,
		recorded_by TEXT,
		recorded_at TEXT NOT NULL,
		cleared_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		school_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		balance TEXT NOT NULL,
		reference_id TEXT,
		memo TEXT,
		actor_id TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (school_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_school_seq
		ON ledger_entries(school_id, seq);

	CREATE TABLE IF NOT EXISTS monthly_summaries (
		school_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		opening_balance TEXT NOT NULL,
		total_invoiced TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		closing_balance TEXT NOT NULL,
		PRIMARY KEY (school_id, year, month)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (billing.TxStore)
// =============================================================================

// WithTx executes fn within one database transaction. SQLite allows a
// single writer, so the store also serializes transactions process-side.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&session{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session carries every data-access method; it runs against the database
// directly or against an open transaction.
type session struct {
	q querier
}

var _ billing.Store = (*session)(nil)

// =============================================================================
// POSTINGS
// =============================================================================

func (s *session) SavePosting(ctx context.Context, p billing.Posting) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO postings
		(id, employee_id, employee_name, school_id, monthly_rate, start_date,
		 end_date, status, is_active, remark, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_name = excluded.employee_name,
			school_id     = excluded.school_id,
			monthly_rate  = excluded.monthly_rate,
			start_date    = excluded.start_date,
			end_date      = excluded.end_date,
			status        = excluded.status,
			is_active     = excluded.is_active,
			remark        = excluded.remark,
			updated_at    = excluded.updated_at`,
		p.ID, p.EmployeeID, p.EmployeeName, p.SchoolID, p.MonthlyRate.String(),
		formatDate(p.StartDate), nullDate(p.EndDate), p.Status, boolInt(p.IsActive),
		p.Remark, p.CreatedBy, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save posting: %w", err)
	}
	return nil
}

const postingColumns = `id, employee_id, employee_name, school_id, monthly_rate,
	start_date, end_date, status, is_active, remark, created_by, created_at, updated_at`

func (s *session) GetPosting(ctx context.Context, id billing.PostingID) (*billing.Posting, error) {
	postings, err := s.queryPostings(ctx,
		`SELECT `+postingColumns+` FROM postings WHERE id = ?`, id)
	if err != nil || len(postings) == 0 {
		return nil, err
	}
	return &postings[0], nil
}

func (s *session) PostingsByEmployee(ctx context.Context, id billing.EmployeeID) ([]billing.Posting, error) {
	return s.queryPostings(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE employee_id = ? ORDER BY created_at DESC`, id)
}

func (s *session) ActivePostingByEmployee(ctx context.Context, id billing.EmployeeID) (*billing.Posting, error) {
	postings, err := s.queryPostings(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE employee_id = ? AND is_active = 1 LIMIT 1`, id)
	if err != nil || len(postings) == 0 {
		return nil, err
	}
	return &postings[0], nil
}

func (s *session) PostingsForPeriod(ctx context.Context, schoolID billing.SchoolID, p billing.Period) ([]billing.Posting, error) {
	return s.queryPostings(ctx,
		`SELECT `+postingColumns+` FROM postings
		 WHERE school_id = ?
		   AND start_date <= ?
		   AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY id`,
		schoolID, formatDate(p.End()), formatDate(p.Start()))
}

func (s *session) queryPostings(ctx context.Context, query string, args ...any) ([]billing.Posting, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	var out []billing.Posting
	for rows.Next() {
		var (
			p                  billing.Posting
			rate               string
			startDate          string
			endDate            sql.NullString
			active             int
			employeeName       sql.NullString
			remark, createdBy  sql.NullString
			createdAt, updated string
		)
		if err := rows.Scan(&p.ID, &p.EmployeeID, &employeeName, &p.SchoolID, &rate,
			&startDate, &endDate, &p.Status, &active, &remark, &createdBy,
			&createdAt, &updated); err != nil {
			return nil, err
		}
		p.EmployeeName = employeeName.String
		p.MonthlyRate = parseDecimal(rate)
		p.StartDate = parseDate(startDate)
		if endDate.Valid {
			d := parseDate(endDate.String)
			p.EndDate = &d
		}
		p.IsActive = active == 1
		p.Remark = remark.String
		p.CreatedBy = createdBy.String
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// SCHOOLS
// =============================================================================

func (s *session) SaveSchool(ctx context.Context, school billing.School) error {
	roster, err := json.Marshal(school.CurrentTrainers)
	if err != nil {
		return err
	}
	createdAt := school.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO schools (id, name, required_trainers, billing_contact, roster_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name              = excluded.name,
			required_trainers = excluded.required_trainers,
			billing_contact   = excluded.billing_contact,
			roster_json       = excluded.roster_json`,
		school.ID, school.Name, school.RequiredTrainers, school.BillingContact,
		string(roster), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save school: %w", err)
	}
	return nil
}

func (s *session) GetSchool(ctx context.Context, id billing.SchoolID) (*billing.School, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, required_trainers, billing_contact, roster_json, created_at
		FROM schools WHERE id = ?`, id)
	school, err := scanSchool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return school, nil
}

func (s *session) ListSchools(ctx context.Context) ([]billing.School, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, required_trainers, billing_contact, roster_json, created_at
		FROM schools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.School
	for rows.Next() {
		school, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *school)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchool(r rowScanner) (*billing.School, error) {
	var (
		school    billing.School
		contact   sql.NullString
		roster    string
		createdAt string
	)
	if err := r.Scan(&school.ID, &school.Name, &school.RequiredTrainers,
		&contact, &roster, &createdAt); err != nil {
		return nil, err
	}
	school.BillingContact = contact.String
	school.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(roster), &school.CurrentTrainers); err != nil {
		return nil, fmt.Errorf("corrupt roster for school %s: %w", school.ID, err)
	}
	return &school, nil
}

// =============================================================================
// LEAVES & HOLIDAYS
// =============================================================================

func (s *session) SaveLeave(ctx context.Context, l billing.Leave) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leaves (id, employee_id, from_date, to_date, approved, deductible, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_date  = excluded.from_date,
			to_date    = excluded.to_date,
			approved   = excluded.approved,
			deductible = excluded.deductible,
			reason     = excluded.reason`,
		l.ID, l.EmployeeID, formatDate(l.From), formatDate(l.To),
		boolInt(l.Approved), boolInt(l.Deductible), l.Reason,
	)
	return err
}

func (s *session) LeavesOverlapping(ctx context.Context, id billing.EmployeeID, from, to time.Time) ([]billing.Leave, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, employee_id, from_date, to_date, approved, deductible, reason
		FROM leaves
		WHERE employee_id = ? AND from_date <= ? AND to_date >= ?
		ORDER BY from_date`,
		id, formatDate(to), formatDate(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Leave
	for rows.Next() {
		var (
			l          billing.Leave
			fromS, toS string
			appr, ded  int
			reason     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.EmployeeID, &fromS, &toS, &appr, &ded, &reason); err != nil {
			return nil, err
		}
		l.From = parseDate(fromS)
		l.To = parseDate(toS)
		l.Approved = appr == 1
		l.Deductible = ded == 1
		l.Reason = reason.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *session) SaveHoliday(ctx context.Context, h billing.Holiday) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO holidays (id, school_id, date, name) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			school_id = excluded.school_id,
			date      = excluded.date,
			name      = excluded.name`,
		h.ID, h.SchoolID, formatDate(h.Date), h.Name,
	)
	return err
}

func (s *session) HolidaysBetween(ctx context.Context, schoolID billing.SchoolID, from, to time.Time) ([]billing.Holiday, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, school_id, date, name FROM holidays
		WHERE (school_id = '' OR school_id = ?) AND date >= ? AND date <= ?
		ORDER BY date`,
		schoolID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Holiday
	for rows.Next() {
		var (
			h    billing.Holiday
			date string
			name sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.SchoolID, &date, &name); err != nil {
			return nil, err
		}
		h.Date = parseDate(date)
		h.Name = name.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *session) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	lineItems, adjustments, verifications, err := marshalInvoiceJSON(inv)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO invoices
		(id, number, school_id, month, year, status, due_date, sent_at, sent_by,
		 subtotal, tds_percent, tds_amount, gst_percent, gst_amount, round_off,
		 grand_total, previous_due, total_payable, paid_amount, balance_due,
		 line_items_json, adjustments_json, verifications_json, cancel_reason,
		 created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Number, inv.SchoolID, int(inv.Period.Month), inv.Period.Year,
		inv.Status, formatDate(inv.DueDate), nullTime(inv.SentAt), inv.SentBy,
		inv.Subtotal.String(), inv.TDSPercent.String(), inv.TDSAmount.String(),
		inv.GSTPercent.String(), inv.GSTAmount.String(), inv.RoundOff.String(),
		inv.GrandTotal.String(), inv.PreviousDue.String(), inv.TotalPayable.String(),
		inv.PaidAmount.String(), inv.BalanceDue.String(),
		lineItems, adjustments, verifications, inv.CancelReason,
		inv.CreatedBy, formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			dup := &billing.DuplicateInvoiceError{SchoolID: inv.SchoolID, Period: inv.Period}
			if existing, lookupErr := s.InvoiceForPeriod(ctx, inv.SchoolID, inv.Period); lookupErr == nil && existing != nil {
				dup.Existing = existing.ID
			}
			return dup
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (s *session) UpdateInvoice(ctx context.Context, inv billing.Invoice) error {
	lineItems, adjustments, verifications, err := marshalInvoiceJSON(inv)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE invoices SET
			status = ?, due_date = ?, sent_at = ?, sent_by = ?,
			subtotal = ?, tds_percent = ?, tds_amount = ?, gst_percent = ?,
			gst_amount = ?, round_off = ?, grand_total = ?, previous_due = ?,
			total_payable = ?, paid_amount = ?, balance_due = ?,
			line_items_json = ?, adjustments_json = ?, verifications_json = ?,
			cancel_reason = ?, updated_at = ?
		WHERE id = ?`,
		inv.Status, formatDate(inv.DueDate), nullTime(inv.SentAt), inv.SentBy,
		inv.Subtotal.String(), inv.TDSPercent.String(), inv.TDSAmount.String(),
		inv.GSTPercent.String(), inv.GSTAmount.String(), inv.RoundOff.String(),
		inv.GrandTotal.String(), inv.PreviousDue.String(), inv.TotalPayable.String(),
		inv.PaidAmount.String(), inv.BalanceDue.String(),
		lineItems, adjustments, verifications, inv.CancelReason,
		formatTime(inv.UpdatedAt), inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

func marshalInvoiceJSON(inv billing.Invoice) (lineItems, adjustments, verifications string, err error) {
	li, err := json.Marshal(inv.LineItems)
	if err != nil {
		return "", "", "", err
	}
	adj, err := json.Marshal(inv.Adjustments)
	if err != nil {
		return "", "", "", err
	}
	ver, err := json.Marshal(inv.Verifications)
	if err != nil {
		return "", "", "", err
	}
	return string(li), string(adj), string(ver), nil
}

const invoiceColumns = `id, number, school_id, month, year, status, due_date,
	sent_at, sent_by, subtotal, tds_percent, tds_amount, gst_percent, gst_amount,
	round_off, grand_total, previous_due, total_payable, paid_amount, balance_due,
	line_items_json, adjustments_json, verifications_json, cancel_reason,
	created_by, created_at, updated_at`

func (s *session) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	invoices, err := s.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	if err != nil || len(invoices) == 0 {
		return nil, err
	}
	return &invoices[0], nil
}

func (s *session) InvoiceForPeriod(ctx context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.Invoice, error) {
	invoices, err := s.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE school_id = ? AND year = ? AND month = ? AND status != 'cancelled'
		 LIMIT 1`,
		schoolID, p.Year, int(p.Month))
	if err != nil || len(invoices) == 0 {
		return nil, err
	}
	return &invoices[0], nil
}

func (s *session) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	var args []any
	if f.SchoolID != nil {
		query += ` AND school_id = ?`
		args = append(args, *f.SchoolID)
	}
	if f.Period != nil {
		query += ` AND year = ? AND month = ?`
		args = append(args, f.Period.Year, int(f.Period.Month))
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(",?", len(f.Statuses)-1) + `)`
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY number`
	return s.queryInvoices(ctx, query, args...)
}

func (s *session) queryInvoices(ctx context.Context, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var out []billing.Invoice
	for rows.Next() {
		var (
			inv                                      billing.Invoice
			month, year                              int
			dueDate, createdAt, updatedAt            string
			sentAt                                   sql.NullString
			sentBy, cancelReason, createdBy          sql.NullString
			subtotal, tdsPct, tdsAmt, gstPct, gstAmt string
			roundOff, grand, prevDue, payable        string
			paid, balance                            string
			lineItems, adjustments, verifications    string
		)
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.SchoolID, &month, &year,
			&inv.Status, &dueDate, &sentAt, &sentBy, &subtotal, &tdsPct, &tdsAmt,
			&gstPct, &gstAmt, &roundOff, &grand, &prevDue, &payable, &paid,
			&balance, &lineItems, &adjustments, &verifications, &cancelReason,
			&createdBy, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		inv.Period = billing.Period{Month: time.Month(month), Year: year}
		inv.DueDate = parseDate(dueDate)
		if sentAt.Valid {
			t := parseTime(sentAt.String)
			inv.SentAt = &t
		}
		inv.SentBy = sentBy.String
		inv.Subtotal = parseDecimal(subtotal)
		inv.TDSPercent = parseDecimal(tdsPct)
		inv.TDSAmount = parseDecimal(tdsAmt)
		inv.GSTPercent = parseDecimal(gstPct)
		inv.GSTAmount = parseDecimal(gstAmt)
		inv.RoundOff = parseDecimal(roundOff)
		inv.GrandTotal = parseDecimal(grand)
		inv.PreviousDue = parseDecimal(prevDue)
		inv.TotalPayable = parseDecimal(payable)
		inv.PaidAmount = parseDecimal(paid)
		inv.BalanceDue = parseDecimal(balance)
		inv.CancelReason = cancelReason.String
		inv.CreatedBy = createdBy.String
		inv.CreatedAt = parseTime(createdAt)
		inv.UpdatedAt = parseTime(updatedAt)
		if err := json.Unmarshal([]byte(lineItems), &inv.LineItems); err != nil {
			return nil, fmt.Errorf("corrupt line items on invoice %s: %w", inv.ID, err)
		}
		if err := json.Unmarshal([]byte(adjustments), &inv.Adjustments); err != nil {
			return nil, fmt.Errorf("corrupt adjustments on invoice %s: %w", inv.ID, err)
		}
		if err := json.Unmarshal([]byte(verifications), &inv.Verifications); err != nil {
			return nil, fmt.Errorf("corrupt verifications on invoice %s: %w", inv.ID, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *session) NextInvoiceSeq(ctx context.Context, p billing.Period) (int64, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoice_sequences (year, month, next_seq) VALUES (?, ?, 1)
		ON CONFLICT(year, month) DO UPDATE SET next_seq = next_seq + 1`,
		p.Year, int(p.Month))
	if err != nil {
		return 0, fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	var seq int64
	err = s.q.QueryRowContext(ctx,
		`SELECT next_seq FROM invoice_sequences WHERE year = ? AND month = ?`,
		p.Year, int(p.Month)).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *session) SavePayment(ctx context.Context, pay billing.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments
		(id, invoice_id, amount, method, status, reference, recorded_by, recorded_at, cleared_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			cleared_at = excluded.cleared_at`,
		pay.ID, pay.InvoiceID, pay.Amount.String(), pay.Method, pay.Status,
		pay.Reference, pay.RecordedBy, formatTime(pay.RecordedAt), nullTime(pay.ClearedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *session) GetPayment(ctx context.Context, id billing.PaymentID) (*billing.Payment, error) {
	payments, err := s.queryPayments(ctx, `
		SELECT id, invoice_id, amount, method, status, reference, recorded_by, recorded_at, cleared_at
		FROM payments WHERE id = ?`, id)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

func (s *session) PaymentsByInvoice(ctx context.Context, id billing.InvoiceID) ([]billing.Payment, error) {
	return s.queryPayments(ctx, `
		SELECT id, invoice_id, amount, method, status, reference, recorded_by, recorded_at, cleared_at
		FROM payments WHERE invoice_id = ? ORDER BY recorded_at`, id)
}

func (s *session) queryPayments(ctx context.Context, query string, args ...any) ([]billing.Payment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		var (
			pay                 billing.Payment
			amount, recordedAt  string
			reference, recorded sql.NullString
			clearedAt           sql.NullString
		)
		if err := rows.Scan(&pay.ID, &pay.InvoiceID, &amount, &pay.Method,
			&pay.Status, &reference, &recorded, &recordedAt, &clearedAt); err != nil {
			return nil, err
		}
		pay.Amount = parseDecimal(amount)
		pay.Reference = reference.String
		pay.RecordedBy = recorded.String
		pay.RecordedAt = parseTime(recordedAt)
		if clearedAt.Valid {
			t := parseTime(clearedAt.String)
			pay.ClearedAt = &t
		}
		out = append(out, pay)
	}
	return out, rows.Err()
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *session) AppendEntry(ctx context.Context, e billing.LedgerEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, school_id, seq, type, month, year, debit, credit, balance,
		 reference_id, memo, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SchoolID, e.Seq, e.Type, int(e.Period.Month), e.Period.Year,
		e.Debit.String(), e.Credit.String(), e.Balance.String(),
		e.ReferenceID, e.Memo, e.ActorID, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrConcurrentModification
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

const ledgerColumns = `id, school_id, seq, type, month, year, debit, credit,
	balance, reference_id, memo, actor_id, created_at`

func (s *session) LastEntry(ctx context.Context, schoolID billing.SchoolID) (*billing.LedgerEntry, error) {
	entries, err := s.queryEntries(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		 WHERE school_id = ? ORDER BY seq DESC LIMIT 1`, schoolID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *session) LastEntryBefore(ctx context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.LedgerEntry, error) {
	entries, err := s.queryEntries(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		 WHERE school_id = ? AND (year < ? OR (year = ? AND month < ?))
		 ORDER BY seq DESC LIMIT 1`,
		schoolID, p.Year, p.Year, int(p.Month))
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *session) Entries(ctx context.Context, schoolID billing.SchoolID, from, to *time.Time) ([]billing.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE school_id = ?`
	args := []any{schoolID}
	if from != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*from))
	}
	if to != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*to))
	}
	query += ` ORDER BY seq`
	return s.queryEntries(ctx, query, args...)
}

func (s *session) queryEntries(ctx context.Context, query string, args ...any) ([]billing.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.LedgerEntry
	for rows.Next() {
		var (
			e                      billing.LedgerEntry
			month, year            int
			debit, credit, balance string
			ref, memo, actor       sql.NullString
			createdAt              string
		)
		if err := rows.Scan(&e.ID, &e.SchoolID, &e.Seq, &e.Type, &month, &year,
			&debit, &credit, &balance, &ref, &memo, &actor, &createdAt); err != nil {
			return nil, err
		}
		e.Period = billing.Period{Month: time.Month(month), Year: year}
		e.Debit = parseDecimal(debit)
		e.Credit = parseDecimal(credit)
		e.Balance = parseDecimal(balance)
		e.ReferenceID = ref.String
		e.Memo = memo.String
		e.ActorID = actor.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *session) SaveSummary(ctx context.Context, sum billing.MonthlySummary) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO monthly_summaries
		(school_id, year, month, opening_balance, total_invoiced, total_paid, closing_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(school_id, year, month) DO UPDATE SET
			opening_balance = excluded.opening_balance,
			total_invoiced  = excluded.total_invoiced,
			total_paid      = excluded.total_paid,
			closing_balance = excluded.closing_balance`,
		sum.SchoolID, sum.Period.Year, int(sum.Period.Month),
		sum.OpeningBalance.String(), sum.TotalInvoiced.String(),
		sum.TotalPaid.String(), sum.ClosingBalance.String(),
	)
	return err
}

func (s *session) GetSummary(ctx context.Context, schoolID billing.SchoolID, p billing.Period) (*billing.MonthlySummary, error) {
	summaries, err := s.querySummaries(ctx, `
		SELECT school_id, year, month, opening_balance, total_invoiced, total_paid, closing_balance
		FROM monthly_summaries WHERE school_id = ? AND year = ? AND month = ?`,
		schoolID, p.Year, int(p.Month))
	if err != nil || len(summaries) == 0 {
		return nil, err
	}
	return &summaries[0], nil
}

func (s *session) SummariesForYear(ctx context.Context, schoolID billing.SchoolID, year int) ([]billing.MonthlySummary, error) {
	return s.querySummaries(ctx, `
		SELECT school_id, year, month, opening_balance, total_invoiced, total_paid, closing_balance
		FROM monthly_summaries WHERE school_id = ? AND year = ? ORDER BY month`,
		schoolID, year)
}

func (s *session) querySummaries(ctx context.Context, query string, args ...any) ([]billing.MonthlySummary, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.MonthlySummary
	for rows.Next() {
		var (
			sum                              billing.MonthlySummary
			month, year                      int
			opening, invoiced, paid, closing string
		)
		if err := rows.Scan(&sum.SchoolID, &year, &month, &opening, &invoiced,
			&paid, &closing); err != nil {
			return nil, err
		}
		sum.Period = billing.Period{Month: time.Month(month), Year: year}
		sum.OpeningBalance = parseDecimal(opening)
		sum.TotalInvoiced = parseDecimal(invoiced)
		sum.TotalPaid = parseDecimal(paid)
		sum.ClosingBalance = parseDecimal(closing)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string { return t.UTC().Format(dateLayout) }
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
