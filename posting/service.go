/*
Package posting implements the posting lifecycle engine: opening, moving,
and closing trainer assignments while keeping each school's roster
consistent with the single-active-posting invariant.

PURPOSE:
  Owns every mutation of Posting.IsActive and School.CurrentTrainers.
  No other package may flip either.

INVARIANTS:
  1. At most one posting per employee has IsActive=true at any instant.
  2. A school's roster equals the set of employees with an active posting
     at that school, after every mutation.
  3. Closed postings are historical records, never reactivated.

CASCADE:
  Opening an active posting fans out: every other active posting of the
  same employee is closed (end-dated, roster-pulled) and the target roster
  gains the employee. The cascade is an explicit service method, not a
  persistence hook; the internal persist() takes a cascade flag so the
  derived closure writes can never re-trigger the cascade.

CONCURRENCY:
  Posting changes are serialized per employee with a keyed mutex, then run
  inside one store transaction. Roster add/remove are set operations, so a
  retried cascade is idempotent.
*/
package posting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stafflink/billing-engine/billing"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store billing.TxStore
	Clock func() time.Time

	mu    sync.Mutex
	locks map[billing.EmployeeID]*sync.Mutex
}

func NewService(store billing.TxStore) *Service {
	return &Service{
		Store: store,
		Clock: func() time.Time { return time.Now().UTC() },
		locks: make(map[billing.EmployeeID]*sync.Mutex),
	}
}

// lockEmployee serializes posting changes for one employee.
func (s *Service) lockEmployee(id billing.EmployeeID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// =============================================================================
// OPEN - continue / change_school
// =============================================================================

type OpenInput struct {
	EmployeeID   billing.EmployeeID
	EmployeeName string
	SchoolID     billing.SchoolID
	MonthlyRate  decimal.Decimal
	StartDate    time.Time
	Status       billing.PostingStatus // continue or change_school
	Remark       string
	ActorID      string
}

// Open creates an active posting at the target school and cascades the
// closure of any other active posting the employee holds.
//
// Status rules:
//   - continue while actively posted at a DIFFERENT school is reinterpreted
//     as change_school (not rejected) and a default remark is attached.
//   - change_school requires an existing active posting somewhere.
//   - Opening at the school where the employee is already active is rejected.
func (s *Service) Open(ctx context.Context, in OpenInput) (*billing.Posting, error) {
	if !in.Status.IsOpening() {
		return nil, fmt.Errorf("%w: status %q cannot open a posting", billing.ErrInvalidTransition, in.Status)
	}
	if !in.MonthlyRate.IsPositive() {
		return nil, billing.ErrInvalidBillingRate
	}

	unlock := s.lockEmployee(in.EmployeeID)
	defer unlock()

	var created *billing.Posting
	err := s.Store.WithTx(ctx, func(tx billing.Store) error {
		school, err := tx.GetSchool(ctx, in.SchoolID)
		if err != nil {
			return err
		}
		if school == nil {
			return billing.ErrSchoolNotFound
		}

		current, err := tx.ActivePostingByEmployee(ctx, in.EmployeeID)
		if err != nil {
			return err
		}

		status := in.Status
		remark := in.Remark
		if current != nil {
			if current.SchoolID == in.SchoolID {
				return billing.ErrAlreadyPostedAtSchool
			}
			if status == billing.PostingContinue {
				// Already posted elsewhere: treat as a school change.
				status = billing.PostingChangeSchool
				if remark == "" {
					remark = fmt.Sprintf("moved from school %s", current.SchoolID)
				}
			}
		} else if status == billing.PostingChangeSchool {
			return billing.ErrNotCurrentlyPosted
		}

		now := s.Clock()
		start := in.StartDate
		if start.IsZero() {
			start = now
		}

		p := billing.Posting{
			ID:           billing.PostingID(uuid.NewString()),
			EmployeeID:   in.EmployeeID,
			EmployeeName: in.EmployeeName,
			SchoolID:     in.SchoolID,
			MonthlyRate:  in.MonthlyRate,
			StartDate:    billing.DateOnly(start),
			Status:       status,
			IsActive:     true,
			Remark:       remark,
			CreatedBy:    in.ActorID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.persist(ctx, tx, &p, true); err != nil {
			return err
		}
		created = &p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("posting opened",
		"posting", created.ID,
		"employee", created.EmployeeID,
		"school", created.SchoolID,
		"status", created.Status,
	)
	return created, nil
}

// =============================================================================
// CLOSE - resign / terminate
// =============================================================================

// Close ends an active posting: sets the closing status, IsActive=false,
// EndDate=now, and pulls the employee from the school roster.
func (s *Service) Close(ctx context.Context, id billing.PostingID, status billing.PostingStatus, actorID string) (*billing.Posting, error) {
	if !status.IsClosing() {
		return nil, fmt.Errorf("%w: status %q cannot close a posting", billing.ErrInvalidTransition, status)
	}

	p, err := s.Store.GetPosting(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, billing.ErrPostingNotFound
	}

	unlock := s.lockEmployee(p.EmployeeID)
	defer unlock()

	var closed *billing.Posting
	err = s.Store.WithTx(ctx, func(tx billing.Store) error {
		p, err := tx.GetPosting(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return billing.ErrPostingNotFound
		}
		if !p.IsActive {
			return billing.ErrPostingClosed
		}

		if err := s.closeLocked(ctx, tx, p, status); err != nil {
			return err
		}
		closed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("posting closed",
		"posting", closed.ID,
		"employee", closed.EmployeeID,
		"school", closed.SchoolID,
		"status", status,
		"actor", actorID,
	)
	return closed, nil
}

// ChangeStatus applies a status-change request to an existing posting.
// Closing statuses delegate to Close. Reopening statuses on a closed
// posting are rejected; a new posting record must be created instead.
func (s *Service) ChangeStatus(ctx context.Context, id billing.PostingID, status billing.PostingStatus, actorID string) (*billing.Posting, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", billing.ErrInvalidTransition, status)
	}
	if status.IsClosing() {
		return s.Close(ctx, id, status, actorID)
	}

	p, err := s.Store.GetPosting(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, billing.ErrPostingNotFound
	}
	if !p.IsActive {
		return nil, billing.ErrPostingClosed
	}

	// An already-active posting switching between opening statuses is a
	// remark-level change only.
	unlock := s.lockEmployee(p.EmployeeID)
	defer unlock()

	err = s.Store.WithTx(ctx, func(tx billing.Store) error {
		p, err = tx.GetPosting(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return billing.ErrPostingNotFound
		}
		if !p.IsActive {
			return billing.ErrPostingClosed
		}
		p.Status = status
		p.UpdatedAt = s.Clock()
		return s.persist(ctx, tx, p, false)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// CASCADE INTERNALS
// =============================================================================

// persist writes a posting. With cascade=true it also closes the employee's
// other active postings and adds the employee to the target roster. The
// derived writes always use cascade=false; that flag is the re-entrancy
// guard.
func (s *Service) persist(ctx context.Context, tx billing.Store, p *billing.Posting, cascade bool) error {
	if err := tx.SavePosting(ctx, *p); err != nil {
		return err
	}
	if !cascade || !p.IsActive {
		return nil
	}

	// Close every other active posting of this employee.
	siblings, err := tx.PostingsByEmployee(ctx, p.EmployeeID)
	if err != nil {
		return err
	}
	for i := range siblings {
		sib := &siblings[i]
		if sib.ID == p.ID || !sib.IsActive {
			continue
		}
		if err := s.closeLocked(ctx, tx, sib, billing.PostingChangeSchool); err != nil {
			return err
		}
	}

	// Add to the target roster. Idempotent set operation.
	school, err := tx.GetSchool(ctx, p.SchoolID)
	if err != nil {
		return err
	}
	if school == nil {
		return billing.ErrSchoolNotFound
	}
	school.AddTrainer(p.EmployeeID)
	return tx.SaveSchool(ctx, *school)
}

// closeLocked end-dates a posting and pulls it from its school roster.
// Callers hold the employee lock and run inside a transaction.
func (s *Service) closeLocked(ctx context.Context, tx billing.Store, p *billing.Posting, status billing.PostingStatus) error {
	now := s.Clock()
	end := billing.DateOnly(now)
	p.Status = status
	p.IsActive = false
	p.EndDate = &end
	p.UpdatedAt = now
	if err := s.persist(ctx, tx, p, false); err != nil {
		return err
	}

	school, err := tx.GetSchool(ctx, p.SchoolID)
	if err != nil {
		return err
	}
	if school == nil {
		return nil // school deleted out from under us; roster has nothing to fix
	}
	school.RemoveTrainer(p.EmployeeID)
	return tx.SaveSchool(ctx, *school)
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id billing.PostingID) (*billing.Posting, error) {
	p, err := s.Store.GetPosting(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, billing.ErrPostingNotFound
	}
	return p, nil
}

func (s *Service) History(ctx context.Context, id billing.EmployeeID) ([]billing.Posting, error) {
	return s.Store.PostingsByEmployee(ctx, id)
}
