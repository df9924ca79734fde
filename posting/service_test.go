package posting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflink/billing-engine/billing"
	"github.com/stafflink/billing-engine/posting"
	"github.com/stafflink/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*posting.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveSchool(ctx, billing.School{ID: "school-a", Name: "Lakeside"}))
	require.NoError(t, store.SaveSchool(ctx, billing.School{ID: "school-b", Name: "Hillcrest"}))
	return posting.NewService(store), store
}

func openInput(employee, school string) posting.OpenInput {
	return posting.OpenInput{
		EmployeeID:   billing.EmployeeID(employee),
		EmployeeName: "Asha",
		SchoolID:     billing.SchoolID(school),
		MonthlyRate:  decimal.NewFromInt(30000),
		StartDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:       billing.PostingContinue,
		ActorID:      "admin",
	}
}

func roster(t *testing.T, store *memory.Store, school string) []billing.EmployeeID {
	t.Helper()
	s, err := store.GetSchool(context.Background(), billing.SchoolID(school))
	require.NoError(t, err)
	require.NotNil(t, s)
	return s.CurrentTrainers
}

// =============================================================================
// OPEN
// =============================================================================

func TestOpen_FirstPosting(t *testing.T) {
	// GIVEN: Employee with no posting
	// WHEN: Opening with status continue
	// THEN: Posting is active and the school roster gains the employee

	svc, store := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	assert.True(t, p.IsActive)
	assert.Equal(t, billing.PostingContinue, p.Status)
	assert.Nil(t, p.EndDate)
	assert.Equal(t, []billing.EmployeeID{"emp-1"}, roster(t, store, "school-a"))
}

func TestOpen_SameSchoolTwice_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	_, err = svc.Open(ctx, openInput("emp-1", "school-a"))
	assert.ErrorIs(t, err, billing.ErrAlreadyPostedAtSchool)
}

func TestOpen_ContinueElsewhere_ReinterpretedAsChangeSchool(t *testing.T) {
	// GIVEN: Employee actively posted at school A
	// WHEN: Opening with status continue at school B
	// THEN: The new posting carries change_school, the old one is closed,
	//       and both rosters reflect the move

	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	second, err := svc.Open(ctx, openInput("emp-1", "school-b"))
	require.NoError(t, err)

	assert.Equal(t, billing.PostingChangeSchool, second.Status)
	assert.Contains(t, second.Remark, "school-a")
	assert.True(t, second.IsActive)

	old, err := store.GetPosting(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.NotNil(t, old.EndDate)
	assert.Equal(t, billing.PostingChangeSchool, old.Status)

	assert.Empty(t, roster(t, store, "school-a"))
	assert.Equal(t, []billing.EmployeeID{"emp-1"}, roster(t, store, "school-b"))
}

func TestOpen_ChangeSchoolWithoutActivePosting_Rejected(t *testing.T) {
	svc, _ := newTestService(t)

	in := openInput("emp-1", "school-a")
	in.Status = billing.PostingChangeSchool
	_, err := svc.Open(context.Background(), in)
	assert.ErrorIs(t, err, billing.ErrNotCurrentlyPosted)
}

func TestOpen_ClosingStatus_Rejected(t *testing.T) {
	svc, _ := newTestService(t)

	in := openInput("emp-1", "school-a")
	in.Status = billing.PostingResign
	_, err := svc.Open(context.Background(), in)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestOpen_NonPositiveRate_Rejected(t *testing.T) {
	svc, _ := newTestService(t)

	in := openInput("emp-1", "school-a")
	in.MonthlyRate = decimal.Zero
	_, err := svc.Open(context.Background(), in)
	assert.ErrorIs(t, err, billing.ErrInvalidBillingRate)

	in.MonthlyRate = decimal.NewFromInt(-100)
	_, err = svc.Open(context.Background(), in)
	assert.ErrorIs(t, err, billing.ErrInvalidBillingRate)
}

func TestOpen_UnknownSchool_Rejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Open(context.Background(), openInput("emp-1", "school-x"))
	assert.ErrorIs(t, err, billing.ErrSchoolNotFound)
}

// =============================================================================
// CLOSE
// =============================================================================

func TestClose_Resign(t *testing.T) {
	// GIVEN: Active posting
	// WHEN: Closing with resign
	// THEN: Posting is end-dated and the roster shrinks

	svc, store := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	closed, err := svc.Close(ctx, p.ID, billing.PostingResign, "admin")
	require.NoError(t, err)

	assert.False(t, closed.IsActive)
	assert.Equal(t, billing.PostingResign, closed.Status)
	assert.NotNil(t, closed.EndDate)
	assert.Empty(t, roster(t, store, "school-a"))
}

func TestClose_AlreadyClosed_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)
	_, err = svc.Close(ctx, p.ID, billing.PostingTerminate, "admin")
	require.NoError(t, err)

	_, err = svc.Close(ctx, p.ID, billing.PostingResign, "admin")
	assert.ErrorIs(t, err, billing.ErrPostingClosed)
}

func TestClose_OpeningStatus_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	_, err = svc.Close(ctx, p.ID, billing.PostingContinue, "admin")
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestClose_UnknownPosting(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Close(context.Background(), "nope", billing.PostingResign, "admin")
	assert.ErrorIs(t, err, billing.ErrPostingNotFound)
}

// =============================================================================
// CHANGE STATUS
// =============================================================================

func TestChangeStatus_ClosingDelegates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	changed, err := svc.ChangeStatus(ctx, p.ID, billing.PostingResign, "admin")
	require.NoError(t, err)
	assert.False(t, changed.IsActive)
}

func TestChangeStatus_ReopeningClosedPosting_Rejected(t *testing.T) {
	// Closed postings are history; a move back needs a new posting record.

	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)
	_, err = svc.Close(ctx, p.ID, billing.PostingResign, "admin")
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, p.ID, billing.PostingContinue, "admin")
	assert.ErrorIs(t, err, billing.ErrPostingClosed)
}

func TestChangeStatus_UnknownStatus_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, p.ID, "sabbatical", "admin")
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

// =============================================================================
// SINGLE-ACTIVE INVARIANT
// =============================================================================

func TestSingleActivePosting_AfterRepeatedMoves(t *testing.T) {
	// GIVEN: Employee moved A -> B -> A
	// THEN: Exactly one active posting exists, history keeps all three

	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)
	_, err = svc.Open(ctx, openInput("emp-1", "school-b"))
	require.NoError(t, err)
	last, err := svc.Open(ctx, openInput("emp-1", "school-a"))
	require.NoError(t, err)

	history, err := svc.History(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	active := 0
	for _, p := range history {
		if p.IsActive {
			active++
			assert.Equal(t, last.ID, p.ID)
		}
	}
	assert.Equal(t, 1, active)

	current, err := store.ActivePostingByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, billing.SchoolID("school-a"), current.SchoolID)

	assert.Equal(t, []billing.EmployeeID{"emp-1"}, roster(t, store, "school-a"))
	assert.Empty(t, roster(t, store, "school-b"))
}
