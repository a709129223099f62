package coaching_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/coaching-engine/coaching"
	"github.com/warp/coaching-engine/events"
	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/generic/store"
)

// =============================================================================
// FIXTURES
// =============================================================================

// Monday 2025-03-03, 08:00 UTC.
var now = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

var (
	admin   = generic.Principal{ID: "admin-1", Role: generic.RoleAdmin}
	coachA  = generic.Principal{ID: "coach-a", Role: generic.RoleCoach}
	student = generic.Principal{ID: "stu-1", Role: generic.RoleStudent}
)

type fixture struct {
	svc    *coaching.Service
	store  *store.TxMemory
	events *events.Recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupOver(t, func(st *store.TxMemory) generic.TxStore { return st })
}

// setupOver builds the fixture with the service reading through wrap.
func setupOver(t *testing.T, wrap func(*store.TxMemory) generic.TxStore) *fixture {
	t.Helper()
	st := store.NewTxMemory()
	rec := &events.Recorder{}
	n := 0
	svc := coaching.NewService(wrap(st),
		coaching.WithPublisher(rec),
		coaching.WithClock(func() time.Time { return now }),
		coaching.WithHorizonDays(14),
		coaching.WithSessionIDs(func() generic.SessionID {
			n++
			return generic.SessionID(fmt.Sprintf("s-%d", n))
		}),
	)
	ctx := context.Background()
	for _, c := range []generic.Coach{
		{ID: "coach-a", Name: "Alex", HourlyRate: decimal.NewFromInt(40)},
		{ID: "coach-b", Name: "Bo", HourlyRate: decimal.NewFromInt(50)},
	} {
		_, err := svc.CreateCoach(ctx, admin, c)
		require.NoError(t, err)
	}
	return &fixture{svc: svc, store: st, events: rec}
}

func oneOff(coaches ...string) factory.CreateSession {
	start := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	max := 1
	return factory.CreateSession{
		Name:        "Private lesson",
		Start:       start,
		End:         start.Add(90 * time.Minute),
		Coaches:     coaches,
		MaxStudents: &max,
	}
}

func (f *fixture) payments(t *testing.T, id generic.SessionID) []*generic.Payment {
	t.Helper()
	list, err := f.store.ListPayments(context.Background(), generic.PaymentFilter{SessionID: id})
	require.NoError(t, err)
	return list
}

// =============================================================================
// SESSIONS AND PAYMENTS
// =============================================================================

func TestCreateSession_BillsEachCoach(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// WHEN: a 90 minute one-off with coach A
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	// THEN: one pending 60.00 payment, session not paid
	pays := f.payments(t, sess.ID)
	require.Len(t, pays, 1)
	assert.True(t, pays[0].AmountOwed.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, generic.PaymentPending, pays[0].Status)

	stored, err := f.svc.GetSession(ctx, admin, sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.Paid)
	assert.Equal(t, []events.Type{events.SessionCreated, events.PaymentCreated}, f.events.Types())
}

func TestCreateSession_UnknownCoach(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateSession(context.Background(), admin, oneOff("ghost"))
	assert.True(t, errors.Is(err, generic.ErrCoachNotFound))
}

func TestCreateSession_RequiresAdmin(t *testing.T) {
	f := setup(t)
	_, err := f.svc.CreateSession(context.Background(), coachA, oneOff("coach-a"))
	assert.True(t, errors.Is(err, generic.ErrForbidden))
}

func TestMarkPaid_UpdatesSessionPaidFlag(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a", "coach-b"))
	require.NoError(t, err)
	pays := f.payments(t, sess.ID)
	require.Len(t, pays, 2)

	// WHEN: the first payment is paid
	_, err = f.svc.MarkPaid(ctx, admin, pays[0].ID)
	require.NoError(t, err)
	got, _ := f.svc.GetSession(ctx, admin, sess.ID)
	assert.False(t, got.Paid, "one payment still pending")

	// AND: the second
	_, err = f.svc.MarkPaid(ctx, admin, pays[1].ID)
	require.NoError(t, err)
	got, _ = f.svc.GetSession(ctx, admin, sess.ID)
	assert.True(t, got.Paid)

	// THEN: a second markPaid fails and changes nothing
	_, err = f.svc.MarkPaid(ctx, admin, pays[1].ID)
	assert.True(t, errors.Is(err, generic.ErrInvalidTransition))
	again, _ := f.svc.GetPayment(ctx, admin, pays[1].ID)
	assert.Equal(t, generic.PaymentPaid, again.Status)
}

func TestCancelPayment_ThenMarkPaidFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)
	pay := f.payments(t, sess.ID)[0]

	cancelled, err := f.svc.CancelPayment(ctx, admin, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.PaymentCancelled, cancelled.Status)

	_, err = f.svc.MarkPaid(ctx, admin, pay.ID)
	assert.True(t, errors.Is(err, generic.ErrInvalidTransition))
}

func TestDeletePayment_RecomputesPaid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)
	pay := f.payments(t, sess.ID)[0]

	require.NoError(t, f.svc.DeletePayment(ctx, admin, pay.ID))

	got, err := f.svc.GetSession(ctx, admin, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid, "no payments left")
	assert.Equal(t, []generic.CoachID{"coach-a"}, got.Coaches, "session membership untouched")
}

func TestDeleteSession_CascadesPayments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a", "coach-b"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(ctx, admin, sess.ID))

	assert.Empty(t, f.payments(t, sess.ID))
	_, err = f.svc.GetSession(ctx, admin, sess.ID)
	assert.True(t, errors.Is(err, generic.ErrSessionNotFound))
}

func TestUpdateCoachRate_LeavesExistingPayments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	_, err = f.svc.UpdateCoachRate(ctx, admin, "coach-a", decimal.NewFromInt(100))
	require.NoError(t, err)

	pay := f.payments(t, sess.ID)[0]
	assert.True(t, pay.AmountOwed.Equal(decimal.NewFromInt(60)))
	assert.True(t, pay.Rate.Equal(decimal.NewFromInt(40)))
}

func TestUpdateSessionDetails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	// WHEN: an admin renames the session
	name, desc := "Advanced lesson", "Bring your own racket"
	got, err := f.svc.UpdateSessionDetails(ctx, admin, sess.ID, &name, &desc)

	// THEN: both fields change and nothing else does
	require.NoError(t, err)
	assert.Equal(t, "Advanced lesson", got.Name)
	assert.Equal(t, "Bring your own racket", got.Description)
	assert.Equal(t, sess.Window, got.Window)
	assert.Len(t, f.payments(t, sess.ID), 1)

	_, err = f.svc.UpdateSessionDetails(ctx, coachA, sess.ID, &name, nil)
	assert.True(t, errors.Is(err, generic.ErrForbidden))
	_, err = f.svc.UpdateSessionDetails(ctx, admin, "ghost", &name, nil)
	assert.True(t, errors.Is(err, generic.ErrSessionNotFound))
}

func TestUpdateCoachProfile_LeavesRateAndPayments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	// WHEN: coach A gets a new name and email
	name, email := "Alexandra", "alexandra@example.com"
	coach, err := f.svc.UpdateCoachProfile(ctx, admin, "coach-a", &name, &email)

	// THEN: the profile changes, the rate and existing payment do not
	require.NoError(t, err)
	assert.Equal(t, "Alexandra", coach.Name)
	assert.Equal(t, "alexandra@example.com", coach.Email)
	assert.True(t, coach.HourlyRate.Equal(decimal.NewFromInt(40)))
	assert.True(t, f.payments(t, sess.ID)[0].AmountOwed.Equal(decimal.NewFromInt(60)))

	blank := ""
	_, err = f.svc.UpdateCoachProfile(ctx, admin, "coach-a", &blank, nil)
	assert.True(t, errors.Is(err, generic.ErrInvariantViolation))
	_, err = f.svc.UpdateCoachProfile(ctx, admin, "ghost", &name, nil)
	assert.True(t, errors.Is(err, generic.ErrCoachNotFound))
	_, err = f.svc.UpdateCoachProfile(ctx, coachA, "coach-a", &name, nil)
	assert.True(t, errors.Is(err, generic.ErrForbidden))
}

func TestRescheduleSession_KeepsFrozenHours(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	moved, err := f.svc.RescheduleSession(ctx, admin, sess.ID, sess.Window.Start, sess.Window.Start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, moved.Window.Duration())

	assert.True(t, f.payments(t, sess.ID)[0].Hours.Equal(decimal.RequireFromString("1.5")))
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

func TestAssignUnassign_RoundTripRestoresPayments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	// WHEN: coach B is assigned then unassigned
	assigned, err := f.svc.AssignCoach(ctx, admin, sess.ID, "coach-b")
	require.NoError(t, err)
	assert.Len(t, f.payments(t, sess.ID), 2)

	back, err := f.svc.UnassignCoach(ctx, admin, sess.ID, "coach-b")
	require.NoError(t, err)

	// THEN: coaches and payments are as before
	assert.Equal(t, []generic.CoachID{"coach-a", "coach-b"}, assigned.Coaches)
	assert.Equal(t, []generic.CoachID{"coach-a"}, back.Coaches)
	pays := f.payments(t, sess.ID)
	require.Len(t, pays, 1)
	assert.Equal(t, generic.CoachID("coach-a"), pays[0].CoachID)
}

func TestUnassign_KeepsPaidPayment_AndReassignDoesNotDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a", "coach-b"))
	require.NoError(t, err)

	var payB *generic.Payment
	for _, p := range f.payments(t, sess.ID) {
		if p.CoachID == "coach-b" {
			payB = p
		}
	}
	require.NotNil(t, payB)
	_, err = f.svc.MarkPaid(ctx, admin, payB.ID)
	require.NoError(t, err)

	// WHEN: B is removed and added back
	_, err = f.svc.UnassignCoach(ctx, admin, sess.ID, "coach-b")
	require.NoError(t, err)
	_, err = f.svc.AssignCoach(ctx, admin, sess.ID, "coach-b")
	require.NoError(t, err)

	// THEN: still exactly one payment per coach, B's is the paid one
	pays := f.payments(t, sess.ID)
	require.Len(t, pays, 2)
	got, err := f.svc.GetPayment(ctx, admin, payB.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.PaymentPaid, got.Status)
}

func TestReassign_ReplacesCancelledPaymentAtCurrentRate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)
	old := f.payments(t, sess.ID)[0]

	// GIVEN: A's payment is cancelled after a raise, then A is removed
	_, err = f.svc.UpdateCoachRate(ctx, admin, "coach-a", decimal.NewFromInt(80))
	require.NoError(t, err)
	_, err = f.svc.CancelPayment(ctx, admin, old.ID)
	require.NoError(t, err)
	_, err = f.svc.UnassignCoach(ctx, admin, sess.ID, "coach-a")
	require.NoError(t, err)

	// WHEN: A is assigned again
	back, err := f.svc.AssignCoach(ctx, admin, sess.ID, "coach-a")
	require.NoError(t, err)

	// THEN: a single pending payment at the new rate replaces the cancelled one
	pays := f.payments(t, sess.ID)
	require.Len(t, pays, 1)
	assert.NotEqual(t, old.ID, pays[0].ID)
	assert.Equal(t, generic.PaymentPending, pays[0].Status)
	assert.True(t, pays[0].Rate.Equal(decimal.NewFromInt(80)))
	assert.True(t, pays[0].AmountOwed.Equal(decimal.NewFromInt(120)))
	assert.False(t, back.Paid)

	_, err = f.svc.GetPayment(ctx, admin, old.ID)
	assert.True(t, errors.Is(err, generic.ErrPaymentNotFound))
	assert.Contains(t, f.events.Types(), events.PaymentDeleted)
}

func TestAssignCoach_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	_, err = f.svc.AssignCoach(ctx, admin, sess.ID, "coach-a")
	assert.True(t, errors.Is(err, generic.ErrDuplicateAssignment))

	_, err = f.svc.AssignCoach(ctx, admin, sess.ID, "ghost")
	assert.True(t, errors.Is(err, generic.ErrCoachNotFound))

	_, err = f.svc.UnassignCoach(ctx, admin, sess.ID, "coach-b")
	assert.True(t, errors.Is(err, generic.ErrNotAssigned))
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestBookStudent_ConcurrentLastSeat(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	// WHEN: two students race for the single seat
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.BookStudent(ctx, student, sess.ID, generic.Booking{
				Name:  fmt.Sprintf("Student %d", i),
				Email: fmt.Sprintf("s%d@example.com", i),
			})
		}(i)
	}
	wg.Wait()

	// THEN: exactly one success and one SessionFull
	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, generic.ErrSessionFull):
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)

	got, _ := f.svc.GetSession(ctx, admin, sess.ID)
	assert.Len(t, got.Students, 1)
}

func TestCancelBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	_, err = f.svc.BookStudent(ctx, student, sess.ID, generic.Booking{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	got, err := f.svc.CancelBooking(ctx, student, sess.ID, "ANA@example.com")
	require.NoError(t, err)
	assert.Empty(t, got.Students)

	_, err = f.svc.CancelBooking(ctx, student, sess.ID, "ana@example.com")
	assert.True(t, errors.Is(err, generic.ErrBookingNotFound))
}

// =============================================================================
// RECURRENCE
// =============================================================================

func recurring() factory.CreateSession {
	cmd := oneOff("coach-a")
	cmd.Name = "Footwork"
	cmd.Start = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	cmd.End = cmd.Start.Add(90 * time.Minute)
	cmd.Recurring = true
	cmd.DaysOfWeek = []int{1, 3, 5}
	return cmd
}

func TestCreateTemplate_ExpandsAndBillsInstances(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// WHEN: a Mon/Wed/Fri template is created on a Monday, horizon 14 days
	tpl, err := f.svc.CreateSession(ctx, admin, recurring())
	require.NoError(t, err)

	// THEN: 6 instances, each with a pending payment; the template has none
	instances, err := f.svc.ListSessions(ctx, admin, generic.SessionFilter{TemplateID: tpl.ID})
	require.NoError(t, err)
	require.Len(t, instances, 6)
	for _, inst := range instances {
		assert.Len(t, f.payments(t, inst.ID), 1)
		assert.False(t, inst.Paid)
	}
	assert.Empty(t, f.payments(t, tpl.ID))
}

func TestExpandTemplate_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tpl, err := f.svc.CreateSession(ctx, admin, recurring())
	require.NoError(t, err)

	// WHEN: expanded again over the same horizon
	res, err := f.svc.ExpandTemplate(ctx, admin, tpl.ID, f.svc.Today(), 14)
	require.NoError(t, err)

	// THEN: nothing new
	assert.Empty(t, res.Created)
	assert.Equal(t, 6, res.Existing)
	instances, _ := f.svc.ListSessions(ctx, admin, generic.SessionFilter{TemplateID: tpl.ID})
	assert.Len(t, instances, 6)

	// AND: a longer horizon only adds the new dates
	all, err := f.svc.ExpandAllTemplates(ctx, admin, f.svc.Today(), 21)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Created, 3)
}

// staleIndex hides existing instances, as a read taken just before another
// expansion committed would.
type staleIndex struct {
	*store.TxMemory
}

func (s staleIndex) ListSessions(ctx context.Context, filter generic.SessionFilter) ([]*generic.Session, error) {
	if filter.TemplateID != "" {
		return nil, nil
	}
	return s.TxMemory.ListSessions(ctx, filter)
}

func TestExpandTemplate_LosingRaceCountsExisting(t *testing.T) {
	f := setupOver(t, func(st *store.TxMemory) generic.TxStore { return staleIndex{st} })
	ctx := context.Background()
	tpl, err := f.svc.CreateSession(ctx, admin, recurring())
	require.NoError(t, err)

	// WHEN: an expansion works from an index that misses every instance
	res, err := f.svc.ExpandTemplate(ctx, admin, tpl.ID, f.svc.Today(), 14)

	// THEN: each insert collides and is counted as already there
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 6, res.Existing)
	assert.Zero(t, res.Payments)

	payments, err := f.store.ListPayments(ctx, generic.PaymentFilter{CoachID: "coach-a"})
	require.NoError(t, err)
	assert.Len(t, payments, 6)
}

func TestExpandTemplate_ConcurrentRuns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tpl, err := f.svc.CreateSession(ctx, admin, recurring())
	require.NoError(t, err)

	// WHEN: two expansions over a longer horizon run at once
	var wg sync.WaitGroup
	results := make([]*coaching.ExpansionResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ExpandTemplate(ctx, admin, tpl.ID, f.svc.Today(), 21)
		}(i)
	}
	wg.Wait()

	// THEN: both succeed and the three new dates are created once
	created := 0
	for i, res := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 9, len(res.Created)+res.Existing)
		created += len(res.Created)
	}
	assert.Equal(t, 3, created)
	instances, err := f.svc.ListSessions(ctx, admin, generic.SessionFilter{TemplateID: tpl.ID})
	require.NoError(t, err)
	assert.Len(t, instances, 9)
}

func TestExpandTemplate_CancelledContext(t *testing.T) {
	f := setup(t)
	tpl, err := f.svc.CreateSession(context.Background(), admin, func() factory.CreateSession {
		cmd := recurring()
		cmd.DaysOfWeek = []int{0, 1, 2, 3, 4, 5, 6}
		return cmd
	}())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.ExpandTemplate(ctx, admin, tpl.ID, f.svc.Today().AddDate(0, 0, 14), 14)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnassignLastCoachOfTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tpl, err := f.svc.CreateSession(ctx, admin, recurring())
	require.NoError(t, err)

	_, err = f.svc.UnassignCoach(ctx, admin, tpl.ID, "coach-a")
	assert.True(t, errors.Is(err, generic.ErrInvariantViolation))
}

// =============================================================================
// REPORTS AND VISIBILITY
// =============================================================================

func TestReports(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a", "coach-b"))
	require.NoError(t, err)
	for _, p := range f.payments(t, sess.ID) {
		if p.CoachID == "coach-a" {
			_, err := f.svc.MarkPaid(ctx, admin, p.ID)
			require.NoError(t, err)
		}
	}

	stats, err := f.svc.GlobalStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCoaches)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.True(t, stats.TotalHours.Equal(decimal.NewFromInt(3)))
	assert.True(t, stats.TotalPayments.Equal(decimal.NewFromInt(135)), "60 + 75")

	summary, err := f.svc.CoachSummary(ctx, coachA, "coach-a")
	require.NoError(t, err)
	assert.True(t, summary.TotalPaid.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 0, summary.UnpaidSessions)

	earnings, err := f.svc.Earnings(ctx, coachA, "coach-a", 0, 0)
	require.NoError(t, err)
	assert.True(t, earnings.ThisMonth.Equal(decimal.NewFromInt(60)))

	rows, err := f.svc.CoachSummaries(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCoachVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a", "coach-b"))
	require.NoError(t, err)

	// A coach only sees their own payments and summary
	pays, err := f.svc.ListPayments(ctx, coachA, generic.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, generic.CoachID("coach-a"), pays[0].CoachID)

	_, err = f.svc.ListPayments(ctx, coachA, generic.PaymentFilter{CoachID: "coach-b"})
	assert.True(t, errors.Is(err, generic.ErrForbidden))

	_, err = f.svc.CoachSummary(ctx, coachA, "coach-b")
	assert.True(t, errors.Is(err, generic.ErrForbidden))

	_, err = f.svc.GlobalStats(ctx, coachA)
	assert.True(t, errors.Is(err, generic.ErrForbidden))

	coaches, err := f.svc.ListCoaches(ctx, coachA)
	require.NoError(t, err)
	assert.Len(t, coaches, 1)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestExecute_Envelope(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, admin, oneOff("coach-a"))
	require.NoError(t, err)

	cmd, err := factory.ParseCommand([]byte(fmt.Sprintf(
		`{"type":"book_student","payload":{"session_id":%q,"name":"Ana","email":"ana@example.com"}}`, sess.ID)))
	require.NoError(t, err)

	out, err := f.svc.Execute(ctx, student, cmd)
	require.NoError(t, err)
	booked, ok := out.(*generic.Session)
	require.True(t, ok)
	assert.Len(t, booked.Students, 1)

	pay := f.payments(t, sess.ID)[0]
	cmd, err = factory.ParseCommand([]byte(fmt.Sprintf(`{"type":"mark_paid","payload":{"payment_id":%q}}`, pay.ID)))
	require.NoError(t, err)
	_, err = f.svc.Execute(ctx, coachA, cmd)
	assert.True(t, errors.Is(err, generic.ErrForbidden))
}
