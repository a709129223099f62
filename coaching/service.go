/*
Package coaching wires the engine to storage, locking and events.

PURPOSE:
  Service is the caller-integration layer. Each operation:
    1. checks the Principal
    2. takes the per-aggregate lock(s) (lock.SessionKey, lock.PaymentKey)
    3. loads aggregates, runs the pure schedule/payroll functions and writes
       the results inside one TxStore.WithTx
    4. publishes events after commit

  The engine packages stay single-threaded per aggregate. The lock makes
  check-then-write sequences (book the last seat, mark a payment paid)
  atomic across goroutines, and the store's optimistic versions catch
  anything that bypasses the lock.

LOCK ORDER:
  Session before payment. Operations that touch a payment's session lock the
  session key first.

PAYMENTS ARE AUTOMATIC:
  A non-template session gets one pending payment per coach: when it is
  created, when an instance is expanded, and when a coach is assigned.
  Unassigning a coach deletes their payment only while it is still pending.
  Templates never carry payments.

SEE ALSO:
  - sessions.go: Session, booking and expansion operations
  - payments.go: Payment lifecycle
  - reports.go: Dashboards
  - execute.go: Command dispatch
*/
package coaching

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/coaching-engine/events"
	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/lock"
	"github.com/warp/coaching-engine/payroll"
	"github.com/warp/coaching-engine/schedule"
)

// DefaultHorizonDays is how far ahead templates are expanded by default.
const DefaultHorizonDays = 28

type Service struct {
	store     generic.TxStore
	locker    lock.Locker
	publisher events.Publisher

	expander *schedule.Expander
	ledger   *schedule.Ledger
	payroll  *payroll.Engine
	reporter *payroll.Reporter

	loc         *time.Location
	now         func() time.Time
	newID       func() generic.SessionID
	horizonDays int
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithLocation sets the calendar used for expansion dates and monthly buckets.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithHorizonDays(days int) Option { return func(s *Service) { s.horizonDays = days } }

func WithSessionIDs(newID func() generic.SessionID) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store generic.TxStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		locker:      lock.NewKeyedMutex(),
		publisher:   events.Noop{},
		loc:         time.UTC,
		now:         time.Now,
		newID:       func() generic.SessionID { return generic.SessionID(uuid.NewString()) },
		horizonDays: DefaultHorizonDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	s.expander = schedule.NewExpander(s.loc)
	s.ledger = schedule.NewLedger(s.now)
	s.payroll = payroll.NewEngine(payroll.WithClock(s.now))
	s.reporter = payroll.NewReporter(s.loc, s.now)
	return s
}

func (s *Service) Location() *time.Location { return s.loc }
func (s *Service) HorizonDays() int         { return s.horizonDays }

// Today is midnight of the current date in the service location.
func (s *Service) Today() time.Time { return generic.StartOfDay(s.now(), s.loc) }

// =============================================================================
// AUTHORIZATION
// =============================================================================

func requireAdmin(p generic.Principal, action string) error {
	if !p.IsAdmin() {
		return forbidden(p, action)
	}
	return nil
}

func requireCoachView(p generic.Principal, coachID generic.CoachID, action string) error {
	if !p.CanViewCoach(coachID) {
		return forbidden(p, action)
	}
	return nil
}

func forbidden(p generic.Principal, action string) error {
	role := string(p.Role)
	if role == "" {
		role = "anonymous"
	}
	return fmt.Errorf("%w: %s may not %s", generic.ErrForbidden, role, action)
}

// =============================================================================
// LOCKING AND PUBLISHING
// =============================================================================

// locked runs fn while holding every key, acquired in order.
func (s *Service) locked(ctx context.Context, keys []string, fn func() error) error {
	for _, key := range keys {
		release, err := s.locker.Lock(ctx, key)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		defer release()
	}
	return fn()
}

// publish never fails the caller: the change is already committed.
func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, e); err != nil {
			log.Printf("[Service] publish %s %s failed: %v", e.Type, e.AggregateID, err)
		}
	}
}

func paymentEvent(t events.Type, p *generic.Payment, actor generic.Principal) events.Event {
	return events.New(t, string(p.ID), actor.ID, map[string]any{
		"session_id":  string(p.SessionID),
		"coach_id":    string(p.CoachID),
		"amount_owed": p.AmountOwed.String(),
		"amount_paid": p.AmountPaid.String(),
		"status":      string(p.Status),
	})
}

// =============================================================================
// PAYROLL FOLLOW-UPS (run inside a transaction)
// =============================================================================

// billCoaches creates a pending payment for every coach of sess that has
// none yet, and refreshes sess.Paid. It does not save sess.
func (s *Service) billCoaches(ctx context.Context, repo generic.Repository, sess *generic.Session, coaches []generic.CoachID) ([]*generic.Payment, error) {
	if sess.IsTemplate() {
		return nil, nil
	}
	existing, err := repo.ListPayments(ctx, generic.PaymentFilter{SessionID: sess.ID})
	if err != nil {
		return nil, err
	}

	var created []*generic.Payment
	for _, coachID := range coaches {
		if hasPaymentFor(existing, coachID) {
			continue
		}
		coach, err := repo.GetCoach(ctx, coachID)
		if err != nil {
			return nil, fmt.Errorf("coach %s: %w", coachID, err)
		}
		p, err := s.payroll.CreatePayment(ctx, sess, coach, existing)
		if err != nil {
			return nil, err
		}
		if err := repo.SavePayment(ctx, p); err != nil {
			return nil, err
		}
		existing = append(existing, p)
		created = append(created, p)
	}
	sess.Paid = payroll.SessionPaid(existing)
	return created, nil
}

func hasPaymentFor(payments []*generic.Payment, coachID generic.CoachID) bool {
	for _, p := range payments {
		if p.CoachID == coachID {
			return true
		}
	}
	return false
}

// refreshPaid recomputes the paid flag of a session and saves it when it changed.
func (s *Service) refreshPaid(ctx context.Context, repo generic.Repository, sessionID generic.SessionID) error {
	sess, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	payments, err := repo.ListPayments(ctx, generic.PaymentFilter{SessionID: sessionID})
	if err != nil {
		return err
	}
	paid := payroll.SessionPaid(payments)
	if sess.Paid == paid {
		return nil
	}
	sess.Paid = paid
	sess.UpdatedAt = s.now()
	return repo.SaveSession(ctx, sess)
}
