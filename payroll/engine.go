/*
Package payroll derives what coaches are owed and tracks what has been paid.

PURPOSE:
  The Engine turns a (session, coach) pair into a Payment and moves payments
  through their state machine. The Reporter rolls payments and sessions up
  into dashboard figures. Both are pure: no storage, no clocks except the
  injected one.

FROZEN AMOUNTS:
  Hours, rate and amount owed are captured at creation and never change.
  A coach rate change or a session reschedule leaves existing payments
  alone. Applying a new rate means cancelling and creating a new payment.

PRECISION:
  Hours and money are decimal.Decimal. Nothing in this package rounds:
  20 minutes is 1/3 hour to full decimal precision, and rounding to cents is
  a display concern (generic.RoundCents).

SEE ALSO:
  - generic/payment.go: Payment aggregate and statuses
  - report.go: Aggregations
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/generic"
)

// ComputeHours returns the elapsed hours of w, unrounded.
func ComputeHours(w generic.TimeWindow) decimal.Decimal {
	return w.Hours()
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	now   func() time.Time
	newID func() generic.PaymentID
}

type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs overrides random UUID payment ids.
func WithIDs(newID func() generic.PaymentID) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: func() generic.PaymentID { return generic.PaymentID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreatePayment prices coach's work on session. existing is the session's
// current payments, used to enforce one payment per (session, coach).
func (e *Engine) CreatePayment(ctx context.Context, session *generic.Session, coach generic.Coach, existing []*generic.Payment) (*generic.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sid := string(session.ID)
	if !session.HasCoach(coach.ID) {
		return nil, generic.NewEngineError(generic.ErrInvariantViolation, sid, "coaches",
			fmt.Sprintf("coach %s is not assigned to the session", coach.ID))
	}
	if err := coach.Validate(); err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.SessionID == session.ID && p.CoachID == coach.ID {
			return nil, generic.NewEngineError(generic.ErrDuplicatePayment, sid, "payments",
				fmt.Sprintf("payment %s already exists for coach %s", p.ID, coach.ID))
		}
	}

	hours := ComputeHours(session.Window)
	p := &generic.Payment{
		ID:         e.newID(),
		SessionID:  session.ID,
		CoachID:    coach.ID,
		Hours:      hours,
		Rate:       coach.HourlyRate,
		AmountOwed: hours.Mul(coach.HourlyRate),
		AmountPaid: decimal.Zero,
		Status:     generic.PaymentPending,
		CreatedAt:  e.now(),
	}
	return p, p.Validate()
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// MarkPaid moves a pending payment to paid, settling it in full.
func (e *Engine) MarkPaid(p *generic.Payment) (*generic.Payment, error) {
	if err := e.requirePending(p, generic.PaymentPaid); err != nil {
		return nil, err
	}
	next := p.Clone()
	now := e.now()
	next.Status = generic.PaymentPaid
	next.AmountPaid = next.AmountOwed
	next.PaidAt = &now
	return next, nil
}

// Cancel moves a pending payment to cancelled. AmountPaid is left as is.
func (e *Engine) Cancel(p *generic.Payment) (*generic.Payment, error) {
	if err := e.requirePending(p, generic.PaymentCancelled); err != nil {
		return nil, err
	}
	next := p.Clone()
	now := e.now()
	next.Status = generic.PaymentCancelled
	next.CancelledAt = &now
	return next, nil
}

func (e *Engine) requirePending(p *generic.Payment, to generic.PaymentStatus) error {
	if p.Status != generic.PaymentPending {
		return generic.NewEngineError(generic.ErrInvalidTransition, string(p.ID), "status",
			fmt.Sprintf("%s -> %s", p.Status, to))
	}
	return nil
}

// SessionPaid is the session's paid flag: every payment is paid.
// A session without payments is paid.
func SessionPaid(payments []*generic.Payment) bool {
	for _, p := range payments {
		if p.Status != generic.PaymentPaid {
			return false
		}
	}
	return true
}
