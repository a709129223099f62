/*
payment.go - The Payment aggregate

PURPOSE:
  A Payment records what one coach is owed for one session. Hours, rate and
  amount owed are captured when the payment is created and never change:
  a later rate change or window edit does not touch existing payments.

STATE MACHINE:
  pending --MarkPaid--> paid        (amountPaid = amountOwed)
  pending --Cancel----> cancelled   (amountPaid unchanged)
  paid and cancelled are terminal. Every other transition is rejected
  with ErrInvalidTransition (see payroll/engine.go).

SEE ALSO:
  - payroll/engine.go: Creation and transitions
  - payroll/report.go: Aggregations over payments
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentPaid || s == PaymentCancelled
}

type Payment struct {
	ID        PaymentID
	SessionID SessionID
	CoachID   CoachID

	Hours      decimal.Decimal
	Rate       decimal.Decimal
	AmountOwed decimal.Decimal
	AmountPaid decimal.Decimal

	Status      PaymentStatus
	CreatedAt   time.Time
	PaidAt      *time.Time
	CancelledAt *time.Time

	Version int
}

// Remaining is what is still owed on this payment.
func (p *Payment) Remaining() decimal.Decimal {
	return p.AmountOwed.Sub(p.AmountPaid)
}

func (p *Payment) Validate() error {
	id := string(p.ID)
	if !p.Status.Valid() {
		return NewEngineError(ErrInvariantViolation, id, "status", fmt.Sprintf("unknown status %q", p.Status))
	}
	if p.AmountPaid.IsNegative() || p.AmountPaid.GreaterThan(p.AmountOwed) {
		return NewEngineError(ErrInvariantViolation, id, "amount_paid",
			fmt.Sprintf("amount paid %s must be within [0, %s]", p.AmountPaid, p.AmountOwed))
	}
	if p.Hours.IsNegative() || p.Rate.IsNegative() {
		return NewEngineError(ErrInvariantViolation, id, "amount_owed", "hours and rate must be >= 0")
	}
	return nil
}

func (p *Payment) Clone() *Payment {
	c := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
