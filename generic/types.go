/*
Package generic provides the core types of the coaching engine.

PURPOSE:
  This package holds the aggregates (Session, Payment), the value types they
  are built from (TimeWindow, DaySet, Horizon), the error taxonomy and the
  repository interfaces. It contains no I/O and no orchestration: the
  schedule and payroll packages implement the algorithms, and the coaching
  package wires them to storage.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Type-safe ids for sessions, payments and coaches
  - Money: decimal amounts (hours and currency share the same representation)
  - Coach: the read-only rate record consumed by payroll
  - Principal: the authenticated caller, passed explicitly to every operation

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for hours and money, never float64
  2. Type Safety: SessionID and CoachID cannot be mixed up
  3. Explicit context: no ambient "current user", the Principal is a parameter

SEE ALSO:
  - session.go: Session aggregate and bookings
  - payment.go: Payment aggregate and its state machine
  - time.go: TimeWindow, DaySet, Horizon
  - errors.go: Error kinds
  - store.go: Repository interfaces
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SessionID string
type PaymentID string
type CoachID string

// =============================================================================
// MONEY - decimal helpers
// =============================================================================

// NewMoney converts a float (e.g. a rate typed into a form) into a decimal.
func NewMoney(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// RoundCents rounds for display. The engine itself never rounds.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// COACH - external entity, referenced by id and rate only
// =============================================================================

type Coach struct {
	ID         CoachID
	Name       string
	Email      string
	HourlyRate decimal.Decimal
}

func (c Coach) Validate() error {
	if c.ID == "" {
		return NewEngineError(ErrInvariantViolation, string(c.ID), "coach_id", "coach id is required")
	}
	if c.HourlyRate.IsNegative() {
		return NewEngineError(ErrInvariantViolation, string(c.ID), "hourly_rate", "hourly rate must be >= 0")
	}
	return nil
}

// =============================================================================
// PRINCIPAL - authenticated caller
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCoach   Role = "coach"
	RoleStudent Role = "student"
	RoleSystem  Role = "system" // background jobs (recurrence scheduler)
)

// Principal is produced by the auth layer and handed to every operation.
type Principal struct {
	ID   string
	Role Role
}

// SystemPrincipal is used by background jobs that act with admin rights.
var SystemPrincipal = Principal{ID: "system", Role: RoleSystem}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin || p.Role == RoleSystem }

// CanViewCoach reports whether p may read data belonging to coachID.
func (p Principal) CanViewCoach(coachID CoachID) bool {
	if p.IsAdmin() {
		return true
	}
	return p.Role == RoleCoach && CoachID(p.ID) == coachID
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoach, RoleStudent, RoleSystem:
		return true
	}
	return false
}
