/*
store.go - Repository interfaces for sessions, payments and coaches

PURPOSE:
  Defines the interface between the engine and the database. The engine
  packages never see SQL: coaching.Service loads aggregates through these
  interfaces, runs the pure schedule/payroll functions, and writes the
  results back inside one transaction.

KEY INTERFACES:
  SessionStore:  Session aggregates (templates and instances)
  PaymentStore:  Payment aggregates
  CoachRegistry: Read-only coach rates, consumed by payroll
  CoachStore:    CoachRegistry plus writes, used by the admin surface
  TxStore:       All of the above with atomic multi-aggregate writes

OPTIMISTIC VERSIONS:
  Save* inserts when Version == 0 and otherwise updates only if the stored
  version still equals the caller's. On success the aggregate's Version is
  incremented in place. A stale write returns ErrConcurrentModification.

UNIQUENESS:
  - One payment per (session, coach): SavePayment returns ErrDuplicatePayment
  - One instance per (template, date): SaveSession returns ErrDuplicateOccurrence

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for tests and development

SEE ALSO:
  - coaching/service.go: The only caller of WithTx
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// SessionFilter narrows ListSessions. Zero values mean "any".
type SessionFilter struct {
	CoachID       CoachID
	TemplateID    SessionID
	TemplatesOnly bool
	From          time.Time // window start >= From
	To            time.Time // window start < To
}

func (f SessionFilter) Matches(s *Session) bool {
	if f.CoachID != "" && !s.HasCoach(f.CoachID) {
		return false
	}
	if f.TemplateID != "" && s.TemplateID != f.TemplateID {
		return false
	}
	if f.TemplatesOnly && !s.IsTemplate() {
		return false
	}
	if !f.From.IsZero() && s.Window.Start.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.Window.Start.Before(f.To) {
		return false
	}
	return true
}

// PaymentFilter narrows ListPayments. Zero values mean "any".
type PaymentFilter struct {
	SessionID SessionID
	CoachID   CoachID
	Status    PaymentStatus
}

func (f PaymentFilter) Matches(p *Payment) bool {
	if f.SessionID != "" && p.SessionID != f.SessionID {
		return false
	}
	if f.CoachID != "" && p.CoachID != f.CoachID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

// =============================================================================
// STORES
// =============================================================================

type SessionStore interface {
	// GetSession returns ErrSessionNotFound when absent.
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// SaveSession inserts or version-checked updates s.
	SaveSession(ctx context.Context, s *Session) error

	// ListSessions returns matches ordered by window start, then id.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)

	// DeleteSession returns ErrSessionNotFound when absent. It does not
	// cascade: callers delete payments in the same transaction.
	DeleteSession(ctx context.Context, id SessionID) error
}

type PaymentStore interface {
	// GetPayment returns ErrPaymentNotFound when absent.
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)

	SavePayment(ctx context.Context, p *Payment) error

	// ListPayments returns matches newest first (CreatedAt desc, then id).
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*Payment, error)

	DeletePayment(ctx context.Context, id PaymentID) error

	// DeletePaymentsBySession removes every payment of a session.
	DeletePaymentsBySession(ctx context.Context, id SessionID) error
}

// CoachRegistry is the read-only view the payroll engine needs.
type CoachRegistry interface {
	// GetCoach returns ErrCoachNotFound when absent.
	GetCoach(ctx context.Context, id CoachID) (Coach, error)
	ListCoaches(ctx context.Context) ([]Coach, error)
}

type CoachStore interface {
	CoachRegistry
	// SaveCoach upserts by id.
	SaveCoach(ctx context.Context, c Coach) error
}

// Repository groups the stores a single transaction can touch.
type Repository interface {
	SessionStore
	PaymentStore
	CoachStore
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Repository with transaction support.
type TxStore interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
