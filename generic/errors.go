/*
errors.go - Centralized error types for the coaching engine

PURPOSE:
  All error kinds in one place. Every engine failure is local validation:
  nothing here is transient, and the engine never retries.

ERROR CATEGORIES:
  1. Engine kinds - Invariant and lifecycle violations (the taxonomy)
  2. Collaborator errors - Lookups and optimistic locking in repositories
  3. Authorization - Principal not allowed to perform an operation

USAGE:
  Callers branch with errors.Is on the sentinel, and read context from the
  structured error:

    if errors.Is(err, generic.ErrSessionFull) {
        var ee *generic.EngineError
        errors.As(err, &ee)
        log.Printf("session %s is full", ee.AggregateID)
    }

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRecurrence is returned when a template or horizon cannot be expanded.
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrInvariantViolation is returned when a mutation would break a data-model invariant.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrDuplicateAssignment is returned when a coach is already on the session.
	ErrDuplicateAssignment = errors.New("coach already assigned")

	// ErrNotAssigned is returned when removing a coach that is not on the session.
	ErrNotAssigned = errors.New("coach not assigned")

	// ErrSessionFull is returned when a booking would exceed capacity.
	ErrSessionFull = errors.New("session is full")

	// ErrDuplicateBooking is returned when the student's email is already booked.
	ErrDuplicateBooking = errors.New("student already booked")

	// ErrBookingNotFound is returned when cancelling a booking that does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrDuplicatePayment is returned when a (session, coach) pair already has a payment.
	ErrDuplicatePayment = errors.New("payment already exists for session and coach")

	// ErrInvalidTransition is returned for any payment status change out of a terminal state.
	ErrInvalidTransition = errors.New("invalid payment status transition")
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrCoachNotFound   = errors.New("coach not found")

	// ErrDuplicateOccurrence is returned when an instance for (template, date) already exists.
	ErrDuplicateOccurrence = errors.New("occurrence already exists")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrForbidden is returned when the principal's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
)

// =============================================================================
// STRUCTURED ERROR - Carries aggregate and invariant context
// =============================================================================

// EngineError wraps one of the sentinel kinds with enough context for the
// caller to build a user-facing message.
type EngineError struct {
	Kind        error  // one of the sentinels above
	AggregateID string // session or payment id
	Invariant   string // e.g. "window", "capacity", "coaches"
	Detail      string
}

func NewEngineError(kind error, aggregateID, invariant, detail string) *EngineError {
	return &EngineError{Kind: kind, AggregateID: aggregateID, Invariant: invariant, Detail: detail}
}

func (e *EngineError) Error() string {
	msg := e.Kind.Error()
	if e.AggregateID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.AggregateID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Kind
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

var kindNames = []struct {
	err  error
	name string
}{
	{ErrInvalidRecurrence, "invalid_recurrence"},
	{ErrInvariantViolation, "invariant_violation"},
	{ErrDuplicateAssignment, "duplicate_assignment"},
	{ErrNotAssigned, "not_assigned"},
	{ErrSessionFull, "session_full"},
	{ErrDuplicateBooking, "duplicate_booking"},
	{ErrBookingNotFound, "booking_not_found"},
	{ErrDuplicatePayment, "duplicate_payment"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrPaymentNotFound, "payment_not_found"},
	{ErrCoachNotFound, "coach_not_found"},
	{ErrDuplicateOccurrence, "duplicate_occurrence"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrForbidden, "forbidden"},
}

// KindName returns a stable snake_case name for err, or "" if it is not an engine error.
func KindName(err error) string {
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecurrence) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrNotAssigned) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsConflict returns true if the request clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateAssignment) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrSessionFull) ||
		errors.Is(err, ErrDuplicateOccurrence) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrCoachNotFound) ||
		errors.Is(err, ErrBookingNotFound)
}
