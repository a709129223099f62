/*
session.go - The Session aggregate

PURPOSE:
  A Session is a bounded time window with assigned coaches and, optionally,
  bookable seats for students. A Session carrying a Recurrence is a template:
  the schedule package expands it into concrete instances, one per matching
  calendar date, each pointing back through TemplateID + OccurrenceDate.

INVARIANTS (checked by Validate after every mutation):
  1. Window.Start < Window.End
  2. An active template has at least one coach
  3. MaxStudents >= 0 and no duplicate student emails

PAID FLAG:
  Paid is a cache of "every payment of this session is paid". It is never
  set by callers. payroll.SessionPaid recomputes it inside the same
  transaction that changes the payments.

SEE ALSO:
  - schedule/ledger.go: Coach and student mutations
  - schedule/recurrence.go: Template expansion
  - payment.go: Payment aggregate
*/
package generic

import (
	"fmt"
	"strings"
	"time"
)

// Recurrence marks a Session as a template.
type Recurrence struct {
	Days   DaySet
	Active bool
}

// Booking is one student seat on a session.
type Booking struct {
	Name     string
	Email    string
	BookedAt time.Time
}

type Session struct {
	ID          SessionID
	Name        string
	Description string
	Window      TimeWindow
	Coaches     []CoachID // sorted, no duplicates

	Recurrence *Recurrence

	// Set on instances produced by expansion.
	TemplateID     SessionID
	OccurrenceDate string // YYYY-MM-DD

	MaxStudents int
	Students    []Booking

	Paid bool

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Session) IsTemplate() bool { return s.Recurrence != nil }

func (s *Session) IsActiveTemplate() bool {
	return s.Recurrence != nil && s.Recurrence.Active
}

func (s *Session) IsInstance() bool { return s.TemplateID != "" }

func (s *Session) HasCoach(id CoachID) bool {
	for _, c := range s.Coaches {
		if c == id {
			return true
		}
	}
	return false
}

// HasBooking matches emails case-insensitively.
func (s *Session) HasBooking(email string) bool {
	return s.bookingIndex(email) >= 0
}

func (s *Session) bookingIndex(email string) int {
	for i, b := range s.Students {
		if strings.EqualFold(b.Email, email) {
			return i
		}
	}
	return -1
}

// BookingIndex returns the position of the booking for email, or -1.
func (s *Session) BookingIndex(email string) int { return s.bookingIndex(email) }

func (s *Session) SeatsLeft() int {
	left := s.MaxStudents - len(s.Students)
	if left < 0 {
		return 0
	}
	return left
}

func (s *Session) IsBookable() bool { return s.SeatsLeft() > 0 }

// OccurrenceKey identifies an expanded instance. Empty for non-instances.
func (s *Session) OccurrenceKey() string {
	if !s.IsInstance() {
		return ""
	}
	return OccurrenceKey(s.TemplateID, s.OccurrenceDate)
}

func OccurrenceKey(templateID SessionID, date string) string {
	return string(templateID) + "@" + date
}

// =============================================================================
// VALIDATION
// =============================================================================

func (s *Session) Validate() error {
	id := string(s.ID)
	if !s.Window.Valid() {
		return NewEngineError(ErrInvariantViolation, id, "window",
			fmt.Sprintf("start must be before end, got %s", s.Window))
	}
	if s.IsActiveTemplate() && len(s.Coaches) == 0 {
		return NewEngineError(ErrInvariantViolation, id, "coaches",
			"an active recurring session needs at least one coach")
	}
	if s.Recurrence != nil && s.Recurrence.Days.IsEmpty() {
		return NewEngineError(ErrInvalidRecurrence, id, "days_of_week", "recurrence needs at least one weekday")
	}
	if s.MaxStudents < 0 {
		return NewEngineError(ErrInvariantViolation, id, "capacity", "max students must be >= 0")
	}
	seen := make(map[string]bool, len(s.Students))
	for _, b := range s.Students {
		key := strings.ToLower(b.Email)
		if seen[key] {
			return NewEngineError(ErrDuplicateBooking, id, "students", b.Email)
		}
		seen[key] = true
	}
	return nil
}

// =============================================================================
// COPY
// =============================================================================

// Clone returns a deep copy. Ledger operations mutate clones only.
func (s *Session) Clone() *Session {
	c := *s
	c.Coaches = append([]CoachID(nil), s.Coaches...)
	c.Students = append([]Booking(nil), s.Students...)
	if s.Recurrence != nil {
		r := *s.Recurrence
		c.Recurrence = &r
	}
	return &c
}
