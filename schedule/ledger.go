package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/coaching-engine/generic"
)

// =============================================================================
// ASSIGNMENT LEDGER - coach and student membership of a session
// =============================================================================

// Ledger applies membership changes to a copy of a Session. On error the
// input is untouched and no copy is returned.
type Ledger struct {
	now func() time.Time
}

// NewLedger uses now for booking timestamps. A nil now means time.Now.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

type ChangeKind string

const (
	ChangeCoachAssigned    ChangeKind = "coach_assigned"
	ChangeCoachUnassigned  ChangeKind = "coach_unassigned"
	ChangeStudentBooked    ChangeKind = "student_booked"
	ChangeBookingCancelled ChangeKind = "booking_cancelled"
	ChangeRescheduled      ChangeKind = "rescheduled"
	ChangeCapacity         ChangeKind = "capacity_changed"
	ChangeDetails          ChangeKind = "details_changed"
)

// Change describes what a ledger operation did, so the caller can run the
// follow-up payroll work in the same transaction.
type Change struct {
	Kind      ChangeKind
	SessionID generic.SessionID
	CoachID   generic.CoachID
	Email     string

	// NeedsPayment: a billable session gained a coach.
	NeedsPayment bool
	// DropsPayment: a billable session lost a coach; its pending payment goes.
	DropsPayment bool
}

// =============================================================================
// COACHES
// =============================================================================

func (l *Ledger) AssignCoach(s *generic.Session, coachID generic.CoachID) (*generic.Session, Change, error) {
	id := string(s.ID)
	if coachID == "" {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, id, "coaches", "coach id is required")
	}
	if s.HasCoach(coachID) {
		return nil, Change{}, generic.NewEngineError(generic.ErrDuplicateAssignment, id, "coaches", string(coachID))
	}

	next := s.Clone()
	next.Coaches = generic.SortCoachIDs(append(next.Coaches, coachID))
	next.UpdatedAt = l.now()

	return next, Change{
		Kind:         ChangeCoachAssigned,
		SessionID:    s.ID,
		CoachID:      coachID,
		NeedsPayment: !s.IsTemplate(),
	}, nil
}

func (l *Ledger) UnassignCoach(s *generic.Session, coachID generic.CoachID) (*generic.Session, Change, error) {
	id := string(s.ID)
	if !s.HasCoach(coachID) {
		return nil, Change{}, generic.NewEngineError(generic.ErrNotAssigned, id, "coaches", string(coachID))
	}
	if s.IsActiveTemplate() && len(s.Coaches) == 1 {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, id, "coaches",
			"cannot remove the last coach of an active recurring session")
	}

	next := s.Clone()
	kept := next.Coaches[:0]
	for _, c := range next.Coaches {
		if c != coachID {
			kept = append(kept, c)
		}
	}
	next.Coaches = kept
	next.UpdatedAt = l.now()

	return next, Change{
		Kind:         ChangeCoachUnassigned,
		SessionID:    s.ID,
		CoachID:      coachID,
		DropsPayment: !s.IsTemplate(),
	}, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

// BookStudent checks capacity before duplicates: a full session reports
// SessionFull even for an already-booked email.
func (l *Ledger) BookStudent(s *generic.Session, student generic.Booking) (*generic.Session, Change, error) {
	id := string(s.ID)
	email := strings.TrimSpace(student.Email)
	if email == "" {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, id, "students", "student email is required")
	}
	if s.IsTemplate() {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, id, "students",
			"recurring templates are not bookable, book one of their instances")
	}
	if len(s.Students) >= s.MaxStudents {
		return nil, Change{}, generic.NewEngineError(generic.ErrSessionFull, id, "capacity",
			fmt.Sprintf("%d of %d seats taken", len(s.Students), s.MaxStudents))
	}
	if s.HasBooking(email) {
		return nil, Change{}, generic.NewEngineError(generic.ErrDuplicateBooking, id, "students", email)
	}

	next := s.Clone()
	next.Students = append(next.Students, generic.Booking{
		Name:     strings.TrimSpace(student.Name),
		Email:    email,
		BookedAt: l.now(),
	})
	next.UpdatedAt = next.Students[len(next.Students)-1].BookedAt

	return next, Change{Kind: ChangeStudentBooked, SessionID: s.ID, Email: email}, nil
}

func (l *Ledger) CancelBooking(s *generic.Session, email string) (*generic.Session, Change, error) {
	i := s.BookingIndex(strings.TrimSpace(email))
	if i < 0 {
		return nil, Change{}, generic.NewEngineError(generic.ErrBookingNotFound, string(s.ID), "students", email)
	}

	next := s.Clone()
	next.Students = append(next.Students[:i], next.Students[i+1:]...)
	next.UpdatedAt = l.now()

	return next, Change{Kind: ChangeBookingCancelled, SessionID: s.ID, Email: s.Students[i].Email}, nil
}

// =============================================================================
// WINDOW AND CAPACITY
// =============================================================================

// Reschedule moves the session. Existing payments keep their frozen hours.
func (l *Ledger) Reschedule(s *generic.Session, start, end time.Time) (*generic.Session, Change, error) {
	if !start.Before(end) {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, string(s.ID), "window",
			fmt.Sprintf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)))
	}
	w := generic.TimeWindow{Start: start, End: end}

	next := s.Clone()
	next.Window = w
	next.UpdatedAt = l.now()
	return next, Change{Kind: ChangeRescheduled, SessionID: s.ID}, nil
}

// UpdateDetails renames a session or replaces its description. A nil field is
// left as is. Instances keep the name they were expanded with.
func (l *Ledger) UpdateDetails(s *generic.Session, name, description *string) (*generic.Session, Change, error) {
	next := s.Clone()
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, string(s.ID), "name", "name is required")
		}
		next.Name = trimmed
	}
	if description != nil {
		next.Description = strings.TrimSpace(*description)
	}
	next.UpdatedAt = l.now()
	return next, Change{Kind: ChangeDetails, SessionID: s.ID}, nil
}

func (l *Ledger) SetCapacity(s *generic.Session, max int) (*generic.Session, Change, error) {
	id := string(s.ID)
	if max < 0 {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, id, "capacity", "max students must be >= 0")
	}
	if max < len(s.Students) {
		return nil, Change{}, generic.NewEngineError(generic.ErrInvariantViolation, id, "capacity",
			fmt.Sprintf("%d students already booked, cannot reduce capacity to %d", len(s.Students), max))
	}

	next := s.Clone()
	next.MaxStudents = max
	next.UpdatedAt = l.now()
	return next, Change{Kind: ChangeCapacity, SessionID: s.ID}, nil
}
