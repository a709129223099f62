/*
Package factory converts JSON requests into typed, validated commands.

PURPOSE:
  Every mutation reaches the engine as one of a closed set of command
  variants. A command is decoded from a tagged envelope, validated here, and
  only then handed to coaching.Service.Execute. The engine never sees a
  loosely-typed map.

ENVELOPE:
  {
    "type": "book_student",
    "payload": {"session_id": "s-1", "name": "Ana", "email": "ana@example.com"}
  }

VARIANTS:
  Sessions:  create_session, update_session_details, reschedule_session,
             set_capacity, delete_session, expand_template
  Coaches:   assign_coach, unassign_coach, create_coach, update_coach_profile,
             update_coach_rate
  Students:  book_student, cancel_booking
  Payments:  mark_paid, cancel_payment, delete_payment

USAGE:
  cmd, err := factory.ParseCommand(body)
  if err != nil {
      // 400: unknown type, malformed payload or failed validation
  }
  result, err := svc.Execute(ctx, principal, cmd)

SEE ALSO:
  - coaching/execute.go: Dispatch on the concrete variant
  - api/handlers.go: POST /api/commands
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/generic"
)

// ErrInvalidCommand is returned for an unknown type or an undecodable payload.
var ErrInvalidCommand = errors.New("invalid command")

// Command is implemented by every variant below.
type Command interface {
	CommandType() string
	Validate() error
}

// Envelope is the wire form of a command.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

type CreateSession struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Coaches     []string  `json:"coaches"`
	Recurring   bool      `json:"recurring"`
	DaysOfWeek  []int     `json:"days_of_week,omitempty"`
	MaxStudents *int      `json:"max_students,omitempty"` // default 1
}

func (CreateSession) CommandType() string { return "create_session" }

func (c CreateSession) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", "name is required")
	}
	if !c.Start.Before(c.End) {
		return invalid("window", "start must be before end")
	}
	if c.MaxStudents != nil && *c.MaxStudents < 0 {
		return invalid("capacity", "max students must be >= 0")
	}
	if c.Recurring {
		if len(c.DaysOfWeek) == 0 {
			return generic.NewEngineError(generic.ErrInvalidRecurrence, "", "days_of_week", "a recurring session needs at least one weekday")
		}
		if _, err := generic.DaySetFromInts(c.DaysOfWeek); err != nil {
			return err
		}
		if len(c.Coaches) == 0 {
			return invalid("coaches", "a recurring session needs at least one coach")
		}
	}
	for _, id := range c.Coaches {
		if strings.TrimSpace(id) == "" {
			return invalid("coaches", "coach ids must be non-empty")
		}
	}
	return nil
}

// Build turns a validated command into a new Session aggregate.
func (c CreateSession) Build(id generic.SessionID, now time.Time) (*generic.Session, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	max := 1
	if c.MaxStudents != nil {
		max = *c.MaxStudents
	}
	coaches := make([]generic.CoachID, 0, len(c.Coaches))
	for _, id := range c.Coaches {
		coaches = append(coaches, generic.CoachID(strings.TrimSpace(id)))
	}
	s := &generic.Session{
		ID:          id,
		Name:        strings.TrimSpace(c.Name),
		Description: c.Description,
		Window:      generic.TimeWindow{Start: c.Start, End: c.End},
		Coaches:     generic.SortCoachIDs(coaches),
		MaxStudents: max,
		Paid:        true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Recurring {
		days, _ := generic.DaySetFromInts(c.DaysOfWeek)
		s.Recurrence = &generic.Recurrence{Days: days, Active: true}
	}
	return s, s.Validate()
}

type RescheduleSession struct {
	SessionID string    `json:"session_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (RescheduleSession) CommandType() string { return "reschedule_session" }

func (c RescheduleSession) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	if !c.Start.Before(c.End) {
		return invalid("window", "start must be before end")
	}
	return nil
}

// UpdateSessionDetails changes the name and/or description; omitted fields
// are kept.
type UpdateSessionDetails struct {
	SessionID   string  `json:"session_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (UpdateSessionDetails) CommandType() string { return "update_session_details" }

func (c UpdateSessionDetails) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	if c.Name == nil && c.Description == nil {
		return invalid("details", "name or description is required")
	}
	if c.Name != nil {
		return required("name", *c.Name)
	}
	return nil
}

type SetCapacity struct {
	SessionID   string `json:"session_id"`
	MaxStudents int    `json:"max_students"`
}

func (SetCapacity) CommandType() string { return "set_capacity" }

func (c SetCapacity) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	if c.MaxStudents < 0 {
		return invalid("capacity", "max students must be >= 0")
	}
	return nil
}

type DeleteSession struct {
	SessionID string `json:"session_id"`
}

func (DeleteSession) CommandType() string { return "delete_session" }
func (c DeleteSession) Validate() error   { return required("session_id", c.SessionID) }

// ExpandTemplate expands from the given date (YYYY-MM-DD, default today)
// for Days days (default: the configured horizon).
type ExpandTemplate struct {
	TemplateID string `json:"template_id"`
	From       string `json:"from,omitempty"`
	Days       int    `json:"days,omitempty"`
}

func (ExpandTemplate) CommandType() string { return "expand_template" }

func (c ExpandTemplate) Validate() error {
	if err := required("template_id", c.TemplateID); err != nil {
		return err
	}
	if c.From != "" {
		if _, err := time.Parse("2006-01-02", c.From); err != nil {
			return generic.NewEngineError(generic.ErrInvalidRecurrence, c.TemplateID, "horizon", "from must be YYYY-MM-DD")
		}
	}
	if c.Days < 0 {
		return generic.NewEngineError(generic.ErrInvalidRecurrence, c.TemplateID, "horizon", "days must be >= 0")
	}
	return nil
}

// =============================================================================
// COACH COMMANDS
// =============================================================================

type AssignCoach struct {
	SessionID string `json:"session_id"`
	CoachID   string `json:"coach_id"`
}

func (AssignCoach) CommandType() string { return "assign_coach" }

func (c AssignCoach) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	return required("coach_id", c.CoachID)
}

type UnassignCoach struct {
	SessionID string `json:"session_id"`
	CoachID   string `json:"coach_id"`
}

func (UnassignCoach) CommandType() string { return "unassign_coach" }

func (c UnassignCoach) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	return required("coach_id", c.CoachID)
}

type CreateCoach struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

func (CreateCoach) CommandType() string { return "create_coach" }

func (c CreateCoach) Validate() error {
	if err := required("id", c.ID); err != nil {
		return err
	}
	if err := required("name", c.Name); err != nil {
		return err
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return invalid("email", "email is not a valid address")
		}
	}
	if c.HourlyRate.IsNegative() {
		return invalid("hourly_rate", "hourly rate must be >= 0")
	}
	return nil
}

func (c CreateCoach) Build() generic.Coach {
	return generic.Coach{
		ID:         generic.CoachID(strings.TrimSpace(c.ID)),
		Name:       strings.TrimSpace(c.Name),
		Email:      strings.TrimSpace(c.Email),
		HourlyRate: c.HourlyRate,
	}
}

// UpdateCoachProfile changes the name and/or email; omitted fields are kept.
// The rate has its own command since it only applies to future payments.
type UpdateCoachProfile struct {
	CoachID string  `json:"coach_id"`
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
}

func (UpdateCoachProfile) CommandType() string { return "update_coach_profile" }

func (c UpdateCoachProfile) Validate() error {
	if err := required("coach_id", c.CoachID); err != nil {
		return err
	}
	if c.Name == nil && c.Email == nil {
		return invalid("profile", "name or email is required")
	}
	if c.Name != nil {
		if err := required("name", *c.Name); err != nil {
			return err
		}
	}
	if c.Email != nil && strings.TrimSpace(*c.Email) != "" {
		if _, err := mail.ParseAddress(*c.Email); err != nil {
			return invalid("email", "email is not a valid address")
		}
	}
	return nil
}

type UpdateCoachRate struct {
	CoachID    string          `json:"coach_id"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

func (UpdateCoachRate) CommandType() string { return "update_coach_rate" }

func (c UpdateCoachRate) Validate() error {
	if err := required("coach_id", c.CoachID); err != nil {
		return err
	}
	if c.HourlyRate.IsNegative() {
		return invalid("hourly_rate", "hourly rate must be >= 0")
	}
	return nil
}

// =============================================================================
// STUDENT COMMANDS
// =============================================================================

type BookStudent struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

func (BookStudent) CommandType() string { return "book_student" }

func (c BookStudent) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	if err := required("email", c.Email); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return invalid("email", "email is not a valid address")
	}
	return nil
}

type CancelBooking struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
}

func (CancelBooking) CommandType() string { return "cancel_booking" }

func (c CancelBooking) Validate() error {
	if err := required("session_id", c.SessionID); err != nil {
		return err
	}
	return required("email", c.Email)
}

// =============================================================================
// PAYMENT COMMANDS
// =============================================================================

type MarkPaid struct {
	PaymentID string `json:"payment_id"`
}

func (MarkPaid) CommandType() string { return "mark_paid" }
func (c MarkPaid) Validate() error   { return required("payment_id", c.PaymentID) }

type CancelPayment struct {
	PaymentID string `json:"payment_id"`
}

func (CancelPayment) CommandType() string { return "cancel_payment" }
func (c CancelPayment) Validate() error   { return required("payment_id", c.PaymentID) }

type DeletePayment struct {
	PaymentID string `json:"payment_id"`
}

func (DeletePayment) CommandType() string { return "delete_payment" }
func (c DeletePayment) Validate() error   { return required("payment_id", c.PaymentID) }

// =============================================================================
// PARSING
// =============================================================================

var registry = map[string]func() Command{
	"create_session":         func() Command { return &CreateSession{} },
	"update_session_details": func() Command { return &UpdateSessionDetails{} },
	"reschedule_session":     func() Command { return &RescheduleSession{} },
	"set_capacity":           func() Command { return &SetCapacity{} },
	"delete_session":         func() Command { return &DeleteSession{} },
	"expand_template":        func() Command { return &ExpandTemplate{} },
	"assign_coach":           func() Command { return &AssignCoach{} },
	"unassign_coach":         func() Command { return &UnassignCoach{} },
	"create_coach":           func() Command { return &CreateCoach{} },
	"update_coach_profile":   func() Command { return &UpdateCoachProfile{} },
	"update_coach_rate":      func() Command { return &UpdateCoachRate{} },
	"book_student":           func() Command { return &BookStudent{} },
	"cancel_booking":         func() Command { return &CancelBooking{} },
	"mark_paid":              func() Command { return &MarkPaid{} },
	"cancel_payment":         func() Command { return &CancelPayment{} },
	"delete_payment":         func() Command { return &DeletePayment{} },
}

// Types lists every known command type.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// ParseCommand decodes an envelope and validates the payload.
// The returned Command is a pointer to one of the variants above.
func ParseCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return FromEnvelope(env)
}

func FromEnvelope(env Envelope) (Command, error) {
	ctor, ok := registry[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, env.Type)
	}
	cmd := ctor()
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s has no payload", ErrInvalidCommand, env.Type)
	}
	dec := json.NewDecoder(strings.NewReader(string(env.Payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cmd); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidCommand, env.Type, err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func invalid(field, detail string) error {
	return generic.NewEngineError(generic.ErrInvariantViolation, "", field, detail)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, field+" is required")
	}
	return nil
}
