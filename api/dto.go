/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Hours and amounts are decimal.Decimal, which encodes as a JSON string
  ("60", "1.5"). Clients never see a float.

REQUEST BODIES:
  Mutations reuse the factory command structs as request bodies, so the REST
  routes and POST /api/commands validate identically.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/commands.go: Command variants
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/coaching"
	"github.com/warp/coaching-engine/generic"
	"github.com/warp/coaching-engine/payroll"
)

// =============================================================================
// SESSIONS
// =============================================================================

type BookingDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	BookedAt string `json:"booked_at"`
}

// SessionDTO represents a session, template or instance.
type SessionDTO struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Start          string       `json:"start"`
	End            string       `json:"end"`
	Hours          string       `json:"hours"`
	Coaches        []string     `json:"coaches"`
	Recurring      bool         `json:"recurring"`
	Active         bool         `json:"active,omitempty"`
	DaysOfWeek     []int        `json:"days_of_week,omitempty"`
	TemplateID     string       `json:"template_id,omitempty"`
	OccurrenceDate string       `json:"occurrence_date,omitempty"`
	MaxStudents    int          `json:"max_students"`
	SeatsLeft      int          `json:"seats_left"`
	Students       []BookingDTO `json:"students"`
	Paid           bool         `json:"paid"`
	Version        int          `json:"version"`
	CreatedAt      string       `json:"created_at,omitempty"`
}

func toSessionDTO(s *generic.Session) SessionDTO {
	dto := SessionDTO{
		ID:             string(s.ID),
		Name:           s.Name,
		Description:    s.Description,
		Start:          s.Window.Start.Format(time.RFC3339),
		End:            s.Window.End.Format(time.RFC3339),
		Hours:          s.Window.Hours().String(),
		Coaches:        make([]string, len(s.Coaches)),
		TemplateID:     string(s.TemplateID),
		OccurrenceDate: s.OccurrenceDate,
		MaxStudents:    s.MaxStudents,
		SeatsLeft:      s.SeatsLeft(),
		Students:       make([]BookingDTO, len(s.Students)),
		Paid:           s.Paid,
		Version:        s.Version,
	}
	for i, c := range s.Coaches {
		dto.Coaches[i] = string(c)
	}
	for i, b := range s.Students {
		dto.Students[i] = BookingDTO{Name: b.Name, Email: b.Email, BookedAt: b.BookedAt.Format(time.RFC3339)}
	}
	if s.Recurrence != nil {
		dto.Recurring = true
		dto.Active = s.Recurrence.Active
		dto.DaysOfWeek = s.Recurrence.Days.Ints()
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toSessionDTOs(sessions []*generic.Session) []SessionDTO {
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	return dtos
}

// RescheduleRequest moves a session.
type RescheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SessionDetailsRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CapacityRequest struct {
	MaxStudents int `json:"max_students"`
}

type AssignCoachRequest struct {
	CoachID string `json:"coach_id"`
}

type BookingRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ExpandRequest expands over [from, from+days). Empty from means today.
type ExpandRequest struct {
	From string `json:"from,omitempty"`
	Days int    `json:"days,omitempty"`
}

type ExpansionDTO struct {
	TemplateID string       `json:"template_id"`
	Created    []SessionDTO `json:"created"`
	Existing   int          `json:"existing"`
	Payments   int          `json:"payments"`
}

func toExpansionDTO(r *coaching.ExpansionResult) ExpansionDTO {
	return ExpansionDTO{
		TemplateID: string(r.TemplateID),
		Created:    toSessionDTOs(r.Created),
		Existing:   r.Existing,
		Payments:   r.Payments,
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	CoachID     string          `json:"coach_id"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	AmountOwed  decimal.Decimal `json:"amount_owed"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	PaidAt      *string         `json:"paid_at,omitempty"`
	CancelledAt *string         `json:"cancelled_at,omitempty"`
	Version     int             `json:"version"`
}

func toPaymentDTO(p *generic.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		SessionID:   string(p.SessionID),
		CoachID:     string(p.CoachID),
		Hours:       p.Hours,
		Rate:        p.Rate,
		AmountOwed:  p.AmountOwed,
		AmountPaid:  p.AmountPaid,
		Remaining:   p.Remaining(),
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		PaidAt:      timePtr(p.PaidAt),
		CancelledAt: timePtr(p.CancelledAt),
		Version:     p.Version,
	}
}

func toPaymentDTOs(payments []*generic.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

// =============================================================================
// COACHES AND REPORTS
// =============================================================================

type CoachDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email,omitempty"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

func toCoachDTO(c generic.Coach) CoachDTO {
	return CoachDTO{ID: string(c.ID), Name: c.Name, Email: c.Email, HourlyRate: c.HourlyRate}
}

type CoachProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type UpdateRateRequest struct {
	HourlyRate decimal.Decimal `json:"hourly_rate"`
}

type CoachSummaryDTO struct {
	CoachID         string          `json:"coach_id"`
	Name            string          `json:"name"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	TotalHours      decimal.Decimal `json:"total_hours"`
	TotalOwed       decimal.Decimal `json:"total_owed"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	UnpaidSessions  int             `json:"unpaid_sessions"`
	PaymentCount    int             `json:"payment_count"`
}

func toCoachSummaryDTO(s payroll.CoachSummary) CoachSummaryDTO {
	return CoachSummaryDTO{
		CoachID:         string(s.CoachID),
		Name:            s.Name,
		HourlyRate:      s.HourlyRate,
		TotalHours:      s.TotalHours,
		TotalOwed:       s.TotalOwed,
		TotalPaid:       s.TotalPaid,
		RemainingAmount: s.RemainingAmount,
		UnpaidSessions:  s.UnpaidSessions,
		PaymentCount:    s.PaymentCount,
	}
}

type GlobalStatsDTO struct {
	TotalCoaches  int             `json:"total_coaches"`
	TotalSessions int             `json:"total_sessions"`
	TotalHours    decimal.Decimal `json:"total_hours"`
	TotalPayments decimal.Decimal `json:"total_payments"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
}

type MonthDTO struct {
	Month string          `json:"month"` // YYYY-MM
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type EarningsDTO struct {
	CoachID     string          `json:"coach_id"`
	TotalEarned decimal.Decimal `json:"total_earned"`
	Pending     decimal.Decimal `json:"pending"`
	ThisMonth   decimal.Decimal `json:"this_month"`
	Monthly     []MonthDTO      `json:"monthly"`
	Recent      []PaymentDTO    `json:"recent"`
}

func toEarningsDTO(coachID string, e payroll.Earnings) EarningsDTO {
	dto := EarningsDTO{
		CoachID:     coachID,
		TotalEarned: e.TotalEarned,
		Pending:     e.Pending,
		ThisMonth:   e.ThisMonth,
		Monthly:     make([]MonthDTO, len(e.Monthly)),
		Recent:      toPaymentDTOs(e.Recent),
	}
	for i, m := range e.Monthly {
		dto.Monthly[i] = MonthDTO{Month: m.Label(), Total: m.Total, Count: m.Count}
	}
	return dto
}

// =============================================================================
// AUTH AND SCENARIOS
// =============================================================================

type TokenRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
