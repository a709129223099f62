/*
handlers.go - HTTP API handlers for the coaching engine

PURPOSE:
  Exposes coaching.Service over REST. Handles HTTP request/response and JSON
  serialization; every rule lives in the service and engine packages.

ENDPOINTS:
  Sessions:
    GET    /api/sessions                       List (coach_id, template_id, templates, from, to)
    POST   /api/sessions                       Create one-off session or template
    GET    /api/sessions/{id}                  Get session
    DELETE /api/sessions/{id}                  Delete session and its payments
    POST   /api/sessions/{id}/reschedule       Move the time window
    PUT    /api/sessions/{id}/capacity         Change max students
    POST   /api/sessions/{id}/coaches          Assign coach
    DELETE /api/sessions/{id}/coaches/{coach}  Unassign coach
    POST   /api/sessions/{id}/bookings         Book a student
    DELETE /api/sessions/{id}/bookings/{email} Cancel a booking
    POST   /api/sessions/{id}/expand           Expand one template
    POST   /api/templates/expand               Expand every active template

  Coaches:
    GET    /api/coaches                        List (admins: all, coaches: self)
    POST   /api/coaches                        Create coach
    GET    /api/coaches/{id}                   Get coach
    PUT    /api/coaches/{id}/rate              Change hourly rate (future payments only)
    GET    /api/coaches/{id}/summary           Payroll summary
    GET    /api/coaches/{id}/earnings          Earnings page (months, recent)

  Payments:
    GET    /api/payments                       List (session_id, coach_id, status)
    GET    /api/payments/{id}                  Get payment
    POST   /api/payments/{id}/paid             Mark paid
    POST   /api/payments/{id}/cancel           Cancel
    DELETE /api/payments/{id}                  Delete

  Reports:
    GET    /api/reports/coaches                Coach list with totals
    GET    /api/reports/global                 Admin dashboard

  Commands:
    POST   /api/commands                       Tagged command envelope

REQUEST FLOW:
  1. Read the Principal placed by the auth middleware
  2. Build the factory command from path and body
  3. coaching.Service.Execute validates and runs it
  4. Serialize the result as a DTO

ERROR HANDLING:
  Errors are returned as JSON {"error","details","kind"}:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid token
  - 403: Principal lacks the role
  - 404: Resource not found
  - 409: Conflict (duplicate, full, stale version, invalid transition)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Principal extraction
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/coaching-engine/coaching"
	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears every stored aggregate. Used by the demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *coaching.Service
	Auth    *Authenticator

	// DevAuth enables POST /api/auth/token.
	DevAuth bool

	resetter Resetter

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. resetter may be nil, which disables
// scenario loading.
func NewHandler(svc *coaching.Service, auth *Authenticator, resetter Resetter) *Handler {
	return &Handler{Service: svc, Auth: auth, resetter: resetter}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IssueToken signs a token for any principal. Development only.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.DevAuth {
		writeError(w, http.StatusNotFound, "Token issuance disabled", nil)
		return
	}
	var req TokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	token, exp, err := h.Auth.IssueToken(generic.Principal{ID: req.ID, Role: generic.Role(req.Role)})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339)})
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns sessions ordered by start time.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.SessionFilter{
		CoachID:       generic.CoachID(q.Get("coach_id")),
		TemplateID:    generic.SessionID(q.Get("template_id")),
		TemplatesOnly: q.Get("templates") == "true",
	}
	var err error
	if filter.From, err = h.parseDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use YYYY-MM-DD)", err)
		return
	}
	if filter.To, err = h.parseDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use YYYY-MM-DD)", err)
		return
	}

	sessions, err := h.Service.ListSessions(r.Context(), PrincipalFrom(r.Context()), filter)
	if err != nil {
		writeServiceError(w, "Failed to list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

// CreateSession creates a one-off session or a recurring template.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var cmd factory.CreateSession
	if err := decodeBody(w, r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := cmd.Validate(); err != nil {
		writeServiceError(w, "Invalid session", err)
		return
	}

	sess, err := h.Service.CreateSession(r.Context(), PrincipalFrom(r.Context()), cmd)
	if err != nil && sess == nil {
		writeServiceError(w, "Failed to create session", err)
		return
	}
	if err != nil {
		// The template is stored; the scheduler retries the expansion.
		log.Printf("[API] %v", err)
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Service.GetSession(r.Context(), PrincipalFrom(r.Context()), generic.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, &factory.DeleteSession{SessionID: chi.URLParam(r, "id")}, http.StatusOK)
}

func (h *Handler) RescheduleSession(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.RescheduleSession{
		SessionID: chi.URLParam(r, "id"),
		Start:     req.Start,
		End:       req.End,
	}, http.StatusOK)
}

func (h *Handler) UpdateSessionDetails(w http.ResponseWriter, r *http.Request) {
	var req SessionDetailsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.UpdateSessionDetails{
		SessionID:   chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
	}, http.StatusOK)
}

func (h *Handler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req CapacityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.SetCapacity{SessionID: chi.URLParam(r, "id"), MaxStudents: req.MaxStudents}, http.StatusOK)
}

func (h *Handler) AssignCoach(w http.ResponseWriter, r *http.Request) {
	var req AssignCoachRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.AssignCoach{SessionID: chi.URLParam(r, "id"), CoachID: req.CoachID}, http.StatusOK)
}

func (h *Handler) UnassignCoach(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, &factory.UnassignCoach{
		SessionID: chi.URLParam(r, "id"),
		CoachID:   chi.URLParam(r, "coachID"),
	}, http.StatusOK)
}

func (h *Handler) BookStudent(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.BookStudent{
		SessionID: chi.URLParam(r, "id"),
		Name:      req.Name,
		Email:     req.Email,
	}, http.StatusCreated)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, &factory.CancelBooking{
		SessionID: chi.URLParam(r, "id"),
		Email:     chi.URLParam(r, "email"),
	}, http.StatusOK)
}

// ExpandTemplate materializes one template's instances.
func (h *Handler) ExpandTemplate(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.ExpandTemplate{
		TemplateID: chi.URLParam(r, "id"),
		From:       req.From,
		Days:       req.Days,
	}, http.StatusOK)
}

// ExpandAllTemplates runs what the scheduler runs, on demand.
func (h *Handler) ExpandAllTemplates(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := h.parseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use YYYY-MM-DD)", err)
		return
	}
	if from.IsZero() {
		from = h.Service.Today()
	}

	results, err := h.Service.ExpandAllTemplates(r.Context(), PrincipalFrom(r.Context()), from, req.Days)
	if err != nil && len(results) == 0 {
		writeServiceError(w, "Failed to expand templates", err)
		return
	}
	dtos := make([]ExpansionDTO, len(results))
	for i, res := range results {
		dtos[i] = toExpansionDTO(res)
	}
	if err != nil {
		log.Printf("[API] partial expansion: %v", err)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COACH HANDLERS
// =============================================================================

func (h *Handler) ListCoaches(w http.ResponseWriter, r *http.Request) {
	coaches, err := h.Service.ListCoaches(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to list coaches", err)
		return
	}
	dtos := make([]CoachDTO, len(coaches))
	for i, c := range coaches {
		dtos[i] = toCoachDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCoach(w http.ResponseWriter, r *http.Request) {
	var cmd factory.CreateCoach
	if err := decodeBody(w, r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &cmd, http.StatusCreated)
}

func (h *Handler) GetCoach(w http.ResponseWriter, r *http.Request) {
	coach, err := h.Service.GetCoach(r.Context(), PrincipalFrom(r.Context()), generic.CoachID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get coach", err)
		return
	}
	writeJSON(w, http.StatusOK, toCoachDTO(coach))
}

func (h *Handler) UpdateCoachProfile(w http.ResponseWriter, r *http.Request) {
	var req CoachProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.UpdateCoachProfile{
		CoachID: chi.URLParam(r, "id"),
		Name:    req.Name,
		Email:   req.Email,
	}, http.StatusOK)
}

func (h *Handler) UpdateCoachRate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.execute(w, r, &factory.UpdateCoachRate{CoachID: chi.URLParam(r, "id"), HourlyRate: req.HourlyRate}, http.StatusOK)
}

func (h *Handler) GetCoachSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.CoachSummary(r.Context(), PrincipalFrom(r.Context()), generic.CoachID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get coach summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toCoachSummaryDTO(summary))
}

// GetEarnings accepts ?months=N&recent=M.
func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	coachID := chi.URLParam(r, "id")
	months, err := intParam(r, "months")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid months", err)
		return
	}
	recent, err := intParam(r, "recent")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recent", err)
		return
	}

	earnings, err := h.Service.Earnings(r.Context(), PrincipalFrom(r.Context()), generic.CoachID(coachID), months, recent)
	if err != nil {
		writeServiceError(w, "Failed to get earnings", err)
		return
	}
	writeJSON(w, http.StatusOK, toEarningsDTO(coachID, earnings))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.PaymentFilter{
		SessionID: generic.SessionID(q.Get("session_id")),
		CoachID:   generic.CoachID(q.Get("coach_id")),
		Status:    generic.PaymentStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown status %q", filter.Status))
		return
	}

	payments, err := h.Service.ListPayments(r.Context(), PrincipalFrom(r.Context()), filter)
	if err != nil {
		writeServiceError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	pay, err := h.Service.GetPayment(r.Context(), PrincipalFrom(r.Context()), generic.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(pay))
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, &factory.MarkPaid{PaymentID: chi.URLParam(r, "id")}, http.StatusOK)
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, &factory.CancelPayment{PaymentID: chi.URLParam(r, "id")}, http.StatusOK)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, &factory.DeletePayment{PaymentID: chi.URLParam(r, "id")}, http.StatusOK)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) CoachSummaries(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.CoachSummaries(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to build coach summaries", err)
		return
	}
	dtos := make([]CoachSummaryDTO, len(rows))
	for i, s := range rows {
		dtos[i] = toCoachSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.GlobalStats(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, "Failed to build statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, GlobalStatsDTO{
		TotalCoaches:  stats.TotalCoaches,
		TotalSessions: stats.TotalSessions,
		TotalHours:    stats.TotalHours,
		TotalPayments: stats.TotalPayments,
		TotalPaid:     stats.TotalPaid,
	})
}

// =============================================================================
// COMMAND HANDLER
// =============================================================================

// ExecuteCommand accepts {"type": "...", "payload": {...}}.
func (h *Handler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	cmd, err := factory.ParseCommand(body)
	if err != nil {
		writeServiceError(w, "Invalid command", err)
		return
	}
	h.execute(w, r, cmd, http.StatusOK)
}

// execute runs cmd as the request's principal and renders the result.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, cmd factory.Command, status int) {
	out, err := h.Service.Execute(r.Context(), PrincipalFrom(r.Context()), cmd)
	if _, create := cmd.(*factory.CreateSession); create && err != nil {
		sess, _ := out.(*generic.Session)
		if sess != nil {
			// The template is stored; the scheduler retries the expansion.
			log.Printf("[API] %v", err)
			writeJSON(w, status, toSessionDTO(sess))
			return
		}
	}
	if err != nil {
		writeServiceError(w, fmt.Sprintf("Failed to %s", cmd.CommandType()), err)
		return
	}
	writeJSON(w, status, render(out))
}

func render(out any) any {
	switch v := out.(type) {
	case *generic.Session:
		return toSessionDTO(v)
	case *generic.Payment:
		return toPaymentDTO(v)
	case generic.Coach:
		return toCoachDTO(v)
	case *coaching.ExpansionResult:
		return toExpansionDTO(v)
	case nil:
		return map[string]string{"status": "ok"}
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		resp.Kind = generic.KindName(err)
	}
	writeJSON(w, status, resp)
}

// writeServiceError picks the status from the error kind.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s: %v", message, err)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err), errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict
	case generic.IsClientError(err), errors.Is(err, factory.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON body strictly. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// parseDate reads YYYY-MM-DD as midnight in the service location. Empty
// input is the zero time.
func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", s, h.Service.Location())
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
