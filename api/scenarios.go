/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Every loader goes through coaching.Service, so the
	payments, paid flags and template instances it produces are exactly
	what the API would produce.

AVAILABLE SCENARIOS:

	studio-week:   Three coaches, private and group lessons, a recurring class
	payroll-month: Past sessions with paid, pending and cancelled payments
	empty-studio:  Coaches only

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create coaches
 3. Create sessions and templates relative to today
 4. Book students and settle payments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "studio-week"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and helpers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/factory"
	"github.com/warp/coaching-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "studio-week",
		Name:        "Studio Week",
		Description: "Private and group lessons this week plus a Mon/Wed/Fri class",
	},
	{
		ID:          "payroll-month",
		Name:        "Payroll Month",
		Description: "Past sessions with paid, pending and cancelled payments",
	},
	{
		ID:          "empty-studio",
		Name:        "Empty Studio",
		Description: "Coaches with rates and nothing scheduled",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireScenarioAdmin(w, r) {
		return
	}
	var req LoadScenarioRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "studio-week":
		load = h.loadStudioWeekScenario
	case "payroll-month":
		load = h.loadPayrollMonthScenario
	case "empty-studio":
		load = h.createDemoCoaches
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeServiceError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if !h.requireScenarioAdmin(w, r) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.resetter.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requireScenarioAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return false
	}
	if !PrincipalFrom(r.Context()).IsAdmin() {
		writeError(w, http.StatusForbidden, "Only admins can load scenarios", generic.ErrForbidden)
		return false
	}
	return true
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var demoCoaches = []factory.CreateCoach{
	{ID: "coach-alex", Name: "Alex Moreau", Email: "alex@example.com", HourlyRate: decimal.NewFromInt(40)},
	{ID: "coach-bo", Name: "Bo Lindqvist", Email: "bo@example.com", HourlyRate: decimal.NewFromInt(50)},
	{ID: "coach-chris", Name: "Chris Adeyemi", Email: "chris@example.com", HourlyRate: decimal.RequireFromString("35.50")},
}

func (h *Handler) createDemoCoaches(ctx context.Context) error {
	for _, c := range demoCoaches {
		if _, err := h.Service.CreateCoach(ctx, generic.SystemPrincipal, c.Build()); err != nil {
			return err
		}
	}
	return nil
}

// at returns today + dayOffset at hour:minute in the service location.
func (h *Handler) at(dayOffset, hour, minute int) time.Time {
	today := h.Service.Today()
	return time.Date(today.Year(), today.Month(), today.Day()+dayOffset, hour, minute, 0, 0, h.Service.Location())
}

func (h *Handler) createDemoSession(ctx context.Context, name string, start time.Time, d time.Duration, max int, coaches ...string) (*generic.Session, error) {
	cmd := factory.CreateSession{
		Name:        name,
		Start:       start,
		End:         start.Add(d),
		Coaches:     coaches,
		MaxStudents: &max,
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return h.Service.CreateSession(ctx, generic.SystemPrincipal, cmd)
}

func (h *Handler) loadStudioWeekScenario(ctx context.Context) error {
	if err := h.createDemoCoaches(ctx); err != nil {
		return err
	}

	// Private lesson tomorrow, 1.5h with Alex: one pending payment of 60.00
	if _, err := h.createDemoSession(ctx, "Private lesson", h.at(1, 10, 0), 90*time.Minute, 1, "coach-alex"); err != nil {
		return err
	}

	// Group class with two coaches and two students booked
	group, err := h.createDemoSession(ctx, "Group technique", h.at(2, 18, 0), time.Hour, 8, "coach-alex", "coach-bo")
	if err != nil {
		return err
	}
	for _, st := range []generic.Booking{
		{Name: "Sam Rivera", Email: "sam@example.com"},
		{Name: "Noor Haddad", Email: "noor@example.com"},
	} {
		if _, err := h.Service.BookStudent(ctx, generic.SystemPrincipal, group.ID, st); err != nil {
			return err
		}
	}

	// Recurring Mon/Wed/Fri evening class, expanded over the horizon
	max := 6
	tpl := factory.CreateSession{
		Name:        "Evening footwork",
		Start:       h.at(0, 19, 0),
		End:         h.at(0, 20, 0),
		Coaches:     []string{"coach-chris"},
		Recurring:   true,
		DaysOfWeek:  []int{1, 3, 5},
		MaxStudents: &max,
	}
	if err := tpl.Validate(); err != nil {
		return err
	}
	_, err = h.Service.CreateSession(ctx, generic.SystemPrincipal, tpl)
	return err
}

func (h *Handler) loadPayrollMonthScenario(ctx context.Context) error {
	if err := h.createDemoCoaches(ctx); err != nil {
		return err
	}

	type lesson struct {
		daysAgo int
		coaches []string
		settle  func(ctx context.Context, p generic.Principal, id generic.PaymentID) (*generic.Payment, error)
	}
	lessons := []lesson{
		{daysAgo: 20, coaches: []string{"coach-alex"}, settle: h.Service.MarkPaid},
		{daysAgo: 13, coaches: []string{"coach-alex", "coach-bo"}, settle: h.Service.MarkPaid},
		{daysAgo: 6, coaches: []string{"coach-bo"}, settle: h.Service.CancelPayment},
		{daysAgo: 2, coaches: []string{"coach-alex", "coach-chris"}}, // still pending
	}

	for i, l := range lessons {
		sess, err := h.createDemoSession(ctx, fmt.Sprintf("Lesson %d", i+1), h.at(-l.daysAgo, 9, 0), 90*time.Minute, 2, l.coaches...)
		if err != nil {
			return err
		}
		if l.settle == nil {
			continue
		}
		payments, err := h.Service.ListPayments(ctx, generic.SystemPrincipal, generic.PaymentFilter{SessionID: sess.ID})
		if err != nil {
			return err
		}
		for _, p := range payments {
			if _, err := l.settle(ctx, generic.SystemPrincipal, p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
