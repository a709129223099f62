/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       Bearer token -> Principal (everything under /api except
                 /api/auth/token)

ROUTE GROUPS:
  /health               Liveness
  /api/auth/token       Dev token issuance (DevAuth only)
  /api/sessions/*       Sessions, templates, assignments, bookings
  /api/templates/*      Bulk expansion
  /api/coaches/*        Coach registry and earnings
  /api/payments/*       Payment lifecycle
  /api/reports/*        Dashboards
  /api/commands         Command envelope
  /api/scenarios/*      Demo scenarios (admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins are the local frontend dev servers.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", h.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)

			// Session routes
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.ListSessions)
				r.Post("/", h.CreateSession)
				r.Get("/{id}", h.GetSession)
				r.Patch("/{id}", h.UpdateSessionDetails)
				r.Delete("/{id}", h.DeleteSession)
				r.Post("/{id}/reschedule", h.RescheduleSession)
				r.Put("/{id}/capacity", h.SetCapacity)
				r.Post("/{id}/coaches", h.AssignCoach)
				r.Delete("/{id}/coaches/{coachID}", h.UnassignCoach)
				r.Post("/{id}/bookings", h.BookStudent)
				r.Delete("/{id}/bookings/{email}", h.CancelBooking)
				r.Post("/{id}/expand", h.ExpandTemplate)
			})

			r.Post("/templates/expand", h.ExpandAllTemplates)

			// Coach routes
			r.Route("/coaches", func(r chi.Router) {
				r.Get("/", h.ListCoaches)
				r.Post("/", h.CreateCoach)
				r.Get("/{id}", h.GetCoach)
				r.Patch("/{id}", h.UpdateCoachProfile)
				r.Put("/{id}/rate", h.UpdateCoachRate)
				r.Get("/{id}/summary", h.GetCoachSummary)
				r.Get("/{id}/earnings", h.GetEarnings)
			})

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.Get("/", h.ListPayments)
				r.Get("/{id}", h.GetPayment)
				r.Post("/{id}/paid", h.MarkPaid)
				r.Post("/{id}/cancel", h.CancelPayment)
				r.Delete("/{id}", h.DeletePayment)
			})

			// Report routes
			r.Route("/reports", func(r chi.Router) {
				r.Get("/coaches", h.CoachSummaries)
				r.Get("/global", h.GlobalStats)
			})

			r.Post("/commands", h.ExecuteCommand)

			// Scenario routes
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		})
	})

	return r
}
