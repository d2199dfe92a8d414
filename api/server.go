/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. Route shape lives here; behavior lives in handlers.go.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Honors X-Forwarded-For so token audits record callers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the booking page

ROUTE GROUPS:
  /api/credits, /api/accounts/*   Prepaid-hour ledger
  /api/availability, /api/slots/* Slot lifecycle
  /api/templates/*                Recurring rules + materialization
  /api/bookings/*                 Teacher-side booking transitions
  /api/waitlist/*                 Queue management
  /api/tokens/*                   Share-link issuance and rotation
  /api/admin/*                    Manual maintenance
  /api/public/{token}/*           Token-scoped student surface

SECURITY NOTE:
  The admin surface carries no auth middleware here; it is expected to
  sit behind the platform gateway. The public surface authenticates
  purely by share token.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		// Credit ledger
		r.Post("/credits/purchase", h.Purchase)
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Get("/ledger", h.GetLedger)
			r.Post("/adjust", h.Adjust)
			r.Post("/deactivate", h.DeactivateAccount)
		})

		// Availability and slots
		r.Post("/availability", h.CreateAvailability)
		r.Get("/teachers/{id}/slots", h.ListTeacherSlots)
		r.Get("/teachers/{id}/templates", h.ListTeacherTemplates)
		r.Delete("/slots/{id}", h.DeleteSlot)

		// Recurring templates
		r.Route("/templates", func(r chi.Router) {
			r.Post("/", h.CreateTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
			r.Post("/{id}/materialize", h.MaterializeTemplate)
		})

		// Teacher-side booking transitions
		r.Route("/bookings/{id}", func(r chi.Router) {
			r.Post("/cancel", h.CancelBooking)
			r.Post("/complete", h.CompleteBooking)
		})

		// Waitlist management
		r.Route("/waitlist", func(r chi.Router) {
			r.Get("/", h.ListWaitlist)
			r.Post("/{id}/promote", h.PromoteEntry)
			r.Delete("/{id}", h.RemoveEntry)
		})

		// Share tokens
		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.CreateToken)
			r.Post("/rotate", h.RotateToken)
		})

		// Manual maintenance
		r.Post("/admin/sweep", h.RunSweep)

		// Public, share-token scoped. The token in the path is the whole
		// credential; there is no session on top of it.
		r.Route("/public/{token}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Get("/slots", h.ListOpenSlots)
			r.Get("/account", h.GetOwnAccount)
			r.Get("/bookings", h.ListOwnBookings)
			r.Post("/bookings", h.Book)
			r.Post("/bookings/{id}/cancel", h.CancelOwnBooking)
			r.Post("/waitlist", h.JoinWaitlist)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
