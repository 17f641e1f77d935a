/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/payments/*   Payment capture and allocation trails
  /api/students/*   Statements and arrears
  /api/regimes/*    Discount regimes
  /api/admin/*      Students, obligations, year-close jobs

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.CapturePayment)
			r.Get("/{id}/allocations", h.GetPaymentAllocations)
		})

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/arrears", h.GetStudentArrears)
		})

		// Regime routes
		r.Route("/regimes", func(r chi.Router) {
			r.Get("/", h.ListRegimes)
			r.Post("/", h.RegisterRegime)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/students", h.CreateStudent)
			r.Post("/obligations", h.CreateObligation)
			r.Post("/arrears/generate", h.GenerateArrears)
		})
	})

	return r
}
