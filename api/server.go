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
  4. Metrics:    Prometheus request timing
  5. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/schools/*    School registry, ledger, summaries
  /api/postings/*   Posting lifecycle
  /api/employees/*  Posting history per employee
  /api/leaves       Leave records
  /api/holidays     Holiday calendar
  /api/invoices/*   Invoice lifecycle and payments
  /api/payments/*   Instrument clearing and bouncing
  /api/admin/*      Operational actions
  /metrics          Prometheus scrape endpoint
  /healthz          Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// School routes
		r.Route("/schools", func(r chi.Router) {
			r.Get("/", h.ListSchools)
			r.Post("/", h.CreateSchool)
			r.Get("/{id}", h.GetSchool)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/summaries", h.GetSummaries)
		})

		// Posting routes
		r.Route("/postings", func(r chi.Router) {
			r.Post("/", h.OpenPosting)
			r.Get("/{id}", h.GetPosting)
			r.Post("/{id}/close", h.ClosePosting)
			r.Post("/{id}/status", h.ChangePostingStatus)
		})
		r.Get("/employees/{id}/postings", h.EmployeePostings)

		// Leave and holiday routes
		r.Post("/leaves", h.CreateLeave)
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.GenerateInvoice)
			r.Post("/bulk", h.BulkGenerate)
			r.Post("/send-all", h.SendAllInvoices)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/verify", h.VerifyInvoice)
			r.Post("/{id}/send", h.SendInvoice)
			r.Post("/{id}/cancel", h.CancelInvoice)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Get("/{id}/payments", h.ListPayments)
		})

		// Payment instrument routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/{id}/clear", h.ClearPayment)
			r.Post("/{id}/bounce", h.BouncePayment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/overdue-sweep", h.OverdueSweep)
		})
	})

	r.Handle("/metrics", MetricsHandler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
