/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/groups/*         Groups, members, charge configuration
  /api/periods          Billing periods
  /api/members/*        Meters, readings, invoices
  /api/scenarios/*      Demo data
  /metrics              Prometheus (when enabled)
  /healthz              Liveness, pings the database

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go, invoices.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds the router settings that come from configuration.
type RouterConfig struct {
	AllowedOrigins []string
	MetricsEnabled bool
	MetricsPath    string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)

			r.Route("/{groupID}", func(r chi.Router) {
				r.Get("/", h.GetGroup)

				r.Get("/members", h.ListMembers)
				r.Post("/members", h.CreateMember)
				r.Get("/members/{memberID}", h.GetMember)
				r.Put("/members/{memberID}", h.UpdateMember)

				r.Get("/meters", h.ListGroupMeters)
				r.Get("/periods", h.ListGroupPeriods)

				r.Get("/charges", h.ListChargeDefinitions)
				r.Post("/charges", h.CreateChargeDefinition)
				r.Put("/charges/{chargeID}", h.UpdateChargeDefinition)

				r.Get("/period-charges", h.ListPeriodCharges)
				r.Post("/period-charges", h.CreatePeriodCharge)
			})
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
		})

		r.Route("/members/{memberID}", func(r chi.Router) {
			r.Get("/meters", h.ListMemberMeters)
			r.Post("/meters", h.CreateMeter)
			r.Put("/meters/{meterID}", h.UpdateMeter)

			r.Get("/readings", h.ListReadings)
			r.Post("/readings", h.CreateReading)

			r.Get("/invoices", h.ListInvoices)
			r.Post("/invoices/generate/{periodID}", h.GenerateInvoice)
			r.Get("/invoices/{invoiceID}", h.GetInvoice)
			r.Get("/invoices/{invoiceID}/export", h.ExportInvoice)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Get("/healthz", h.Health)

	return r
}
