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

ROUTE GROUPS:
  /api/beneficiaries    Beneficiary index
  /api/schedules/*      Schedule creation and lookup
  /api/accounts/*       Per-address vesting views, release, token balance
  /api/pool/*           Reward pool
  /api/admin/*          Operator and duration unit table
  /api/tokens/*         Token ledger
  /api/consumption/*    Burns
  /api/events           Event log
  /api/release-runs     Auto-release history
  /api/clock/*          Engine time (advance only with a manual clock)
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. The X-Account header is trusted.

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
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", CallerHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/beneficiaries", h.ListBeneficiaries)

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Get("/{id}/releases", h.GetScheduleReleases)
		})

		r.Route("/accounts/{address}", func(r chi.Router) {
			r.Get("/schedules", h.GetAccountSchedules)
			r.Get("/releasable", h.GetReleasable)
			r.Get("/locked", h.GetLocked)
			r.Get("/amount", h.GetAmount)
			r.Post("/release", h.Release)
			r.Get("/balance", h.GetTokenBalance)
			r.Get("/burns", h.GetBurns)
		})

		r.Route("/pool", func(r chi.Router) {
			r.Get("/", h.GetPool)
			r.Post("/deposits", h.DepositPermanently)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/operator", h.GetOperator)
			r.Put("/operator", h.SetOperator)
			r.Get("/duration-units", h.GetDurationUnits)
			r.Put("/duration-units", h.SetDurationUnits)
		})

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/supply", h.GetSupply)
			r.Post("/approve", h.Approve)
			r.Post("/transfer", h.Transfer)
			r.Post("/mint", h.Mint)
		})

		r.Post("/consumption/burn", h.Burn)

		r.Get("/events", h.ListEvents)
		r.Get("/release-runs", h.ListReleaseRuns)

		r.Route("/clock", func(r chi.Router) {
			r.Get("/", h.GetClock)
			r.Post("/advance", h.AdvanceClock)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
