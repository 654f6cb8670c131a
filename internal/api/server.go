// Package api wires the connector's HTTP surface: liveness, health, a
// state snapshot, and manual triggers for the daily jobs.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/martijnchel/vg-homey-connector/internal/api/handler"
	"github.com/martijnchel/vg-homey-connector/internal/config"
	"github.com/martijnchel/vg-homey-connector/internal/daily"
	"github.com/martijnchel/vg-homey-connector/internal/guard"
	"github.com/martijnchel/vg-homey-connector/internal/state"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes.
func NewRouter(store *state.Store, cooldown *guard.Cooldown, scheduler *daily.Scheduler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// --- Handler dependencies ---
	h := handler.New(store, cooldown, scheduler)

	// --- Routes ---
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	// Manual job triggers. These run the same logic as the scheduled jobs
	// without consuming the once-per-day gate.
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/daily-total", h.RunDailyTotal)
		r.Post("/expiry-report", h.RunExpiryReport)
	})

	return r
}
