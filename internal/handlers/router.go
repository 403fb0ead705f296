package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the API surface
func NewRouter(h *Handler, metricsHandler http.Handler, wsHandler http.HandlerFunc, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/games/{league}/{eventID}/decisions", h.GetGameDecisions)
		r.Post("/simulations/run", h.RunSimulation)
		r.Post("/parlay/generate", h.GenerateParlay)
		r.Get("/parlay/stats", h.ParlayStats)
		r.Post("/grading/pick/{pickID}", h.GradePick)
	})

	if wsHandler != nil {
		r.Get("/ws/decisions", wsHandler)
	}

	return r
}
