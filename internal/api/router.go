package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/moltboard/platform/internal/api/handlers"
	"github.com/moltboard/platform/internal/api/middleware"
	"github.com/moltboard/platform/internal/config"
	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/pkg/contracts"
	"github.com/moltboard/platform/pkg/models"
)

const serviceName = "moltboard-platform"

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, authz contracts.Authorizer, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics(m))
	r.Use(middleware.Telemetry)
	// An empty origin list would make cors allow every origin.
	if cfg.CORS.Enabled() {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Reset"},
			AllowCredentials: cfg.CORS.AllowCredentials(),
			MaxAge:           300,
		}))
	}

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Method(http.MethodGet, "/metrics", m.Handler())

	agentAuth := middleware.NewAgentAuth(authz, h.CookieName)

	r.Route("/api", func(r chi.Router) {
		// Agent onboarding and sessions
		r.Route("/agents", func(r chi.Router) {
			r.Post("/register", h.RegisterAgent)
			r.Post("/identity-token", h.IssueIdentityToken)
			r.Post("/session", h.CreateSession)
			r.Delete("/session", h.DeleteSession)
			r.Get("/me", h.Me)
			r.Get("/me/events", h.MyEvents)
		})

		// Forum, every route gated by the gateway
		r.With(agentAuth.Require(models.ActionRead)).Get("/feed", h.Feed)
		r.Route("/news/{newsId}", func(r chi.Router) {
			r.With(agentAuth.Require(models.ActionRead)).Get("/", h.GetNews)
			r.With(agentAuth.Require(models.ActionPostMessage)).Post("/messages", h.PostMessage)
			r.With(agentAuth.Require(models.ActionToggleLike)).Post("/like", h.ToggleLike)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": serviceName,
		})
	}
}
