package api

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/iammorganparry/clive/apps/recall/internal/memory"
)

// HealthChecker is an optional external dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter creates the Chi router with all routes and middleware.
// embedder may be nil when the built-in fingerprint generator is used.
func NewRouter(svc *memory.Service, embedder HealthChecker, apiKey string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(svc, embedder)
	recordH := NewRecordHandler(svc)
	vectorH := NewVectorHandler(svc)
	contextH := NewContextHandler(svc)

	r.Get("/health", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", recordH.RecentMessages)
			r.Post("/", recordH.StoreMessage)
			r.Delete("/{id}", recordH.DeleteMessage)
		})
		r.Post("/files/active", recordH.TrackFile)
		r.Post("/milestones", recordH.AddMilestone)
		r.Post("/decisions", recordH.AddDecision)
		r.Post("/requirements", recordH.AddRequirement)
		r.Post("/episodes", recordH.RecordEpisode)

		r.Route("/vectors", func(r chi.Router) {
			r.Post("/", vectorH.Store)
			r.Post("/search", vectorH.Search)
			r.Patch("/{id}", vectorH.Update)
			r.Delete("/{id}", vectorH.Delete)
		})

		r.Get("/context", contextH.Context)
		r.Post("/index", contextH.IndexFile)
		r.Post("/maintenance", contextH.Maintenance)
	})

	return r
}
