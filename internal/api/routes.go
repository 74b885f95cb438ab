package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all routes. Health and metrics are public;
// everything under /api/v1 passes the global limiter, then API-key auth.
func SetupRoutes(deps Deps) *chi.Mux {
	errs := &ErrorWriter{Production: deps.Production}
	r := chi.NewRouter()

	r.Use(RequestContext)
	r.Use(deps.Metrics.Middleware)
	r.Use(Recoverer(errs))
	r.Use(middleware.RealIP)
	r.Use(AccessLog)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerAPIKey, headerRequestID},
		ExposedHeaders:   []string{headerRequestID, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.NotFound)

	health := NewHealthChecker(deps.DB, deps.Redis)
	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	insightsHandler := NewInsightsHandler(deps.Runner, errs)
	metaHandler := NewMetaHandler(deps.Directory, errs)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.GlobalLimiter != nil {
			r.Use(deps.GlobalLimiter.Middleware(errs.Write))
		}
		r.Use(APIKeyAuth(deps.APIKey, errs))

		r.Post("/insights", insightsHandler.HandleInsights)
		r.Get("/meta/represas", metaHandler.HandleEntities)
	})

	return r
}
