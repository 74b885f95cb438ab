package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/hidroops/represas-insights/internal/insights"
	"github.com/hidroops/represas-insights/internal/metrics"
	"github.com/hidroops/represas-insights/internal/ratelimit"
)

// Deps are the collaborators the HTTP layer routes to. DB and Redis are
// only used by health checks and may be nil.
type Deps struct {
	APIKey        string
	CORSOrigins   []string
	Production    bool
	Runner        InsightsRunner
	Directory     insights.Directory
	GlobalLimiter *ratelimit.Limiter
	Metrics       *metrics.Metrics
	DB            *sql.DB
	Redis         *redis.Client
}

// Server represents the API server
type Server struct {
	handler http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	router := SetupRoutes(deps)
	return &Server{
		handler: router,
		router:  router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Write timeout covers the model deadline plus aggregation.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
