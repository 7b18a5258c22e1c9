package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. Requests without X-Workspace-URL
// are served from workspace.
func NewServer(cfg domain.ServerConfig, pool *session.Pool, workspace string, checks map[string]Pinger, version string) *Server {
	handler := NewHandler(pool, checks, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no workspace required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(WorkspaceMiddleware(workspace))

		r.Get("/raid", handler.ListRAID)
		r.Post("/raid", handler.CreateRAID)
		r.Get("/raid/{raidId}", handler.GetRAID)
		r.Put("/raid/{raidId}", handler.UpdateRAID)
		r.Delete("/raid/{raidId}", handler.DeleteRAID)
		r.Get("/raid/{raidId}/history/{itemId}", handler.RAIDHistory)

		r.Get("/rca", handler.ListRCA)
		r.Post("/rca", handler.CreateRCA)
		r.Get("/rca/{id}", handler.GetRCA)
		r.Put("/rca/{id}", handler.UpdateRCA)
		r.Delete("/rca/{id}", handler.DeleteRCA)
		r.Get("/rca/{id}/history", handler.RCAHistory)

		r.Get("/knowledge/{kind}", handler.ListKnowledge)
		r.Post("/knowledge/{kind}", handler.CreateKnowledge)
		r.Get("/knowledge/{kind}/{id}", handler.GetKnowledge)
		r.Put("/knowledge/{kind}/{id}", handler.UpdateKnowledge)
		r.Delete("/knowledge/{kind}/{id}", handler.DeleteKnowledge)
		r.Get("/knowledge/{kind}/{id}/history", handler.KnowledgeHistory)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
