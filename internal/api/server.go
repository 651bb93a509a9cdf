// Package api is the HTTP control surface: lead CRUD-lite, the manual
// send action, the status-edit webhook and operational queries. It
// only translates requests into dispatcher commands and store reads.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autofranco/frankie/internal/config"
	"github.com/autofranco/frankie/internal/dispatch"
	"github.com/autofranco/frankie/internal/scheduler"
	"github.com/autofranco/frankie/internal/store"
)

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	store       *store.Store
	dispatcher  *dispatch.Dispatcher
	coordinator *scheduler.Coordinator
	config      *config.APIConfig
	logger      *slog.Logger
	startTime   time.Time
}

// NewServer creates a new API server
func NewServer(s *store.Store, d *dispatch.Dispatcher, c *scheduler.Coordinator, cfg *config.APIConfig, logger *slog.Logger) *Server {
	srv := &Server{
		router:      chi.NewRouter(),
		store:       s,
		dispatcher:  d,
		coordinator: c,
		config:      cfg,
		logger:      logger.With("component", "api"),
		startTime:   time.Now(),
	}

	srv.setupRoutes()
	return srv
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/leads", s.handleListLeads)
		r.Post("/leads", s.handleCreateLead)
		r.Get("/leads/{row}", s.handleGetLead)
		r.Post("/leads/{row}/send-now", s.handleSendNow)
		r.Patch("/leads/{row}/status", s.handleStatusEdit)

		r.Post("/sweep", s.handleSweep)
		r.Get("/stats", s.handleStats)

		r.Get("/triggers", s.handleListTriggers)
		r.Delete("/triggers", s.handleResetTriggers)
	})
}

// Handler returns the router, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
