// Package server exposes scheduler statistics and recorded traces over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/uthread/internal/trace"
	"github.com/me/uthread/pkg/model"
)

// StatsSource reports live scheduler counters. *uthread.Scheduler
// satisfies it.
type StatsSource interface {
	Stats() model.SchedulerStats
}

// Server is the uthread debug API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	store     trace.Store // optional; /runs endpoints answer 503 without it
	stats     StatsSource // optional; /stats answers 503 without it
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore sets the trace store backing the /runs endpoints.
func WithStore(st trace.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithStats sets the live scheduler reported by /stats.
func WithStats(src StatsSource) Option {
	return func(s *Server) {
		s.stats = src
	}
}

// New creates a new Server with all routes registered.
func New(logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/events", s.handleListEvents)
			})
		})
	})
}
