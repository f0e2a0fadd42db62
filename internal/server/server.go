// Package server exposes the job queue over a JSON REST API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/internal/store"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.3.0"

// Server is the agentq REST API server.
type Server struct {
	router       chi.Router
	logger       *slog.Logger
	config       config.ServerConfig
	startTime    time.Time
	store        store.Store
	queue        *queue.Manager
	defaultOwner int64
	scheduler    string
}

// Option configures optional Server settings.
type Option func(*Server)

// WithDefaultOwner sets the owner of jobs created without an owner_user_id.
func WithDefaultOwner(userID int64) Option {
	return func(s *Server) {
		s.defaultOwner = userID
	}
}

// WithSchedulerAddr records the scheduler address shown by /health.
// An empty address reports the scheduler as disabled.
func WithSchedulerAddr(addr string) Option {
	return func(s *Server) {
		s.scheduler = addr
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, mgr *queue.Manager, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		logger:       logger.With("component", "server"),
		config:       cfg,
		startTime:    time.Now(),
		store:        st,
		queue:        mgr,
		defaultOwner: 1,
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

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Agent types
		r.Get("/agents", s.handleListAgents)

		// Uploads
		r.Route("/uploads", func(r chi.Router) {
			r.Get("/", s.handleListUploads)
			r.Post("/", s.handleCreateUpload)
			r.Get("/{ref}", s.handleGetUpload)
		})

		// Jobs
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleCreateJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Post("/agents", s.handleAddAgent)
				r.Post("/tasks", s.handleEnqueueTask)
			})
		})

		// Bulk scheduling
		r.Post("/schedule", s.handleSchedule)

		// Task queue
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/{id}/progress", s.handleTaskProgress)
		})
	})
}
