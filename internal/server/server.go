// Package server provides the HTTP status API for newsbell.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/newsbell/internal/domain"
	"github.com/aristath/newsbell/internal/events"
	"github.com/aristath/newsbell/internal/notify"
	"github.com/aristath/newsbell/internal/scheduler"
)

// JobRunner lists and triggers scheduled jobs.
type JobRunner interface {
	Jobs() []scheduler.JobStatus
	Has(name string) bool
	RunNow(ctx context.Context, name string) error
}

// LedgerStats reports on the seen-item log.
type LedgerStats interface {
	Len() int
	Degraded() bool
}

// PendingAlerts enumerates armed alert timers.
type PendingAlerts interface {
	Pending() []domain.TimerHandle
}

// QuoteSource resolves the quote on demand.
type QuoteSource interface {
	Quote(ctx context.Context) (*domain.QuoteSnapshot, bool)
}

// DeliveryLog returns recent send attempts.
type DeliveryLog interface {
	Recent(ctx context.Context, limit int) ([]notify.Delivery, error)
}

// HealthChecker checks a backing store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server configuration. Any collaborator may be nil; its
// endpoints then report the feature as unavailable.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	LogFile    string
	Jobs       JobRunner
	Ledger     LedgerStats
	Alerts     PendingAlerts
	Quote      QuoteSource
	Deliveries DeliveryLog
	Database   HealthChecker
	Bus        *events.Bus
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     Config
	started time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		cfg:     cfg,
		started: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event stream connections stay open. Regular
		// routes are bounded by the timeout middleware instead.
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events/ws", NewEventsStreamHandler(s.cfg.Bus, s.log).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/health", s.handleHealth)
			r.Get("/jobs", s.handleJobs)
			r.Post("/jobs/{name}/run", s.handleRunJob)
			r.Get("/alerts/pending", s.handlePendingAlerts)
			r.Get("/quote", s.handleQuote)
			r.Get("/deliveries", s.handleDeliveries)

			logHandlers := NewLogHandlers(s.cfg.LogFile, s.log)
			r.Get("/logs", logHandlers.HandleGetLogs)
			r.Get("/logs/errors", logHandlers.HandleGetErrors)
		})
	})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
