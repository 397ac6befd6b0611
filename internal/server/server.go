// Package server provides the HTTP and websocket surface of the dashboard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/arpan-banerjee/fno-dashboard/internal/broadcast"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/poller"
	"github.com/arpan-banerjee/fno-dashboard/internal/snapshots"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Port        int
	CORSOrigins string
	Hub         *broadcast.Hub
	Pollers     *poller.Manager
	Cache       *snapshots.Cache[[]domain.RawStrike]
	Archive     *snapshots.Archive // optional
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	hub            *broadcast.Hub
	pollers        *poller.Manager
	cache          *snapshots.Cache[[]domain.RawStrike]
	archive        *snapshots.Archive
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		hub:            cfg.Hub,
		pollers:        cfg.Pollers,
		cache:          cfg.Cache,
		archive:        cfg.Archive,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Hub, cfg.Pollers, cfg.Cache),
	}

	s.setupMiddleware(cfg.CORSOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(corsOrigins string) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	origins := strings.Split(corsOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (no timeout middleware, the probe must stay cheap)
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	// Websocket stream; long-lived, mounted outside the API timeout group
	s.router.Get("/ws", s.handleWebsocket)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/instruments", s.handleListInstruments)

		r.Route("/pollers", func(r chi.Router) {
			r.Get("/status", s.handlePollerStatus)
			r.Post("/start", s.handlePollerStart)
			r.Post("/stop", s.handlePollerStop)
		})

		r.Get("/snapshots/{instrument}/{expiry}", s.handleSnapshotHistory)
	})
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
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

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
