// Package server provides the HTTP API: dashboard queries, admin
// settings, and the SSE/WebSocket live feeds.
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

	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/settings"
)

// Pinger is the broker reachability probe used by /health. The broker
// client implements it; tests substitute a fake.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Log    zerolog.Logger
	DB     *database.DB
	Broker Pinger
	Store  *settings.Store
	Port   int
}

// Server is the HTTP server for the dashboard and admin API.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	db      *database.DB
	broker  Pinger
	store   *settings.Store
	hub     *hub
	manager *Manager
	latest  *latestCache
}

// New creates the HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		db:      cfg.DB,
		broker:  cfg.Broker,
		store:   cfg.Store,
		hub:     newHub(),
		manager: NewManager(cfg.Log),
		latest:  newLatestCache(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/thresholds", s.handleThresholds)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Get("/settings", s.handleGetSettings)
			r.Post("/settings", s.handlePostSettings)
		})
	})

	s.router.Route("/sse", func(r chi.Router) {
		r.Get("/dht/latest", s.handleSSE(events.TopicDHTReading))
		r.Get("/pico/latest", s.handleSSE(events.TopicPicoReading))
		r.Get("/humidifier/state", s.handleSSE(events.TopicHumidifierState))
	})

	s.router.Get("/dht/latest", s.handleWS(events.TopicDHTReading, true))
	s.router.Get("/pico/latest", s.handleWS(events.TopicPicoReading, true))
	s.router.Get("/alerts", s.handleWS(events.TopicAlert, false))
}

// Pump feeds broker events into the latest-state cache, the SSE hub and
// the WebSocket broadcast manager. Run it in one goroutine per process.
func (s *Server) Pump(messages <-chan events.Message) {
	for msg := range messages {
		s.latest.update(msg.Topic, msg.Payload)
		s.hub.publish(msg.Topic, msg.Payload)
		s.manager.Broadcast(msg.Topic, msg.Payload)
	}
}

// Start starts listening. Blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.manager.CloseAll()
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

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
