package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/provisioner"
	"github.com/vertextoedge/owncloud-controlled-link/internal/util/ratelimiter"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	APIUsername  string
	APIPassword  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// LinkProvisioner provisions access-controlled links
type LinkProvisioner interface {
	Provision(ctx context.Context, req provisioner.Request) (*domain.LinkOutcome, error)
}

// Server represents the HTTP API server
type Server struct {
	config       *Config
	store        port.Store
	logger       *zap.Logger
	server       *http.Server
	linkHandler  *LinkHandler
	tokenHandler *TokenHandler
}

// New creates a new HTTP server. metrics may be nil, in which case
// /metrics is not served.
func New(cfg *Config, store port.Store, links LinkProvisioner, limiter *ratelimiter.Limiter, metrics http.Handler, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	s := &Server{
		config:       cfg,
		store:        store,
		logger:       logger,
		linkHandler:  NewLinkHandler(links, store, limiter, validate, logger),
		tokenHandler: NewTokenHandler(store, validate, logger),
	}

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.routes(metrics),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BasicAuthMiddleware(s.config.APIUsername, s.config.APIPassword, s.logger))

		r.Post("/links", s.linkHandler.HandleProvision)
		r.Get("/links/{linkID}", s.linkHandler.HandleGet)
		r.Get("/users/{userID}/links", s.linkHandler.HandleList)

		r.Put("/users/{userID}/token", s.tokenHandler.HandleLinkUser)
		r.Delete("/users/{userID}/token", s.tokenHandler.HandleUnlinkUser)
		r.Put("/system/token", s.tokenHandler.HandleLinkSystem)
	})

	return r
}

// Handler returns the root handler, for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
