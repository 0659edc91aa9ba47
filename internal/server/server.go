// Package server wires the raid handlers into an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"city-raid/internal/config"
	"city-raid/internal/handler"
	"city-raid/internal/pkg/metrics"
)

// Server is the raid HTTP server.
type Server struct {
	cfg    *config.Config
	router *mux.Router
	http   *http.Server

	raidHandler   *handler.RaidHandler
	healthHandler *handler.HealthHandler
	ipLimiter     *IPLimiter
}

// Dependencies holds everything the server needs.
type Dependencies struct {
	Config    *config.Config
	Raids     handler.RaidService
	DB        handler.Pinger
	IPLimiter *IPLimiter // Optional; built from config when nil
}

// New creates a new Server with its routes and middleware registered.
func New(deps *Dependencies) *Server {
	cfg := deps.Config
	ipLimiter := deps.IPLimiter
	if ipLimiter == nil {
		ipLimiter = NewIPLimiter(cfg.RateLimit.IPRPS, cfg.RateLimit.IPBurst, nil)
	}

	s := &Server{
		cfg:           cfg,
		router:        mux.NewRouter(),
		raidHandler:   handler.NewRaidHandler(deps.Raids),
		healthHandler: handler.NewHealthHandler(deps.DB),
		ipLimiter:     ipLimiter,
	}

	s.registerMiddleware()
	s.registerRoutes()

	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// registerMiddleware registers the middleware shared by every route.
func (s *Server) registerMiddleware() {
	s.router.Use(hlog.NewHandler(log.Logger))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(AccessLogMiddleware())
	s.router.Use(RecoveryMiddleware)
	s.router.Use(metrics.Middleware)
}

// registerRoutes registers the probe, metrics and raid routes.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.healthHandler.HandleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.healthHandler.HandleReadyz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	raid := s.router.PathPrefix("/raid").Subrouter()
	raid.Use(s.ipLimiter.Middleware)
	raid.Use(BodyLimitMiddleware(s.cfg.Server.MaxBodyBytes))
	raid.Use(IdentityMiddleware(s.cfg.Identity.Header))
	raid.HandleFunc("/preview", s.raidHandler.HandlePreview).Methods(http.MethodPost)
	raid.HandleFunc("/execute", s.raidHandler.HandleExecute).Methods(http.MethodPost)
	raid.HandleFunc("/loadout", s.raidHandler.HandleLoadout).Methods(http.MethodPost)
	raid.HandleFunc("/history", s.raidHandler.HandleHistory).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// IPLimiter returns the per-IP limiter so its buckets can be swept.
func (s *Server) IPLimiter() *IPLimiter {
	return s.ipLimiter
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}
