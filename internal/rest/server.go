// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package rest exposes the credential service over HTTP.
package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Siggiio/CredentialServer/pkg/logging"
	"github.com/Siggiio/CredentialServer/pkg/metrics"
	"github.com/Siggiio/CredentialServer/pkg/namespace"
)

// Server is the REST API server.
type Server struct {
	server    *http.Server
	handlers  *HandlerContext
	port      int
	tlsConfig *tls.Config
	webRoot   string
	logger    *logging.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Port is the HTTP port to listen on (default: 8080)
	Port int

	// Namespaces resolves namespace names to their storage and
	// mechanisms.
	Namespaces *namespace.Manager

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// WebRoot serves static files for paths outside the API when set.
	WebRoot string

	// Logger defaults to the package default when nil.
	Logger *logging.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Namespaces == nil {
		return nil, fmt.Errorf("namespace manager is required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}

	server := &Server{
		handlers:  NewHandlerContext(cfg.Namespaces, log),
		port:      cfg.Port,
		tlsConfig: cfg.TLSConfig,
		webRoot:   cfg.WebRoot,
		logger:    log,
	}

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}
	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/users/{namespace}/{user}/{action}", func(r chi.Router) {
		r.Get("/", s.handlers.UserActionHandler)
		r.Post("/", s.handlers.UserActionHandler)
	})

	if s.webRoot != "" {
		r.NotFound(http.FileServer(http.Dir(s.webRoot)).ServeHTTP)
	}

	return r
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", "port", s.port)
		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}
	s.logger.Info("Starting HTTP server", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
