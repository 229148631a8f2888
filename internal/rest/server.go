// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keypo/keyring/pkg/keyring"
	"github.com/keypo/keyring/pkg/logging"
	"github.com/keypo/keyring/pkg/metrics"
	"github.com/keypo/keyring/pkg/ratelimit"
	"github.com/keypo/keyring/pkg/session"
)

// Version is stamped by the build and reported on the health endpoint.
var Version = "dev"

// Config contains the HTTP server configuration.
type Config struct {
	// Host is the listen address. Empty means all interfaces.
	Host string

	// Port is the listen port.
	Port int

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum idle time for keep-alive connections.
	IdleTimeout time.Duration

	// MetricsEnabled exposes the Prometheus endpoint when true.
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path. Defaults to "/metrics".
	MetricsPath string
}

// SetDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8443
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

// Server is the HTTP front end for the keyring service.
type Server struct {
	server  *http.Server
	service *keyring.Service
	tokens  *session.Issuer
	limiter *ratelimit.Limiter
	logger  *logging.Logger
	config  *Config
}

// NewServer creates a new REST server.
func NewServer(config *Config, service *keyring.Service, tokens *session.Issuer, limiter *ratelimit.Limiter, logger *logging.Logger) (*Server, error) {
	if config == nil {
		config = &Config{}
	}
	config.SetDefaults()

	if service == nil {
		return nil, fmt.Errorf("keyring service is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	s := &Server{
		service: service,
		tokens:  tokens,
		limiter: limiter,
		logger:  logger,
		config:  config,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.setupRouter(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// setupRouter configures the route tree and middleware chain.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(CorrelationMiddleware)
	r.Use(s.LoggingMiddleware())
	if s.config.MetricsEnabled {
		r.Use(metrics.HTTPMiddleware)
	}
	r.Use(CORSMiddleware)
	if s.limiter != nil && s.limiter.IsEnabled() {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	// Health and metrics are unauthenticated
	r.Get("/healthz", s.handleHealth)
	if s.config.MetricsEnabled {
		r.Handle(s.config.MetricsPath, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/authenticate", s.handleAuthenticate)

		r.Group(func(r chi.Router) {
			r.Use(s.AuthenticationMiddleware())
			r.Post("/keyring/sign", s.handleSign)
		})
	})

	return r
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening for requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting REST server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping REST server")
	return s.server.Shutdown(ctx)
}
