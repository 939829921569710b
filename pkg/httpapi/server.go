// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi serves the authenticated diagnostics API: service status,
// build version, event log tail and the running configuration. Everything
// under /v1 requires a bearer token whose SHA3-256 digest matches the
// configured hash; /healthz stays open for liveness probes.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/config"
	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/eventlog"
	"github.com/svckit/svckit/pkg/hostmonitor"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/sentry"
	"github.com/svckit/svckit/pkg/svcproto"
)

// Config holds the listen and auth settings for the diagnostics API.
type Config struct {
	// Port the API listens on.
	Port int
	// TokenHash is the SHA3-256 hex digest of the accepted bearer token.
	// With no digest configured every /v1 request is refused.
	TokenHash string
	// Debug switches gin into debug mode and enables request logging.
	Debug bool
}

// Validate checks the listen settings.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid API port: %d", c.Port)
	}

	return nil
}

// StatusProvider is the controller surface the status endpoint reads.
// *lifecycle.Controller implements it.
type StatusProvider interface {
	Descriptor() svcproto.Descriptor
	State() svcproto.State
	Status() svcproto.Status
}

// EventTailer returns the newest event log entries, oldest first.
// *eventlog.FileSink implements it.
type EventTailer interface {
	Tail(n int) ([]eventlog.StampedEntry, error)
}

// Server wraps the diagnostics HTTP server with proper setup and lifecycle
// management.
type Server struct {
	config   Config
	status   StatusProvider
	monitor  hostmonitor.Service
	events   EventTailer
	configs  config.ConfigManager
	auth     *authGuard
	server   *http.Server
	logger   *zap.SugaredLogger
	instance string
}

// NewServer creates the API server around the controller. The optional
// surfaces (host monitor, event tail, config) are attached with the With
// methods; their routes answer 503 until then.
func NewServer(cfg Config, status StatusProvider) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	if status == nil {
		return nil, fmt.Errorf("status provider must not be nil")
	}

	log := logger.For(logger.ComponentHTTPAPI)
	instance := status.Descriptor().Name

	metrics.InitErrorCounter(metrics.ComponentHTTPAPI, instance)

	return &Server{
		config:   cfg,
		status:   status,
		auth:     newAuthGuard(cfg.TokenHash, log),
		logger:   log,
		instance: instance,
	}, nil
}

// WithMonitor attaches the host monitor whose latest sample enriches the
// status payload. Chainable; call before Start.
func (s *Server) WithMonitor(monitor hostmonitor.Service) *Server {
	if monitor != nil {
		s.monitor = monitor
	}

	return s
}

// WithEventTailer attaches the event log behind /v1/events. Chainable; call
// before Start.
func (s *Server) WithEventTailer(events EventTailer) *Server {
	if events != nil {
		s.events = events
	}

	return s
}

// WithConfigManager attaches the config manager behind /v1/config.
// Chainable; call before Start.
func (s *Server) WithConfigManager(configs config.ConfigManager) *Server {
	if configs != nil {
		s.configs = configs
	}

	return s
}

// Handler builds the router with all middleware and routes attached. Start
// uses it; tests drive it directly.
func (s *Server) Handler() http.Handler {
	// Set Gin mode based on debug setting
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// The auth lockout is keyed on the peer address; forwarded headers are
	// client-controlled and must not feed into it.
	_ = router.SetTrustedProxies(nil)

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add logging middleware
	router.Use(s.loggingMiddleware())

	router.GET("/healthz", s.handleHealthz)

	v1 := router.Group("/v1", s.auth.middleware())
	v1.GET("/status", s.handleStatus)
	v1.GET("/version", s.handleVersion)
	v1.GET("/events", s.handleEvents)
	v1.GET("/config", s.handleConfig)

	return router
}

// Start begins serving on the configured port. It returns once the listener
// goroutine is running; serve failures after that are reported through
// sentry.
func (s *Server) Start() error {
	if s.server != nil {
		return fmt.Errorf("diagnostics API server already started")
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: constants.APIReadHeaderTimeout,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Infow("Starting diagnostics API server",
		"port", s.config.Port,
		"debug", s.config.Debug,
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Diagnostics API server failed: %v", err)
		}
	}()

	return nil
}

// Stop gracefully drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("Stopping diagnostics API server")

	return s.server.Shutdown(ctx)
}

// loggingMiddleware provides request logging.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if s.config.Debug {
			s.logger.Infow("API request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration", time.Since(start),
			)
		}
	}
}
