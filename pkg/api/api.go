// Package api provides the optional HTTP introspection server.
//
// Endpoints:
//   - GET /healthz: liveness probe
//   - GET /api/v1/sessions: session lifecycle records from the registry
//   - GET /metrics: Prometheus metrics
//
// The introspection server is separate from the wire protocol: it reads
// the registry, never mutates it, and can be disabled entirely.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/registry"
)

// Config configures the introspection HTTP server.
type Config struct {
	// Enabled controls whether the server is started at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP listen port.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`
}

// applyDefaults fills in zero values.
func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
}

// Server serves the introspection endpoints.
type Server struct {
	server   *http.Server
	config   Config
	registry *registry.Registry
}

// NewServer creates the introspection server in a stopped state.
func NewServer(cfg Config, reg *registry.Registry) *Server {
	cfg.applyDefaults()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", handleHealthz)
	router.Get("/api/v1/sessions", handleSessions(reg))
	router.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		config:   cfg,
		registry: reg,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Introspection server listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("introspection server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleSessions renders the registry snapshot as JSON, in insertion order.
func handleSessions(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snapshot := reg.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"active":   reg.ActiveCount(),
			"sessions": snapshot,
		}); err != nil {
			logger.Debug("Failed to encode sessions response", "error", err)
		}
	}
}
