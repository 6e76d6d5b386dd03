// Package server implements the FileDepot TCP server: the listener and
// admission control loop, and the per-connection session state machine.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/metrics"
	"github.com/filedepot/filedepot/pkg/registry"
	"github.com/filedepot/filedepot/pkg/repository"
)

// TimeoutsConfig groups timeout-related configuration.
type TimeoutsConfig struct {
	// Read is the per-read deadline applied before each protocol read.
	// 0 means no deadline: a silent client occupies a capacity slot
	// indefinitely. That is the protocol's documented default behavior,
	// not an oversight; set a deadline to opt out of it.
	Read time.Duration `mapstructure:"read" validate:"min=0" yaml:"read"`

	// Write is the per-write deadline for responses and transfers.
	// 0 means no deadline.
	Write time.Duration `mapstructure:"write" validate:"min=0" yaml:"write"`

	// Shutdown is the maximum duration to wait for active sessions
	// during graceful shutdown before force-closing their connections.
	Shutdown time.Duration `mapstructure:"shutdown" validate:"required,gt=0" yaml:"shutdown"`
}

// Config holds configuration for the TCP server.
//
// Zero values are replaced with defaults by New:
//   - MaxClients: 3
//   - Timeouts.Shutdown: 30s
type Config struct {
	// Host is the listen address. Empty means all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port to listen on. 0 asks the OS for an ephemeral
	// port; Addr reports the one chosen.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxClients bounds concurrently active sessions. A connection
	// accepted while the registry already holds MaxClients active
	// records is told so and closed before any handshake.
	MaxClients int `mapstructure:"max_clients" validate:"min=0" yaml:"max_clients"`

	// Timeouts groups all timeout-related configuration
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`
}

// applyDefaults fills in zero values with the protocol defaults.
// Port is left alone: 0 means an OS-assigned port.
func (c *Config) applyDefaults() {
	if c.MaxClients <= 0 {
		c.MaxClients = 3
	}
	if c.Timeouts.Shutdown <= 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	return nil
}

// capacityMessage is the single rejection line written to a connection
// refused at admission, before any ASSIGNED line is ever sent.
func capacityMessage(maxClients int) string {
	return fmt.Sprintf("ERROR Server at capacity (max %d clients). Try again later.\n", maxClients)
}

// Server accepts connections, applies the admission policy, and spawns one
// session goroutine per admitted connection.
//
// The accept loop itself is single-threaded and never blocks on session
// I/O. The only state shared between sessions is the registry.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Wait for active sessions up to Timeouts.Shutdown
//  4. Force-close remaining connections after the timeout
type Server struct {
	config   Config
	registry *registry.Registry
	repo     repository.Repository
	metrics  *metrics.ServerMetrics

	// listener is closed during shutdown to stop accepting.
	listener   net.Listener
	listenerMu sync.RWMutex

	// listenerReady is closed once Accept can succeed; tests use it to
	// synchronize with startup.
	listenerReady chan struct{}

	// activeSessions tracks session goroutines for graceful shutdown.
	activeSessions sync.WaitGroup

	// activeConns maps remote address to net.Conn for forced closure.
	activeConns sync.Map

	// shutdown is closed by initiateShutdown, once.
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a Server. Zero config values get defaults; an invalid
// configuration is a programmer error and panics. metrics may be nil.
func New(cfg Config, repo repository.Repository, reg *registry.Registry, m *metrics.ServerMetrics) *Server {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("invalid server config: %v", err))
	}
	if reg == nil {
		reg = registry.New()
	}

	return &Server{
		config:        cfg,
		registry:      reg,
		repo:          repo,
		metrics:       m,
		listenerReady: make(chan struct{}),
		shutdown:      make(chan struct{}),
	}
}

// Registry returns the server's session registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Addr returns the listen address. It blocks until the listener is ready,
// so tests can dial without racing startup.
func (s *Server) Addr() string {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve listens and accepts connections until ctx is cancelled or an
// unrecoverable listener error occurs. Each admitted connection is served
// concurrently; rejected connections get the capacity line and are closed
// without ever reaching the handshake.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("Server listening",
		"address", listener.Addr().String(),
		"max_clients", s.config.MaxClients)

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", "error", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting connection", "error", err)
				continue
			}
		}

		// Admission check before any session state exists. A rejected
		// connection gets no name and leaves no registry record.
		if s.registry.ActiveCount() >= s.config.MaxClients {
			s.reject(conn)
			continue
		}

		name := s.registry.NextName()
		s.metrics.RecordConnectionAccepted()
		logger.Debug("Connection accepted",
			"provisional_name", name,
			"address", conn.RemoteAddr().String())

		sess := newSession(s, conn, name)
		remoteAddr := conn.RemoteAddr().String()

		s.activeSessions.Add(1)
		s.activeConns.Store(remoteAddr, conn)
		go func() {
			defer func() {
				s.activeConns.Delete(remoteAddr)
				s.activeSessions.Done()
			}()
			sess.serve(ctx)
		}()
	}
}

// reject informs a connection that the server is at capacity and closes
// it. Uses a short write deadline so a stalled peer cannot wedge the
// accept loop.
func (s *Server) reject(conn net.Conn) {
	s.metrics.RecordConnectionRejected()
	logger.Warn("Connection rejected at capacity",
		"address", conn.RemoteAddr().String(),
		"max_clients", s.config.MaxClients)

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, _ = conn.Write([]byte(capacityMessage(s.config.MaxClients)))
	_ = conn.Close()
}

// initiateShutdown closes the listener and signals the accept loop.
// Safe to call multiple times.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", "error", err)
			}
		}
		s.listenerMu.Unlock()

		// Unblock sessions parked in reads so they notice shutdown
		// instead of waiting on a silent client.
		deadline := time.Now().Add(100 * time.Millisecond)
		s.activeConns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})
	})
}

// gracefulShutdown waits for active sessions up to Timeouts.Shutdown,
// then force-closes whatever remains.
func (s *Server) gracefulShutdown() error {
	logger.Info("Graceful shutdown: waiting for active sessions",
		"active", s.registry.ActiveCount(),
		"timeout", s.config.Timeouts.Shutdown)

	done := make(chan struct{})
	go func() {
		s.activeSessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown complete")
		return nil

	case <-time.After(s.config.Timeouts.Shutdown):
		forced := 0
		s.activeConns.Range(func(_, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
				forced++
			}
			return true
		})
		logger.Warn("Shutdown timeout exceeded, connections force-closed", "count", forced)
		return fmt.Errorf("shutdown timeout: %d connections force-closed", forced)
	}
}

// Stop initiates shutdown and waits for sessions to finish, honoring ctx
// for the wait. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	done := make(chan struct{})
	go func() {
		s.activeSessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
