// Package server owns the HTTP listener lifecycle: startup, serving, and
// graceful shutdown on context cancellation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/atticfs/attic/internal/logger"
)

// Config holds the listener settings.
type Config struct {
	Host string
	Port int

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// ShutdownTimeout bounds how long graceful shutdown waits for in-flight
	// requests, archive streams included.
	ShutdownTimeout time.Duration
}

// Server wraps an http.Server with context-driven lifecycle management.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// New creates a server for the given handler.
//
// There is no write timeout: archive downloads of large subtrees can run
// for arbitrarily long, and the shutdown timeout already bounds teardown.
func New(cfg Config, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Serve starts the listener and blocks until the context is cancelled or the
// listener fails.
//
// On cancellation it drains in-flight requests for up to the shutdown
// timeout, then forces the remaining connections closed. Returns nil after a
// graceful shutdown; a listener failure is returned as is.
func (s *Server) Serve(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		logger.Info("Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown timed out, closing connections: %v", err)
		if cerr := s.httpServer.Close(); cerr != nil {
			return fmt.Errorf("forced close failed: %w", cerr)
		}
		return nil
	}

	logger.Info("Server stopped gracefully")
	return nil
}
