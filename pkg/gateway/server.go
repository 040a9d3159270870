package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/logger"
)

// ServerConfig carries the HTTP listener's own knobs, separate from
// Config (which shapes request processing).
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		// A retrieve response can stream for as long as the configured
		// per-RPC reply timeout times the number of slices; WriteTimeout
		// is left generous since the handler itself enforces per-phase
		// deadlines.
		c.WriteTimeout = 10 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Server is the gateway's HTTP listener. It supports graceful shutdown:
// stop accepting new requests, wait for in-flight archive/retrieve/
// destroy operations to settle or time out, then close, per spec §9
// ("Global clients as process state").
type Server struct {
	server       *http.Server
	app          *Application
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer builds a stopped Server. Call Start to begin serving.
func NewServer(config ServerConfig, app *Application) *Server {
	config.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      NewRouter(app),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		app:    app,
		config: config,
	}
}

// Start serves requests until ctx is cancelled, then drains gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("gateway HTTP server listening", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("gateway HTTP server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("gateway HTTP server failed: %w", err)
	}
}

// Stop initiates graceful shutdown; safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("gateway HTTP server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("gateway HTTP server shutdown error: %w", err)
			logger.Error("gateway HTTP server shutdown error", "error", err)
		} else {
			logger.Info("gateway HTTP server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.config.Addr }
