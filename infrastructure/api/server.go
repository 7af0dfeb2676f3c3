package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apimiddleware "github.com/helixml/codeframe/infrastructure/api/middleware"
)

const (
	defaultWriteTimeout = 60 * time.Second
	writeTimeoutGrace   = 10 * time.Second
)

// Server represents the HTTP API server.
type Server struct {
	router       chi.Router
	httpServer   *http.Server
	logger       *slog.Logger
	addr         string
	writeTimeout time.Duration
}

// NewServer creates a new API Server.
func NewServer(addr string, logger *slog.Logger) Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	// Apply standard middleware.
	// Timeout is applied per route group in mountRoutes; the MCP stream
	// cannot sit behind chi's Timeout writer.
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(apimiddleware.Correlation)
	router.Use(apimiddleware.Logging(logger))

	return Server{
		router:       router,
		addr:         addr,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
	}
}

// WithWriteTimeout returns a copy whose connections may take d to write a
// response. It must cover the longest route deadline.
func (s Server) WithWriteTimeout(d time.Duration) Server {
	if d > 0 {
		s.writeTimeout = d
	}
	return s
}

// WriteTimeout returns how long a response may take to write.
func (s Server) WriteTimeout() time.Duration {
	return s.writeTimeout
}

// Router returns the chi router for registering routes.
func (s Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting codeframe API", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s Server) Addr() string {
	return s.addr
}
