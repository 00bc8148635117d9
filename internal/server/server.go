// package server is the HTTP surface over the core facade: routing,
// middleware, JSON handlers, and the OAuth callback endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// Middleware wraps an http.Handler with additional behavior. Middleware is
// applied in reverse registration order, so the first registered runs
// outermost.
type Middleware func(http.Handler) http.Handler

// Handler is an HTTP handler that knows its own route patterns, so route
// definitions live next to the code that serves them.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router registers handlers and middleware and serves the whole route table.
type Router interface {
	Use(middleware ...Middleware)
	Handle(pattern string, handler http.Handler)
	Handler(handler Handler)
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Server runs the HTTP listener over a [Router].
type Server struct {
	http   *http.Server
	logger *log.Logger
}

// NewServer builds the listener from config and a fully populated router.
func NewServer(cfg shared.ServerConfig, router Router, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
