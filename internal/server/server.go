// Package server implements the contractsync HTTP server: the Connect webhook
// sink plus health and record lookup endpoints.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/contractsync/internal/server/handlers"
)

// DefaultMaxBody bounds webhook request bodies when no limit is configured.
const DefaultMaxBody int64 = 1 << 20

// Server is the contractsync HTTP server.
type Server struct {
	handlers *handlers.Handlers
	router   chi.Router
	addr     string
	srv      *http.Server
	logger   *slog.Logger
}

// New creates a new HTTP server. An empty apiKey leaves the record lookup
// endpoints open; maxBody <= 0 uses DefaultMaxBody.
func New(addr string, h *handlers.Handlers, apiKey string, maxBody int64) *Server {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	s := &Server{
		handlers: h,
		addr:     addr,
		logger:   slog.Default(),
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(MaxBodyMiddleware(maxBody))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router = r
	s.registerRoutes(r, apiKey)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("contractsync server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
