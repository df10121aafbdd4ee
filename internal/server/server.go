package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/handlers"
)

// Server manages the HTTP server and routes
type Server struct {
	config     *common.Config
	logger     arbor.ILogger
	jobHandler *handlers.JobHandler
	router     *http.ServeMux
	server     *http.Server
}

// New creates a new HTTP server over the job handler
func New(config *common.Config, logger arbor.ILogger, jobHandler *handlers.JobHandler) *Server {
	s := &Server{
		config:     config,
		logger:     logger,
		jobHandler: jobHandler,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // download mirrors can be slow
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
