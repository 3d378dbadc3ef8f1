// Package statusapi exposes a small read-only HTTP API over the running
// mirror: live totals, the upload ledger, recent activity and the persisted
// history journal.
package statusapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openferry/ferry/internal/statusapi/middleware"
)

type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:7117".
	Addr string
	// AuthToken guards the /v1 endpoints. Empty disables auth.
	AuthToken string
}

type Server struct {
	config *Config
	server *http.Server
}

func NewServer(config *Config, src Source) *Server {
	routes := SetupRoutes(src, &RouteConfig{
		Auth: middleware.TokenAuthConfig{
			Token: config.AuthToken,
		},
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Connection control
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return &Server{
		config: config,
		server: httpServer,
	}
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("status api start", "addr", fmt.Sprintf("http://%s", s.config.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("status api stop")
	return s.server.Shutdown(ctx)
}
