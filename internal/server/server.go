// Package server exposes the worker's operational endpoints: liveness, job
// statistics and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/tagrel/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server wraps the echo instance of the worker.
type Server struct {
	e    *echo.Echo
	port string
}

func New(port string, stats StatsSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	RegisterRoutes(e, stats)

	if port == "" {
		port = "8081"
	}
	return &Server{e: e, port: port}
}

// Start serves until ctx is done and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) {
	go func() {
		logger.Info("[Server] Starting ops server", "port", s.port)
		if err := s.e.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[Server] Ops server failed", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Server] Failed to shutdown ops server", "err", err)
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.e
}
