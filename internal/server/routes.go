package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsSource reports live worker statistics for /stats.
type StatsSource interface {
	Stats() any
}

func RegisterRoutes(e *echo.Echo, stats StatsSource) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	e.GET("/stats", func(c echo.Context) error {
		if stats == nil {
			return c.JSON(http.StatusOK, map[string]any{})
		}
		return c.JSON(http.StatusOK, stats.Stats())
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
