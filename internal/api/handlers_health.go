// handlers_health.go - Health check and metrics handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nggdpp/ndc-harvester/internal/metrics"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	metrics *metrics.Metrics
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, m *metrics.Metrics) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		metrics: m,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleMetrics serves Prometheus metrics
func (h *HealthHandlerImpl) HandleMetrics(c echo.Context) error {
	h.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
