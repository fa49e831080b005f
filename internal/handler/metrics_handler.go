package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/callpanel-api/internal/models"
	"github.com/noah-isme/callpanel-api/internal/service"
	"github.com/noah-isme/callpanel-api/pkg/response"
)

type dependencyChecker interface {
	Ready(ctx context.Context) models.DependencyReport
	Check(ctx context.Context) models.DependencyReport
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	health  dependencyChecker
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, health dependencyChecker) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, health: health}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary godoc
// @Summary Counters for the admin dashboard
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready answers 503 until every required dependency is reachable.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	report := h.health.Ready(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Dependencies godoc
// @Summary Probe every upstream the API talks to
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health/dependencies [get]
func (h *MetricsHandler) Dependencies(c *gin.Context) {
	if h.health == nil {
		response.JSON(c, http.StatusOK, models.DependencyReport{Healthy: true}, nil)
		return
	}
	response.JSON(c, http.StatusOK, h.health.Check(c.Request.Context()), nil)
}
