package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bearer-auth/internal/observability"
)

// MetricsHandler exposes the in-memory counters.
type MetricsHandler struct {
	metrics *observability.Metrics
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot handles GET /health/metrics.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	snapshot := h.metrics.Snapshot()
	if snapshot == nil {
		snapshot = map[string]map[string]int64{}
	}
	return c.JSON(fiber.Map{"metrics": snapshot})
}
