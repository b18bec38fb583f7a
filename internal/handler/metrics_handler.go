package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/service"
	"github.com/quillstage/quillstage-api/pkg/response"
)

// MetricsHandler serves the health probe, the Prometheus scrape
// endpoint and the admin-facing workflow counters.
type MetricsHandler struct {
	metrics *service.MetricsService
}

func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus serves the scrape endpoint in the text exposition format.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health answers liveness probes. Readiness, which also checks the
// database, is wired separately in main.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "quillstage-api"})
}

// System godoc
// @Summary Aggregate system metrics
// @Tags Metrics
// @Produce json
// @Success 200 {object} models.SystemMetrics
// @Security BearerAuth
// @Router /metrics/system [get]
func (h *MetricsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
