package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classcover/classcover-api/internal/service"
	"github.com/classcover/classcover-api/pkg/response"
)

// MetricsHandler exposes an operational snapshot alongside the Prometheus endpoint.
type MetricsHandler struct {
	metricsService *service.MetricsService
}

// NewMetricsHandler constructs a MetricsHandler.
func NewMetricsHandler(metricsService *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metricsService: metricsService}
}

// Summary godoc
// @Summary Operational metrics snapshot
// @Tags metrics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.SystemMetrics}
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metricsService.Snapshot(), nil)
}
