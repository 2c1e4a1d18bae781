package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signly/signage-api/internal/service"
	"github.com/signly/signage-api/pkg/response"
)

// MaintenanceHandler exposes the on-demand maintenance trigger and the
// metrics surface.
type MaintenanceHandler struct {
	maintenance *service.MaintenanceService
	metrics     *service.MetricsService
}

// NewMaintenanceHandler constructs the handler.
func NewMaintenanceHandler(maintenance *service.MaintenanceService, metrics *service.MetricsService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenance: maintenance, metrics: metrics}
}

// Trigger godoc
// @Summary Run a maintenance pass now
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/run [post]
func (h *MaintenanceHandler) Trigger(c *gin.Context) {
	if err := h.maintenance.Run(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "completed"}, nil)
}

// Status godoc
// @Summary Aggregated service metrics
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/status [get]
func (h *MaintenanceHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Prometheus exposes the raw Prometheus scrape endpoint.
func (h *MaintenanceHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
