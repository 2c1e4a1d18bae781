package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/signly/signage-api/internal/service"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/response"
)

// HistoryHandler handles audit ledger endpoints.
type HistoryHandler struct {
	service *service.HistoryService
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(svc *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

func actionsFromQuery(c *gin.Context) []string {
	raw := strings.TrimSpace(c.Query("actions"))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	actions := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			actions = append(actions, part)
		}
	}
	return actions
}

// List godoc
// @Summary List audit history entries
// @Tags History
// @Produce json
// @Param actions query string false "Comma-separated action filter"
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	entries, err := h.service.List(c.Request.Context(), actionsFromQuery(c)...)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export audit history to CSV or PDF
// @Tags History
// @Produce json
// @Param format query string true "csv or pdf"
// @Param actions query string false "Comma-separated action filter"
// @Success 200 {object} response.Envelope
// @Router /history/export [post]
func (h *HistoryHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", service.ExportFormatCSV))
	result, err := h.service.Export(c.Request.Context(), format, actionsFromQuery(c)...)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a previously exported history file
// @Tags History
// @Param token query string true "Signed download token"
// @Success 200
// @Router /history/export/download [get]
func (h *HistoryHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, name, err := h.service.ResolveExport(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(name))
}
