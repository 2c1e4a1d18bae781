package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signly/signage-api/internal/service"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/response"
)

// LiveHandler handles live broadcast endpoints.
type LiveHandler struct {
	service *service.LiveService
}

// NewLiveHandler constructs the handler.
func NewLiveHandler(svc *service.LiveService) *LiveHandler {
	return &LiveHandler{service: svc}
}

// Get godoc
// @Summary Current live broadcast state
// @Tags Live
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /live [get]
func (h *LiveHandler) Get(c *gin.Context) {
	state, err := h.service.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Start godoc
// @Summary Start a live broadcast
// @Tags Live
// @Accept json
// @Produce json
// @Param payload body service.StartLiveRequest true "Broadcast links"
// @Success 200 {object} response.Envelope
// @Router /live/start [post]
func (h *LiveHandler) Start(c *gin.Context) {
	var req service.StartLiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	state, err := h.service.Start(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Stop godoc
// @Summary Stop the live broadcast
// @Tags Live
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /live/stop [post]
func (h *LiveHandler) Stop(c *gin.Context) {
	state, err := h.service.Stop(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}
