package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signly/signage-api/internal/service"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/response"
)

// CredentialHandler handles display credential endpoints.
type CredentialHandler struct {
	service *service.CredentialService
}

// NewCredentialHandler constructs the handler.
func NewCredentialHandler(svc *service.CredentialService) *CredentialHandler {
	return &CredentialHandler{service: svc}
}

// List godoc
// @Summary List display credentials
// @Tags Credentials
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credentials [get]
func (h *CredentialHandler) List(c *gin.Context) {
	credentials, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, credentials, nil)
}

// Create godoc
// @Summary Create display credential
// @Tags Credentials
// @Accept json
// @Produce json
// @Param payload body service.CreateCredentialRequest true "Credential payload"
// @Success 201 {object} response.Envelope
// @Router /credentials [post]
func (h *CredentialHandler) Create(c *gin.Context) {
	var req service.CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	credential, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, credential)
}

// Delete godoc
// @Summary Delete display credential
// @Tags Credentials
// @Param id path string true "Credential ID"
// @Success 204
// @Router /credentials/{id} [delete]
func (h *CredentialHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
