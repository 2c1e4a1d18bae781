package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signly/signage-api/internal/service"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/response"
)

// BatchHandler handles display batch endpoints.
type BatchHandler struct {
	service *service.BatchService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{service: svc}
}

type batchCreatePayload struct {
	BatchID     *string                      `json:"batch_id"`
	Shared      announcementPayload          `json:"shared"`
	Attachments []attachmentReferencePayload `json:"attachments"`
}

type batchPatchPayload struct {
	Title    *string    `json:"title"`
	Content  *string    `json:"content"`
	Priority *int       `json:"priority"`
	Duration *int       `json:"duration"`
	IsActive *bool      `json:"is_active"`
	Category *string    `json:"category"`
	StartAt  *time.Time `json:"start_at"`
	EndAt    *time.Time `json:"end_at"`
}

// Create godoc
// @Summary Create a display batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body batchCreatePayload true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /announcements/batch [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var payload batchCreatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	shared := service.CreateAnnouncementRequest{
		Category:        payload.Shared.Category,
		LiveStreamLinks: payload.Shared.LiveStreamLinks,
		StartAt:         payload.Shared.StartAt,
		EndAt:           payload.Shared.EndAt,
	}
	if payload.Shared.Title != nil {
		shared.Title = *payload.Shared.Title
	}
	if payload.Shared.Content != nil {
		shared.Content = *payload.Shared.Content
	}
	if payload.Shared.Priority != nil {
		shared.Priority = *payload.Shared.Priority
	}
	if payload.Shared.Duration != nil {
		shared.Duration = *payload.Shared.Duration
	}

	attachments := make([]service.AttachmentInput, 0, len(payload.Attachments))
	for i := range payload.Attachments {
		attachments = append(attachments, payload.Attachments[i].toInput())
	}

	result, err := h.service.CreateBatch(c.Request.Context(), service.BatchCreateRequest{
		Shared:      shared,
		BatchID:     payload.BatchID,
		Attachments: attachments,
	}, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Patch every announcement in a batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body batchPatchPayload true "Uniform patch"
// @Success 200 {object} response.Envelope
// @Router /announcements/batch/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable payload"))
		return
	}
	var payload batchPatchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	rows, err := h.service.UpdateBatch(c.Request.Context(), c.Param("id"), service.BatchPatch{
		Title:       payload.Title,
		Content:     payload.Content,
		Priority:    payload.Priority,
		Duration:    payload.Duration,
		IsActive:    payload.IsActive,
		Category:    payload.Category,
		CategorySet: jsonHasKey(body, "category"),
		StartAt:     payload.StartAt,
		EndAt:       payload.EndAt,
	}, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Delete godoc
// @Summary Delete a batch and its attachments
// @Tags Batches
// @Param id path string true "Batch ID"
// @Success 204
// @Router /announcements/batch/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteBatch(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
