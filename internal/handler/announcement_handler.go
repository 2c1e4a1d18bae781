package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signly/signage-api/internal/service"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/response"
)

// maxUploadBytes bounds multipart attachment uploads.
const maxUploadBytes = 100 << 20

// AnnouncementHandler handles announcement endpoints.
type AnnouncementHandler struct {
	service     *service.AnnouncementService
	attachments *service.AttachmentService
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(svc *service.AnnouncementService, attachments *service.AttachmentService) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc, attachments: attachments}
}

type attachmentReferencePayload struct {
	Path        string `json:"path" binding:"required"`
	FileName    string `json:"file_name"`
	MIMEType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	MediaWidth  *int   `json:"media_width"`
	MediaHeight *int   `json:"media_height"`
}

type announcementPayload struct {
	Title           *string                     `json:"title"`
	Content         *string                     `json:"content"`
	Priority        *int                        `json:"priority"`
	Duration        *int                        `json:"duration"`
	IsActive        *bool                       `json:"is_active"`
	Category        *string                     `json:"category"`
	LiveStreamLinks []string                    `json:"live_stream_links"`
	StartAt         *time.Time                  `json:"start_at"`
	EndAt           *time.Time                  `json:"end_at"`
	Attachment      *attachmentReferencePayload `json:"attachment"`
}

func (p *attachmentReferencePayload) toInput() service.AttachmentInput {
	if p == nil {
		return service.AttachmentInput{}
	}
	return service.AttachmentInput{Reference: &service.AttachmentReference{
		Path:        p.Path,
		FileName:    p.FileName,
		MIMEType:    p.MIMEType,
		SizeBytes:   p.SizeBytes,
		MediaWidth:  p.MediaWidth,
		MediaHeight: p.MediaHeight,
	}}
}

// List godoc
// @Summary List announcements
// @Tags Announcements
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	announcements, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}

// Get godoc
// @Summary Get announcement by id
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	announcement, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Create godoc
// @Summary Create announcement
// @Tags Announcements
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	req, err := h.bindCreate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	announcement, err := h.service.Create(c.Request.Context(), *req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// Update godoc
// @Summary Update announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable payload"))
		return
	}
	var payload announcementPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	req := service.UpdateAnnouncementRequest{
		Title:           payload.Title,
		Content:         payload.Content,
		Priority:        payload.Priority,
		Duration:        payload.Duration,
		IsActive:        payload.IsActive,
		Category:        payload.Category,
		CategorySet:     jsonHasKey(body, "category"),
		LiveStreamLinks: payload.LiveStreamLinks,
		StartAt:         payload.StartAt,
		EndAt:           payload.EndAt,
	}
	if payload.Attachment != nil {
		req.Attachment = payload.Attachment.toInput()
	}

	announcement, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Delete godoc
// @Summary Delete announcement
// @Tags Announcements
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Feed godoc
// @Summary Public display feed
// @Tags Announcements
// @Produce json
// @Param category query string false "Category scope"
// @Success 200 {object} response.Envelope
// @Router /feed [get]
func (h *AnnouncementHandler) Feed(c *gin.Context) {
	category := c.DefaultQuery("category", service.CategoryAll)
	announcements, err := h.service.GetPublicFeed(c.Request.Context(), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}

// SignUpload godoc
// @Summary Create a signed upload URL for a pre-uploaded attachment
// @Tags Announcements
// @Produce json
// @Param file_name query string true "Original file name"
// @Success 200 {object} response.Envelope
// @Router /announcements/uploads/sign [post]
func (h *AnnouncementHandler) SignUpload(c *gin.Context) {
	fileName := strings.TrimSpace(c.Query("file_name"))
	if fileName == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file_name is required"))
		return
	}
	signedURL, publicURL, err := h.attachments.CreateSignedUploadURL(c.Request.Context(), fileName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"signed_url": signedURL, "public_url": publicURL}, nil)
}

// bindCreate accepts either a JSON payload (with an optional pre-uploaded
// attachment reference) or a multipart form carrying the binary itself.
func (h *AnnouncementHandler) bindCreate(c *gin.Context) (*service.CreateAnnouncementRequest, error) {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return h.bindMultipartCreate(c)
	}

	var payload announcementPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	req := service.CreateAnnouncementRequest{
		Category:        payload.Category,
		LiveStreamLinks: payload.LiveStreamLinks,
		StartAt:         payload.StartAt,
		EndAt:           payload.EndAt,
	}
	if payload.Title != nil {
		req.Title = *payload.Title
	}
	if payload.Content != nil {
		req.Content = *payload.Content
	}
	if payload.Priority != nil {
		req.Priority = *payload.Priority
	}
	if payload.Duration != nil {
		req.Duration = *payload.Duration
	}
	if payload.Attachment != nil {
		req.Attachment = payload.Attachment.toInput()
	}
	return &req, nil
}

func (h *AnnouncementHandler) bindMultipartCreate(c *gin.Context) (*service.CreateAnnouncementRequest, error) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form")
	}

	req := service.CreateAnnouncementRequest{
		Title:   strings.TrimSpace(c.PostForm("title")),
		Content: c.PostForm("content"),
	}
	if raw := c.PostForm("priority"); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil || priority < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "priority must be a non-negative integer")
		}
		req.Priority = priority
	}
	if raw := c.PostForm("duration"); raw != "" {
		duration, err := strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be a positive integer")
		}
		req.Duration = duration
	}
	if raw, ok := c.GetPostForm("category"); ok && raw != "" {
		req.Category = &raw
	}
	if raw := c.PostForm("live_stream_links"); raw != "" {
		var links []string
		if err := json.Unmarshal([]byte(raw), &links); err != nil {
			links = strings.Split(raw, ",")
		}
		req.LiveStreamLinks = links
	}
	for field, target := range map[string]**time.Time{"start_at": &req.StartAt, "end_at": &req.EndAt} {
		if raw := c.PostForm(field); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be RFC3339")
			}
			*target = &parsed
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return &req, nil
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}

	role := c.DefaultPostForm("field_role", service.FieldRoleMedia)
	req.Attachment = service.AttachmentInput{
		UploadRole: role,
		Upload: &service.UploadedFile{
			FileName: fileHeader.Filename,
			MIMEType: fileHeader.Header.Get("Content-Type"),
			Size:     int64(len(data)),
			Data:     data,
		},
	}
	return &req, nil
}

// jsonHasKey reports whether the raw JSON object contains the key, so a
// null value can be told apart from an absent one.
func jsonHasKey(body []byte, key string) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}
	_, ok := raw[key]
	return ok
}
