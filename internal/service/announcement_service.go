package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/dto"
	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

// Broadcast event names published on announcement changes.
const (
	EventAnnouncementCreated  = "announcement_created"
	EventAnnouncementUpdated  = "announcement_updated"
	EventAnnouncementDeleted  = "announcement_deleted"
	EventAnnouncementsExpired = "announcements_expired"
)

type announcementRepository interface {
	Create(ctx context.Context, a *models.Announcement) error
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, error)
	Update(ctx context.Context, a *models.Announcement) error
	UpdateByBatch(ctx context.Context, batchID string, patch map[string]interface{}) ([]models.Announcement, error)
	Deactivate(ctx context.Context, ids []string) error
	Delete(ctx context.Context, id string) error
}

type historyLedger interface {
	Append(ctx context.Context, a *models.Announcement, action, userEmail string, actionAt time.Time) error
	AppendSystemEvent(ctx context.Context, action, userEmail, details string) error
	List(ctx context.Context, actions ...string) ([]models.HistoryEntry, error)
	ExistingActionIDs(ctx context.Context, action string) (map[string]struct{}, error)
}

type attachmentManager interface {
	ResolveMetadata(fileNameHint, mimeHint string, sizeHint int64, referenceHints []string) AttachmentMeta
	ValidateUpload(role string, upload UploadedFile) error
	Store(ctx context.Context, upload UploadedFile) (*StoredAttachment, error)
	WaitUntilReadable(ctx context.Context, reference string) bool
	Remove(ctx context.Context, reference string)
	RemoveAsync(reference string)
	IsManagedReference(reference string) bool
}

type eventPublisher interface {
	Publish(ctx context.Context, event string, payload interface{})
}

type maintenanceRunner interface {
	Run(ctx context.Context) error
}

// AttachmentInput carries at most one attachment source for a mutation:
// a freshly uploaded binary or pre-uploaded reference metadata.
type AttachmentInput struct {
	Upload     *UploadedFile
	UploadRole string
	Reference  *AttachmentReference
}

// AttachmentReference is metadata for an object the client already pushed
// into managed storage (directly or via a signed upload URL).
type AttachmentReference struct {
	Path        string
	FileName    string
	MIMEType    string
	SizeBytes   int64
	MediaWidth  *int
	MediaHeight *int
}

// CreateAnnouncementRequest describes the create payload.
type CreateAnnouncementRequest struct {
	Title           string     `json:"title" validate:"required"`
	Content         string     `json:"content"`
	Priority        int        `json:"priority" validate:"gte=0"`
	Duration        int        `json:"duration" validate:"gte=0"`
	Category        *string    `json:"category"`
	LiveStreamLinks []string   `json:"live_stream_links"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	Attachment      AttachmentInput
}

// UpdateAnnouncementRequest describes a partial update; nil fields are left
// untouched.
type UpdateAnnouncementRequest struct {
	Title           *string    `json:"title"`
	Content         *string    `json:"content"`
	Priority        *int       `json:"priority"`
	Duration        *int       `json:"duration"`
	IsActive        *bool      `json:"is_active"`
	Category        *string    `json:"category"`
	CategorySet     bool       `json:"-"`
	LiveStreamLinks []string   `json:"live_stream_links"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	Attachment      AttachmentInput
}

// AnnouncementServiceConfig carries link policy knobs.
type AnnouncementServiceConfig struct {
	AllowedProviders []string
	MaxLinks         int
}

// AnnouncementService handles single-row announcement workflows and the
// public feed.
type AnnouncementService struct {
	repo        announcementRepository
	ledger      historyLedger
	attachments attachmentManager
	maintenance maintenanceRunner
	publisher   eventPublisher
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         AnnouncementServiceConfig
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, ledger historyLedger, attachments attachmentManager, maintenance maintenanceRunner, publisher eventPublisher, validate *validator.Validate, logger *zap.Logger, cfg AnnouncementServiceConfig) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &AnnouncementService{
		repo:        repo,
		ledger:      ledger,
		attachments: attachments,
		maintenance: maintenance,
		publisher:   publisher,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, interface{}) {}

// Create registers a new announcement, resolving its attachment first.
func (s *AnnouncementService) Create(ctx context.Context, req CreateAnnouncementRequest, userEmail string) (*dto.AnnouncementDTO, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	links, err := normalizeLiveLinks(req.LiveStreamLinks, s.cfg.AllowedProviders, s.cfg.MaxLinks)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	startAt := now
	if req.StartAt != nil {
		startAt = req.StartAt.UTC()
	}
	duration := req.Duration
	if duration <= 0 {
		duration = models.DefaultDurationDays
	}
	endAt := models.ResolveEndAt(startAt, duration, req.EndAt)

	a := &models.Announcement{
		Title:           strings.TrimSpace(req.Title),
		Content:         req.Content,
		Priority:        req.Priority,
		Duration:        duration,
		IsActive:        true,
		Category:        req.Category,
		LiveStreamLinks: links,
		CreatedAt:       now,
		StartAt:         startAt,
		EndAt:           &endAt,
	}

	if err := s.applyAttachment(ctx, a, req.Attachment); err != nil {
		return nil, err
	}
	s.finishDerivedFields(a)

	if err := s.repo.Create(ctx, a); err != nil {
		// The row never landed; don't leak a stored blob.
		if a.AttachmentPath != nil {
			s.attachments.Remove(ctx, *a.AttachmentPath)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}

	if err := s.ledger.Append(ctx, a, models.HistoryActionCreated, userEmail, a.CreatedAt); err != nil {
		s.logger.Sugar().Warnw("history append failed", "announcement", a.ID, "action", "created", "error", err)
	}
	s.publisher.Publish(ctx, EventAnnouncementCreated, map[string]interface{}{"id": a.ID})

	result := dto.FromAnnouncement(a)
	return &result, nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*dto.AnnouncementDTO, error) {
	a, err := s.loadAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}
	result := dto.FromAnnouncement(a)
	return &result, nil
}

// List returns all announcements, newest first.
func (s *AnnouncementService) List(ctx context.Context) ([]dto.AnnouncementDTO, error) {
	rows, err := s.repo.List(ctx, models.AnnouncementFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return dto.FromAnnouncements(rows), nil
}

// Update mutates a non-expired announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req UpdateAnnouncementRequest, userEmail string) (*dto.AnnouncementDTO, error) {
	a, err := s.loadAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsExpired(time.Now().UTC()) {
		return nil, appErrors.ErrImmutable
	}

	if req.Title != nil {
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		a.Content = *req.Content
	}
	if req.Priority != nil {
		if *req.Priority < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "priority must be non-negative")
		}
		a.Priority = *req.Priority
	}
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	if req.CategorySet {
		a.Category = req.Category
	}
	if req.LiveStreamLinks != nil {
		links, err := normalizeLiveLinks(req.LiveStreamLinks, s.cfg.AllowedProviders, s.cfg.MaxLinks)
		if err != nil {
			return nil, err
		}
		a.LiveStreamLinks = links
	}

	scheduleChanged := req.StartAt != nil || req.Duration != nil || req.EndAt != nil
	if req.StartAt != nil {
		a.StartAt = req.StartAt.UTC()
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
		}
		a.Duration = *req.Duration
	}
	if scheduleChanged {
		endAt := models.ResolveEndAt(a.StartAt, a.Duration, req.EndAt)
		a.EndAt = &endAt
	}

	previousAttachment := ""
	if a.AttachmentPath != nil {
		previousAttachment = *a.AttachmentPath
	}
	attachmentReplaced := req.Attachment.Upload != nil || req.Attachment.Reference != nil
	if attachmentReplaced {
		if err := s.applyAttachment(ctx, a, req.Attachment); err != nil {
			return nil, err
		}
	}
	s.finishDerivedFields(a)

	if err := s.repo.Update(ctx, a); err != nil {
		// The row kept its old state; don't leak the replacement blob.
		if attachmentReplaced && a.AttachmentPath != nil && *a.AttachmentPath != previousAttachment {
			s.attachments.Remove(ctx, *a.AttachmentPath)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}

	if attachmentReplaced && previousAttachment != "" {
		current := ""
		if a.AttachmentPath != nil {
			current = *a.AttachmentPath
		}
		if previousAttachment != current {
			s.attachments.RemoveAsync(previousAttachment)
		}
	}

	if err := s.ledger.Append(ctx, a, models.HistoryActionUpdated, userEmail, time.Now().UTC()); err != nil {
		s.logger.Sugar().Warnw("history append failed", "announcement", a.ID, "action", "updated", "error", err)
	}
	s.publisher.Publish(ctx, EventAnnouncementUpdated, map[string]interface{}{"id": a.ID})

	result := dto.FromAnnouncement(a)
	return &result, nil
}

// Delete removes the row and its attachment. Expired rows may be deleted;
// that is the one mutation still allowed on them.
func (s *AnnouncementService) Delete(ctx context.Context, id string, userEmail string) error {
	a, err := s.loadAnnouncement(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	if a.AttachmentPath != nil {
		s.attachments.RemoveAsync(*a.AttachmentPath)
	}
	if err := s.ledger.Append(ctx, a, models.HistoryActionDeleted, userEmail, time.Now().UTC()); err != nil {
		s.logger.Sugar().Warnw("history append failed", "announcement", a.ID, "action", "deleted", "error", err)
	}
	s.publisher.Publish(ctx, EventAnnouncementDeleted, map[string]interface{}{"id": a.ID})
	return nil
}

// GetPublicFeed runs a maintenance pass and returns the visible, scoped,
// sorted announcements for the requested category.
func (s *AnnouncementService) GetPublicFeed(ctx context.Context, category string) ([]dto.AnnouncementDTO, error) {
	if s.maintenance != nil {
		if err := s.maintenance.Run(ctx); err != nil {
			s.logger.Sugar().Warnw("pre-read maintenance failed", "error", err)
		}
	}
	rows, err := s.repo.List(ctx, models.AnnouncementFilter{ActiveOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feed")
	}

	now := time.Now().UTC()
	visible := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		if !IsPubliclyVisible(&row, now) {
			continue
		}
		if !VisibleForCategory(&row, category) {
			continue
		}
		visible = append(visible, row)
	}
	SortForDisplay(visible)
	return dto.FromAnnouncements(visible), nil
}

func (s *AnnouncementService) loadAnnouncement(ctx context.Context, id string) (*models.Announcement, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "announcement id required")
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return a, nil
}

// applyAttachment resolves whichever attachment source the request carries
// into the model's attachment columns. Callers may not supply both a binary
// and reference metadata.
func (s *AnnouncementService) applyAttachment(ctx context.Context, a *models.Announcement, input AttachmentInput) error {
	if input.Upload != nil && input.Reference != nil {
		return appErrors.Clone(appErrors.ErrValidation, "supply either an upload or reference metadata, not both")
	}

	switch {
	case input.Upload != nil:
		role := input.UploadRole
		if role == "" {
			role = FieldRoleMedia
		}
		if err := s.attachments.ValidateUpload(role, *input.Upload); err != nil {
			return err
		}
		stored, err := s.attachments.Store(ctx, *input.Upload)
		if err != nil {
			return err
		}
		meta := s.attachments.ResolveMetadata(input.Upload.FileName, input.Upload.MIMEType, input.Upload.Size, []string{stored.ObjectPath})
		a.AttachmentPath = &stored.URL
		a.FileName = &meta.FileName
		a.FileMIMEType = &meta.MIMEType
		a.FileSizeBytes = &meta.SizeBytes
		a.MediaWidth = nil
		a.MediaHeight = nil

	case input.Reference != nil:
		ref := input.Reference
		if ref.Path == "" {
			return appErrors.Clone(appErrors.ErrValidation, "attachment reference path required")
		}
		if !s.attachments.IsManagedReference(ref.Path) {
			return appErrors.Clone(appErrors.ErrValidation, "attachment reference must point into managed storage")
		}
		if !s.attachments.WaitUntilReadable(ctx, ref.Path) {
			return appErrors.Clone(appErrors.ErrConflict, "attachment not yet readable, retry shortly")
		}
		meta := s.attachments.ResolveMetadata(ref.FileName, ref.MIMEType, ref.SizeBytes, []string{ref.Path})
		a.AttachmentPath = &ref.Path
		a.FileName = &meta.FileName
		a.FileMIMEType = &meta.MIMEType
		a.FileSizeBytes = &meta.SizeBytes
		a.MediaWidth = ref.MediaWidth
		a.MediaHeight = ref.MediaHeight
	}
	return nil
}

// finishDerivedFields recomputes the engine-owned columns: type and
// placeholder media dimensions.
func (s *AnnouncementService) finishDerivedFields(a *models.Announcement) {
	ref, mimeType := "", ""
	if a.AttachmentPath != nil {
		ref = *a.AttachmentPath
	}
	if a.FileMIMEType != nil {
		mimeType = *a.FileMIMEType
	}
	a.Type = DeriveType(ref, mimeType, strings.TrimSpace(a.Content) != "")
	a.MediaWidth, a.MediaHeight = DefaultMediaDimensions(a.Type, a.MediaWidth, a.MediaHeight)
}
