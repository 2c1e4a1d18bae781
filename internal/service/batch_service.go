package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/dto"
	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

// Broadcast event names for batch mutations.
const (
	EventBatchCreated = "announcement_batch_created"
	EventBatchUpdated = "announcement_batch_updated"
	EventBatchDeleted = "announcement_batch_deleted"
)

// Batch size bounds. A carousel needs at least two slides.
const (
	MinBatchSize = 2
	MaxBatchSize = models.MaxBatchSlots
)

// BatchCreateRequest groups shared fields with one attachment per slide.
// The shared request's own attachment input is ignored.
type BatchCreateRequest struct {
	Shared      CreateAnnouncementRequest
	BatchID     *string
	Attachments []AttachmentInput
}

// BatchPatch is the uniform update applied to every sibling. Identity,
// slot, and attachment columns cannot be patched.
type BatchPatch struct {
	Title       *string
	Content     *string
	Priority    *int
	Duration    *int
	IsActive    *bool
	Category    *string
	CategorySet bool
	StartAt     *time.Time
	EndAt       *time.Time
}

// BatchResult is the outcome of a batch create.
type BatchResult struct {
	BatchID string                `json:"batch_id"`
	Rows    []dto.AnnouncementDTO `json:"rows"`
}

// BatchService creates, patches, and removes display batches. Row inserts
// are sequential with reverse-order compensating cleanup rather than a
// transaction: the adaptive writer retries statements after store errors,
// which an aborted transaction would not allow.
type BatchService struct {
	announcements *AnnouncementService
	repo          announcementRepository
	ledger        historyLedger
	attachments   attachmentManager
	publisher     eventPublisher
	logger        *zap.Logger
}

// NewBatchService constructs the coordinator.
func NewBatchService(announcements *AnnouncementService, repo announcementRepository, ledger historyLedger, attachments attachmentManager, publisher eventPublisher, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &BatchService{
		announcements: announcements,
		repo:          repo,
		ledger:        ledger,
		attachments:   attachments,
		publisher:     publisher,
		logger:        logger,
	}
}

// CreateBatch inserts one announcement per attachment, all sharing a batch
// id with slots assigned in order. Any failure rolls back the rows and
// attachments already written, then surfaces the original error.
func (s *BatchService) CreateBatch(ctx context.Context, req BatchCreateRequest, userEmail string) (*BatchResult, error) {
	if len(req.Attachments) < MinBatchSize || len(req.Attachments) > MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch requires between 2 and 24 attachments")
	}
	if strings.TrimSpace(req.Shared.Title) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	links, err := normalizeLiveLinks(req.Shared.LiveStreamLinks, s.announcements.cfg.AllowedProviders, s.announcements.cfg.MaxLinks)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	if req.BatchID != nil && *req.BatchID != "" {
		batchID = *req.BatchID
	}

	now := time.Now().UTC()
	startAt := now
	if req.Shared.StartAt != nil {
		startAt = req.Shared.StartAt.UTC()
	}
	duration := req.Shared.Duration
	if duration <= 0 {
		duration = models.DefaultDurationDays
	}
	endAt := models.ResolveEndAt(startAt, duration, req.Shared.EndAt)

	created := make([]*models.Announcement, 0, len(req.Attachments))
	for i, attachment := range req.Attachments {
		slot := i + 1
		a := &models.Announcement{
			Title:            strings.TrimSpace(req.Shared.Title),
			Content:          req.Shared.Content,
			Priority:         req.Shared.Priority,
			Duration:         duration,
			IsActive:         true,
			Category:         req.Shared.Category,
			LiveStreamLinks:  links,
			DisplayBatchID:   &batchID,
			DisplayBatchSlot: &slot,
			CreatedAt:        now,
			StartAt:          startAt,
			EndAt:            &endAt,
		}
		if err := s.announcements.applyAttachment(ctx, a, attachment); err != nil {
			s.compensate(created, nil)
			return nil, err
		}
		s.announcements.finishDerivedFields(a)

		if err := s.repo.Create(ctx, a); err != nil {
			s.compensate(created, a.AttachmentPath)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
		}
		created = append(created, a)
	}

	ids := make([]string, 0, len(created))
	for _, a := range created {
		ids = append(ids, a.ID)
		if err := s.ledger.Append(ctx, a, models.HistoryActionCreated, userEmail, a.CreatedAt); err != nil {
			s.logger.Sugar().Warnw("history append failed", "announcement", a.ID, "action", "created", "error", err)
		}
	}
	s.publisher.Publish(ctx, EventBatchCreated, map[string]interface{}{"batch_id": batchID, "ids": ids})

	rows := make([]models.Announcement, 0, len(created))
	for _, a := range created {
		rows = append(rows, *a)
	}
	return &BatchResult{BatchID: batchID, Rows: dto.FromAnnouncements(rows)}, nil
}

// UpdateBatch applies a uniform patch to every sibling in one store call.
func (s *BatchService) UpdateBatch(ctx context.Context, batchID string, patch BatchPatch, userEmail string) ([]dto.AnnouncementDTO, error) {
	siblings, err := s.loadSiblings(ctx, batchID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, sib := range siblings {
		if sib.IsExpired(now) {
			return nil, appErrors.Clone(appErrors.ErrImmutable, "batch contains an expired announcement")
		}
	}

	row := map[string]interface{}{"updated_at": now}
	if patch.Title != nil {
		row["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		row["content"] = *patch.Content
	}
	if patch.Priority != nil {
		if *patch.Priority < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "priority must be non-negative")
		}
		row["priority"] = *patch.Priority
	}
	if patch.IsActive != nil {
		row["is_active"] = *patch.IsActive
	}
	if patch.CategorySet {
		row["category"] = patch.Category
	}

	duration := siblings[0].Duration
	if patch.Duration != nil {
		if *patch.Duration <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
		}
		duration = *patch.Duration
		row["duration"] = duration
	}
	if patch.StartAt != nil || patch.Duration != nil || patch.EndAt != nil {
		startAt := siblings[0].StartAt
		if patch.StartAt != nil {
			startAt = patch.StartAt.UTC()
			row["start_at"] = startAt
		}
		endAt := models.ResolveEndAt(startAt, duration, patch.EndAt)
		row["end_at"] = endAt
		row["expires_at"] = endAt
	}

	updated, err := s.repo.UpdateByBatch(ctx, batchID, row)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	ids := make([]string, 0, len(updated))
	for i := range updated {
		ids = append(ids, updated[i].ID)
		if err := s.ledger.Append(ctx, &updated[i], models.HistoryActionUpdated, userEmail, now); err != nil {
			s.logger.Sugar().Warnw("history append failed", "announcement", updated[i].ID, "action", "updated", "error", err)
		}
	}
	s.publisher.Publish(ctx, EventBatchUpdated, map[string]interface{}{"batch_id": batchID, "ids": ids})
	return dto.FromAnnouncements(updated), nil
}

// DeleteBatch removes every sibling's attachment and row. Batches holding
// an expired sibling are refused.
func (s *BatchService) DeleteBatch(ctx context.Context, batchID string, userEmail string) error {
	siblings, err := s.loadSiblings(ctx, batchID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, sib := range siblings {
		if sib.IsExpired(now) {
			return appErrors.Clone(appErrors.ErrImmutable, "batch contains an expired announcement")
		}
	}

	ids := make([]string, 0, len(siblings))
	for i := range siblings {
		sib := &siblings[i]
		if sib.AttachmentPath != nil {
			s.attachments.RemoveAsync(*sib.AttachmentPath)
		}
		if err := s.repo.Delete(ctx, sib.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
		}
		ids = append(ids, sib.ID)
		if err := s.ledger.Append(ctx, sib, models.HistoryActionDeleted, userEmail, now); err != nil {
			s.logger.Sugar().Warnw("history append failed", "announcement", sib.ID, "action", "deleted", "error", err)
		}
	}
	s.publisher.Publish(ctx, EventBatchDeleted, map[string]interface{}{"batch_id": batchID, "ids": ids})
	return nil
}

func (s *BatchService) loadSiblings(ctx context.Context, batchID string) ([]models.Announcement, error) {
	if batchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch id required")
	}
	siblings, err := s.repo.List(ctx, models.AnnouncementFilter{DisplayBatchID: &batchID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if len(siblings) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	return siblings, nil
}

// compensate undoes already-inserted rows in reverse order, best effort.
// orphan is an attachment stored for the item whose insert failed.
func (s *BatchService) compensate(created []*models.Announcement, orphan *string) {
	ctx := context.Background()
	if orphan != nil && *orphan != "" {
		s.attachments.Remove(ctx, *orphan)
	}
	for i := len(created) - 1; i >= 0; i-- {
		a := created[i]
		if a.AttachmentPath != nil {
			s.attachments.Remove(ctx, *a.AttachmentPath)
		}
		if err := s.repo.Delete(ctx, a.ID); err != nil {
			s.logger.Sugar().Warnw("batch rollback left a partial row", "announcement", a.ID, "error", err)
		}
	}
}
