package dto

import (
	"time"

	"github.com/signly/signage-api/internal/models"
)

// AnnouncementDTO is the normalised wire shape: ISO-8601 timestamps,
// resolved type/MIME/dimensions and live links always present as an array.
type AnnouncementDTO struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Priority         int      `json:"priority"`
	Duration         int      `json:"duration"`
	IsActive         bool     `json:"is_active"`
	Category         *string  `json:"category"`
	AttachmentPath   *string  `json:"attachment_path"`
	Type             string   `json:"type"`
	FileName         *string  `json:"file_name"`
	FileMIMEType     *string  `json:"file_mime_type"`
	FileSizeBytes    *int64   `json:"file_size_bytes"`
	MediaWidth       *int     `json:"media_width"`
	MediaHeight      *int     `json:"media_height"`
	LiveStreamLinks  []string `json:"live_stream_links"`
	DisplayBatchID   *string  `json:"display_batch_id"`
	DisplayBatchSlot *int     `json:"display_batch_slot"`
	CreatedAt        string   `json:"created_at"`
	StartAt          string   `json:"start_at"`
	EndAt            *string  `json:"end_at"`
	UpdatedAt        string   `json:"updated_at"`
}

// FromAnnouncement converts the model into its DTO.
func FromAnnouncement(a *models.Announcement) AnnouncementDTO {
	d := AnnouncementDTO{
		ID:               a.ID,
		Title:            a.Title,
		Content:          a.Content,
		Priority:         a.Priority,
		Duration:         a.Duration,
		IsActive:         a.IsActive,
		Category:         a.Category,
		AttachmentPath:   a.AttachmentPath,
		Type:             a.Type,
		FileName:         a.FileName,
		FileMIMEType:     a.FileMIMEType,
		FileSizeBytes:    a.FileSizeBytes,
		MediaWidth:       a.MediaWidth,
		MediaHeight:      a.MediaHeight,
		LiveStreamLinks:  a.LiveStreamLinks,
		DisplayBatchID:   a.DisplayBatchID,
		DisplayBatchSlot: a.DisplayBatchSlot,
		CreatedAt:        isoTime(a.CreatedAt),
		StartAt:          isoTime(a.StartAt),
		UpdatedAt:        isoTime(a.UpdatedAt),
	}
	if d.LiveStreamLinks == nil {
		d.LiveStreamLinks = []string{}
	}
	if a.EndAt != nil {
		end := isoTime(*a.EndAt)
		d.EndAt = &end
	}
	return d
}

// FromAnnouncements converts a slice of models.
func FromAnnouncements(items []models.Announcement) []AnnouncementDTO {
	result := make([]AnnouncementDTO, 0, len(items))
	for i := range items {
		result = append(result, FromAnnouncement(&items[i]))
	}
	return result
}

// HistoryEntryDTO is the normalised audit row.
type HistoryEntryDTO struct {
	ID           string          `json:"id"`
	Announcement AnnouncementDTO `json:"announcement"`
	Action       string          `json:"action"`
	ActionAt     string          `json:"action_at"`
	UserEmail    string          `json:"user_email"`
}

// FromHistoryEntry converts the model into its DTO.
func FromHistoryEntry(e *models.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:           e.ID,
		Announcement: FromAnnouncement(&e.Announcement),
		Action:       e.Action,
		ActionAt:     isoTime(e.ActionAt),
		UserEmail:    e.UserEmail,
	}
}

// LiveStateDTO mirrors the singleton broadcast state.
type LiveStateDTO struct {
	Status    string   `json:"status"`
	Link      *string  `json:"link"`
	Links     []string `json:"links"`
	Category  *string  `json:"category"`
	StartedAt *string  `json:"started_at"`
	StoppedAt *string  `json:"stopped_at"`
	UpdatedAt string   `json:"updated_at"`
}

// FromLiveState converts the model into its DTO.
func FromLiveState(s *models.LiveState) LiveStateDTO {
	d := LiveStateDTO{
		Status:    s.Status,
		Link:      s.Link,
		Links:     s.Links,
		Category:  s.Category,
		UpdatedAt: isoTime(s.UpdatedAt),
	}
	if d.Links == nil {
		d.Links = []string{}
	}
	if s.StartedAt != nil {
		v := isoTime(*s.StartedAt)
		d.StartedAt = &v
	}
	if s.StoppedAt != nil {
		v := isoTime(*s.StoppedAt)
		d.StoppedAt = &v
	}
	return d
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
