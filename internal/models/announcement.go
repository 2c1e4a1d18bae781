package models

import "time"

// Content types derived from attachment presence and MIME.
const (
	TypeText          = "text"
	TypeImage         = "image"
	TypeVideo         = "video"
	TypeDocument      = "document"
	TypeMixed         = "mixed"
	TypeMixedVideo    = "mixed_video"
	TypeMixedDocument = "mixed_document"
)

// PriorityEmergency marks announcements that bypass category scoping and
// always sort first. All other priorities rank descending.
const PriorityEmergency = 0

// DefaultDurationDays derives end_at when no explicit expiry is given.
const DefaultDurationDays = 7

// MaxBatchSlots bounds both batch size and live link count.
const MaxBatchSlots = 24

// Announcement represents a persisted announcement row. Pointer fields map
// to columns that may be absent in older schemas or simply unset.
type Announcement struct {
	ID               string
	Title            string
	Content          string
	Priority         int
	Duration         int
	IsActive         bool
	Category         *string
	AttachmentPath   *string
	Type             string
	FileName         *string
	FileMIMEType     *string
	FileSizeBytes    *int64
	MediaWidth       *int
	MediaHeight      *int
	LiveStreamLinks  []string
	DisplayBatchID   *string
	DisplayBatchSlot *int
	CreatedAt        time.Time
	StartAt          time.Time
	EndAt            *time.Time
	UpdatedAt        time.Time
}

// IsEmergency reports whether the announcement has emergency priority.
func (a *Announcement) IsEmergency() bool {
	return a.Priority == PriorityEmergency
}

// IsExpired reports whether end_at has passed. end_at is the sole
// expiration boundary; rows without one never expire.
func (a *Announcement) IsExpired(now time.Time) bool {
	return a.EndAt != nil && !a.EndAt.After(now)
}

// ResolveEndAt returns the explicit expiry when set, otherwise start plus
// the duration in days (defaulting to DefaultDurationDays).
func ResolveEndAt(startAt time.Time, durationDays int, explicit *time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	if durationDays <= 0 {
		durationDays = DefaultDurationDays
	}
	return startAt.AddDate(0, 0, durationDays)
}

// ToRow converts the announcement into the column map consumed by the
// schema-adaptive writer. expires_at mirrors end_at for legacy readers.
func (a *Announcement) ToRow() map[string]interface{} {
	return map[string]interface{}{
		"id":                 a.ID,
		"title":              a.Title,
		"content":            a.Content,
		"priority":           a.Priority,
		"duration":           a.Duration,
		"is_active":          a.IsActive,
		"category":           a.Category,
		"image":              a.AttachmentPath,
		"type":               a.Type,
		"file_name":          a.FileName,
		"file_mime_type":     a.FileMIMEType,
		"file_size_bytes":    a.FileSizeBytes,
		"media_width":        a.MediaWidth,
		"media_height":       a.MediaHeight,
		"live_stream_links":  encodeJSONStrings(a.LiveStreamLinks),
		"display_batch_id":   a.DisplayBatchID,
		"display_batch_slot": a.DisplayBatchSlot,
		"created_at":         a.CreatedAt,
		"start_at":           a.StartAt,
		"end_at":             a.EndAt,
		"expires_at":         a.EndAt,
		"updated_at":         a.UpdatedAt,
	}
}

// AnnouncementFromRow rebuilds an announcement from a raw column map,
// tolerating columns missing in older schemas.
func AnnouncementFromRow(row map[string]interface{}) Announcement {
	a := Announcement{
		ID:               asString(row["id"]),
		Title:            asString(row["title"]),
		Content:          asString(row["content"]),
		Priority:         asInt(row["priority"]),
		Duration:         asInt(row["duration"]),
		IsActive:         asBool(row["is_active"]),
		Category:         asStringPtr(row["category"]),
		AttachmentPath:   asStringPtr(row["image"]),
		Type:             asString(row["type"]),
		FileName:         asStringPtr(row["file_name"]),
		FileMIMEType:     asStringPtr(row["file_mime_type"]),
		FileSizeBytes:    asInt64Ptr(row["file_size_bytes"]),
		MediaWidth:       asIntPtr(row["media_width"]),
		MediaHeight:      asIntPtr(row["media_height"]),
		LiveStreamLinks:  decodeJSONStrings(row["live_stream_links"]),
		DisplayBatchID:   asStringPtr(row["display_batch_id"]),
		DisplayBatchSlot: asIntPtr(row["display_batch_slot"]),
		CreatedAt:        asTime(row["created_at"]),
		StartAt:          asTime(row["start_at"]),
		UpdatedAt:        asTime(row["updated_at"]),
	}
	a.EndAt = asTimePtr(row["end_at"])
	if a.EndAt == nil {
		a.EndAt = asTimePtr(row["expires_at"])
	}
	if a.Duration <= 0 {
		a.Duration = DefaultDurationDays
	}
	return a
}

// AnnouncementFilter narrows list queries.
type AnnouncementFilter struct {
	Category       *string
	DisplayBatchID *string
	ActiveOnly     bool
	ExpiredBefore  *time.Time
}
