package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signly/signage-api/internal/models"
)

// fakeAnnouncementRepo is an in-memory announcementRepository.
type fakeAnnouncementRepo struct {
	mu      sync.Mutex
	rows    map[string]models.Announcement
	order   []string
	failOn    int // fail the Nth Create (1-based), 0 disables
	updateErr error
	creates   int
}

func newFakeAnnouncementRepo() *fakeAnnouncementRepo {
	return &fakeAnnouncementRepo{rows: map[string]models.Announcement{}}
}

func (f *fakeAnnouncementRepo) Create(_ context.Context, a *models.Announcement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failOn > 0 && f.creates == f.failOn {
		return errors.New("store unavailable")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = time.Now().UTC()
	f.rows[a.ID] = *a
	f.order = append(f.order, a.ID)
	return nil
}

func (f *fakeAnnouncementRepo) GetByID(_ context.Context, id string) (*models.Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := row
	return &copied, nil
}

func (f *fakeAnnouncementRepo) List(_ context.Context, filter models.AnnouncementFilter) ([]models.Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]models.Announcement, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		row, ok := f.rows[f.order[i]]
		if !ok {
			continue
		}
		if filter.ActiveOnly && !row.IsActive {
			continue
		}
		if filter.Category != nil && (row.Category == nil || !strings.EqualFold(*row.Category, *filter.Category)) {
			continue
		}
		if filter.DisplayBatchID != nil && (row.DisplayBatchID == nil || *row.DisplayBatchID != *filter.DisplayBatchID) {
			continue
		}
		result = append(result, row)
	}
	return result, nil
}

func (f *fakeAnnouncementRepo) Update(_ context.Context, a *models.Announcement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.rows[a.ID]; !ok {
		return sql.ErrNoRows
	}
	a.UpdatedAt = time.Now().UTC()
	f.rows[a.ID] = *a
	return nil
}

func (f *fakeAnnouncementRepo) UpdateByBatch(_ context.Context, batchID string, patch map[string]interface{}) ([]models.Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updated []models.Announcement
	for _, id := range f.order {
		row, ok := f.rows[id]
		if !ok || row.DisplayBatchID == nil || *row.DisplayBatchID != batchID {
			continue
		}
		if title, ok := patch["title"].(string); ok {
			row.Title = title
		}
		if content, ok := patch["content"].(string); ok {
			row.Content = content
		}
		if priority, ok := patch["priority"].(int); ok {
			row.Priority = priority
		}
		if active, ok := patch["is_active"].(bool); ok {
			row.IsActive = active
		}
		if duration, ok := patch["duration"].(int); ok {
			row.Duration = duration
		}
		if startAt, ok := patch["start_at"].(time.Time); ok {
			row.StartAt = startAt
		}
		if endAt, ok := patch["end_at"].(time.Time); ok {
			row.EndAt = &endAt
		}
		f.rows[id] = row
		updated = append(updated, row)
	}
	return updated, nil
}

func (f *fakeAnnouncementRepo) Deactivate(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			row.IsActive = false
			f.rows[id] = row
		}
	}
	return nil
}

func (f *fakeAnnouncementRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeAnnouncementRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// ledgerRecord is one appended audit row.
type ledgerRecord struct {
	AnnouncementID string
	Action         string
	ActionAt       time.Time
	UserEmail      string
}

// fakeLedger is an in-memory historyLedger.
type fakeLedger struct {
	mu      sync.Mutex
	records []ledgerRecord
}

func (f *fakeLedger) Append(_ context.Context, a *models.Announcement, action, userEmail string, actionAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ledgerRecord{
		AnnouncementID: a.ID,
		Action:         action,
		ActionAt:       actionAt,
		UserEmail:      userEmail,
	})
	return nil
}

func (f *fakeLedger) AppendSystemEvent(ctx context.Context, action, userEmail, details string) error {
	return f.Append(ctx, &models.Announcement{ID: uuid.NewString(), Content: details}, action, userEmail, time.Now().UTC())
}

func (f *fakeLedger) List(_ context.Context, actions ...string) ([]models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []models.HistoryEntry
	for _, record := range f.records {
		if len(actions) > 0 {
			matched := false
			for _, action := range actions {
				if record.Action == action {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		entries = append(entries, models.HistoryEntry{
			ID:           record.AnnouncementID,
			Announcement: models.Announcement{ID: record.AnnouncementID},
			Action:       record.Action,
			ActionAt:     record.ActionAt,
			UserEmail:    record.UserEmail,
		})
	}
	return entries, nil
}

func (f *fakeLedger) ExistingActionIDs(_ context.Context, action string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := map[string]struct{}{}
	for _, record := range f.records {
		if record.Action == action {
			set[record.AnnouncementID] = struct{}{}
		}
	}
	return set, nil
}

func (f *fakeLedger) countAction(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, record := range f.records {
		if record.Action == action {
			n++
		}
	}
	return n
}

// fakeAttachments is an in-memory attachmentManager. References listed in
// unreadable never become readable; everything else does.
type fakeAttachments struct {
	mu         sync.Mutex
	stored     []string
	removed    []string
	unreadable map[string]bool
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{unreadable: map[string]bool{}}
}

func (f *fakeAttachments) ResolveMetadata(fileNameHint, mimeHint string, sizeHint int64, _ []string) AttachmentMeta {
	if fileNameHint == "" {
		fileNameHint = "file"
	}
	if mimeHint == "" {
		mimeHint = "application/octet-stream"
	}
	return AttachmentMeta{FileName: fileNameHint, MIMEType: mimeHint, SizeBytes: sizeHint}
}

func (f *fakeAttachments) ValidateUpload(string, UploadedFile) error { return nil }

func (f *fakeAttachments) Store(_ context.Context, upload UploadedFile) (*StoredAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "2026-01-01/" + upload.FileName
	f.stored = append(f.stored, path)
	return &StoredAttachment{URL: "https://blobs.example/storage/v1/object/public/announcements/" + path, ObjectPath: path}, nil
}

func (f *fakeAttachments) CreateSignedUploadURL(context.Context, string) (string, string, error) {
	return "", "", nil
}

func (f *fakeAttachments) WaitUntilReadable(_ context.Context, reference string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unreadable[reference]
}

func (f *fakeAttachments) Remove(_ context.Context, reference string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, reference)
}

func (f *fakeAttachments) RemoveAsync(reference string) {
	f.Remove(context.Background(), reference)
}

func (f *fakeAttachments) IsManagedReference(reference string) bool {
	return strings.Contains(reference, "/storage/v1/object/public/") || strings.Contains(reference, "/uploads/")
}

func (f *fakeAttachments) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

// fakePublisher records broadcast events.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(_ context.Context, event string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

// fakeLiveRepo is an in-memory liveRepository. When tableAbsent is set it
// behaves like a deployment without a live_state table.
type fakeLiveRepo struct {
	mu          sync.Mutex
	state       *models.LiveState
	tableAbsent bool
}

func (f *fakeLiveRepo) Get(context.Context) (*models.LiveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tableAbsent || f.state == nil {
		return nil, nil
	}
	copied := *f.state
	return &copied, nil
}

func (f *fakeLiveRepo) Save(_ context.Context, state *models.LiveState) (*models.LiveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tableAbsent {
		return nil, nil
	}
	copied := *state
	f.state = &copied
	result := copied
	return &result, nil
}
