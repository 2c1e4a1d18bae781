package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signly/signage-api/internal/models"
)

func TestMaintenanceBackfillsMissingCreatedEntries(t *testing.T) {
	repo := newFakeAnnouncementRepo()
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewMaintenanceService(repo, ledger, publisher, nil, nil, time.Minute)

	ctx := context.Background()
	createdAt := time.Now().UTC().Add(-72 * time.Hour)
	a := &models.Announcement{Title: "legacy row", IsActive: true, CreatedAt: createdAt, StartAt: createdAt}
	require.NoError(t, repo.Create(ctx, a))

	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, 1, ledger.countAction(models.HistoryActionCreated))

	// The backfilled entry carries the announcement's own creation time.
	entries, err := ledger.List(ctx, models.HistoryActionCreated)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.WithinDuration(t, createdAt, entries[0].ActionAt, time.Second)
}

func TestMaintenanceArchivesExpiredRows(t *testing.T) {
	repo := newFakeAnnouncementRepo()
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewMaintenanceService(repo, ledger, publisher, nil, nil, time.Minute)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	expired := &models.Announcement{Title: "expired", IsActive: true, StartAt: past.Add(-24 * time.Hour), EndAt: &past}
	require.NoError(t, repo.Create(ctx, expired))

	future := time.Now().UTC().Add(24 * time.Hour)
	live := &models.Announcement{Title: "live", IsActive: true, StartAt: past, EndAt: &future}
	require.NoError(t, repo.Create(ctx, live))

	require.NoError(t, svc.Run(ctx))

	assert.Equal(t, 1, ledger.countAction(models.HistoryActionExpired))
	stored, err := repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	stillLive, err := repo.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, stillLive.IsActive)
	assert.True(t, publisher.has(EventAnnouncementsExpired))
}

func TestMaintenanceIsIdempotent(t *testing.T) {
	repo := newFakeAnnouncementRepo()
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewMaintenanceService(repo, ledger, publisher, nil, nil, time.Minute)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	expired := &models.Announcement{Title: "expired", IsActive: true, StartAt: past.Add(-24 * time.Hour), EndAt: &past}
	require.NoError(t, repo.Create(ctx, expired))

	require.NoError(t, svc.Run(ctx))
	createdEntries := ledger.countAction(models.HistoryActionCreated)
	expiredEntries := ledger.countAction(models.HistoryActionExpired)

	// A second run finds every entry already present and changes nothing.
	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, createdEntries, ledger.countAction(models.HistoryActionCreated))
	assert.Equal(t, expiredEntries, ledger.countAction(models.HistoryActionExpired))
}

func TestMaintenanceExpiresAnnouncementAfterItsWindow(t *testing.T) {
	repo := newFakeAnnouncementRepo()
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	attachments := newFakeAttachments()
	announcements := NewAnnouncementService(repo, ledger, attachments, nil, publisher, nil, nil, AnnouncementServiceConfig{})
	maintenance := NewMaintenanceService(repo, ledger, publisher, nil, nil, time.Minute)

	ctx := context.Background()
	startAt := time.Now().UTC().Add(-7*24*time.Hour - time.Second)
	created, err := announcements.Create(ctx, CreateAnnouncementRequest{
		Title:    "week-long notice",
		Priority: 1,
		Duration: 7,
		StartAt:  &startAt,
	}, "admin")
	require.NoError(t, err)

	require.NoError(t, maintenance.Run(ctx))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.EndAt)

	entries, err := ledger.List(ctx, models.HistoryActionExpired)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].ActionAt.Before(*stored.EndAt))

	// The run stays idempotent for the now-archived row.
	require.NoError(t, maintenance.Run(ctx))
	assert.Equal(t, 1, ledger.countAction(models.HistoryActionExpired))
}

func TestMaintenanceConcurrentTriggersShareOneRun(t *testing.T) {
	repo := newFakeAnnouncementRepo()
	ledger := &fakeLedger{}
	svc := NewMaintenanceService(repo, ledger, nil, nil, nil, time.Minute)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		expired := &models.Announcement{Title: "expired", IsActive: true, StartAt: past.Add(-24 * time.Hour), EndAt: &past}
		require.NoError(t, repo.Create(ctx, expired))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Run(ctx))
		}()
	}
	wg.Wait()

	// Read-before-write idempotence holds even if runs did not collapse
	// into one: no duplicate expired entries per announcement.
	assert.Equal(t, 5, ledger.countAction(models.HistoryActionExpired))
}
