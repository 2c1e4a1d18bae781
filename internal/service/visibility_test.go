package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/signly/signage-api/internal/models"
)

func announcementAt(priority int, createdAt time.Time) models.Announcement {
	return models.Announcement{Priority: priority, IsActive: true, CreatedAt: createdAt, StartAt: createdAt}
}

func TestIsPubliclyVisible(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		a    models.Announcement
		want bool
	}{
		{"active and started", models.Announcement{IsActive: true, StartAt: past}, true},
		{"inactive", models.Announcement{IsActive: false, StartAt: past}, false},
		{"not yet started", models.Announcement{IsActive: true, StartAt: future}, false},
		{"expired", models.Announcement{IsActive: true, StartAt: past, EndAt: &past}, false},
		{"ends in the future", models.Announcement{IsActive: true, StartAt: past, EndAt: &future}, true},
		{"no end date never expires", models.Announcement{IsActive: true, StartAt: past}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPubliclyVisible(&tt.a, now))
		})
	}
}

func TestVisibleForCategory(t *testing.T) {
	lounge := "Lounge"
	tests := []struct {
		name      string
		category  *string
		priority  int
		requested string
		want      bool
	}{
		{"all scope sees everything", &lounge, 5, "all", true},
		{"empty scope sees everything", &lounge, 5, "", true},
		{"matching category", &lounge, 5, "lounge", true},
		{"case-insensitive match", &lounge, 5, "LOUNGE", true},
		{"different category hidden", &lounge, 5, "lobby", false},
		{"global row visible everywhere", nil, 5, "lobby", true},
		{"emergency bypasses scoping", &lounge, models.PriorityEmergency, "lobby", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := models.Announcement{Category: tt.category, Priority: tt.priority}
			assert.Equal(t, tt.want, VisibleForCategory(&a, tt.requested))
		})
	}
}

func TestSortForDisplayOrdering(t *testing.T) {
	base := time.Now().UTC()

	emergency := announcementAt(models.PriorityEmergency, base.Add(-3*time.Hour))
	emergency.ID = "emergency"
	high := announcementAt(9, base.Add(-2*time.Hour))
	high.ID = "high"
	lowNew := announcementAt(1, base)
	lowNew.ID = "low-new"
	lowOld := announcementAt(1, base.Add(-time.Hour))
	lowOld.ID = "low-old"

	items := []models.Announcement{lowOld, high, lowNew, emergency}
	SortForDisplay(items)

	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.ID)
	}
	// Emergency first despite being oldest, then priority descending, then
	// newest first among equal priorities.
	assert.Equal(t, []string{"emergency", "high", "low-new", "low-old"}, got)
}

func TestSortForDisplayEmergencyTiesByRecency(t *testing.T) {
	base := time.Now().UTC()
	older := announcementAt(models.PriorityEmergency, base.Add(-time.Hour))
	older.ID = "older"
	newer := announcementAt(models.PriorityEmergency, base)
	newer.ID = "newer"

	items := []models.Announcement{older, newer}
	SortForDisplay(items)
	assert.Equal(t, "newer", items[0].ID)
	assert.Equal(t, "older", items[1].ID)
}
