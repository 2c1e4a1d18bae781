package service

import (
	"sort"
	"strings"
	"time"

	"github.com/signly/signage-api/internal/models"
)

// CategoryAll requests an unscoped public feed.
const CategoryAll = "all"

// IsPubliclyVisible reports whether the announcement belongs on a public
// feed right now: active, started, and not expired.
func IsPubliclyVisible(a *models.Announcement, now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.StartAt.After(now) {
		return false
	}
	return !a.IsExpired(now)
}

// VisibleForCategory reports whether the announcement belongs in the
// requested category scope. Emergency rows bypass scoping entirely and
// rows without a category are global.
func VisibleForCategory(a *models.Announcement, requested string) bool {
	if requested == "" || strings.EqualFold(requested, CategoryAll) {
		return true
	}
	if a.IsEmergency() {
		return true
	}
	if a.Category == nil || *a.Category == "" {
		return true
	}
	return strings.EqualFold(*a.Category, requested)
}

// CompareForDisplay orders two announcements for display: emergency rows
// first, then higher priority values, ties broken by creation time
// descending. Returns a negative value when a sorts before b.
func CompareForDisplay(a, b *models.Announcement) int {
	switch {
	case a.IsEmergency() && !b.IsEmergency():
		return -1
	case !a.IsEmergency() && b.IsEmergency():
		return 1
	case !a.IsEmergency() && a.Priority != b.Priority:
		return b.Priority - a.Priority
	}
	if a.CreatedAt.Equal(b.CreatedAt) {
		return 0
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return -1
	}
	return 1
}

// SortForDisplay sorts announcements in place using CompareForDisplay.
func SortForDisplay(items []models.Announcement) {
	sort.SliceStable(items, func(i, j int) bool {
		return CompareForDisplay(&items[i], &items[j]) < 0
	})
}
