package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/models"
)

// HistoryRepository is the append-only audit ledger. The history table
// comes in two shapes: legacy rows reference an announcement through an
// announcement_id column and keep the remaining fields as a JSON snapshot;
// modern rows duplicate the announcement's flat columns and reuse its id.
// The shape is probed once per process and cached; a schema upgrade under a
// running process is not picked up until restart.
type HistoryRepository struct {
	db     *sqlx.DB
	writer *AdaptiveWriter
	logger *zap.Logger

	modeOnce sync.Once
	mode     models.HistoryMode
}

// NewHistoryRepository constructs the ledger.
func NewHistoryRepository(db *sqlx.DB, writer *AdaptiveWriter, logger *zap.Logger) *HistoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRepository{db: db, writer: writer, logger: logger}
}

// Mode returns the detected history table shape, probing on first use.
func (r *HistoryRepository) Mode(ctx context.Context) models.HistoryMode {
	r.modeOnce.Do(func() {
		var probe []string
		err := r.db.SelectContext(ctx, &probe, "SELECT announcement_id::text FROM history LIMIT 1")
		switch {
		case err == nil:
			r.mode = models.HistoryModeLegacy
		case isPgCode(err, pgUndefinedColumn):
			r.mode = models.HistoryModeModern
		default:
			r.logger.Sugar().Warnw("history mode probe failed, assuming modern", "error", err)
			r.mode = models.HistoryModeModern
		}
		r.logger.Sugar().Infow("history table mode detected", "legacy", r.mode == models.HistoryModeLegacy)
	})
	return r.mode
}

// Append writes one audit row for the announcement. Idempotence is the
// caller's responsibility.
func (r *HistoryRepository) Append(ctx context.Context, a *models.Announcement, action, userEmail string, actionAt time.Time) error {
	if actionAt.IsZero() {
		actionAt = time.Now().UTC()
	}

	var row map[string]interface{}
	if r.Mode(ctx) == models.HistoryModeLegacy {
		snapshot, err := json.Marshal(a.ToRow())
		if err != nil {
			return fmt.Errorf("encode history snapshot: %w", err)
		}
		row = map[string]interface{}{
			"id":              uuid.NewString(),
			"announcement_id": a.ID,
			"snapshot":        string(snapshot),
			"action":          action,
			"action_at":       actionAt,
			"user_email":      userEmail,
		}
	} else {
		row = a.ToRow()
		row["action"] = action
		row["action_at"] = actionAt
		row["user_email"] = userEmail
	}

	if _, err := r.writer.Insert(ctx, "history", row); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// AppendSystemEvent records a non-announcement audit event (login, category
// changes, live start/stop) by synthesising a pseudo-announcement snapshot
// so both table shapes accept it through the same append path.
func (r *HistoryRepository) AppendSystemEvent(ctx context.Context, action, userEmail, details string) error {
	now := time.Now().UTC()
	pseudo := &models.Announcement{
		ID:        uuid.NewString(),
		Title:     "system",
		Content:   details,
		Type:      "system",
		Duration:  models.DefaultDurationDays,
		CreatedAt: now,
		StartAt:   now,
		UpdatedAt: now,
	}
	return r.Append(ctx, pseudo, action, userEmail, now)
}

// List returns normalised entries, newest action first, optionally limited
// to an action set.
func (r *HistoryRepository) List(ctx context.Context, actions ...string) ([]models.HistoryEntry, error) {
	query := "SELECT * FROM history"
	args := []interface{}{}
	if len(actions) > 0 {
		placeholders := make([]string, len(actions))
		for i, action := range actions {
			args = append(args, action)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += " WHERE action IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY action_at DESC"

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	legacy := r.Mode(ctx) == models.HistoryModeLegacy
	var entries []models.HistoryEntry
	for rows.Next() {
		raw := map[string]interface{}{}
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, normalizeHistoryRow(raw, legacy))
	}
	return entries, rows.Err()
}

// ExistingActionIDs returns the announcement ids that already have a history
// row with the given action. Used by maintenance existence checks.
func (r *HistoryRepository) ExistingActionIDs(ctx context.Context, action string) (map[string]struct{}, error) {
	column := "id"
	if r.Mode(ctx) == models.HistoryModeLegacy {
		column = "announcement_id"
	}
	query := fmt.Sprintf("SELECT %s::text FROM history WHERE action = $1", column)

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, action); err != nil {
		return nil, fmt.Errorf("load history ids: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func normalizeHistoryRow(raw map[string]interface{}, legacy bool) models.HistoryEntry {
	entry := models.HistoryEntry{
		Action:    stringColumn(raw["action"]),
		ActionAt:  timeColumn(raw["action_at"]),
		UserEmail: stringColumn(raw["user_email"]),
	}

	if legacy {
		entry.ID = stringColumn(raw["id"])
		snapshot := map[string]interface{}{}
		if body := stringColumn(raw["snapshot"]); body != "" {
			_ = json.Unmarshal([]byte(body), &snapshot)
		}
		entry.Announcement = models.AnnouncementFromRow(snapshot)
		if entry.Announcement.ID == "" {
			entry.Announcement.ID = stringColumn(raw["announcement_id"])
		}
		return entry
	}

	entry.Announcement = models.AnnouncementFromRow(raw)
	entry.ID = entry.Announcement.ID
	return entry
}
