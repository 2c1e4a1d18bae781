package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/models"
)

// AnnouncementRepository provides persistence for announcements. Reads use
// SELECT * with map scanning so rows from older schemas still load; writes
// go through the schema-adaptive writer.
type AnnouncementRepository struct {
	db     *sqlx.DB
	writer *AdaptiveWriter
	logger *zap.Logger
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB, writer *AdaptiveWriter, logger *zap.Logger) *AnnouncementRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementRepository{db: db, writer: writer, logger: logger}
}

// Create inserts a new announcement and reloads the model from the stored
// row, so fields the schema dropped disappear from the result too.
func (r *AnnouncementRepository) Create(ctx context.Context, a *models.Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	stored, err := r.writer.Insert(ctx, "announcements", a.ToRow())
	if err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	if stored != nil {
		*a = models.AnnouncementFromRow(stored)
	}
	return nil
}

// GetByID returns an announcement by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	rows, err := r.selectRows(ctx, "SELECT * FROM announcements WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get announcement: %w", err)
	}
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	a := models.AnnouncementFromRow(rows[0])
	return &a, nil
}

// List returns announcements matching the filter, newest first.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, error) {
	query := "SELECT * FROM announcements"
	conds := []string{}
	args := []interface{}{}

	if filter.Category != nil {
		args = append(args, *filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.DisplayBatchID != nil {
		args = append(args, *filter.DisplayBatchID)
		conds = append(conds, fmt.Sprintf("display_batch_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active = true")
	}
	if filter.ExpiredBefore != nil {
		args = append(args, *filter.ExpiredBefore)
		conds = append(conds, fmt.Sprintf("end_at IS NOT NULL AND end_at <= $%d", len(args)))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.selectRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	result := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		result = append(result, models.AnnouncementFromRow(row))
	}
	return result, nil
}

// Update persists the full model and reloads it from the stored row.
func (r *AnnouncementRepository) Update(ctx context.Context, a *models.Announcement) error {
	a.UpdatedAt = time.Now().UTC()
	row := a.ToRow()
	delete(row, "id")
	delete(row, "created_at")
	stored, err := r.writer.Update(ctx, "announcements", row, map[string]interface{}{"id": a.ID})
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if len(stored) == 0 {
		return sql.ErrNoRows
	}
	*a = models.AnnouncementFromRow(stored[0])
	return nil
}

// UpdateByBatch applies a uniform patch to every sibling of a display batch
// in one store call and returns the stored siblings.
func (r *AnnouncementRepository) UpdateByBatch(ctx context.Context, batchID string, patch map[string]interface{}) ([]models.Announcement, error) {
	stored, err := r.writer.Update(ctx, "announcements", patch, map[string]interface{}{"display_batch_id": batchID})
	if err != nil {
		return nil, fmt.Errorf("update batch: %w", err)
	}
	result := make([]models.Announcement, 0, len(stored))
	for _, row := range stored {
		result = append(result, models.AnnouncementFromRow(row))
	}
	return result, nil
}

// Deactivate clears is_active on the given rows in one statement.
func (r *AnnouncementRepository) Deactivate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE announcements SET is_active = false, updated_at = $2 WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate announcements: %w", err)
	}
	return nil
}

// Delete removes an announcement row.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check announcement delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *AnnouncementRepository) selectRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var result []map[string]interface{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
