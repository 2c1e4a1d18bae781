package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/models"
)

// LiveRepository persists the singleton live_state row. The table is
// optional: deployments without it degrade to the live service's in-process
// mirror, signalled here by (nil, nil) results.
type LiveRepository struct {
	db     *sqlx.DB
	writer *AdaptiveWriter
	codec  LiveLinkCodec
	logger *zap.Logger
}

// NewLiveRepository constructs the repository.
func NewLiveRepository(db *sqlx.DB, writer *AdaptiveWriter, logger *zap.Logger) *LiveRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveRepository{db: db, writer: writer, logger: logger}
}

// Get loads the singleton row. It returns (nil, nil) when the table is
// absent or the row has never been written.
func (r *LiveRepository) Get(ctx context.Context) (*models.LiveState, error) {
	rows, err := r.db.QueryxContext(ctx, "SELECT * FROM live_state WHERE id = $1", models.LiveStateID)
	if err != nil {
		if isPgCode(err, pgUndefinedTable) {
			return nil, nil
		}
		return nil, fmt.Errorf("get live state: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		return nil, rows.Err()
	}
	raw := map[string]interface{}{}
	if err := rows.MapScan(raw); err != nil {
		return nil, fmt.Errorf("scan live state: %w", err)
	}
	state := r.fromRow(raw)
	return &state, nil
}

// Save upserts the singleton row, packing the multi-link state into the
// legacy link column so older schemas keep the full picture. It returns
// (nil, nil) when the table is absent.
func (r *LiveRepository) Save(ctx context.Context, state *models.LiveState) (*models.LiveState, error) {
	var primary *string
	if state.Status == models.LiveStatusOn {
		primary = state.Link
	}
	encoded := r.codec.Encode(primary, state.Category, state.Links)

	row := map[string]interface{}{
		"id":         models.LiveStateID,
		"status":     state.Status,
		"link":       encoded,
		"links":      encodeLinksColumn(state.Links),
		"category":   state.Category,
		"started_at": state.StartedAt,
		"stopped_at": state.StoppedAt,
		"updated_at": time.Now().UTC(),
	}
	stored, err := r.writer.Upsert(ctx, "live_state", row, "id")
	if err != nil {
		return nil, fmt.Errorf("save live state: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	result := r.fromRow(stored)
	return &result, nil
}

func (r *LiveRepository) fromRow(raw map[string]interface{}) models.LiveState {
	state := models.LiveState{
		Status:    stringColumn(raw["status"]),
		Category:  stringPtrColumn(raw["category"]),
		StartedAt: timePtrColumn(raw["started_at"]),
		StoppedAt: timePtrColumn(raw["stopped_at"]),
		UpdatedAt: timeColumn(raw["updated_at"]),
	}
	if state.Status == "" {
		state.Status = models.LiveStatusOff
	}

	link, links, category := r.codec.Decode(stringPtrColumn(raw["link"]))
	state.Link = link
	state.Links = links
	if state.Category == nil {
		state.Category = category
	}

	// Prefer the structured links column when the schema carries one.
	if structured := decodeLinksColumn(raw["links"]); len(structured) > 0 {
		state.Links = structured
		if state.Link == nil {
			state.Link = &structured[0]
		}
	}
	return state
}
