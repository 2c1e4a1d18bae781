package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Postgres SQLSTATE codes the writer reacts to.
const (
	pgUndefinedColumn = "42703"
	pgUndefinedTable  = "42P01"
	pgCheckViolation  = "23514"
)

// batchSlotColumn is the one column whose check constraint gets nulled
// instead of failing the write.
const batchSlotColumn = "display_batch_slot"

var columnNamePattern = regexp.MustCompile(`column "([^"]+)"`)

// driftObserver receives a signal each time a write had to be adapted to
// the live schema.
type driftObserver interface {
	ObserveSchemaDriftRetry(table string)
}

// AdaptiveWriter wraps row-store writes so the same binary can run against
// older and newer schemas. When the store rejects a write because a column
// does not exist, the writer strips that column from the payload and retries,
// at most once per distinct column per call. Data the older schema cannot
// hold is silently dropped.
type AdaptiveWriter struct {
	db      *sqlx.DB
	logger  *zap.Logger
	metrics driftObserver
}

// NewAdaptiveWriter constructs the writer.
func NewAdaptiveWriter(db *sqlx.DB, logger *zap.Logger) *AdaptiveWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdaptiveWriter{db: db, logger: logger}
}

// SetMetrics attaches an observer counting schema-drift retries.
func (w *AdaptiveWriter) SetMetrics(m driftObserver) {
	w.metrics = m
}

// Insert writes one row and returns the stored row as the database sees it.
func (w *AdaptiveWriter) Insert(ctx context.Context, table string, row map[string]interface{}) (map[string]interface{}, error) {
	payload := cloneRow(row)
	removed := map[string]bool{}
	slotCleared := false

	for {
		cols := sortedColumns(payload)
		placeholders := make([]string, len(cols))
		args := make([]interface{}, len(cols))
		for i, col := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = payload[col]
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

		stored, err := w.queryOne(ctx, query, args...)
		if err == nil {
			return stored, nil
		}
		if retry := w.adapt(table, payload, removed, &slotCleared, err); retry {
			continue
		}
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
}

// Update applies the row payload to every row matching the filter and
// returns the stored rows.
func (w *AdaptiveWriter) Update(ctx context.Context, table string, row map[string]interface{}, filter map[string]interface{}) ([]map[string]interface{}, error) {
	payload := cloneRow(row)
	removed := map[string]bool{}
	slotCleared := false

	for {
		cols := sortedColumns(payload)
		if len(cols) == 0 {
			return nil, fmt.Errorf("update %s: empty payload", table)
		}
		sets := make([]string, len(cols))
		args := make([]interface{}, 0, len(cols)+len(filter))
		for i, col := range cols {
			sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
			args = append(args, payload[col])
		}
		conds := make([]string, 0, len(filter))
		for _, col := range sortedColumns(filter) {
			args = append(args, filter[col])
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		query := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " RETURNING *"

		stored, err := w.queryAll(ctx, query, args...)
		if err == nil {
			return stored, nil
		}
		if retry := w.adapt(table, payload, removed, &slotCleared, err); retry {
			continue
		}
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
}

// Upsert inserts or updates on the conflict key. A table the store reports
// as entirely absent yields (nil, nil) so optional tables degrade gracefully.
func (w *AdaptiveWriter) Upsert(ctx context.Context, table string, row map[string]interface{}, conflictKey string) (map[string]interface{}, error) {
	payload := cloneRow(row)
	removed := map[string]bool{}
	slotCleared := false

	for {
		cols := sortedColumns(payload)
		placeholders := make([]string, len(cols))
		args := make([]interface{}, len(cols))
		updates := make([]string, 0, len(cols))
		for i, col := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = payload[col]
			if col != conflictKey {
				updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			}
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), conflictKey, strings.Join(updates, ", "))

		stored, err := w.queryOne(ctx, query, args...)
		if err == nil {
			return stored, nil
		}
		if isPgCode(err, pgUndefinedTable) {
			w.logger.Sugar().Debugw("optional table absent, skipping write", "table", table)
			return nil, nil
		}
		if retry := w.adapt(table, payload, removed, &slotCleared, err); retry {
			continue
		}
		return nil, fmt.Errorf("upsert into %s: %w", table, err)
	}
}

// adapt mutates the payload for a retry when the error is a recognised
// schema-drift condition. It reports whether the caller should retry.
func (w *AdaptiveWriter) adapt(table string, payload map[string]interface{}, removed map[string]bool, slotCleared *bool, err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	switch string(pqErr.Code) {
	case pgUndefinedColumn:
		col := extractColumnName(pqErr.Message)
		if col == "" || removed[col] {
			return false
		}
		if _, present := payload[col]; !present {
			return false
		}
		delete(payload, col)
		removed[col] = true
		w.logger.Sugar().Warnw("column missing in schema, dropping field", "table", table, "column", col)
		if w.metrics != nil {
			w.metrics.ObserveSchemaDriftRetry(table)
		}
		return true
	case pgCheckViolation:
		if *slotCleared || !strings.Contains(pqErr.Constraint+pqErr.Message, batchSlotColumn) {
			return false
		}
		if _, present := payload[batchSlotColumn]; !present {
			return false
		}
		payload[batchSlotColumn] = nil
		*slotCleared = true
		w.logger.Sugar().Warnw("batch slot rejected by check constraint, nulling", "table", table)
		if w.metrics != nil {
			w.metrics.ObserveSchemaDriftRetry(table)
		}
		return true
	default:
		return false
	}
}

func (w *AdaptiveWriter) queryOne(ctx context.Context, query string, args ...interface{}) (map[string]interface{}, error) {
	rows, err := w.queryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (w *AdaptiveWriter) queryAll(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := w.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var result []map[string]interface{}
	for rows.Next() {
		stored := map[string]interface{}{}
		if err := rows.MapScan(stored); err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	return result, rows.Err()
}

func isPgCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func extractColumnName(message string) string {
	match := columnNamePattern.FindStringSubmatch(message)
	if len(match) != 2 {
		return ""
	}
	return match[1]
}

func cloneRow(row map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}

func sortedColumns(row map[string]interface{}) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
