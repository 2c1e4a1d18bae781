package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWriterMock(t *testing.T) (*AdaptiveWriter, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	writer := NewAdaptiveWriter(sqlx.NewDb(db, "sqlmock"), nil)
	return writer, mock, func() { db.Close() }
}

func undefinedColumn(name string) *pq.Error {
	return &pq.Error{
		Code:    pq.ErrorCode(pgUndefinedColumn),
		Message: `column "` + name + `" of relation "announcements" does not exist`,
	}
}

func TestAdaptiveWriterInsertStripsUnknownColumn(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(undefinedColumn("live_stream_links"))
	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("a-1", "hello"))

	stored, err := writer.Insert(context.Background(), "announcements", map[string]interface{}{
		"id":                "a-1",
		"title":             "hello",
		"live_stream_links": `["https://youtube.com/watch?v=x"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", stored["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterDoesNotRetrySameColumnTwice(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	// The store keeps rejecting the same column even after it was stripped,
	// so the second failure is fatal.
	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(undefinedColumn("media_width"))
	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(undefinedColumn("media_width"))

	_, err := writer.Insert(context.Background(), "announcements", map[string]interface{}{
		"id":          "a-1",
		"media_width": 1920,
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterStripsMultipleDistinctColumns(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(undefinedColumn("media_width"))
	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(undefinedColumn("media_height"))
	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a-1"))

	stored, err := writer.Insert(context.Background(), "announcements", map[string]interface{}{
		"id":           "a-1",
		"media_width":  1920,
		"media_height": 1080,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", stored["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterNullsBatchSlotOnCheckViolation(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(&pq.Error{
			Code:       pq.ErrorCode(pgCheckViolation),
			Constraint: "announcements_display_batch_slot_check",
			Message:    `new row for relation "announcements" violates check constraint`,
		})
	mock.ExpectQuery("INSERT INTO announcements").
		WithArgs(nil, "a-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_batch_slot"}).AddRow("a-1", nil))

	stored, err := writer.Insert(context.Background(), "announcements", map[string]interface{}{
		"display_batch_slot": 99,
		"id":                 "a-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", stored["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterBatchSlotClearedOnlyOnce(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	violation := &pq.Error{
		Code:       pq.ErrorCode(pgCheckViolation),
		Constraint: "announcements_display_batch_slot_check",
	}
	mock.ExpectQuery("INSERT INTO announcements").WillReturnError(violation)
	mock.ExpectQuery("INSERT INTO announcements").WillReturnError(violation)

	_, err := writer.Insert(context.Background(), "announcements", map[string]interface{}{
		"id":                 "a-1",
		"display_batch_slot": 99,
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterOtherCheckViolationIsFatal(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO announcements").
		WillReturnError(&pq.Error{
			Code:       pq.ErrorCode(pgCheckViolation),
			Constraint: "announcements_priority_check",
			Message:    `new row for relation "announcements" violates check constraint`,
		})

	_, err := writer.Insert(context.Background(), "announcements", map[string]interface{}{
		"id":       "a-1",
		"priority": -1,
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterUpsertMissingTableReturnsNil(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO live_state").
		WillReturnError(&pq.Error{
			Code:    pq.ErrorCode(pgUndefinedTable),
			Message: `relation "live_state" does not exist`,
		})

	stored, err := writer.Upsert(context.Background(), "live_state", map[string]interface{}{
		"id":     1,
		"status": "ON",
	}, "id")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdaptiveWriterUpdateStripsUnknownColumn(t *testing.T) {
	writer, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE announcements SET").
		WillReturnError(undefinedColumn("file_size_bytes"))
	mock.ExpectQuery("UPDATE announcements SET").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("a-1", "updated"))

	rows, err := writer.Update(context.Background(), "announcements",
		map[string]interface{}{"title": "updated", "file_size_bytes": int64(10)},
		map[string]interface{}{"id": "a-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "updated", rows[0]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractColumnName(t *testing.T) {
	assert.Equal(t, "live_stream_links", extractColumnName(`column "live_stream_links" of relation "announcements" does not exist`))
	assert.Equal(t, "", extractColumnName("syntax error at or near INSERT"))
}
