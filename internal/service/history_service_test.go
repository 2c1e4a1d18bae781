package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/storage"
)

func newHistoryFixture(t *testing.T) (*HistoryService, *fakeLedger) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	ledger := &fakeLedger{}
	return NewHistoryService(ledger, store, signer, nil), ledger
}

func seedLedger(t *testing.T, ledger *fakeLedger) {
	t.Helper()
	ctx := context.Background()
	category := "sports"
	require.NoError(t, ledger.Append(ctx, &models.Announcement{
		ID:       "a-1",
		Title:    "game night",
		Type:     models.TypeText,
		Category: &category,
		Priority: 3,
	}, models.HistoryActionCreated, "admin", time.Now().UTC()))
	require.NoError(t, ledger.Append(ctx, &models.Announcement{
		ID:    "a-1",
		Title: "game night",
	}, models.HistoryActionDeleted, "admin", time.Now().UTC()))
}

func TestHistoryListFiltersByAction(t *testing.T) {
	svc, ledger := newHistoryFixture(t)
	seedLedger(t, ledger)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deleted, err := svc.List(context.Background(), models.HistoryActionDeleted)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, models.HistoryActionDeleted, deleted[0].Action)
}

func TestHistoryExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newHistoryFixture(t)

	_, err := svc.Export(context.Background(), "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestHistoryExportCSVRoundTrip(t *testing.T) {
	svc, ledger := newHistoryFixture(t)
	seedLedger(t, ledger)

	result, err := svc.Export(context.Background(), ExportFormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.FileName, "history-"))
	assert.True(t, strings.HasSuffix(result.FileName, ".csv"))
	assert.NotEmpty(t, result.Token)

	path, name, err := svc.ResolveExport(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.FileName, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "game night")
	assert.Contains(t, content, models.HistoryActionDeleted)
	assert.Contains(t, content, "sports")
}

func TestHistoryExportPDF(t *testing.T) {
	svc, ledger := newHistoryFixture(t)
	seedLedger(t, ledger)

	result, err := svc.Export(context.Background(), ExportFormatPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.FileName, ".pdf"))

	path, _, err := svc.ResolveExport(result.Token)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestHistoryResolveExportRejectsBadToken(t *testing.T) {
	svc, ledger := newHistoryFixture(t)
	seedLedger(t, ledger)

	result, err := svc.Export(context.Background(), ExportFormatCSV)
	require.NoError(t, err)

	_, _, err = svc.ResolveExport("not.a.real.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	tampered := result.Token[:len(result.Token)-2] + "zz"
	_, _, err = svc.ResolveExport(tampered)
	require.Error(t, err)
}
