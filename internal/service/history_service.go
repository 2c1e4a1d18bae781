package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/dto"
	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
	"github.com/signly/signage-api/pkg/export"
)

// Export formats for history downloads.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Path(filename string) string
}

type exportSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (exportID, relPath string, expiresAt time.Time, err error)
}

// ExportResult points at a rendered history export.
type ExportResult struct {
	ExportID  string    `json:"export_id"`
	FileName  string    `json:"file_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HistoryService reads the audit ledger and renders downloadable exports.
type HistoryService struct {
	ledger historyLedger
	store  exportStore
	signer exportSigner
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewHistoryService constructs the service.
func NewHistoryService(ledger historyLedger, store exportStore, signer exportSigner, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		ledger: ledger,
		store:  store,
		signer: signer,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// List returns audit entries, optionally filtered to specific actions,
// newest first.
func (s *HistoryService) List(ctx context.Context, actions ...string) ([]dto.HistoryEntryDTO, error) {
	entries, err := s.ledger.List(ctx, actions...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list history")
	}
	result := make([]dto.HistoryEntryDTO, 0, len(entries))
	for i := range entries {
		result = append(result, dto.FromHistoryEntry(&entries[i]))
	}
	return result, nil
}

// Export renders the audit ledger to a file and returns a signed download
// token for it.
func (s *HistoryService) Export(ctx context.Context, format string, actions ...string) (*ExportResult, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	entries, err := s.ledger.List(ctx, actions...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	dataset := historyDataset(entries)
	exportID := uuid.NewString()
	fileName := fmt.Sprintf("history-%s-%s.%s", time.Now().UTC().Format("20060102-150405"), exportID[:8], format)

	var rendered []byte
	switch format {
	case ExportFormatCSV:
		rendered, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		rendered, err = s.pdf.Render(dataset, "Announcement History")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	if _, err := s.store.Save(fileName, rendered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}
	return &ExportResult{ExportID: exportID, FileName: fileName, Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveExport validates a download token and returns the local path and
// display name of the exported file.
func (s *HistoryService) ResolveExport(token string) (path, name string, err error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	file.Close() //nolint:errcheck
	return s.store.Path(relPath), relPath, nil
}

func historyDataset(entries []models.HistoryEntry) export.Dataset {
	rows := make([][]string, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		category := ""
		if e.Announcement.Category != nil {
			category = *e.Announcement.Category
		}
		rows = append(rows, []string{
			e.ID,
			e.Action,
			e.ActionAt.UTC().Format(time.RFC3339),
			e.UserEmail,
			e.Announcement.Title,
			e.Announcement.Type,
			category,
			strconv.Itoa(e.Announcement.Priority),
		})
	}
	return export.Dataset{
		Headers: []string{"ID", "Action", "At", "User", "Title", "Type", "Category", "Priority"},
		Rows:    rows,
	}
}
