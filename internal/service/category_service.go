package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

type categoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	List(ctx context.Context) ([]models.Category, error)
	GetByID(ctx context.Context, id string) (*models.Category, error)
	GetByName(ctx context.Context, name string) (*models.Category, error)
	Delete(ctx context.Context, id string) error
}

type credentialCounter interface {
	CountByCategory(ctx context.Context, categoryID string) (int, error)
}

// CategoryService manages display categories.
type CategoryService struct {
	repo        categoryRepository
	credentials credentialCounter
	ledger      historyLedger
	logger      *zap.Logger
}

// NewCategoryService constructs the service.
func NewCategoryService(repo categoryRepository, credentials credentialCounter, ledger historyLedger, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, credentials: credentials, ledger: ledger, logger: logger}
}

// Create registers a new category. Names are unique case-insensitively.
func (s *CategoryService) Create(ctx context.Context, name, userEmail string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category name required")
	}
	if strings.EqualFold(name, CategoryAll) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category name is reserved")
	}
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check category")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "category already exists")
	}

	category := &models.Category{Name: name}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionCategoryCreated, userEmail, fmt.Sprintf("category %q created", name)); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "category_created", "error", err)
	}
	return category, nil
}

// List returns all categories.
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// Delete removes a category. Deletion is blocked while any display
// credential is still bound to it.
func (s *CategoryService) Delete(ctx context.Context, id, userEmail string) error {
	category, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	bound, err := s.credentials.CountByCategory(ctx, category.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check category bindings")
	}
	if bound > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "category is still bound to display credentials")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}
	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionCategoryDeleted, userEmail, fmt.Sprintf("category %q deleted", category.Name)); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "category_deleted", "error", err)
	}
	return nil
}
