package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/signly/signage-api/internal/models"
)

// CredentialRepository persists display/admin credentials.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository constructs the repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a new credential.
func (r *CredentialRepository) Create(ctx context.Context, credential *models.DisplayCredential) error {
	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO display_credentials (id, username, password_hash, role, category, created_at)
VALUES (:id, :username, :password_hash, :role, :category, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, credential); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// List returns all credentials.
func (r *CredentialRepository) List(ctx context.Context) ([]models.DisplayCredential, error) {
	var credentials []models.DisplayCredential
	const query = `SELECT id, username, password_hash, role, category, created_at FROM display_credentials ORDER BY username`
	if err := r.db.SelectContext(ctx, &credentials, query); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return credentials, nil
}

// GetByID returns one credential.
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.DisplayCredential, error) {
	var credential models.DisplayCredential
	const query = `SELECT id, username, password_hash, role, category, created_at FROM display_credentials WHERE id = $1`
	if err := r.db.GetContext(ctx, &credential, query, id); err != nil {
		return nil, err
	}
	return &credential, nil
}

// FindByUsername returns one credential by username.
func (r *CredentialRepository) FindByUsername(ctx context.Context, username string) (*models.DisplayCredential, error) {
	var credential models.DisplayCredential
	const query = `SELECT id, username, password_hash, role, category, created_at FROM display_credentials WHERE username = $1`
	if err := r.db.GetContext(ctx, &credential, query, username); err != nil {
		return nil, err
	}
	return &credential, nil
}

// CountByCategory reports how many credentials are bound to a category.
// Category deletion is blocked while this is non-zero.
func (r *CredentialRepository) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM display_credentials WHERE category = $1`
	if err := r.db.GetContext(ctx, &count, query, categoryID); err != nil {
		return 0, fmt.Errorf("count credentials by category: %w", err)
	}
	return count, nil
}

// Delete removes a credential row.
func (r *CredentialRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM display_credentials WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check credential delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
