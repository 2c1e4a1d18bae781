package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

type credentialRepository interface {
	Create(ctx context.Context, credential *models.DisplayCredential) error
	List(ctx context.Context) ([]models.DisplayCredential, error)
	GetByID(ctx context.Context, id string) (*models.DisplayCredential, error)
	FindByUsername(ctx context.Context, username string) (*models.DisplayCredential, error)
	CountByCategory(ctx context.Context, categoryID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// CreateCredentialRequest registers an admin or display login.
type CreateCredentialRequest struct {
	Username string  `json:"username" validate:"required,min=3"`
	Password string  `json:"password" validate:"required,min=8"`
	Role     string  `json:"role" validate:"required,oneof=ADMIN DISPLAY"`
	Category *string `json:"category"`
}

// LoginResult carries the issued token and its subject.
type LoginResult struct {
	Token      string                    `json:"token"`
	ExpiresAt  time.Time                 `json:"expires_at"`
	Credential *models.DisplayCredential `json:"credential"`
}

// CredentialService manages display credentials and token issuance.
type CredentialService struct {
	repo       credentialRepository
	ledger     historyLedger
	logger     *zap.Logger
	secret     []byte
	expiration time.Duration
}

// NewCredentialService constructs the service.
func NewCredentialService(repo credentialRepository, ledger historyLedger, logger *zap.Logger, secret string, expiration time.Duration) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &CredentialService{
		repo:       repo,
		ledger:     ledger,
		logger:     logger,
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Create registers a credential with a bcrypt-hashed password.
func (s *CredentialService) Create(ctx context.Context, req CreateCredentialRequest, userEmail string) (*models.DisplayCredential, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(req.Password) < 8 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "username and a password of at least 8 characters are required")
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleDisplay {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be ADMIN or DISPLAY")
	}

	existing, err := s.repo.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	credential := &models.DisplayCredential{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         req.Role,
		Category:     req.Category,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, credential); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create credential")
	}
	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionCredentialCreated, userEmail, fmt.Sprintf("credential %q created with role %s", username, req.Role)); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "credential_created", "error", err)
	}
	return credential, nil
}

// List returns all credentials. Password hashes stay server-side through
// the model's JSON tags.
func (s *CredentialService) List(ctx context.Context) ([]models.DisplayCredential, error) {
	credentials, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list credentials")
	}
	return credentials, nil
}

// Delete removes a credential.
func (s *CredentialService) Delete(ctx context.Context, id, userEmail string) error {
	credential, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credential")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "credential not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete credential")
	}
	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionCredentialDeleted, userEmail, fmt.Sprintf("credential %q deleted", credential.Username)); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "credential_deleted", "error", err)
	}
	return nil
}

// Login verifies the password and issues a signed token.
func (s *CredentialService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	credential, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credential")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(s.expiration)
	claims := models.JWTClaims{
		CredentialID: credential.ID,
		Username:     credential.Username,
		Role:         credential.Role,
		Category:     credential.Category,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   credential.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionLogin, credential.Username, "login"); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "login", "error", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Credential: credential}, nil
}

// Logout records the audit event; tokens themselves are stateless.
func (s *CredentialService) Logout(ctx context.Context, username string) error {
	if err := s.ledger.AppendSystemEvent(ctx, models.HistoryActionLogout, username, "logout"); err != nil {
		s.logger.Sugar().Warnw("history append failed", "action", "logout", "error", err)
	}
	return nil
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *CredentialService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}
