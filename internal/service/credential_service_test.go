package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signly/signage-api/internal/models"
	appErrors "github.com/signly/signage-api/pkg/errors"
)

type fakeCredentialRepo struct {
	mu   sync.Mutex
	rows map[string]models.DisplayCredential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{rows: map[string]models.DisplayCredential{}}
}

func (f *fakeCredentialRepo) Create(_ context.Context, credential *models.DisplayCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[credential.ID] = *credential
	return nil
}

func (f *fakeCredentialRepo) List(context.Context) ([]models.DisplayCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.DisplayCredential, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeCredentialRepo) GetByID(_ context.Context, id string) (*models.DisplayCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (f *fakeCredentialRepo) FindByUsername(_ context.Context, username string) (*models.DisplayCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Username == username {
			copied := row
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCredentialRepo) CountByCategory(_ context.Context, categoryID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.Category != nil && *row.Category == categoryID {
			n++
		}
	}
	return n, nil
}

func (f *fakeCredentialRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

func newCredentialFixture() (*CredentialService, *fakeCredentialRepo, *fakeLedger) {
	repo := newFakeCredentialRepo()
	ledger := &fakeLedger{}
	svc := NewCredentialService(repo, ledger, nil, "test-secret", time.Hour)
	return svc, repo, ledger
}

func TestCredentialCreateAndLogin(t *testing.T) {
	svc, _, ledger := newCredentialFixture()
	ctx := context.Background()

	credential, err := svc.Create(ctx, CreateCredentialRequest{
		Username: "lobby-screen",
		Password: "correct horse battery",
		Role:     models.RoleDisplay,
	}, "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, credential.ID)
	assert.NotEqual(t, "correct horse battery", credential.PasswordHash)
	assert.Equal(t, 1, ledger.countAction(models.HistoryActionCredentialCreated))

	result, err := svc.Login(ctx, "lobby-screen", "correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))
	assert.Equal(t, 1, ledger.countAction(models.HistoryActionLogin))
}

func TestCredentialLoginRejectsWrongPassword(t *testing.T) {
	svc, _, ledger := newCredentialFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCredentialRequest{
		Username: "lobby-screen",
		Password: "correct horse battery",
		Role:     models.RoleDisplay,
	}, "admin")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "lobby-screen", "wrong password")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(ctx, "no-such-user", "whatever!")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, ledger.countAction(models.HistoryActionLogin))
}

func TestCredentialCreateRejectsDuplicateUsername(t *testing.T) {
	svc, _, _ := newCredentialFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateCredentialRequest{
		Username: "lobby-screen",
		Password: "password-one",
		Role:     models.RoleDisplay,
	}, "admin")
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateCredentialRequest{
		Username: "lobby-screen",
		Password: "password-two",
		Role:     models.RoleAdmin,
	}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCredentialCreateValidation(t *testing.T) {
	svc, _, _ := newCredentialFixture()
	ctx := context.Background()

	cases := []CreateCredentialRequest{
		{Username: "", Password: "long enough pass", Role: models.RoleDisplay},
		{Username: "screen", Password: "short", Role: models.RoleDisplay},
		{Username: "screen", Password: "long enough pass", Role: "SUPERUSER"},
	}
	for _, req := range cases {
		_, err := svc.Create(ctx, req, "admin")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestCredentialTokenRoundTrip(t *testing.T) {
	svc, _, _ := newCredentialFixture()
	ctx := context.Background()

	category := "sports"
	_, err := svc.Create(ctx, CreateCredentialRequest{
		Username: "hall-screen",
		Password: "a safe password",
		Role:     models.RoleDisplay,
		Category: &category,
	}, "admin")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "hall-screen", "a safe password")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "hall-screen", claims.Username)
	assert.Equal(t, models.RoleDisplay, claims.Role)
	require.NotNil(t, claims.Category)
	assert.Equal(t, "sports", *claims.Category)

	_, err = svc.ValidateToken(result.Token + "tampered")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	other := NewCredentialService(newFakeCredentialRepo(), &fakeLedger{}, nil, "another-secret", time.Hour)
	_, err = other.ValidateToken(result.Token)
	require.Error(t, err)
}

func TestCredentialDelete(t *testing.T) {
	svc, repo, ledger := newCredentialFixture()
	ctx := context.Background()

	credential, err := svc.Create(ctx, CreateCredentialRequest{
		Username: "old-screen",
		Password: "a safe password",
		Role:     models.RoleDisplay,
	}, "admin")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, credential.ID, "admin"))
	assert.Empty(t, repo.rows)
	assert.Equal(t, 1, ledger.countAction(models.HistoryActionCredentialDeleted))

	err = svc.Delete(ctx, credential.ID, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
