package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type authRepoStub struct {
	users     map[string]*models.User
	lastLogin map[string]time.Time
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if s.lastLogin == nil {
		s.lastLogin = make(map[string]time.Time)
	}
	s.lastLogin[id] = ts
	return nil
}

func newTestAuthService(t *testing.T, repo *authRepoStub) *AuthService {
	t.Helper()
	return NewAuthService(repo, nil, nil, AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "chronalive-test",
	})
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testUser(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	return &models.User{
		ID:           "user-1",
		SchoolID:     "school-1",
		Email:        "alex@example.com",
		PasswordHash: hashPassword(t, "s3cret"),
		FullName:     "Alex Doe",
		Role:         role,
		Active:       true,
	}
}

func TestLoginSuccess(t *testing.T) {
	user := testUser(t, models.RoleTeacher)
	repo := &authRepoStub{users: map[string]*models.User{user.ID: user}}
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)
	assert.Contains(t, repo.lastLogin, "user-1")
}

func TestLoginWrongPassword(t *testing.T) {
	user := testUser(t, models.RoleTeacher)
	repo := &authRepoStub{users: map[string]*models.User{user.ID: user}}
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestAuthService(t, &authRepoStub{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := testUser(t, models.RoleTeacher)
	user.Active = false
	repo := &authRepoStub{users: map[string]*models.User{user.ID: user}}
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginRejectsMalformedPayload(t *testing.T) {
	svc := newTestAuthService(t, &authRepoStub{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	user := testUser(t, models.RoleAdmin)
	repo := &authRepoStub{users: map[string]*models.User{user.ID: user}}
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "school-1", claims.SchoolID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "chronalive-test", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	user := testUser(t, models.RoleAdmin)
	repo := &authRepoStub{users: map[string]*models.User{user.ID: user}}
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@example.com", Password: "s3cret"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{Secret: "different", Expiration: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := newTestAuthService(t, &authRepoStub{})

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
