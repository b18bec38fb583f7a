package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type authRepoStub struct {
	userByEmail      *models.User
	userByID         *models.User
	refreshTokens    map[string]*models.RefreshToken
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
}

func (m *authRepoStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, errors.New("not found")
	}
	return m.userByEmail, nil
}

func (m *authRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if m.userByID != nil {
		return m.userByID, nil
	}
	return m.userByEmail, nil
}

func (m *authRepoStub) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *authRepoStub) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *authRepoStub) RevokeUserRefreshTokens(_ context.Context, _ string) error {
	return nil
}

func (m *authRepoStub) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *authRepoStub) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return rt, nil
}

func (m *authRepoStub) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *authRepoStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthService(repo *authRepoStub) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
}

func reviewerUser(password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return &models.User{
		ID:             "u-1",
		Email:          "reviewer@example.com",
		PasswordHash:   string(hash),
		Active:         true,
		Role:           models.RoleReviewer,
		ReviewRole:     "EDITOR",
		OrganizationID: "org-1",
	}
}

func TestAuthLoginIssuesSession(t *testing.T) {
	repo := &authRepoStub{userByEmail: reviewerUser("password")}
	svc := newAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "reviewer@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "EDITOR", res.User.ReviewRole)
	assert.Equal(t, "org-1", res.User.OrganizationID)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := &authRepoStub{userByEmail: reviewerUser("password")}
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "reviewer@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	user := reviewerUser("password")
	user.Active = false
	svc := newAuthService(&authRepoStub{userByEmail: user})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "reviewer@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	user := reviewerUser("password")
	repo := &authRepoStub{
		userByEmail: user,
		userByID:    user,
		refreshTokens: map[string]*models.RefreshToken{
			"token": {ID: "rt-1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}
	svc := newAuthService(repo)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthChangePassword(t *testing.T) {
	user := reviewerUser("old-password")
	oldHash := user.PasswordHash
	svc := newAuthService(&authRepoStub{userByEmail: user})

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{OldPassword: "old-password", NewPassword: "new-password"})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, user.PasswordHash)
}

func TestAuthValidateTokenCarriesReviewClaims(t *testing.T) {
	svc := newAuthService(&authRepoStub{})
	user := reviewerUser("password")

	token, _, err := svc.mintAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleReviewer, claims.Role)
	assert.Equal(t, "EDITOR", claims.ReviewRole)
	assert.Equal(t, "org-1", claims.OrganizationID)
}
