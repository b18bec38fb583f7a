package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type userAdminRepoStub struct {
	users  map[string]*models.User
	audits []*models.AuditLog
}

func newUserAdminRepoStub(seed ...*models.User) *userAdminRepoStub {
	stub := &userAdminRepoStub{users: map[string]*models.User{}}
	for _, u := range seed {
		stub.users[u.ID] = u
	}
	return stub
}

func (s *userAdminRepoStub) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *userAdminRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (s *userAdminRepoStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *userAdminRepoStub) Create(_ context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *userAdminRepoStub) Update(_ context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *userAdminRepoStub) Delete(_ context.Context, id string) error {
	if u, ok := s.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (s *userAdminRepoStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func seedReviewer(id, email, reviewRole string) *models.User {
	return &models.User{
		ID:             id,
		Email:          email,
		FullName:       "Reviewer " + id,
		Role:           models.RoleReviewer,
		ReviewRole:     reviewRole,
		OrganizationID: "org-1",
		Active:         true,
	}
}

func TestUserServiceListFiltersByRole(t *testing.T) {
	repo := newUserAdminRepoStub(
		seedReviewer("u1", "editor@example.com", "EDITOR"),
		seedReviewer("u2", "legal@example.com", "LEGAL"),
		&models.User{ID: "u3", Email: "author@example.com", Role: models.RoleAuthor, OrganizationID: "org-1", Active: true},
	)
	svc := NewUserService(repo, nil, nil)

	reviewer := models.RoleReviewer
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Role: &reviewer})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}

func TestUserServiceCreateNormalizesReviewFields(t *testing.T) {
	repo := newUserAdminRepoStub()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:          "New.Reviewer@Example.com",
		FullName:       "New Reviewer",
		Role:           models.RoleReviewer,
		ReviewRole:     "  editor ",
		OrganizationID: "org-1",
		Active:         true,
		Password:       "secret123",
	}, "admin-1", models.LoginRequest{IP: "10.0.0.1"})

	require.NoError(t, err)
	assert.Equal(t, "new.reviewer@example.com", user.Email)
	assert.Equal(t, "EDITOR", user.ReviewRole)
	assert.Equal(t, "org-1", user.OrganizationID)
	assert.NotEmpty(t, user.PasswordHash)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.audits[0].Action)
	assert.Equal(t, "10.0.0.1", repo.audits[0].IPAddress)
}

func TestUserServiceCreateRejectsDuplicateEmail(t *testing.T) {
	repo := newUserAdminRepoStub(seedReviewer("u1", "editor@example.com", "EDITOR"))
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:          "editor@example.com",
		FullName:       "Duplicate",
		Role:           models.RoleReviewer,
		OrganizationID: "org-1",
		Password:       "secret123",
	}, "admin-1", models.LoginRequest{})

	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, repo.audits)
}

func TestUserServiceUpdateChangesReviewRole(t *testing.T) {
	repo := newUserAdminRepoStub(seedReviewer("u1", "editor@example.com", "EDITOR"))
	svc := NewUserService(repo, nil, nil)

	legal := "legal"
	inactive := false
	user, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName:   "Moved To Legal",
		Role:       models.RoleReviewer,
		ReviewRole: &legal,
		Active:     &inactive,
	}, "admin-1", models.LoginRequest{})

	require.NoError(t, err)
	assert.Equal(t, "LEGAL", user.ReviewRole)
	assert.False(t, user.Active)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserUpdate, repo.audits[0].Action)
}

func TestUserServiceDeleteDeactivates(t *testing.T) {
	repo := newUserAdminRepoStub(seedReviewer("u1", "editor@example.com", "EDITOR"))
	svc := NewUserService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "u1", "admin-1", models.LoginRequest{}))
	assert.False(t, repo.users["u1"].Active)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.audits[0].Action)
}

func TestUserServiceGetMissingUser(t *testing.T) {
	svc := NewUserService(newUserAdminRepoStub(), nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
