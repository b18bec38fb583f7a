package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/models"
)

func newUserRepoMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewUserRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "role", "review_role",
		"organization_id", "active", "last_login", "created_at", "updated_at",
	}).AddRow("u-1", "reviewer@example.com", "hash", "Reviewer", string(models.RoleReviewer),
		"EDITOR", "org-1", true, now, now, now)
}

func TestUserFindByEmail(t *testing.T) {
	repo, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, review_role, organization_id, active, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("reviewer@example.com").
		WillReturnRows(userRows(time.Now()))

	user, err := repo.FindByEmail(context.Background(), "reviewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleReviewer, user.Role)
	assert.Equal(t, "EDITOR", user.ReviewRole)
	assert.Equal(t, "org-1", user.OrganizationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserListAppliesFilter(t *testing.T) {
	repo, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, email, password_hash, full_name, role, review_role, organization_id, active, last_login, created_at, updated_at FROM users WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WillReturnRows(userRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateWritesReviewRole(t *testing.T) {
	repo, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE users SET full_name = .+, role = .+, review_role = .+, active = .+, updated_at = .+ WHERE id = .+").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.User{
		ID:         "u-1",
		FullName:   "Reviewer",
		Role:       models.RoleReviewer,
		ReviewRole: "LEGAL",
		Active:     true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateRefreshToken(t *testing.T) {
	repo, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{
		ID: "t-1", UserID: "u-1", Token: "token",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
