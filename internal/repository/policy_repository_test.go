package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/models"
)

func newPolicyRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPolicyRepositoryGetWithStages(t *testing.T) {
	db, mock, cleanup := newPolicyRepoMock(t)
	defer cleanup()

	repo := NewPolicyRepository(db)
	policyRows := sqlmock.NewRows([]string{"id", "organization_id", "resource_type", "review_required", "review_type", "min_approval", "rejectable", "updated_at"}).
		AddRow("pol-1", "org-1", "project", true, "SEQUENTIAL", 1, true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_policies WHERE organization_id = $1 AND resource_type = $2")).
		WithArgs("org-1", "project").
		WillReturnRows(policyRows)
	stageRows := sqlmock.NewRows([]string{"id", "organization_id", "resource_type", "role", "level", "created_at"}).
		AddRow("stage-1", "org-1", "project", "EDITOR", 1, time.Now()).
		AddRow("stage-2", "org-1", "project", "LEGAL", 2, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_stages WHERE organization_id = $1 AND resource_type = $2 ORDER BY level ASC")).
		WithArgs("org-1", "project").
		WillReturnRows(stageRows)

	policy, err := repo.Get(context.Background(), "org-1", "project")
	require.NoError(t, err)
	require.Equal(t, models.ReviewTypeSequential, policy.ReviewType)
	require.Len(t, policy.Stages, 2)
	require.Equal(t, "LEGAL", policy.Stages[1].Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryGetMissingOverride(t *testing.T) {
	db, mock, cleanup := newPolicyRepoMock(t)
	defer cleanup()

	repo := NewPolicyRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM review_policies")).
		WithArgs("org-1", "assessment").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "org-1", "assessment")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryUpsertReplacesStages(t *testing.T) {
	db, mock, cleanup := newPolicyRepoMock(t)
	defer cleanup()

	repo := NewPolicyRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_policies")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_stages")).
		WithArgs("org-1", "project").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_stages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_stages")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	policy := &models.ReviewPolicy{
		OrganizationID: "org-1",
		ResourceType:   "project",
		ReviewRequired: true,
		ReviewType:     models.ReviewTypeSequential,
		MinApproval:    1,
		Rejectable:     true,
		Stages: []models.ReviewStage{
			{Role: "EDITOR", Level: 1},
			{Role: "LEGAL", Level: 2},
		},
	}
	require.NoError(t, repo.Upsert(context.Background(), policy))
	require.NotEmpty(t, policy.ID)
	require.Equal(t, "org-1", policy.Stages[0].OrganizationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newPolicyRepoMock(t)
	defer cleanup()

	repo := NewPolicyRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_stages")).
		WithArgs("org-1", "project").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_policies")).
		WithArgs("org-1", "project").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "org-1", "project")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
