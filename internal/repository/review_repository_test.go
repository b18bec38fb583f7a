package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/models"
)

func newReviewRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func resourceRows(id string, status models.ResourceStatus, pointer int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "type", "organization_id", "author_id", "title", "payload", "status", "stage_pointer", "last_reviewed_on", "submitted_on", "published_on", "created_at", "updated_at", "deleted"}).
		AddRow(id, "project", "org-1", "author-1", "Q3 launch plan", []byte(`{}`), status, pointer, nil, nil, nil, time.Now(), time.Now(), false)
}

func TestReviewRepositoryTransactCommits(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("res-1").
		WillReturnRows(resourceRows("res-1", models.ResourceStatusInReview, 0))
	mock.ExpectCommit()

	err := repo.Transact(context.Background(), func(tx ReviewUnit) error {
		resource, err := tx.GetResourceForUpdate(context.Background(), "res-1")
		require.NoError(t, err)
		require.Equal(t, models.ResourceStatusInReview, resource.Status)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryTransactRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("decision failed")
	err := repo.Transact(context.Background(), func(ReviewUnit) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTxGetLedgerEntryAbsent(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM reviews WHERE resource_id = $1 AND reviewer_id = $2")).
		WithArgs("res-1", "rev-x").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	err := repo.Transact(context.Background(), func(tx ReviewUnit) error {
		entry, err := tx.GetLedgerEntry(context.Background(), "res-1", "rev-x")
		require.NoError(t, err)
		require.Nil(t, entry)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTxCountApprovalsExcludesReviewer(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reviews WHERE resource_id = $1 AND reviewer_id <> $2 AND status = $3")).
		WithArgs("res-1", "rev-y", string(models.ReviewStatusApproved)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Transact(context.Background(), func(tx ReviewUnit) error {
		count, err := tx.CountApprovals(context.Background(), "res-1", "rev-y")
		require.NoError(t, err)
		require.Equal(t, 1, count)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTxInsertLedgerEntryUniqueViolation(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reviews")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Transact(context.Background(), func(tx ReviewUnit) error {
		return tx.InsertLedgerEntry(context.Background(), &models.ReviewLedgerEntry{
			ResourceID:     "res-1",
			ReviewerID:     "rev-x",
			OrganizationID: "org-1",
			Status:         models.ReviewStatusInProgress,
		})
	})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTxUpdateLedgerStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reviews SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transact(context.Background(), func(tx ReviewUnit) error {
		return tx.UpdateLedgerStatus(context.Background(), "review-1", models.ReviewStatusApproved, nil)
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTxUpdateResourceDecision(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE resources SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := repo.Transact(context.Background(), func(tx ReviewUnit) error {
		return tx.UpdateResourceDecision(context.Background(), ResourceDecisionParams{
			ID:           "res-1",
			Status:       models.ResourceStatusPublished,
			StagePointer: 2,
			PublishedOn:  &now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepositoryListLedgerFilters(t *testing.T) {
	db, mock, cleanup := newReviewRepoMock(t)
	defer cleanup()

	repo := NewReviewRepository(db)
	rows := sqlmock.NewRows([]string{"id", "resource_id", "reviewer_id", "organization_id", "status", "notes", "created_at", "updated_at"}).
		AddRow("review-1", "res-1", "rev-x", "org-1", "APPROVED", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM reviews")).
		WithArgs("res-1", string(models.ReviewStatusApproved)).
		WillReturnRows(rows)

	entries, err := repo.ListLedger(context.Background(), models.ReviewFilter{
		ResourceID: "res-1",
		Status:     []models.ReviewStatus{models.ReviewStatusApproved},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "rev-x", entries[0].ReviewerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresErrorClassifiers(t *testing.T) {
	require.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pq.Error{Code: "40001"}))
	require.True(t, IsSerializationFailure(&pq.Error{Code: "40001"}))
	require.True(t, IsSerializationFailure(&pq.Error{Code: "40P01"}))
	require.False(t, IsSerializationFailure(errors.New("plain")))
}
