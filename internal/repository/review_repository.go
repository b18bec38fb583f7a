package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quillstage/quillstage-api/internal/models"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a Postgres unique-key violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}

// IsSerializationFailure reports whether err is a retryable transaction
// conflict (serialization failure or deadlock).
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return code == pqSerializationFailure || code == pqDeadlockDetected
}

// ReviewRepository persists the review ledger, assignment marks, and the
// resource rows they gate. All decision writes go through Transact.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ReviewUnit exposes the operations legal inside one atomic decision unit.
type ReviewUnit interface {
	GetResourceForUpdate(ctx context.Context, id string) (*models.Resource, error)
	GetLedgerEntry(ctx context.Context, resourceID, reviewerID string) (*models.ReviewLedgerEntry, error)
	CountApprovals(ctx context.Context, resourceID, excludeReviewerID string) (int, error)
	InsertLedgerEntry(ctx context.Context, entry *models.ReviewLedgerEntry) error
	InsertAssignmentMark(ctx context.Context, mark *models.ReviewAssignmentMark) error
	UpdateLedgerStatus(ctx context.Context, id string, status models.ReviewStatus, notes *string) error
	UpdateResourceDecision(ctx context.Context, params ResourceDecisionParams) error
}

// ReviewTx is the database-backed ReviewUnit.
type ReviewTx struct {
	tx *sqlx.Tx
}

// Transact runs fn inside a serializable transaction. The resource row is
// the sole point of contention; fn is expected to lock it first via
// GetResourceForUpdate so the ledger aggregate and the status write cannot
// interleave with a concurrent decision.
func (r *ReviewRepository) Transact(ctx context.Context, fn func(ReviewUnit) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin review tx: %w", err)
	}
	if err := fn(&ReviewTx{tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review tx: %w", err)
	}
	return nil
}

// GetResourceForUpdate loads and row-locks the resource for the duration of
// the transaction.
func (t *ReviewTx) GetResourceForUpdate(ctx context.Context, id string) (*models.Resource, error) {
	const query = `SELECT id, type, organization_id, author_id, title, payload, status, stage_pointer,
       last_reviewed_on, submitted_on, published_on, created_at, updated_at, deleted
	FROM resources WHERE id = $1 AND deleted = FALSE FOR UPDATE`
	var resource models.Resource
	if err := t.tx.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// GetLedgerEntry returns the reviewer's ledger entry, or nil when the
// reviewer has not engaged with the resource yet.
func (t *ReviewTx) GetLedgerEntry(ctx context.Context, resourceID, reviewerID string) (*models.ReviewLedgerEntry, error) {
	const query = `SELECT id, resource_id, reviewer_id, organization_id, status, notes, created_at, updated_at
	FROM reviews WHERE resource_id = $1 AND reviewer_id = $2 LIMIT 1`
	var entry models.ReviewLedgerEntry
	if err := t.tx.GetContext(ctx, &entry, query, resourceID, reviewerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return &entry, nil
}

// CountApprovals recomputes the approval aggregate from the ledger,
// excluding the acting reviewer. It must run under the resource row lock;
// a cached running total is never trusted.
func (t *ReviewTx) CountApprovals(ctx context.Context, resourceID, excludeReviewerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM reviews WHERE resource_id = $1 AND reviewer_id <> $2 AND status = $3`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, resourceID, excludeReviewerID, models.ReviewStatusApproved); err != nil {
		return 0, fmt.Errorf("count approvals: %w", err)
	}
	return count, nil
}

// InsertLedgerEntry creates the reviewer's ledger row. The unique key on
// (resource_id, reviewer_id) is the concurrency control for duplicate
// starts; callers map the violation to an already-reviewing error.
func (t *ReviewTx) InsertLedgerEntry(ctx context.Context, entry *models.ReviewLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	const query = `INSERT INTO reviews (id, resource_id, reviewer_id, organization_id, status, notes, created_at, updated_at)
	VALUES (:id, :resource_id, :reviewer_id, :organization_id, :status, :notes, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// InsertAssignmentMark records the append-only engagement proof created
// alongside the first ledger entry.
func (t *ReviewTx) InsertAssignmentMark(ctx context.Context, mark *models.ReviewAssignmentMark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	if mark.CreatedAt.IsZero() {
		mark.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO review_resources (id, resource_id, reviewer_id, created_at)
	VALUES (:id, :resource_id, :reviewer_id, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, mark); err != nil {
		return fmt.Errorf("insert assignment mark: %w", err)
	}
	return nil
}

// UpdateLedgerStatus moves the reviewer's entry to a new verdict.
func (t *ReviewTx) UpdateLedgerStatus(ctx context.Context, id string, status models.ReviewStatus, notes *string) error {
	const query = `UPDATE reviews SET status = $2, notes = COALESCE($3, notes), updated_at = $4 WHERE id = $1`
	result, err := t.tx.ExecContext(ctx, query, id, status, notes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update ledger status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check ledger update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResourceDecisionParams groups the columns a workflow decision may write.
type ResourceDecisionParams struct {
	ID             string
	Status         models.ResourceStatus
	StagePointer   int
	LastReviewedOn *time.Time
	SubmittedOn    *time.Time
	PublishedOn    *time.Time
}

// UpdateResourceDecision persists the engine's outcome for the locked row.
func (t *ReviewTx) UpdateResourceDecision(ctx context.Context, params ResourceDecisionParams) error {
	const query = `UPDATE resources SET
		status = :status,
		stage_pointer = :stage_pointer,
		last_reviewed_on = COALESCE(:last_reviewed_on, last_reviewed_on),
		submitted_on = COALESCE(:submitted_on, submitted_on),
		published_on = COALESCE(:published_on, published_on),
		updated_at = :updated_at
	WHERE id = :id`
	result, err := t.tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"stage_pointer":    params.StagePointer,
		"last_reviewed_on": params.LastReviewedOn,
		"submitted_on":     params.SubmittedOn,
		"published_on":     params.PublishedOn,
		"updated_at":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update resource decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resource update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetLedgerEntry is the non-transactional read used by listings.
func (r *ReviewRepository) GetLedgerEntry(ctx context.Context, resourceID, reviewerID string) (*models.ReviewLedgerEntry, error) {
	const query = `SELECT id, resource_id, reviewer_id, organization_id, status, notes, created_at, updated_at
	FROM reviews WHERE resource_id = $1 AND reviewer_id = $2 LIMIT 1`
	var entry models.ReviewLedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, resourceID, reviewerID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListLedger returns ledger entries matching the filter (latest first).
func (r *ReviewRepository) ListLedger(ctx context.Context, filter models.ReviewFilter) ([]models.ReviewLedgerEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, resource_id, reviewer_id, organization_id, status, notes, created_at, updated_at FROM reviews`)

	conditions := make([]string, 0, 3)
	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		conditions = append(conditions, fmt.Sprintf("reviewer_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY updated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.ReviewLedgerEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return entries, nil
}

// ListAssignments returns the assignment marks for a resource, oldest first,
// driving "who is actively reviewing" listings.
func (r *ReviewRepository) ListAssignments(ctx context.Context, resourceID string) ([]models.ReviewAssignmentMark, error) {
	const query = `SELECT id, resource_id, reviewer_id, created_at
	FROM review_resources WHERE resource_id = $1 ORDER BY created_at ASC`
	var marks []models.ReviewAssignmentMark
	if err := r.db.SelectContext(ctx, &marks, query, resourceID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return marks, nil
}

// ListReviewerAssignments returns the resources a reviewer has engaged with.
func (r *ReviewRepository) ListReviewerAssignments(ctx context.Context, reviewerID string) ([]models.ReviewAssignmentMark, error) {
	const query = `SELECT id, resource_id, reviewer_id, created_at
	FROM review_resources WHERE reviewer_id = $1 ORDER BY created_at DESC`
	var marks []models.ReviewAssignmentMark
	if err := r.db.SelectContext(ctx, &marks, query, reviewerID); err != nil {
		return nil, fmt.Errorf("list reviewer assignments: %w", err)
	}
	return marks, nil
}
