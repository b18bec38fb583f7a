package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quillstage/quillstage-api/internal/models"
)

// CommentRepository persists structured comments attached to review actions.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs the repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// CreateBatch inserts the supplied comments in one round trip.
func (r *CommentRepository) CreateBatch(ctx context.Context, comments []models.ReviewComment) error {
	if len(comments) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range comments {
		if comments[i].ID == "" {
			comments[i].ID = uuid.NewString()
		}
		if comments[i].CreatedAt.IsZero() {
			comments[i].CreatedAt = now
		}
	}
	const query = `INSERT INTO review_comments (id, resource_id, reviewer_id, text, context, page, resolved, resolved_at, created_at)
	VALUES (:id, :resource_id, :reviewer_id, :text, :context, :page, :resolved, :resolved_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comments); err != nil {
		return fmt.Errorf("create comments: %w", err)
	}
	return nil
}

// ListByResource returns all comments for a resource, oldest first.
func (r *CommentRepository) ListByResource(ctx context.Context, resourceID string) ([]models.ReviewComment, error) {
	const query = `SELECT id, resource_id, reviewer_id, text, context, page, resolved, resolved_at, created_at
	FROM review_comments WHERE resource_id = $1 ORDER BY created_at ASC`
	var comments []models.ReviewComment
	if err := r.db.SelectContext(ctx, &comments, query, resourceID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Resolve marks a comment resolved.
func (r *CommentRepository) Resolve(ctx context.Context, id string) error {
	const query = `UPDATE review_comments SET resolved = TRUE, resolved_at = $2 WHERE id = $1 AND resolved = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve comment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resolve rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
