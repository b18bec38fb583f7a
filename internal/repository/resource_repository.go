package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quillstage/quillstage-api/internal/models"
)

// ResourceRepository persists authored resources outside of review decisions.
// Status transitions triggered by reviewer actions go through ReviewRepository.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

const resourceColumns = `id, type, organization_id, author_id, title, payload, status, stage_pointer,
       last_reviewed_on, submitted_on, published_on, created_at, updated_at, deleted`

// Create inserts a new draft resource.
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	if resource.Status == "" {
		resource.Status = models.ResourceStatusDraft
	}
	now := time.Now().UTC()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now
	const query = `INSERT INTO resources
	(id, type, organization_id, author_id, title, payload, status, stage_pointer, created_at, updated_at, deleted)
	VALUES (:id, :type, :organization_id, :author_id, :title, :payload, :status, :stage_pointer, :created_at, :updated_at, :deleted)`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// GetByID fetches a resource by identifier.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE id = $1 AND deleted = FALSE`, resourceColumns)
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// List returns resources matching the filter (latest first).
func (r *ResourceRepository) List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM resources WHERE deleted = FALSE", resourceColumns))

	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		builder.WriteString(fmt.Sprintf(" AND organization_id = $%d", len(args)))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		builder.WriteString(fmt.Sprintf(" AND author_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		builder.WriteString(fmt.Sprintf(" AND type = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
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

	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// UpdateDraft persists author edits. The status guard keeps the write legal
// only while the author still owns the resource.
func (r *ResourceRepository) UpdateDraft(ctx context.Context, resource *models.Resource) error {
	resource.UpdatedAt = time.Now().UTC()
	const query = `UPDATE resources SET title = :title, payload = :payload, type = :type, updated_at = :updated_at
	WHERE id = :id AND deleted = FALSE AND status IN ('DRAFT', 'REQUESTED_FOR_CHANGES')`
	result, err := r.db.NamedExecContext(ctx, query, resource)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check draft update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete marks a resource deleted without destroying review history.
func (r *ResourceRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE resources SET deleted = TRUE, updated_at = $2 WHERE id = $1 AND deleted = FALSE`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete resource: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
