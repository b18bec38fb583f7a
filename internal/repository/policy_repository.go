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

// PolicyRepository persists per-organization review policies and their stages.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Get returns the policy row with its stage chain, or sql.ErrNoRows when the
// organization has no override for the resource type.
func (r *PolicyRepository) Get(ctx context.Context, organizationID, resourceType string) (*models.ReviewPolicy, error) {
	const query = `SELECT id, organization_id, resource_type, review_required, review_type, min_approval, rejectable, updated_at
	FROM review_policies WHERE organization_id = $1 AND resource_type = $2 LIMIT 1`
	var policy models.ReviewPolicy
	if err := r.db.GetContext(ctx, &policy, query, organizationID, resourceType); err != nil {
		return nil, err
	}
	stages, err := r.ListStages(ctx, organizationID, resourceType)
	if err != nil {
		return nil, err
	}
	policy.Stages = stages
	return &policy, nil
}

// ListStages returns the ordered stage chain for a policy.
func (r *PolicyRepository) ListStages(ctx context.Context, organizationID, resourceType string) ([]models.ReviewStage, error) {
	const query = `SELECT id, organization_id, resource_type, role, level, created_at
	FROM review_stages WHERE organization_id = $1 AND resource_type = $2 ORDER BY level ASC`
	var stages []models.ReviewStage
	if err := r.db.SelectContext(ctx, &stages, query, organizationID, resourceType); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

// ListByOrganization returns all policies configured for an organization.
func (r *PolicyRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.ReviewPolicy, error) {
	const query = `SELECT id, organization_id, resource_type, review_required, review_type, min_approval, rejectable, updated_at
	FROM review_policies WHERE organization_id = $1 ORDER BY resource_type ASC`
	var policies []models.ReviewPolicy
	if err := r.db.SelectContext(ctx, &policies, query, organizationID); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	for i := range policies {
		stages, err := r.ListStages(ctx, policies[i].OrganizationID, policies[i].ResourceType)
		if err != nil {
			return nil, err
		}
		policies[i].Stages = stages
	}
	return policies, nil
}

// Upsert writes the policy row and replaces its stage chain in one
// transaction. Policies in flight on a given resource are unaffected: the
// engine reads its snapshot once per decision.
func (r *PolicyRepository) Upsert(ctx context.Context, policy *models.ReviewPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	policy.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin policy tx: %w", err)
	}

	const upsertQuery = `INSERT INTO review_policies
	(id, organization_id, resource_type, review_required, review_type, min_approval, rejectable, updated_at)
	VALUES (:id, :organization_id, :resource_type, :review_required, :review_type, :min_approval, :rejectable, :updated_at)
	ON CONFLICT (organization_id, resource_type)
	DO UPDATE SET review_required = EXCLUDED.review_required, review_type = EXCLUDED.review_type,
		min_approval = EXCLUDED.min_approval, rejectable = EXCLUDED.rejectable, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, upsertQuery, policy); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert policy: %w", err)
	}

	const deleteStages = `DELETE FROM review_stages WHERE organization_id = $1 AND resource_type = $2`
	if _, err := tx.ExecContext(ctx, deleteStages, policy.OrganizationID, policy.ResourceType); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear stages: %w", err)
	}

	const insertStage = `INSERT INTO review_stages (id, organization_id, resource_type, role, level, created_at)
	VALUES (:id, :organization_id, :resource_type, :role, :level, :created_at)`
	now := time.Now().UTC()
	for i := range policy.Stages {
		stage := &policy.Stages[i]
		if stage.ID == "" {
			stage.ID = uuid.NewString()
		}
		stage.OrganizationID = policy.OrganizationID
		stage.ResourceType = policy.ResourceType
		if stage.CreatedAt.IsZero() {
			stage.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertStage, stage); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert stage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit policy tx: %w", err)
	}
	return nil
}

// Delete removes a policy override, restoring instance defaults for the type.
func (r *PolicyRepository) Delete(ctx context.Context, organizationID, resourceType string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin policy delete tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM review_stages WHERE organization_id = $1 AND resource_type = $2`, organizationID, resourceType); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete stages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM review_policies WHERE organization_id = $1 AND resource_type = $2`, organizationID, resourceType)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete policy: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("check policy delete rows: %w", err)
	}
	if rows == 0 {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit policy delete tx: %w", err)
	}
	return nil
}

