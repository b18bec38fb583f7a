package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/pkg/config"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type policyStoreStub struct {
	policies map[string]*models.ReviewPolicy
	upserted *models.ReviewPolicy
	deleted  bool
}

func policyKey(orgID, resourceType string) string {
	return orgID + "/" + resourceType
}

func (s *policyStoreStub) Get(_ context.Context, organizationID, resourceType string) (*models.ReviewPolicy, error) {
	if p, ok := s.policies[policyKey(organizationID, resourceType)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *policyStoreStub) ListStages(_ context.Context, organizationID, resourceType string) ([]models.ReviewStage, error) {
	if p, ok := s.policies[policyKey(organizationID, resourceType)]; ok {
		return p.Stages, nil
	}
	return nil, nil
}

func (s *policyStoreStub) ListByOrganization(_ context.Context, organizationID string) ([]models.ReviewPolicy, error) {
	var out []models.ReviewPolicy
	for _, p := range s.policies {
		if p.OrganizationID == organizationID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *policyStoreStub) Upsert(_ context.Context, policy *models.ReviewPolicy) error {
	s.upserted = policy
	return nil
}

func (s *policyStoreStub) Delete(_ context.Context, organizationID, resourceType string) error {
	if _, ok := s.policies[policyKey(organizationID, resourceType)]; !ok {
		return sql.ErrNoRows
	}
	s.deleted = true
	return nil
}

func reviewDefaults() config.ReviewConfig {
	return config.ReviewConfig{
		DefaultRequired:    true,
		DefaultType:        "PARALLEL",
		DefaultMinApproval: 2,
		KnownTypes:         []string{"project", "course"},
		NonRejectableTypes: []string{"course"},
	}
}

func TestPolicySnapshotUsesOrganizationOverride(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{
		policyKey("org-1", "project"): {
			OrganizationID: "org-1",
			ResourceType:   "project",
			ReviewRequired: true,
			ReviewType:     models.ReviewTypeSequential,
			Rejectable:     true,
			Stages: []models.ReviewStage{
				{Role: "EDITOR", Level: 1},
				{Role: "LEGAL", Level: 2},
			},
		},
	}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	policy, err := svc.Snapshot(context.Background(), "org-1", "PROJECT")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewTypeSequential, policy.ReviewType)
	assert.Len(t, policy.Stages, 2)
	assert.True(t, policy.Rejectable)
}

func TestPolicySnapshotFallsBackToInstanceDefaults(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	policy, err := svc.Snapshot(context.Background(), "org-1", "project")
	require.NoError(t, err)
	assert.True(t, policy.ReviewRequired)
	assert.Equal(t, models.ReviewTypeParallel, policy.ReviewType)
	assert.Equal(t, 2, policy.MinApproval)
	assert.True(t, policy.Rejectable)
}

func TestPolicySnapshotUnknownTypeSkipsReview(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	policy, err := svc.Snapshot(context.Background(), "org-1", "memo")
	require.NoError(t, err)
	assert.False(t, policy.ReviewRequired)
}

func TestPolicySnapshotNonRejectableType(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{
		policyKey("org-1", "course"): {
			OrganizationID: "org-1",
			ResourceType:   "course",
			ReviewRequired: true,
			ReviewType:     models.ReviewTypeParallel,
			MinApproval:    1,
			Rejectable:     true,
		},
	}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	policy, err := svc.Snapshot(context.Background(), "org-1", "course")
	require.NoError(t, err)
	assert.False(t, policy.Rejectable, "instance config overrides the stored flag")
}

func TestPolicyUpsertValidatesStageLevels(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	err := svc.Upsert(context.Background(), &models.ReviewPolicy{
		OrganizationID: "org-1",
		ResourceType:   "project",
		ReviewType:     models.ReviewTypeSequential,
		Stages: []models.ReviewStage{
			{Role: "EDITOR", Level: 1},
			{Role: "LEGAL", Level: 3},
		},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, store.upserted)
}

func TestPolicyUpsertRequiresQuorumForParallel(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	err := svc.Upsert(context.Background(), &models.ReviewPolicy{
		OrganizationID: "org-1",
		ResourceType:   "project",
		ReviewType:     models.ReviewTypeParallel,
		MinApproval:    0,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPolicyUpsertRejectsUnknownType(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	err := svc.Upsert(context.Background(), &models.ReviewPolicy{
		OrganizationID: "org-1",
		ResourceType:   "memo",
		ReviewType:     models.ReviewTypeParallel,
		MinApproval:    1,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPolicyUpsertStoresLowercasedType(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	err := svc.Upsert(context.Background(), &models.ReviewPolicy{
		OrganizationID: "org-1",
		ResourceType:   "  PROJECT ",
		ReviewType:     models.ReviewTypeParallel,
		MinApproval:    1,
	})
	require.NoError(t, err)
	require.NotNil(t, store.upserted)
	assert.Equal(t, "project", store.upserted.ResourceType)
}

func TestPolicyDeleteMissingOverride(t *testing.T) {
	store := &policyStoreStub{policies: map[string]*models.ReviewPolicy{}}
	svc := NewPolicyService(store, nil, reviewDefaults(), nil)

	err := svc.Delete(context.Background(), "org-1", "project")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
