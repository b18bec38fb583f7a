package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/pkg/config"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type policyStore interface {
	Get(ctx context.Context, organizationID, resourceType string) (*models.ReviewPolicy, error)
	ListStages(ctx context.Context, organizationID, resourceType string) ([]models.ReviewStage, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]models.ReviewPolicy, error)
	Upsert(ctx context.Context, policy *models.ReviewPolicy) error
	Delete(ctx context.Context, organizationID, resourceType string) error
}

// PolicyService resolves review policies with instance-default fallback and
// serves the admin configuration API.
type PolicyService struct {
	repo     policyStore
	cache    *CacheService
	defaults config.ReviewConfig
	logger   *zap.Logger
}

// NewPolicyService constructs the service.
func NewPolicyService(repo policyStore, cache *CacheService, defaults config.ReviewConfig, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{repo: repo, cache: cache, defaults: defaults, logger: logger}
}

func policyCacheKey(organizationID, resourceType string) string {
	return fmt.Sprintf("policy:%s:%s", organizationID, resourceType)
}

// Snapshot returns a deterministic, immutable-for-this-call policy for the
// organization and resource type. Unknown types flow straight to publication
// via a review-not-required policy; a missing org override falls back to the
// instance-wide defaults.
func (s *PolicyService) Snapshot(ctx context.Context, organizationID, resourceType string) (models.ReviewPolicy, error) {
	resourceType = strings.ToLower(strings.TrimSpace(resourceType))
	if !s.knownType(resourceType) {
		return models.ReviewPolicy{
			OrganizationID: organizationID,
			ResourceType:   resourceType,
			ReviewRequired: false,
			Rejectable:     s.rejectable(resourceType),
		}, nil
	}

	key := policyCacheKey(organizationID, resourceType)
	if s.cache.Enabled() {
		var cached models.ReviewPolicy
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	policy, err := s.repo.Get(ctx, organizationID, resourceType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			fallback := s.defaultPolicy(organizationID, resourceType)
			s.cacheSet(ctx, key, fallback)
			return fallback, nil
		}
		return models.ReviewPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review policy")
	}
	policy.Rejectable = policy.Rejectable && s.rejectable(resourceType)
	s.cacheSet(ctx, key, *policy)
	return *policy, nil
}

// ListStages exposes the configured stage chain.
func (s *PolicyService) ListStages(ctx context.Context, organizationID, resourceType string) ([]models.ReviewStage, error) {
	stages, err := s.repo.ListStages(ctx, organizationID, strings.ToLower(strings.TrimSpace(resourceType)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list review stages")
	}
	return stages, nil
}

// List returns the organization's configured policies.
func (s *PolicyService) List(ctx context.Context, organizationID string) ([]models.ReviewPolicy, error) {
	policies, err := s.repo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list review policies")
	}
	return policies, nil
}

// Upsert validates and stores a policy, then drops the cached snapshot so the
// next decision reads fresh configuration. Decisions already holding a
// snapshot finish under the policy they started with.
func (s *PolicyService) Upsert(ctx context.Context, policy *models.ReviewPolicy) error {
	policy.ResourceType = strings.ToLower(strings.TrimSpace(policy.ResourceType))
	if err := s.validate(policy); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, policy); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review policy")
	}
	s.cacheInvalidate(ctx, policy.OrganizationID, policy.ResourceType)
	return nil
}

// Delete removes an organization override.
func (s *PolicyService) Delete(ctx context.Context, organizationID, resourceType string) error {
	resourceType = strings.ToLower(strings.TrimSpace(resourceType))
	if err := s.repo.Delete(ctx, organizationID, resourceType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete review policy")
	}
	s.cacheInvalidate(ctx, organizationID, resourceType)
	return nil
}

func (s *PolicyService) validate(policy *models.ReviewPolicy) error {
	if policy.OrganizationID == "" || policy.ResourceType == "" {
		return appErrors.Clone(appErrors.ErrValidation, "organizationId and resourceType are required")
	}
	if !s.knownType(policy.ResourceType) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown resource type %q", policy.ResourceType))
	}
	switch policy.ReviewType {
	case models.ReviewTypeSequential:
		if len(policy.Stages) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "sequential policies require at least one stage")
		}
		for i := range policy.Stages {
			if policy.Stages[i].Role == "" {
				return appErrors.Clone(appErrors.ErrValidation, "every stage requires a role")
			}
			if policy.Stages[i].Level != i+1 {
				return appErrors.Clone(appErrors.ErrValidation, "stage levels must be contiguous starting at 1")
			}
		}
	case models.ReviewTypeParallel:
		if policy.MinApproval < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "minApproval must be at least 1")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "reviewType must be SEQUENTIAL or PARALLEL")
	}
	return nil
}

func (s *PolicyService) defaultPolicy(organizationID, resourceType string) models.ReviewPolicy {
	reviewType := models.ReviewType(s.defaults.DefaultType)
	if reviewType != models.ReviewTypeSequential && reviewType != models.ReviewTypeParallel {
		reviewType = models.ReviewTypeParallel
	}
	minApproval := s.defaults.DefaultMinApproval
	if minApproval < 1 {
		minApproval = 1
	}
	return models.ReviewPolicy{
		OrganizationID: organizationID,
		ResourceType:   resourceType,
		ReviewRequired: s.defaults.DefaultRequired,
		ReviewType:     reviewType,
		MinApproval:    minApproval,
		Rejectable:     s.rejectable(resourceType),
	}
}

func (s *PolicyService) knownType(resourceType string) bool {
	for _, known := range s.defaults.KnownTypes {
		if strings.EqualFold(known, resourceType) {
			return true
		}
	}
	return false
}

func (s *PolicyService) rejectable(resourceType string) bool {
	for _, blocked := range s.defaults.NonRejectableTypes {
		if strings.EqualFold(blocked, resourceType) {
			return false
		}
	}
	return true
}

func (s *PolicyService) cacheSet(ctx context.Context, key string, policy models.ReviewPolicy) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, policy, s.defaults.PolicyCacheTTL); err != nil {
		s.logger.Warn("failed to cache policy snapshot", zap.String("key", key), zap.Error(err))
	}
}

func (s *PolicyService) cacheInvalidate(ctx context.Context, organizationID, resourceType string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, policyCacheKey(organizationID, resourceType)); err != nil {
		s.logger.Warn("failed to invalidate policy cache", zap.Error(err))
	}
}
