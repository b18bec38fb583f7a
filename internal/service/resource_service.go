package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type resourceStore interface {
	Create(ctx context.Context, resource *models.Resource) error
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	List(ctx context.Context, filter models.ResourceFilter) ([]models.Resource, error)
	UpdateDraft(ctx context.Context, resource *models.Resource) error
	SoftDelete(ctx context.Context, id string) error
}

type assignmentReader interface {
	ListAssignments(ctx context.Context, resourceID string) ([]models.ReviewAssignmentMark, error)
	ListReviewerAssignments(ctx context.Context, reviewerID string) ([]models.ReviewAssignmentMark, error)
	ListLedger(ctx context.Context, filter models.ReviewFilter) ([]models.ReviewLedgerEntry, error)
}

// ResourceService covers authoring CRUD and review listings. Submission and
// everything downstream of it belongs to the WorkflowService.
type ResourceService struct {
	repo        resourceStore
	assignments assignmentReader
	logger      *zap.Logger
}

// NewResourceService constructs the service.
func NewResourceService(repo resourceStore, assignments assignmentReader, logger *zap.Logger) *ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{repo: repo, assignments: assignments, logger: logger}
}

// Create stores a new draft owned by the acting author.
func (s *ResourceService) Create(ctx context.Context, req dto.CreateResourceRequest, actor *models.JWTClaims) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payload must be valid JSON")
	}
	resource := &models.Resource{
		Type:           strings.ToLower(strings.TrimSpace(req.Type)),
		OrganizationID: actor.OrganizationID,
		AuthorID:       actor.UserID,
		Title:          strings.TrimSpace(req.Title),
		Payload:        append([]byte(nil), req.Payload...),
		Status:         models.ResourceStatusDraft,
	}
	if err := s.repo.Create(ctx, resource); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
	}
	return resource, nil
}

// Get returns a resource enforcing organization scope.
func (s *ResourceService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	if actor.Role != models.RoleAdmin && resource.OrganizationID != actor.OrganizationID {
		return nil, appErrors.ErrForbidden
	}
	return resource, nil
}

// List returns resources visible to the actor. Authors see their own work;
// reviewers and admins see the whole organization.
func (s *ResourceService) List(ctx context.Context, query dto.ResourceQuery, actor *models.JWTClaims) ([]models.Resource, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ResourceFilter{
		OrganizationID: actor.OrganizationID,
		Type:           strings.ToLower(strings.TrimSpace(query.Type)),
		Status:         query.Status,
		Limit:          query.Limit,
		Offset:         query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin:
		filter.OrganizationID = ""
		filter.AuthorID = query.Author
	case models.RoleReviewer:
		filter.AuthorID = query.Author
	default:
		filter.AuthorID = actor.UserID
	}
	resources, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return resources, nil
}

// Update applies author edits while the resource is still author-owned.
func (s *ResourceService) Update(ctx context.Context, id string, req dto.UpdateResourceRequest, actor *models.JWTClaims) (*models.Resource, error) {
	resource, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && resource.AuthorID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if resource.Status != models.ResourceStatusDraft && resource.Status != models.ResourceStatusChangesRequested {
		return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "resource is no longer editable")
	}
	if req.Title != "" {
		resource.Title = strings.TrimSpace(req.Title)
	}
	if len(req.Payload) > 0 {
		if !json.Valid(req.Payload) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payload must be valid JSON")
		}
		resource.Payload = append([]byte(nil), req.Payload...)
	}
	if err := s.repo.UpdateDraft(ctx, resource); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "resource is no longer editable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update resource")
	}
	return resource, nil
}

// Delete soft-deletes a draft. Review history is preserved.
func (s *ResourceService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	resource, err := s.Get(ctx, id, actor)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin && resource.AuthorID != actor.UserID {
		return appErrors.ErrForbidden
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete resource")
	}
	return nil
}

// ActiveReviewers lists who has engaged with a resource, driven by the
// append-only assignment marks.
func (s *ResourceService) ActiveReviewers(ctx context.Context, resourceID string, actor *models.JWTClaims) ([]models.ReviewAssignmentMark, error) {
	if _, err := s.Get(ctx, resourceID, actor); err != nil {
		return nil, err
	}
	marks, err := s.assignments.ListAssignments(ctx, resourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviewers")
	}
	return marks, nil
}

// Ledger lists the review ledger for a resource.
func (s *ResourceService) Ledger(ctx context.Context, resourceID string, query dto.ReviewQuery, actor *models.JWTClaims) ([]models.ReviewLedgerEntry, error) {
	if _, err := s.Get(ctx, resourceID, actor); err != nil {
		return nil, err
	}
	entries, err := s.assignments.ListLedger(ctx, models.ReviewFilter{
		ResourceID: resourceID,
		Status:     query.Status,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ledger")
	}
	return entries, nil
}

// MyReviews lists the resources the acting reviewer has engaged with.
func (s *ResourceService) MyReviews(ctx context.Context, actor *models.JWTClaims) ([]models.ReviewAssignmentMark, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	marks, err := s.assignments.ListReviewerAssignments(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return marks, nil
}
