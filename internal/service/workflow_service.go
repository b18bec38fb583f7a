package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/internal/repository"
	"github.com/quillstage/quillstage-api/internal/workflow"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type workflowStore interface {
	Transact(ctx context.Context, fn func(repository.ReviewUnit) error) error
}

type resourceReader interface {
	GetByID(ctx context.Context, id string) (*models.Resource, error)
}

type policySnapshotter interface {
	Snapshot(ctx context.Context, organizationID, resourceType string) (models.ReviewPolicy, error)
}

type commentSink interface {
	Attach(ctx context.Context, resourceID, reviewerID string, comments []dto.ReviewCommentInput) error
}

type publishDispatcher interface {
	Dispatch(ctx context.Context, resource *models.Resource) error
}

type decisionMetrics interface {
	RecordReviewDecision(action string, status models.ResourceStatus)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// WorkflowService is the review and publication engine. Every inbound action
// resolves a policy snapshot, then executes the pure transition decision
// inside one serializable transaction; the comment sink, publish dispatcher,
// and audit trail are invoked only after the decision commits.
type WorkflowService struct {
	store     workflowStore
	resources resourceReader
	policies  policySnapshotter
	comments  commentSink
	publisher publishDispatcher
	audit     auditLogger
	metrics   decisionMetrics
	logger    *zap.Logger
	retries   int
}

// NewWorkflowService constructs the engine.
func NewWorkflowService(
	store workflowStore,
	resources resourceReader,
	policies policySnapshotter,
	comments commentSink,
	publisher publishDispatcher,
	audit auditLogger,
	metrics decisionMetrics,
	logger *zap.Logger,
	retries int,
) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 1 {
		retries = 3
	}
	return &WorkflowService{
		store:     store,
		resources: resources,
		policies:  policies,
		comments:  comments,
		publisher: publisher,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		retries:   retries,
	}
}

// Submit moves an author's draft into the workflow. Depending on policy the
// resource lands in IN_REVIEW or is published immediately.
func (s *WorkflowService) Submit(ctx context.Context, resourceID string, actor *models.JWTClaims) (*dto.ReviewActionResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	result, err := s.execute(ctx, resourceID, workflow.ActionSubmit, actor, nil)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionResourceSubmit, result.Resource)
	return result, nil
}

// Resubmit returns a changes-requested resource to review. Existing ledger
// entries persist: a prior approval is not re-reviewed.
func (s *WorkflowService) Resubmit(ctx context.Context, resourceID string, actor *models.JWTClaims) (*dto.ReviewActionResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	result, err := s.execute(ctx, resourceID, workflow.ActionResubmit, actor, nil)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionResourceResubmit, result.Resource)
	return result, nil
}

// Act applies a reviewer action (start or verdict) to a resource.
func (s *WorkflowService) Act(ctx context.Context, resourceID string, action workflow.Action, req dto.ReviewActionRequest, actor *models.JWTClaims) (*dto.ReviewActionResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !action.ReviewerAction() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "not a reviewer action")
	}
	if actor.Role != models.RoleReviewer && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	result, err := s.execute(ctx, resourceID, action, actor, notes)
	if err != nil {
		return nil, err
	}

	// Comment attachment is best-effort: the committed decision is
	// authoritative regardless of sink availability.
	if len(req.Comments) > 0 && s.comments != nil {
		if err := s.comments.Attach(ctx, resourceID, actor.UserID, req.Comments); err != nil {
			s.logger.Warn("failed to attach review comments",
				zap.String("resource_id", resourceID),
				zap.String("reviewer_id", actor.UserID),
				zap.Error(err))
		}
	}

	auditAction := models.AuditActionReviewVerdict
	if action == workflow.ActionStart {
		auditAction = models.AuditActionReviewStart
	}
	s.emitAudit(ctx, actor.UserID, auditAction, result.Resource)
	return result, nil
}

// execute runs one decision with bounded retry on serialization conflicts.
// An idempotent retry recomputes the same decision from fresh state.
func (s *WorkflowService) execute(ctx context.Context, resourceID string, action workflow.Action, actor *models.JWTClaims, notes *string) (*dto.ReviewActionResponse, error) {
	// Organization and type are immutable, so the policy snapshot can be
	// resolved before the lock is taken, keeping the critical section to
	// single-round-trip statements.
	peek, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	if err := s.authorize(peek, action, actor); err != nil {
		return nil, err
	}
	policy, err := s.policies.Snapshot(ctx, peek.OrganizationID, peek.Type)
	if err != nil {
		return nil, err
	}

	var result *dto.ReviewActionResponse
	for attempt := 1; ; attempt++ {
		result, err = s.executeOnce(ctx, resourceID, action, policy, actor, notes)
		if err == nil {
			break
		}
		if appErrors.Is(err, appErrors.ErrConcurrencyConflict) && attempt < s.retries {
			s.logger.Debug("retrying review decision after conflict",
				zap.String("resource_id", resourceID),
				zap.String("action", string(action)),
				zap.Int("attempt", attempt))
			continue
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordReviewDecision(string(action), result.Resource.Status)
	}
	if result.Published {
		s.dispatchPublish(ctx, result)
	}
	return result, nil
}

func (s *WorkflowService) executeOnce(ctx context.Context, resourceID string, action workflow.Action, policy models.ReviewPolicy, actor *models.JWTClaims, notes *string) (*dto.ReviewActionResponse, error) {
	result := &dto.ReviewActionResponse{}
	err := s.store.Transact(ctx, func(tx repository.ReviewUnit) error {
		resource, err := tx.GetResourceForUpdate(ctx, resourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return err
		}

		snapshot := workflow.Snapshot{
			ResourceStatus: resource.Status,
			ResourceType:   resource.Type,
			StagePointer:   resource.StagePointer,
			Policy:         policy,
			ReviewerRole:   actor.ReviewRole,
		}
		if action.ReviewerAction() {
			entry, err := tx.GetLedgerEntry(ctx, resourceID, actor.UserID)
			if err != nil {
				return err
			}
			snapshot.Entry = entry
			if action == workflow.ActionApprove && policy.ReviewType == models.ReviewTypeParallel {
				// The aggregate is recomputed under the resource lock;
				// never trust a cached running total.
				count, err := tx.CountApprovals(ctx, resourceID, actor.UserID)
				if err != nil {
					return err
				}
				snapshot.ApprovedCount = count
			}
		}

		outcome, err := workflow.Decide(snapshot, action)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if outcome.CreateEntry {
			entry := &models.ReviewLedgerEntry{
				ResourceID:     resourceID,
				ReviewerID:     actor.UserID,
				OrganizationID: resource.OrganizationID,
				Status:         outcome.EntryStatus,
				Notes:          notes,
			}
			if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
				if repository.IsUniqueViolation(err) {
					return appErrors.Clone(appErrors.ErrIllegalTransition, "review already started by this reviewer")
				}
				return err
			}
			if err := tx.InsertAssignmentMark(ctx, &models.ReviewAssignmentMark{
				ResourceID: resourceID,
				ReviewerID: actor.UserID,
			}); err != nil {
				return err
			}
			result.Entry = entry
		} else if outcome.EntryStatus != "" {
			if err := tx.UpdateLedgerStatus(ctx, snapshot.Entry.ID, outcome.EntryStatus, notes); err != nil {
				return err
			}
			updated := *snapshot.Entry
			updated.Status = outcome.EntryStatus
			if notes != nil {
				updated.Notes = notes
			}
			result.Entry = &updated
		}

		params := repository.ResourceDecisionParams{
			ID:           resourceID,
			Status:       outcome.ResourceStatus,
			StagePointer: outcome.StagePointer,
		}
		if outcome.TouchReviewed {
			params.LastReviewedOn = &now
		}
		if action == workflow.ActionSubmit {
			params.SubmittedOn = &now
		}
		if outcome.Publish {
			params.PublishedOn = &now
		}
		if err := tx.UpdateResourceDecision(ctx, params); err != nil {
			return err
		}

		updated := *resource
		updated.Status = outcome.ResourceStatus
		updated.StagePointer = outcome.StagePointer
		if params.LastReviewedOn != nil {
			updated.LastReviewedOn = params.LastReviewedOn
		}
		if params.SubmittedOn != nil {
			updated.SubmittedOn = params.SubmittedOn
		}
		if params.PublishedOn != nil {
			updated.PublishedOn = params.PublishedOn
		}
		result.Resource = &updated
		result.Published = outcome.Publish
		return nil
	})
	if err != nil {
		if repository.IsSerializationFailure(err) {
			return nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "review decision conflicted with a concurrent action")
		}
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply review decision")
	}
	return result, nil
}

// authorize enforces ownership and organization scope before any lock is taken.
func (s *WorkflowService) authorize(resource *models.Resource, action workflow.Action, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.OrganizationID != resource.OrganizationID {
		return appErrors.ErrForbidden
	}
	if action.ReviewerAction() {
		if resource.AuthorID == actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "authors cannot review their own resources")
		}
		return nil
	}
	if resource.AuthorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author can submit this resource")
	}
	return nil
}

// dispatchPublish fires the post-commit publication side-effect. Delivery is
// at-least-once and independently retryable; a transport failure downgrades
// to a warning on an otherwise successful response.
func (s *WorkflowService) dispatchPublish(ctx context.Context, result *dto.ReviewActionResponse) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Dispatch(ctx, result.Resource); err != nil {
		s.logger.Warn("publish dispatch failed",
			zap.String("resource_id", result.Resource.ID),
			zap.String("resource_type", result.Resource.Type),
			zap.Error(err))
		result.PublishWarning = "resource published, downstream delivery pending retry"
		return
	}
	s.emitAudit(ctx, result.Resource.AuthorID, models.AuditActionResourcePublish, result.Resource)
}

func (s *WorkflowService) emitAudit(ctx context.Context, userID, action string, resource *models.Resource) {
	if s.audit == nil || resource == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource.Type,
		ResourceID: &resource.ID,
		IPAddress:  "system",
		UserAgent:  "workflow-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
