package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

type commentStore interface {
	CreateBatch(ctx context.Context, comments []models.ReviewComment) error
	ListByResource(ctx context.Context, resourceID string) ([]models.ReviewComment, error)
	Resolve(ctx context.Context, commentID string) error
}

// CommentService persists reviewer feedback. Attach runs after the review
// decision has committed, so a failure here never unwinds a verdict.
type CommentService struct {
	repo   commentStore
	logger *zap.Logger
}

// NewCommentService constructs the service.
func NewCommentService(repo commentStore, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{repo: repo, logger: logger}
}

// Attach stores the comments supplied with a review action.
func (s *CommentService) Attach(ctx context.Context, resourceID, reviewerID string, comments []dto.ReviewCommentInput) error {
	batch := make([]models.ReviewComment, 0, len(comments))
	for _, in := range comments {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		batch = append(batch, models.ReviewComment{
			ResourceID: resourceID,
			ReviewerID: reviewerID,
			Text:       text,
			Context:    in.Context,
			Page:       in.Page,
		})
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review comments")
	}
	return nil
}

// ListByResource returns all feedback left on a resource.
func (s *CommentService) ListByResource(ctx context.Context, resourceID string) ([]models.ReviewComment, error) {
	comments, err := s.repo.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list review comments")
	}
	return comments, nil
}

// Resolve marks a comment as addressed by the author.
func (s *CommentService) Resolve(ctx context.Context, commentID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.Resolve(ctx, commentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve comment")
	}
	return nil
}
