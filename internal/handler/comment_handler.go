package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
	"github.com/quillstage/quillstage-api/pkg/response"
)

type reviewCommentService interface {
	ListByResource(ctx context.Context, resourceID string) ([]models.ReviewComment, error)
	Resolve(ctx context.Context, commentID string, actor *models.JWTClaims) error
}

// CommentHandler exposes reviewer feedback listings and resolution.
type CommentHandler struct {
	service reviewCommentService
}

// NewCommentHandler constructs the handler.
func NewCommentHandler(service reviewCommentService) *CommentHandler {
	return &CommentHandler{service: service}
}

// ListByResource godoc
// @Summary List review comments on a resource
// @Tags Comments
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/comments [get]
func (h *CommentHandler) ListByResource(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	comments, err := h.service.ListByResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// Resolve godoc
// @Summary Mark a review comment as addressed
// @Tags Comments
// @Param id path string true "Comment ID"
// @Success 204
// @Router /comments/{id}/resolve [post]
func (h *CommentHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Resolve(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
