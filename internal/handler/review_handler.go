package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/internal/workflow"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
	"github.com/quillstage/quillstage-api/pkg/response"
)

type reviewWorkflowService interface {
	Submit(ctx context.Context, resourceID string, actor *models.JWTClaims) (*dto.ReviewActionResponse, error)
	Resubmit(ctx context.Context, resourceID string, actor *models.JWTClaims) (*dto.ReviewActionResponse, error)
	Act(ctx context.Context, resourceID string, action workflow.Action, req dto.ReviewActionRequest, actor *models.JWTClaims) (*dto.ReviewActionResponse, error)
}

// ReviewHandler exposes the review workflow transitions.
type ReviewHandler struct {
	service reviewWorkflowService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewWorkflowService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// Submit godoc
// @Summary Submit a draft for review
// @Tags Reviews
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/submit [post]
func (h *ReviewHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Resubmit godoc
// @Summary Return a changes-requested resource to review
// @Tags Reviews
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/resubmit [post]
func (h *ReviewHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Resubmit(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Start godoc
// @Summary Start reviewing a resource
// @Tags Reviews
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/review/start [post]
func (h *ReviewHandler) Start(c *gin.Context) {
	h.act(c, workflow.ActionStart)
}

// Approve godoc
// @Summary Approve a resource under review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.ReviewActionRequest false "Verdict payload"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/review/approve [post]
func (h *ReviewHandler) Approve(c *gin.Context) {
	h.act(c, workflow.ActionApprove)
}

// RequestChanges godoc
// @Summary Request changes on a resource under review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.ReviewActionRequest false "Verdict payload"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/review/request-changes [post]
func (h *ReviewHandler) RequestChanges(c *gin.Context) {
	h.act(c, workflow.ActionRequestChanges)
}

// Reject godoc
// @Summary Reject a resource under review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.ReviewActionRequest false "Verdict payload"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/review/reject [post]
func (h *ReviewHandler) Reject(c *gin.Context) {
	h.act(c, workflow.ActionReject)
}

// RejectAndReport godoc
// @Summary Reject a resource and flag it for moderation
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.ReviewActionRequest false "Verdict payload"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/review/reject-and-report [post]
func (h *ReviewHandler) RejectAndReport(c *gin.Context) {
	h.act(c, workflow.ActionRejectAndReport)
}

func (h *ReviewHandler) act(c *gin.Context, action workflow.Action) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReviewActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
			return
		}
	}
	result, err := h.service.Act(c.Request.Context(), c.Param("id"), action, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
