package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
	"github.com/quillstage/quillstage-api/pkg/response"
)

type policyAdminService interface {
	Snapshot(ctx context.Context, organizationID, resourceType string) (models.ReviewPolicy, error)
	List(ctx context.Context, organizationID string) ([]models.ReviewPolicy, error)
	Upsert(ctx context.Context, policy *models.ReviewPolicy) error
	Delete(ctx context.Context, organizationID, resourceType string) error
}

// PolicyHandler exposes review policy administration. Routes are mounted
// behind the admin role gate.
type PolicyHandler struct {
	service policyAdminService
}

// NewPolicyHandler constructs the handler.
func NewPolicyHandler(service policyAdminService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// List godoc
// @Summary List review policies for the caller's organization
// @Tags Policies
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /policies [get]
func (h *PolicyHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	policies, err := h.service.List(c.Request.Context(), claims.OrganizationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies, nil)
}

// Get godoc
// @Summary Get the effective policy for a resource type
// @Tags Policies
// @Produce json
// @Param type path string true "Resource type"
// @Success 200 {object} response.Envelope
// @Router /policies/{type} [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	policy, err := h.service.Snapshot(c.Request.Context(), claims.OrganizationID, strings.ToLower(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Upsert godoc
// @Summary Create or replace a review policy
// @Tags Policies
// @Accept json
// @Produce json
// @Param payload body dto.UpsertPolicyRequest true "Policy definition"
// @Success 200 {object} response.Envelope
// @Router /policies [put]
func (h *PolicyHandler) Upsert(c *gin.Context) {
	var req dto.UpsertPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid policy payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	policy := &models.ReviewPolicy{
		OrganizationID: claims.OrganizationID,
		ResourceType:   strings.ToLower(strings.TrimSpace(req.ResourceType)),
		ReviewRequired: req.ReviewRequired,
		ReviewType:     req.ReviewType,
		MinApproval:    req.MinApproval,
		Rejectable:     req.Rejectable == nil || *req.Rejectable,
	}
	for _, stage := range req.Stages {
		policy.Stages = append(policy.Stages, models.ReviewStage{
			Role:  strings.ToUpper(strings.TrimSpace(stage.Role)),
			Level: stage.Level,
		})
	}
	if err := h.service.Upsert(c.Request.Context(), policy); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Delete godoc
// @Summary Remove a policy override
// @Tags Policies
// @Param type path string true "Resource type"
// @Success 204
// @Router /policies/{type} [delete]
func (h *PolicyHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.OrganizationID, strings.ToLower(c.Param("type"))); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
