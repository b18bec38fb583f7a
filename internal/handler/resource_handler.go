package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/dto"
	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
	"github.com/quillstage/quillstage-api/pkg/response"
)

type resourceService interface {
	Create(ctx context.Context, req dto.CreateResourceRequest, actor *models.JWTClaims) (*models.Resource, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Resource, error)
	List(ctx context.Context, query dto.ResourceQuery, actor *models.JWTClaims) ([]models.Resource, error)
	Update(ctx context.Context, id string, req dto.UpdateResourceRequest, actor *models.JWTClaims) (*models.Resource, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	ActiveReviewers(ctx context.Context, resourceID string, actor *models.JWTClaims) ([]models.ReviewAssignmentMark, error)
	Ledger(ctx context.Context, resourceID string, query dto.ReviewQuery, actor *models.JWTClaims) ([]models.ReviewLedgerEntry, error)
	MyReviews(ctx context.Context, actor *models.JWTClaims) ([]models.ReviewAssignmentMark, error)
}

// ResourceHandler exposes authoring CRUD and review listing endpoints.
type ResourceHandler struct {
	service resourceService
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(service resourceService) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// Create godoc
// @Summary Create a draft resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param payload body dto.CreateResourceRequest true "Resource payload"
// @Success 201 {object} response.Envelope
// @Router /resources [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	var req dto.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resource payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resource, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, resource, nil)
}

// List godoc
// @Summary List resources
// @Tags Resources
// @Produce json
// @Param type query string false "Resource type"
// @Param status query string false "Comma separated statuses"
// @Param author query string false "Author ID"
// @Success 200 {object} response.Envelope
// @Router /resources [get]
func (h *ResourceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ResourceQuery{
		Type:   strings.TrimSpace(c.Query("type")),
		Author: strings.TrimSpace(c.Query("author")),
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ResourceStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ResourceStatus(part))
		}
		query.Status = statuses
	}
	resources, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// Get godoc
// @Summary Get resource detail
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resource, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// Update godoc
// @Summary Edit a draft resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.UpdateResourceRequest true "Resource edits"
// @Success 200 {object} response.Envelope
// @Router /resources/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	var req dto.UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resource payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resource, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// Delete godoc
// @Summary Soft-delete a resource
// @Tags Resources
// @Param id path string true "Resource ID"
// @Success 204
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ActiveReviewers godoc
// @Summary List reviewers engaged with a resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/reviewers [get]
func (h *ResourceHandler) ActiveReviewers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	marks, err := h.service.ActiveReviewers(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Ledger godoc
// @Summary List review verdicts for a resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Param status query string false "Comma separated review statuses"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/reviews [get]
func (h *ResourceHandler) Ledger(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ReviewQuery{
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ReviewStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ReviewStatus(part))
		}
		query.Status = statuses
	}
	entries, err := h.service.Ledger(c.Request.Context(), c.Param("id"), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// MyReviews godoc
// @Summary List the caller's review engagements
// @Tags Resources
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reviews/mine [get]
func (h *ResourceHandler) MyReviews(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	marks, err := h.service.MyReviews(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

func intQuery(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
