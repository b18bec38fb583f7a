package dto

import "github.com/quillstage/quillstage-api/internal/models"

// StageInput is one role/level pair in a sequential chain.
type StageInput struct {
	Role  string `json:"role" binding:"required"`
	Level int    `json:"level" binding:"required,min=1"`
}

// UpsertPolicyRequest configures review behaviour for a resource type.
type UpsertPolicyRequest struct {
	ResourceType   string            `json:"resourceType" binding:"required"`
	ReviewRequired bool              `json:"reviewRequired"`
	ReviewType     models.ReviewType `json:"reviewType" binding:"required"`
	MinApproval    int               `json:"minApproval"`
	Rejectable     *bool             `json:"rejectable"`
	Stages         []StageInput      `json:"stages"`
}
