package dto

import (
	"encoding/json"

	"github.com/quillstage/quillstage-api/internal/models"
)

// CreateResourceRequest payload for authoring a new draft.
type CreateResourceRequest struct {
	Type    string          `json:"type" binding:"required"`
	Title   string          `json:"title" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// UpdateResourceRequest payload for editing a draft.
type UpdateResourceRequest struct {
	Title   string          `json:"title"`
	Payload json.RawMessage `json:"payload"`
}

// ResourceQuery mirrors supported listing filters.
type ResourceQuery struct {
	Type   string
	Status []models.ResourceStatus
	Author string
	Limit  int
	Offset int
}
