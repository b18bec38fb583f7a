package dto

import "github.com/quillstage/quillstage-api/internal/models"

// ReviewCommentInput is one structured comment attached to a review action.
type ReviewCommentInput struct {
	Text    string  `json:"text" binding:"required"`
	Context *string `json:"context"`
	Page    *int    `json:"page"`
}

// ReviewActionRequest carries a reviewer's verdict payload.
type ReviewActionRequest struct {
	Notes    string               `json:"notes"`
	Comments []ReviewCommentInput `json:"comments"`
}

// ReviewActionResponse reports the post-decision resource state.
type ReviewActionResponse struct {
	Resource       *models.Resource          `json:"resource"`
	Entry          *models.ReviewLedgerEntry `json:"review,omitempty"`
	Published      bool                      `json:"published"`
	PublishWarning string                    `json:"publishWarning,omitempty"`
}

// ReviewQuery mirrors supported ledger listing filters.
type ReviewQuery struct {
	ResourceID string
	Status     []models.ReviewStatus
	Limit      int
	Offset     int
}
