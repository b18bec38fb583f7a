package models

import "time"

// ReviewComment is a structured note attached to a review action.
type ReviewComment struct {
	ID         string     `db:"id" json:"id"`
	ResourceID string     `db:"resource_id" json:"resourceId"`
	ReviewerID string     `db:"reviewer_id" json:"reviewerId"`
	Text       string     `db:"text" json:"text"`
	Context    *string    `db:"context" json:"context,omitempty"`
	Page       *int       `db:"page" json:"page,omitempty"`
	Resolved   bool       `db:"resolved" json:"resolved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}
