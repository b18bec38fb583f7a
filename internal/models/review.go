package models

import "time"

// ReviewStatus captures one reviewer's individual verdict on one resource.
type ReviewStatus string

const (
	ReviewStatusNotStarted       ReviewStatus = "NOT_STARTED"
	ReviewStatusStarted          ReviewStatus = "STARTED"
	ReviewStatusInProgress       ReviewStatus = "INPROGRESS"
	ReviewStatusChangesRequested ReviewStatus = "REQUESTED_FOR_CHANGES"
	ReviewStatusApproved         ReviewStatus = "APPROVED"
	ReviewStatusRejected         ReviewStatus = "REJECTED"
	ReviewStatusRejectedReported ReviewStatus = "REJECTED_AND_REPORTED"
	ReviewStatusPublished        ReviewStatus = "PUBLISHED"
)

// Terminal reports whether the ledger entry permits no further mutation.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case ReviewStatusRejected, ReviewStatusRejectedReported, ReviewStatusPublished:
		return true
	}
	return false
}

// ReviewLedgerEntry is one reviewer's verdict record for one resource,
// unique on (resource_id, reviewer_id) and mutable only by that reviewer.
type ReviewLedgerEntry struct {
	ID             string       `db:"id" json:"id"`
	ResourceID     string       `db:"resource_id" json:"resourceId"`
	ReviewerID     string       `db:"reviewer_id" json:"reviewerId"`
	OrganizationID string       `db:"organization_id" json:"organizationId"`
	Status         ReviewStatus `db:"status" json:"status"`
	Notes          *string      `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

// ReviewAssignmentMark is an append-only record proving a reviewer engaged
// with a resource. It drives "who is actively reviewing" listings and is
// created alongside the first ledger entry, never updated.
type ReviewAssignmentMark struct {
	ID         string    `db:"id" json:"id"`
	ResourceID string    `db:"resource_id" json:"resourceId"`
	ReviewerID string    `db:"reviewer_id" json:"reviewerId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ReviewFilter constrains ledger listing queries.
type ReviewFilter struct {
	ResourceID string
	ReviewerID string
	Status     []ReviewStatus
	Limit      int
	Offset     int
}
