package models

import "time"

// ResourceStatus captures the lifecycle states of an authored resource.
type ResourceStatus string

const (
	ResourceStatusDraft             ResourceStatus = "DRAFT"
	ResourceStatusSubmitted         ResourceStatus = "SUBMITTED"
	ResourceStatusInReview          ResourceStatus = "IN_REVIEW"
	ResourceStatusChangesRequested  ResourceStatus = "REQUESTED_FOR_CHANGES"
	ResourceStatusApproved          ResourceStatus = "APPROVED"
	ResourceStatusRejected          ResourceStatus = "REJECTED"
	ResourceStatusRejectedReported  ResourceStatus = "REJECTED_AND_REPORTED"
	ResourceStatusPublished         ResourceStatus = "PUBLISHED"
)

// Terminal reports whether no further transition is permitted from the status.
func (s ResourceStatus) Terminal() bool {
	switch s {
	case ResourceStatusRejected, ResourceStatusRejectedReported, ResourceStatusPublished:
		return true
	}
	return false
}

// Resource is a user-authored content item subject to review.
// The payload is an opaque document validated upstream of this service.
type Resource struct {
	ID             string         `db:"id" json:"id"`
	Type           string         `db:"type" json:"type"`
	OrganizationID string         `db:"organization_id" json:"organizationId"`
	AuthorID       string         `db:"author_id" json:"authorId"`
	Title          string         `db:"title" json:"title"`
	Payload        []byte         `db:"payload" json:"payload,omitempty"`
	Status         ResourceStatus `db:"status" json:"status"`
	StagePointer   int            `db:"stage_pointer" json:"stagePointer"`
	LastReviewedOn *time.Time     `db:"last_reviewed_on" json:"lastReviewedOn,omitempty"`
	SubmittedOn    *time.Time     `db:"submitted_on" json:"submittedOn,omitempty"`
	PublishedOn    *time.Time     `db:"published_on" json:"publishedOn,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
	Deleted        bool           `db:"deleted" json:"-"`
}

// ResourceFilter constrains resource listing queries.
type ResourceFilter struct {
	OrganizationID string
	AuthorID       string
	Type           string
	Status         []ResourceStatus
	Limit          int
	Offset         int
}
