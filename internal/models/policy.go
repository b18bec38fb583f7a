package models

import "time"

// ReviewType selects the review discipline for a resource type.
type ReviewType string

const (
	ReviewTypeSequential ReviewType = "SEQUENTIAL"
	ReviewTypeParallel   ReviewType = "PARALLEL"
)

// ReviewStage is one role-gated level of a sequential review chain.
type ReviewStage struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	ResourceType   string    `db:"resource_type" json:"resourceType"`
	Role           string    `db:"role" json:"role"`
	Level          int       `db:"level" json:"level"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ReviewPolicy is the per-organization, per-resource-type review configuration.
// The engine receives it as an immutable snapshot for the duration of one decision.
type ReviewPolicy struct {
	ID             string        `db:"id" json:"id"`
	OrganizationID string        `db:"organization_id" json:"organizationId"`
	ResourceType   string        `db:"resource_type" json:"resourceType"`
	ReviewRequired bool          `db:"review_required" json:"reviewRequired"`
	ReviewType     ReviewType    `db:"review_type" json:"reviewType"`
	MinApproval    int           `db:"min_approval" json:"minApproval"`
	Rejectable     bool          `db:"rejectable" json:"rejectable"`
	Stages         []ReviewStage `db:"-" json:"stages,omitempty"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// StageAt returns the stage for a 1-based pointer, or nil when the pointer
// is past the configured chain.
func (p *ReviewPolicy) StageAt(pointer int) *ReviewStage {
	if pointer < 1 || pointer > len(p.Stages) {
		return nil
	}
	return &p.Stages[pointer-1]
}
