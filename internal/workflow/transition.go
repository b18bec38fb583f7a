package workflow

import (
	"fmt"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

// Action enumerates every trigger the engine accepts.
type Action string

const (
	ActionSubmit          Action = "SUBMIT"
	ActionResubmit        Action = "RESUBMIT"
	ActionStart           Action = "START"
	ActionApprove         Action = "APPROVE"
	ActionRequestChanges  Action = "REQUEST_CHANGES"
	ActionReject          Action = "REJECT"
	ActionRejectAndReport Action = "REJECT_AND_REPORT"
)

// Valid reports whether the action is a member of the closed set.
func (a Action) Valid() bool {
	switch a {
	case ActionSubmit, ActionResubmit, ActionStart, ActionApprove,
		ActionRequestChanges, ActionReject, ActionRejectAndReport:
		return true
	}
	return false
}

// ReviewerAction reports whether the action is taken by a reviewer rather
// than the resource author.
func (a Action) ReviewerAction() bool {
	switch a {
	case ActionStart, ActionApprove, ActionRequestChanges, ActionReject, ActionRejectAndReport:
		return true
	}
	return false
}

// Snapshot is everything Decide needs, read under one lock by the caller.
type Snapshot struct {
	ResourceStatus models.ResourceStatus
	ResourceType   string
	StagePointer   int
	Policy         models.ReviewPolicy
	ReviewerRole   string
	// Entry is this reviewer's existing ledger entry, nil before the first action.
	Entry *models.ReviewLedgerEntry
	// ApprovedCount is the number of APPROVED ledger entries for the resource
	// from other reviewers, counted under the same lock that protects the
	// status write.
	ApprovedCount int
}

// Outcome describes the writes the caller must apply atomically.
type Outcome struct {
	CreateEntry    bool
	EntryStatus    models.ReviewStatus
	ResourceStatus models.ResourceStatus
	StagePointer   int
	Publish        bool
	TouchReviewed  bool
}

// Decide computes the transition for one action against one resource.
// It is a pure function: no I/O, no clock, fully table-testable.
func Decide(s Snapshot, action Action) (Outcome, error) {
	if !action.Valid() {
		return Outcome{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action %q", action))
	}
	if s.ResourceStatus.Terminal() {
		return Outcome{}, appErrors.Clone(appErrors.ErrResourceFinalized,
			fmt.Sprintf("resource is %s and accepts no further actions", s.ResourceStatus))
	}

	switch action {
	case ActionSubmit:
		return decideSubmit(s)
	case ActionResubmit:
		return decideResubmit(s)
	case ActionStart:
		return decideStart(s)
	default:
		return decideVerdict(s, action)
	}
}

func decideSubmit(s Snapshot) (Outcome, error) {
	if s.ResourceStatus != models.ResourceStatusDraft {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("only DRAFT resources can be submitted, got %s", s.ResourceStatus))
	}
	if !s.Policy.ReviewRequired {
		return Outcome{ResourceStatus: models.ResourceStatusPublished, Publish: true}, nil
	}
	out := Outcome{ResourceStatus: models.ResourceStatusInReview}
	if s.Policy.ReviewType == models.ReviewTypeSequential {
		out.StagePointer = 1
	}
	return out, nil
}

func decideResubmit(s Snapshot) (Outcome, error) {
	if s.ResourceStatus != models.ResourceStatusChangesRequested {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("only REQUESTED_FOR_CHANGES resources can be resubmitted, got %s", s.ResourceStatus))
	}
	// Prior ledger entries persist across a changes round; re-review of
	// already-approved content is not forced.
	return Outcome{ResourceStatus: models.ResourceStatusInReview, StagePointer: s.StagePointer}, nil
}

func decideStart(s Snapshot) (Outcome, error) {
	if s.ResourceStatus != models.ResourceStatusInReview {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("reviews can only start while IN_REVIEW, got %s", s.ResourceStatus))
	}
	if s.Entry != nil {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition, "review already started by this reviewer")
	}
	if err := checkStageRole(s); err != nil {
		return Outcome{}, err
	}
	// Starting records intent only; it never advances the stage pointer.
	return Outcome{
		CreateEntry:    true,
		EntryStatus:    models.ReviewStatusInProgress,
		ResourceStatus: models.ResourceStatusInReview,
		StagePointer:   s.StagePointer,
		TouchReviewed:  true,
	}, nil
}

func decideVerdict(s Snapshot, action Action) (Outcome, error) {
	if s.Entry == nil {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition, "no review in progress for this reviewer")
	}
	if s.Entry.Status.Terminal() {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("review already concluded as %s", s.Entry.Status))
	}
	if s.ResourceStatus != models.ResourceStatusInReview {
		return Outcome{}, appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("verdicts require IN_REVIEW, got %s", s.ResourceStatus))
	}
	if err := checkStageRole(s); err != nil {
		return Outcome{}, err
	}

	switch action {
	case ActionReject, ActionRejectAndReport:
		if !s.Policy.Rejectable {
			return Outcome{}, appErrors.Clone(appErrors.ErrPolicyViolation,
				fmt.Sprintf("resources of type %q cannot be rejected", s.ResourceType))
		}
		status := models.ResourceStatusRejected
		entry := models.ReviewStatusRejected
		if action == ActionRejectAndReport {
			status = models.ResourceStatusRejectedReported
			entry = models.ReviewStatusRejectedReported
		}
		// Short-circuit: a single objection wins over partial consensus.
		return Outcome{
			EntryStatus:    entry,
			ResourceStatus: status,
			StagePointer:   s.StagePointer,
			TouchReviewed:  true,
		}, nil

	case ActionRequestChanges:
		return Outcome{
			EntryStatus:    models.ReviewStatusChangesRequested,
			ResourceStatus: models.ResourceStatusChangesRequested,
			StagePointer:   s.StagePointer,
			TouchReviewed:  true,
		}, nil

	case ActionApprove:
		out := Outcome{
			EntryStatus:   models.ReviewStatusApproved,
			TouchReviewed: true,
		}
		if s.Policy.ReviewType == models.ReviewTypeSequential {
			out.StagePointer = s.StagePointer + 1
			if out.StagePointer > len(s.Policy.Stages) {
				out.ResourceStatus = models.ResourceStatusPublished
				out.Publish = true
			} else {
				out.ResourceStatus = models.ResourceStatusInReview
			}
			return out, nil
		}
		out.StagePointer = s.StagePointer
		if s.ApprovedCount+1 >= s.Policy.MinApproval {
			out.ResourceStatus = models.ResourceStatusPublished
			out.Publish = true
		} else {
			out.ResourceStatus = models.ResourceStatusInReview
		}
		return out, nil
	}

	return Outcome{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unhandled action %q", action))
}

// checkStageRole enforces the sequential role gate. Parallel review accepts
// any reviewer supplied by the identity layer.
func checkStageRole(s Snapshot) error {
	if s.Policy.ReviewType != models.ReviewTypeSequential {
		return nil
	}
	stage := s.Policy.StageAt(s.StagePointer)
	if stage == nil {
		return appErrors.Clone(appErrors.ErrIllegalTransition, "no active review stage for this resource")
	}
	if stage.Role != s.ReviewerRole {
		return appErrors.Clone(appErrors.ErrPolicyViolation,
			fmt.Sprintf("stage %d requires role %q", stage.Level, stage.Role))
	}
	return nil
}
