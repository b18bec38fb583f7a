package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
)

func parallelPolicy(minApproval int) models.ReviewPolicy {
	return models.ReviewPolicy{
		ReviewRequired: true,
		ReviewType:     models.ReviewTypeParallel,
		MinApproval:    minApproval,
		Rejectable:     true,
	}
}

func sequentialPolicy(roles ...string) models.ReviewPolicy {
	stages := make([]models.ReviewStage, len(roles))
	for i, role := range roles {
		stages[i] = models.ReviewStage{Role: role, Level: i + 1}
	}
	return models.ReviewPolicy{
		ReviewRequired: true,
		ReviewType:     models.ReviewTypeSequential,
		MinApproval:    1,
		Rejectable:     true,
		Stages:         stages,
	}
}

func entry(status models.ReviewStatus) *models.ReviewLedgerEntry {
	return &models.ReviewLedgerEntry{ID: "rev-1", ResourceID: "res-1", ReviewerID: "user-1", Status: status}
}

func TestDecideSubmit(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   Snapshot
		wantStatus models.ResourceStatus
		wantStage  int
		wantPub    bool
		wantErr    *appErrors.Error
	}{
		{
			name:       "review not required publishes directly",
			snapshot:   Snapshot{ResourceStatus: models.ResourceStatusDraft, Policy: models.ReviewPolicy{ReviewRequired: false}},
			wantStatus: models.ResourceStatusPublished,
			wantPub:    true,
		},
		{
			name:       "parallel review moves to in review",
			snapshot:   Snapshot{ResourceStatus: models.ResourceStatusDraft, Policy: parallelPolicy(2)},
			wantStatus: models.ResourceStatusInReview,
		},
		{
			name:       "sequential review sets stage pointer",
			snapshot:   Snapshot{ResourceStatus: models.ResourceStatusDraft, Policy: sequentialPolicy("editor", "legal")},
			wantStatus: models.ResourceStatusInReview,
			wantStage:  1,
		},
		{
			name:     "submit from in review is illegal",
			snapshot: Snapshot{ResourceStatus: models.ResourceStatusInReview, Policy: parallelPolicy(1)},
			wantErr:  appErrors.ErrIllegalTransition,
		},
		{
			name:     "submit against published resource is finalized",
			snapshot: Snapshot{ResourceStatus: models.ResourceStatusPublished, Policy: parallelPolicy(1)},
			wantErr:  appErrors.ErrResourceFinalized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decide(tc.snapshot, ActionSubmit)
			if tc.wantErr != nil {
				require.Error(t, err)
				require.True(t, appErrors.Is(err, tc.wantErr))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, out.ResourceStatus)
			require.Equal(t, tc.wantStage, out.StagePointer)
			require.Equal(t, tc.wantPub, out.Publish)
		})
	}
}

func TestDecideStart(t *testing.T) {
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		Policy:         parallelPolicy(2),
	}
	out, err := Decide(snap, ActionStart)
	require.NoError(t, err)
	require.True(t, out.CreateEntry)
	require.Equal(t, models.ReviewStatusInProgress, out.EntryStatus)
	require.Equal(t, models.ResourceStatusInReview, out.ResourceStatus)
	require.True(t, out.TouchReviewed)

	// Starting never advances the stage pointer.
	snap = Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		StagePointer:   1,
		Policy:         sequentialPolicy("editor", "legal"),
		ReviewerRole:   "editor",
	}
	out, err = Decide(snap, ActionStart)
	require.NoError(t, err)
	require.Equal(t, 1, out.StagePointer)

	// Duplicate start by the same reviewer.
	snap.Entry = entry(models.ReviewStatusInProgress)
	_, err = Decide(snap, ActionStart)
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))

	// Wrong role under sequential policy.
	snap.Entry = nil
	snap.ReviewerRole = "legal"
	_, err = Decide(snap, ActionStart)
	require.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))
}

func TestDecideApproveParallelQuorum(t *testing.T) {
	// Scenario A: min_approval=2. First approval stays IN_REVIEW,
	// second publishes.
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		Policy:         parallelPolicy(2),
		Entry:          entry(models.ReviewStatusInProgress),
		ApprovedCount:  0,
	}
	out, err := Decide(snap, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, models.ReviewStatusApproved, out.EntryStatus)
	require.Equal(t, models.ResourceStatusInReview, out.ResourceStatus)
	require.False(t, out.Publish)

	snap.ApprovedCount = 1
	out, err = Decide(snap, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, models.ResourceStatusPublished, out.ResourceStatus)
	require.True(t, out.Publish)
}

func TestDecideApproveSequentialOrdering(t *testing.T) {
	policy := sequentialPolicy("editor", "legal")

	// Role B before role A is a policy violation.
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		StagePointer:   1,
		Policy:         policy,
		ReviewerRole:   "legal",
		Entry:          entry(models.ReviewStatusInProgress),
	}
	_, err := Decide(snap, ActionApprove)
	require.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))

	// Scenario C: role A approval advances the pointer, stays IN_REVIEW.
	snap.ReviewerRole = "editor"
	out, err := Decide(snap, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, 2, out.StagePointer)
	require.Equal(t, models.ResourceStatusInReview, out.ResourceStatus)
	require.False(t, out.Publish)

	// Role B approval at the final stage publishes.
	snap.StagePointer = 2
	snap.ReviewerRole = "legal"
	out, err = Decide(snap, ActionApprove)
	require.NoError(t, err)
	require.Equal(t, 3, out.StagePointer)
	require.Equal(t, models.ResourceStatusPublished, out.ResourceStatus)
	require.True(t, out.Publish)
}

func TestDecideRejectShortCircuits(t *testing.T) {
	// Approvals on the books do not stop a single reject.
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		Policy:         parallelPolicy(3),
		Entry:          entry(models.ReviewStatusInProgress),
		ApprovedCount:  2,
	}
	out, err := Decide(snap, ActionReject)
	require.NoError(t, err)
	require.Equal(t, models.ResourceStatusRejected, out.ResourceStatus)
	require.Equal(t, models.ReviewStatusRejected, out.EntryStatus)
	require.False(t, out.Publish)

	out, err = Decide(snap, ActionRejectAndReport)
	require.NoError(t, err)
	require.Equal(t, models.ResourceStatusRejectedReported, out.ResourceStatus)
	require.Equal(t, models.ReviewStatusRejectedReported, out.EntryStatus)
}

func TestDecideRejectNonRejectableType(t *testing.T) {
	policy := parallelPolicy(1)
	policy.Rejectable = false
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		ResourceType:   "program",
		Policy:         policy,
		Entry:          entry(models.ReviewStatusInProgress),
	}
	_, err := Decide(snap, ActionReject)
	require.True(t, appErrors.Is(err, appErrors.ErrPolicyViolation))

	// Approvals still work for the same type.
	out, err := Decide(snap, ActionApprove)
	require.NoError(t, err)
	require.True(t, out.Publish)
}

func TestDecideRequestChanges(t *testing.T) {
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		Policy:         parallelPolicy(2),
		Entry:          entry(models.ReviewStatusInProgress),
	}
	out, err := Decide(snap, ActionRequestChanges)
	require.NoError(t, err)
	require.Equal(t, models.ResourceStatusChangesRequested, out.ResourceStatus)
	require.Equal(t, models.ReviewStatusChangesRequested, out.EntryStatus)
	require.False(t, out.Publish)

	// Author resubmission returns to IN_REVIEW without touching the ledger.
	resub := Snapshot{
		ResourceStatus: models.ResourceStatusChangesRequested,
		StagePointer:   snap.StagePointer,
		Policy:         snap.Policy,
	}
	back, err := Decide(resub, ActionResubmit)
	require.NoError(t, err)
	require.Equal(t, models.ResourceStatusInReview, back.ResourceStatus)
	require.False(t, back.CreateEntry)
}

func TestDecideVerdictWithoutStart(t *testing.T) {
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		Policy:         parallelPolicy(1),
	}
	for _, action := range []Action{ActionApprove, ActionReject, ActionRequestChanges} {
		_, err := Decide(snap, action)
		require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition), "action %s", action)
	}
}

func TestDecideTerminalStatesAreImmutable(t *testing.T) {
	terminal := []models.ResourceStatus{
		models.ResourceStatusPublished,
		models.ResourceStatusRejected,
		models.ResourceStatusRejectedReported,
	}
	actions := []Action{
		ActionSubmit, ActionResubmit, ActionStart,
		ActionApprove, ActionRequestChanges, ActionReject, ActionRejectAndReport,
	}
	for _, status := range terminal {
		for _, action := range actions {
			snap := Snapshot{
				ResourceStatus: status,
				Policy:         parallelPolicy(1),
				Entry:          entry(models.ReviewStatusApproved),
			}
			_, err := Decide(snap, action)
			require.True(t, appErrors.Is(err, appErrors.ErrResourceFinalized), "%s on %s", action, status)
		}
	}
}

func TestDecideConcludedReviewCannotChange(t *testing.T) {
	snap := Snapshot{
		ResourceStatus: models.ResourceStatusInReview,
		Policy:         parallelPolicy(2),
		Entry:          entry(models.ReviewStatusApproved),
	}
	// An approved entry is not terminal; the reviewer may still reject.
	out, err := Decide(snap, ActionReject)
	require.NoError(t, err)
	require.Equal(t, models.ResourceStatusRejected, out.ResourceStatus)

	snap.Entry = entry(models.ReviewStatusRejected)
	_, err = Decide(snap, ActionApprove)
	require.True(t, appErrors.Is(err, appErrors.ErrIllegalTransition))
}

func TestDecideUnknownAction(t *testing.T) {
	_, err := Decide(Snapshot{ResourceStatus: models.ResourceStatusDraft}, Action("DANCE"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
