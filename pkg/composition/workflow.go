package composition

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

// Action names a composite lifecycle operation.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionDelete      Action = "delete"
	ActionWithdraw    Action = "withdraw"
	ActionAssign      Action = "assign"
	ActionStartReview Action = "start review"
)

// AllActions lists every lifecycle action.
var AllActions = []Action{
	ActionSubmit, ActionApprove, ActionReject, ActionDelete,
	ActionWithdraw, ActionAssign, ActionStartReview,
}

// allowedFrom is the guard table: the composite statuses each action accepts.
var allowedFrom = map[Action][]models.CompositeStatus{
	ActionSubmit:      {models.CompositeStatusDraft},
	ActionApprove:     {models.CompositeStatusPendingApproval},
	ActionReject:      {models.CompositeStatusPendingApproval},
	ActionDelete:      {models.CompositeStatusDraft, models.CompositeStatusRejected},
	ActionWithdraw:    {models.CompositeStatusPendingApproval},
	ActionAssign:      {models.CompositeStatusPendingApproval},
	ActionStartReview: {models.CompositeStatusPendingApproval},
}

// Allowed reports whether action may run on a composite in status from.
func Allowed(action Action, from models.CompositeStatus) bool {
	for _, s := range allowedFrom[action] {
		if s == from {
			return true
		}
	}
	return false
}

// CheckTransition returns a *apperrors.TransitionError when action is not
// allowed from the given composite status.
func CheckTransition(action Action, from models.CompositeStatus) error {
	if Allowed(action, from) {
		return nil
	}
	required := make([]string, 0, len(allowedFrom[action]))
	for _, s := range allowedFrom[action] {
		required = append(required, string(s))
	}
	return &apperrors.TransitionError{Action: string(action), From: string(from), Required: required}
}

// CheckDeletable verifies that a composite may be deleted.
func CheckDeletable(c *models.Composite) error {
	return CheckTransition(ActionDelete, c.Status)
}

// Assignment names who a workflow is assigned to and by whom.
type Assignment struct {
	AssignedTo *string
	AssignedBy *string
}

// Submit moves a draft composite to PENDING_APPROVAL. The existing workflow is
// reused when present, otherwise a new one is created. The returned workflow
// must be persisted together with the composite.
func Submit(c *models.Composite, wf *models.ApprovalWorkflow, a Assignment, now time.Time) (*models.ApprovalWorkflow, error) {
	if err := CheckTransition(ActionSubmit, c.Status); err != nil {
		return nil, err
	}

	if wf == nil {
		wf = &models.ApprovalWorkflow{
			ID:          uuid.New(),
			CompositeID: c.ID,
			CreatedAt:   now,
		}
	}
	wf.Status = models.WorkflowStatusPending
	wf.AssignedTo = nonBlank(a.AssignedTo)
	wf.AssignedBy = nonBlank(a.AssignedBy)
	wf.AssignedAt = nil
	if wf.AssignedTo != nil {
		wf.AssignedAt = timePtr(now)
	}
	wf.ReviewedBy = nil
	wf.ReviewComments = nil
	wf.RejectionReason = nil
	wf.ReviewedAt = nil
	wf.CompletedAt = nil

	c.Status = models.CompositeStatusPendingApproval
	c.UpdatedAt = now
	return wf, nil
}

// Approve marks a pending composite as approved.
func Approve(c *models.Composite, wf *models.ApprovalWorkflow, reviewer, comments *string, now time.Time) (*models.ApprovalWorkflow, error) {
	if err := CheckTransition(ActionApprove, c.Status); err != nil {
		return nil, err
	}
	wf, err := openWorkflow(ActionApprove, c, wf, now)
	if err != nil {
		return nil, err
	}

	c.Status = models.CompositeStatusApproved
	c.ApprovedAt = timePtr(now)
	c.UpdatedAt = now

	wf.Status = models.WorkflowStatusApproved
	wf.ReviewedBy = nonBlank(reviewer)
	wf.ReviewComments = nonBlank(comments)
	wf.ReviewedAt = timePtr(now)
	wf.CompletedAt = timePtr(now)
	return wf, nil
}

// Reject marks a pending composite as rejected. A non-blank reason is required
// and is checked before anything else.
func Reject(c *models.Composite, wf *models.ApprovalWorkflow, reason string, reviewer, comments *string, now time.Time) (*models.ApprovalWorkflow, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("reason", "a rejection reason is required")
	}
	if err := CheckTransition(ActionReject, c.Status); err != nil {
		return nil, err
	}
	wf, err := openWorkflow(ActionReject, c, wf, now)
	if err != nil {
		return nil, err
	}

	c.Status = models.CompositeStatusRejected
	c.UpdatedAt = now

	wf.Status = models.WorkflowStatusRejected
	wf.RejectionReason = &reason
	wf.ReviewedBy = nonBlank(reviewer)
	wf.ReviewComments = nonBlank(comments)
	wf.ReviewedAt = timePtr(now)
	wf.CompletedAt = timePtr(now)
	return wf, nil
}

// Withdraw returns a pending composite to DRAFT and cancels its workflow. The
// workflow is reused if the composite is submitted again.
func Withdraw(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
	if err := CheckTransition(ActionWithdraw, c.Status); err != nil {
		return nil, err
	}
	wf, err := openWorkflow(ActionWithdraw, c, wf, now)
	if err != nil {
		return nil, err
	}

	c.Status = models.CompositeStatusDraft
	c.UpdatedAt = now

	wf.Status = models.WorkflowStatusCancelled
	wf.CompletedAt = timePtr(now)
	return wf, nil
}

// Assign (re)assigns the reviewer of a pending composite.
func Assign(c *models.Composite, wf *models.ApprovalWorkflow, a Assignment, now time.Time) (*models.ApprovalWorkflow, error) {
	assignee := nonBlank(a.AssignedTo)
	if assignee == nil {
		return nil, apperrors.NewValidationError("assigned_to", "an assignee is required")
	}
	if err := CheckTransition(ActionAssign, c.Status); err != nil {
		return nil, err
	}
	wf, err := openWorkflow(ActionAssign, c, wf, now)
	if err != nil {
		return nil, err
	}

	wf.AssignedTo = assignee
	wf.AssignedBy = nonBlank(a.AssignedBy)
	wf.AssignedAt = timePtr(now)
	return wf, nil
}

// StartReview moves a PENDING workflow to IN_REVIEW. The reviewer becomes the
// assignee when nobody was assigned yet.
func StartReview(c *models.Composite, wf *models.ApprovalWorkflow, reviewer *string, now time.Time) (*models.ApprovalWorkflow, error) {
	if err := CheckTransition(ActionStartReview, c.Status); err != nil {
		return nil, err
	}
	wf, err := openWorkflow(ActionStartReview, c, wf, now)
	if err != nil {
		return nil, err
	}
	if wf.Status != models.WorkflowStatusPending {
		return nil, &apperrors.TransitionError{
			Action:   string(ActionStartReview),
			From:     "workflow " + string(wf.Status),
			Required: []string{"workflow " + string(models.WorkflowStatusPending)},
		}
	}

	wf.Status = models.WorkflowStatusInReview
	if wf.AssignedTo == nil {
		if r := nonBlank(reviewer); r != nil {
			wf.AssignedTo = r
			wf.AssignedAt = timePtr(now)
		}
	}
	return wf, nil
}

// openWorkflow returns a workflow a reviewer can act on. A pending composite
// without a workflow gets one; a closed workflow is a transition error.
func openWorkflow(action Action, c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
	if wf == nil {
		return &models.ApprovalWorkflow{
			ID:          uuid.New(),
			CompositeID: c.ID,
			Status:      models.WorkflowStatusPending,
			CreatedAt:   now,
		}, nil
	}
	if !wf.Status.IsOpen() {
		return nil, &apperrors.TransitionError{
			Action:   string(action),
			From:     "workflow " + string(wf.Status),
			Required: []string{"workflow " + string(models.WorkflowStatusPending), "workflow " + string(models.WorkflowStatusInReview)},
		}
	}
	return wf, nil
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
