package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/metrics"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
)

// TransitionResult is the state of a composite and its workflow after an action.
type TransitionResult struct {
	Composite *models.Composite        `json:"composite"`
	Workflow  *models.ApprovalWorkflow `json:"workflow"`
}

// ReviewDecision carries the reviewer fields of approve and reject.
type ReviewDecision struct {
	Reviewer *string `json:"reviewed_by,omitempty"`
	Comments *string `json:"review_comments,omitempty"`
	// Reason is required when rejecting.
	Reason string `json:"rejection_reason,omitempty"`
}

// WorkflowService drives composites through the approval workflow. Every
// action locks the composite, applies the transition and persists the
// composite and its workflow in one transaction.
type WorkflowService interface {
	Submit(ctx context.Context, compositeID uuid.UUID, a composition.Assignment) (*TransitionResult, error)
	Approve(ctx context.Context, compositeID uuid.UUID, d ReviewDecision) (*TransitionResult, error)
	Reject(ctx context.Context, compositeID uuid.UUID, d ReviewDecision) (*TransitionResult, error)
	Withdraw(ctx context.Context, compositeID uuid.UUID) (*TransitionResult, error)
	Assign(ctx context.Context, compositeID uuid.UUID, a composition.Assignment) (*TransitionResult, error)
	StartReview(ctx context.Context, compositeID uuid.UUID, reviewer *string) (*TransitionResult, error)

	// GetByComposite returns the workflow of a composite or apperrors.ErrWorkflowNotFound.
	GetByComposite(ctx context.Context, compositeID uuid.UUID) (*models.ApprovalWorkflow, error)
	List(ctx context.Context, filters models.WorkflowFilters) ([]*models.ApprovalWorkflow, error)
}

type workflowService struct {
	db         TxRunner
	composites repositories.CompositeRepository
	workflows  repositories.WorkflowRepository
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     *zap.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	db TxRunner,
	composites repositories.CompositeRepository,
	workflows repositories.WorkflowRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) WorkflowService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &workflowService{
		db:         db,
		composites: composites,
		workflows:  workflows,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("workflow-service"),
	}
}

var _ WorkflowService = (*workflowService)(nil)

// transitionFunc applies one action to a locked composite and its workflow.
type transitionFunc func(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error)

func (s *workflowService) Submit(ctx context.Context, compositeID uuid.UUID, a composition.Assignment) (*TransitionResult, error) {
	return s.transition(ctx, composition.ActionSubmit, compositeID,
		func(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
			return composition.Submit(c, wf, a, now)
		})
}

func (s *workflowService) Approve(ctx context.Context, compositeID uuid.UUID, d ReviewDecision) (*TransitionResult, error) {
	return s.transition(ctx, composition.ActionApprove, compositeID,
		func(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
			return composition.Approve(c, wf, d.Reviewer, d.Comments, now)
		})
}

func (s *workflowService) Reject(ctx context.Context, compositeID uuid.UUID, d ReviewDecision) (*TransitionResult, error) {
	return s.transition(ctx, composition.ActionReject, compositeID,
		func(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
			return composition.Reject(c, wf, d.Reason, d.Reviewer, d.Comments, now)
		})
}

func (s *workflowService) Withdraw(ctx context.Context, compositeID uuid.UUID) (*TransitionResult, error) {
	return s.transition(ctx, composition.ActionWithdraw, compositeID, composition.Withdraw)
}

func (s *workflowService) Assign(ctx context.Context, compositeID uuid.UUID, a composition.Assignment) (*TransitionResult, error) {
	return s.transition(ctx, composition.ActionAssign, compositeID,
		func(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
			return composition.Assign(c, wf, a, now)
		})
}

func (s *workflowService) StartReview(ctx context.Context, compositeID uuid.UUID, reviewer *string) (*TransitionResult, error) {
	return s.transition(ctx, composition.ActionStartReview, compositeID,
		func(c *models.Composite, wf *models.ApprovalWorkflow, now time.Time) (*models.ApprovalWorkflow, error) {
			return composition.StartReview(c, wf, reviewer, now)
		})
}

func (s *workflowService) transition(ctx context.Context, action composition.Action, compositeID uuid.UUID, apply transitionFunc) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.composites.GetForUpdate(ctx, compositeID)
		if err != nil {
			return fmt.Errorf("failed to get composite: %w", err)
		}
		if c == nil {
			return apperrors.ErrCompositeNotFound
		}
		wf, err := s.workflows.GetByCompositeID(ctx, compositeID)
		if err != nil {
			return fmt.Errorf("failed to get workflow: %w", err)
		}

		before := c.Status
		wf, err = apply(c, wf, s.now())
		if err != nil {
			return err
		}

		if c.Status != before {
			if err := s.composites.UpdateStatus(ctx, c, before); err != nil {
				return err
			}
		}
		if err := s.workflows.Save(ctx, wf); err != nil {
			return fmt.Errorf("failed to save workflow: %w", err)
		}

		result = &TransitionResult{Composite: c, Workflow: wf}
		return nil
	})
	s.metrics.Transition(string(action), err)
	if err != nil {
		s.logger.Debug("Workflow action refused",
			zap.String("action", string(action)),
			zap.String("composite_id", compositeID.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Workflow action applied",
		zap.String("action", string(action)),
		zap.String("composite_id", compositeID.String()),
		zap.String("composite_status", string(result.Composite.Status)),
		zap.String("workflow_status", string(result.Workflow.Status)))
	return result, nil
}

func (s *workflowService) GetByComposite(ctx context.Context, compositeID uuid.UUID) (*models.ApprovalWorkflow, error) {
	wf, err := s.workflows.GetByCompositeID(ctx, compositeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperrors.ErrWorkflowNotFound
	}
	return wf, nil
}

func (s *workflowService) List(ctx context.Context, filters models.WorkflowFilters) ([]*models.ApprovalWorkflow, error) {
	if filters.Status != nil && !filters.Status.Valid() {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown status %q", *filters.Status))
	}
	workflows, err := s.workflows.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return workflows, nil
}
