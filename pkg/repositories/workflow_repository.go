package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-composites/pkg/database"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

// WorkflowRepository provides data access for approval workflows.
type WorkflowRepository interface {
	// Save inserts the workflow or updates it in place when its ID exists.
	Save(ctx context.Context, wf *models.ApprovalWorkflow) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error)

	// GetByCompositeID returns the workflow of a composite, or nil if it was never submitted.
	GetByCompositeID(ctx context.Context, compositeID uuid.UUID) (*models.ApprovalWorkflow, error)

	// List returns workflows newest first.
	List(ctx context.Context, filters models.WorkflowFilters) ([]*models.ApprovalWorkflow, error)
}

type workflowRepository struct{}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository() WorkflowRepository {
	return &workflowRepository{}
}

var _ WorkflowRepository = (*workflowRepository)(nil)

const workflowColumns = `id, composite_id, assigned_to, assigned_by, reviewed_by, status,
	review_comments, rejection_reason, created_at, assigned_at, reviewed_at, completed_at`

func (r *workflowRepository) Save(ctx context.Context, wf *models.ApprovalWorkflow) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}

	_, err = q.Exec(ctx, `
		INSERT INTO approval_workflows (
			id, composite_id, assigned_to, assigned_by, reviewed_by, status,
			review_comments, rejection_reason, created_at, assigned_at, reviewed_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			assigned_to = EXCLUDED.assigned_to,
			assigned_by = EXCLUDED.assigned_by,
			reviewed_by = EXCLUDED.reviewed_by,
			status = EXCLUDED.status,
			review_comments = EXCLUDED.review_comments,
			rejection_reason = EXCLUDED.rejection_reason,
			assigned_at = EXCLUDED.assigned_at,
			reviewed_at = EXCLUDED.reviewed_at,
			completed_at = EXCLUDED.completed_at`,
		wf.ID, wf.CompositeID, wf.AssignedTo, wf.AssignedBy, wf.ReviewedBy, wf.Status,
		wf.ReviewComments, wf.RejectionReason, wf.CreatedAt, wf.AssignedAt, wf.ReviewedAt, wf.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save approval workflow: %w", err)
	}
	return nil
}

func (r *workflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error) {
	return r.get(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id = $1`, id)
}

func (r *workflowRepository) GetByCompositeID(ctx context.Context, compositeID uuid.UUID) (*models.ApprovalWorkflow, error) {
	return r.get(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE composite_id = $1`, compositeID)
}

func (r *workflowRepository) get(ctx context.Context, query string, args ...any) (*models.ApprovalWorkflow, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	wf, err := scanWorkflow(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return wf, err
}

func (r *workflowRepository) List(ctx context.Context, filters models.WorkflowFilters) ([]*models.ApprovalWorkflow, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	var status *string
	if filters.Status != nil {
		s := string(*filters.Status)
		status = &s
	}

	rows, err := q.Query(ctx, `
		SELECT `+workflowColumns+`
		FROM approval_workflows
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2 = '' OR assigned_to = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		status, filters.AssignedTo, clampLimit(filters.Limit), max(filters.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list approval workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.ApprovalWorkflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval workflows: %w", err)
	}
	return workflows, nil
}

func scanWorkflow(row pgx.Row) (*models.ApprovalWorkflow, error) {
	var wf models.ApprovalWorkflow
	err := row.Scan(
		&wf.ID, &wf.CompositeID, &wf.AssignedTo, &wf.AssignedBy, &wf.ReviewedBy, &wf.Status,
		&wf.ReviewComments, &wf.RejectionReason, &wf.CreatedAt, &wf.AssignedAt, &wf.ReviewedAt, &wf.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval workflow: %w", err)
	}
	return &wf, nil
}
