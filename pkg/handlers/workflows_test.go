package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

func transitionResult(id uuid.UUID, status models.CompositeStatus, wfStatus models.WorkflowStatus) *services.TransitionResult {
	return &services.TransitionResult{
		Composite: &models.Composite{ID: id, Status: status},
		Workflow:  &models.ApprovalWorkflow{ID: uuid.New(), CompositeID: id, Status: wfStatus},
	}
}

func TestWorkflowHandler_Actions(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		path       string
		body       any
		wantAction string
	}{
		{"submit", AssignmentRequest{AssignedTo: strPtr("qa@lab")}, "submit"},
		{"approve", services.ReviewDecision{Reviewer: strPtr("qa@lab")}, "approve"},
		{"reject", services.ReviewDecision{Reason: "impurity too high"}, "reject"},
		{"withdraw", nil, "withdraw"},
		{"assign", AssignmentRequest{AssignedTo: strPtr("chemist@lab")}, "assign"},
		{"start-review", StartReviewRequest{Reviewer: strPtr("qa@lab")}, "start-review"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			svc := &mockWorkflowService{result: transitionResult(id, models.CompositeStatusPendingApproval, models.WorkflowStatusPending)}
			h := NewWorkflowHandler(svc, zap.NewNop())

			rec := serve(t, h, jsonRequest(t, http.MethodPost, "/api/composites/"+id.String()+"/"+tt.path, tt.body))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantAction, svc.action)
			assert.Equal(t, id, svc.id)
			got := decodeData[services.TransitionResult](t, rec)
			assert.Equal(t, id, got.Workflow.CompositeID)
		})
	}
}

func TestWorkflowHandler_SubmitPassesAssignment(t *testing.T) {
	id := uuid.New()
	svc := &mockWorkflowService{result: transitionResult(id, models.CompositeStatusPendingApproval, models.WorkflowStatusPending)}

	rec := serve(t, NewWorkflowHandler(svc, zap.NewNop()), jsonRequest(t, http.MethodPost,
		"/api/composites/"+id.String()+"/submit",
		AssignmentRequest{AssignedTo: strPtr("qa@lab"), AssignedBy: strPtr("chemist@lab")}))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.assignment.AssignedTo)
	assert.Equal(t, "qa@lab", *svc.assignment.AssignedTo)
	assert.Equal(t, "chemist@lab", *svc.assignment.AssignedBy)
}

func TestWorkflowHandler_RejectPassesDecision(t *testing.T) {
	id := uuid.New()
	svc := &mockWorkflowService{result: transitionResult(id, models.CompositeStatusRejected, models.WorkflowStatusRejected)}

	rec := serve(t, NewWorkflowHandler(svc, zap.NewNop()), jsonRequest(t, http.MethodPost,
		"/api/composites/"+id.String()+"/reject",
		map[string]string{"rejection_reason": "total out of range", "reviewed_by": "qa@lab"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "total out of range", svc.decision.Reason)
	assert.Equal(t, "qa@lab", *svc.decision.Reviewer)
}

func TestWorkflowHandler_InvalidTransition(t *testing.T) {
	svc := &mockWorkflowService{err: &apperrors.TransitionError{
		Action: "approve", From: "DRAFT", Required: []string{"PENDING_APPROVAL"},
	}}

	rec := serve(t, NewWorkflowHandler(svc, zap.NewNop()),
		jsonRequest(t, http.MethodPost, "/api/composites/"+uuid.New().String()+"/approve", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeErrorCode(t, rec))
}

func TestWorkflowHandler_RejectsMalformedBody(t *testing.T) {
	svc := &mockWorkflowService{}

	req := jsonRequest(t, http.MethodPost, "/api/composites/"+uuid.New().String()+"/assign", map[string]int{"assignee": 1})
	rec := serve(t, NewWorkflowHandler(svc, zap.NewNop()), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.action)
}

func TestWorkflowHandler_Get(t *testing.T) {
	id := uuid.New()
	svc := &mockWorkflowService{workflow: &models.ApprovalWorkflow{CompositeID: id, Status: models.WorkflowStatusInReview}}

	rec := serve(t, NewWorkflowHandler(svc, zap.NewNop()),
		jsonRequest(t, http.MethodGet, "/api/composites/"+id.String()+"/workflow", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WorkflowStatusInReview, decodeData[models.ApprovalWorkflow](t, rec).Status)
}

func TestWorkflowHandler_List(t *testing.T) {
	svc := &mockWorkflowService{workflows: []*models.ApprovalWorkflow{{ID: uuid.New()}}}
	h := NewWorkflowHandler(svc, zap.NewNop())

	rec := serve(t, h, jsonRequest(t, http.MethodGet, "/api/workflows?status=in_review&assigned_to=qa@lab&offset=3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeData[WorkflowListResponse](t, rec).Total)
	require.NotNil(t, svc.filters.Status)
	assert.Equal(t, models.WorkflowStatusInReview, *svc.filters.Status)
	assert.Equal(t, "qa@lab", svc.filters.AssignedTo)
	assert.Equal(t, 3, svc.filters.Offset)

	rec = serve(t, h, jsonRequest(t, http.MethodGet, "/api/workflows?status=stalled", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
