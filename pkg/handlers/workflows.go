package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

// AssignmentRequest is the body of submit and assign.
type AssignmentRequest struct {
	AssignedTo *string `json:"assigned_to,omitempty"`
	AssignedBy *string `json:"assigned_by,omitempty"`
}

func (a AssignmentRequest) assignment() composition.Assignment {
	return composition.Assignment{AssignedTo: a.AssignedTo, AssignedBy: a.AssignedBy}
}

// StartReviewRequest is the body of start-review.
type StartReviewRequest struct {
	Reviewer *string `json:"reviewer,omitempty"`
}

// WorkflowListResponse for GET /api/workflows
type WorkflowListResponse struct {
	Workflows []*models.ApprovalWorkflow `json:"workflows"`
	Total     int                        `json:"total"`
}

// WorkflowHandler exposes the approval workflow actions.
type WorkflowHandler struct {
	workflowService services.WorkflowService
	logger          *zap.Logger
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(workflowService services.WorkflowService, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflowService: workflowService,
		logger:          logger,
	}
}

// RegisterRoutes registers the workflow handler's routes on the given mux.
func (h *WorkflowHandler) RegisterRoutes(mux *http.ServeMux, withConn ConnectionMiddleware) {
	mux.HandleFunc("POST /api/composites/{cid}/submit", withConn(h.Submit))
	mux.HandleFunc("POST /api/composites/{cid}/approve", withConn(h.Approve))
	mux.HandleFunc("POST /api/composites/{cid}/reject", withConn(h.Reject))
	mux.HandleFunc("POST /api/composites/{cid}/withdraw", withConn(h.Withdraw))
	mux.HandleFunc("POST /api/composites/{cid}/assign", withConn(h.Assign))
	mux.HandleFunc("POST /api/composites/{cid}/start-review", withConn(h.StartReview))
	mux.HandleFunc("GET /api/composites/{cid}/workflow", withConn(h.Get))
	mux.HandleFunc("GET /api/workflows", withConn(h.List))
}

// Submit handles POST /api/composites/{cid}/submit
func (h *WorkflowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body AssignmentRequest
	h.act(w, r, "submit", &body, func(id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflowService.Submit(r.Context(), id, body.assignment())
	})
}

// Approve handles POST /api/composites/{cid}/approve
func (h *WorkflowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body services.ReviewDecision
	h.act(w, r, "approve", &body, func(id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflowService.Approve(r.Context(), id, body)
	})
}

// Reject handles POST /api/composites/{cid}/reject
func (h *WorkflowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body services.ReviewDecision
	h.act(w, r, "reject", &body, func(id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflowService.Reject(r.Context(), id, body)
	})
}

// Withdraw handles POST /api/composites/{cid}/withdraw
func (h *WorkflowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "withdraw", nil, func(id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflowService.Withdraw(r.Context(), id)
	})
}

// Assign handles POST /api/composites/{cid}/assign
func (h *WorkflowHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var body AssignmentRequest
	h.act(w, r, "assign", &body, func(id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflowService.Assign(r.Context(), id, body.assignment())
	})
}

// StartReview handles POST /api/composites/{cid}/start-review
func (h *WorkflowHandler) StartReview(w http.ResponseWriter, r *http.Request) {
	var body StartReviewRequest
	h.act(w, r, "start review", &body, func(id uuid.UUID) (*services.TransitionResult, error) {
		return h.workflowService.StartReview(r.Context(), id, body.Reviewer)
	})
}

// act parses the composite ID and optional body, then runs one workflow action.
func (h *WorkflowHandler) act(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	body any,
	run func(id uuid.UUID) (*services.TransitionResult, error),
) {
	compositeID, ok := ParseCompositeID(w, r, h.logger)
	if !ok {
		return
	}
	if body != nil && !decodeJSON(w, r, body, h.logger) {
		return
	}

	result, err := run(compositeID)
	if err != nil {
		writeServiceError(w, err, action+" composite", h.logger, zap.String("composite_id", compositeID.String()))
		return
	}
	writeData(w, http.StatusOK, result, h.logger)
}

// Get handles GET /api/composites/{cid}/workflow
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	compositeID, ok := ParseCompositeID(w, r, h.logger)
	if !ok {
		return
	}

	wf, err := h.workflowService.GetByComposite(r.Context(), compositeID)
	if err != nil {
		writeServiceError(w, err, "get workflow", h.logger, zap.String("composite_id", compositeID.String()))
		return
	}
	writeData(w, http.StatusOK, wf, h.logger)
}

// List handles GET /api/workflows?status=&assigned_to=&limit=&offset=
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePagination(w, r, h.logger)
	if !ok {
		return
	}

	filters := models.WorkflowFilters{
		AssignedTo: r.URL.Query().Get("assigned_to"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, valid := models.ParseWorkflowStatus(raw)
		if !valid {
			writeError(w, http.StatusBadRequest, "invalid_status", "Unknown workflow status: "+raw, h.logger)
			return
		}
		filters.Status = &status
	}

	workflows, err := h.workflowService.List(r.Context(), filters)
	if err != nil {
		writeServiceError(w, err, "list workflows", h.logger)
		return
	}
	writeData(w, http.StatusOK, WorkflowListResponse{Workflows: workflows, Total: len(workflows)}, h.logger)
}
