package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

// passThrough stands in for the database connection middleware.
func passThrough(next http.HandlerFunc) http.HandlerFunc { return next }

// mockMaterialService is a configurable MaterialService.
type mockMaterialService struct {
	material  *models.Material
	materials []*models.Material
	err       error

	created    *services.CreateMaterialRequest
	activeOnly bool
	limit      int
	offset     int
}

func (m *mockMaterialService) Create(_ context.Context, req *services.CreateMaterialRequest) (*models.Material, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Material{ID: uuid.New(), ReferenceCode: req.ReferenceCode, Name: req.Name, Active: true}, nil
}

func (m *mockMaterialService) Get(_ context.Context, id uuid.UUID) (*models.Material, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.material, nil
}

func (m *mockMaterialService) GetByReferenceCode(_ context.Context, code string) (*models.Material, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.material, nil
}

func (m *mockMaterialService) List(_ context.Context, activeOnly bool, limit, offset int) ([]*models.Material, error) {
	m.activeOnly, m.limit, m.offset = activeOnly, limit, offset
	return m.materials, m.err
}

// mockAnalysisService is a configurable AnalysisService.
type mockAnalysisService struct {
	result   *services.IngestResult
	analysis *models.Analysis
	analyses []*models.Analysis
	err      error

	ingested    *services.IngestRequest
	fileContent string
	deleted     uuid.UUID
}

func (m *mockAnalysisService) Ingest(_ context.Context, req *services.IngestRequest, file io.Reader) (*services.IngestResult, error) {
	m.ingested = req
	data, _ := io.ReadAll(file)
	m.fileContent = string(data)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockAnalysisService) Get(_ context.Context, id uuid.UUID) (*models.Analysis, error) {
	return m.analysis, m.err
}

func (m *mockAnalysisService) ListByMaterial(_ context.Context, materialID uuid.UUID) ([]*models.Analysis, error) {
	return m.analyses, m.err
}

func (m *mockAnalysisService) Delete(_ context.Context, id uuid.UUID) error {
	m.deleted = id
	return m.err
}

// mockCompositeService is a configurable CompositeService.
type mockCompositeService struct {
	composite  *models.Composite
	composites []*models.Composite
	history    []*services.HistoryEntry
	comparison *models.CompositeComparison
	err        error

	calculated *services.CalculateRequest
	previewed  *services.CalculateRequest
	manual     *services.ManualRequest
	filters    models.CompositeFilters
	compared   [2]uuid.UUID
	deleted    uuid.UUID
}

func (m *mockCompositeService) Calculate(_ context.Context, req *services.CalculateRequest) (*models.Composite, error) {
	m.calculated = req
	return m.composite, m.err
}

func (m *mockCompositeService) Preview(_ context.Context, req *services.CalculateRequest) (*models.Composite, error) {
	m.previewed = req
	return m.composite, m.err
}

func (m *mockCompositeService) CreateManual(_ context.Context, req *services.ManualRequest) (*models.Composite, error) {
	m.manual = req
	return m.composite, m.err
}

func (m *mockCompositeService) Save(_ context.Context, c *models.Composite) error {
	return m.err
}

func (m *mockCompositeService) Get(_ context.Context, id uuid.UUID) (*models.Composite, error) {
	return m.composite, m.err
}

func (m *mockCompositeService) List(_ context.Context, materialID uuid.UUID, filters models.CompositeFilters) ([]*models.Composite, error) {
	m.filters = filters
	return m.composites, m.err
}

func (m *mockCompositeService) History(_ context.Context, materialID uuid.UUID) ([]*services.HistoryEntry, error) {
	return m.history, m.err
}

func (m *mockCompositeService) Compare(_ context.Context, oldID, newID uuid.UUID) (*models.CompositeComparison, error) {
	m.compared = [2]uuid.UUID{oldID, newID}
	return m.comparison, m.err
}

func (m *mockCompositeService) CurrentApproved(_ context.Context, materialID uuid.UUID) (*models.Composite, error) {
	return m.composite, m.err
}

func (m *mockCompositeService) Delete(_ context.Context, id uuid.UUID) error {
	m.deleted = id
	return m.err
}

// mockWorkflowService records the last action it was asked to perform.
type mockWorkflowService struct {
	result    *services.TransitionResult
	workflow  *models.ApprovalWorkflow
	workflows []*models.ApprovalWorkflow
	err       error

	action     string
	id         uuid.UUID
	assignment composition.Assignment
	decision   services.ReviewDecision
	reviewer   *string
	filters    models.WorkflowFilters
}

func (m *mockWorkflowService) record(action string, id uuid.UUID) (*services.TransitionResult, error) {
	m.action, m.id = action, id
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockWorkflowService) Submit(_ context.Context, id uuid.UUID, a composition.Assignment) (*services.TransitionResult, error) {
	m.assignment = a
	return m.record("submit", id)
}

func (m *mockWorkflowService) Approve(_ context.Context, id uuid.UUID, d services.ReviewDecision) (*services.TransitionResult, error) {
	m.decision = d
	return m.record("approve", id)
}

func (m *mockWorkflowService) Reject(_ context.Context, id uuid.UUID, d services.ReviewDecision) (*services.TransitionResult, error) {
	m.decision = d
	return m.record("reject", id)
}

func (m *mockWorkflowService) Withdraw(_ context.Context, id uuid.UUID) (*services.TransitionResult, error) {
	return m.record("withdraw", id)
}

func (m *mockWorkflowService) Assign(_ context.Context, id uuid.UUID, a composition.Assignment) (*services.TransitionResult, error) {
	m.assignment = a
	return m.record("assign", id)
}

func (m *mockWorkflowService) StartReview(_ context.Context, id uuid.UUID, reviewer *string) (*services.TransitionResult, error) {
	m.reviewer = reviewer
	return m.record("start-review", id)
}

func (m *mockWorkflowService) GetByComposite(_ context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error) {
	return m.workflow, m.err
}

func (m *mockWorkflowService) List(_ context.Context, filters models.WorkflowFilters) ([]*models.ApprovalWorkflow, error) {
	m.filters = filters
	return m.workflows, m.err
}

// mockReviewService is a configurable ReviewService.
type mockReviewService struct {
	outcome *services.ReviewOutcome
	summary *services.ReviewSummary
	deleted int
	err     error

	retentionDays int
}

func (m *mockReviewService) ReviewMaterial(_ context.Context, materialID uuid.UUID) (*services.ReviewOutcome, error) {
	return m.outcome, m.err
}

func (m *mockReviewService) ReviewDue(context.Context) (*services.ReviewSummary, error) {
	return m.summary, m.err
}

func (m *mockReviewService) CleanupStaleDrafts(_ context.Context, retentionDays int) (int, error) {
	m.retentionDays = retentionDays
	return m.deleted, m.err
}

func (m *mockReviewService) RunScheduler(context.Context, time.Duration) {}

var (
	_ services.MaterialService  = (*mockMaterialService)(nil)
	_ services.AnalysisService  = (*mockAnalysisService)(nil)
	_ services.CompositeService = (*mockCompositeService)(nil)
	_ services.WorkflowService  = (*mockWorkflowService)(nil)
	_ services.ReviewService    = (*mockReviewService)(nil)
)
