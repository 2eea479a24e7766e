package services

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
)

// fakeDB runs transactions inline and hands out no-op scopes.
type fakeDB struct {
	mu       sync.Mutex
	txCount  int
	scopes   int
	released int
}

func (d *fakeDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	d.txCount++
	d.mu.Unlock()
	return fn(ctx)
}

func (d *fakeDB) WithScope(ctx context.Context) (context.Context, func(), error) {
	d.mu.Lock()
	d.scopes++
	d.mu.Unlock()
	return ctx, func() {
		d.mu.Lock()
		d.released++
		d.mu.Unlock()
	}, nil
}

// ---- materials ----

type memMaterialRepo struct {
	mu        sync.Mutex
	materials map[uuid.UUID]*models.Material
}

func newMemMaterialRepo() *memMaterialRepo {
	return &memMaterialRepo{materials: make(map[uuid.UUID]*models.Material)}
}

var _ repositories.MaterialRepository = (*memMaterialRepo)(nil)

func (r *memMaterialRepo) add(code string) *models.Material {
	m := &models.Material{ID: uuid.New(), ReferenceCode: code, Name: code, Active: true}
	r.mu.Lock()
	r.materials[m.ID] = m
	r.mu.Unlock()
	return m
}

func (r *memMaterialRepo) Create(_ context.Context, m *models.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.materials {
		if existing.ReferenceCode == m.ReferenceCode {
			return apperrors.ErrConflict
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	cp := *m
	r.materials[m.ID] = &cp
	return nil
}

func (r *memMaterialRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *memMaterialRepo) GetByReferenceCode(_ context.Context, code string) (*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.materials {
		if m.ReferenceCode == code {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memMaterialRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*models.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Material{}
	for _, m := range r.materials {
		if activeOnly && !m.Active {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceCode < out[j].ReferenceCode })
	return page(out, limit, offset), nil
}

// ---- analyses ----

type memAnalysisRepo struct {
	mu       sync.Mutex
	analyses []*models.Analysis
}

var _ repositories.AnalysisRepository = (*memAnalysisRepo)(nil)

func (r *memAnalysisRepo) Create(_ context.Context, a *models.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	r.analyses = append(r.analyses, &cp)
	return nil
}

func (r *memAnalysisRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.analyses {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAnalysisRepo) ListByMaterial(_ context.Context, materialID uuid.UUID) ([]*models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Analysis{}
	for i := len(r.analyses) - 1; i >= 0; i-- {
		if r.analyses[i].MaterialID == materialID {
			cp := *r.analyses[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAnalysisRepo) ListProcessed(_ context.Context, materialID uuid.UUID, ids []uuid.UUID) ([]*models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Analysis{}
	for _, a := range r.analyses {
		if a.MaterialID != materialID || !a.IsProcessed() {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, a.ID) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memAnalysisRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.analyses {
		if a.ID == id {
			r.analyses = append(r.analyses[:i], r.analyses[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrAnalysisNotFound
}

// ---- composites ----

type memCompositeRepo struct {
	mu         sync.Mutex
	composites map[uuid.UUID]*models.Composite
	// createErrs are returned, in order, by the next Create calls.
	createErrs []error
	creates    int
}

func newMemCompositeRepo() *memCompositeRepo {
	return &memCompositeRepo{composites: make(map[uuid.UUID]*models.Composite)}
}

var _ repositories.CompositeRepository = (*memCompositeRepo)(nil)

func cloneComposite(c *models.Composite) *models.Composite {
	cp := *c
	cp.Components = slices.Clone(c.Components)
	return &cp
}

func (r *memCompositeRepo) Create(_ context.Context, c *models.Composite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		return err
	}

	version := 0
	for _, existing := range r.composites {
		if existing.MaterialID == c.MaterialID && existing.Version > version {
			version = existing.Version
		}
	}
	c.Version = version + 1
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.composites[c.ID] = cloneComposite(c)
	return nil
}

// put stores c as is, for seeding tests.
func (r *memCompositeRepo) put(c *models.Composite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.composites[c.ID] = cloneComposite(c)
}

func (r *memCompositeRepo) get(id uuid.UUID) *models.Composite {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.composites[id]
	if !ok {
		return nil
	}
	return cloneComposite(c)
}

func (r *memCompositeRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Composite, error) {
	return r.get(id), nil
}

func (r *memCompositeRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*models.Composite, error) {
	return r.get(id), nil
}

func (r *memCompositeRepo) sorted(materialID uuid.UUID) []*models.Composite {
	out := []*models.Composite{}
	for _, c := range r.composites {
		if c.MaterialID == materialID {
			out = append(out, cloneComposite(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}

func (r *memCompositeRepo) ListByMaterial(_ context.Context, materialID uuid.UUID, filters models.CompositeFilters) ([]*models.Composite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Composite{}
	for _, c := range r.sorted(materialID) {
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		out = append(out, c)
	}
	return page(out, filters.Limit, filters.Offset), nil
}

func (r *memCompositeRepo) GetLatestApproved(_ context.Context, materialID uuid.UUID) (*models.Composite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.sorted(materialID) {
		if c.Status == models.CompositeStatusApproved {
			return c, nil
		}
	}
	return nil, nil
}

func (r *memCompositeRepo) UpdateStatus(_ context.Context, c *models.Composite, expected models.CompositeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.composites[c.ID]
	if !ok {
		return apperrors.ErrCompositeNotFound
	}
	if stored.Status != expected {
		return apperrors.ErrInvalidTransition
	}
	stored.Status = c.Status
	stored.UpdatedAt = c.UpdatedAt
	stored.ApprovedAt = c.ApprovedAt
	return nil
}

func (r *memCompositeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.composites[id]; !ok {
		return apperrors.ErrCompositeNotFound
	}
	delete(r.composites, id)
	return nil
}

func (r *memCompositeRepo) ListMaterialsDueForReview(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[uuid.UUID]*models.Composite)
	for _, c := range r.composites {
		if c.Status != models.CompositeStatusApproved {
			continue
		}
		if cur, ok := latest[c.MaterialID]; !ok || c.Version > cur.Version {
			latest[c.MaterialID] = c
		}
	}
	ids := []uuid.UUID{}
	for id, c := range latest {
		if c.ApprovedAt != nil && c.ApprovedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memCompositeRepo) ListStaleDrafts(_ context.Context, cutoff time.Time) ([]*models.Composite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Composite{}
	for _, c := range r.composites {
		if c.Status == models.CompositeStatusDraft && c.UpdatedAt.Before(cutoff) {
			out = append(out, cloneComposite(c))
		}
	}
	return out, nil
}

func (r *memCompositeRepo) countByMaterial(materialID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sorted(materialID))
}

// ---- workflows ----

type memWorkflowRepo struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*models.ApprovalWorkflow
	saves     int
}

func newMemWorkflowRepo() *memWorkflowRepo {
	return &memWorkflowRepo{workflows: make(map[uuid.UUID]*models.ApprovalWorkflow)}
}

var _ repositories.WorkflowRepository = (*memWorkflowRepo)(nil)

func (r *memWorkflowRepo) Save(_ context.Context, wf *models.ApprovalWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	cp := *wf
	r.workflows[wf.ID] = &cp
	return nil
}

func (r *memWorkflowRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, nil
	}
	cp := *wf
	return &cp, nil
}

func (r *memWorkflowRepo) GetByCompositeID(_ context.Context, compositeID uuid.UUID) (*models.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wf := range r.workflows {
		if wf.CompositeID == compositeID {
			cp := *wf
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memWorkflowRepo) List(_ context.Context, filters models.WorkflowFilters) ([]*models.ApprovalWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.ApprovalWorkflow{}
	for _, wf := range r.workflows {
		if filters.Status != nil && wf.Status != *filters.Status {
			continue
		}
		if filters.AssignedTo != "" && (wf.AssignedTo == nil || *wf.AssignedTo != filters.AssignedTo) {
			continue
		}
		cp := *wf
		out = append(out, &cp)
	}
	return page(out, filters.Limit, filters.Offset), nil
}

func (r *memWorkflowRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workflows)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
