package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/metrics"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
	"github.com/ekaya-inc/ekaya-composites/pkg/retry"
)

// CalculateRequest asks for a LAB composite aggregated from analyses.
type CalculateRequest struct {
	MaterialID uuid.UUID `json:"material_id"`
	// AnalysisIDs restricts the aggregation to these analyses. Empty means
	// every processed analysis of the material.
	AnalysisIDs []uuid.UUID `json:"analysis_ids,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
}

// ManualRequest asks for a MANUAL or CALCULATED composite from entered rows.
type ManualRequest struct {
	MaterialID uuid.UUID               `json:"material_id"`
	Origin     models.CompositeOrigin  `json:"origin"`
	Components []composition.ManualRow `json:"components"`
	Notes      *string                 `json:"notes,omitempty"`
}

// HistoryEntry is one version of a material's composite together with its
// differences from the version before it.
type HistoryEntry struct {
	Composite    *models.Composite           `json:"composite"`
	FromPrevious *models.CompositeComparison `json:"changes_from_previous,omitempty"`
}

// CompositeService creates, queries and compares composite versions.
type CompositeService interface {
	// Calculate aggregates the processed analyses of a material into a new
	// DRAFT LAB composite.
	Calculate(ctx context.Context, req *CalculateRequest) (*models.Composite, error)

	// Preview aggregates like Calculate but stores nothing. The returned
	// composite has no ID and version 0.
	Preview(ctx context.Context, req *CalculateRequest) (*models.Composite, error)

	// CreateManual stores a DRAFT composite built from caller-supplied rows.
	CreateManual(ctx context.Context, req *ManualRequest) (*models.Composite, error)

	// Save stores an unsaved composite as the next DRAFT version of its material.
	Save(ctx context.Context, c *models.Composite) error

	Get(ctx context.Context, id uuid.UUID) (*models.Composite, error)
	List(ctx context.Context, materialID uuid.UUID, filters models.CompositeFilters) ([]*models.Composite, error)

	// History returns every version of a material, oldest first, each compared
	// with the version before it.
	History(ctx context.Context, materialID uuid.UUID) ([]*HistoryEntry, error)

	// Compare diffs two composites by ID using the configured threshold.
	Compare(ctx context.Context, oldID, newID uuid.UUID) (*models.CompositeComparison, error)

	// CurrentApproved returns the highest approved version of a material.
	CurrentApproved(ctx context.Context, materialID uuid.UUID) (*models.Composite, error)

	// Delete removes a DRAFT or REJECTED composite with its components and workflow.
	Delete(ctx context.Context, id uuid.UUID) error
}

// CompositeServiceDeps contains dependencies for CompositeService.
type CompositeServiceDeps struct {
	DB               TxRunner
	Materials        repositories.MaterialRepository
	Analyses         repositories.AnalysisRepository
	Composites       repositories.CompositeRepository
	ThresholdPercent float64
	Retry            *retry.Config // nil uses retry.DefaultConfig
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

type compositeService struct {
	db         TxRunner
	materials  repositories.MaterialRepository
	analyses   repositories.AnalysisRepository
	composites repositories.CompositeRepository
	threshold  float64
	retry      *retry.Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewCompositeService creates a new CompositeService.
func NewCompositeService(deps *CompositeServiceDeps) CompositeService {
	threshold := deps.ThresholdPercent
	if threshold <= 0 {
		threshold = composition.DefaultSignificanceThreshold
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &compositeService{
		db:         deps.DB,
		materials:  deps.Materials,
		analyses:   deps.Analyses,
		composites: deps.Composites,
		threshold:  threshold,
		retry:      deps.Retry,
		metrics:    m,
		logger:     deps.Logger.Named("composite-service"),
	}
}

var _ CompositeService = (*compositeService)(nil)

func (s *compositeService) Calculate(ctx context.Context, req *CalculateRequest) (*models.Composite, error) {
	c, err := s.Preview(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *compositeService) Preview(ctx context.Context, req *CalculateRequest) (*models.Composite, error) {
	if err := s.requireMaterial(ctx, req.MaterialID); err != nil {
		return nil, err
	}

	analyses, err := s.analyses.ListProcessed(ctx, req.MaterialID, req.AnalysisIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed analyses: %w", err)
	}
	if len(analyses) == 0 {
		return nil, apperrors.ErrNoEligibleAnalyses
	}

	start := time.Now()
	sources := make([]composition.Source, 0, len(analyses))
	for _, a := range analyses {
		sources = append(sources, composition.Source{
			AnalysisID:  a.ID,
			Weight:      a.Weight,
			BatchNumber: deref(a.BatchNumber),
			Supplier:    deref(a.Supplier),
			Readings:    a.Readings,
		})
	}
	components := composition.Aggregate(sources)
	s.metrics.ObserveAggregation(start)

	return &models.Composite{
		MaterialID: req.MaterialID,
		Origin:     models.OriginLab,
		Status:     models.CompositeStatusDraft,
		Components: components,
		Metadata:   labMetadata(sources),
		Notes:      trimmed(req.Notes),
	}, nil
}

// labMetadata records the analyses an aggregation was computed from.
func labMetadata(sources []composition.Source) models.CompositeMetadata {
	md := models.CompositeMetadata{
		SchemaVersion:     models.CompositeMetadataVersion,
		Source:            models.MetadataSourceLabAnalyses,
		CalculationMethod: models.CalculationWeightedAverage,
		AnalysisCount:     len(sources),
	}
	seenSupplier := make(map[string]bool)
	for _, src := range sources {
		md.AnalysisIDs = append(md.AnalysisIDs, src.AnalysisID)
		if src.BatchNumber != "" {
			md.Batches = append(md.Batches, src.BatchNumber)
		}
		if src.Supplier != "" && !seenSupplier[src.Supplier] {
			seenSupplier[src.Supplier] = true
			md.Suppliers = append(md.Suppliers, src.Supplier)
		}
	}
	return md
}

func (s *compositeService) CreateManual(ctx context.Context, req *ManualRequest) (*models.Composite, error) {
	origin := models.OriginManual
	if req.Origin != "" {
		origin, _ = models.ParseOrigin(string(req.Origin))
	}
	if origin != models.OriginManual && origin != models.OriginCalculated {
		return nil, apperrors.NewValidationError("origin", "must be MANUAL or CALCULATED")
	}

	components, err := composition.BuildManual(req.Components)
	if err != nil {
		return nil, err
	}
	if err := s.requireMaterial(ctx, req.MaterialID); err != nil {
		return nil, err
	}

	md := models.CompositeMetadata{
		SchemaVersion:     models.CompositeMetadataVersion,
		Source:            models.MetadataSourceManualEntry,
		CalculationMethod: models.CalculationManualEntry,
	}
	if origin == models.OriginCalculated {
		md.CalculationMethod = models.CalculationDocumentBased
	}

	c := &models.Composite{
		MaterialID: req.MaterialID,
		Origin:     origin,
		Status:     models.CompositeStatusDraft,
		Components: components,
		Metadata:   md,
		Notes:      trimmed(req.Notes),
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *compositeService) Save(ctx context.Context, c *models.Composite) error {
	c.Status = models.CompositeStatusDraft
	c.ApprovedAt = nil

	err := retry.DoWhen(ctx, s.retry, retryableCreate, func() error {
		c.ID = uuid.Nil
		return s.db.RunInTx(ctx, func(ctx context.Context) error {
			return s.composites.Create(ctx, c)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create composite: %w", err)
	}

	s.metrics.CompositeCreated(string(c.Origin))
	s.logger.Info("Composite created",
		zap.String("composite_id", c.ID.String()),
		zap.String("material_id", c.MaterialID.String()),
		zap.Int("version", c.Version),
		zap.String("origin", string(c.Origin)),
		zap.Int("components", len(c.Components)))
	return nil
}

// retryableCreate also retries version collisions, which the next attempt
// resolves by reading a fresh version number.
func retryableCreate(err error) bool {
	return errors.Is(err, apperrors.ErrConflict) || retry.IsRetryable(err)
}

func (s *compositeService) Get(ctx context.Context, id uuid.UUID) (*models.Composite, error) {
	c, err := s.composites.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get composite: %w", err)
	}
	if c == nil {
		return nil, apperrors.ErrCompositeNotFound
	}
	return c, nil
}

func (s *compositeService) List(ctx context.Context, materialID uuid.UUID, filters models.CompositeFilters) ([]*models.Composite, error) {
	if filters.Status != nil && !filters.Status.Valid() {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown status %q", *filters.Status))
	}
	if err := s.requireMaterial(ctx, materialID); err != nil {
		return nil, err
	}

	composites, err := s.composites.ListByMaterial(ctx, materialID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list composites: %w", err)
	}
	return composites, nil
}

func (s *compositeService) History(ctx context.Context, materialID uuid.UUID) ([]*HistoryEntry, error) {
	if err := s.requireMaterial(ctx, materialID); err != nil {
		return nil, err
	}

	var all []*models.Composite
	filters := models.CompositeFilters{Limit: repositories.MaxListLimit}
	for {
		page, err := s.composites.ListByMaterial(ctx, materialID, filters)
		if err != nil {
			return nil, fmt.Errorf("failed to list composites: %w", err)
		}
		all = append(all, page...)
		if len(page) < filters.Limit {
			break
		}
		filters.Offset += len(page)
	}

	// ListByMaterial is newest first.
	history := make([]*HistoryEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		entry := &HistoryEntry{Composite: all[i]}
		if i < len(all)-1 {
			entry.FromPrevious = composition.Compare(all[i+1], all[i], s.threshold)
		}
		history = append(history, entry)
	}
	return history, nil
}

func (s *compositeService) Compare(ctx context.Context, oldID, newID uuid.UUID) (*models.CompositeComparison, error) {
	oldC, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newC, err := s.Get(ctx, newID)
	if err != nil {
		return nil, err
	}
	return composition.Compare(oldC, newC, s.threshold), nil
}

func (s *compositeService) CurrentApproved(ctx context.Context, materialID uuid.UUID) (*models.Composite, error) {
	if err := s.requireMaterial(ctx, materialID); err != nil {
		return nil, err
	}
	c, err := s.composites.GetLatestApproved(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approved composite: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("no approved version of material %s: %w", materialID, apperrors.ErrCompositeNotFound)
	}
	return c, nil
}

func (s *compositeService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.composites.GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get composite: %w", err)
		}
		if c == nil {
			return apperrors.ErrCompositeNotFound
		}
		if err := composition.CheckDeletable(c); err != nil {
			return err
		}
		return s.composites.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Composite deleted", zap.String("composite_id", id.String()))
	return nil
}

func (s *compositeService) requireMaterial(ctx context.Context, id uuid.UUID) error {
	m, err := s.materials.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get material: %w", err)
	}
	if m == nil {
		return apperrors.ErrMaterialNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
