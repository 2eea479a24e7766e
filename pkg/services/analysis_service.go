package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/extraction"
	"github.com/ekaya-inc/ekaya-composites/pkg/metrics"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
)

// DefaultAnalysisWeight is used when an upload does not carry a weight.
const DefaultAnalysisWeight = 1.0

// IngestRequest describes an uploaded analysis file.
type IngestRequest struct {
	MaterialID    uuid.UUID
	Filename      string
	BatchNumber   *string
	Supplier      *string
	LabTechnician *string
	AnalysisDate  *time.Time
	Weight        *float64
	Notes         *string
}

// IngestResult is the stored analysis together with the extractor report.
type IngestResult struct {
	Analysis *models.Analysis   `json:"analysis"`
	Report   *extraction.Result `json:"report"`
}

// AnalysisService ingests chromatographic analyses and manages stored ones.
type AnalysisService interface {
	// Ingest extracts the readings of file and stores them for the material.
	// Content problems are kept in the report and mark the analysis FAILED.
	// Unreadable files return apperrors.ErrStructuralParse or
	// apperrors.ErrColumnResolution and store nothing.
	Ingest(ctx context.Context, req *IngestRequest, file io.Reader) (*IngestResult, error)

	Get(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]*models.Analysis, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AnalysisServiceDeps contains dependencies for AnalysisService.
type AnalysisServiceDeps struct {
	Materials         repositories.MaterialRepository
	Analyses          repositories.AnalysisRepository
	Synonyms          *extraction.Synonyms // nil uses the default tables
	ImpurityThreshold float64
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

type analysisService struct {
	materials repositories.MaterialRepository
	analyses  repositories.AnalysisRepository
	options   extraction.Options
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(deps *AnalysisServiceDeps) AnalysisService {
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &analysisService{
		materials: deps.Materials,
		analyses:  deps.Analyses,
		options: extraction.Options{
			Synonyms:          deps.Synonyms,
			ImpurityThreshold: deps.ImpurityThreshold,
		},
		metrics: m,
		logger:  deps.Logger.Named("analysis-service"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

func (s *analysisService) Ingest(ctx context.Context, req *IngestRequest, file io.Reader) (*IngestResult, error) {
	weight := DefaultAnalysisWeight
	if req.Weight != nil {
		weight = *req.Weight
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return nil, apperrors.NewValidationError("weight", "must be a non-negative number")
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, apperrors.NewValidationError("filename", "is required")
	}

	material, err := s.materials.GetByID(ctx, req.MaterialID)
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	if material == nil {
		return nil, apperrors.ErrMaterialNotFound
	}

	start := time.Now()
	report, err := extraction.Extract(file, s.options)
	s.metrics.ObserveExtraction(start)
	if err != nil {
		s.logger.Warn("Analysis file could not be extracted",
			zap.String("material_id", req.MaterialID.String()),
			zap.String("filename", filename),
			zap.Error(err))
		return nil, fmt.Errorf("failed to extract %s: %w", filename, err)
	}

	analysis := &models.Analysis{
		MaterialID:       req.MaterialID,
		Filename:         filename,
		BatchNumber:      trimmed(req.BatchNumber),
		Supplier:         trimmed(req.Supplier),
		AnalysisDate:     req.AnalysisDate,
		LabTechnician:    trimmed(req.LabTechnician),
		Weight:           weight,
		Readings:         report.Readings,
		TotalPercentage:  report.TotalPercentage,
		ValidationErrors: report.ValidationErrors,
		Status:           models.AnalysisStatusProcessed,
		ProcessingNotes:  trimmed(req.Notes),
	}
	if !report.Success {
		analysis.Status = models.AnalysisStatusFailed
	}

	if err := s.analyses.Create(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}
	s.metrics.AnalysisIngested(string(analysis.Status))

	s.logger.Info("Analysis ingested",
		zap.String("analysis_id", analysis.ID.String()),
		zap.String("material_id", analysis.MaterialID.String()),
		zap.String("status", string(analysis.Status)),
		zap.Int("components", report.ComponentCount),
		zap.Float64("total_percentage", report.TotalPercentage))

	return &IngestResult{Analysis: analysis, Report: report}, nil
}

func (s *analysisService) Get(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	a, err := s.analyses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	if a == nil {
		return nil, apperrors.ErrAnalysisNotFound
	}
	return a, nil
}

func (s *analysisService) ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]*models.Analysis, error) {
	material, err := s.materials.GetByID(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	if material == nil {
		return nil, apperrors.ErrMaterialNotFound
	}

	analyses, err := s.analyses.ListByMaterial(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}

func (s *analysisService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.analyses.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	s.logger.Info("Analysis deleted", zap.String("analysis_id", id.String()))
	return nil
}
