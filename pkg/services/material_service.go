package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
)

// CreateMaterialRequest holds the fields of a new material.
type CreateMaterialRequest struct {
	ReferenceCode string  `json:"reference_code"`
	Name          string  `json:"name"`
	Supplier      *string `json:"supplier,omitempty"`
	Description   *string `json:"description,omitempty"`
	CASNumber     *string `json:"cas_number,omitempty"`
	MaterialType  *string `json:"material_type,omitempty"`
}

// MaterialService manages the raw materials composites are tracked for.
type MaterialService interface {
	// Create registers a material. A duplicate reference code yields apperrors.ErrConflict.
	Create(ctx context.Context, req *CreateMaterialRequest) (*models.Material, error)

	// Get returns a material or apperrors.ErrMaterialNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Material, error)

	// GetByReferenceCode returns a material by its business key or apperrors.ErrMaterialNotFound.
	GetByReferenceCode(ctx context.Context, code string) (*models.Material, error)

	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Material, error)
}

type materialService struct {
	materials repositories.MaterialRepository
	logger    *zap.Logger
}

// NewMaterialService creates a new MaterialService.
func NewMaterialService(materials repositories.MaterialRepository, logger *zap.Logger) MaterialService {
	return &materialService{
		materials: materials,
		logger:    logger.Named("material-service"),
	}
}

var _ MaterialService = (*materialService)(nil)

func (s *materialService) Create(ctx context.Context, req *CreateMaterialRequest) (*models.Material, error) {
	code := strings.TrimSpace(req.ReferenceCode)
	if code == "" {
		return nil, apperrors.NewValidationError("reference_code", "is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "is required")
	}

	m := &models.Material{
		ReferenceCode: code,
		Name:          name,
		Supplier:      trimmed(req.Supplier),
		Description:   trimmed(req.Description),
		CASNumber:     trimmed(req.CASNumber),
		MaterialType:  trimmed(req.MaterialType),
		Active:        true,
	}
	if err := s.materials.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	s.logger.Info("Material created",
		zap.String("material_id", m.ID.String()),
		zap.String("reference_code", m.ReferenceCode))
	return m, nil
}

func (s *materialService) Get(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	m, err := s.materials.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	if m == nil {
		return nil, apperrors.ErrMaterialNotFound
	}
	return m, nil
}

func (s *materialService) GetByReferenceCode(ctx context.Context, code string) (*models.Material, error) {
	m, err := s.materials.GetByReferenceCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	if m == nil {
		return nil, apperrors.ErrMaterialNotFound
	}
	return m, nil
}

func (s *materialService) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Material, error) {
	if offset < 0 {
		return nil, apperrors.NewValidationError("offset", "must not be negative")
	}
	materials, err := s.materials.List(ctx, activeOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	return materials, nil
}

// trimmed returns nil for nil or blank strings and the trimmed value otherwise.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
