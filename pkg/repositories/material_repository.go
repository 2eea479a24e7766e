package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/database"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

// MaterialRepository provides data access for raw materials.
type MaterialRepository interface {
	// Create inserts a material. A duplicate reference code yields apperrors.ErrConflict.
	Create(ctx context.Context, m *models.Material) error

	// GetByID returns a material, or nil if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Material, error)

	// GetByReferenceCode returns a material by its business key, or nil.
	GetByReferenceCode(ctx context.Context, code string) (*models.Material, error)

	// List returns materials ordered by reference code.
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Material, error)
}

type materialRepository struct{}

// NewMaterialRepository creates a new MaterialRepository.
func NewMaterialRepository() MaterialRepository {
	return &materialRepository{}
}

var _ MaterialRepository = (*materialRepository)(nil)

const materialColumns = `id, reference_code, name, supplier, description, cas_number,
	material_type, active, created_at, updated_at`

func (r *materialRepository) Create(ctx context.Context, m *models.Material) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	query := `
		INSERT INTO materials (
			id, reference_code, name, supplier, description, cas_number,
			material_type, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = q.Exec(ctx, query,
		m.ID, m.ReferenceCode, m.Name, m.Supplier, m.Description, m.CASNumber,
		m.MaterialType, m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isPGError(err, pgUniqueViolation) {
			return fmt.Errorf("material with reference code %q: %w", m.ReferenceCode, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create material: %w", err)
	}
	return nil
}

func (r *materialRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id)
	return scanMaterial(row)
}

func (r *materialRepository) GetByReferenceCode(ctx context.Context, code string) (*models.Material, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE reference_code = $1`, code)
	return scanMaterial(row)
}

func (r *materialRepository) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*models.Material, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + materialColumns + `
		FROM materials
		WHERE ($1 = FALSE OR active)
		ORDER BY reference_code
		LIMIT $2 OFFSET $3`

	rows, err := q.Query(ctx, query, activeOnly, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	materials := []*models.Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating materials: %w", err)
	}
	return materials, nil
}

func scanMaterial(row pgx.Row) (*models.Material, error) {
	var m models.Material
	err := row.Scan(
		&m.ID, &m.ReferenceCode, &m.Name, &m.Supplier, &m.Description, &m.CASNumber,
		&m.MaterialType, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan material: %w", err)
	}
	return &m, nil
}
