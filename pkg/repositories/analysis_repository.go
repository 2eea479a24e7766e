package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/database"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

// AnalysisRepository provides data access for uploaded chromatographic analyses.
type AnalysisRepository interface {
	Create(ctx context.Context, a *models.Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error)

	// ListByMaterial returns every analysis of a material, newest first.
	ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]*models.Analysis, error)

	// ListProcessed returns the PROCESSED analyses of a material in upload
	// order. A non-empty ids restricts the result to those analyses.
	ListProcessed(ctx context.Context, materialID uuid.UUID, ids []uuid.UUID) ([]*models.Analysis, error)

	// Delete removes an analysis. Returns apperrors.ErrAnalysisNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error
}

type analysisRepository struct{}

// NewAnalysisRepository creates a new AnalysisRepository.
func NewAnalysisRepository() AnalysisRepository {
	return &analysisRepository{}
}

var _ AnalysisRepository = (*analysisRepository)(nil)

const analysisColumns = `id, material_id, filename, batch_number, supplier, analysis_date,
	lab_technician, weight, readings, total_percentage, validation_errors, status,
	processing_notes, created_at`

func (r *analysisRepository) Create(ctx context.Context, a *models.Analysis) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()

	readings, err := json.Marshal(nonNilReadings(a.Readings))
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}
	validationErrors, err := json.Marshal(nonNilStrings(a.ValidationErrors))
	if err != nil {
		return fmt.Errorf("failed to marshal validation errors: %w", err)
	}

	query := `
		INSERT INTO analyses (
			id, material_id, filename, batch_number, supplier, analysis_date,
			lab_technician, weight, readings, total_percentage, validation_errors,
			status, processing_notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = q.Exec(ctx, query,
		a.ID, a.MaterialID, a.Filename, a.BatchNumber, a.Supplier, a.AnalysisDate,
		a.LabTechnician, a.Weight, readings, a.TotalPercentage, validationErrors,
		a.Status, a.ProcessingNotes, a.CreatedAt,
	)
	if err != nil {
		if isPGError(err, pgForeignKeyViolation) {
			return apperrors.ErrMaterialNotFound
		}
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

func (r *analysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *analysisRepository) ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]*models.Analysis, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE material_id = $1
		ORDER BY created_at DESC, id`, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return collectAnalyses(rows)
}

func (r *analysisRepository) ListProcessed(ctx context.Context, materialID uuid.UUID, ids []uuid.UUID) ([]*models.Analysis, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE material_id = $1
		  AND status = $2
		  AND (cardinality($3::uuid[]) = 0 OR id = ANY($3::uuid[]))
		ORDER BY created_at, id`, materialID, models.AnalysisStatusProcessed, nonNilIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list processed analyses: %w", err)
	}
	return collectAnalyses(rows)
}

func (r *analysisRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAnalysisNotFound
	}
	return nil
}

func collectAnalyses(rows pgx.Rows) ([]*models.Analysis, error) {
	defer rows.Close()

	analyses := []*models.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyses: %w", err)
	}
	return analyses, nil
}

// scanAnalysis returns pgx.ErrNoRows unwrapped so callers can map it.
func scanAnalysis(row pgx.Row) (*models.Analysis, error) {
	var a models.Analysis
	var readings, validationErrors []byte

	err := row.Scan(
		&a.ID, &a.MaterialID, &a.Filename, &a.BatchNumber, &a.Supplier, &a.AnalysisDate,
		&a.LabTechnician, &a.Weight, &readings, &a.TotalPercentage, &validationErrors,
		&a.Status, &a.ProcessingNotes, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	if len(readings) > 0 {
		if err := json.Unmarshal(readings, &a.Readings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal readings: %w", err)
		}
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &a.ValidationErrors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation errors: %w", err)
		}
	}
	return &a, nil
}

func nonNilReadings(r []models.Reading) []models.Reading {
	if r == nil {
		return []models.Reading{}
	}
	return r
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
