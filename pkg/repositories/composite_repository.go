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

// CompositeRepository provides data access for composite versions and their components.
type CompositeRepository interface {
	// Create inserts a composite and its components, assigning the next
	// version number of the material. Must run inside a transaction: the
	// material row is locked until commit so concurrent creates serialize.
	Create(ctx context.Context, c *models.Composite) error

	// GetByID returns a composite with its components, or nil if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Composite, error)

	// GetForUpdate is GetByID with the composite row locked until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Composite, error)

	// ListByMaterial returns the composites of a material, newest version first.
	ListByMaterial(ctx context.Context, materialID uuid.UUID, filters models.CompositeFilters) ([]*models.Composite, error)

	// GetLatestApproved returns the highest approved version of a material, or nil.
	GetLatestApproved(ctx context.Context, materialID uuid.UUID) (*models.Composite, error)

	// UpdateStatus persists c.Status, c.UpdatedAt and c.ApprovedAt provided the
	// stored status still equals expected. A lost race yields apperrors.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, c *models.Composite, expected models.CompositeStatus) error

	// Delete removes a composite with its components and workflow.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListMaterialsDueForReview returns the materials whose latest approved
	// composite was approved before cutoff.
	ListMaterialsDueForReview(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// ListStaleDrafts returns DRAFT composites not updated since cutoff, without components.
	ListStaleDrafts(ctx context.Context, cutoff time.Time) ([]*models.Composite, error)
}

type compositeRepository struct{}

// NewCompositeRepository creates a new CompositeRepository.
func NewCompositeRepository() CompositeRepository {
	return &compositeRepository{}
}

var _ CompositeRepository = (*compositeRepository)(nil)

const compositeColumns = `id, material_id, version, origin, status, metadata, notes,
	created_at, updated_at, approved_at`

func (r *compositeRepository) Create(ctx context.Context, c *models.Composite) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	var locked uuid.UUID
	err = q.QueryRow(ctx, `SELECT id FROM materials WHERE id = $1 FOR UPDATE`, c.MaterialID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrMaterialNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock material: %w", err)
	}

	err = q.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM composites WHERE material_id = $1`,
		c.MaterialID,
	).Scan(&c.Version)
	if err != nil {
		return fmt.Errorf("failed to determine next version: %w", err)
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal composite metadata: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO composites (
			id, material_id, version, origin, status, metadata, notes,
			created_at, updated_at, approved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.MaterialID, c.Version, c.Origin, c.Status, metadata, c.Notes,
		c.CreatedAt, c.UpdatedAt, c.ApprovedAt,
	)
	if err != nil {
		if isPGError(err, pgUniqueViolation) && constraintName(err) == "composites_material_version_key" {
			return fmt.Errorf("version %d of material %s already exists: %w", c.Version, c.MaterialID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create composite: %w", err)
	}

	return r.insertComponents(ctx, q, c)
}

func (r *compositeRepository) insertComponents(ctx context.Context, q database.Querier, c *models.Composite) error {
	if len(c.Components) == 0 {
		return nil
	}

	query := `
		INSERT INTO composite_components (
			id, composite_id, position, identity_key, component_name, cas_number,
			percentage, component_type, confidence_level, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	for i, comp := range c.Components {
		if comp.ID == uuid.Nil {
			comp.ID = uuid.New()
		}
		comp.CompositeID = c.ID
		comp.Position = i
		batch.Queue(query,
			comp.ID, comp.CompositeID, comp.Position, comp.IdentityKey, comp.DisplayName,
			comp.CASNumber, comp.Percentage, comp.Category, comp.Confidence, comp.Notes,
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i := range c.Components {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert component %d: %w", i, err)
		}
	}
	return nil
}

func (r *compositeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Composite, error) {
	return r.get(ctx, `SELECT `+compositeColumns+` FROM composites WHERE id = $1`, id)
}

func (r *compositeRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Composite, error) {
	return r.get(ctx, `SELECT `+compositeColumns+` FROM composites WHERE id = $1 FOR UPDATE`, id)
}

func (r *compositeRepository) GetLatestApproved(ctx context.Context, materialID uuid.UUID) (*models.Composite, error) {
	return r.get(ctx, `
		SELECT `+compositeColumns+`
		FROM composites
		WHERE material_id = $1 AND status = $2
		ORDER BY version DESC
		LIMIT 1`, materialID, models.CompositeStatusApproved)
}

func (r *compositeRepository) get(ctx context.Context, query string, args ...any) (*models.Composite, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	c, err := scanComposite(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadComponents(ctx, q, []*models.Composite{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *compositeRepository) ListByMaterial(ctx context.Context, materialID uuid.UUID, filters models.CompositeFilters) ([]*models.Composite, error) {
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
		SELECT `+compositeColumns+`
		FROM composites
		WHERE material_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY version DESC
		LIMIT $3 OFFSET $4`,
		materialID, status, clampLimit(filters.Limit), max(filters.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list composites: %w", err)
	}

	composites, err := collectComposites(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadComponents(ctx, q, composites); err != nil {
		return nil, err
	}
	return composites, nil
}

func (r *compositeRepository) UpdateStatus(ctx context.Context, c *models.Composite, expected models.CompositeStatus) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE composites
		SET status = $2, updated_at = $3, approved_at = $4
		WHERE id = $1 AND status = $5`,
		c.ID, c.Status, c.UpdatedAt, c.ApprovedAt, expected)
	if err != nil {
		return fmt.Errorf("failed to update composite status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current models.CompositeStatus
	err = q.QueryRow(ctx, `SELECT status FROM composites WHERE id = $1`, c.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrCompositeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read composite status: %w", err)
	}
	return fmt.Errorf("composite %s is %s, expected %s: %w", c.ID, current, expected, apperrors.ErrInvalidTransition)
}

func (r *compositeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM composites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete composite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCompositeNotFound
	}
	return nil
}

func (r *compositeRepository) ListMaterialsDueForReview(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT material_id
		FROM (
			SELECT DISTINCT ON (material_id) material_id, approved_at
			FROM composites
			WHERE status = $1
			ORDER BY material_id, version DESC
		) latest
		WHERE approved_at < $2
		ORDER BY approved_at`, models.CompositeStatusApproved, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials due for review: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan material id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating materials due for review: %w", err)
	}
	return ids, nil
}

func (r *compositeRepository) ListStaleDrafts(ctx context.Context, cutoff time.Time) ([]*models.Composite, error) {
	q, err := database.MustQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+compositeColumns+`
		FROM composites
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`, models.CompositeStatusDraft, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale drafts: %w", err)
	}
	return collectComposites(rows)
}

// loadComponents fills the Components of each composite in one query.
func (r *compositeRepository) loadComponents(ctx context.Context, q database.Querier, composites []*models.Composite) error {
	if len(composites) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*models.Composite, len(composites))
	ids := make([]uuid.UUID, 0, len(composites))
	for _, c := range composites {
		c.Components = []*models.Component{}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, composite_id, position, identity_key, component_name, cas_number,
		       percentage, component_type, confidence_level, notes
		FROM composite_components
		WHERE composite_id = ANY($1::uuid[])
		ORDER BY composite_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to load components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var comp models.Component
		err := rows.Scan(
			&comp.ID, &comp.CompositeID, &comp.Position, &comp.IdentityKey, &comp.DisplayName,
			&comp.CASNumber, &comp.Percentage, &comp.Category, &comp.Confidence, &comp.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to scan component: %w", err)
		}
		if c, ok := byID[comp.CompositeID]; ok {
			c.Components = append(c.Components, &comp)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating components: %w", err)
	}
	return nil
}

func collectComposites(rows pgx.Rows) ([]*models.Composite, error) {
	defer rows.Close()

	composites := []*models.Composite{}
	for rows.Next() {
		c, err := scanComposite(rows)
		if err != nil {
			return nil, err
		}
		composites = append(composites, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating composites: %w", err)
	}
	return composites, nil
}

// scanComposite returns pgx.ErrNoRows unwrapped so callers can map it.
func scanComposite(row pgx.Row) (*models.Composite, error) {
	var c models.Composite
	var metadata []byte

	err := row.Scan(
		&c.ID, &c.MaterialID, &c.Version, &c.Origin, &c.Status, &metadata, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &c.ApprovedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan composite: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal composite metadata: %w", err)
		}
	}
	return &c, nil
}
