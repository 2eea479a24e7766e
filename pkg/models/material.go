package models

import (
	"time"

	"github.com/google/uuid"
)

// Material is a raw material (fragrance or flavor ingredient) whose composition is tracked.
type Material struct {
	ID            uuid.UUID `json:"id"`
	ReferenceCode string    `json:"reference_code"`
	Name          string    `json:"name"`
	Supplier      *string   `json:"supplier,omitempty"`
	Description   *string   `json:"description,omitempty"`
	CASNumber     *string   `json:"cas_number,omitempty"`
	MaterialType  *string   `json:"material_type,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
