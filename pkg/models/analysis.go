package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus records whether an uploaded analysis parsed cleanly.
type AnalysisStatus string

const (
	AnalysisStatusProcessed AnalysisStatus = "PROCESSED"
	AnalysisStatusFailed    AnalysisStatus = "FAILED"
)

// Valid reports whether s is a known analysis status.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case AnalysisStatusProcessed, AnalysisStatusFailed:
		return true
	}
	return false
}

// Reading is one row extracted from a source analysis. SourceWeight is zero
// as extracted; aggregation overwrites it with the owning analysis' weight
// (negative weights clamped to zero) and weights the reading by it.
type Reading struct {
	IdentityKey  string            `json:"identity_key" yaml:"identity_key"`
	DisplayName  string            `json:"component_name" yaml:"component_name"`
	CASNumber    *string           `json:"cas_number,omitempty" yaml:"cas_number,omitempty"`
	Percentage   float64           `json:"percentage" yaml:"percentage"`
	Category     ComponentCategory `json:"component_type" yaml:"component_type"`
	SourceWeight float64           `json:"source_weight,omitempty" yaml:"source_weight,omitempty"`
}

// Analysis is a chromatographic analysis uploaded for a material, together with
// the readings and validation report produced by the extractor.
type Analysis struct {
	ID               uuid.UUID      `json:"id"`
	MaterialID       uuid.UUID      `json:"material_id"`
	Filename         string         `json:"filename"`
	BatchNumber      *string        `json:"batch_number,omitempty"`
	Supplier         *string        `json:"supplier,omitempty"`
	AnalysisDate     *time.Time     `json:"analysis_date,omitempty"`
	LabTechnician    *string        `json:"lab_technician,omitempty"`
	Weight           float64        `json:"weight"`
	Readings         []Reading      `json:"readings"`
	TotalPercentage  float64        `json:"total_percentage"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	Status           AnalysisStatus `json:"status"`
	ProcessingNotes  *string        `json:"processing_notes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// IsProcessed reports whether the analysis is eligible for aggregation.
func (a *Analysis) IsProcessed() bool {
	return a.Status == AnalysisStatusProcessed
}
