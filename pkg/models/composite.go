package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompositeOrigin is the provenance of a composite.
type CompositeOrigin string

const (
	OriginLab        CompositeOrigin = "LAB"        // aggregated from chromatographic analyses
	OriginCalculated CompositeOrigin = "CALCULATED" // calculated from supplier documents
	OriginManual     CompositeOrigin = "MANUAL"     // entered by hand
)

// AllOrigins lists every composite origin.
var AllOrigins = []CompositeOrigin{OriginLab, OriginCalculated, OriginManual}

// Valid reports whether o is a known origin.
func (o CompositeOrigin) Valid() bool {
	switch o {
	case OriginLab, OriginCalculated, OriginManual:
		return true
	}
	return false
}

// CompositeStatus is the lifecycle state of a composite version.
type CompositeStatus string

const (
	CompositeStatusDraft           CompositeStatus = "DRAFT"
	CompositeStatusPendingApproval CompositeStatus = "PENDING_APPROVAL"
	CompositeStatusApproved        CompositeStatus = "APPROVED"
	CompositeStatusRejected        CompositeStatus = "REJECTED"
	CompositeStatusArchived        CompositeStatus = "ARCHIVED"
)

// AllCompositeStatuses lists every composite status.
var AllCompositeStatuses = []CompositeStatus{
	CompositeStatusDraft,
	CompositeStatusPendingApproval,
	CompositeStatusApproved,
	CompositeStatusRejected,
	CompositeStatusArchived,
}

// Valid reports whether s is a known composite status.
func (s CompositeStatus) Valid() bool {
	switch s {
	case CompositeStatusDraft, CompositeStatusPendingApproval, CompositeStatusApproved,
		CompositeStatusRejected, CompositeStatusArchived:
		return true
	}
	return false
}

// ComponentCategory distinguishes main components from impurities.
type ComponentCategory string

const (
	CategoryComponent ComponentCategory = "COMPONENT"
	CategoryImpurity  ComponentCategory = "IMPURITY"
)

// Valid reports whether c is a known category.
func (c ComponentCategory) Valid() bool {
	return c == CategoryComponent || c == CategoryImpurity
}

// Calculation method tags recorded in composite metadata.
const (
	CalculationWeightedAverage = "weighted_average"
	CalculationDocumentBased   = "document_based"
	CalculationManualEntry     = "manual_entry"
)

// Metadata sources.
const (
	MetadataSourceLabAnalyses = "lab_analyses"
	MetadataSourceManualEntry = "manual_entry"
	MetadataSourceReview      = "periodic_review"
)

// CompositeMetadataVersion is the current schema version of CompositeMetadata.
const CompositeMetadataVersion = 1

// CompositeMetadata records how a composite was produced.
type CompositeMetadata struct {
	SchemaVersion     int         `json:"schema_version"`
	Source            string      `json:"source"`
	CalculationMethod string      `json:"calculation_method"`
	AnalysisIDs       []uuid.UUID `json:"analysis_ids,omitempty"`
	AnalysisCount     int         `json:"analysis_count,omitempty"`
	Batches           []string    `json:"batches,omitempty"`
	Suppliers         []string    `json:"suppliers,omitempty"`
	// ComparedToVersion is set when a composite was produced by a periodic review.
	ComparedToVersion *int `json:"compared_to_version,omitempty"`
}

// Component is one resolved line item of a composite.
type Component struct {
	ID          uuid.UUID         `json:"id"`
	CompositeID uuid.UUID         `json:"composite_id"`
	IdentityKey string            `json:"identity_key"`
	DisplayName string            `json:"component_name"`
	CASNumber   *string           `json:"cas_number,omitempty"`
	Percentage  float64           `json:"percentage"`
	Category    ComponentCategory `json:"component_type"`
	Confidence  *float64          `json:"confidence_level,omitempty"`
	Notes       *string           `json:"notes,omitempty"`
	Position    int               `json:"-"`
}

// Composite is one version of a material's composition.
type Composite struct {
	ID         uuid.UUID         `json:"id"`
	MaterialID uuid.UUID         `json:"material_id"`
	Version    int               `json:"version"`
	Origin     CompositeOrigin   `json:"origin"`
	Status     CompositeStatus   `json:"status"`
	Components []*Component      `json:"components"`
	Metadata   CompositeMetadata `json:"metadata"`
	Notes      *string           `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ApprovedAt *time.Time        `json:"approved_at,omitempty"`
}

// TotalPercentage sums the component percentages.
func (c *Composite) TotalPercentage() float64 {
	var total float64
	for _, comp := range c.Components {
		total += comp.Percentage
	}
	return total
}

// CompositeFilters narrows composite listings.
type CompositeFilters struct {
	Status *CompositeStatus
	Limit  int
	Offset int
}

// ParseCompositeStatus converts s (case-insensitive) to a CompositeStatus.
func ParseCompositeStatus(s string) (CompositeStatus, bool) {
	status := CompositeStatus(strings.ToUpper(strings.TrimSpace(s)))
	return status, status.Valid()
}

// ParseOrigin converts s (case-insensitive) to a CompositeOrigin.
func ParseOrigin(s string) (CompositeOrigin, bool) {
	origin := CompositeOrigin(strings.ToUpper(strings.TrimSpace(s)))
	return origin, origin.Valid()
}

// ParseComponentCategory converts s (case-insensitive) to a ComponentCategory.
// An empty string yields CategoryComponent.
func ParseComponentCategory(s string) (ComponentCategory, bool) {
	if strings.TrimSpace(s) == "" {
		return CategoryComponent, true
	}
	category := ComponentCategory(strings.ToUpper(strings.TrimSpace(s)))
	return category, category.Valid()
}
