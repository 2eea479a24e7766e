package models

import "github.com/google/uuid"

// ComponentChange describes how one component differs between two composites.
// OldPercentage is nil for added components, NewPercentage is nil for removed
// ones, and ChangePercent is nil when the relative change is undefined.
type ComponentChange struct {
	IdentityKey   string   `json:"identity_key"`
	DisplayName   string   `json:"component_name"`
	CASNumber     *string  `json:"cas_number,omitempty"`
	OldPercentage *float64 `json:"old_percentage"`
	NewPercentage *float64 `json:"new_percentage"`
	Change        float64  `json:"change"`
	ChangePercent *float64 `json:"change_percent"`
}

// CompositeComparison is the structured diff between two composites.
type CompositeComparison struct {
	OldCompositeID    uuid.UUID          `json:"old_composite_id"`
	NewCompositeID    uuid.UUID          `json:"new_composite_id"`
	OldVersion        int                `json:"old_version"`
	NewVersion        int                `json:"new_version"`
	Added             []*ComponentChange `json:"components_added"`
	Removed           []*ComponentChange `json:"components_removed"`
	Changed           []*ComponentChange `json:"components_changed"`
	TotalChangeScore  float64            `json:"total_change_score"`
	ThresholdPercent  float64            `json:"threshold_percent"`
	SignificantChange bool               `json:"significant_changes"`
}

// HasChanges reports whether any component was added, removed or changed.
func (c *CompositeComparison) HasChanges() bool {
	return len(c.Added)+len(c.Removed)+len(c.Changed) > 0
}
