package composition

import (
	"fmt"
	"math"
	"strings"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

// ManualRow is a caller-supplied component line for a manual or calculated composite.
type ManualRow struct {
	Name       string  `json:"component_name"`
	CASNumber  string  `json:"cas_number,omitempty"`
	Percentage float64 `json:"percentage"`
	Category   string  `json:"component_type,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// BuildManual turns caller-supplied rows into components. Rows are not
// grouped or re-ordered; percentages are taken as given and rescaled to 100.
// Confidence is never set for these components.
func BuildManual(rows []ManualRow) ([]*models.Component, error) {
	if len(rows) == 0 {
		return nil, apperrors.NewValidationError("components", "at least one component is required")
	}

	components := make([]*models.Component, 0, len(rows))
	for i, row := range rows {
		field := fmt.Sprintf("components[%d]", i)

		name := strings.TrimSpace(row.Name)
		if name == "" {
			return nil, apperrors.NewValidationError(field+".component_name", "is required")
		}
		if math.IsNaN(row.Percentage) || math.IsInf(row.Percentage, 0) ||
			row.Percentage < 0 || row.Percentage > 100 {
			return nil, apperrors.NewValidationError(field+".percentage", "must be between 0 and 100")
		}
		category, ok := models.ParseComponentCategory(row.Category)
		if !ok {
			return nil, apperrors.NewValidationError(field+".component_type",
				fmt.Sprintf("unknown component type %q", row.Category))
		}

		var cas *string
		if raw := strings.TrimSpace(row.CASNumber); raw != "" {
			if normalized, found := NormalizeCAS(raw); found {
				raw = normalized
			}
			cas = &raw
		}

		var notes *string
		if n := strings.TrimSpace(row.Notes); n != "" {
			notes = &n
		}

		components = append(components, &models.Component{
			IdentityKey: IdentityKey(cas, name),
			DisplayName: name,
			CASNumber:   cas,
			Percentage:  row.Percentage,
			Category:    category,
			Notes:       notes,
		})
	}

	Normalize(components)
	assignPositions(components)
	return components, nil
}
