package composition

import "github.com/ekaya-inc/ekaya-composites/pkg/models"

// Normalize rescales the component percentages in place so they sum to 100
// and returns the total before scaling. A zero (or negative) total leaves the
// components untouched; downstream validation is expected to reject them.
func Normalize(components []*models.Component) float64 {
	var total float64
	for _, c := range components {
		total += c.Percentage
	}
	if total <= 0 {
		return total
	}
	factor := 100.0 / total
	for _, c := range components {
		c.Percentage *= factor
	}
	return total
}
