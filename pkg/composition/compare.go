package composition

import (
	"math"

	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

const (
	// ChangeEpsilon is the smallest percentage-point difference reported as a change.
	ChangeEpsilon = 0.01
	// DefaultSignificanceThreshold is the change score at which a new version needs re-approval.
	DefaultSignificanceThreshold = 5.0
)

type keyedComponents struct {
	keys  []string
	byKey map[string]*models.Component
}

func keyComponents(components []*models.Component) keyedComponents {
	kc := keyedComponents{byKey: make(map[string]*models.Component, len(components))}
	for _, c := range components {
		key := IdentityKey(c.CASNumber, c.DisplayName)
		if _, dup := kc.byKey[key]; !dup {
			kc.keys = append(kc.keys, key)
		}
		// Duplicate keys inside one composite: the later line wins.
		kc.byKey[key] = c
	}
	return kc
}

// Compare computes the structured diff from oldC to newC. The composites need
// not be chronologically ordered. thresholdPercent decides significance.
func Compare(oldC, newC *models.Composite, thresholdPercent float64) *models.CompositeComparison {
	result := CompareComponents(oldC.Components, newC.Components, thresholdPercent)
	result.OldCompositeID = oldC.ID
	result.NewCompositeID = newC.ID
	result.OldVersion = oldC.Version
	result.NewVersion = newC.Version
	return result
}

// CompareComponents diffs two component lists.
func CompareComponents(oldComponents, newComponents []*models.Component, thresholdPercent float64) *models.CompositeComparison {
	oldSide := keyComponents(oldComponents)
	newSide := keyComponents(newComponents)

	result := &models.CompositeComparison{
		Added:            []*models.ComponentChange{},
		Removed:          []*models.ComponentChange{},
		Changed:          []*models.ComponentChange{},
		ThresholdPercent: thresholdPercent,
	}
	var score float64

	for _, key := range oldSide.keys {
		if _, ok := newSide.byKey[key]; ok {
			continue
		}
		c := oldSide.byKey[key]
		oldPct := c.Percentage
		changePct := -100.0
		result.Removed = append(result.Removed, &models.ComponentChange{
			IdentityKey:   key,
			DisplayName:   c.DisplayName,
			CASNumber:     c.CASNumber,
			OldPercentage: &oldPct,
			Change:        -oldPct,
			ChangePercent: &changePct,
		})
		score += math.Abs(oldPct)
	}

	for _, key := range newSide.keys {
		c := newSide.byKey[key]
		newPct := c.Percentage

		prev, existed := oldSide.byKey[key]
		if !existed {
			result.Added = append(result.Added, &models.ComponentChange{
				IdentityKey:   key,
				DisplayName:   c.DisplayName,
				CASNumber:     c.CASNumber,
				NewPercentage: &newPct,
				Change:        newPct,
			})
			score += math.Abs(newPct)
			continue
		}

		oldPct := prev.Percentage
		delta := newPct - oldPct
		if math.Abs(delta) <= ChangeEpsilon {
			continue
		}
		var changePct float64
		if oldPct != 0 {
			changePct = delta / oldPct * 100
		}
		result.Changed = append(result.Changed, &models.ComponentChange{
			IdentityKey:   key,
			DisplayName:   c.DisplayName,
			CASNumber:     c.CASNumber,
			OldPercentage: &oldPct,
			NewPercentage: &newPct,
			Change:        delta,
			ChangePercent: &changePct,
		})
		score += math.Abs(delta)
	}

	result.TotalChangeScore = round(score, 2)
	result.SignificantChange = score >= thresholdPercent
	return result
}
