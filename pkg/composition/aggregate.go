package composition

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

const (
	// SingleSampleConfidence is assigned to components seen in exactly one analysis.
	SingleSampleConfidence = 70.0
	// cvPenalty is how many confidence points one point of coefficient of variation costs.
	cvPenalty = 2.0
)

// Source is one analysis taking part in an aggregation.
type Source struct {
	AnalysisID  uuid.UUID
	Weight      float64
	BatchNumber string
	Supplier    string
	Readings    []models.Reading
}

type sample struct {
	percentage float64
	weight     float64
	category   models.ComponentCategory
}

type group struct {
	key         string
	displayName string
	cas         *string
	samples     []sample
}

// Aggregate merges the readings of all sources into one list of components.
//
// Readings are grouped by identity key, each group's percentage is the
// source-weighted mean, confidence is derived from the spread between
// samples, and the category is decided by majority vote. The result is
// sorted by percentage (descending) and normalized to sum to 100.
func Aggregate(sources []Source) []*models.Component {
	groups := make(map[string]*group)
	var order []*group

	for _, src := range sources {
		weight := math.Max(0, src.Weight)
		for _, r := range src.Readings {
			key := IdentityKey(r.CASNumber, r.DisplayName)
			g, ok := groups[key]
			if !ok {
				g = &group{key: key, displayName: r.DisplayName}
				groups[key] = g
				order = append(order, g)
			}
			if g.cas == nil && r.CASNumber != nil {
				cas := *r.CASNumber
				g.cas = &cas
			}
			category := r.Category
			if !category.Valid() {
				category = models.CategoryComponent
			}
			r.SourceWeight = weight
			g.samples = append(g.samples, sample{percentage: r.Percentage, weight: r.SourceWeight, category: category})
		}
	}

	components := make([]*models.Component, 0, len(order))
	for _, g := range order {
		confidence := groupConfidence(g.samples)
		notes := fmt.Sprintf("Aggregated from %d analyses", len(g.samples))
		components = append(components, &models.Component{
			IdentityKey: g.key,
			DisplayName: g.displayName,
			CASNumber:   g.cas,
			Percentage:  weightedMean(g.samples),
			Category:    majorityCategory(g.samples),
			Confidence:  &confidence,
			Notes:       &notes,
		})
	}

	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Percentage > components[j].Percentage
	})
	Normalize(components)
	assignPositions(components)

	return components
}

// weightedMean returns Σ(p·w)/Σw. When every sample carries zero weight the
// samples are weighted equally instead.
func weightedMean(samples []sample) float64 {
	var sum, weights float64
	for _, s := range samples {
		sum += s.percentage * s.weight
		weights += s.weight
	}
	if weights > 0 {
		return sum / weights
	}

	sum = 0
	for _, s := range samples {
		sum += s.percentage
	}
	return sum / float64(len(samples))
}

// groupConfidence scores agreement between samples on a 0-100 scale.
func groupConfidence(samples []sample) float64 {
	if len(samples) < 2 {
		return SingleSampleConfidence
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.percentage
	}
	return round(math.Max(0, 100-cvPenalty*coefficientOfVariation(values)), 2)
}

// coefficientOfVariation returns stdev/mean*100 using the sample standard
// deviation. A zero mean yields 100.
func coefficientOfVariation(values []float64) float64 {
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean <= 0 {
		return 100
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(values)-1))
	return stdev / mean * 100
}

// majorityCategory returns the most frequent category. Ties go to the
// category that was seen first.
func majorityCategory(samples []sample) models.ComponentCategory {
	counts := make(map[models.ComponentCategory]int)
	var seen []models.ComponentCategory
	for _, s := range samples {
		if counts[s.category] == 0 {
			seen = append(seen, s.category)
		}
		counts[s.category]++
	}
	if len(seen) == 0 {
		return models.CategoryComponent
	}

	best := seen[0]
	for _, c := range seen[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func assignPositions(components []*models.Component) {
	for i, c := range components {
		c.Position = i
	}
}
