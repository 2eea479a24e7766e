package composition

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-composites/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

func reading(cas, name string, pct float64, category models.ComponentCategory) models.Reading {
	r := models.Reading{DisplayName: name, Percentage: pct, Category: category}
	if cas != "" {
		r.CASNumber = strPtr(cas)
	}
	return r
}

func sumPercentages(components []*models.Component) float64 {
	var total float64
	for _, c := range components {
		total += c.Percentage
	}
	return total
}

func TestAggregate_SingleAnalysis(t *testing.T) {
	components := Aggregate([]Source{{
		AnalysisID: uuid.New(),
		Weight:     1,
		Readings: []models.Reading{
			reading("78-70-6", "Linalool", 30, models.CategoryComponent),
			reading("5989-27-5", "Limonene", 70, models.CategoryComponent),
		},
	}})

	require.Len(t, components, 2)
	assert.Equal(t, "Limonene", components[0].DisplayName)
	assert.Equal(t, 0, components[0].Position)
	assert.InDelta(t, 70.0, components[0].Percentage, 1e-9)
	assert.InDelta(t, 30.0, components[1].Percentage, 1e-9)
	for _, c := range components {
		require.NotNil(t, c.Confidence)
		assert.Equal(t, SingleSampleConfidence, *c.Confidence)
		assert.Equal(t, "Aggregated from 1 analyses", *c.Notes)
	}
}

func TestAggregate_IdenticalReadingsGiveFullConfidence(t *testing.T) {
	readings := []models.Reading{
		reading("5989-27-5", "Limonene", 60, models.CategoryComponent),
		reading("78-70-6", "Linalool", 40, models.CategoryComponent),
	}
	components := Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 1, Readings: readings},
		{AnalysisID: uuid.New(), Weight: 3, Readings: readings},
	})

	require.Len(t, components, 2)
	assert.InDelta(t, 60.0, components[0].Percentage, 1e-9)
	assert.InDelta(t, 40.0, components[1].Percentage, 1e-9)
	for _, c := range components {
		assert.Equal(t, 100.0, *c.Confidence)
	}
}

func TestAggregate_WeightedMeanAndNormalization(t *testing.T) {
	components := Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{
			reading("5989-27-5", "Limonene", 40, models.CategoryComponent),
			reading("", "Mystery", 50, models.CategoryComponent),
		}},
		{AnalysisID: uuid.New(), Weight: 3, Readings: []models.Reading{
			reading("5989-27-5", "d-Limonene", 60, models.CategoryComponent),
			reading("", "mystery", 30, models.CategoryComponent),
		}},
	})

	require.Len(t, components, 2)
	// Limonene: (40*1 + 60*3)/4 = 55; Mystery: (50 + 90)/4 = 35; total 90.
	assert.Equal(t, "cas:5989-27-5", components[0].IdentityKey)
	assert.Equal(t, "Limonene", components[0].DisplayName)
	assert.InDelta(t, 55.0/90.0*100, components[0].Percentage, 1e-9)
	assert.Equal(t, "name:mystery", components[1].IdentityKey)
	assert.InDelta(t, 35.0/90.0*100, components[1].Percentage, 1e-9)
	assert.InDelta(t, 100.0, sumPercentages(components), 1e-6)
	assert.Less(t, *components[0].Confidence, 100.0)
}

func TestAggregate_ReadingsTakeTheirSourceWeight(t *testing.T) {
	first := []models.Reading{
		reading("", "A", 40, models.CategoryComponent),
		reading("", "B", 60, models.CategoryComponent),
	}
	second := []models.Reading{
		reading("", "A", 80, models.CategoryComponent),
		reading("", "B", 20, models.CategoryComponent),
	}
	// Stale weights carried on the readings are replaced by the analysis weight.
	first[0].SourceWeight = 0
	second[0].SourceWeight = 50

	components := Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 3, Readings: first},
		{AnalysisID: uuid.New(), Weight: 1, Readings: second},
	})

	require.Len(t, components, 2)
	byName := map[string]float64{}
	for _, c := range components {
		byName[c.DisplayName] = c.Percentage
	}
	assert.InDelta(t, 50.0, byName["A"], 1e-9)
	assert.InDelta(t, 50.0, byName["B"], 1e-9)
	assert.Equal(t, 50.0, second[0].SourceWeight, "caller readings are left untouched")
}

func TestAggregate_ZeroWeightsFallBackToEqualWeights(t *testing.T) {
	components := Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 0, Readings: []models.Reading{reading("", "A", 20, models.CategoryComponent)}},
		{AnalysisID: uuid.New(), Weight: 0, Readings: []models.Reading{reading("", "A", 40, models.CategoryComponent)}},
		{AnalysisID: uuid.New(), Weight: -2, Readings: []models.Reading{reading("", "B", 70, models.CategoryComponent)}},
	})

	require.Len(t, components, 2)
	for _, c := range components {
		assert.False(t, math.IsNaN(c.Percentage))
	}
	// A: 30, B: 70.
	assert.Equal(t, "name:b", components[0].IdentityKey)
	assert.InDelta(t, 70.0, components[0].Percentage, 1e-9)
	assert.InDelta(t, 30.0, components[1].Percentage, 1e-9)
}

func TestAggregate_MajorityCategoryTieGoesToFirstSeen(t *testing.T) {
	components := Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{reading("64-17-5", "Ethanol", 0.5, models.CategoryImpurity)}},
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{reading("64-17-5", "Ethanol", 0.5, models.CategoryComponent)}},
	})
	require.Len(t, components, 1)
	assert.Equal(t, models.CategoryImpurity, components[0].Category)

	components = Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{reading("64-17-5", "Ethanol", 0.5, models.CategoryImpurity)}},
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{reading("64-17-5", "Ethanol", 0.5, models.CategoryComponent)}},
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{reading("64-17-5", "Ethanol", 0.5, models.CategoryComponent)}},
	})
	require.Len(t, components, 1)
	assert.Equal(t, models.CategoryComponent, components[0].Category)
}

func TestAggregate_ZeroMeanGroupHasZeroConfidence(t *testing.T) {
	components := Aggregate([]Source{
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{
			reading("", "Trace", 0, models.CategoryImpurity),
			reading("", "Main", 100, models.CategoryComponent),
		}},
		{AnalysisID: uuid.New(), Weight: 1, Readings: []models.Reading{
			reading("", "Trace", 0, models.CategoryImpurity),
			reading("", "Main", 100, models.CategoryComponent),
		}},
	})

	require.Len(t, components, 2)
	assert.Equal(t, "name:trace", components[1].IdentityKey)
	assert.Equal(t, 0.0, *components[1].Confidence)
}

func TestAggregate_NoSources(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
}

func TestNormalize(t *testing.T) {
	components := []*models.Component{{Percentage: 30}, {Percentage: 30}, {Percentage: 30}}
	pre := Normalize(components)
	assert.Equal(t, 90.0, pre)
	assert.InDelta(t, 100.0, sumPercentages(components), 1e-6)

	zero := []*models.Component{{Percentage: 0}}
	assert.Equal(t, 0.0, Normalize(zero))
	assert.Equal(t, 0.0, zero[0].Percentage)
}

func TestBuildManual(t *testing.T) {
	components, err := BuildManual([]ManualRow{
		{Name: "Linalool", CASNumber: "78-70-6", Percentage: 20},
		{Name: "Limonene", CASNumber: "CAS: 5989-27-5", Percentage: 60, Category: "component"},
		{Name: "Water", CASNumber: "n/a", Percentage: 20, Category: "IMPURITY", Notes: "from supplier sheet"},
	})
	require.NoError(t, err)
	require.Len(t, components, 3)

	assert.Equal(t, "Linalool", components[0].DisplayName)
	assert.Equal(t, 0, components[0].Position)
	assert.Equal(t, "5989-27-5", *components[1].CASNumber)
	assert.Equal(t, "n/a", *components[2].CASNumber)
	assert.Equal(t, models.CategoryImpurity, components[2].Category)
	for _, c := range components {
		assert.Nil(t, c.Confidence)
	}
	assert.InDelta(t, 100.0, sumPercentages(components), 1e-6)
}

func TestBuildManual_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rows  []ManualRow
		field string
	}{
		{"empty", nil, "components"},
		{"blank name", []ManualRow{{Name: " ", Percentage: 10}}, "components[0].component_name"},
		{"negative", []ManualRow{{Name: "A", Percentage: -1}}, "components[0].percentage"},
		{"over 100", []ManualRow{{Name: "A", Percentage: 50}, {Name: "B", Percentage: 101}}, "components[1].percentage"},
		{"nan", []ManualRow{{Name: "A", Percentage: math.NaN()}}, "components[0].percentage"},
		{"category", []ManualRow{{Name: "A", Percentage: 10, Category: "solvent"}}, "components[0].component_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildManual(tt.rows)
			var verr *apperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
