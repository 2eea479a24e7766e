package composition

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-composites/pkg/models"
)

func component(cas, name string, pct float64) *models.Component {
	c := &models.Component{DisplayName: name, Percentage: pct, Category: models.CategoryComponent}
	if cas != "" {
		c.CASNumber = strPtr(cas)
	}
	c.IdentityKey = IdentityKey(c.CASNumber, name)
	return c
}

func TestCompare_AddedRemovedChanged(t *testing.T) {
	oldC := &models.Composite{ID: uuid.New(), Version: 1, Components: []*models.Component{
		component("100-00-1", "A", 40),
		component("100-00-2", "B", 10),
	}}
	newC := &models.Composite{ID: uuid.New(), Version: 2, Components: []*models.Component{
		component("100-00-1", "A", 35),
		component("100-00-3", "C", 15),
	}}

	result := Compare(oldC, newC, DefaultSignificanceThreshold)

	assert.Equal(t, oldC.ID, result.OldCompositeID)
	assert.Equal(t, newC.ID, result.NewCompositeID)
	assert.Equal(t, 1, result.OldVersion)
	assert.Equal(t, 2, result.NewVersion)

	require.Len(t, result.Removed, 1)
	assert.Equal(t, "B", result.Removed[0].DisplayName)
	assert.Equal(t, -10.0, result.Removed[0].Change)
	assert.Nil(t, result.Removed[0].NewPercentage)
	assert.Equal(t, -100.0, *result.Removed[0].ChangePercent)

	require.Len(t, result.Added, 1)
	assert.Equal(t, "C", result.Added[0].DisplayName)
	assert.Equal(t, 15.0, result.Added[0].Change)
	assert.Nil(t, result.Added[0].OldPercentage)
	assert.Nil(t, result.Added[0].ChangePercent)

	require.Len(t, result.Changed, 1)
	assert.Equal(t, "A", result.Changed[0].DisplayName)
	assert.Equal(t, -5.0, result.Changed[0].Change)
	assert.Equal(t, -12.5, *result.Changed[0].ChangePercent)

	assert.Equal(t, 30.0, result.TotalChangeScore)
	assert.True(t, result.SignificantChange)
	assert.True(t, result.HasChanges())
}

func TestCompare_IgnoresChangesWithinEpsilon(t *testing.T) {
	old := []*models.Component{component("", "Linalool", 50), component("", "Limonene", 50)}
	updated := []*models.Component{component("", "linalool", 50.005), component("", "LIMONENE", 49.995)}

	result := CompareComponents(old, updated, DefaultSignificanceThreshold)

	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Changed)
	assert.NotNil(t, result.Changed)
	assert.Equal(t, 0.0, result.TotalChangeScore)
	assert.False(t, result.SignificantChange)
	assert.False(t, result.HasChanges())
}

func TestCompare_ThresholdBoundary(t *testing.T) {
	old := []*models.Component{component("", "A", 50), component("", "B", 50)}
	updated := []*models.Component{component("", "A", 52.5), component("", "B", 47.5)}

	assert.True(t, CompareComponents(old, updated, 5.0).SignificantChange)
	assert.False(t, CompareComponents(old, updated, 5.5).SignificantChange)
}

func TestCompare_IsAntisymmetric(t *testing.T) {
	a := []*models.Component{component("100-00-1", "A", 40), component("100-00-2", "B", 10), component("", "D", 50)}
	b := []*models.Component{component("100-00-1", "A", 35), component("100-00-3", "C", 15), component("", "D", 50)}

	forward := CompareComponents(a, b, DefaultSignificanceThreshold)
	backward := CompareComponents(b, a, DefaultSignificanceThreshold)

	assert.Equal(t, forward.TotalChangeScore, backward.TotalChangeScore)
	require.Len(t, backward.Added, len(forward.Removed))
	require.Len(t, backward.Removed, len(forward.Added))
	assert.Equal(t, forward.Removed[0].IdentityKey, backward.Added[0].IdentityKey)
	assert.Equal(t, forward.Added[0].IdentityKey, backward.Removed[0].IdentityKey)
	require.Len(t, backward.Changed, 1)
	assert.Equal(t, -forward.Changed[0].Change, backward.Changed[0].Change)
}

func TestCompare_ZeroOldPercentage(t *testing.T) {
	result := CompareComponents(
		[]*models.Component{component("", "Trace", 0)},
		[]*models.Component{component("", "Trace", 1)},
		DefaultSignificanceThreshold,
	)

	require.Len(t, result.Changed, 1)
	assert.Equal(t, 0.0, *result.Changed[0].ChangePercent)
	assert.Equal(t, 1.0, result.TotalChangeScore)
}

func TestCompare_DuplicateKeyLaterLineWins(t *testing.T) {
	old := []*models.Component{component("100-00-1", "A", 10), component("100-00-1", "A again", 30)}
	updated := []*models.Component{component("100-00-1", "A", 30)}

	result := CompareComponents(old, updated, DefaultSignificanceThreshold)
	assert.False(t, result.HasChanges())
}
