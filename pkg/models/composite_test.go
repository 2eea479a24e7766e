package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompositeStatus(t *testing.T) {
	for _, s := range AllCompositeStatuses {
		parsed, ok := ParseCompositeStatus(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}

	parsed, ok := ParseCompositeStatus(" pending_approval ")
	assert.True(t, ok)
	assert.Equal(t, CompositeStatusPendingApproval, parsed)

	_, ok = ParseCompositeStatus("published")
	assert.False(t, ok)
}

func TestParseComponentCategory_EmptyDefaultsToComponent(t *testing.T) {
	c, ok := ParseComponentCategory("")
	assert.True(t, ok)
	assert.Equal(t, CategoryComponent, c)

	c, ok = ParseComponentCategory("impurity")
	assert.True(t, ok)
	assert.Equal(t, CategoryImpurity, c)

	_, ok = ParseComponentCategory("solvent")
	assert.False(t, ok)
}

func TestWorkflowStatus_IsOpen(t *testing.T) {
	open := map[WorkflowStatus]bool{
		WorkflowStatusPending:   true,
		WorkflowStatusInReview:  true,
		WorkflowStatusApproved:  false,
		WorkflowStatusRejected:  false,
		WorkflowStatusCancelled: false,
	}
	for _, s := range AllWorkflowStatuses {
		assert.Equal(t, open[s], s.IsOpen(), s)
	}
}

func TestComponentChange_JSONKeepsNullPercentages(t *testing.T) {
	pct := 15.0
	change := ComponentChange{DisplayName: "Citral", NewPercentage: &pct, Change: 15}

	data, err := json.Marshal(change)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["old_percentage"])
	assert.Nil(t, decoded["change_percent"])
	assert.Contains(t, decoded, "change_percent")
	assert.Equal(t, 15.0, decoded["new_percentage"])
}
