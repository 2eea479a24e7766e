package apperrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecificNotFoundErrorsMatchSentinel(t *testing.T) {
	for _, err := range []error{ErrMaterialNotFound, ErrCompositeNotFound, ErrAnalysisNotFound, ErrWorkflowNotFound} {
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrNotFound)
	}
	assert.NotErrorIs(t, ErrNoEligibleAnalyses, ErrNotFound)
}

func TestTypedErrorsUnwrap(t *testing.T) {
	verr := NewValidationError("reason", "is required")
	assert.ErrorIs(t, verr, ErrValidation)
	assert.Equal(t, "reason: is required", verr.Error())

	terr := &TransitionError{Action: "approve", From: "DRAFT", Required: []string{"PENDING_APPROVAL"}}
	assert.ErrorIs(t, terr, ErrInvalidTransition)
	assert.Contains(t, terr.Error(), "requires PENDING_APPROVAL")

	var target *TransitionError
	assert.True(t, errors.As(fmt.Errorf("service: %w", terr), &target))
	assert.Equal(t, "approve", target.Action)

	cerr := &ColumnResolutionError{Missing: []string{"percentage"}, Headers: []string{"name", "cas"}}
	assert.ErrorIs(t, cerr, ErrColumnResolution)

	serr := &StructuralParseError{Reason: "read failed", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, serr, ErrStructuralParse)
	assert.ErrorIs(t, serr, io.ErrUnexpectedEOF)
}
