package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrColumnResolution  = errors.New("column resolution failed")
	ErrStructuralParse   = errors.New("unreadable tabular input")

	ErrMaterialNotFound  = fmt.Errorf("material %w", ErrNotFound)
	ErrCompositeNotFound = fmt.Errorf("composite %w", ErrNotFound)
	ErrAnalysisNotFound  = fmt.Errorf("analysis %w", ErrNotFound)
	ErrWorkflowNotFound  = fmt.Errorf("approval workflow %w", ErrNotFound)

	ErrNoEligibleAnalyses = errors.New("no processed analyses available for aggregation")
)

// ValidationError reports malformed caller input. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError is returned when a workflow action is attempted from a state
// that does not allow it. It matches ErrInvalidTransition.
type TransitionError struct {
	Action   string
	From     string
	Required []string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s composite in status %s: requires %s",
		e.Action, e.From, strings.Join(e.Required, " or "))
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ColumnResolutionError is returned when a required column cannot be located
// in a tabular header. It matches ErrColumnResolution.
type ColumnResolutionError struct {
	Missing []string
	Headers []string
}

func (e *ColumnResolutionError) Error() string {
	return fmt.Sprintf("could not identify required columns (%s) among headers [%s]",
		strings.Join(e.Missing, ", "), strings.Join(e.Headers, ", "))
}

func (e *ColumnResolutionError) Unwrap() error { return ErrColumnResolution }

// StructuralParseError is returned when tabular input cannot be read at all.
type StructuralParseError struct {
	Reason string
	Err    error
}

func (e *StructuralParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StructuralParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStructuralParse, e.Err}
	}
	return []error{ErrStructuralParse}
}
