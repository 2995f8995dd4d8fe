package invoiceflow

import (
	"errors"
	"fmt"
)

// Error type constants for classification and matching
const (
	// ErrorTypeValidation indicates a malformed document rejected before a
	// run was created.
	ErrorTypeValidation = "validation_error"

	// ErrorTypeStageExecution indicates a deterministic stage failed its
	// contract. The run ends FAILED with no checkpoint written.
	ErrorTypeStageExecution = "stage_execution_error"

	// ErrorTypePersistence indicates the checkpoint store was unavailable
	// during a suspend or resume. Surfaced to the caller as transient.
	ErrorTypePersistence = "persistence_error"
)

// Decision-layer guard errors. These never mutate a checkpoint record.
var (
	// ErrCheckpointNotFound is returned when a decision or detail lookup
	// references an unknown checkpoint ID.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrAlreadyDecided is returned when a decision is submitted for a
	// checkpoint whose review status is already DECIDED.
	ErrAlreadyDecided = errors.New("checkpoint already decided")
)

// PipelineError is a structured error with classification. It supports Go's
// error wrapping patterns with Unwrap().
type PipelineError struct {
	Type    string `json:"type"`
	Stage   Stage  `json:"stage,omitempty"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: stage %s: %s", e.Type, e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap supports errors.Is and errors.As against the wrapped error.
func (e *PipelineError) Unwrap() error {
	return e.Wrapped
}

// NewValidationError builds a validation error for a rejected document.
func NewValidationError(cause string) *PipelineError {
	return &PipelineError{Type: ErrorTypeValidation, Cause: cause}
}

// NewStageError wraps an error from a deterministic stage. The stage name is
// carried so callers have enough context to resubmit or escalate.
func NewStageError(stage Stage, err error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeStageExecution,
		Stage:   stage,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// NewPersistenceError wraps a checkpoint store failure.
func NewPersistenceError(op string, err error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypePersistence,
		Cause:   fmt.Sprintf("%s: %s", op, err.Error()),
		Wrapped: err,
	}
}

// IsValidationError reports whether err classifies as a validation error.
func IsValidationError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Type == ErrorTypeValidation
}

// IsStageError reports whether err classifies as a stage execution error.
func IsStageError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Type == ErrorTypeStageExecution
}

// IsPersistenceError reports whether err classifies as a persistence error.
func IsPersistenceError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Type == ErrorTypePersistence
}
