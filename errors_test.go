package invoiceflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineErrorClassification(t *testing.T) {
	validation := NewValidationError("amount must be positive")
	require.True(t, IsValidationError(validation))
	require.False(t, IsStageError(validation))
	require.Contains(t, validation.Error(), "validation_error")

	cause := errors.New("erp connection refused")
	stage := NewStageError(StageRetrieve, cause)
	require.True(t, IsStageError(stage))
	require.False(t, IsPersistenceError(stage))
	require.Contains(t, stage.Error(), "RETRIEVE")
	require.ErrorIs(t, stage, cause)

	persistence := NewPersistenceError("save checkpoint", errors.New("disk full"))
	require.True(t, IsPersistenceError(persistence))
	require.Contains(t, persistence.Error(), "save checkpoint")
}

func TestPipelineErrorWrapping(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := fmt.Errorf("context: %w", NewStageError(StageReconcile, inner))

	require.True(t, IsStageError(wrapped))
	require.ErrorIs(t, wrapped, inner)

	var pe *PipelineError
	require.ErrorAs(t, wrapped, &pe)
	require.Equal(t, StageReconcile, pe.Stage)
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	require.NotErrorIs(t, ErrCheckpointNotFound, ErrAlreadyDecided)
	require.False(t, IsValidationError(ErrCheckpointNotFound))
	require.False(t, IsPersistenceError(ErrAlreadyDecided))
}
