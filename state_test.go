package invoiceflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWorkflowRun(t *testing.T) {
	payload := testInvoice(5000)
	run := NewWorkflowRun(payload)

	require.True(t, strings.HasPrefix(run.WorkflowID, "run_"))
	require.Equal(t, StageIntake, run.CurrentStage)
	require.Equal(t, StatusRunning, run.Status)
	require.NotNil(t, run.ToolSelections)
	require.Empty(t, run.CompletedStages())

	// The run holds its own copy of the payload.
	payload.VendorName = "mutated"
	require.Equal(t, "Acme Supplies", run.Invoice.VendorName)
}

func TestStageOutputsWriteOnce(t *testing.T) {
	run := NewWorkflowRun(testInvoice(100))

	require.False(t, run.HasStageOutput(StageIntake))
	require.NoError(t, run.applyStageOutput(StageIntake, &IntakeOutput{RawID: "raw-1"}))
	require.True(t, run.HasStageOutput(StageIntake))

	err := run.applyStageOutput(StageIntake, &IntakeOutput{RawID: "raw-2"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already recorded")
	require.Equal(t, "raw-1", run.Outputs.Intake.RawID)
}

func TestStageOutputsRejectWrongType(t *testing.T) {
	run := NewWorkflowRun(testInvoice(100))
	err := run.applyStageOutput(StageIntake, &NotifyOutput{})
	require.Error(t, err)
}

func TestVerifyOutputPrefix(t *testing.T) {
	t.Run("empty run", func(t *testing.T) {
		run := NewWorkflowRun(testInvoice(100))
		require.NoError(t, run.VerifyOutputPrefix())
	})

	t.Run("direct path prefix", func(t *testing.T) {
		run := NewWorkflowRun(testInvoice(100))
		require.NoError(t, run.applyStageOutput(StageIntake, &IntakeOutput{}))
		require.NoError(t, run.applyStageOutput(StageUnderstand, &UnderstandOutput{}))
		run.CurrentStage = StageUnderstand
		require.NoError(t, run.VerifyOutputPrefix())
	})

	t.Run("gap in outputs fails", func(t *testing.T) {
		run := NewWorkflowRun(testInvoice(100))
		require.NoError(t, run.applyStageOutput(StageIntake, &IntakeOutput{}))
		require.NoError(t, run.applyStageOutput(StagePrepare, &PrepareOutput{}))
		run.CurrentStage = StagePrepare
		require.Error(t, run.VerifyOutputPrefix())
	})

	t.Run("current stage behind last output fails", func(t *testing.T) {
		run := NewWorkflowRun(testInvoice(100))
		require.NoError(t, run.applyStageOutput(StageIntake, &IntakeOutput{}))
		require.NoError(t, run.applyStageOutput(StageUnderstand, &UnderstandOutput{}))
		run.CurrentStage = StageIntake
		require.Error(t, run.VerifyOutputPrefix())
	})
}

func TestAppendAuditAssignsIDAndTimestamp(t *testing.T) {
	run := NewWorkflowRun(testInvoice(100))
	entry := run.AppendAudit(AuditEntry{Stage: StageIntake, Action: "invoice_validated"})

	require.NotEmpty(t, entry.ID)
	require.False(t, entry.Timestamp.IsZero())
	require.Len(t, run.AuditLog, 1)
	require.Equal(t, entry.ID, run.AuditLog[0].ID)
}

func TestRunSnapshotRoundTrip(t *testing.T) {
	run := NewWorkflowRun(testInvoice(5000))
	require.NoError(t, run.applyStageOutput(StageIntake, &IntakeOutput{RawID: "raw-1", IngestedAt: time.Now().UTC(), Validated: true}))
	require.NoError(t, run.applyStageOutput(StageUnderstand, &UnderstandOutput{}))
	require.NoError(t, run.applyStageOutput(StagePrepare, &PrepareOutput{VendorProfile: VendorProfile{NormalizedName: "Acme Supplies"}}))
	require.NoError(t, run.applyStageOutput(StageRetrieve, &RetrieveOutput{}))
	require.NoError(t, run.applyStageOutput(StageMatchTwoWay, &MatchTwoWayOutput{MatchScore: 0.65, MatchResult: MatchResultFailed, Threshold: 0.90}))
	require.NoError(t, run.applyStageOutput(StageCheckpointHITL, &CheckpointHITLOutput{CheckpointID: "chk_1"}))
	run.CurrentStage = StageCheckpointHITL
	run.Status = StatusPausedForReview
	run.ToolSelections[ToolCategoryERP] = "mock_erp"
	run.AppendAudit(AuditEntry{Stage: StageIntake, Action: "invoice_validated"})

	blob, err := EncodeRunSnapshot(run)
	require.NoError(t, err)

	restored, err := DecodeRunSnapshot(blob)
	require.NoError(t, err)
	require.Equal(t, run.WorkflowID, restored.WorkflowID)
	require.Equal(t, StageCheckpointHITL, restored.CurrentStage)
	require.Equal(t, StatusPausedForReview, restored.Status)
	require.Equal(t, run.Invoice.InvoiceID, restored.Invoice.InvoiceID)
	require.Equal(t, 0.65, restored.Outputs.MatchTwoWay.MatchScore)
	require.Equal(t, "mock_erp", restored.ToolSelections[ToolCategoryERP])
	require.Len(t, restored.AuditLog, 1)
	require.NoError(t, restored.VerifyOutputPrefix())
}

func TestDecodeRunSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeRunSnapshot([]byte("not json"))
	require.Error(t, err)

	_, err = DecodeRunSnapshot([]byte(`{}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "workflow_id")
}

func TestStageOrderAndParsing(t *testing.T) {
	require.Len(t, StageOrder, 12)
	require.Equal(t, StageIntake, StageOrder[0])
	require.Equal(t, StageComplete, StageOrder[11])
	require.True(t, StageMatchTwoWay.Before(StageCheckpointHITL))
	require.True(t, StageHITLDecision.Before(StageReconcile))

	stage, err := ParseStage("MATCH_TWO_WAY")
	require.NoError(t, err)
	require.Equal(t, StageMatchTwoWay, stage)

	_, err = ParseStage("NOT_A_STAGE")
	require.Error(t, err)
}

func TestRunStatusTerminal(t *testing.T) {
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusManualHandoff.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusRunning.Terminal())
	require.False(t, StatusPausedForReview.Terminal())
}

func TestSelectToolIsIdempotent(t *testing.T) {
	run := NewWorkflowRun(testInvoice(100))
	calls := 0
	selector := ToolSelectorFunc(func(category string) (string, error) {
		calls++
		return "chosen", nil
	})

	first, err := run.SelectTool(selector, ToolCategoryERP)
	require.NoError(t, err)
	second, err := run.SelectTool(selector, ToolCategoryERP)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}
