package invoiceflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.jetify.com/typeid"
)

// NewWorkflowID returns a new prefixed unique identifier for a run.
func NewWorkflowID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the lifecycle status of a workflow run.
type RunStatus string

const (
	StatusRunning         RunStatus = "RUNNING"
	StatusPausedForReview RunStatus = "PAUSED_FOR_REVIEW"
	StatusCompleted       RunStatus = "COMPLETED"
	StatusManualHandoff   RunStatus = "MANUAL_HANDOFF"
	StatusFailed          RunStatus = "FAILED"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusManualHandoff, StatusFailed:
		return true
	}
	return false
}

// StageOutputs holds one output fragment per executed stage. Each field is
// written exactly once, by exactly one stage function; a nil field means
// that stage has not run on this path.
type StageOutputs struct {
	Intake         *IntakeOutput         `json:"intake,omitempty"`
	Understand     *UnderstandOutput     `json:"understand,omitempty"`
	Prepare        *PrepareOutput        `json:"prepare,omitempty"`
	Retrieve       *RetrieveOutput       `json:"retrieve,omitempty"`
	MatchTwoWay    *MatchTwoWayOutput    `json:"match_two_way,omitempty"`
	CheckpointHITL *CheckpointHITLOutput `json:"checkpoint_hitl,omitempty"`
	HITLDecision   *HITLDecisionOutput   `json:"hitl_decision,omitempty"`
	Reconcile      *ReconcileOutput      `json:"reconcile,omitempty"`
	Approve        *ApproveOutput        `json:"approve,omitempty"`
	Posting        *PostingOutput        `json:"posting,omitempty"`
	Notify         *NotifyOutput         `json:"notify,omitempty"`
	Complete       *CompleteOutput       `json:"complete,omitempty"`
}

// WorkflowRun is the mutable aggregate carried through the engine. It is
// fully JSON serializable: the checkpoint state blob is an encoding of this
// struct, and resumption rehydrates it from a cold snapshot. A run executes
// on a single logical thread of control, so the aggregate needs no locking.
type WorkflowRun struct {
	WorkflowID     string            `json:"workflow_id"`
	CurrentStage   Stage             `json:"current_stage"`
	Status         RunStatus         `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Invoice        *InvoicePayload   `json:"invoice_payload"`
	Outputs        StageOutputs      `json:"stage_outputs"`
	AuditLog       []AuditEntry      `json:"audit_log"`
	ToolSelections map[string]string `json:"tool_selections"`
}

// NewWorkflowRun creates the initial state for a validated document payload.
func NewWorkflowRun(payload *InvoicePayload) *WorkflowRun {
	now := time.Now().UTC()
	return &WorkflowRun{
		WorkflowID:     NewWorkflowID(),
		CurrentStage:   StageIntake,
		Status:         StatusRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
		Invoice:        payload.Copy(),
		ToolSelections: map[string]string{},
	}
}

// HasStageOutput reports whether the stage has already produced its fragment.
func (r *WorkflowRun) HasStageOutput(stage Stage) bool {
	switch stage {
	case StageIntake:
		return r.Outputs.Intake != nil
	case StageUnderstand:
		return r.Outputs.Understand != nil
	case StagePrepare:
		return r.Outputs.Prepare != nil
	case StageRetrieve:
		return r.Outputs.Retrieve != nil
	case StageMatchTwoWay:
		return r.Outputs.MatchTwoWay != nil
	case StageCheckpointHITL:
		return r.Outputs.CheckpointHITL != nil
	case StageHITLDecision:
		return r.Outputs.HITLDecision != nil
	case StageReconcile:
		return r.Outputs.Reconcile != nil
	case StageApprove:
		return r.Outputs.Approve != nil
	case StagePosting:
		return r.Outputs.Posting != nil
	case StageNotify:
		return r.Outputs.Notify != nil
	case StageComplete:
		return r.Outputs.Complete != nil
	}
	return false
}

// applyStageOutput records a stage's fragment. Writing a fragment twice, or
// a fragment of the wrong type for the stage, is a contract violation.
func (r *WorkflowRun) applyStageOutput(stage Stage, output any) error {
	if r.HasStageOutput(stage) {
		return fmt.Errorf("stage %s output already recorded", stage)
	}
	mismatch := func() error {
		return fmt.Errorf("stage %s produced fragment of type %T", stage, output)
	}
	switch stage {
	case StageIntake:
		v, ok := output.(*IntakeOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Intake = v
	case StageUnderstand:
		v, ok := output.(*UnderstandOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Understand = v
	case StagePrepare:
		v, ok := output.(*PrepareOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Prepare = v
	case StageRetrieve:
		v, ok := output.(*RetrieveOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Retrieve = v
	case StageMatchTwoWay:
		v, ok := output.(*MatchTwoWayOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.MatchTwoWay = v
	case StageCheckpointHITL:
		v, ok := output.(*CheckpointHITLOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.CheckpointHITL = v
	case StageHITLDecision:
		v, ok := output.(*HITLDecisionOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.HITLDecision = v
	case StageReconcile:
		v, ok := output.(*ReconcileOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Reconcile = v
	case StageApprove:
		v, ok := output.(*ApproveOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Approve = v
	case StagePosting:
		v, ok := output.(*PostingOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Posting = v
	case StageNotify:
		v, ok := output.(*NotifyOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Notify = v
	case StageComplete:
		v, ok := output.(*CompleteOutput)
		if !ok {
			return mismatch()
		}
		r.Outputs.Complete = v
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	return nil
}

// CompletedStages returns, in canonical order, the stages that have produced
// an output fragment on this run.
func (r *WorkflowRun) CompletedStages() []Stage {
	var done []Stage
	for _, stage := range StageOrder {
		if r.HasStageOutput(stage) {
			done = append(done, stage)
		}
	}
	return done
}

// VerifyOutputPrefix checks that the recorded stage outputs form a contiguous
// prefix of one of the legal execution paths, ending at CurrentStage. The
// legal paths are the direct path (no HITL stages), the accepted-review path
// (all twelve stages), and the rejected-review path (HITL_DECISION followed
// directly by COMPLETE).
func (r *WorkflowRun) VerifyOutputPrefix() error {
	done := r.CompletedStages()
	if len(done) == 0 {
		if r.CurrentStage != StageIntake {
			return fmt.Errorf("no outputs recorded but current stage is %s", r.CurrentStage)
		}
		return nil
	}
	if done[len(done)-1] != r.CurrentStage {
		return fmt.Errorf("last output %s does not match current stage %s", done[len(done)-1], r.CurrentStage)
	}
	for _, path := range legalStagePaths(r) {
		if isPrefix(done, path) {
			return nil
		}
	}
	return fmt.Errorf("stage outputs %v are not a prefix of any legal path", done)
}

func legalStagePaths(r *WorkflowRun) [][]Stage {
	direct := []Stage{
		StageIntake, StageUnderstand, StagePrepare, StageRetrieve, StageMatchTwoWay,
		StageReconcile, StageApprove, StagePosting, StageNotify, StageComplete,
	}
	accepted := StageOrder
	rejected := []Stage{
		StageIntake, StageUnderstand, StagePrepare, StageRetrieve, StageMatchTwoWay,
		StageCheckpointHITL, StageHITLDecision, StageComplete,
	}
	if d := r.Outputs.HITLDecision; d != nil && d.Decision == DecisionReject {
		return [][]Stage{rejected}
	}
	return [][]Stage{direct, accepted, rejected}
}

func isPrefix(done, path []Stage) bool {
	if len(done) > len(path) {
		return false
	}
	for i, stage := range done {
		if path[i] != stage {
			return false
		}
	}
	return true
}

// AppendAudit appends an entry to the run's audit log, assigning its ID and
// timestamp. The log is append-only: entries are never reordered or removed.
func (r *WorkflowRun) AppendAudit(entry AuditEntry) AuditEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.AuditLog = append(r.AuditLog, entry)
	return entry
}

// SelectTool resolves the provider for a tool category, recording the choice
// on first use. Subsequent calls for the same category return the recorded
// provider without consulting the selector again, which keeps selections
// stable across suspend and resume.
func (r *WorkflowRun) SelectTool(selector ToolSelector, category string) (string, error) {
	if provider, ok := r.ToolSelections[category]; ok {
		return provider, nil
	}
	provider, err := selector.SelectProvider(category)
	if err != nil {
		return "", fmt.Errorf("select provider for %s: %w", category, err)
	}
	if r.ToolSelections == nil {
		r.ToolSelections = map[string]string{}
	}
	r.ToolSelections[category] = provider
	return provider, nil
}

// touch bumps the aggregate's modification time.
func (r *WorkflowRun) touch() {
	r.UpdatedAt = time.Now().UTC()
}
