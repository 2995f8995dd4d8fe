package invoiceflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EngineOptions configures a pipeline engine. Config, Store and the
// collaborator interfaces have working defaults for local runs; production
// deployments supply their own.
type EngineOptions struct {
	Config    *Config
	Store     CheckpointStore
	Tools     ToolSelector
	Extractor TextExtractor
	Enricher  VendorEnricher
	ERP       ERPGateway
	Scorer    MatchScorer
	Entries   EntryGenerator
	Notifier  Notifier
	Audit     AuditSink
	Logger    *slog.Logger
}

// Engine drives invoice documents through the fixed pipeline, suspending
// runs that fail their two-way match for human review and resuming them
// when a decision arrives.
type Engine struct {
	config    Config
	store     CheckpointStore
	tools     ToolSelector
	extractor TextExtractor
	enricher  VendorEnricher
	erp       ERPGateway
	scorer    MatchScorer
	entries   EntryGenerator
	notifier  Notifier
	audit     AuditSink
	logger    *slog.Logger
}

// NewEngine creates an engine from options.
func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	e := &Engine{
		config:    cfg,
		store:     opts.Store,
		tools:     opts.Tools,
		extractor: opts.Extractor,
		enricher:  opts.Enricher,
		erp:       opts.ERP,
		scorer:    opts.Scorer,
		entries:   opts.Entries,
		notifier:  opts.Notifier,
		audit:     opts.Audit,
		logger:    opts.Logger,
	}
	if e.store == nil {
		e.store = NewMemoryCheckpointStore()
	}
	if e.tools == nil {
		e.tools = NewPoolSelector(cfg.ToolPools)
	}
	if e.extractor == nil {
		e.extractor = StubExtractor{}
	}
	if e.enricher == nil {
		e.enricher = StubEnricher{}
	}
	if e.erp == nil {
		e.erp = StubERPGateway{}
	}
	if e.scorer == nil {
		e.scorer = TwoWayScorer{TolerancePct: cfg.TwoWayTolerancePct}
	}
	if e.entries == nil {
		e.entries = StubEntryGenerator{}
	}
	if e.notifier == nil {
		e.notifier = &StubNotifier{}
	}
	if e.audit == nil {
		e.audit = NewNullAuditSink()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	initMetrics()
	return e, nil
}

// ProcessDocument validates a payload and drives a new run from INTAKE until
// it completes, pauses for review, or fails. A validation failure rejects
// the document before any run state exists.
func (e *Engine) ProcessDocument(ctx context.Context, payload *InvoicePayload) (*RunResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	run := NewWorkflowRun(payload)
	e.logger.Info("processing invoice",
		"workflow_id", run.WorkflowID,
		"invoice_id", payload.InvoiceID,
		"vendor", payload.VendorName,
		"amount", payload.Amount)
	return e.runFrom(ctx, run, StageIntake)
}

// runFrom executes stages starting at from, following the match branch and
// stopping at suspension or a terminal state. Stages that already hold an
// output are never re-executed; resumes pass straight through them.
func (e *Engine) runFrom(ctx context.Context, run *WorkflowRun, from Stage) (*RunResult, error) {
	stage := from
	for {
		if err := ctx.Err(); err != nil {
			return e.failRun(run, stage, err)
		}
		if !run.HasStageOutput(stage) {
			if err := e.execStage(ctx, run, stage); err != nil {
				return e.failRun(run, stage, err)
			}
		}
		run.CurrentStage = stage
		run.touch()

		switch stage {
		case StageComplete:
			run.Status = run.Outputs.Complete.FinalPayload.Status
			recordRunOutcome(run.Status)
			e.logger.Info("run finished",
				"workflow_id", run.WorkflowID, "status", run.Status)
			return e.buildResult(run), nil
		case StageMatchTwoWay:
			if run.Outputs.MatchTwoWay.MatchResult == MatchResultMatched {
				stage = StageReconcile
				continue
			}
			return e.suspend(ctx, run)
		default:
			next, ok := stage.successor()
			if !ok {
				return e.failRun(run, stage, fmt.Errorf("no successor for stage %s", stage))
			}
			stage = next
		}
	}
}

// execStage runs one stage function, records its output fragment and audit
// entries, and observes its duration.
func (e *Engine) execStage(ctx context.Context, run *WorkflowRun, stage Stage) error {
	fn, ok := e.stageFunc(stage)
	if !ok {
		return fmt.Errorf("stage %s has no stage function", stage)
	}
	start := time.Now()
	result, err := fn(ctx, run)
	observeStageDuration(stage, time.Since(start))
	if err != nil {
		return err
	}
	if err := run.applyStageOutput(stage, result.Output); err != nil {
		return err
	}
	for _, entry := range result.Entries {
		e.recordAudit(ctx, run, entry)
	}
	e.logger.Debug("stage executed",
		"workflow_id", run.WorkflowID, "stage", stage)
	return nil
}

// failRun marks the run FAILED. No checkpoint is written for a failure: the
// caller resubmits the document or escalates out of band.
func (e *Engine) failRun(run *WorkflowRun, stage Stage, err error) (*RunResult, error) {
	run.Status = StatusFailed
	run.touch()
	recordRunOutcome(StatusFailed)
	e.logger.Error("run failed",
		"workflow_id", run.WorkflowID, "stage", stage, "error", err)
	var pe *PipelineError
	if errors.As(err, &pe) {
		return nil, err
	}
	return nil, NewStageError(stage, err)
}

// suspend writes the CHECKPOINT_HITL artifact, snapshots the run and
// persists the checkpoint with its review-queue projection. After this
// returns the live aggregate is disposable: resumption works only from the
// stored blob.
func (e *Engine) suspend(ctx context.Context, run *WorkflowRun) (*RunResult, error) {
	match := run.Outputs.MatchTwoWay
	var reason string
	if match.NoReferenceData {
		reason = fmt.Sprintf("no purchase orders found for invoice %s; two-way match could not be performed",
			run.Invoice.InvoiceID)
	} else {
		reason = fmt.Sprintf("match score %.2f below threshold %.2f",
			match.MatchScore, match.Threshold)
	}
	checkpointID := NewCheckpointID()
	reviewURL := strings.TrimRight(e.config.ReviewBaseURL, "/") + "/" + checkpointID

	output := &CheckpointHITLOutput{
		CheckpointID:  checkpointID,
		ReviewURL:     reviewURL,
		ReasonForHold: reason,
	}
	if err := run.applyStageOutput(StageCheckpointHITL, output); err != nil {
		return e.failRun(run, StageCheckpointHITL, err)
	}
	e.recordAudit(ctx, run, AuditEntry{
		Stage:  StageCheckpointHITL,
		Action: "checkpoint_created",
		Details: map[string]any{
			"checkpoint_id":   checkpointID,
			"reason_for_hold": reason,
			"match_score":     match.MatchScore,
		},
	})
	run.CurrentStage = StageCheckpointHITL
	run.Status = StatusPausedForReview
	run.touch()

	blob, err := EncodeRunSnapshot(run)
	if err != nil {
		run.Status = StatusFailed
		recordRunOutcome(StatusFailed)
		return nil, NewPersistenceError("encode checkpoint", err)
	}
	record := &CheckpointRecord{
		CheckpointID:  checkpointID,
		WorkflowID:    run.WorkflowID,
		InvoiceID:     run.Invoice.InvoiceID,
		VendorName:    run.Invoice.VendorName,
		Amount:        run.Invoice.Amount,
		Currency:      run.Invoice.Currency,
		StateBlob:     blob,
		CreatedAt:     time.Now().UTC(),
		ReasonForHold: reason,
		ReviewURL:     reviewURL,
		ReviewStatus:  ReviewPending,
	}
	if err := e.store.SaveCheckpoint(ctx, record); err != nil {
		run.Status = StatusFailed
		recordRunOutcome(StatusFailed)
		e.logger.Error("checkpoint save failed",
			"workflow_id", run.WorkflowID, "checkpoint_id", checkpointID, "error", err)
		return nil, NewPersistenceError("save checkpoint", err)
	}
	recordCheckpointCreated()
	recordRunOutcome(StatusPausedForReview)
	e.logger.Info("run paused for review",
		"workflow_id", run.WorkflowID,
		"checkpoint_id", checkpointID,
		"reason", reason)

	result := e.buildResult(run)
	result.CheckpointID = checkpointID
	result.ReviewURL = reviewURL
	result.ReasonForHold = reason
	return result, nil
}

// SubmitDecision applies a reviewer decision and resumes the paused run. The
// store's compare-and-set transition guarantees the decision is applied at
// most once: a second submission for the same checkpoint returns
// ErrAlreadyDecided regardless of interleaving.
func (e *Engine) SubmitDecision(ctx context.Context, sub DecisionSubmission) (*DecisionReceipt, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	record, err := e.store.DecideCheckpoint(ctx, sub)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) || errors.Is(err, ErrAlreadyDecided) {
			return nil, err
		}
		return nil, NewPersistenceError("decide checkpoint", err)
	}
	run, err := DecodeRunSnapshot(record.StateBlob)
	if err != nil {
		return nil, NewPersistenceError("decode checkpoint", err)
	}

	nextStage := StageReconcile
	if sub.Decision == DecisionReject {
		nextStage = StageComplete
	}
	decision := &HITLDecisionOutput{
		Decision:    sub.Decision,
		ReviewerID:  sub.ReviewerID,
		Notes:       sub.Notes,
		ResumeToken: uuid.NewString(),
		NextStage:   nextStage,
	}
	if err := run.applyStageOutput(StageHITLDecision, decision); err != nil {
		return nil, NewPersistenceError("apply decision", err)
	}
	e.recordAudit(ctx, run, AuditEntry{
		Stage:  StageHITLDecision,
		Action: "decision_applied",
		Details: map[string]any{
			"checkpoint_id": sub.CheckpointID,
			"decision":      string(sub.Decision),
			"reviewer_id":   sub.ReviewerID,
			"next_stage":    string(nextStage),
		},
	})
	run.CurrentStage = StageHITLDecision
	run.Status = StatusRunning
	run.touch()
	recordDecision(sub.Decision)
	e.logger.Info("resuming run",
		"workflow_id", run.WorkflowID,
		"checkpoint_id", sub.CheckpointID,
		"decision", sub.Decision,
		"next_stage", nextStage)

	result, err := e.runFrom(ctx, run, nextStage)
	if err != nil {
		return nil, err
	}
	return &DecisionReceipt{
		ResumeToken: decision.ResumeToken,
		NextStage:   nextStage,
		Result:      result,
	}, nil
}

// ListPendingReviews returns the review queue, oldest first.
func (e *Engine) ListPendingReviews(ctx context.Context) ([]*ReviewItem, error) {
	items, err := e.store.ListPendingReviews(ctx)
	if err != nil {
		return nil, NewPersistenceError("list pending reviews", err)
	}
	return items, nil
}

// GetCheckpoint returns the full checkpoint record for review triage.
// Reading never changes the record's review status.
func (e *Engine) GetCheckpoint(ctx context.Context, checkpointID string) (*CheckpointRecord, error) {
	record, err := e.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return nil, err
		}
		return nil, NewPersistenceError("get checkpoint", err)
	}
	return record, nil
}

// recordAudit appends an entry to the run's canonical log and mirrors it to
// the audit sink. A sink failure is logged and otherwise ignored.
func (e *Engine) recordAudit(ctx context.Context, run *WorkflowRun, entry AuditEntry) {
	recorded := run.AppendAudit(entry)
	if err := e.audit.RecordEntry(ctx, run.WorkflowID, &recorded); err != nil {
		e.logger.Warn("audit sink write failed",
			"workflow_id", run.WorkflowID, "action", recorded.Action, "error", err)
	}
}

func (e *Engine) buildResult(run *WorkflowRun) *RunResult {
	result := &RunResult{
		WorkflowID:     run.WorkflowID,
		Status:         run.Status,
		ToolSelections: map[string]string{},
		Run:            run,
	}
	for category, provider := range run.ToolSelections {
		result.ToolSelections[category] = provider
	}
	for _, entry := range run.AuditLog {
		result.AuditLog = append(result.AuditLog, entry.Copy())
	}
	if run.Outputs.Complete != nil {
		final := run.Outputs.Complete.FinalPayload
		result.Final = &final
	}
	return result
}
