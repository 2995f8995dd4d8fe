package invoiceflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// StageResult carries a stage function's output fragment plus the audit
// entries it produced. The engine records both; stage functions never touch
// another stage's output and never advance the current stage themselves.
type StageResult struct {
	Output  any
	Entries []AuditEntry
}

// StageFunc is the contract shared by all stage transformations. Each runs
// at most once per run: the engine never re-invokes a stage that already has
// a recorded output, including on resume.
type StageFunc func(ctx context.Context, run *WorkflowRun) (*StageResult, error)

func (e *Engine) stageFunc(stage Stage) (StageFunc, bool) {
	switch stage {
	case StageIntake:
		return e.stageIntake, true
	case StageUnderstand:
		return e.stageUnderstand, true
	case StagePrepare:
		return e.stagePrepare, true
	case StageRetrieve:
		return e.stageRetrieve, true
	case StageMatchTwoWay:
		return e.stageMatchTwoWay, true
	case StageReconcile:
		return e.stageReconcile, true
	case StageApprove:
		return e.stageApprove, true
	case StagePosting:
		return e.stagePosting, true
	case StageNotify:
		return e.stageNotify, true
	case StageComplete:
		return e.stageComplete, true
	}
	// CHECKPOINT_HITL and HITL_DECISION are driven by the engine's suspend
	// and resume paths, not by the deterministic stage loop.
	return nil, false
}

// stageIntake validates the document and assigns the immutable intake record.
func (e *Engine) stageIntake(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	storageTool, err := run.SelectTool(e.tools, ToolCategoryDB)
	if err != nil {
		return nil, err
	}
	output := &IntakeOutput{
		RawID:      uuid.NewString(),
		IngestedAt: time.Now().UTC(),
		Validated:  true,
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StageIntake,
			Action: "invoice_validated",
			Details: map[string]any{
				"raw_id":       output.RawID,
				"invoice_id":   run.Invoice.InvoiceID,
				"storage_tool": storageTool,
			},
		}},
	}, nil
}

// stageUnderstand extracts structured content from the raw input.
func (e *Engine) stageUnderstand(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	ocrTool, err := run.SelectTool(e.tools, ToolCategoryOCR)
	if err != nil {
		return nil, err
	}
	extracted, err := e.extractor.ExtractText(ctx, run.Invoice)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	output := &UnderstandOutput{
		ParsedInvoice: ParsedInvoice{
			InvoiceText: extracted.Text,
			LineItems:   append([]LineItem(nil), run.Invoice.LineItems...),
			DetectedPOs: extracted.POReferences,
			Currency:    run.Invoice.Currency,
			ParsedDates: ParsedDates{
				InvoiceDate: run.Invoice.InvoiceDate,
				DueDate:     run.Invoice.DueDate,
			},
			ExtractorRef: ocrTool,
		},
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StageUnderstand,
			Action: "invoice_parsed",
			Details: map[string]any{
				"line_items_count": len(output.ParsedInvoice.LineItems),
				"ocr_tool":         ocrTool,
			},
		}},
	}, nil
}

// stagePrepare normalizes the counterparty identity and computes risk flags.
func (e *Engine) stagePrepare(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	enrichmentTool, err := run.SelectTool(e.tools, ToolCategoryEnrichment)
	if err != nil {
		return nil, err
	}
	profile, err := e.enricher.Enrich(ctx, run.Invoice.VendorName, run.Invoice.VendorTaxID)
	if err != nil {
		return nil, fmt.Errorf("enrich vendor: %w", err)
	}
	flags := RiskFlags{MissingInfo: []string{}, RiskScore: 0.1}
	if run.Invoice.VendorTaxID == "" {
		flags.MissingInfo = append(flags.MissingInfo, "vendor_tax_id")
		flags.RiskScore = 0.4
	}
	output := &PrepareOutput{
		VendorProfile: *profile,
		NormalizedInvoice: NormalizedInvoice{
			Amount:    run.Invoice.Amount,
			Currency:  run.Invoice.Currency,
			LineItems: append([]LineItem(nil), run.Invoice.LineItems...),
		},
		Flags: flags,
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StagePrepare,
			Action: "vendor_enriched",
			Details: map[string]any{
				"normalized_name": profile.NormalizedName,
				"enrichment_tool": enrichmentTool,
				"risk_score":      flags.RiskScore,
			},
		}},
	}, nil
}

// stageRetrieve fetches matching reference records from the ERP. Finding
// zero purchase orders is not a failure here; MATCH_TWO_WAY routes that case
// to human review.
func (e *Engine) stageRetrieve(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	erpTool, err := run.SelectTool(e.tools, ToolCategoryERP)
	if err != nil {
		return nil, err
	}
	refs, err := e.erp.FetchReferences(ctx, run.Invoice)
	if err != nil {
		return nil, fmt.Errorf("fetch references: %w", err)
	}
	output := &RetrieveOutput{
		PurchaseOrders: refs.PurchaseOrders,
		GoodsReceipts:  refs.GoodsReceipts,
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StageRetrieve,
			Action: "references_fetched",
			Details: map[string]any{
				"pos_count":  len(output.PurchaseOrders),
				"grns_count": len(output.GoodsReceipts),
				"erp_tool":   erpTool,
			},
		}},
	}, nil
}

// stageMatchTwoWay computes the match score and the branch evidence. Missing
// reference data defaults the score to zero so the run is held for review
// rather than hard-failed.
func (e *Engine) stageMatchTwoWay(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	retrieve := run.Outputs.Retrieve
	if retrieve == nil {
		return nil, fmt.Errorf("retrieve output missing")
	}

	var score float64
	noReference := len(retrieve.PurchaseOrders) == 0
	if noReference {
		score = 0
	} else {
		refs := &ReferenceSet{
			PurchaseOrders: retrieve.PurchaseOrders,
			GoodsReceipts:  retrieve.GoodsReceipts,
		}
		var err error
		score, err = e.scorer.Score(ctx, run.Invoice, refs)
		if err != nil {
			return nil, fmt.Errorf("compute match score: %w", err)
		}
		score = math.Max(0, math.Min(1, score))
	}

	result := MatchResultFailed
	if score >= e.config.MatchThreshold {
		result = MatchResultMatched
	}

	evidence := MatchEvidence{
		POMatch:     !noReference,
		VendorMatch: run.Outputs.Prepare != nil && run.Outputs.Prepare.VendorProfile.NormalizedName != "",
		Score:       score,
	}
	if !noReference {
		poAmount := retrieve.PurchaseOrders[0].Amount
		tolerance := run.Invoice.Amount * e.config.TwoWayTolerancePct / 100
		evidence.AmountMatch = math.Abs(run.Invoice.Amount-poAmount) <= tolerance
	}

	output := &MatchTwoWayOutput{
		MatchScore:      score,
		MatchResult:     result,
		Threshold:       e.config.MatchThreshold,
		TolerancePct:    e.config.TwoWayTolerancePct,
		Evidence:        evidence,
		NoReferenceData: noReference,
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StageMatchTwoWay,
			Action: "match_computed",
			Details: map[string]any{
				"match_score":       score,
				"match_result":      string(result),
				"threshold":         e.config.MatchThreshold,
				"no_reference_data": noReference,
			},
		}},
	}, nil
}

// stageReconcile generates balanced accounting entries. An unbalanced set is
// a stage failure, never silently tolerated.
func (e *Engine) stageReconcile(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	prepare := run.Outputs.Prepare
	if prepare == nil {
		return nil, fmt.Errorf("prepare output missing")
	}
	entries, err := e.entries.GenerateEntries(ctx, &EntryRequest{
		InvoiceID:  run.Invoice.InvoiceID,
		VendorName: prepare.VendorProfile.NormalizedName,
		Amount:     run.Invoice.Amount,
		Currency:   run.Invoice.Currency,
		LineItems:  run.Invoice.LineItems,
	})
	if err != nil {
		return nil, fmt.Errorf("generate accounting entries: %w", err)
	}
	if len(entries) == 0 {
		// Fall back to the canonical AP credit / expense debit pair.
		entries = []AccountingEntry{
			{
				AccountCode: "2100",
				Credit:      run.Invoice.Amount,
				Description: fmt.Sprintf("AP for %s", prepare.VendorProfile.NormalizedName),
			},
			{
				AccountCode: "5000",
				Debit:       run.Invoice.Amount,
				Description: fmt.Sprintf("Expense from %s", prepare.VendorProfile.NormalizedName),
			},
		}
	}

	var totalDebits, totalCredits float64
	for _, entry := range entries {
		totalDebits += entry.Debit
		totalCredits += entry.Credit
	}
	balanced := math.Abs(totalDebits-totalCredits) <= e.config.BalanceEpsilon
	if !balanced {
		return nil, fmt.Errorf("accounting entries unbalanced: debits %.2f, credits %.2f", totalDebits, totalCredits)
	}

	output := &ReconcileOutput{
		Entries: entries,
		Report: ReconciliationReport{
			TotalDebits:  totalDebits,
			TotalCredits: totalCredits,
			Balanced:     true,
			EntryCount:   len(entries),
		},
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StageReconcile,
			Action: "entries_created",
			Details: map[string]any{
				"entries_count": len(entries),
				"total_debits":  totalDebits,
				"total_credits": totalCredits,
			},
		}},
	}, nil
}

// stageApprove applies the threshold policy. Pure function of the amount and
// the configured auto-approve limit; it never fails.
func (e *Engine) stageApprove(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	output := &ApproveOutput{}
	if run.Invoice.Amount < e.config.AutoApproveThreshold {
		output.ApprovalStatus = ApprovalAutoApproved
		output.ApproverID = "system"
	} else {
		output.ApprovalStatus = ApprovalEscalated
		output.ApproverID = e.config.EscalationApprover
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StageApprove,
			Action: "approval_determined",
			Details: map[string]any{
				"approval_status": string(output.ApprovalStatus),
				"amount":          run.Invoice.Amount,
				"threshold":       e.config.AutoApproveThreshold,
			},
		}},
	}, nil
}

// stagePosting posts entries to the ERP and records the transaction and
// payment identifiers.
func (e *Engine) stagePosting(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	erpTool, err := run.SelectTool(e.tools, ToolCategoryERP)
	if err != nil {
		return nil, err
	}
	reconcile := run.Outputs.Reconcile
	if reconcile == nil {
		return nil, fmt.Errorf("reconcile output missing")
	}
	vendorName := run.Invoice.VendorName
	if run.Outputs.Prepare != nil {
		vendorName = run.Outputs.Prepare.VendorProfile.NormalizedName
	}
	receipt, err := e.erp.PostEntries(ctx, &PostingRequest{
		WorkflowID: run.WorkflowID,
		InvoiceID:  run.Invoice.InvoiceID,
		VendorName: vendorName,
		Amount:     run.Invoice.Amount,
		Currency:   run.Invoice.Currency,
		Entries:    reconcile.Entries,
	})
	if err != nil {
		return nil, fmt.Errorf("post entries: %w", err)
	}
	output := &PostingOutput{
		Posted:             true,
		ERPTxnID:           receipt.TxnID,
		ScheduledPaymentID: receipt.ScheduledPaymentID,
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:  StagePosting,
			Action: "posted_to_erp",
			Details: map[string]any{
				"erp_txn_id": receipt.TxnID,
				"payment_id": receipt.ScheduledPaymentID,
				"erp_tool":   erpTool,
			},
		}},
	}, nil
}

// stageNotify dispatches notifications. Delivery failure is logged and
// recorded but never fails the pipeline.
func (e *Engine) stageNotify(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	emailTool, err := run.SelectTool(e.tools, ToolCategoryEmail)
	if err != nil {
		return nil, err
	}
	vendorName := run.Invoice.VendorName
	if run.Outputs.Prepare != nil {
		vendorName = run.Outputs.Prepare.VendorProfile.NormalizedName
	}
	var txnID string
	if run.Outputs.Posting != nil {
		txnID = run.Outputs.Posting.ERPTxnID
	}
	recipients := []string{vendorName, "finance-team"}
	output := &NotifyOutput{NotifiedParties: recipients}

	sendErr := e.notifier.Send(ctx, &Notification{
		WorkflowID: run.WorkflowID,
		InvoiceID:  run.Invoice.InvoiceID,
		VendorName: vendorName,
		ERPTxnID:   txnID,
		Recipients: recipients,
	})
	action := "notifications_sent"
	details := map[string]any{
		"parties":    recipients,
		"email_tool": emailTool,
	}
	if sendErr != nil {
		output.Delivered = false
		output.NotifiedParties = nil
		output.FailureReason = sendErr.Error()
		action = "notification_failed"
		details["error"] = sendErr.Error()
		e.logger.Warn("notification delivery failed",
			"workflow_id", run.WorkflowID, "error", sendErr)
	} else {
		output.Delivered = true
	}
	return &StageResult{
		Output: output,
		Entries: []AuditEntry{{
			Stage:   StageNotify,
			Action:  action,
			Details: details,
		}},
	}, nil
}

// stageComplete assembles the final payload from all prior stage outputs.
// Given valid prior state it never fails.
func (e *Engine) stageComplete(ctx context.Context, run *WorkflowRun) (*StageResult, error) {
	dbTool, err := run.SelectTool(e.tools, ToolCategoryDB)
	if err != nil {
		return nil, err
	}
	vendorName := run.Invoice.VendorName
	if run.Outputs.Prepare != nil {
		vendorName = run.Outputs.Prepare.VendorProfile.NormalizedName
	}
	status := StatusCompleted
	if d := run.Outputs.HITLDecision; d != nil && d.Decision == DecisionReject {
		status = StatusManualHandoff
	}
	payload := FinalPayload{
		InvoiceID:  run.Invoice.InvoiceID,
		VendorName: vendorName,
		Amount:     run.Invoice.Amount,
		Currency:   run.Invoice.Currency,
		Status:     status,
	}
	if run.Outputs.Approve != nil {
		payload.ApprovalStatus = run.Outputs.Approve.ApprovalStatus
	}
	if run.Outputs.Posting != nil {
		payload.ERPTxnID = run.Outputs.Posting.ERPTxnID
		now := time.Now().UTC()
		payload.PostedAt = &now
	}
	if run.Outputs.Reconcile != nil && status == StatusCompleted {
		payload.AccountingEntries = append([]AccountingEntry(nil), run.Outputs.Reconcile.Entries...)
	}
	return &StageResult{
		Output: &CompleteOutput{FinalPayload: payload},
		Entries: []AuditEntry{{
			Stage:  StageComplete,
			Action: "workflow_completed",
			Details: map[string]any{
				"invoice_id": run.Invoice.InvoiceID,
				"status":     string(status),
				"db_tool":    dbTool,
			},
		}},
	}, nil
}
