package invoiceflow

import "time"

// FinalPayload is the terminal summary assembled at COMPLETE. Rejected runs
// carry no posting identifiers and no accounting entries.
type FinalPayload struct {
	InvoiceID         string            `json:"invoice_id"`
	VendorName        string            `json:"vendor_name"`
	Amount            float64           `json:"amount"`
	Currency          string            `json:"currency"`
	Status            RunStatus         `json:"status"`
	ApprovalStatus    ApprovalStatus    `json:"approval_status,omitempty"`
	ERPTxnID          string            `json:"erp_txn_id,omitempty"`
	PostedAt          *time.Time        `json:"posted_at,omitempty"`
	AccountingEntries []AccountingEntry `json:"accounting_entries,omitempty"`
}

// RunResult is what a document submission or decision resumption returns.
// Completed and handed-off runs carry a final payload; paused runs carry the
// checkpoint reference instead.
type RunResult struct {
	WorkflowID     string            `json:"workflow_id"`
	Status         RunStatus         `json:"status"`
	Final          *FinalPayload     `json:"final_payload,omitempty"`
	AuditLog       []AuditEntry      `json:"audit_log,omitempty"`
	ToolSelections map[string]string `json:"tool_selections,omitempty"`

	// Suspension fields, set only for PAUSED_FOR_REVIEW results.
	CheckpointID  string `json:"checkpoint_id,omitempty"`
	ReviewURL     string `json:"review_url,omitempty"`
	ReasonForHold string `json:"reason_for_hold,omitempty"`

	// Run exposes the full aggregate for inspection.
	Run *WorkflowRun `json:"-"`
}

// DecisionReceipt acknowledges an applied review decision.
type DecisionReceipt struct {
	ResumeToken string     `json:"resume_token"`
	NextStage   Stage      `json:"next_stage"`
	Result      *RunResult `json:"result,omitempty"`
}
