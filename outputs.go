package invoiceflow

import "time"

// IntakeOutput records the validated intake of a document.
type IntakeOutput struct {
	RawID      string    `json:"raw_id"`
	IngestedAt time.Time `json:"ingested_at"`
	Validated  bool      `json:"validated"`
}

// ParsedDates holds the dates recovered from the document text.
type ParsedDates struct {
	InvoiceDate string `json:"invoice_date"`
	DueDate     string `json:"due_date"`
}

// ParsedInvoice is the structured content extracted at UNDERSTAND.
type ParsedInvoice struct {
	InvoiceText  string      `json:"invoice_text"`
	LineItems    []LineItem  `json:"parsed_line_items"`
	DetectedPOs  []string    `json:"detected_pos"`
	Currency     string      `json:"currency"`
	ParsedDates  ParsedDates `json:"parsed_dates"`
	ExtractorRef string      `json:"extractor_ref,omitempty"`
}

// UnderstandOutput wraps the extraction result.
type UnderstandOutput struct {
	ParsedInvoice ParsedInvoice `json:"parsed_invoice"`
}

// EnrichmentMeta describes where a vendor profile came from.
type EnrichmentMeta struct {
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	EnrichedAt time.Time `json:"enriched_at"`
}

// VendorProfile is the normalized counterparty identity built at PREPARE.
type VendorProfile struct {
	NormalizedName string          `json:"normalized_name"`
	TaxID          string          `json:"tax_id"`
	Enrichment     *EnrichmentMeta `json:"enrichment_meta,omitempty"`
}

// NormalizedInvoice is the invoice restated in normalized form.
type NormalizedInvoice struct {
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	LineItems []LineItem `json:"line_items"`
}

// RiskFlags carries risk signals computed during preparation.
type RiskFlags struct {
	MissingInfo []string `json:"missing_info"`
	RiskScore   float64  `json:"risk_score"`
}

// PrepareOutput is the PREPARE stage fragment.
type PrepareOutput struct {
	VendorProfile     VendorProfile     `json:"vendor_profile"`
	NormalizedInvoice NormalizedInvoice `json:"normalized_invoice"`
	Flags             RiskFlags         `json:"flags"`
}

// PurchaseOrder is a matching reference record fetched from the ERP.
type PurchaseOrder struct {
	POID     string     `json:"po_id"`
	VendorID string     `json:"vendor_id"`
	Amount   float64    `json:"amount"`
	Items    []LineItem `json:"items"`
}

// GoodsReceipt is a goods-received note associated with a purchase order.
type GoodsReceipt struct {
	GRNID        string    `json:"grn_id"`
	POID         string    `json:"po_id"`
	ReceivedQty  float64   `json:"received_qty"`
	ReceivedDate time.Time `json:"received_date"`
}

// RetrieveOutput is the RETRIEVE stage fragment. Zero purchase orders is a
// legal outcome that routes the run to human review rather than failing.
type RetrieveOutput struct {
	PurchaseOrders []PurchaseOrder `json:"matched_pos"`
	GoodsReceipts  []GoodsReceipt  `json:"matched_grns"`
}

// MatchResult is the binary outcome of the two-way comparison.
type MatchResult string

const (
	MatchResultMatched MatchResult = "MATCHED"
	MatchResultFailed  MatchResult = "FAILED"
)

// MatchEvidence explains how the match score was reached.
type MatchEvidence struct {
	AmountMatch bool    `json:"amount_match"`
	POMatch     bool    `json:"po_match"`
	VendorMatch bool    `json:"vendor_match"`
	Score       float64 `json:"score"`
}

// MatchTwoWayOutput is the MATCH_TWO_WAY stage fragment.
type MatchTwoWayOutput struct {
	MatchScore   float64       `json:"match_score"`
	MatchResult  MatchResult   `json:"match_result"`
	Threshold    float64       `json:"threshold"`
	TolerancePct float64       `json:"tolerance_pct"`
	Evidence     MatchEvidence `json:"match_evidence"`
	// NoReferenceData marks a score defaulted to zero because RETRIEVE
	// found no purchase orders, as opposed to a genuine mismatch.
	NoReferenceData bool `json:"no_reference_data,omitempty"`
}

// CheckpointHITLOutput records the suspension artifact written when the
// match fails its threshold.
type CheckpointHITLOutput struct {
	CheckpointID  string `json:"checkpoint_id"`
	ReviewURL     string `json:"review_url"`
	ReasonForHold string `json:"reason_for_hold"`
}

// HITLDecisionOutput records the externally supplied human decision.
type HITLDecisionOutput struct {
	Decision    Decision `json:"decision"`
	ReviewerID  string   `json:"reviewer_id"`
	Notes       string   `json:"notes,omitempty"`
	ResumeToken string   `json:"resume_token"`
	NextStage   Stage    `json:"next_stage"`
}

// AccountingEntry is one side of a balanced ledger posting.
type AccountingEntry struct {
	AccountCode string  `json:"account_code"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description"`
}

// ReconciliationReport summarizes the generated entries.
type ReconciliationReport struct {
	TotalDebits  float64 `json:"total_debits"`
	TotalCredits float64 `json:"total_credits"`
	Balanced     bool    `json:"balanced"`
	EntryCount   int     `json:"entries_count"`
}

// ReconcileOutput is the RECONCILE stage fragment.
type ReconcileOutput struct {
	Entries []AccountingEntry    `json:"accounting_entries"`
	Report  ReconciliationReport `json:"reconciliation_report"`
}

// ApprovalStatus is the definite outcome of the APPROVE policy.
type ApprovalStatus string

const (
	ApprovalAutoApproved ApprovalStatus = "AUTO_APPROVED"
	ApprovalEscalated    ApprovalStatus = "ESCALATED"
)

// ApproveOutput is the APPROVE stage fragment. The policy is a pure function
// of the amount and the configured auto-approve threshold.
type ApproveOutput struct {
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ApproverID     string         `json:"approver_id"`
}

// PostingOutput is the POSTING stage fragment.
type PostingOutput struct {
	Posted             bool   `json:"posted"`
	ERPTxnID           string `json:"erp_txn_id"`
	ScheduledPaymentID string `json:"scheduled_payment_id"`
}

// NotifyOutput is the NOTIFY stage fragment. Delivery failure is recorded
// here rather than failing the run.
type NotifyOutput struct {
	Delivered       bool     `json:"delivered"`
	NotifiedParties []string `json:"notified_parties"`
	FailureReason   string   `json:"failure_reason,omitempty"`
}

// CompleteOutput is the terminal stage fragment assembled from all prior
// stage outputs plus the full audit log.
type CompleteOutput struct {
	FinalPayload FinalPayload `json:"final_payload"`
}
