package invoiceflow

import "context"

// External collaborator interfaces. The engine specifies these only at the
// boundary: OCR, enrichment, ERP connectivity, scoring, entry generation and
// notification delivery are supplied by the caller.

// ExtractedDocument is the raw result of text extraction.
type ExtractedDocument struct {
	Text         string
	POReferences []string
}

// TextExtractor extracts structured content from a raw document.
type TextExtractor interface {
	ExtractText(ctx context.Context, invoice *InvoicePayload) (*ExtractedDocument, error)
}

// VendorEnricher normalizes and enriches a counterparty identity.
type VendorEnricher interface {
	Enrich(ctx context.Context, vendorName, taxID string) (*VendorProfile, error)
}

// ReferenceSet holds the matching reference records for an invoice.
type ReferenceSet struct {
	PurchaseOrders []PurchaseOrder
	GoodsReceipts  []GoodsReceipt
}

// PostingRequest asks the ERP to post balanced entries for an invoice.
type PostingRequest struct {
	WorkflowID string
	InvoiceID  string
	VendorName string
	Amount     float64
	Currency   string
	Entries    []AccountingEntry
}

// PostingReceipt is the ERP's acknowledgment of a posting.
type PostingReceipt struct {
	TxnID              string
	ScheduledPaymentID string
}

// ERPGateway fetches reference records and posts accounting entries.
type ERPGateway interface {
	FetchReferences(ctx context.Context, invoice *InvoicePayload) (*ReferenceSet, error)
	PostEntries(ctx context.Context, req *PostingRequest) (*PostingReceipt, error)
}

// MatchScorer computes the two-way match score between an invoice and its
// reference records. Scores are in [0, 1].
type MatchScorer interface {
	Score(ctx context.Context, invoice *InvoicePayload, refs *ReferenceSet) (float64, error)
}

// EntryRequest asks the generation collaborator for accounting entries.
type EntryRequest struct {
	InvoiceID  string
	VendorName string
	Amount     float64
	Currency   string
	LineItems  []LineItem
}

// EntryGenerator produces accounting entries for an invoice.
type EntryGenerator interface {
	GenerateEntries(ctx context.Context, req *EntryRequest) ([]AccountingEntry, error)
}

// Notification describes outbound messages for a completed posting.
type Notification struct {
	WorkflowID string
	InvoiceID  string
	VendorName string
	ERPTxnID   string
	Recipients []string
}

// Notifier dispatches notifications. Delivery failure is non-fatal to the
// pipeline: the engine records it and completes the run anyway.
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
}
