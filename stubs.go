package invoiceflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Deterministic stub collaborators for local runs and tests. Production
// deployments supply real implementations of the capability interfaces.

// StubExtractor renders the invoice fields as text, the way a perfect OCR
// pass over a clean scan would.
type StubExtractor struct{}

func (StubExtractor) ExtractText(ctx context.Context, invoice *InvoicePayload) (*ExtractedDocument, error) {
	text := fmt.Sprintf("Invoice from %s\nInvoice ID: %s\nDate: %s\nDue: %s\nAmount: %.2f %s\n",
		invoice.VendorName, invoice.InvoiceID, invoice.InvoiceDate, invoice.DueDate,
		invoice.Amount, invoice.Currency)
	return &ExtractedDocument{Text: text}, nil
}

// StubEnricher normalizes whitespace in the vendor name and reports a fixed
// confidence.
type StubEnricher struct {
	Source string
}

func (e StubEnricher) Enrich(ctx context.Context, vendorName, taxID string) (*VendorProfile, error) {
	source := e.Source
	if source == "" {
		source = "vendor_db"
	}
	return &VendorProfile{
		NormalizedName: strings.Join(strings.Fields(vendorName), " "),
		TaxID:          taxID,
		Enrichment: &EnrichmentMeta{
			Source:     source,
			Confidence: 0.95,
			EnrichedAt: time.Now().UTC(),
		},
	}, nil
}

// StubERPGateway returns one purchase order and goods receipt mirroring the
// invoice, and acknowledges postings with generated identifiers.
type StubERPGateway struct {
	// NoReferences simulates an ERP with no matching purchase orders.
	NoReferences bool
	FetchErr     error
	PostErr      error
}

func (g StubERPGateway) FetchReferences(ctx context.Context, invoice *InvoicePayload) (*ReferenceSet, error) {
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	if g.NoReferences {
		return &ReferenceSet{}, nil
	}
	var receivedQty float64
	for _, item := range invoice.LineItems {
		receivedQty += item.Quantity
	}
	poID := "PO-" + invoice.InvoiceID
	return &ReferenceSet{
		PurchaseOrders: []PurchaseOrder{{
			POID:     poID,
			VendorID: invoice.VendorTaxID,
			Amount:   invoice.Amount,
			Items:    append([]LineItem(nil), invoice.LineItems...),
		}},
		GoodsReceipts: []GoodsReceipt{{
			GRNID:        "GRN-" + invoice.InvoiceID,
			POID:         poID,
			ReceivedQty:  receivedQty,
			ReceivedDate: time.Now().UTC(),
		}},
	}, nil
}

func (g StubERPGateway) PostEntries(ctx context.Context, req *PostingRequest) (*PostingReceipt, error) {
	if g.PostErr != nil {
		return nil, g.PostErr
	}
	return &PostingReceipt{
		TxnID:              fmt.Sprintf("TXN-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:6]),
		ScheduledPaymentID: "PAY-" + uuid.NewString()[:8],
	}, nil
}

// StubScorer returns a fixed match score.
type StubScorer struct {
	FixedScore float64
	Err        error
}

func (s StubScorer) Score(ctx context.Context, invoice *InvoicePayload, refs *ReferenceSet) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.FixedScore, nil
}

// StubEntryGenerator produces the canonical balanced pair: a credit to
// accounts payable and a matching expense debit.
type StubEntryGenerator struct {
	// Entries overrides the generated entries when non-nil.
	Entries []AccountingEntry
}

func (g StubEntryGenerator) GenerateEntries(ctx context.Context, req *EntryRequest) ([]AccountingEntry, error) {
	if g.Entries != nil {
		return append([]AccountingEntry(nil), g.Entries...), nil
	}
	return []AccountingEntry{
		{
			AccountCode: "2100",
			Credit:      req.Amount,
			Description: fmt.Sprintf("AP for %s", req.VendorName),
		},
		{
			AccountCode: "5000",
			Debit:       req.Amount,
			Description: fmt.Sprintf("Expense from %s", req.VendorName),
		},
	}, nil
}

// StubNotifier records sends in memory.
type StubNotifier struct {
	Err  error
	Sent []*Notification
}

func (n *StubNotifier) Send(ctx context.Context, notification *Notification) error {
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, notification)
	return nil
}
