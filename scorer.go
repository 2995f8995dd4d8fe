package invoiceflow

import (
	"context"
	"math"
)

// TwoWayScorer computes a weighted two-way match score between an invoice
// and its best purchase order. Locating a purchase order contributes 0.3,
// an amount within tolerance 0.5, and a vendor identity match 0.2.
type TwoWayScorer struct {
	TolerancePct float64
}

func (s TwoWayScorer) Score(ctx context.Context, invoice *InvoicePayload, refs *ReferenceSet) (float64, error) {
	if refs == nil || len(refs.PurchaseOrders) == 0 {
		return 0, nil
	}
	po := refs.PurchaseOrders[0]
	score := 0.3
	tolerance := invoice.Amount * s.TolerancePct / 100
	if math.Abs(invoice.Amount-po.Amount) <= tolerance {
		score += 0.5
	}
	if po.VendorID == "" || po.VendorID == invoice.VendorTaxID {
		score += 0.2
	}
	return score, nil
}
