package invoiceflow

import (
	"fmt"
	"math"
	"strings"
)

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string  `json:"desc"`
	Quantity    float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// InvoicePayload is the immutable input snapshot for a workflow run. It is
// validated once before a run exists and never mutated afterwards.
type InvoicePayload struct {
	InvoiceID   string     `json:"invoice_id"`
	VendorName  string     `json:"vendor_name"`
	VendorTaxID string     `json:"vendor_tax_id"`
	InvoiceDate string     `json:"invoice_date"`
	DueDate     string     `json:"due_date"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	LineItems   []LineItem `json:"line_items"`
	Attachments []string   `json:"attachments,omitempty"`
}

// Validate checks the payload before a run is created. A failure here rejects
// the document outright: no workflow state is created or persisted.
func (p *InvoicePayload) Validate() error {
	if p == nil {
		return NewValidationError("invoice payload is required")
	}
	if strings.TrimSpace(p.InvoiceID) == "" {
		return NewValidationError("invoice_id is required")
	}
	if strings.TrimSpace(p.VendorName) == "" {
		return NewValidationError("vendor_name is required")
	}
	if p.Amount <= 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return NewValidationError(fmt.Sprintf("amount must be a positive number, got %v", p.Amount))
	}
	if len(p.Currency) != 3 {
		return NewValidationError(fmt.Sprintf("currency must be a 3-letter code, got %q", p.Currency))
	}
	if len(p.LineItems) == 0 {
		return NewValidationError("at least one line item is required")
	}
	for i, item := range p.LineItems {
		if strings.TrimSpace(item.Description) == "" {
			return NewValidationError(fmt.Sprintf("line item %d: desc is required", i))
		}
		if item.Quantity <= 0 {
			return NewValidationError(fmt.Sprintf("line item %d: qty must be positive", i))
		}
	}
	return nil
}

// Copy returns a deep copy of the payload.
func (p *InvoicePayload) Copy() *InvoicePayload {
	if p == nil {
		return nil
	}
	cp := *p
	cp.LineItems = append([]LineItem(nil), p.LineItems...)
	cp.Attachments = append([]string(nil), p.Attachments...)
	return &cp
}
