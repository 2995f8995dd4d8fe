package invoiceflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.jetify.com/typeid"
)

// NewCheckpointID returns a new prefixed unique identifier for a checkpoint.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("chk")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Decision is the externally supplied outcome of a human review.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// Valid reports whether the decision is one of the known values.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// ReviewStatus is the lifecycle of a checkpoint record.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "PENDING"
	ReviewDecided ReviewStatus = "DECIDED"
)

// CheckpointRecord is the durable suspension artifact for a paused run. The
// snapshot columns allow reviewer triage without deserializing the state
// blob; the blob itself is the sole source of truth for resumption. Records
// transition PENDING to DECIDED exactly once and are never deleted by the
// engine.
type CheckpointRecord struct {
	CheckpointID  string       `json:"checkpoint_id"`
	WorkflowID    string       `json:"workflow_id"`
	InvoiceID     string       `json:"invoice_id"`
	VendorName    string       `json:"vendor_name"`
	Amount        float64      `json:"amount"`
	Currency      string       `json:"currency"`
	StateBlob     []byte       `json:"state_blob"`
	CreatedAt     time.Time    `json:"created_at"`
	ReasonForHold string       `json:"reason_for_hold"`
	ReviewURL     string       `json:"review_url"`
	ReviewStatus  ReviewStatus `json:"review_status"`

	// Decision fields, populated only once the review is decided.
	Decision      Decision   `json:"decision,omitempty"`
	ReviewerID    string     `json:"reviewer_id,omitempty"`
	DecisionNotes string     `json:"decision_notes,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// Copy returns a deep copy of the record.
func (c *CheckpointRecord) Copy() *CheckpointRecord {
	if c == nil {
		return nil
	}
	cp := *c
	cp.StateBlob = append([]byte(nil), c.StateBlob...)
	if c.DecidedAt != nil {
		t := *c.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

// ReviewItem is the lightweight review-queue projection of a checkpoint,
// used for listing pending reviews without loading state blobs.
type ReviewItem struct {
	ID            string    `json:"id"`
	CheckpointID  string    `json:"checkpoint_id"`
	InvoiceID     string    `json:"invoice_id"`
	VendorName    string    `json:"vendor_name"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
	ReasonForHold string    `json:"reason_for_hold"`
	ReviewURL     string    `json:"review_url"`
}

// EncodeRunSnapshot serializes the full WorkflowRun into a state blob. The
// snapshot is a deep, independent copy: after suspension the live run is
// discarded and resumption works only from the stored bytes.
func EncodeRunSnapshot(run *WorkflowRun) ([]byte, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run snapshot: %w", err)
	}
	return data, nil
}

// DecodeRunSnapshot rehydrates a WorkflowRun from a checkpoint state blob.
func DecodeRunSnapshot(blob []byte) (*WorkflowRun, error) {
	var run WorkflowRun
	if err := json.Unmarshal(blob, &run); err != nil {
		return nil, fmt.Errorf("decode run snapshot: %w", err)
	}
	if run.WorkflowID == "" {
		return nil, fmt.Errorf("decode run snapshot: missing workflow_id")
	}
	if run.ToolSelections == nil {
		run.ToolSelections = map[string]string{}
	}
	return &run, nil
}
