package invoiceflow

import (
	"context"
)

// DecisionSubmission carries a reviewer's decision for a pending checkpoint.
type DecisionSubmission struct {
	CheckpointID string   `json:"checkpoint_id"`
	Decision     Decision `json:"decision"`
	ReviewerID   string   `json:"reviewer_id"`
	Notes        string   `json:"notes,omitempty"`
}

// Validate checks the submission before any store access.
func (s DecisionSubmission) Validate() error {
	if s.CheckpointID == "" {
		return NewValidationError("checkpoint_id is required")
	}
	if !s.Decision.Valid() {
		return NewValidationError("decision must be ACCEPT or REJECT")
	}
	if s.ReviewerID == "" {
		return NewValidationError("reviewer_id is required")
	}
	return nil
}

// CheckpointStore is durable keyed storage for suspended-run snapshots and
// the review queue. Implementations must be safe for concurrent use by
// independent runs, and the PENDING to DECIDED transition must be atomic:
// at most one DecideCheckpoint call ever succeeds per checkpoint ID.
type CheckpointStore interface {
	// SaveCheckpoint persists a checkpoint record together with its
	// review-queue projection. Once it returns, a concurrent
	// ListPendingReviews must include the checkpoint.
	SaveCheckpoint(ctx context.Context, record *CheckpointRecord) error

	// GetCheckpoint retrieves the full record including the state blob.
	// Returns ErrCheckpointNotFound for an unknown ID. Reading never
	// mutates the record.
	GetCheckpoint(ctx context.Context, checkpointID string) (*CheckpointRecord, error)

	// ListPendingReviews returns queue items with a PENDING review status,
	// ordered by creation time.
	ListPendingReviews(ctx context.Context) ([]*ReviewItem, error)

	// DecideCheckpoint applies a decision with compare-and-set semantics and
	// returns the decided record. Returns ErrCheckpointNotFound for an
	// unknown ID and ErrAlreadyDecided if the record is no longer PENDING;
	// in both cases no state is mutated.
	DecideCheckpoint(ctx context.Context, submission DecisionSubmission) (*CheckpointRecord, error)
}
