package invoiceflow

import (
	"context"
	"time"
)

// AuditEntry is a single record in a run's append-only audit log.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     Stage          `json:"stage"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// Copy returns a copy of the entry with its own details map.
func (e AuditEntry) Copy() AuditEntry {
	cp := e
	cp.Details = copyDetails(e.Details)
	return cp
}

func copyDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AuditSink mirrors audit entries to durable storage for observability. The
// in-aggregate audit log is canonical; the engine never reads a sink to make
// control-flow decisions, and sink failures do not fail a stage.
type AuditSink interface {
	// RecordEntry appends one entry for the given workflow run.
	RecordEntry(ctx context.Context, workflowID string, entry *AuditEntry) error

	// WorkflowHistory retrieves the recorded entries for a workflow run.
	WorkflowHistory(ctx context.Context, workflowID string) ([]*AuditEntry, error)
}
