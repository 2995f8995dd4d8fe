package invoiceflow

import "context"

// NullAuditSink discards audit entries. Useful in tests and when the
// in-aggregate audit log is all that is needed.
type NullAuditSink struct{}

func NewNullAuditSink() *NullAuditSink {
	return &NullAuditSink{}
}

func (s *NullAuditSink) RecordEntry(ctx context.Context, workflowID string, entry *AuditEntry) error {
	return nil
}

func (s *NullAuditSink) WorkflowHistory(ctx context.Context, workflowID string) ([]*AuditEntry, error) {
	return nil, nil
}
