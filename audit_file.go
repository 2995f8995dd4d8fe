package invoiceflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileAuditSink is an AuditSink that writes one newline-delimited JSON file
// per workflow run.
type FileAuditSink struct {
	directory string
}

func NewFileAuditSink(directory string) *FileAuditSink {
	return &FileAuditSink{directory: directory}
}

func (s *FileAuditSink) workflowLogPath(workflowID string) string {
	return filepath.Join(s.directory, fmt.Sprintf("%s.jsonl", workflowID))
}

func (s *FileAuditSink) RecordEntry(ctx context.Context, workflowID string, entry *AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := s.workflowLogPath(workflowID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *FileAuditSink) WorkflowHistory(ctx context.Context, workflowID string) ([]*AuditEntry, error) {
	data, err := os.ReadFile(s.workflowLogPath(workflowID))
	if err != nil {
		return nil, err
	}
	var entries []*AuditEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
