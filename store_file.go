package invoiceflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileCheckpointStore persists checkpoint records and queue items as JSON
// files on disk. Files lack a transactional PENDING to DECIDED transition,
// so all access is serialized behind a process-wide mutex and record files
// are replaced atomically via rename; use the sqlite or postgres stores when
// more than one process shares the data.
type FileCheckpointStore struct {
	dataDir string
	mutex   sync.Mutex
}

// NewFileCheckpointStore creates a file-based store rooted at dataDir.
func NewFileCheckpointStore(dataDir string) (*FileCheckpointStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".invoiceflow", "checkpoints")
	}
	for _, sub := range []string{"records", "queue"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
	}
	return &FileCheckpointStore{dataDir: dataDir}, nil
}

func (s *FileCheckpointStore) recordPath(checkpointID string) string {
	return filepath.Join(s.dataDir, "records", checkpointID+".json")
}

func (s *FileCheckpointStore) queuePath(checkpointID string) string {
	return filepath.Join(s.dataDir, "queue", checkpointID+".json")
}

func (s *FileCheckpointStore) SaveCheckpoint(ctx context.Context, record *CheckpointRecord) error {
	if record == nil || record.CheckpointID == "" {
		return fmt.Errorf("checkpoint record with an ID is required")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := os.Stat(s.recordPath(record.CheckpointID)); err == nil {
		return fmt.Errorf("checkpoint %s already exists", record.CheckpointID)
	}
	if err := s.writeRecord(record); err != nil {
		return err
	}
	item := &ReviewItem{
		ID:            uuid.NewString(),
		CheckpointID:  record.CheckpointID,
		InvoiceID:     record.InvoiceID,
		VendorName:    record.VendorName,
		Amount:        record.Amount,
		Currency:      record.Currency,
		CreatedAt:     record.CreatedAt,
		ReasonForHold: record.ReasonForHold,
		ReviewURL:     record.ReviewURL,
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := os.WriteFile(s.queuePath(record.CheckpointID), data, 0644); err != nil {
		return fmt.Errorf("failed to write queue item: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) writeRecord(record *CheckpointRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	// Write to a temp file and rename so readers never observe a
	// half-written record.
	path := s.recordPath(record.CheckpointID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) readRecord(checkpointID string) (*CheckpointRecord, error) {
	data, err := os.ReadFile(s.recordPath(checkpointID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var record CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &record, nil
}

func (s *FileCheckpointStore) GetCheckpoint(ctx context.Context, checkpointID string) (*CheckpointRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.readRecord(checkpointID)
}

func (s *FileCheckpointStore) ListPendingReviews(ctx context.Context) ([]*ReviewItem, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dataDir, "queue"))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue directory: %w", err)
	}
	var items []*ReviewItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dataDir, "queue", entry.Name()))
		if err != nil {
			continue
		}
		var item ReviewItem
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		record, err := s.readRecord(item.CheckpointID)
		if err != nil || record.ReviewStatus != ReviewPending {
			continue
		}
		items = append(items, &item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *FileCheckpointStore) DecideCheckpoint(ctx context.Context, submission DecisionSubmission) (*CheckpointRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, err := s.readRecord(submission.CheckpointID)
	if err != nil {
		return nil, err
	}
	if record.ReviewStatus != ReviewPending {
		return nil, ErrAlreadyDecided
	}
	now := time.Now().UTC()
	record.ReviewStatus = ReviewDecided
	record.Decision = submission.Decision
	record.ReviewerID = submission.ReviewerID
	record.DecisionNotes = submission.Notes
	record.DecidedAt = &now
	if err := s.writeRecord(record); err != nil {
		return nil, err
	}
	return record, nil
}
