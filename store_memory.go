package invoiceflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCheckpointStore is an in-memory CheckpointStore for tests and
// single-process deployments. A single mutex guards both the records and the
// queue, which makes SaveCheckpoint atomic with respect to listing and gives
// DecideCheckpoint its compare-and-set guarantee.
type MemoryCheckpointStore struct {
	mutex   sync.RWMutex
	records map[string]*CheckpointRecord
	queue   []*ReviewItem
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		records: map[string]*CheckpointRecord{},
	}
}

func (s *MemoryCheckpointStore) SaveCheckpoint(ctx context.Context, record *CheckpointRecord) error {
	if record == nil || record.CheckpointID == "" {
		return fmt.Errorf("checkpoint record with an ID is required")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.records[record.CheckpointID]; exists {
		return fmt.Errorf("checkpoint %s already exists", record.CheckpointID)
	}
	s.records[record.CheckpointID] = record.Copy()
	s.queue = append(s.queue, &ReviewItem{
		ID:            uuid.NewString(),
		CheckpointID:  record.CheckpointID,
		InvoiceID:     record.InvoiceID,
		VendorName:    record.VendorName,
		Amount:        record.Amount,
		Currency:      record.Currency,
		CreatedAt:     record.CreatedAt,
		ReasonForHold: record.ReasonForHold,
		ReviewURL:     record.ReviewURL,
	})
	return nil
}

func (s *MemoryCheckpointStore) GetCheckpoint(ctx context.Context, checkpointID string) (*CheckpointRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, ok := s.records[checkpointID]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return record.Copy(), nil
}

func (s *MemoryCheckpointStore) ListPendingReviews(ctx context.Context) ([]*ReviewItem, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var items []*ReviewItem
	for _, item := range s.queue {
		record := s.records[item.CheckpointID]
		if record != nil && record.ReviewStatus == ReviewPending {
			cp := *item
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryCheckpointStore) DecideCheckpoint(ctx context.Context, submission DecisionSubmission) (*CheckpointRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.records[submission.CheckpointID]
	if !ok {
		return nil, ErrCheckpointNotFound
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
	return record.Copy(), nil
}
