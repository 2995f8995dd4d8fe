package invoiceflow

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCheckpointRecord(id string, createdAt time.Time) *CheckpointRecord {
	return &CheckpointRecord{
		CheckpointID:  id,
		WorkflowID:    "run_" + id,
		InvoiceID:     "INV-" + id,
		VendorName:    "Acme Supplies",
		Amount:        1234.56,
		Currency:      "USD",
		StateBlob:     []byte(`{"workflow_id":"run_` + id + `"}`),
		CreatedAt:     createdAt,
		ReasonForHold: "match score 0.65 below threshold 0.90",
		ReviewURL:     "http://localhost:8080/reviews/" + id,
		ReviewStatus:  ReviewPending,
	}
}

func runCheckpointStoreTests(t *testing.T, newStore func(t *testing.T) CheckpointStore) {
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		store := newStore(t)
		record := testCheckpointRecord("chk_rt", time.Now().UTC())
		require.NoError(t, store.SaveCheckpoint(ctx, record))

		got, err := store.GetCheckpoint(ctx, "chk_rt")
		require.NoError(t, err)
		require.Equal(t, record.WorkflowID, got.WorkflowID)
		require.Equal(t, record.InvoiceID, got.InvoiceID)
		require.Equal(t, record.StateBlob, got.StateBlob)
		require.Equal(t, ReviewPending, got.ReviewStatus)
		require.Empty(t, got.Decision)
		require.Nil(t, got.DecidedAt)
	})

	t.Run("get unknown returns not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetCheckpoint(ctx, "chk_missing")
		require.ErrorIs(t, err, ErrCheckpointNotFound)
	})

	t.Run("pending reviews ordered by creation time", func(t *testing.T) {
		store := newStore(t)
		base := time.Now().UTC()
		// Save out of order; listing must come back oldest first.
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpointRecord("chk_b", base.Add(2*time.Second))))
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpointRecord("chk_a", base)))
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpointRecord("chk_c", base.Add(4*time.Second))))

		items, err := store.ListPendingReviews(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		require.Equal(t, "chk_a", items[0].CheckpointID)
		require.Equal(t, "chk_b", items[1].CheckpointID)
		require.Equal(t, "chk_c", items[2].CheckpointID)
	})

	t.Run("decide transitions pending to decided", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpointRecord("chk_d", time.Now().UTC())))

		decided, err := store.DecideCheckpoint(ctx, DecisionSubmission{
			CheckpointID: "chk_d",
			Decision:     DecisionAccept,
			ReviewerID:   "reviewer-1",
			Notes:        "checked with procurement",
		})
		require.NoError(t, err)
		require.Equal(t, ReviewDecided, decided.ReviewStatus)
		require.Equal(t, DecisionAccept, decided.Decision)
		require.Equal(t, "reviewer-1", decided.ReviewerID)
		require.Equal(t, "checked with procurement", decided.DecisionNotes)
		require.NotNil(t, decided.DecidedAt)
		require.NotEmpty(t, decided.StateBlob)

		// Decided records drop out of the pending queue but stay readable.
		items, err := store.ListPendingReviews(ctx)
		require.NoError(t, err)
		require.Empty(t, items)

		got, err := store.GetCheckpoint(ctx, "chk_d")
		require.NoError(t, err)
		require.Equal(t, ReviewDecided, got.ReviewStatus)
	})

	t.Run("second decision returns already decided", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpointRecord("chk_e", time.Now().UTC())))

		_, err := store.DecideCheckpoint(ctx, DecisionSubmission{
			CheckpointID: "chk_e", Decision: DecisionAccept, ReviewerID: "reviewer-1",
		})
		require.NoError(t, err)

		_, err = store.DecideCheckpoint(ctx, DecisionSubmission{
			CheckpointID: "chk_e", Decision: DecisionReject, ReviewerID: "reviewer-2",
		})
		require.ErrorIs(t, err, ErrAlreadyDecided)

		got, err := store.GetCheckpoint(ctx, "chk_e")
		require.NoError(t, err)
		require.Equal(t, DecisionAccept, got.Decision)
		require.Equal(t, "reviewer-1", got.ReviewerID)
	})

	t.Run("decide unknown returns not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.DecideCheckpoint(ctx, DecisionSubmission{
			CheckpointID: "chk_missing", Decision: DecisionAccept, ReviewerID: "reviewer-1",
		})
		require.ErrorIs(t, err, ErrCheckpointNotFound)
	})

	t.Run("concurrent decisions produce one winner", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveCheckpoint(ctx, testCheckpointRecord("chk_race", time.Now().UTC())))

		const attempts = 8
		errs := make(chan error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := store.DecideCheckpoint(ctx, DecisionSubmission{
					CheckpointID: "chk_race",
					Decision:     DecisionAccept,
					ReviewerID:   fmt.Sprintf("reviewer-%d", n),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		var wins, conflicts int
		for err := range errs {
			if err == nil {
				wins++
			} else {
				require.ErrorIs(t, err, ErrAlreadyDecided)
				conflicts++
			}
		}
		require.Equal(t, 1, wins)
		require.Equal(t, attempts-1, conflicts)
	})
}

func TestMemoryCheckpointStore(t *testing.T) {
	runCheckpointStoreTests(t, func(t *testing.T) CheckpointStore {
		return NewMemoryCheckpointStore()
	})
}

func TestFileCheckpointStore(t *testing.T) {
	runCheckpointStoreTests(t, func(t *testing.T) CheckpointStore {
		store, err := NewFileCheckpointStore(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestFileStoreReadsDuringDecideSeeWholeRecords(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)

	// A large blob widens the window in which a non-atomic rewrite would be
	// visible to a concurrent reader as truncated JSON.
	record := testCheckpointRecord("chk_torn", time.Now().UTC())
	record.StateBlob = bytes.Repeat([]byte(`{"k":"v"}`), 400000)
	require.NoError(t, store.SaveCheckpoint(ctx, record))

	done := make(chan struct{})
	readErrs := make(chan error, 1)
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			got, err := store.GetCheckpoint(ctx, "chk_torn")
			if err != nil {
				readErrs <- err
				return
			}
			if len(got.StateBlob) != len(record.StateBlob) {
				readErrs <- fmt.Errorf("read %d blob bytes, want %d", len(got.StateBlob), len(record.StateBlob))
				return
			}
			if _, err := store.ListPendingReviews(ctx); err != nil {
				readErrs <- err
				return
			}
		}
	}()

	_, err = store.DecideCheckpoint(ctx, DecisionSubmission{
		CheckpointID: "chk_torn",
		Decision:     DecisionAccept,
		ReviewerID:   "reviewer-1",
	})
	require.NoError(t, err)

	<-done
	select {
	case err := <-readErrs:
		t.Fatalf("concurrent read observed a torn record: %v", err)
	default:
	}

	got, err := store.GetCheckpoint(ctx, "chk_torn")
	require.NoError(t, err)
	require.Equal(t, ReviewDecided, got.ReviewStatus)
	require.Len(t, got.StateBlob, len(record.StateBlob))
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCheckpointStore()
	record := testCheckpointRecord("chk_copy", time.Now().UTC())
	require.NoError(t, store.SaveCheckpoint(ctx, record))

	// Mutating the caller's record must not leak into the store.
	record.VendorName = "mutated"
	record.StateBlob[0] = 'X'

	got, err := store.GetCheckpoint(ctx, "chk_copy")
	require.NoError(t, err)
	require.Equal(t, "Acme Supplies", got.VendorName)
	require.Equal(t, byte('{'), got.StateBlob[0])

	// Mutating a fetched copy must not leak back either.
	got.VendorName = "also mutated"
	again, err := store.GetCheckpoint(ctx, "chk_copy")
	require.NoError(t, err)
	require.Equal(t, "Acme Supplies", again.VendorName)
}
