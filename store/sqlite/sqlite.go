// Package sqlite provides a CheckpointStore backed by an embedded SQLite
// database. It is the default durable store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/finvela-ai/invoiceflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id   TEXT PRIMARY KEY,
	workflow_id     TEXT NOT NULL,
	invoice_id      TEXT NOT NULL,
	vendor_name     TEXT NOT NULL,
	amount          REAL NOT NULL,
	currency        TEXT NOT NULL,
	state_blob      BLOB NOT NULL,
	created_at      TEXT NOT NULL,
	reason_for_hold TEXT NOT NULL,
	review_url      TEXT NOT NULL,
	review_status   TEXT NOT NULL,
	decision        TEXT,
	reviewer_id     TEXT,
	decision_notes  TEXT,
	decided_at      TEXT
);

CREATE TABLE IF NOT EXISTS review_queue (
	id              TEXT PRIMARY KEY,
	checkpoint_id   TEXT NOT NULL REFERENCES checkpoints(checkpoint_id),
	invoice_id      TEXT NOT NULL,
	vendor_name     TEXT NOT NULL,
	amount          REAL NOT NULL,
	currency        TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	reason_for_hold TEXT NOT NULL,
	review_url      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_queue_created ON review_queue(created_at);
`

// Store implements invoiceflow.CheckpointStore on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, enables WAL mode and applies
// the schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent decisions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveCheckpoint(ctx context.Context, record *invoiceflow.CheckpointRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (
			checkpoint_id, workflow_id, invoice_id, vendor_name, amount,
			currency, state_blob, created_at, reason_for_hold, review_url,
			review_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CheckpointID, record.WorkflowID, record.InvoiceID,
		record.VendorName, record.Amount, record.Currency, record.StateBlob,
		record.CreatedAt.UTC().Format(time.RFC3339Nano), record.ReasonForHold,
		record.ReviewURL, string(record.ReviewStatus))
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_queue (
			id, checkpoint_id, invoice_id, vendor_name, amount, currency,
			created_at, reason_for_hold, review_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), record.CheckpointID, record.InvoiceID,
		record.VendorName, record.Amount, record.Currency,
		record.CreatedAt.UTC().Format(time.RFC3339Nano), record.ReasonForHold,
		record.ReviewURL)
	if err != nil {
		return fmt.Errorf("insert review queue item: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetCheckpoint(ctx context.Context, checkpointID string) (*invoiceflow.CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, workflow_id, invoice_id, vendor_name, amount,
		       currency, state_blob, created_at, reason_for_hold, review_url,
		       review_status, decision, reviewer_id, decision_notes, decided_at
		FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	return scanRecord(row)
}

func (s *Store) ListPendingReviews(ctx context.Context) ([]*invoiceflow.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.checkpoint_id, q.invoice_id, q.vendor_name, q.amount,
		       q.currency, q.created_at, q.reason_for_hold, q.review_url
		FROM review_queue q
		JOIN checkpoints c ON c.checkpoint_id = q.checkpoint_id
		WHERE c.review_status = ?
		ORDER BY q.created_at ASC`, string(invoiceflow.ReviewPending))
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var items []*invoiceflow.ReviewItem
	for rows.Next() {
		var item invoiceflow.ReviewItem
		var createdAt string
		if err := rows.Scan(&item.ID, &item.CheckpointID, &item.InvoiceID,
			&item.VendorName, &item.Amount, &item.Currency, &createdAt,
			&item.ReasonForHold, &item.ReviewURL); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *Store) DecideCheckpoint(ctx context.Context, sub invoiceflow.DecisionSubmission) (*invoiceflow.CheckpointRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE checkpoints
		SET review_status = ?, decision = ?, reviewer_id = ?,
		    decision_notes = ?, decided_at = ?
		WHERE checkpoint_id = ? AND review_status = ?`,
		string(invoiceflow.ReviewDecided), string(sub.Decision),
		sub.ReviewerID, sub.Notes, time.Now().UTC().Format(time.RFC3339Nano),
		sub.CheckpointID, string(invoiceflow.ReviewPending))
	if err != nil {
		return nil, fmt.Errorf("update checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT review_status FROM checkpoints WHERE checkpoint_id = ?`,
			sub.CheckpointID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoiceflow.ErrCheckpointNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("query review status: %w", err)
		}
		return nil, invoiceflow.ErrAlreadyDecided
	}

	row := tx.QueryRowContext(ctx, `
		SELECT checkpoint_id, workflow_id, invoice_id, vendor_name, amount,
		       currency, state_blob, created_at, reason_for_hold, review_url,
		       review_status, decision, reviewer_id, decision_notes, decided_at
		FROM checkpoints WHERE checkpoint_id = ?`, sub.CheckpointID)
	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decision: %w", err)
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*invoiceflow.CheckpointRecord, error) {
	var record invoiceflow.CheckpointRecord
	var createdAt string
	var decision, reviewerID, notes, decidedAt sql.NullString
	var status string
	err := row.Scan(&record.CheckpointID, &record.WorkflowID, &record.InvoiceID,
		&record.VendorName, &record.Amount, &record.Currency, &record.StateBlob,
		&createdAt, &record.ReasonForHold, &record.ReviewURL, &status,
		&decision, &reviewerID, &notes, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoiceflow.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	record.ReviewStatus = invoiceflow.ReviewStatus(status)
	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if decision.Valid {
		record.Decision = invoiceflow.Decision(decision.String)
	}
	record.ReviewerID = reviewerID.String
	record.DecisionNotes = notes.String
	if decidedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse decided_at: %w", err)
		}
		record.DecidedAt = &t
	}
	return &record, nil
}
