// Package postgres provides a CheckpointStore backed by PostgreSQL, for
// deployments where multiple service instances share one review queue.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/finvela-ai/invoiceflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id   TEXT PRIMARY KEY,
	workflow_id     TEXT NOT NULL,
	invoice_id      TEXT NOT NULL,
	vendor_name     TEXT NOT NULL,
	amount          DOUBLE PRECISION NOT NULL,
	currency        TEXT NOT NULL,
	state_blob      BYTEA NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	reason_for_hold TEXT NOT NULL,
	review_url      TEXT NOT NULL,
	review_status   TEXT NOT NULL,
	decision        TEXT,
	reviewer_id     TEXT,
	decision_notes  TEXT,
	decided_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS review_queue (
	id              TEXT PRIMARY KEY,
	checkpoint_id   TEXT NOT NULL REFERENCES checkpoints(checkpoint_id),
	invoice_id      TEXT NOT NULL,
	vendor_name     TEXT NOT NULL,
	amount          DOUBLE PRECISION NOT NULL,
	currency        TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	reason_for_hold TEXT NOT NULL,
	review_url      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_queue_created ON review_queue(created_at);
`

// Store implements invoiceflow.CheckpointStore on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the database identified by the connection string and
// applies the schema.
func Open(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
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
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.CheckpointID, record.WorkflowID, record.InvoiceID,
		record.VendorName, record.Amount, record.Currency, record.StateBlob,
		record.CreatedAt.UTC(), record.ReasonForHold, record.ReviewURL,
		string(record.ReviewStatus))
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_queue (
			id, checkpoint_id, invoice_id, vendor_name, amount, currency,
			created_at, reason_for_hold, review_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), record.CheckpointID, record.InvoiceID,
		record.VendorName, record.Amount, record.Currency,
		record.CreatedAt.UTC(), record.ReasonForHold, record.ReviewURL)
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
		FROM checkpoints WHERE checkpoint_id = $1`, checkpointID)
	return scanRecord(row)
}

func (s *Store) ListPendingReviews(ctx context.Context) ([]*invoiceflow.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.checkpoint_id, q.invoice_id, q.vendor_name, q.amount,
		       q.currency, q.created_at, q.reason_for_hold, q.review_url
		FROM review_queue q
		JOIN checkpoints c ON c.checkpoint_id = q.checkpoint_id
		WHERE c.review_status = $1
		ORDER BY q.created_at ASC`, string(invoiceflow.ReviewPending))
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var items []*invoiceflow.ReviewItem
	for rows.Next() {
		var item invoiceflow.ReviewItem
		if err := rows.Scan(&item.ID, &item.CheckpointID, &item.InvoiceID,
			&item.VendorName, &item.Amount, &item.Currency, &item.CreatedAt,
			&item.ReasonForHold, &item.ReviewURL); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
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
		SET review_status = $1, decision = $2, reviewer_id = $3,
		    decision_notes = $4, decided_at = $5
		WHERE checkpoint_id = $6 AND review_status = $7`,
		string(invoiceflow.ReviewDecided), string(sub.Decision),
		sub.ReviewerID, sub.Notes, time.Now().UTC(),
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
			`SELECT review_status FROM checkpoints WHERE checkpoint_id = $1`,
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
		FROM checkpoints WHERE checkpoint_id = $1`, sub.CheckpointID)
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
	var decision, reviewerID, notes sql.NullString
	var decidedAt sql.NullTime
	var status string
	err := row.Scan(&record.CheckpointID, &record.WorkflowID, &record.InvoiceID,
		&record.VendorName, &record.Amount, &record.Currency, &record.StateBlob,
		&record.CreatedAt, &record.ReasonForHold, &record.ReviewURL, &status,
		&decision, &reviewerID, &notes, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoiceflow.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	record.ReviewStatus = invoiceflow.ReviewStatus(status)
	if decision.Valid {
		record.Decision = invoiceflow.Decision(decision.String)
	}
	record.ReviewerID = reviewerID.String
	record.DecisionNotes = notes.String
	if decidedAt.Valid {
		t := decidedAt.Time
		record.DecidedAt = &t
	}
	return &record, nil
}
