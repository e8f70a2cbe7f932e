package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/review-notifier/internal/model"
)

// IsNotified reports whether itemID has a dedup record.
func (s *SQLiteStore) IsNotified(ctx context.Context, itemID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM dedup_ledger WHERE item_id = ?", itemID)
	if err != nil {
		return false, fmt.Errorf("checking dedup record %s: %w", itemID, err)
	}
	return n > 0, nil
}

// MarkNotified records the first notification time of itemID and evicts
// records older than the retention window relative to at.
func (s *SQLiteStore) MarkNotified(ctx context.Context, itemID string, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM dedup_ledger WHERE notified_at < ?",
		toNanos(at.Add(-s.retention)),
	); err != nil {
		return fmt.Errorf("sweeping dedup ledger: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO dedup_ledger (item_id, notified_at) VALUES (?, ?)",
		itemID, toNanos(at),
	); err != nil {
		return fmt.Errorf("marking %s notified: %w", itemID, err)
	}

	return tx.Commit()
}

// SweepDedup deletes dedup records notified before the given time.
func (s *SQLiteStore) SweepDedup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM dedup_ledger WHERE notified_at < ?", toNanos(before))
	if err != nil {
		return 0, fmt.Errorf("sweeping dedup ledger: %w", err)
	}
	return res.RowsAffected()
}

// CountNotified returns the number of dedup records.
func (s *SQLiteStore) CountNotified(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM dedup_ledger"); err != nil {
		return 0, fmt.Errorf("counting dedup records: %w", err)
	}
	return n, nil
}

// GetPipelineStatus returns the last recorded status for key.
func (s *SQLiteStore) GetPipelineStatus(ctx context.Context, key string) (string, bool, error) {
	var status string
	err := s.db.GetContext(ctx, &status,
		"SELECT status FROM pipeline_statuses WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting pipeline status %s: %w", key, err)
	}
	return status, true, nil
}

// SetPipelineStatus inserts or overwrites the status record for key.
func (s *SQLiteStore) SetPipelineStatus(ctx context.Context, key, status string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO pipeline_statuses (key, status, observed_at) VALUES (?, ?, ?)",
		key, status, toNanos(at),
	)
	if err != nil {
		return fmt.Errorf("setting pipeline status %s: %w", key, err)
	}
	return nil
}

// RecordSendFailure increments the failed-attempt count for itemID.
func (s *SQLiteStore) RecordSendFailure(
	ctx context.Context,
	kind model.ChangeKind,
	itemID, reason string,
	at time.Time,
) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO send_failures (item_id, kind, attempts, last_error, last_attempt_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			attempts = attempts + 1,
			last_error = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at`,
		itemID, string(kind), reason, toNanos(at),
	); err != nil {
		return 0, fmt.Errorf("recording send failure %s: %w", itemID, err)
	}

	var attempts int
	if err := tx.GetContext(ctx, &attempts,
		"SELECT attempts FROM send_failures WHERE item_id = ?", itemID); err != nil {
		return 0, fmt.Errorf("reading send failure %s: %w", itemID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing send failure %s: %w", itemID, err)
	}
	return attempts, nil
}

// ClearSendFailure drops itemID from the retry ledger.
func (s *SQLiteStore) ClearSendFailure(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM send_failures WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("clearing send failure %s: %w", itemID, err)
	}
	return nil
}

// PendingRetries maps item ids of the given kind to their attempt counts.
func (s *SQLiteStore) PendingRetries(ctx context.Context, kind model.ChangeKind) (map[string]int, error) {
	var rows []struct {
		ItemID   string `db:"item_id"`
		Attempts int    `db:"attempts"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT item_id, attempts FROM send_failures WHERE kind = ?", string(kind)); err != nil {
		return nil, fmt.Errorf("listing pending retries: %w", err)
	}

	pending := make(map[string]int, len(rows))
	for _, r := range rows {
		pending[r.ItemID] = r.Attempts
	}
	return pending, nil
}
