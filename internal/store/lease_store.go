package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireCycleLease claims the lease in a single upsert, so two processes
// sharing the database file cannot both win it. An expired lease is taken
// over; the current holder may renew its own.
func (s *SQLiteStore) AcquireCycleLease(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_lease (id, holder, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE cycle_lease.expires_at <= ? OR cycle_lease.holder = excluded.holder`,
		holder, toNanos(now.Add(ttl)), toNanos(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquiring cycle lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring cycle lease: %w", err)
	}
	return n == 1, nil
}

// ReleaseCycleLease drops the lease if holder still owns it.
func (s *SQLiteStore) ReleaseCycleLease(ctx context.Context, holder string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cycle_lease WHERE holder = ?", holder); err != nil {
		return fmt.Errorf("releasing cycle lease: %w", err)
	}
	return nil
}
