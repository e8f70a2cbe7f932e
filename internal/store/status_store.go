package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nhle/review-notifier/internal/model"
)

const unreadCounter = "unread"

// GetConnectionStatus returns the last probe outcome, or nil.
func (s *SQLiteStore) GetConnectionStatus(ctx context.Context) (*model.ConnectionStatus, error) {
	var row struct {
		Available int    `db:"available"`
		LastCheck int64  `db:"last_check"`
		Error     string `db:"error"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT available, last_check, error FROM connection_status WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting connection status: %w", err)
	}
	return &model.ConnectionStatus{
		Available: row.Available != 0,
		LastCheck: fromNanos(row.LastCheck),
		Error:     row.Error,
	}, nil
}

// SetConnectionStatus overwrites the single connection status row.
func (s *SQLiteStore) SetConnectionStatus(ctx context.Context, st model.ConnectionStatus) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO connection_status (id, available, last_check, error) VALUES (1, ?, ?, ?)",
		boolToInt(st.Available), toNanos(st.LastCheck), st.Error,
	)
	if err != nil {
		return fmt.Errorf("setting connection status: %w", err)
	}
	return nil
}

// GetUnreadCount returns the unread counter.
func (s *SQLiteStore) GetUnreadCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COALESCE(MAX(value), 0) FROM counters WHERE name = ?", unreadCounter)
	if err != nil {
		return 0, fmt.Errorf("getting unread count: %w", err)
	}
	return n, nil
}

// IncrementUnread adds one to the unread counter and returns the new value.
func (s *SQLiteStore) IncrementUnread(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`, unreadCounter); err != nil {
		return 0, fmt.Errorf("incrementing unread count: %w", err)
	}

	var n int
	if err := tx.GetContext(ctx, &n,
		"SELECT value FROM counters WHERE name = ?", unreadCounter); err != nil {
		return 0, fmt.Errorf("reading unread count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing unread count: %w", err)
	}
	return n, nil
}

// ResetUnread sets the unread counter to zero.
func (s *SQLiteStore) ResetUnread(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO counters (name, value) VALUES (?, 0)", unreadCounter)
	if err != nil {
		return fmt.Errorf("resetting unread count: %w", err)
	}
	return nil
}
