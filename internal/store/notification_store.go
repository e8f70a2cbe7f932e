package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/review-notifier/internal/model"
)

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, item_id, project, title, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Kind), n.ItemID, n.Project, n.Title, toNanos(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *SQLiteStore) RecentNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, kind, item_id, project, title, created_at
		FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var (
			n         model.Notification
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &kind, &n.ItemID, &n.Project, &n.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		n.Kind = model.ChangeKind(kind)
		n.CreatedAt = fromNanos(createdAt)
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}
