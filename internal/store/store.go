package store

import (
	"context"
	"time"

	"github.com/nhle/review-notifier/internal/model"
)

// Store defines the persistence interface for checkpoints, the dedup and
// pipeline status ledgers, connection status, the unread counter, the
// retry ledger and the notification log.
type Store interface {
	// === Watermarks ===

	// GetWatermark returns the zero time when the stream has never
	// completed a cycle.
	GetWatermark(ctx context.Context, stream model.Stream) (time.Time, error)
	// SetWatermark never moves a watermark backward.
	SetWatermark(ctx context.Context, stream model.Stream, at time.Time) error

	// === Dedup ledger ===

	IsNotified(ctx context.Context, itemID string) (bool, error)
	// MarkNotified also evicts entries older than the retention window.
	MarkNotified(ctx context.Context, itemID string, at time.Time) error
	SweepDedup(ctx context.Context, before time.Time) (int64, error)
	CountNotified(ctx context.Context) (int, error)

	// === Pipeline statuses ===

	GetPipelineStatus(ctx context.Context, key string) (string, bool, error)
	SetPipelineStatus(ctx context.Context, key, status string, at time.Time) error

	// === Connection status ===

	// GetConnectionStatus returns nil when no probe has been recorded.
	GetConnectionStatus(ctx context.Context) (*model.ConnectionStatus, error)
	SetConnectionStatus(ctx context.Context, st model.ConnectionStatus) error

	// === Unread counter ===

	GetUnreadCount(ctx context.Context) (int, error)
	IncrementUnread(ctx context.Context) (int, error)
	ResetUnread(ctx context.Context) error

	// === Retry ledger ===

	// RecordSendFailure returns the number of failed attempts so far.
	RecordSendFailure(ctx context.Context, kind model.ChangeKind, itemID, reason string, at time.Time) (int, error)
	ClearSendFailure(ctx context.Context, itemID string) error
	PendingRetries(ctx context.Context, kind model.ChangeKind) (map[string]int, error)

	// === Cycle lease ===

	// AcquireCycleLease claims the single cycle lease for holder until
	// now+ttl. It reports false while another holder's lease is unexpired.
	AcquireCycleLease(ctx context.Context, holder string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseCycleLease(ctx context.Context, holder string) error

	// === Notification log ===

	CreateNotification(ctx context.Context, n model.Notification) error
	RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)

	Close() error
}
