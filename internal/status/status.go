// Package status collects and renders the notifier's user-facing state.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/review-notifier/internal/config"
	"github.com/nhle/review-notifier/internal/model"
)

// DefaultRecentLimit is how many log entries a snapshot carries.
const DefaultRecentLimit = 10

// Reader is the part of the store a snapshot reads.
type Reader interface {
	GetConnectionStatus(ctx context.Context) (*model.ConnectionStatus, error)
	GetWatermark(ctx context.Context, stream model.Stream) (time.Time, error)
	GetUnreadCount(ctx context.Context) (int, error)
	RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
}

// Snapshot is the state shown by the status command and API.
type Snapshot struct {
	Enabled bool `json:"enabled"`
	Ready   bool `json:"ready"`
	// NotReadyReason names the first missing setting.
	NotReadyReason string `json:"not_ready_reason,omitempty"`

	Sink string `json:"sink"`

	Connection *model.ConnectionStatus `json:"connection,omitempty"`

	// LastCheck is the newer of the two watermarks.
	LastCheck         time.Time            `json:"last_check"`
	MonitoredProjects int                  `json:"monitored_projects"`
	Unread            int                  `json:"unread"`
	Recent            []model.Notification `json:"recent"`
}

// Collect builds a Snapshot from settings and persisted state.
func Collect(ctx context.Context, s *config.Settings, r Reader, recentLimit int) (Snapshot, error) {
	ready, reason := s.Ready()
	snap := Snapshot{
		Enabled:           s.Enabled,
		Ready:             ready,
		NotReadyReason:    reason,
		Sink:              s.Sink.Kind,
		MonitoredProjects: len(s.MonitoredProjects),
	}

	conn, err := r.GetConnectionStatus(ctx)
	if err != nil {
		return snap, fmt.Errorf("reading connection status: %w", err)
	}
	snap.Connection = conn

	for _, stream := range []model.Stream{model.StreamComments, model.StreamPipelines} {
		wm, err := r.GetWatermark(ctx, stream)
		if err != nil {
			return snap, fmt.Errorf("reading %s watermark: %w", stream, err)
		}
		if wm.After(snap.LastCheck) {
			snap.LastCheck = wm
		}
	}

	if snap.Unread, err = r.GetUnreadCount(ctx); err != nil {
		return snap, fmt.Errorf("reading unread count: %w", err)
	}

	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	if snap.Recent, err = r.RecentNotifications(ctx, recentLimit); err != nil {
		return snap, fmt.Errorf("reading notification log: %w", err)
	}
	return snap, nil
}

// Ago formats the time since t in coarse units.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d d ago", int(d/(24*time.Hour)))
	}
}
