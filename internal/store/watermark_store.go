package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/review-notifier/internal/model"
)

// GetWatermark returns the stream's checkpoint, or the zero time.
func (s *SQLiteStore) GetWatermark(ctx context.Context, stream model.Stream) (time.Time, error) {
	var ns int64
	err := s.db.GetContext(ctx, &ns,
		"SELECT checkpoint FROM watermarks WHERE stream = ?", string(stream))
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting watermark %s: %w", stream, err)
	}
	return fromNanos(ns), nil
}

// SetWatermark stores max(current, at) for the stream.
func (s *SQLiteStore) SetWatermark(ctx context.Context, stream model.Stream, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (stream, checkpoint) VALUES (?, ?)
		ON CONFLICT(stream) DO UPDATE SET checkpoint = MAX(checkpoint, excluded.checkpoint)`,
		string(stream), toNanos(at),
	)
	if err != nil {
		return fmt.Errorf("setting watermark %s: %w", stream, err)
	}
	return nil
}
