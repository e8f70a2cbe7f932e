package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/metrics"
	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/sink"
)

// DefaultSinkTimeout bounds a single send.
const DefaultSinkTimeout = 15 * time.Second

// ErrAbandoned is joined into the send error once an item has failed
// MaxSendAttempts times. The item will not be retried again.
var ErrAbandoned = errors.New("notification abandoned after repeated send failures")

// Ledger is the part of the store the dispatcher writes to.
type Ledger interface {
	MarkNotified(ctx context.Context, itemID string, at time.Time) error
	IncrementUnread(ctx context.Context) (int, error)
	RecordSendFailure(ctx context.Context, kind model.ChangeKind, itemID, reason string, at time.Time) (int, error)
	ClearSendFailure(ctx context.Context, itemID string) error
	CreateNotification(ctx context.Context, n model.Notification) error
}

// Options configures a Dispatcher.
type Options struct {
	BaseURL         string
	Location        *time.Location
	SinkTimeout     time.Duration
	MaxSendAttempts int
	ShowLocalAlerts bool
	Now             func() time.Time
}

// Dispatcher renders changes, sends them through the sink and records the
// outcome in the ledgers. It never retries within a call.
type Dispatcher struct {
	sink   sink.Sink
	ledger Ledger
	opts   Options
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(s sink.Sink, ledger Ledger, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{sink: s, ledger: ledger, opts: opts, logger: logger}
}

func (d *Dispatcher) renderOptions() RenderOptions {
	return RenderOptions{BaseURL: d.opts.BaseURL, Location: d.opts.Location, Format: d.sink.Format()}
}

// DispatchComment sends a note alert. On success the note id is written to
// the dedup ledger. On the final allowed failure it is written too, so
// the note is never offered again.
func (d *Dispatcher) DispatchComment(ctx context.Context, project string, mr model.MergeRequest, note model.Note) error {
	itemID := note.ItemID()
	msg := RenderComment(mr, note, project, d.renderOptions())

	if err := d.send(ctx, msg); err != nil {
		err = d.handleFailure(ctx, model.KindComment, itemID, err)
		if errors.Is(err, ErrAbandoned) {
			d.markNotified(ctx, itemID)
		}
		return err
	}

	d.markNotified(ctx, itemID)
	d.afterSend(ctx, model.KindComment, itemID, project, msg)
	return nil
}

// DispatchPipeline sends a pipeline transition alert. The caller owns the
// pipeline status record.
func (d *Dispatcher) DispatchPipeline(ctx context.Context, project string, p model.Pipeline, previous string) error {
	itemID := model.PipelineKey{Project: project, PipelineID: p.ID}.String()
	msg := RenderPipeline(p, project, previous, d.renderOptions())

	if err := d.send(ctx, msg); err != nil {
		return d.handleFailure(ctx, model.KindPipeline, itemID, err)
	}

	d.afterSend(ctx, model.KindPipeline, itemID, project, msg)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, msg sink.Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SinkTimeout)
	defer cancel()
	return d.sink.Send(ctx, msg)
}

func (d *Dispatcher) markNotified(ctx context.Context, itemID string) {
	if err := d.ledger.MarkNotified(ctx, itemID, d.opts.Now()); err != nil {
		d.logger.Error("failed to write dedup record", zap.String("item", itemID), zap.Error(err))
	}
}

func (d *Dispatcher) handleFailure(ctx context.Context, kind model.ChangeKind, itemID string, sendErr error) error {
	metrics.NotificationsTotal.WithLabelValues(string(kind), "failed").Inc()

	attempts, err := d.ledger.RecordSendFailure(ctx, kind, itemID, sendErr.Error(), d.opts.Now())
	if err != nil {
		d.logger.Error("failed to record send failure", zap.String("item", itemID), zap.Error(err))
		return fmt.Errorf("sending %s %s: %w", kind, itemID, sendErr)
	}

	if d.opts.MaxSendAttempts > 0 && attempts >= d.opts.MaxSendAttempts {
		metrics.SendAbandonedTotal.WithLabelValues(string(kind)).Inc()
		d.logger.Warn("giving up on notification",
			zap.String("kind", string(kind)),
			zap.String("item", itemID),
			zap.Int("attempts", attempts),
			zap.Error(sendErr),
		)
		if err := d.ledger.ClearSendFailure(ctx, itemID); err != nil {
			d.logger.Error("failed to clear send failure", zap.String("item", itemID), zap.Error(err))
		}
		return fmt.Errorf("sending %s %s: %w after %d attempts: %w", kind, itemID, ErrAbandoned, attempts, sendErr)
	}

	d.logger.Warn("notification send failed",
		zap.String("kind", string(kind)),
		zap.String("item", itemID),
		zap.Int("attempt", attempts),
		zap.Error(sendErr),
	)
	return fmt.Errorf("sending %s %s (attempt %d): %w", kind, itemID, attempts, sendErr)
}

func (d *Dispatcher) afterSend(ctx context.Context, kind model.ChangeKind, itemID, project string, msg sink.Message) {
	metrics.NotificationsTotal.WithLabelValues(string(kind), "sent").Inc()

	if err := d.ledger.ClearSendFailure(ctx, itemID); err != nil {
		d.logger.Error("failed to clear send failure", zap.String("item", itemID), zap.Error(err))
	}

	unread, err := d.ledger.IncrementUnread(ctx)
	if err != nil {
		d.logger.Error("failed to increment unread counter", zap.Error(err))
	} else {
		metrics.Unread.Set(float64(unread))
	}

	if err := d.ledger.CreateNotification(ctx, model.Notification{
		Kind:      kind,
		ItemID:    itemID,
		Project:   project,
		Title:     msg.Title,
		CreatedAt: d.opts.Now(),
	}); err != nil {
		d.logger.Error("failed to log notification", zap.String("item", itemID), zap.Error(err))
	}

	if d.opts.ShowLocalAlerts {
		d.logger.Info("alert", zap.String("kind", string(kind)), zap.String("title", msg.Title))
	}

	d.logger.Debug("notification sent",
		zap.String("kind", string(kind)),
		zap.String("item", itemID),
		zap.String("sink", d.sink.Name()),
	)
}
