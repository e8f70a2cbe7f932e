package detect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/relevance"
)

// CommentDispatcher delivers a single note alert.
type CommentDispatcher interface {
	DispatchComment(ctx context.Context, project string, mr model.MergeRequest, note model.Note) error
}

// CommentOptions configures a CommentDetector.
type CommentOptions struct {
	Identity        string
	Projects        []string
	NotifyOwn       bool
	SkipSystemNotes bool
	MaxAge          time.Duration
	BatchSize       int
}

// CommentDetector finds new notes on relevant open merge requests.
type CommentDetector struct {
	source     Source
	store      Store
	dispatcher CommentDispatcher
	filter     *relevance.Filter
	opts       CommentOptions
	logger     *zap.Logger
}

// NewCommentDetector creates a CommentDetector.
func NewCommentDetector(
	src Source,
	store Store,
	dispatcher CommentDispatcher,
	opts CommentOptions,
	logger *zap.Logger,
) *CommentDetector {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultCommentMaxAge
	}
	return &CommentDetector{
		source:     src,
		store:      store,
		dispatcher: dispatcher,
		filter:     relevance.NewFilter(src, opts.Identity, opts.BatchSize, logger),
		opts:       opts,
		logger:     logger,
	}
}

// Run performs one comment cycle. now is the cycle start time; it bounds
// the age window and becomes the new watermark if every project was
// processed. Any listing failure aborts the cycle and leaves the
// watermark untouched.
func (d *CommentDetector) Run(ctx context.Context, now time.Time) (Report, error) {
	rep := Report{Stream: model.StreamComments}

	watermark, err := d.store.GetWatermark(ctx, model.StreamComments)
	if err != nil {
		return rep, fmt.Errorf("reading comments watermark: %w", err)
	}

	pending, err := d.store.PendingRetries(ctx, model.KindComment)
	if err != nil {
		d.logger.Warn("failed to load pending comment retries", zap.Error(err))
		pending = nil
	}

	cutoff := now.Add(-d.opts.MaxAge)

	for _, project := range d.opts.Projects {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		mrs, err := d.source.ListOpenMergeRequests(ctx, project)
		if err != nil {
			return rep, fmt.Errorf("comments cycle aborted: %w", err)
		}
		rep.Projects++
		rep.Items += len(mrs)

		relevant := d.filter.Partition(ctx, project, mrs)
		rep.Relevant += len(relevant)

		for _, mr := range relevant {
			notes, err := d.source.ListNotes(ctx, project, mr.IID)
			if err != nil {
				return rep, fmt.Errorf("comments cycle aborted: %w", err)
			}

			for _, note := range notes {
				if !d.shouldNotify(ctx, note, watermark, cutoff, pending) {
					continue
				}
				rep.Candidates++

				if err := d.dispatcher.DispatchComment(ctx, project, mr, note); err != nil {
					rep.Failed++
					continue
				}
				rep.Notified++
			}
		}
	}

	if err := d.store.SetWatermark(ctx, model.StreamComments, now); err != nil {
		return rep, fmt.Errorf("advancing comments watermark: %w", err)
	}
	rep.Watermark = now

	d.logger.Info("comments checked",
		zap.Int("projects", rep.Projects),
		zap.Int("merge_requests", rep.Items),
		zap.Int("relevant", rep.Relevant),
		zap.Int("notified", rep.Notified),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

// shouldNotify applies the watermark, age, own-comment and dedup filters.
// A note with a pending retry skips the watermark filter only.
func (d *CommentDetector) shouldNotify(
	ctx context.Context,
	note model.Note,
	watermark, cutoff time.Time,
	pending map[string]int,
) bool {
	if d.opts.SkipSystemNotes && note.System {
		return false
	}

	itemID := note.ItemID()
	_, retry := pending[itemID]
	if !note.CreatedAt.After(watermark) && !retry {
		return false
	}

	if note.CreatedAt.Before(cutoff) {
		return false
	}

	if !d.opts.NotifyOwn && d.opts.Identity != "" && note.Author.Username == d.opts.Identity {
		return false
	}

	notified, err := d.store.IsNotified(ctx, itemID)
	if err != nil {
		d.logger.Warn("skipping note, dedup lookup failed", zap.String("note", itemID), zap.Error(err))
		return false
	}
	return !notified
}
