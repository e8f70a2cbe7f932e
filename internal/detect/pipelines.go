package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/dispatch"
	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/relevance"
)

// PipelineDispatcher delivers a single pipeline transition alert.
type PipelineDispatcher interface {
	DispatchPipeline(ctx context.Context, project string, p model.Pipeline, previous string) error
}

// PipelineOptions configures a PipelineDetector.
type PipelineOptions struct {
	Identity string
	Projects []string
}

// PipelineDetector reports terminal status transitions of pipelines
// triggered by the identity.
type PipelineDetector struct {
	source     Source
	store      Store
	dispatcher PipelineDispatcher
	opts       PipelineOptions
	logger     *zap.Logger
}

// NewPipelineDetector creates a PipelineDetector.
func NewPipelineDetector(
	src Source,
	store Store,
	dispatcher PipelineDispatcher,
	opts PipelineOptions,
	logger *zap.Logger,
) *PipelineDetector {
	return &PipelineDetector{
		source:     src,
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
	}
}

// Run performs one pipeline cycle. The first observation of a pipeline
// only records a baseline; later observations with a different terminal
// status are dispatched. A failed send leaves the old record so the
// transition is seen again next cycle.
func (d *PipelineDetector) Run(ctx context.Context, now time.Time) (Report, error) {
	rep := Report{Stream: model.StreamPipelines}

	watermark, err := d.store.GetWatermark(ctx, model.StreamPipelines)
	if err != nil {
		return rep, fmt.Errorf("reading pipelines watermark: %w", err)
	}

	pending, err := d.store.PendingRetries(ctx, model.KindPipeline)
	if err != nil {
		d.logger.Warn("failed to load pending pipeline retries", zap.Error(err))
		pending = nil
	}

	for _, project := range d.opts.Projects {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		pipelines, err := d.source.ListPipelines(ctx, project)
		if err != nil {
			return rep, fmt.Errorf("pipelines cycle aborted: %w", err)
		}
		rep.Projects++

		for _, p := range pipelines {
			if !model.IsTerminalStatus(p.Status) {
				continue
			}
			key := model.PipelineKey{Project: project, PipelineID: p.ID}.String()
			_, retry := pending[key]
			if !p.UpdatedAt.After(watermark) && !retry {
				continue
			}
			rep.Items++

			if !relevance.PipelineRelevant(p, d.opts.Identity) {
				continue
			}
			rep.Relevant++

			d.observe(ctx, &rep, project, key, p, retry, now)
		}
	}

	if err := d.store.SetWatermark(ctx, model.StreamPipelines, now); err != nil {
		return rep, fmt.Errorf("advancing pipelines watermark: %w", err)
	}
	rep.Watermark = now

	d.logger.Info("pipelines checked",
		zap.Int("projects", rep.Projects),
		zap.Int("terminal", rep.Items),
		zap.Int("relevant", rep.Relevant),
		zap.Int("baselined", rep.Baselined),
		zap.Int("notified", rep.Notified),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (d *PipelineDetector) observe(
	ctx context.Context,
	rep *Report,
	project, key string,
	p model.Pipeline,
	retry bool,
	now time.Time,
) {
	log := d.logger.With(zap.String("pipeline", key), zap.String("status", p.Status))

	previous, found, err := d.store.GetPipelineStatus(ctx, key)
	if err != nil {
		log.Warn("skipping pipeline, status lookup failed", zap.Error(err))
		return
	}

	if !found {
		rep.Baselined++
		d.record(ctx, log, key, p.Status, now)
		return
	}

	if previous == p.Status {
		if retry {
			if err := d.store.ClearSendFailure(ctx, key); err != nil {
				log.Warn("failed to clear stale retry", zap.Error(err))
			}
		}
		d.record(ctx, log, key, p.Status, now)
		return
	}

	rep.Candidates++
	log.Debug("pipeline status changed", zap.String("previous", previous))

	err = d.dispatcher.DispatchPipeline(ctx, project, p, previous)
	switch {
	case err == nil:
		rep.Notified++
		d.record(ctx, log, key, p.Status, now)
	case errors.Is(err, dispatch.ErrAbandoned):
		rep.Failed++
		d.record(ctx, log, key, p.Status, now)
	default:
		rep.Failed++
	}
}

func (d *PipelineDetector) record(ctx context.Context, log *zap.Logger, key, status string, now time.Time) {
	if err := d.store.SetPipelineStatus(ctx, key, status, now); err != nil {
		log.Error("failed to record pipeline status", zap.Error(err))
	}
}
