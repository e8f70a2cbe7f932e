package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/config"
	"github.com/nhle/review-notifier/internal/detect"
	"github.com/nhle/review-notifier/internal/dispatch"
	"github.com/nhle/review-notifier/internal/metrics"
	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/sink"
	"github.com/nhle/review-notifier/internal/source"
	"github.com/nhle/review-notifier/internal/store"
)

// ErrCycleInProgress is returned by RunCycle when another cycle is running,
// in this process or in another one sharing the state database.
var ErrCycleInProgress = errors.New("a poll cycle is already running")

// Deps are the collaborators a Poller needs. Now defaults to time.Now.
type Deps struct {
	Settings *config.Settings
	Store    store.Store
	Platform source.Platform
	Sink     sink.Sink
	Logger   *zap.Logger
	Now      func() time.Time
}

// CycleResult describes one poll cycle.
type CycleResult struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// Skipped is set when configuration is incomplete; Reason says why.
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`

	Available bool `json:"available"`
	Seeded    bool `json:"seeded,omitempty"`

	Comments  *detect.Report `json:"comments,omitempty"`
	Pipelines *detect.Report `json:"pipelines,omitempty"`

	Error string `json:"error,omitempty"`
}

// Status is a snapshot of the poller for the ops surface.
type Status struct {
	Running    bool         `json:"running"`
	LastResult *CycleResult `json:"last_result,omitempty"`
}

// Poller runs poll cycles serially: on a ticker, once after the initial
// delay, and whenever Trigger is called. Cycles are also serialised across
// processes by a lease row in the store.
type Poller struct {
	deps      Deps
	holder    string
	comments  *detect.CommentDetector
	pipelines *detect.PipelineDetector

	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}

	mu       gosync.Mutex
	started  bool
	running  bool
	seedDone bool
	last     *CycleResult
}

// New creates a Poller and the detectors it drives.
func New(deps Deps) *Poller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := deps.Settings

	dispatcher := dispatch.New(deps.Sink, deps.Store, dispatch.Options{
		BaseURL:         s.GitLab.URL,
		Location:        s.Location(),
		SinkTimeout:     s.Sink.Timeout,
		MaxSendAttempts: s.MaxSendAttempts,
		ShowLocalAlerts: s.ShowLocalAlerts,
		Now:             deps.Now,
	}, deps.Logger.Named("dispatch"))

	return &Poller{
		deps:   deps,
		holder: uuid.NewString(),
		comments: detect.NewCommentDetector(deps.Platform, deps.Store, dispatcher, detect.CommentOptions{
			Identity:        s.Identity,
			Projects:        s.MonitoredProjects,
			NotifyOwn:       s.NotifyOwnComments,
			SkipSystemNotes: s.SkipSystemNotes,
			MaxAge:          s.CommentMaxAge,
			BatchSize:       s.BatchSize,
		}, deps.Logger.Named("comments")),
		pipelines: detect.NewPipelineDetector(deps.Platform, deps.Store, dispatcher, detect.PipelineOptions{
			Identity: s.Identity,
			Projects: s.MonitoredProjects,
		}, deps.Logger.Named("pipelines")),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the worker goroutine. It returns immediately; the worker
// exits when ctx is cancelled or Stop is called. A stopped Poller may be
// started again.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stopCh, p.done
	p.mu.Unlock()

	go p.loop(ctx, stop, done)
}

// Stop halts the worker and waits for an in-flight cycle to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stop, done := p.stopCh, p.done
	p.mu.Unlock()

	close(stop)
	<-done
}

// Trigger requests an immediate cycle. It reports false when a request is
// already pending; the two are coalesced.
func (p *Poller) Trigger() bool {
	select {
	case p.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns whether a cycle is running and the last cycle result.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{Running: p.running}
	if p.last != nil {
		last := *p.last
		st.LastResult = &last
	}
	return st
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	p.sweepDedup(ctx)

	interval := p.deps.Settings.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	initial := time.NewTimer(p.deps.Settings.InitialDelay)
	defer initial.Stop()

	p.deps.Logger.Info("poller started",
		zap.Duration("interval", interval),
		zap.Duration("initial_delay", p.deps.Settings.InitialDelay),
		zap.Int("projects", len(p.deps.Settings.MonitoredProjects)),
	)

	for {
		select {
		case <-ctx.Done():
			p.deps.Logger.Info("poller stopped", zap.Error(ctx.Err()))
			return
		case <-stop:
			p.deps.Logger.Info("poller stopped")
			return
		case <-initial.C:
			p.runScheduled(ctx, "initial")
		case <-ticker.C:
			p.runScheduled(ctx, "interval")
		case <-p.triggerCh:
			p.runScheduled(ctx, "manual")
		}
	}
}

// sweepDedup drops dedup records past the retention window so a daemon
// restarted after a quiet period does not carry stale entries.
func (p *Poller) sweepDedup(ctx context.Context) {
	retention := p.deps.Settings.DedupRetention
	if retention <= 0 {
		return
	}
	removed, err := p.deps.Store.SweepDedup(ctx, p.deps.Now().Add(-retention))
	if err != nil {
		p.deps.Logger.Warn("failed to sweep dedup ledger", zap.Error(err))
		return
	}
	if removed > 0 {
		p.deps.Logger.Info("dedup ledger swept", zap.Int64("removed", removed))
	}
}

func (p *Poller) runScheduled(ctx context.Context, trigger string) {
	if _, err := p.RunCycle(ctx); err != nil {
		p.deps.Logger.Warn("poll cycle failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// RunCycle runs exactly one cycle: probe the platform, record the
// connection status, then run the enabled detectors with a shared start
// time. It returns ErrCycleInProgress if another cycle holds the worker or
// the store's cycle lease. Panics are recovered and reported as errors.
func (p *Poller) RunCycle(ctx context.Context) (res CycleResult, err error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		metrics.CyclesTotal.WithLabelValues("busy").Inc()
		return CycleResult{}, ErrCycleInProgress
	}
	p.running = true
	p.mu.Unlock()

	start := p.deps.Now()
	if err := p.acquireLease(ctx, start); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return CycleResult{}, err
	}
	res.Started = start

	defer func() {
		p.releaseLease(ctx)

		if r := recover(); r != nil {
			p.deps.Logger.Error("poll cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("poll cycle panicked: %v", r)
			p.recordFailure(ctx, start, res.Available, err)
		}

		res.Finished = p.deps.Now()
		if err != nil {
			res.Error = err.Error()
		}
		metrics.CycleDuration.Observe(res.Finished.Sub(start).Seconds())
		metrics.CyclesTotal.WithLabelValues(outcome(res, err)).Inc()

		p.mu.Lock()
		p.running = false
		last := res
		p.last = &last
		p.mu.Unlock()
	}()

	err = p.runCycle(ctx, start, &res)
	return res, err
}

func (p *Poller) acquireLease(ctx context.Context, now time.Time) error {
	ttl := p.deps.Settings.CycleLeaseTTL
	if ttl <= 0 {
		ttl = config.DefaultCycleLeaseTTL
	}
	ok, err := p.deps.Store.AcquireCycleLease(ctx, p.holder, now, ttl)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return err
	}
	if !ok {
		metrics.CyclesTotal.WithLabelValues("busy").Inc()
		p.deps.Logger.Info("another process holds the cycle lease, skipping")
		return ErrCycleInProgress
	}
	return nil
}

// releaseLease outlives ctx so a cancelled cycle still frees the lease.
func (p *Poller) releaseLease(ctx context.Context) {
	if err := p.deps.Store.ReleaseCycleLease(context.WithoutCancel(ctx), p.holder); err != nil {
		p.deps.Logger.Error("failed to release cycle lease", zap.Error(err))
	}
}

func (p *Poller) runCycle(ctx context.Context, start time.Time, res *CycleResult) error {
	s := p.deps.Settings
	log := p.deps.Logger

	if ok, reason := s.Ready(); !ok {
		res.Skipped = true
		res.Reason = reason
		log.Debug("poll cycle skipped", zap.String("reason", reason))
		return nil
	}

	avail := p.deps.Platform.CheckAvailability(ctx)
	res.Available = avail.Available
	if avail.Available {
		metrics.SourceAvailable.Set(1)
	} else {
		metrics.SourceAvailable.Set(0)
	}
	if err := p.deps.Store.SetConnectionStatus(ctx, model.ConnectionStatus{
		Available: avail.Available,
		LastCheck: start,
		Error:     avail.Reason,
	}); err != nil {
		log.Error("failed to record connection status", zap.Error(err))
	}
	if !avail.Available {
		res.Reason = avail.Reason
		log.Warn("gitlab unavailable, skipping cycle", zap.String("reason", avail.Reason))
		return nil
	}

	seeded, err := p.seed(ctx, start)
	if err != nil {
		log.Warn("failed to seed watermarks", zap.Error(err))
	}
	res.Seeded = seeded

	var errs []error
	if s.NotifyComments {
		rep, err := p.comments.Run(ctx, start)
		res.Comments = &rep
		if err != nil {
			errs = append(errs, p.streamFailed(model.StreamComments, err))
		} else {
			metrics.Watermark.WithLabelValues(string(model.StreamComments)).Set(float64(rep.Watermark.Unix()))
		}
	}
	if s.NotifyPipelines {
		rep, err := p.pipelines.Run(ctx, start)
		res.Pipelines = &rep
		if err != nil {
			errs = append(errs, p.streamFailed(model.StreamPipelines, err))
		} else {
			metrics.Watermark.WithLabelValues(string(model.StreamPipelines)).Set(float64(rep.Watermark.Unix()))
		}
	}

	if err := errors.Join(errs...); err != nil {
		p.recordFailure(ctx, start, true, err)
		return err
	}
	return nil
}

func (p *Poller) streamFailed(stream model.Stream, err error) error {
	metrics.StreamErrorsTotal.WithLabelValues(string(stream)).Inc()
	switch {
	case source.IsAuthError(err):
		p.deps.Logger.Error("gitlab rejected the token", zap.String("stream", string(stream)), zap.Error(err))
	case source.IsAPIError(err):
		p.deps.Logger.Warn("gitlab returned an error response", zap.String("stream", string(stream)), zap.Error(err))
	default:
		p.deps.Logger.Warn("stream failed", zap.String("stream", string(stream)), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", stream, err)
}

// recordFailure keeps the probe result but surfaces the cycle error in the
// connection status.
func (p *Poller) recordFailure(ctx context.Context, start time.Time, available bool, cycleErr error) {
	if err := p.deps.Store.SetConnectionStatus(ctx, model.ConnectionStatus{
		Available: available,
		LastCheck: start,
		Error:     cycleErr.Error(),
	}); err != nil {
		p.deps.Logger.Error("failed to record connection status", zap.Error(err))
	}
}

// seed sets both watermarks to now on a fresh install so old activity is
// not replayed. It runs at most once per Poller.
func (p *Poller) seed(ctx context.Context, now time.Time) (bool, error) {
	p.mu.Lock()
	done := p.seedDone
	p.seedDone = true
	p.mu.Unlock()

	if done || !p.deps.Settings.SeedWatermarksOnFirstRun {
		return false, nil
	}

	n, err := p.deps.Store.CountNotified(ctx)
	if err != nil {
		return false, fmt.Errorf("counting dedup records: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	streams := []model.Stream{model.StreamComments, model.StreamPipelines}
	for _, stream := range streams {
		wm, err := p.deps.Store.GetWatermark(ctx, stream)
		if err != nil {
			return false, fmt.Errorf("reading %s watermark: %w", stream, err)
		}
		if !wm.IsZero() {
			return false, nil
		}
	}

	for _, stream := range streams {
		if err := p.deps.Store.SetWatermark(ctx, stream, now); err != nil {
			return false, fmt.Errorf("seeding %s watermark: %w", stream, err)
		}
	}
	p.deps.Logger.Info("first run, watermarks seeded", zap.Time("at", now))
	return true, nil
}

func outcome(res CycleResult, err error) string {
	switch {
	case err != nil:
		return "failed"
	case res.Skipped:
		return "skipped"
	case !res.Available:
		return "unavailable"
	default:
		return "completed"
	}
}
