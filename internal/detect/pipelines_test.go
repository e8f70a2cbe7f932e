package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/dispatch"
	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/sink"
	"github.com/nhle/review-notifier/internal/store"
	"github.com/nhle/review-notifier/internal/testutil"
)

type pipelineFixture struct {
	pipelines []model.Pipeline
	platform  *testutil.MockPlatform
	sink      *testutil.RecordingSink
	store     *store.SQLiteStore
	detector  *PipelineDetector
}

func newPipelineFixture(t *testing.T, identity string, maxAttempts int) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		sink:  &testutil.RecordingSink{},
		store: testutil.NewTestStore(t),
	}
	f.platform = &testutil.MockPlatform{
		ListPipelinesFunc: func(context.Context, string) ([]model.Pipeline, error) {
			return f.pipelines, nil
		},
	}
	d := dispatch.New(f.sink, f.store, dispatch.Options{Location: time.UTC, MaxSendAttempts: maxAttempts}, zap.NewNop())
	f.detector = NewPipelineDetector(f.platform, f.store, d, PipelineOptions{
		Identity: identity,
		Projects: []string{"123"},
	}, zap.NewNop())
	return f
}

func (f *pipelineFixture) observe(status string, updated time.Time) {
	f.pipelines = []model.Pipeline{{ID: 9, Status: status, Ref: "main", User: &alice, UpdatedAt: updated}}
}

func (f *pipelineFixture) status(t *testing.T) string {
	t.Helper()
	s, ok, err := f.store.GetPipelineStatus(context.Background(), "123_9")
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func TestPipelineDetector_TransitionRule(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "alice", 5)

	f.observe(model.PipelineSuccess, t0.Add(time.Minute))
	rep, err := f.detector.Run(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Baselined)
	assert.Zero(t, rep.Notified)

	f.observe(model.PipelineSuccess, t0.Add(3*time.Minute))
	rep, err = f.detector.Run(ctx, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, rep.Notified)

	f.observe(model.PipelineFailed, t0.Add(5*time.Minute))
	rep, err = f.detector.Run(ctx, t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)

	sent := f.sink.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Pipeline: FAILED")
	assert.Contains(t, sent[0].Body, "Previous status:</b> success")
	assert.Equal(t, model.PipelineFailed, f.status(t))

	wm, err := f.store.GetWatermark(ctx, model.StreamPipelines)
	require.NoError(t, err)
	assert.True(t, wm.Equal(t0.Add(6*time.Minute)))
}

func TestPipelineDetector_IgnoresNonTerminalAndStale(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "alice", 5)
	require.NoError(t, f.store.SetWatermark(ctx, model.StreamPipelines, t0))

	f.pipelines = []model.Pipeline{
		{ID: 1, Status: "running", User: &alice, UpdatedAt: t0.Add(time.Minute)},
		{ID: 2, Status: model.PipelineFailed, User: &alice, UpdatedAt: t0.Add(-time.Minute)},
		{ID: 3, Status: model.PipelineCanceled, User: &alice, UpdatedAt: t0},
	}
	rep, err := f.detector.Run(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, rep.Items)

	for _, key := range []string{"123_1", "123_2", "123_3"} {
		_, ok, err := f.store.GetPipelineStatus(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestPipelineDetector_OnlyIdentityTriggered(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "alice", 5)
	f.pipelines = []model.Pipeline{
		{ID: 1, Status: model.PipelineFailed, User: &bob, UpdatedAt: t0},
		{ID: 2, Status: model.PipelineFailed, UpdatedAt: t0},
	}

	rep, err := f.detector.Run(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Items)
	assert.Zero(t, rep.Relevant)
}

func TestPipelineDetector_SendFailureKeepsOldRecord(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "alice", 5)
	fail := true
	f.sink.SendFunc = func(context.Context, sink.Message) error {
		if fail {
			return errors.New("telegram down")
		}
		return nil
	}

	f.observe(model.PipelineSuccess, t0.Add(time.Minute))
	_, err := f.detector.Run(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)

	f.observe(model.PipelineFailed, t0.Add(3*time.Minute))
	rep, err := f.detector.Run(ctx, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, model.PipelineSuccess, f.status(t), "transition must be seen again")

	// Pipeline unchanged and now behind the watermark; the retry ledger
	// brings it back.
	fail = false
	rep, err = f.detector.Run(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)
	assert.Equal(t, model.PipelineFailed, f.status(t))
	assert.Len(t, f.sink.Sent(), 1)
}

func TestPipelineDetector_AbandonedTransitionIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "alice", 1)
	f.sink.SendFunc = func(context.Context, sink.Message) error { return errors.New("down") }

	f.observe(model.PipelineSuccess, t0.Add(time.Minute))
	_, err := f.detector.Run(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)

	f.observe(model.PipelineCanceled, t0.Add(3*time.Minute))
	rep, err := f.detector.Run(ctx, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, model.PipelineCanceled, f.status(t))

	pending, err := f.store.PendingRetries(ctx, model.KindPipeline)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPipelineDetector_ListErrorKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "alice", 5)
	f.platform.ListPipelinesFunc = func(context.Context, string) ([]model.Pipeline, error) {
		return nil, errors.New("HTTP 500")
	}
	require.NoError(t, f.store.SetWatermark(ctx, model.StreamPipelines, t0))

	_, err := f.detector.Run(ctx, t0.Add(time.Hour))
	require.Error(t, err)

	wm, err := f.store.GetWatermark(ctx, model.StreamPipelines)
	require.NoError(t, err)
	assert.True(t, wm.Equal(t0))
}
