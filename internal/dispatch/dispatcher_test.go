package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/sink"
	"github.com/nhle/review-notifier/internal/store"
	"github.com/nhle/review-notifier/internal/testutil"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, s sink.Sink, maxAttempts int) (*Dispatcher, *store.SQLiteStore) {
	t.Helper()
	st := testutil.NewTestStore(t)
	d := New(s, st, Options{
		Location:        time.UTC,
		MaxSendAttempts: maxAttempts,
		Now:             func() time.Time { return fixedNow },
	}, zap.NewNop())
	return d, st
}

func failingSink() *testutil.RecordingSink {
	return &testutil.RecordingSink{SendFunc: func(context.Context, sink.Message) error {
		return &sink.Error{Sink: "recording", StatusCode: 400, Description: "chat not found"}
	}}
}

func TestDispatchComment_Success(t *testing.T) {
	ctx := context.Background()
	rs := &testutil.RecordingSink{}
	d, st := newTestDispatcher(t, rs, 5)

	err := d.DispatchComment(ctx, "123", sampleMR(), model.Note{ID: 501, Body: "hi", Author: model.User{Name: "Carol"}})
	require.NoError(t, err)
	require.Len(t, rs.Sent(), 1)

	ok, err := st.IsNotified(ctx, "501")
	require.NoError(t, err)
	assert.True(t, ok)

	unread, err := st.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	log, err := st.RecentNotifications(ctx, 5)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "501", log[0].ItemID)
	assert.Equal(t, model.KindComment, log[0].Kind)
	assert.Equal(t, "123", log[0].Project)
}

func TestDispatchComment_FailureLeavesNoDedup(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t, failingSink(), 5)

	err := d.DispatchComment(ctx, "123", sampleMR(), model.Note{ID: 501})
	require.Error(t, err)
	assert.True(t, sink.IsSinkError(err))
	assert.False(t, errors.Is(err, ErrAbandoned))

	ok, err := st.IsNotified(ctx, "501")
	require.NoError(t, err)
	assert.False(t, ok)

	unread, err := st.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)

	pending, err := st.PendingRetries(ctx, model.KindComment)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"501": 1}, pending)
}

func TestDispatchComment_AbandonAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	d, st := newTestDispatcher(t, failingSink(), 2)
	note := model.Note{ID: 501}

	err := d.DispatchComment(ctx, "123", sampleMR(), note)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAbandoned))

	err = d.DispatchComment(ctx, "123", sampleMR(), note)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAbandoned))
	assert.True(t, sink.IsSinkError(err))

	ok, err := st.IsNotified(ctx, "501")
	require.NoError(t, err)
	assert.True(t, ok, "abandoned comments are marked so they are not offered again")

	pending, err := st.PendingRetries(ctx, model.KindComment)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatchPipeline_SuccessClearsRetry(t *testing.T) {
	ctx := context.Background()
	fail := true
	rs := &testutil.RecordingSink{SendFunc: func(context.Context, sink.Message) error {
		if fail {
			return errors.New("timeout")
		}
		return nil
	}}
	d, st := newTestDispatcher(t, rs, 0)
	p := model.Pipeline{ID: 9, Status: model.PipelineFailed}

	require.Error(t, d.DispatchPipeline(ctx, "123", p, model.PipelineSuccess))
	pending, err := st.PendingRetries(ctx, model.KindPipeline)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"123_9": 1}, pending)

	fail = false
	require.NoError(t, d.DispatchPipeline(ctx, "123", p, model.PipelineSuccess))
	pending, err = st.PendingRetries(ctx, model.KindPipeline)
	require.NoError(t, err)
	assert.Empty(t, pending)

	ok, err := st.IsNotified(ctx, "123_9")
	require.NoError(t, err)
	assert.False(t, ok, "pipelines use the status ledger, not dedup")

	unread, err := st.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestDispatch_SinkTimeout(t *testing.T) {
	rs := &testutil.RecordingSink{SendFunc: func(ctx context.Context, _ sink.Message) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	st := testutil.NewTestStore(t)
	d := New(rs, st, Options{SinkTimeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	err := d.DispatchPipeline(context.Background(), "1", model.Pipeline{ID: 1, Status: "success"}, "failed")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}
