package detect

import (
	"context"
	"errors"
	"strings"
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

var (
	t0    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	alice = model.User{ID: 1, Username: "alice", Name: "Alice"}
	bob   = model.User{ID: 2, Username: "bob", Name: "Bob"}
	carol = model.User{ID: 3, Username: "carol", Name: "Carol"}
)

type commentFixture struct {
	platform *testutil.MockPlatform
	sink     *testutil.RecordingSink
	store    *store.SQLiteStore
	detector *CommentDetector
}

func newCommentFixture(t *testing.T, opts CommentOptions, mrs []model.MergeRequest, notes map[int64][]model.Note) *commentFixture {
	t.Helper()
	f := &commentFixture{
		platform: &testutil.MockPlatform{
			ListOpenMergeRequestsFunc: func(context.Context, string) ([]model.MergeRequest, error) {
				return mrs, nil
			},
			ListNotesFunc: func(_ context.Context, _ string, iid int64) ([]model.Note, error) {
				return notes[iid], nil
			},
		},
		sink:  &testutil.RecordingSink{},
		store: testutil.NewTestStore(t),
	}
	if opts.Projects == nil {
		opts.Projects = []string{"123"}
	}
	d := dispatch.New(f.sink, f.store, dispatch.Options{Location: time.UTC, MaxSendAttempts: 5}, zap.NewNop())
	f.detector = NewCommentDetector(f.platform, f.store, d, opts, zap.NewNop())
	return f
}

func (f *commentFixture) setWatermark(t *testing.T, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.SetWatermark(context.Background(), model.StreamComments, at))
}

func (f *commentFixture) watermark(t *testing.T) time.Time {
	t.Helper()
	wm, err := f.store.GetWatermark(context.Background(), model.StreamComments)
	require.NoError(t, err)
	return wm
}

func TestCommentDetector_EndToEnd(t *testing.T) {
	ctx := context.Background()
	mr := model.MergeRequest{
		IID: 12, Title: "Add cache", State: "opened", Reference: "group/app!12",
		Author: bob, Reviewers: []model.User{alice},
	}
	note := model.Note{ID: 501, Body: strings.Repeat("x", 400), Author: carol, CreatedAt: t0.Add(time.Hour)}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, map[int64][]model.Note{12: {note}})
	f.setWatermark(t, t0)

	now := t0.Add(90 * time.Minute)
	rep, err := f.detector.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)

	sent := f.sink.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "<i>"+strings.Repeat("x", 300)+"...</i>")
	assert.NotContains(t, sent[0].Body, strings.Repeat("x", 301))

	ok, err := f.store.IsNotified(ctx, "501")
	require.NoError(t, err)
	assert.True(t, ok)

	unread, err := f.store.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	assert.True(t, f.watermark(t).Equal(now))
	assert.False(t, f.watermark(t).Before(note.CreatedAt))
}

func TestCommentDetector_Idempotent(t *testing.T) {
	ctx := context.Background()
	mr := model.MergeRequest{IID: 1, Author: alice}
	notes := map[int64][]model.Note{1: {
		{ID: 10, Body: "a", Author: bob, CreatedAt: t0.Add(time.Minute)},
		{ID: 11, Body: "b", Author: carol, CreatedAt: t0.Add(2 * time.Minute)},
	}}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, notes)
	f.setWatermark(t, t0)

	_, err := f.detector.Run(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, f.sink.Sent(), 2)

	rep, err := f.detector.Run(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, rep.Notified)
	assert.Len(t, f.sink.Sent(), 2)

	require.NoError(t, f.store.SetWatermark(ctx, model.StreamComments, t0)) // rewinding is ignored
	rep, err = f.detector.Run(ctx, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, rep.Notified)
}

func TestCommentDetector_DedupWithoutWatermark(t *testing.T) {
	ctx := context.Background()
	mr := model.MergeRequest{IID: 1, Author: alice}
	now := t0.Add(time.Hour)
	notes := map[int64][]model.Note{1: {{ID: 10, Author: bob, CreatedAt: t0}}}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, notes)
	require.NoError(t, f.store.MarkNotified(ctx, "10", t0))

	rep, err := f.detector.Run(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, rep.Notified)
	assert.Equal(t, 0, f.sink.Attempts())
}

func TestCommentDetector_AgeWindow(t *testing.T) {
	ctx := context.Background()
	now := t0.Add(30 * 24 * time.Hour)
	mr := model.MergeRequest{IID: 1, Author: alice}
	notes := map[int64][]model.Note{1: {
		{ID: 1, Author: bob, CreatedAt: now.Add(-7*24*time.Hour - time.Second)},
		{ID: 2, Author: bob, CreatedAt: now.Add(-7 * 24 * time.Hour)},
		{ID: 3, Author: bob, CreatedAt: now.Add(-time.Hour)},
	}}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, notes)

	rep, err := f.detector.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Notified)

	for id, want := range map[string]bool{"1": false, "2": true, "3": true} {
		ok, err := f.store.IsNotified(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "note %s", id)
	}
}

func TestCommentDetector_OwnComments(t *testing.T) {
	mr := model.MergeRequest{IID: 1, Author: bob, Assignee: &alice}
	notes := map[int64][]model.Note{1: {
		{ID: 1, Author: alice, CreatedAt: t0.Add(time.Minute)},
		{ID: 2, Author: bob, CreatedAt: t0.Add(time.Minute)},
	}}

	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, notes)
	f.setWatermark(t, t0)
	rep, err := f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)

	f = newCommentFixture(t, CommentOptions{Identity: "alice", NotifyOwn: true}, []model.MergeRequest{mr}, notes)
	f.setWatermark(t, t0)
	rep, err = f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Notified)
}

func TestCommentDetector_SystemNotes(t *testing.T) {
	mr := model.MergeRequest{IID: 1, Author: alice}
	notes := map[int64][]model.Note{1: {
		{ID: 1, Body: "added 1 commit", System: true, Author: bob, CreatedAt: t0.Add(time.Minute)},
		{ID: 2, Body: "nice", Author: bob, CreatedAt: t0.Add(time.Minute)},
	}}

	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, notes)
	f.setWatermark(t, t0)
	rep, err := f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Notified)

	f = newCommentFixture(t, CommentOptions{Identity: "alice", SkipSystemNotes: true}, []model.MergeRequest{mr}, notes)
	f.setWatermark(t, t0)
	rep, err = f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)
}

func TestCommentDetector_RelevanceTierTwo(t *testing.T) {
	mrs := []model.MergeRequest{
		{IID: 1, Author: bob},
		{IID: 2, Author: carol},
	}
	notes := map[int64][]model.Note{
		1: {{ID: 10, Author: bob, CreatedAt: t0.Add(time.Minute)}},
		2: {{ID: 20, Author: carol, CreatedAt: t0.Add(time.Minute)}},
	}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, mrs, notes)
	f.platform.ListParticipantsFunc = func(_ context.Context, _ string, iid int64) ([]model.User, error) {
		if iid == 1 {
			return []model.User{bob, alice}, nil
		}
		return nil, errors.New("HTTP 500")
	}
	f.setWatermark(t, t0)

	rep, err := f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Relevant)
	assert.Equal(t, 1, rep.Notified)

	ok, err := f.store.IsNotified(context.Background(), "10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommentDetector_ListErrorKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	mr := model.MergeRequest{IID: 1, Author: alice}
	notes := map[int64][]model.Note{1: {{ID: 10, Author: bob, CreatedAt: t0.Add(time.Minute)}}}
	f := newCommentFixture(t, CommentOptions{Identity: "alice", Projects: []string{"ok", "broken"}}, []model.MergeRequest{mr}, notes)
	f.platform.ListOpenMergeRequestsFunc = func(_ context.Context, project string) ([]model.MergeRequest, error) {
		if project == "broken" {
			return nil, errors.New("HTTP 502")
		}
		return []model.MergeRequest{mr}, nil
	}
	f.setWatermark(t, t0)

	rep, err := f.detector.Run(ctx, t0.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, 1, rep.Notified, "items dispatched before the abort stand")
	assert.True(t, f.watermark(t).Equal(t0))

	ok, err := f.store.IsNotified(ctx, "10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommentDetector_NotesErrorKeepsWatermark(t *testing.T) {
	mr := model.MergeRequest{IID: 1, Author: alice}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, nil)
	f.platform.ListNotesFunc = func(context.Context, string, int64) ([]model.Note, error) {
		return nil, errors.New("timeout")
	}
	f.setWatermark(t, t0)

	_, err := f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, f.watermark(t).Equal(t0))
}

func TestCommentDetector_FailedSendRetriedDespiteWatermark(t *testing.T) {
	ctx := context.Background()
	mr := model.MergeRequest{IID: 1, Author: alice}
	notes := map[int64][]model.Note{1: {{ID: 10, Author: bob, CreatedAt: t0.Add(time.Minute)}}}
	f := newCommentFixture(t, CommentOptions{Identity: "alice"}, []model.MergeRequest{mr}, notes)
	fail := true
	f.sink.SendFunc = func(ctx context.Context, _ sink.Message) error {
		if fail {
			return errors.New("telegram down")
		}
		return nil
	}
	f.setWatermark(t, t0)

	rep, err := f.detector.Run(ctx, t0.Add(time.Hour))
	require.NoError(t, err, "send failures are item-level")
	assert.Equal(t, 1, rep.Failed)
	assert.True(t, f.watermark(t).Equal(t0.Add(time.Hour)))

	fail = false
	rep, err = f.detector.Run(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)
	assert.Len(t, f.sink.Sent(), 1)

	rep, err = f.detector.Run(ctx, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, rep.Candidates)
}

func TestCommentDetector_EmptyIdentity(t *testing.T) {
	mr := model.MergeRequest{IID: 1, Author: bob}
	notes := map[int64][]model.Note{1: {{ID: 10, Author: carol, CreatedAt: t0.Add(time.Minute)}}}
	f := newCommentFixture(t, CommentOptions{}, []model.MergeRequest{mr}, notes)
	f.platform.ListParticipantsFunc = func(context.Context, string, int64) ([]model.User, error) {
		t.Fatal("participants must not be fetched")
		return nil, nil
	}
	f.setWatermark(t, t0)

	rep, err := f.detector.Run(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notified)
}
