package gitlab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/review-notifier/internal/source"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter(srv.URL+"/", "secret", 2*time.Second)
}

func TestCheckAvailability_OK(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/version", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		w.Write([]byte(`{"version":"16.9.0","revision":"abc"}`))
	})

	got := a.CheckAvailability(context.Background())
	assert.True(t, got.Available)
	assert.Empty(t, got.Reason)
}

func TestCheckAvailability_HTTPStatus(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	got := a.CheckAvailability(context.Background())
	assert.False(t, got.Available)
	assert.Equal(t, "HTTP 502", got.Reason)
}

func TestCheckAvailability_Unauthorized(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	got := a.CheckAvailability(context.Background())
	assert.False(t, got.Available)
	assert.Equal(t, "HTTP 401", got.Reason)
}

func TestCheckAvailability_Timeout(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	a.probeTimeout = 50 * time.Millisecond

	start := time.Now()
	got := a.CheckAvailability(context.Background())
	assert.False(t, got.Available)
	assert.Contains(t, got.Reason, "timeout")
	assert.Less(t, time.Since(start), time.Second)
}

func TestCheckAvailability_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := NewAdapter(url, "t", time.Second).CheckAvailability(context.Background())
	assert.False(t, got.Available)
	assert.NotEmpty(t, got.Reason)
}

func TestListOpenMergeRequests(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/123/merge_requests", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "opened", q.Get("state"))
		assert.Equal(t, "updated_at", q.Get("order_by"))
		assert.Equal(t, "desc", q.Get("sort"))
		assert.Equal(t, "20", q.Get("per_page"))
		w.Write([]byte(`[{
			"id": 1001, "iid": 12, "project_id": 123, "title": "Add cache",
			"state": "opened", "web_url": "https://g/x/-/merge_requests/12",
			"source_branch": "PROJ-7-cache",
			"references": {"full": "group/app!12"},
			"author": {"id": 2, "username": "bob", "name": "Bob"},
			"assignee": null,
			"assignees": [{"id": 1, "username": "alice", "name": "Alice"}],
			"reviewers": [],
			"updated_at": "2024-03-01T10:00:00.000Z"
		}]`))
	})

	mrs, err := a.ListOpenMergeRequests(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, mrs, 1)

	mr := mrs[0]
	assert.Equal(t, int64(12), mr.IID)
	assert.Equal(t, "bob", mr.Author.Username)
	assert.Nil(t, mr.Assignee)
	require.Len(t, mr.Assignees, 1)
	assert.Equal(t, "alice", mr.Assignees[0].Username)
	assert.Equal(t, "group/app", mr.ProjectPath())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), mr.UpdatedAt.UTC())
}

func TestListPipelines_EscapesProjectPath(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/group%2Fapp/pipelines", r.URL.EscapedPath())
		w.Write([]byte(`[{"id": 9, "status": "failed", "ref": "main", "sha": "0123456789abcdef",
			"user": {"username": "alice", "name": "Alice"},
			"updated_at": "2024-03-01T10:00:00Z"}]`))
	})

	ps, err := a.ListPipelines(context.Background(), "group/app")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "failed", ps[0].Status)
	assert.Equal(t, "01234567", ps[0].ShortSHA())
	require.NotNil(t, ps[0].User)
	assert.Equal(t, "alice", ps[0].User.Username)
}

func TestListNotes(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects/123/merge_requests/12/notes", r.URL.Path)
		assert.Equal(t, "created_at", r.URL.Query().Get("order_by"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		w.Write([]byte(`[{"id": 501, "body": "LGTM", "system": false,
			"author": {"username": "carol", "name": "Carol"},
			"created_at": "2024-03-01T10:05:00Z"}]`))
	})

	notes, err := a.ListNotes(context.Background(), "123", 12)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "501", notes[0].ItemID())
	assert.Equal(t, "carol", notes[0].Author.Username)
}

func TestListParticipants_APIError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"404 Project Not Found"}`))
	})

	_, err := a.ListParticipants(context.Background(), "123", 12)
	require.Error(t, err)
	assert.True(t, source.IsAPIError(err))
	assert.Contains(t, err.Error(), "404 Project Not Found")
}

func TestCurrentUser_AuthError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := a.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}

func TestListMemberProjects(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/projects", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("membership"))
		w.Write([]byte(`[
			{"id": 1, "name": "app", "path_with_namespace": "group/app",
			 "namespace": {"kind": "group", "path": "group"},
			 "permissions": {"project_access": null, "group_access": {"access_level": 30}}},
			{"id": 2, "name": "dots", "path_with_namespace": "alice/dots",
			 "owner": {"username": "alice"},
			 "namespace": {"kind": "user", "path": "alice"},
			 "permissions": {"project_access": {"access_level": 50}}}
		]`))
	})

	ps, err := a.ListMemberProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, 30, ps[0].AccessLevel)
	assert.Empty(t, ps[0].NamespaceOwner)
	assert.Equal(t, "alice", ps[1].OwnerUsername)
	assert.Equal(t, "alice", ps[1].NamespaceOwner)
	assert.Equal(t, 50, ps[1].AccessLevel)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"message":"boom"}`)))
	assert.Equal(t, `{"title":["is too long"]}`, errorMessage([]byte(`{"message":{"title":["is too long"]}}`)))
	assert.Equal(t, "invalid_token", errorMessage([]byte(`{"error":"invalid_token"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n")))
}
