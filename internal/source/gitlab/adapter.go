package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/source"
)

// ProbeTimeout bounds the availability probe.
const ProbeTimeout = 5 * time.Second

// Page sizes for first-page list calls.
const (
	mergeRequestPageSize = 20
	notePageSize         = 50
	pipelinePageSize     = 20
	projectPageSize      = 100
)

// Adapter implements source.Platform for GitLab.
type Adapter struct {
	client       *Client
	baseURL      string
	probeTimeout time.Duration
}

var _ source.Platform = (*Adapter)(nil)

// NewAdapter creates a new GitLab platform adapter.
func NewAdapter(baseURL, token string, requestTimeout time.Duration) *Adapter {
	c := NewClient(baseURL, token, requestTimeout)
	return &Adapter{
		client:       c,
		baseURL:      c.baseURL,
		probeTimeout: ProbeTimeout,
	}
}

// BaseURL returns the instance root URL without a trailing slash.
func (a *Adapter) BaseURL() string {
	return a.baseURL
}

// CheckAvailability calls /version with a hard timeout.
func (a *Adapter) CheckAvailability(ctx context.Context) model.Availability {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	var v Version
	if err := a.client.Get(ctx, "/version", nil, &v); err != nil {
		return model.Availability{Available: false, Reason: unavailableReason(err)}
	}
	return model.Availability{Available: true}
}

func unavailableReason(err error) string {
	var (
		apiErr *source.APIError
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return "timeout: check VPN connection"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("HTTP %d", apiErr.StatusCode)
	case source.IsAuthError(err):
		return fmt.Sprintf("HTTP %d", 401)
	default:
		return err.Error()
	}
}

// CurrentUser returns the owner of the configured token.
func (a *Adapter) CurrentUser(ctx context.Context) (*model.User, error) {
	var u User
	if err := a.client.Get(ctx, "/user", nil, &u); err != nil {
		return nil, fmt.Errorf("validating GitLab connection: %w", err)
	}
	user := toUser(u)
	return &user, nil
}

// ListOpenMergeRequests returns the first page of open merge requests,
// most recently updated first.
func (a *Adapter) ListOpenMergeRequests(ctx context.Context, project string) ([]model.MergeRequest, error) {
	q := url.Values{}
	q.Set("state", "opened")
	q.Set("order_by", "updated_at")
	q.Set("sort", "desc")
	q.Set("per_page", strconv.Itoa(mergeRequestPageSize))

	var mrs []MergeRequest
	if err := a.client.Get(ctx, projectPath(project)+"/merge_requests", q, &mrs); err != nil {
		return nil, fmt.Errorf("listing merge requests for project %s: %w", project, err)
	}

	out := make([]model.MergeRequest, 0, len(mrs))
	for _, mr := range mrs {
		out = append(out, toMergeRequest(mr))
	}
	return out, nil
}

// ListParticipants returns everyone who took part in a merge request.
func (a *Adapter) ListParticipants(ctx context.Context, project string, iid int64) ([]model.User, error) {
	path := fmt.Sprintf("%s/merge_requests/%d/participants", projectPath(project), iid)

	var users []User
	if err := a.client.Get(ctx, path, nil, &users); err != nil {
		return nil, fmt.Errorf("listing participants of !%d in project %s: %w", iid, project, err)
	}
	return toUsers(users), nil
}

// ListNotes returns the first page of notes, newest first.
func (a *Adapter) ListNotes(ctx context.Context, project string, iid int64) ([]model.Note, error) {
	path := fmt.Sprintf("%s/merge_requests/%d/notes", projectPath(project), iid)
	q := url.Values{}
	q.Set("order_by", "created_at")
	q.Set("sort", "desc")
	q.Set("per_page", strconv.Itoa(notePageSize))

	var notes []Note
	if err := a.client.Get(ctx, path, q, &notes); err != nil {
		return nil, fmt.Errorf("listing notes of !%d in project %s: %w", iid, project, err)
	}

	out := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, model.Note{
			ID:        n.ID,
			Body:      n.Body,
			Author:    toUser(n.Author),
			System:    n.System,
			CreatedAt: n.CreatedAt,
		})
	}
	return out, nil
}

// ListPipelines returns the first page of pipelines, most recently
// updated first.
func (a *Adapter) ListPipelines(ctx context.Context, project string) ([]model.Pipeline, error) {
	q := url.Values{}
	q.Set("order_by", "updated_at")
	q.Set("sort", "desc")
	q.Set("per_page", strconv.Itoa(pipelinePageSize))

	var pipelines []Pipeline
	if err := a.client.Get(ctx, projectPath(project)+"/pipelines", q, &pipelines); err != nil {
		return nil, fmt.Errorf("listing pipelines for project %s: %w", project, err)
	}

	out := make([]model.Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		mp := model.Pipeline{
			ID:        p.ID,
			ProjectID: p.ProjectID,
			Status:    p.Status,
			Ref:       p.Ref,
			SHA:       p.SHA,
			Source:    p.Source,
			WebURL:    p.WebURL,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
		if p.User != nil {
			u := toUser(*p.User)
			mp.User = &u
		}
		out = append(out, mp)
	}
	return out, nil
}

// ListMemberProjects returns the first page of projects the token owner
// is a member of, most recently active first.
func (a *Adapter) ListMemberProjects(ctx context.Context) ([]model.Project, error) {
	q := url.Values{}
	q.Set("membership", "true")
	q.Set("order_by", "last_activity_at")
	q.Set("sort", "desc")
	q.Set("per_page", strconv.Itoa(projectPageSize))

	var projects []Project
	if err := a.client.Get(ctx, "/projects", q, &projects); err != nil {
		return nil, fmt.Errorf("listing member projects: %w", err)
	}

	out := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		mp := model.Project{
			ID:                p.ID,
			Name:              p.Name,
			PathWithNamespace: p.PathWithNamespace,
			WebURL:            p.WebURL,
		}
		if p.Owner != nil {
			mp.OwnerUsername = p.Owner.Username
		}
		if p.Namespace.Kind == "user" {
			mp.NamespaceOwner = p.Namespace.Path
		}
		if p.Permissions != nil {
			if p.Permissions.ProjectAccess != nil {
				mp.AccessLevel = p.Permissions.ProjectAccess.AccessLevel
			}
			if p.Permissions.GroupAccess != nil && p.Permissions.GroupAccess.AccessLevel > mp.AccessLevel {
				mp.AccessLevel = p.Permissions.GroupAccess.AccessLevel
			}
		}
		out = append(out, mp)
	}
	return out, nil
}

func toUser(u User) model.User {
	return model.User{ID: u.ID, Username: u.Username, Name: u.Name}
}

func toUsers(users []User) []model.User {
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		out = append(out, toUser(u))
	}
	return out
}

func toMergeRequest(mr MergeRequest) model.MergeRequest {
	out := model.MergeRequest{
		ID:           mr.ID,
		IID:          mr.IID,
		ProjectID:    mr.ProjectID,
		Title:        mr.Title,
		Description:  mr.Description,
		State:        mr.State,
		WebURL:       mr.WebURL,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		Reference:    mr.References.Full,
		Author:       toUser(mr.Author),
		Assignees:    toUsers(mr.Assignees),
		Reviewers:    toUsers(mr.Reviewers),
		CreatedAt:    mr.CreatedAt,
		UpdatedAt:    mr.UpdatedAt,
	}
	if mr.Assignee != nil {
		u := toUser(*mr.Assignee)
		out.Assignee = &u
	}
	return out
}
