package testutil

import (
	"context"

	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/source"
)

// MockPlatform implements source.Platform with overridable function
// fields. Unset list functions return empty results.
type MockPlatform struct {
	CheckAvailabilityFunc     func(ctx context.Context) model.Availability
	CurrentUserFunc           func(ctx context.Context) (*model.User, error)
	ListOpenMergeRequestsFunc func(ctx context.Context, project string) ([]model.MergeRequest, error)
	ListParticipantsFunc      func(ctx context.Context, project string, iid int64) ([]model.User, error)
	ListNotesFunc             func(ctx context.Context, project string, iid int64) ([]model.Note, error)
	ListPipelinesFunc         func(ctx context.Context, project string) ([]model.Pipeline, error)
	ListMemberProjectsFunc    func(ctx context.Context) ([]model.Project, error)
}

var _ source.Platform = (*MockPlatform)(nil)

func (m *MockPlatform) CheckAvailability(ctx context.Context) model.Availability {
	if m.CheckAvailabilityFunc != nil {
		return m.CheckAvailabilityFunc(ctx)
	}
	return model.Availability{Available: true}
}

func (m *MockPlatform) CurrentUser(ctx context.Context) (*model.User, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx)
	}
	return &model.User{Username: "tester"}, nil
}

func (m *MockPlatform) ListOpenMergeRequests(ctx context.Context, project string) ([]model.MergeRequest, error) {
	if m.ListOpenMergeRequestsFunc != nil {
		return m.ListOpenMergeRequestsFunc(ctx, project)
	}
	return nil, nil
}

func (m *MockPlatform) ListParticipants(ctx context.Context, project string, iid int64) ([]model.User, error) {
	if m.ListParticipantsFunc != nil {
		return m.ListParticipantsFunc(ctx, project, iid)
	}
	return nil, nil
}

func (m *MockPlatform) ListNotes(ctx context.Context, project string, iid int64) ([]model.Note, error) {
	if m.ListNotesFunc != nil {
		return m.ListNotesFunc(ctx, project, iid)
	}
	return nil, nil
}

func (m *MockPlatform) ListPipelines(ctx context.Context, project string) ([]model.Pipeline, error) {
	if m.ListPipelinesFunc != nil {
		return m.ListPipelinesFunc(ctx, project)
	}
	return nil, nil
}

func (m *MockPlatform) ListMemberProjects(ctx context.Context) ([]model.Project, error) {
	if m.ListMemberProjectsFunc != nil {
		return m.ListMemberProjectsFunc(ctx)
	}
	return nil, nil
}
