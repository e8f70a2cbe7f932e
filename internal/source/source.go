package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/review-notifier/internal/model"
)

// AuthError indicates that authentication has failed or expired for a
// platform. It is returned by clients when a 401 response is received.
type AuthError struct {
	Platform string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Platform, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// APIError is a non-success response from the platform API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// IsAPIError reports whether err (or any error in its chain) is an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Platform is the read-only view of the remote collaboration platform.
// Every list call returns the first page only.
type Platform interface {
	// CheckAvailability probes the platform. It never returns an error;
	// failures are reported in the Availability reason.
	CheckAvailability(ctx context.Context) model.Availability

	// CurrentUser validates the token and returns its owner.
	CurrentUser(ctx context.Context) (*model.User, error)

	ListOpenMergeRequests(ctx context.Context, project string) ([]model.MergeRequest, error)
	ListParticipants(ctx context.Context, project string, iid int64) ([]model.User, error)
	ListNotes(ctx context.Context, project string, iid int64) ([]model.Note, error)
	ListPipelines(ctx context.Context, project string) ([]model.Pipeline, error)

	// ListMemberProjects returns projects the token owner is a member of.
	ListMemberProjects(ctx context.Context) ([]model.Project, error)
}
