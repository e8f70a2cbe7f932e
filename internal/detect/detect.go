package detect

import (
	"context"
	"time"

	"github.com/nhle/review-notifier/internal/model"
)

// DefaultCommentMaxAge is the oldest comment still worth reporting.
const DefaultCommentMaxAge = 7 * 24 * time.Hour

// Source lists the platform items both detectors inspect.
type Source interface {
	ListOpenMergeRequests(ctx context.Context, project string) ([]model.MergeRequest, error)
	ListParticipants(ctx context.Context, project string, iid int64) ([]model.User, error)
	ListNotes(ctx context.Context, project string, iid int64) ([]model.Note, error)
	ListPipelines(ctx context.Context, project string) ([]model.Pipeline, error)
}

// Store is the state the detectors read and the watermarks they own.
type Store interface {
	GetWatermark(ctx context.Context, stream model.Stream) (time.Time, error)
	SetWatermark(ctx context.Context, stream model.Stream, at time.Time) error
	IsNotified(ctx context.Context, itemID string) (bool, error)
	GetPipelineStatus(ctx context.Context, key string) (string, bool, error)
	SetPipelineStatus(ctx context.Context, key, status string, at time.Time) error
	PendingRetries(ctx context.Context, kind model.ChangeKind) (map[string]int, error)
	ClearSendFailure(ctx context.Context, itemID string) error
}

// Report summarises one stream's cycle.
type Report struct {
	Stream   model.Stream `json:"stream"`
	Projects int          `json:"projects"`
	// Items counts merge requests or terminal pipelines inspected.
	Items      int `json:"items"`
	Relevant   int `json:"relevant"`
	Candidates int `json:"candidates"`
	Notified   int `json:"notified"`
	Failed     int `json:"failed"`
	Baselined  int `json:"baselined"`
	// Watermark is the new checkpoint; zero when it did not advance.
	Watermark time.Time `json:"watermark"`
}
