package relevance

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/review-notifier/internal/metrics"
	"github.com/nhle/review-notifier/internal/model"
)

// DefaultBatchSize bounds concurrent participant lookups.
const DefaultBatchSize = 10

// Verdict is the outcome of the cheap first-tier check.
type Verdict int

const (
	// NeedsDeeperCheck means only the participant list can decide.
	NeedsDeeperCheck Verdict = iota
	// Relevant means the item concerns the identity.
	Relevant
)

// Classify decides relevance from the fields already present on the merge
// request. An empty identity makes every item relevant.
func Classify(mr model.MergeRequest, identity string) Verdict {
	if identity == "" {
		return Relevant
	}
	if mr.Author.Username == identity {
		return Relevant
	}
	if mr.Assignee != nil && mr.Assignee.Username == identity {
		return Relevant
	}
	if containsUser(mr.Assignees, identity) || containsUser(mr.Reviewers, identity) {
		return Relevant
	}
	return NeedsDeeperCheck
}

// PipelineRelevant reports whether identity triggered the pipeline.
func PipelineRelevant(p model.Pipeline, identity string) bool {
	if identity == "" {
		return true
	}
	return p.User != nil && p.User.Username == identity
}

func containsUser(users []model.User, username string) bool {
	for _, u := range users {
		if u.Username == username {
			return true
		}
	}
	return false
}

// ParticipantLister fetches the participants of a merge request.
type ParticipantLister interface {
	ListParticipants(ctx context.Context, project string, iid int64) ([]model.User, error)
}

// Filter applies both relevance tiers.
type Filter struct {
	participants ParticipantLister
	identity     string
	batchSize    int
	logger       *zap.Logger
}

// NewFilter creates a relevance filter for one identity.
func NewFilter(participants ParticipantLister, identity string, batchSize int, logger *zap.Logger) *Filter {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Filter{
		participants: participants,
		identity:     identity,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// IsRelevant runs tier one and, when undecided, the participant lookup.
// A lookup failure makes the item irrelevant for this cycle.
func (f *Filter) IsRelevant(ctx context.Context, project string, mr model.MergeRequest) bool {
	if Classify(mr, f.identity) == Relevant {
		return true
	}

	users, err := f.participants.ListParticipants(ctx, project, mr.IID)
	if err != nil {
		metrics.ParticipantLookupErrors.Inc()
		f.logger.Warn("participant lookup failed, treating merge request as irrelevant",
			zap.String("project", project),
			zap.Int64("iid", mr.IID),
			zap.Error(err),
		)
		return false
	}
	return containsUser(users, f.identity)
}

// Partition returns the relevant merge requests in their original order.
// At most batchSize participant lookups run at once.
func (f *Filter) Partition(ctx context.Context, project string, mrs []model.MergeRequest) []model.MergeRequest {
	keep := make([]bool, len(mrs))

	var g errgroup.Group
	g.SetLimit(f.batchSize)
	for i, mr := range mrs {
		if Classify(mr, f.identity) == Relevant {
			keep[i] = true
			continue
		}
		g.Go(func() error {
			keep[i] = f.IsRelevant(ctx, project, mr)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.MergeRequest, 0, len(mrs))
	for i, mr := range mrs {
		if keep[i] {
			out = append(out, mr)
		}
	}
	return out
}
