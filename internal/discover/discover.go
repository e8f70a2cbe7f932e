// Package discover finds member projects related to the configured
// identity, for seeding monitored_projects.
package discover

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/relevance"
)

// Limits on how much of each project is inspected.
const (
	MaxMergeRequests     = 20
	MaxParticipantChecks = 5
)

// Reasons a project is considered related.
const (
	ReasonNoIdentity   = "no identity configured"
	ReasonOwner        = "owner"
	ReasonNamespace    = "personal namespace"
	ReasonMaintainer   = "maintainer access"
	ReasonMergeRequest = "merge request author, assignee or reviewer"
	ReasonParticipant  = "merge request participant"
)

// Platform is what discovery needs from the remote platform.
type Platform interface {
	ListMemberProjects(ctx context.Context) ([]model.Project, error)
	ListOpenMergeRequests(ctx context.Context, project string) ([]model.MergeRequest, error)
	ListParticipants(ctx context.Context, project string, iid int64) ([]model.User, error)
}

// Candidate is a member project with its relation to the identity.
type Candidate struct {
	Project   model.Project
	Related   bool
	Reason    string
	Monitored bool
	// Err is set when the project's merge requests could not be listed.
	Err error
}

// ID returns the project id in the form monitored_projects uses.
func (c Candidate) ID() string {
	return strconv.FormatInt(c.Project.ID, 10)
}

// Discoverer classifies member projects.
type Discoverer struct {
	platform  Platform
	identity  string
	batchSize int
	logger    *zap.Logger
}

// New creates a Discoverer. Projects are inspected batchSize at a time.
func New(p Platform, identity string, batchSize int, logger *zap.Logger) *Discoverer {
	if batchSize < 1 {
		batchSize = relevance.DefaultBatchSize
	}
	return &Discoverer{platform: p, identity: identity, batchSize: batchSize, logger: logger}
}

// Discover lists member projects and classifies each one, keeping the
// platform's order. monitored marks projects already configured, by id or
// full path.
func (d *Discoverer) Discover(ctx context.Context, monitored []string) ([]Candidate, error) {
	projects, err := d.platform.ListMemberProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering projects: %w", err)
	}

	known := make(map[string]bool, len(monitored))
	for _, m := range monitored {
		known[m] = true
	}

	out := make([]Candidate, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.batchSize)
	for i, p := range projects {
		out[i] = Candidate{
			Project:   p,
			Monitored: known[strconv.FormatInt(p.ID, 10)] || known[p.PathWithNamespace],
		}
		g.Go(func() error {
			d.classify(gctx, &out[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	related := 0
	for _, c := range out {
		if c.Related {
			related++
		}
	}
	d.logger.Info("project discovery finished",
		zap.Int("projects", len(out)),
		zap.Int("related", related),
	)
	return out, nil
}

func (d *Discoverer) classify(ctx context.Context, c *Candidate) {
	p := c.Project
	switch {
	case d.identity == "":
		c.Related, c.Reason = true, ReasonNoIdentity
		return
	case p.OwnerUsername == d.identity:
		c.Related, c.Reason = true, ReasonOwner
		return
	case p.NamespaceOwner == d.identity:
		c.Related, c.Reason = true, ReasonNamespace
		return
	case p.AccessLevel >= model.AccessMaintainer:
		c.Related, c.Reason = true, ReasonMaintainer
		return
	}

	id := c.ID()
	mrs, err := d.platform.ListOpenMergeRequests(ctx, id)
	if err != nil {
		d.logger.Debug("skipping project, merge requests unavailable",
			zap.String("project", p.PathWithNamespace),
			zap.Error(err),
		)
		c.Err = err
		return
	}
	if len(mrs) > MaxMergeRequests {
		mrs = mrs[:MaxMergeRequests]
	}

	for _, mr := range mrs {
		if relevance.Classify(mr, d.identity) == relevance.Relevant {
			c.Related, c.Reason = true, ReasonMergeRequest
			return
		}
	}

	for i, mr := range mrs {
		if i >= MaxParticipantChecks {
			break
		}
		users, err := d.platform.ListParticipants(ctx, id, mr.IID)
		if err != nil {
			continue
		}
		for _, u := range users {
			if u.Username == d.identity {
				c.Related, c.Reason = true, ReasonParticipant
				return
			}
		}
	}
}

// RelatedIDs returns the ids of related or already monitored candidates, in
// order, followed by every monitored entry that matched no candidate. Such
// entries may be public projects the user is not a member of, or projects
// past the first page of memberships, so they are kept as written.
func RelatedIDs(cands []Candidate, monitored []string) []string {
	var ids []string
	seen := make(map[string]struct{}, len(cands)+len(monitored))
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	matched := make(map[string]struct{}, 2*len(cands))
	for _, c := range cands {
		matched[c.ID()] = struct{}{}
		matched[c.Project.PathWithNamespace] = struct{}{}
		if c.Related || c.Monitored {
			add(c.ID())
		}
	}
	for _, m := range monitored {
		if _, ok := matched[m]; !ok {
			add(m)
		}
	}
	return ids
}
