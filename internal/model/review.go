package model

import (
	"strconv"
	"strings"
	"time"
)

// Pipeline statuses that end a pipeline run. Only these are ever compared
// against the status ledger.
const (
	PipelineSuccess  = "success"
	PipelineFailed   = "failed"
	PipelineCanceled = "canceled"
)

// IsTerminalStatus reports whether a pipeline status label is final.
func IsTerminalStatus(status string) bool {
	switch status {
	case PipelineSuccess, PipelineFailed, PipelineCanceled:
		return true
	}
	return false
}

// User is a platform account as it appears on review items, notes and
// pipelines.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// DisplayName returns the human name, falling back to the username.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}

// MergeRequest is an open request-for-review item on a monitored project.
type MergeRequest struct {
	// ID is the platform-wide identifier.
	ID int64 `json:"id"`

	// IID is the project-scoped number shown as !IID.
	IID int64 `json:"iid"`

	// ProjectID is the numeric id of the owning project.
	ProjectID int64 `json:"project_id"`

	Title        string `json:"title"`
	Description  string `json:"description"`
	State        string `json:"state"`
	WebURL       string `json:"web_url"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`

	// Reference is the full reference such as "group/project!12".
	Reference string `json:"reference"`

	Author    User   `json:"author"`
	Assignee  *User  `json:"assignee,omitempty"`
	Assignees []User `json:"assignees,omitempty"`
	Reviewers []User `json:"reviewers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectPath derives the project path from the full reference, or returns
// an empty string when the reference is missing.
func (mr MergeRequest) ProjectPath() string {
	if i := strings.Index(mr.Reference, "!"); i > 0 {
		return strings.TrimSpace(mr.Reference[:i])
	}
	return ""
}

// Note is a discussion comment on a merge request.
type Note struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    User      `json:"author"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemID is the dedup ledger key for the note.
func (n Note) ItemID() string {
	return strconv.FormatInt(n.ID, 10)
}

// Pipeline is a CI pipeline run on a monitored project.
type Pipeline struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Status    string    `json:"status"`
	Ref       string    `json:"ref"`
	SHA       string    `json:"sha"`
	Source    string    `json:"source"`
	WebURL    string    `json:"web_url"`
	User      *User     `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShortSHA returns the first eight characters of the commit sha.
func (p Pipeline) ShortSHA() string {
	if len(p.SHA) > 8 {
		return p.SHA[:8]
	}
	return p.SHA
}

// PipelineKey identifies a pipeline within the status ledger.
type PipelineKey struct {
	Project    string
	PipelineID int64
}

// String renders the key as "<project>_<pipelineID>".
func (k PipelineKey) String() string {
	return k.Project + "_" + strconv.FormatInt(k.PipelineID, 10)
}
