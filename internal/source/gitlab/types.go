package gitlab

import (
	"encoding/json"
	"time"
)

// ErrorResponse is the body GitLab returns on failures.
type ErrorResponse struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

// Version is the /version response.
type Version struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}

// User represents a GitLab user as embedded in other resources.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
	WebURL   string `json:"web_url,omitempty"`
}

// References holds the textual references of a merge request.
type References struct {
	Short    string `json:"short"`
	Relative string `json:"relative"`
	Full     string `json:"full"`
}

// MergeRequest represents a GitLab merge request.
type MergeRequest struct {
	ID           int64      `json:"id"`
	IID          int64      `json:"iid"`
	ProjectID    int64      `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	State        string     `json:"state"` // opened, closed, locked, merged
	WebURL       string     `json:"web_url"`
	SourceBranch string     `json:"source_branch"`
	TargetBranch string     `json:"target_branch"`
	References   References `json:"references"`
	Author       User       `json:"author"`
	Assignee     *User      `json:"assignee"`
	Assignees    []User     `json:"assignees"`
	Reviewers    []User     `json:"reviewers"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Note represents a comment on a merge request.
type Note struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    User      `json:"author"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pipeline represents a pipeline as returned by the list endpoint.
type Pipeline struct {
	ID        int64     `json:"id"`
	IID       int64     `json:"iid"`
	ProjectID int64     `json:"project_id"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Ref       string    `json:"ref"`
	SHA       string    `json:"sha"`
	WebURL    string    `json:"web_url"`
	User      *User     `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Namespace is the group or user namespace of a project.
type Namespace struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"` // user, group
	FullPath string `json:"full_path"`
}

// Access is a single access level grant.
type Access struct {
	AccessLevel int `json:"access_level"`
}

// Permissions holds the caller's project and group access.
type Permissions struct {
	ProjectAccess *Access `json:"project_access"`
	GroupAccess   *Access `json:"group_access"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	PathWithNamespace string       `json:"path_with_namespace"`
	WebURL            string       `json:"web_url"`
	Owner             *User        `json:"owner"`
	Namespace         Namespace    `json:"namespace"`
	Permissions       *Permissions `json:"permissions"`
}
