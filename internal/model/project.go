package model

// Access levels reported in project permissions.
const (
	AccessGuest      = 10
	AccessReporter   = 20
	AccessDeveloper  = 30
	AccessMaintainer = 40
	AccessOwner      = 50
)

// Project is a platform project visible to the configured identity.
type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`

	// OwnerUsername is set for personal projects.
	OwnerUsername string `json:"owner_username,omitempty"`

	// NamespaceOwner is the username owning the enclosing namespace, if any.
	NamespaceOwner string `json:"namespace_owner,omitempty"`

	// AccessLevel is the highest of project and group access levels.
	AccessLevel int `json:"access_level"`
}
