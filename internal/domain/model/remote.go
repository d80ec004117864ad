package model

import "time"

// RemoteRepository is repository metadata as returned by the upstream tracker.
type RemoteRepository struct {
	ID          int64
	Owner       string
	Name        string
	URL         string
	Description string
}

// RemoteIssue is one issue record as returned by the upstream tracker,
// validated once at the fetch boundary.
type RemoteIssue struct {
	ID        int64
	Number    int
	URL       string
	Title     string
	Body      string
	Open      bool
	Labels    []string
	CreatedAt time.Time
	ClosedAt  *time.Time
	RepoOwner string // Owner of the issue's true upstream repository.
	RepoName  string
}

// SourceFilter narrows a remote issue listing.
type SourceFilter struct {
	Labels []string
	State  string // "open", "closed" or "all"; empty means "all".
}

// RemoteProject is a project board and its linked items.
type RemoteProject struct {
	ID     string
	Owner  string
	Number int
	Title  string
	URL    string
	Items  []RemoteProjectItem
}

// RemoteProjectItem is one card on a project board. Issue is nil for drafts
// and pull requests.
type RemoteProjectItem struct {
	Issue  *RemoteIssue
	Status string
}
