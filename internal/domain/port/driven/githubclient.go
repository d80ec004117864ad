package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// IssueSource reads repositories and issues from the upstream tracker.
// Non-2xx responses are returned as *UpstreamError.
type IssueSource interface {
	FetchRepository(ctx context.Context, owner, name string) (*model.RemoteRepository, error)
	// FetchIssues returns every issue of the repository matching filter. It
	// requests pages until one comes back empty; a failure on any page
	// discards the pages already read.
	FetchIssues(ctx context.Context, owner, name string, filter model.SourceFilter) ([]model.RemoteIssue, error)
}

// RepositoryLister discovers the repositories an owner has upstream, so a
// caller can pick one to register.
type RepositoryLister interface {
	// ListOwnerRepositories returns every repository of the user or
	// organization owner, following all pages.
	ListOwnerRepositories(ctx context.Context, owner string) ([]model.RemoteRepository, error)
}

// ProjectSource reads project boards. FetchProject returns an error wrapping
// ErrProjectNotFound when neither an organization nor a user owns the board.
type ProjectSource interface {
	FetchProject(ctx context.Context, owner string, number int) (*model.RemoteProject, error)
}

// LabelWriter writes labels back to upstream issues and repositories.
type LabelWriter interface {
	// AddLabels applies labels to an upstream issue.
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	// EnsureLabels creates any of the categories missing from the repository.
	EnsureLabels(ctx context.Context, owner, repo string, categories []model.Category) error
}

// GitHubClient is the full upstream surface used by the reconciler, bound
// to a single user's credential.
type GitHubClient interface {
	IssueSource
	RepositoryLister
	ProjectSource
	LabelWriter
}

// TokenValidator checks a personal access token against the upstream
// tracker and returns the login it belongs to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}
