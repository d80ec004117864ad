package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// IssueStore defines the driven port for issue persistence. Get methods
// return nil, nil when nothing matches. Remote ids are unique per user.
type IssueStore interface {
	Create(ctx context.Context, issue model.Issue) (model.Issue, error)
	// Update overwrites every mutable column of an existing issue.
	Update(ctx context.Context, issue model.Issue) error
	GetByID(ctx context.Context, userID, id int64) (*model.Issue, error)
	GetByRemoteID(ctx context.Context, userID, remoteID int64) (*model.Issue, error)
	GetByURL(ctx context.Context, userID int64, url string) (*model.Issue, error)
	// List returns one page of issues matching the filter, ordered by
	// created_at.
	List(ctx context.Context, filter model.IssueFilter) (model.IssuePage, error)
	ListByRepository(ctx context.Context, repositoryID int64) ([]model.Issue, error)
}
