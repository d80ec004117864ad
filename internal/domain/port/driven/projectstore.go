package driven

import (
	"context"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// ProjectStore defines the driven port for project boards and their issue
// links.
type ProjectStore interface {
	// Upsert inserts or updates a project keyed by (user, owner, number).
	Upsert(ctx context.Context, project model.Project) (model.Project, error)
	GetByID(ctx context.Context, userID, id int64) (*model.Project, error)
	GetByNumber(ctx context.Context, userID int64, owner string, number int) (*model.Project, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Project, error)
	// LinkIssue inserts or updates the status of a (project, issue) link.
	LinkIssue(ctx context.Context, link model.ProjectIssue) error
	// ListIssueLinks returns a project's links ordered by issue id.
	ListIssueLinks(ctx context.Context, projectID int64) ([]model.ProjectIssue, error)
}
