package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shurcooL/githubv4"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// projectIssue is the issue content of a project item.
type projectIssue struct {
	DatabaseID int64 `graphql:"databaseId"`
	Number     githubv4.Int
	Title      githubv4.String
	Body       githubv4.String
	URL        githubv4.String `graphql:"url"`
	State      githubv4.String
	CreatedAt  githubv4.DateTime
	ClosedAt   *githubv4.DateTime
	Labels     struct {
		Nodes []struct {
			Name githubv4.String
		}
	} `graphql:"labels(first: 50)"`
	Repository struct {
		Name  githubv4.String
		Owner struct {
			Login githubv4.String
		}
	}
}

type projectItem struct {
	Content struct {
		Issue projectIssue `graphql:"... on Issue"`
	}
	Status struct {
		SingleSelect struct {
			Name githubv4.String
		} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
	} `graphql:"fieldValueByName(name: \"Status\")"`
}

type projectV2 struct {
	ID    githubv4.ID
	Title githubv4.String
	URL   githubv4.String `graphql:"url"`
	Items struct {
		Nodes []projectItem
	} `graphql:"items(first: 100)"`
}

type orgProjectQuery struct {
	Organization struct {
		ProjectV2 *projectV2 `graphql:"projectV2(number: $number)"`
	} `graphql:"organization(login: $login)"`
}

type userProjectQuery struct {
	User struct {
		ProjectV2 *projectV2 `graphql:"projectV2(number: $number)"`
	} `graphql:"user(login: $login)"`
}

// FetchProject retrieves a project board and up to 100 of its items. The
// owner is tried as an organization first, then as a user.
func (c *Client) FetchProject(ctx context.Context, owner string, number int) (*model.RemoteProject, error) {
	vars := map[string]any{
		"login":  githubv4.String(owner),
		"number": githubv4.Int(number),
	}

	var org orgProjectQuery
	orgErr := c.v4.Query(ctx, &org, vars)
	if err := upstreamOnly(orgErr); err != nil {
		return nil, fmt.Errorf("querying organization project %s#%d: %w", owner, number, err)
	}
	if orgErr == nil && org.Organization.ProjectV2 != nil {
		return mapProject(owner, number, org.Organization.ProjectV2), nil
	}
	slog.Debug("project not found under organization, trying user", "owner", owner, "number", number, "error", orgErr)

	var user userProjectQuery
	userErr := c.v4.Query(ctx, &user, vars)
	if err := upstreamOnly(userErr); err != nil {
		return nil, fmt.Errorf("querying user project %s#%d: %w", owner, number, err)
	}
	if userErr == nil && user.User.ProjectV2 != nil {
		return mapProject(owner, number, user.User.ProjectV2), nil
	}

	if userErr != nil {
		return nil, fmt.Errorf("project %s#%d: %w: %v", owner, number, driven.ErrProjectNotFound, userErr)
	}
	return nil, fmt.Errorf("project %s#%d: %w", owner, number, driven.ErrProjectNotFound)
}

// upstreamOnly returns err when it is an HTTP-level failure. GraphQL
// resolution errors ("Could not resolve to an Organization") return nil so
// the caller can try the next owner type.
func upstreamOnly(err error) error {
	var upErr *driven.UpstreamError
	if errors.As(err, &upErr) {
		return upErr
	}
	return nil
}

func mapProject(owner string, number int, p *projectV2) *model.RemoteProject {
	project := &model.RemoteProject{
		ID:     fmt.Sprint(p.ID),
		Owner:  owner,
		Number: number,
		Title:  string(p.Title),
		URL:    string(p.URL),
	}

	for _, item := range p.Items.Nodes {
		status := strings.ToUpper(strings.TrimSpace(string(item.Status.SingleSelect.Name)))
		if status == "" {
			status = model.DefaultProjectStatus
		}

		project.Items = append(project.Items, model.RemoteProjectItem{
			Issue:  mapProjectIssue(item.Content.Issue),
			Status: status,
		})
	}
	return project
}

// mapProjectIssue returns nil for items whose content is not an issue
// (draft issues and pull requests decode into an empty fragment).
func mapProjectIssue(pi projectIssue) *model.RemoteIssue {
	if pi.URL == "" {
		return nil
	}

	labels := make([]string, 0, len(pi.Labels.Nodes))
	for _, l := range pi.Labels.Nodes {
		labels = append(labels, string(l.Name))
	}

	issue := &model.RemoteIssue{
		ID:        pi.DatabaseID,
		Number:    int(pi.Number),
		URL:       string(pi.URL),
		Title:     string(pi.Title),
		Body:      string(pi.Body),
		Open:      strings.EqualFold(string(pi.State), "OPEN"),
		Labels:    labels,
		CreatedAt: pi.CreatedAt.Time,
		RepoOwner: string(pi.Repository.Owner.Login),
		RepoName:  string(pi.Repository.Name),
	}
	if pi.ClosedAt != nil {
		t := pi.ClosedAt.Time
		issue.ClosedAt = &t
	}
	return issue
}
