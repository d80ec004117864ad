// Package github implements the upstream tracker ports using go-github for
// REST calls and githubv4 for project boards.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.GitHubClient   = (*Client)(nil)
	_ driven.TokenValidator = (*Client)(nil)
)

// IssuePageSize is the fixed page size used when listing repository issues.
const IssuePageSize = 30

// repoPageSize is the page size used when listing an owner's repositories.
const repoPageSize = 100

// Client implements the driven.GitHubClient port for a single credential.
type Client struct {
	gh *gh.Client
	v4 *githubv4.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// Project queries go through githubv4 with an oauth2 static token source.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	base := &http.Client{Transport: &statusTransport{base: http.DefaultTransport}}
	httpClient := oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, base), src)

	return &Client{
		gh: client,
		v4: githubv4.NewClient(httpClient),
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
// GraphQL requests are sent to "<baseURL>/graphql".
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	graphqlU := *u
	graphqlU.Path = "/graphql"

	v4HTTP := &http.Client{Transport: &statusTransport{base: httpClient.Transport}}

	return &Client{
		gh: client,
		v4: githubv4.NewEnterpriseClient(graphqlU.String(), v4HTTP),
	}, nil
}

// ValidateToken verifies that the given personal access token is valid and
// returns the authenticated login. It uses a one-shot client so the
// receiver's credential is untouched.
func (c *Client) ValidateToken(ctx context.Context, token string) (string, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	tempClient := gh.NewClient(httpClient).WithAuthToken(token)
	tempClient.BaseURL = c.gh.BaseURL

	user, resp, err := tempClient.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", upstreamError(resp, err))
	}
	return user.GetLogin(), nil
}

// FetchRepository retrieves repository metadata.
func (c *Client) FetchRepository(ctx context.Context, owner, name string) (*model.RemoteRepository, error) {
	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, name, upstreamError(resp, err))
	}
	logRateLimit(resp, owner+"/"+name, 0, 1)

	remote := mapRepository(repo)
	return &remote, nil
}

// ListOwnerRepositories lists the repositories of owner, following the Link
// header until the last page.
func (c *Client) ListOwnerRepositories(ctx context.Context, owner string) ([]model.RemoteRepository, error) {
	opts := &gh.RepositoryListByUserOptions{
		Sort: "full_name",
		ListOptions: gh.ListOptions{
			Page:    1,
			PerPage: repoPageSize,
		},
	}

	endpoint := "users/" + owner + "/repos"
	all := []model.RemoteRepository{}

	for {
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, owner, opts)
		if err != nil {
			return nil, fmt.Errorf("listing repositories of %s (page %d): %w", owner, opts.Page, upstreamError(resp, err))
		}

		logRateLimit(resp, endpoint, opts.Page, len(repos))

		for _, repo := range repos {
			all = append(all, mapRepository(repo))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

func mapRepository(repo *gh.Repository) model.RemoteRepository {
	return model.RemoteRepository{
		ID:          repo.GetID(),
		Owner:       repo.GetOwner().GetLogin(),
		Name:        repo.GetName(),
		URL:         repo.GetHTMLURL(),
		Description: repo.GetDescription(),
	}
}

// FetchIssues retrieves every issue of the repository matching filter. Pages
// of IssuePageSize are requested until one comes back empty; a short page
// does not end the listing. Any failed page fails the whole fetch.
func (c *Client) FetchIssues(ctx context.Context, owner, name string, filter model.SourceFilter) ([]model.RemoteIssue, error) {
	state := filter.State
	if state == "" {
		state = "all"
	}

	opts := &gh.IssueListByRepoOptions{
		State:  state,
		Labels: filter.Labels,
		ListOptions: gh.ListOptions{
			Page:    1,
			PerPage: IssuePageSize,
		},
	}

	endpoint := owner + "/" + name
	var all []model.RemoteIssue

	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s (page %d): %w", endpoint, opts.ListOptions.Page, upstreamError(resp, err))
		}

		logRateLimit(resp, endpoint, opts.ListOptions.Page, len(issues))

		if len(issues) == 0 {
			break
		}
		for _, issue := range issues {
			all = append(all, MapIssue(issue, owner, name))
		}
		opts.ListOptions.Page++
	}

	if all == nil {
		all = []model.RemoteIssue{}
	}
	return all, nil
}

// MapIssue converts a go-github Issue of owner/name to a domain RemoteIssue.
// It is shared by the REST listing and webhook deliveries. It uses GetXxx()
// helper methods exclusively to avoid nil pointer panics.
func MapIssue(issue *gh.Issue, owner, name string) model.RemoteIssue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	var closedAt *time.Time
	if issue.ClosedAt != nil {
		t := issue.GetClosedAt().Time
		closedAt = &t
	}

	return model.RemoteIssue{
		ID:        issue.GetID(),
		Number:    issue.GetNumber(),
		URL:       issue.GetHTMLURL(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		Open:      issue.GetState() == "open",
		Labels:    labels,
		CreatedAt: issue.GetCreatedAt().Time,
		ClosedAt:  closedAt,
		RepoOwner: owner,
		RepoName:  name,
	}
}

// upstreamError converts a go-github failure into a *driven.UpstreamError
// carrying the HTTP status. Transport failures with no response map to 502.
func upstreamError(resp *gh.Response, err error) error {
	var upErr *driven.UpstreamError
	if errors.As(err, &upErr) {
		return err
	}

	status := http.StatusBadGateway
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	return &driven.UpstreamError{StatusCode: status, Err: err}
}

func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// statusTransport turns non-2xx GraphQL responses into *driven.UpstreamError
// so project queries report the upstream status.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &driven.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, resp.Status),
		}
	}
	return resp, nil
}
