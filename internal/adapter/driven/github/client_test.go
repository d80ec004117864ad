package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	gh "github.com/google/go-github/v82/github"

	ghAdapter "github.com/ericfisherdev/issuetriage/internal/adapter/driven/github"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client, server
}

// issueJSON is a helper struct for building GitHub API issue responses.
type issueJSON struct {
	ID       int64     `json:"id"`
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	Body     string    `json:"body,omitempty"`
	State    string    `json:"state"`
	HTMLURL  string    `json:"html_url"`
	Labels   []lblJSON `json:"labels"`
	Created  string    `json:"created_at"`
	ClosedAt *string   `json:"closed_at,omitempty"`
}

type lblJSON struct {
	Name string `json:"name"`
}

func makeIssues(start, n int) []issueJSON {
	out := make([]issueJSON, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, issueJSON{
			ID:      int64(1000 + i),
			Number:  i,
			Title:   fmt.Sprintf("Issue %d", i),
			State:   "open",
			HTMLURL: fmt.Sprintf("https://github.com/owner/repo/issues/%d", i),
			Created: "2026-01-01T00:00:00Z",
		})
	}
	return out
}

func TestFetchRepository(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octocat/hello-world", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":1296269,"name":"hello-world","owner":{"login":"octocat"},
			"html_url":"https://github.com/octocat/hello-world","description":"My first repository"}`)
	})

	client, _ := newTestClient(t, handler)
	repo, err := client.FetchRepository(context.Background(), "octocat", "hello-world")

	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, int64(1296269), repo.ID)
	assert.Equal(t, "octocat", repo.Owner)
	assert.Equal(t, "hello-world", repo.Name)
	assert.Equal(t, "https://github.com/octocat/hello-world", repo.URL)
	assert.Equal(t, "My first repository", repo.Description)
}

func TestFetchRepository_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchRepository(context.Background(), "octocat", "missing")

	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusNotFound, upErr.StatusCode)
}

func TestListOwnerRepositories_FollowsPages(t *testing.T) {
	var baseURL string
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/users/acme/repos", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("Link", fmt.Sprintf(`<%susers/acme/repos?page=2&per_page=100>; rel="next"`, baseURL))
			fmt.Fprint(w, `[{"id":1,"name":"anvils","owner":{"login":"acme"},"html_url":"https://github.com/acme/anvils"},
				{"id":2,"name":"rockets","owner":{"login":"acme"},"html_url":"https://github.com/acme/rockets","description":"Fast"}]`)
		case "2":
			fmt.Fprint(w, `[{"id":3,"name":"widgets","owner":{"login":"acme"},"html_url":"https://github.com/acme/widgets"}]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
			fmt.Fprint(w, `[]`)
		}
	})

	client, server := newTestClient(t, handler)
	baseURL = server.URL + "/"

	repos, err := client.ListOwnerRepositories(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, repos, 3)
	assert.Equal(t, model.RemoteRepository{ID: 2, Owner: "acme", Name: "rockets", URL: "https://github.com/acme/rockets", Description: "Fast"}, repos[1])
	assert.Equal(t, "widgets", repos[2].Name)
}

func TestListOwnerRepositories_Empty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})

	client, _ := newTestClient(t, handler)
	repos, err := client.ListOwnerRepositories(context.Background(), "nobody-home")

	require.NoError(t, err)
	assert.NotNil(t, repos)
	assert.Empty(t, repos)
}

func TestListOwnerRepositories_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.ListOwnerRepositories(context.Background(), "ghost")

	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusNotFound, upErr.StatusCode)
}

func TestMapIssue(t *testing.T) {
	closed := gh.Timestamp{Time: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)}
	issue := &gh.Issue{
		ID:        gh.Ptr(int64(42)),
		Number:    gh.Ptr(7),
		HTMLURL:   gh.Ptr("https://github.com/acme/widgets/issues/7"),
		Title:     gh.Ptr("Crash"),
		Body:      gh.Ptr("Steps"),
		State:     gh.Ptr("closed"),
		Labels:    []*gh.Label{{Name: gh.Ptr("bug")}, {Name: gh.Ptr("ui")}},
		CreatedAt: &gh.Timestamp{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		ClosedAt:  &closed,
	}

	ri := ghAdapter.MapIssue(issue, "acme", "widgets")

	assert.Equal(t, int64(42), ri.ID)
	assert.Equal(t, 7, ri.Number)
	assert.False(t, ri.Open)
	assert.Equal(t, []string{"bug", "ui"}, ri.Labels)
	require.NotNil(t, ri.ClosedAt)
	assert.Equal(t, closed.Time, *ri.ClosedAt)
	assert.Equal(t, "acme", ri.RepoOwner)
	assert.Equal(t, "widgets", ri.RepoName)

	bare := ghAdapter.MapIssue(&gh.Issue{State: gh.Ptr("open")}, "acme", "widgets")
	assert.True(t, bare.Open)
	assert.Empty(t, bare.Labels)
	assert.Nil(t, bare.ClosedAt)
}

func TestFetchIssues_Mapping(t *testing.T) {
	closed := "2026-01-05T10:00:00Z"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `[]`)
			return
		}
		json.NewEncoder(w).Encode([]issueJSON{
			{
				ID: 42, Number: 7, Title: "Crash on save", Body: "Steps...", State: "open",
				HTMLURL: "https://github.com/owner/repo/issues/7",
				Labels:  []lblJSON{{Name: "bug"}, {Name: "ux"}},
				Created: "2026-01-01T00:00:00Z",
			},
			{
				ID: 43, Number: 8, Title: "Old", State: "closed",
				HTMLURL: "https://github.com/owner/repo/issues/8",
				Labels:  []lblJSON{}, Created: "2026-01-02T00:00:00Z", ClosedAt: &closed,
			},
		})
	})

	client, _ := newTestClient(t, handler)
	issues, err := client.FetchIssues(context.Background(), "owner", "repo", model.SourceFilter{})

	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, int64(42), issues[0].ID)
	assert.Equal(t, 7, issues[0].Number)
	assert.Equal(t, "Crash on save", issues[0].Title)
	assert.Equal(t, "Steps...", issues[0].Body)
	assert.True(t, issues[0].Open)
	assert.Equal(t, []string{"bug", "ux"}, issues[0].Labels)
	assert.Nil(t, issues[0].ClosedAt)
	assert.Equal(t, "owner", issues[0].RepoOwner)
	assert.Equal(t, "repo", issues[0].RepoName)

	assert.False(t, issues[1].Open)
	require.NotNil(t, issues[1].ClosedAt)
	assert.Equal(t, 5, issues[1].ClosedAt.Day())
	assert.Equal(t, []string{}, issues[1].Labels)
}

func TestFetchIssues_ContinuesPastShortPage(t *testing.T) {
	var requests atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, strconv.Itoa(ghAdapter.IssuePageSize), r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			json.NewEncoder(w).Encode(makeIssues(1, ghAdapter.IssuePageSize))
		case "2":
			// Short but non-empty: listing must continue.
			json.NewEncoder(w).Encode(makeIssues(31, 3))
		case "3":
			json.NewEncoder(w).Encode(makeIssues(34, 2))
		default:
			fmt.Fprint(w, `[]`)
		}
	})

	client, _ := newTestClient(t, handler)
	issues, err := client.FetchIssues(context.Background(), "owner", "repo", model.SourceFilter{})

	require.NoError(t, err)
	assert.Len(t, issues, ghAdapter.IssuePageSize+5)
	assert.Equal(t, int32(4), requests.Load(), "stops only after the empty fourth page")
}

func TestFetchIssues_FilterParameters(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bug,ux", r.URL.Query().Get("labels"))
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})

	client, _ := newTestClient(t, handler)
	issues, err := client.FetchIssues(context.Background(), "owner", "repo",
		model.SourceFilter{Labels: []string{"bug", "ux"}, State: "open"})

	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestFetchIssues_DefaultStateAll(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Empty(t, r.URL.Query().Get("labels"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchIssues(context.Background(), "owner", "repo", model.SourceFilter{})
	require.NoError(t, err)
}

func TestFetchIssues_MidPaginationFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			json.NewEncoder(w).Encode(makeIssues(1, 5))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"message":"unavailable"}`)
	})

	client, _ := newTestClient(t, handler)
	issues, err := client.FetchIssues(context.Background(), "owner", "repo", model.SourceFilter{})

	assert.Nil(t, issues, "no partial data on failure")
	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
}

func TestValidateToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"login":"alice"}`)
	})

	client, _ := newTestClient(t, handler)

	login, err := client.ValidateToken(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "alice", login)

	_, err = client.ValidateToken(context.Background(), "bad-token")
	var upErr *driven.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusUnauthorized, upErr.StatusCode)
}
