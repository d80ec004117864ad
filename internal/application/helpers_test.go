package application_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/issuetriage/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/issuetriage/internal/application"
	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// --- Mock implementations ---

type addLabelsCall struct {
	Owner  string
	Repo   string
	Number int
	Labels []string
}

type mockGitHubClient struct {
	mu sync.Mutex

	repo     *model.RemoteRepository
	repoErr  error
	pages    [][]model.RemoteIssue // consumed one per FetchIssues call
	issueErr error
	project  *model.RemoteProject
	owned    []model.RemoteRepository
	ownedErr error
	addErr   error
	ensErr   error

	repoCalls    int
	issueFilters []model.SourceFilter
	addCalls     []addLabelsCall
	ensureCalls  []string
}

func (m *mockGitHubClient) FetchRepository(_ context.Context, owner, name string) (*model.RemoteRepository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repoCalls++
	if m.repoErr != nil {
		return nil, m.repoErr
	}
	if m.repo != nil {
		return m.repo, nil
	}
	return &model.RemoteRepository{
		ID:    int64(1000 + m.repoCalls),
		Owner: owner,
		Name:  name,
		URL:   fmt.Sprintf("https://github.com/%s/%s", owner, name),
	}, nil
}

func (m *mockGitHubClient) FetchIssues(_ context.Context, _, _ string, filter model.SourceFilter) ([]model.RemoteIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issueFilters = append(m.issueFilters, filter)
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	if len(m.pages) == 0 {
		return nil, nil
	}
	out := m.pages[0]
	m.pages = m.pages[1:]
	return out, nil
}

func (m *mockGitHubClient) ListOwnerRepositories(_ context.Context, _ string) ([]model.RemoteRepository, error) {
	if m.ownedErr != nil {
		return nil, m.ownedErr
	}
	return m.owned, nil
}

func (m *mockGitHubClient) FetchProject(_ context.Context, _ string, _ int) (*model.RemoteProject, error) {
	if m.project == nil {
		return nil, errors.New("no project configured")
	}
	return m.project, nil
}

func (m *mockGitHubClient) AddLabels(_ context.Context, owner, repo string, number int, labels []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls = append(m.addCalls, addLabelsCall{Owner: owner, Repo: repo, Number: number, Labels: labels})
	return m.addErr
}

func (m *mockGitHubClient) EnsureLabels(_ context.Context, owner, repo string, _ []model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls = append(m.ensureCalls, owner+"/"+repo)
	return m.ensErr
}

type mockPredictor struct {
	predict func(text string) (*model.Prediction, error)
	texts   []string
}

func (m *mockPredictor) Predict(_ context.Context, text string) (*model.Prediction, error) {
	m.texts = append(m.texts, text)
	if m.predict == nil {
		return nil, nil
	}
	return m.predict(text)
}

func fixedPrediction(primary string, primaryScore float64, secondary string, secondaryScore float64) *mockPredictor {
	return &mockPredictor{predict: func(string) (*model.Prediction, error) {
		return &model.Prediction{
			PrimaryLabel:   primary,
			PrimaryScore:   primaryScore,
			SecondaryLabel: secondary,
			SecondaryScore: secondaryScore,
		}, nil
	}}
}

// --- Store setup ---

type testEnv struct {
	db     *sqlite.DB
	stores application.Stores
	user   model.User
}

// setupTestEnv opens a migrated SQLite database in a temp dir and creates
// one user owning the data.
func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, filepath.Join(t.TempDir(), "issuetriage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.RunMigrations(db.Writer))

	user, err := sqlite.NewUserRepo(db).GetOrCreate(ctx, "octocat")
	require.NoError(t, err)

	return testEnv{
		db: db,
		stores: application.Stores{
			Repos:    sqlite.NewRepoRepo(db),
			Issues:   sqlite.NewIssueRepo(db),
			Tags:     sqlite.NewTagRepo(db),
			Projects: sqlite.NewProjectRepo(db),
		},
		user: user,
	}
}

func remoteIssue(id int64, number int, title string, labels ...string) model.RemoteIssue {
	return model.RemoteIssue{
		ID:        id,
		Number:    number,
		URL:       fmt.Sprintf("https://github.com/acme/widgets/issues/%d", number),
		Title:     title,
		Open:      true,
		Labels:    labels,
		RepoOwner: "acme",
		RepoName:  "widgets",
	}
}

// remoteIDs returns the set of remote ids stored for the repository.
func remoteIDs(t *testing.T, env testEnv, repoID int64) map[int64]bool {
	t.Helper()

	issues, err := env.stores.Issues.ListByRepository(context.Background(), repoID)
	require.NoError(t, err)

	ids := make(map[int64]bool, len(issues))
	for _, issue := range issues {
		require.NotNil(t, issue.RemoteID)
		ids[*issue.RemoteID] = true
	}
	return ids
}
