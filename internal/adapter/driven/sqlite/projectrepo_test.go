package sqlite

import (
	"context"
	"testing"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRepo_Upsert(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	repo := NewProjectRepo(db)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, model.Project{
		UserID: user.ID, Owner: "acme", Number: 3, RemoteID: "PVT_1", Title: "Roadmap",
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	second, err := repo.Upsert(ctx, model.Project{
		UserID: user.ID, Owner: "acme", Number: 3, RemoteID: "PVT_1", Title: "Roadmap 2026",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Roadmap 2026", second.Title)

	got, err := repo.GetByNumber(ctx, user.ID, "acme", 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Roadmap 2026", got.Title)

	missing, err := repo.GetByNumber(ctx, user.ID, "acme", 4)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := repo.GetByID(ctx, user.ID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, 3, byID.Number)

	other := addTestUser(t, db, "bob")
	foreign, err := repo.GetByID(ctx, other.ID, first.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign, "projects are scoped per user")

	projects, err := repo.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestProjectRepo_LinkIssue(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	repo := NewProjectRepo(db)
	issues := NewIssueRepo(db)
	ctx := context.Background()

	project, err := repo.Upsert(ctx, model.Project{UserID: user.ID, Owner: "acme", Number: 1, RemoteID: "PVT_9"})
	require.NoError(t, err)

	issue, err := issues.Create(ctx, model.Issue{
		UserID: user.ID, Title: "Board card", Open: true, Origin: model.ImportedOrigin(project.ID),
	})
	require.NoError(t, err)

	require.NoError(t, repo.LinkIssue(ctx, model.ProjectIssue{ProjectID: project.ID, IssueID: issue.ID}))

	links, err := repo.ListIssueLinks(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.DefaultProjectStatus, links[0].Status)

	require.NoError(t, repo.LinkIssue(ctx, model.ProjectIssue{ProjectID: project.ID, IssueID: issue.ID, Status: "IN PROGRESS"}))

	links, err = repo.ListIssueLinks(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "IN PROGRESS", links[0].Status)
}
