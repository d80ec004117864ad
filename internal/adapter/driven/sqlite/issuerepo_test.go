package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func makeSyncedIssue(userID, repoID, remoteID int64, title string, createdAt time.Time) model.Issue {
	return model.Issue{
		UserID:    userID,
		RemoteID:  ptr(remoteID),
		URL:       "https://github.com/octocat/hello-world/issues/" + title,
		Title:     title,
		Body:      "body of " + title,
		Open:      true,
		Labels:    "bug, ux",
		Origin:    model.SyncedOrigin(repoID),
		CreatedAt: createdAt,
	}
}

func TestIssueRepo_CreateAndGetByID(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	r := addTestRepo(t, db, user.ID, "octocat", "hello-world")
	repo := NewIssueRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, makeSyncedIssue(user.ID, r.ID, 42, "Crash on save",
		time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := repo.GetByID(ctx, user.ID, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NotNil(t, got.RemoteID)
	assert.Equal(t, int64(42), *got.RemoteID)
	assert.Equal(t, "Crash on save", got.Title)
	assert.Equal(t, "body of Crash on save", got.Body)
	assert.True(t, got.Open)
	assert.False(t, got.Discarded)
	assert.Equal(t, "bug, ux", got.Labels)
	assert.Equal(t, model.SyncedOrigin(r.ID), got.Origin)
	assert.Equal(t, "octocat/hello-world", got.RepositoryName)
	assert.Nil(t, got.ClosedAt)
	assert.True(t, got.CreatedAt.Equal(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)))
}

func TestIssueRepo_Create_InvalidOrigin(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	repo := NewIssueRepo(db)

	_, err := repo.Create(context.Background(), model.Issue{
		UserID: user.ID,
		Title:  "bad",
		Origin: model.Origin{Kind: model.OriginSynced},
	})
	assert.Error(t, err)
}

func TestIssueRepo_RemoteIDUniquePerUser(t *testing.T) {
	db := setupTestDB(t)
	alice := addTestUser(t, db, "alice")
	bob := addTestUser(t, db, "bob")
	aliceRepo := addTestRepo(t, db, alice.ID, "octocat", "hello-world")
	bobRepo := addTestRepo(t, db, bob.ID, "octocat", "hello-world")
	repo := NewIssueRepo(db)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Create(ctx, makeSyncedIssue(alice.ID, aliceRepo.ID, 7, "one", now))
	require.NoError(t, err)

	_, err = repo.Create(ctx, makeSyncedIssue(alice.ID, aliceRepo.ID, 7, "dup", now))
	assert.Error(t, err, "remote id must be unique for a user")

	_, err = repo.Create(ctx, makeSyncedIssue(bob.ID, bobRepo.ID, 7, "other user", now))
	assert.NoError(t, err, "another user may track the same remote issue")
}

func TestIssueRepo_GetByRemoteIDAndURL(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	r := addTestRepo(t, db, user.ID, "octocat", "hello-world")
	repo := NewIssueRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, makeSyncedIssue(user.ID, r.ID, 99, "7", time.Now()))
	require.NoError(t, err)

	got, err := repo.GetByRemoteID(ctx, user.ID, 99)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	got, err = repo.GetByURL(ctx, user.ID, "https://github.com/octocat/hello-world/issues/7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	missing, err := repo.GetByRemoteID(ctx, user.ID, 100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = repo.GetByURL(ctx, user.ID, "")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIssueRepo_Update(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	r := addTestRepo(t, db, user.ID, "octocat", "hello-world")
	repo := NewIssueRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.Issue{
		UserID: user.ID,
		URL:    "https://github.com/octocat/hello-world/issues/1",
		Title:  "from csv",
		Open:   true,
		Origin: model.ManualOrigin(),
	})
	require.NoError(t, err)

	closed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created.RemoteID = ptr(int64(5))
	created.Title = "from sync"
	created.Open = false
	created.ClosedAt = &closed
	created.Discarded = true
	created.Observation = "duplicate"
	created.Origin = model.SyncedOrigin(r.ID)
	require.NoError(t, repo.Update(ctx, created))

	got, err := repo.GetByID(ctx, user.ID, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "from sync", got.Title)
	assert.False(t, got.Open)
	assert.True(t, got.Discarded)
	assert.Equal(t, "duplicate", got.Observation)
	assert.Equal(t, model.OriginSynced, got.Origin.Kind)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(closed))
}

func TestIssueRepo_Update_NotFound(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	repo := NewIssueRepo(db)

	err := repo.Update(context.Background(), model.Issue{ID: 404, UserID: user.ID, Origin: model.ManualOrigin()})
	assert.ErrorIs(t, err, driven.ErrIssueNotFound)
}

func TestIssueRepo_ReadsPopulateTags(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	issue := addTestIssue(t, db, user.ID, "Crash on save")
	tags := NewTagRepo(db)
	repo := NewIssueRepo(db)
	ctx := context.Background()

	ux, err := tags.GetOrCreate(ctx, "UX BUG")
	require.NoError(t, err)
	perf, err := tags.GetOrCreate(ctx, "PERFORMANCE")
	require.NoError(t, err)
	require.NoError(t, tags.ApplyTag(ctx, issue.ID, ux.ID))
	require.NoError(t, tags.ReplacePredictedTags(ctx, issue.ID, []model.PredictedTag{
		{Tag: ux, Rank: model.RankPrimary, Score: 0.81},
		{Tag: perf, Rank: model.RankSecondary, Score: 0.12},
	}))

	got, err := repo.GetByID(ctx, user.ID, issue.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "UX BUG", got.Tags[0].Name)
	require.Len(t, got.PredictedTags, 2)
	assert.Equal(t, model.RankPrimary, got.PredictedTags[0].Rank)
}

func TestIssueRepo_List_FiltersAndPagination(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	other := addTestUser(t, db, "bob")
	r := addTestRepo(t, db, user.ID, "octocat", "hello-world")
	tags := NewTagRepo(db)
	repo := NewIssueRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 7; i++ {
		issue := makeSyncedIssue(user.ID, r.ID, int64(100+i), "issue "+string(rune('a'+i)), base.AddDate(0, 0, i))
		issue.Open = i%2 == 0
		issue.Discarded = i == 6
		created, err := repo.Create(ctx, issue)
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	addTestIssue(t, db, other.ID, "issue of bob")

	t.Run("default page size", func(t *testing.T) {
		page, err := repo.List(ctx, model.IssueFilter{UserID: user.ID})
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		assert.Equal(t, model.DefaultIssuePageSize, page.PageSize)
		require.Len(t, page.Issues, 5)
		assert.Equal(t, "issue a", page.Issues[0].Title, "ordered by created_at ascending")
		assert.True(t, page.HasNext())
		assert.False(t, page.HasPrevious())
	})

	t.Run("second page", func(t *testing.T) {
		page, err := repo.List(ctx, model.IssueFilter{UserID: user.ID, Page: 2})
		require.NoError(t, err)
		require.Len(t, page.Issues, 2)
		assert.Equal(t, "issue f", page.Issues[0].Title)
		assert.False(t, page.HasNext())
		assert.True(t, page.HasPrevious())
	})

	t.Run("open and not discarded", func(t *testing.T) {
		page, err := repo.List(ctx, model.IssueFilter{UserID: user.ID, Open: ptr(true), Discarded: ptr(false), PageSize: 50})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total) // a, c, e
	})

	t.Run("title substring", func(t *testing.T) {
		page, err := repo.List(ctx, model.IssueFilter{UserID: user.ID, Title: "UE D"})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, "issue d", page.Issues[0].Title)

		page, err = repo.List(ctx, model.IssueFilter{UserID: user.ID, Title: "100%"})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Total, "wildcards in the search text are literal")
	})

	t.Run("created range", func(t *testing.T) {
		page, err := repo.List(ctx, model.IssueFilter{
			UserID:      user.ID,
			CreatedFrom: ptr(base.AddDate(0, 0, 2)),
			CreatedTo:   ptr(base.AddDate(0, 0, 3)),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
	})

	t.Run("repository and tag", func(t *testing.T) {
		tag, err := tags.GetOrCreate(ctx, "UX BUG")
		require.NoError(t, err)
		require.NoError(t, tags.ApplyTag(ctx, ids[1], tag.ID))

		page, err := repo.List(ctx, model.IssueFilter{UserID: user.ID, RepositoryIDs: []int64{r.ID}, TagIDs: []int64{tag.ID}})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, ids[1], page.Issues[0].ID)
		require.Len(t, page.Issues[0].Tags, 1)
	})
}

func TestIssueRepo_ListByRepository(t *testing.T) {
	db := setupTestDB(t)
	user := addTestUser(t, db, "alice")
	r := addTestRepo(t, db, user.ID, "octocat", "hello-world")
	repo := NewIssueRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, makeSyncedIssue(user.ID, r.ID, 1, "one", time.Now()))
	require.NoError(t, err)
	addTestIssue(t, db, user.ID, "manual")

	issues, err := repo.ListByRepository(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "one", issues[0].Title)
}
