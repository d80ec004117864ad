package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// setupTestDB opens a migrated, named shared in-memory database. The name
// is derived from t.Name() so parallel tests stay isolated; cache=shared lets
// the writer and reader pools see the same data.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL does not apply to in-memory databases.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(t.Name()), connPragmas)

	db, err := openDB(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// addTestUser inserts a user row for tests that need an owner.
func addTestUser(t *testing.T, db *DB, login string) model.User {
	t.Helper()

	user, err := NewUserRepo(db).GetOrCreate(context.Background(), login)
	if err != nil {
		t.Fatalf("create test user %q: %v", login, err)
	}
	return user
}

// addTestRepo inserts a tracked repository owned by userID.
func addTestRepo(t *testing.T, db *DB, userID int64, owner, name string) model.Repository {
	t.Helper()

	repo, err := NewRepoRepo(db).Add(context.Background(), makeRepo(userID, owner, name))
	if err != nil {
		t.Fatalf("create test repository %s/%s: %v", owner, name, err)
	}
	return repo
}

// addTestIssue inserts a manual issue owned by userID.
func addTestIssue(t *testing.T, db *DB, userID int64, title string) model.Issue {
	t.Helper()

	issue, err := NewIssueRepo(db).Create(context.Background(), model.Issue{
		UserID: userID,
		Title:  title,
		Open:   true,
		Origin: model.ManualOrigin(),
	})
	if err != nil {
		t.Fatalf("create test issue %q: %v", title, err)
	}
	return issue
}
