package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

const repoColumns = `id, user_id, owner, name, remote_id, url, description, label_filter, added_at`

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Add inserts a new repository. Returns ErrRepoAlreadyExists if the user
// already tracks a repository with the same owner and name.
func (r *RepoRepo) Add(ctx context.Context, repo model.Repository) (model.Repository, error) {
	const query = `
		INSERT INTO repositories (user_id, owner, name, remote_id, url, description, label_filter, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if repo.AddedAt.IsZero() {
		repo.AddedAt = time.Now().UTC()
	}

	filter, err := marshalLabelFilter(repo.LabelFilter)
	if err != nil {
		return model.Repository{}, err
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		repo.UserID, repo.Owner, repo.Name, repo.RemoteID, repo.URL, repo.Description,
		filter, formatTime(repo.AddedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.Repository{}, fmt.Errorf("add repository %s: %w", repo.FullName(), driven.ErrRepoAlreadyExists)
		}
		return model.Repository{}, fmt.Errorf("add repository %s: %w", repo.FullName(), err)
	}

	repo.ID, err = result.LastInsertId()
	if err != nil {
		return model.Repository{}, fmt.Errorf("get repository id: %w", err)
	}
	return repo, nil
}

// Update overwrites the remote metadata and label filter of a repository.
func (r *RepoRepo) Update(ctx context.Context, repo model.Repository) error {
	const query = `
		UPDATE repositories
		SET remote_id = ?, url = ?, description = ?, label_filter = ?
		WHERE id = ? AND user_id = ?
	`

	filter, err := marshalLabelFilter(repo.LabelFilter)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		repo.RemoteID, repo.URL, repo.Description, filter, repo.ID, repo.UserID,
	)
	if err != nil {
		return fmt.Errorf("update repository %s: %w", repo.FullName(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update repository %d: %w", repo.ID, driven.ErrRepoNotFound)
	}
	return nil
}

// GetByID retrieves one of the user's repositories. Returns nil, nil if it
// does not exist.
func (r *RepoRepo) GetByID(ctx context.Context, userID, id int64) (*model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE id = ? AND user_id = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}
	return repo, nil
}

// GetByOwnerName retrieves one of the user's repositories by owner and name.
// Returns nil, nil if it does not exist.
func (r *RepoRepo) GetByOwnerName(ctx context.Context, userID int64, owner, name string) (*model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE user_id = ? AND owner = ? AND name = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, userID, owner, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}
	return repo, nil
}

// ListByUser returns the user's repositories ordered by owner and name.
func (r *RepoRepo) ListByUser(ctx context.Context, userID int64) ([]model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE user_id = ? ORDER BY owner, name`
	return r.list(ctx, query, userID)
}

// ListByOwnerName returns every user's registration of owner/name, matching
// ignoring case as GitHub does.
func (r *RepoRepo) ListByOwnerName(ctx context.Context, owner, name string) ([]model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories
		WHERE owner = ? COLLATE NOCASE AND name = ? COLLATE NOCASE
		ORDER BY user_id`
	return r.list(ctx, query, owner, name)
}

func (r *RepoRepo) list(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var filter, addedAt string

	err := s.Scan(&repo.ID, &repo.UserID, &repo.Owner, &repo.Name, &repo.RemoteID,
		&repo.URL, &repo.Description, &filter, &addedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(filter), &repo.LabelFilter); err != nil {
		return nil, fmt.Errorf("unmarshal label_filter: %w", err)
	}
	if len(repo.LabelFilter) == 0 {
		repo.LabelFilter = nil
	}

	repo.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}

	return &repo, nil
}

// marshalLabelFilter serializes a label filter as a JSON array.
func marshalLabelFilter(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("marshal label filter: %w", err)
	}
	return string(b), nil
}
