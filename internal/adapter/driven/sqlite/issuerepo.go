package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IssueStore = (*IssueRepo)(nil)

const issueColumns = `
	i.id, i.user_id, i.remote_id, i.url, i.title, i.body, i.open, i.discarded,
	i.observation, i.labels, i.origin, i.repository_id, i.project_id,
	i.created_at, i.closed_at, COALESCE(r.owner || '/' || r.name, '')
`

const issueFrom = ` FROM issues i LEFT JOIN repositories r ON r.id = i.repository_id`

// IssueRepo is the SQLite implementation of the IssueStore port interface.
// Reads populate each issue's applied and predicted tags.
type IssueRepo struct {
	db   *DB
	tags *TagRepo
}

// NewIssueRepo creates a new IssueRepo backed by the given DB.
func NewIssueRepo(db *DB) *IssueRepo {
	return &IssueRepo{db: db, tags: NewTagRepo(db)}
}

// Create inserts a new issue and returns it with its assigned id.
func (r *IssueRepo) Create(ctx context.Context, issue model.Issue) (model.Issue, error) {
	if !issue.Origin.Valid() {
		return model.Issue{}, fmt.Errorf("create issue %q: invalid origin %+v", issue.Title, issue.Origin)
	}

	const query = `
		INSERT INTO issues (
			user_id, remote_id, url, title, body, open, discarded, observation,
			labels, origin, repository_id, project_id, created_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		issue.UserID, nullableRemoteID(issue.RemoteID), issue.URL, issue.Title, issue.Body,
		boolToInt(issue.Open), boolToInt(issue.Discarded), issue.Observation, issue.Labels,
		string(issue.Origin.Kind), nullableID(issue.Origin.RepositoryID), nullableID(issue.Origin.ProjectID),
		formatTime(issue.CreatedAt), nullableTime(issue.ClosedAt),
	)
	if err != nil {
		return model.Issue{}, fmt.Errorf("create issue %q: %w", issue.Title, err)
	}

	issue.ID, err = result.LastInsertId()
	if err != nil {
		return model.Issue{}, fmt.Errorf("get issue id: %w", err)
	}
	return issue, nil
}

// Update overwrites every mutable column of an existing issue. The owning
// user and creation time never change.
func (r *IssueRepo) Update(ctx context.Context, issue model.Issue) error {
	if !issue.Origin.Valid() {
		return fmt.Errorf("update issue %d: invalid origin %+v", issue.ID, issue.Origin)
	}

	const query = `
		UPDATE issues SET
			remote_id = ?, url = ?, title = ?, body = ?, open = ?, discarded = ?,
			observation = ?, labels = ?, origin = ?, repository_id = ?, project_id = ?,
			closed_at = ?
		WHERE id = ? AND user_id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		nullableRemoteID(issue.RemoteID), issue.URL, issue.Title, issue.Body,
		boolToInt(issue.Open), boolToInt(issue.Discarded), issue.Observation, issue.Labels,
		string(issue.Origin.Kind), nullableID(issue.Origin.RepositoryID), nullableID(issue.Origin.ProjectID),
		nullableTime(issue.ClosedAt), issue.ID, issue.UserID,
	)
	if err != nil {
		return fmt.Errorf("update issue %d: %w", issue.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update issue %d: %w", issue.ID, driven.ErrIssueNotFound)
	}
	return nil
}

// GetByID returns one of the user's issues, or nil, nil.
func (r *IssueRepo) GetByID(ctx context.Context, userID, id int64) (*model.Issue, error) {
	return r.getOne(ctx, `i.user_id = ? AND i.id = ?`, userID, id)
}

// GetByRemoteID returns the user's issue with the given upstream id, or nil, nil.
func (r *IssueRepo) GetByRemoteID(ctx context.Context, userID, remoteID int64) (*model.Issue, error) {
	return r.getOne(ctx, `i.user_id = ? AND i.remote_id = ?`, userID, remoteID)
}

// GetByURL returns the user's oldest issue with the given URL, or nil, nil.
func (r *IssueRepo) GetByURL(ctx context.Context, userID int64, url string) (*model.Issue, error) {
	if url == "" {
		return nil, nil
	}
	return r.getOne(ctx, `i.user_id = ? AND i.url = ?`, userID, url)
}

func (r *IssueRepo) getOne(ctx context.Context, where string, args ...any) (*model.Issue, error) {
	query := `SELECT ` + issueColumns + issueFrom + ` WHERE ` + where + ` ORDER BY i.id LIMIT 1`

	issue, err := scanIssue(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	if err := r.hydrate(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// List returns one page of the user's issues matching the filter, ordered
// by creation time.
func (r *IssueRepo) List(ctx context.Context, filter model.IssueFilter) (model.IssuePage, error) {
	filter.Normalize()

	where, args := issueFilterClause(filter)

	var total int
	countQuery := `SELECT COUNT(*)` + issueFrom + where
	if err := r.db.Reader.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return model.IssuePage{}, fmt.Errorf("count issues: %w", err)
	}

	query := `SELECT ` + issueColumns + issueFrom + where + ` ORDER BY i.created_at, i.id LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), filter.PageSize, (filter.Page-1)*filter.PageSize)

	issues, err := r.query(ctx, query, pageArgs...)
	if err != nil {
		return model.IssuePage{}, err
	}

	return model.IssuePage{
		Issues:   issues,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ListByRepository returns every issue synced from a repository.
func (r *IssueRepo) ListByRepository(ctx context.Context, repositoryID int64) ([]model.Issue, error) {
	query := `SELECT ` + issueColumns + issueFrom + ` WHERE i.repository_id = ? ORDER BY i.created_at, i.id`
	return r.query(ctx, query, repositoryID)
}

func (r *IssueRepo) query(ctx context.Context, query string, args ...any) ([]model.Issue, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	var issues []model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	_ = rows.Close()

	// Tags are loaded after the cursor closes so the reader pool is not
	// held open across nested queries.
	for i := range issues {
		if err := r.hydrate(ctx, &issues[i]); err != nil {
			return nil, err
		}
	}
	return issues, nil
}

func (r *IssueRepo) hydrate(ctx context.Context, issue *model.Issue) error {
	tags, err := r.tags.ListAppliedTags(ctx, issue.ID)
	if err != nil {
		return err
	}
	preds, err := r.tags.ListPredictedTags(ctx, issue.ID)
	if err != nil {
		return err
	}
	issue.Tags = tags
	issue.PredictedTags = preds
	return nil
}

// issueFilterClause builds the WHERE clause and arguments for a filter.
func issueFilterClause(f model.IssueFilter) (string, []any) {
	conds := []string{`i.user_id = ?`}
	args := []any{f.UserID}

	if f.Title != "" {
		conds = append(conds, `i.title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Title)+"%")
	}
	if f.Open != nil {
		conds = append(conds, `i.open = ?`)
		args = append(args, boolToInt(*f.Open))
	}
	if f.Discarded != nil {
		conds = append(conds, `i.discarded = ?`)
		args = append(args, boolToInt(*f.Discarded))
	}
	if len(f.RepositoryIDs) > 0 {
		conds = append(conds, `i.repository_id IN (`+placeholders(len(f.RepositoryIDs))+`)`)
		for _, id := range f.RepositoryIDs {
			args = append(args, id)
		}
	}
	if len(f.TagIDs) > 0 {
		conds = append(conds, `i.id IN (SELECT issue_id FROM issue_tags WHERE tag_id IN (`+placeholders(len(f.TagIDs))+`))`)
		for _, id := range f.TagIDs {
			args = append(args, id)
		}
	}
	if f.CreatedFrom != nil {
		conds = append(conds, `i.created_at >= ?`)
		args = append(args, formatTime(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		conds = append(conds, `i.created_at <= ?`)
		args = append(args, formatTime(*f.CreatedTo))
	}

	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullableRemoteID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func scanIssue(s scanner) (*model.Issue, error) {
	var issue model.Issue
	var remoteID, repoID, projectID sql.NullInt64
	var open, discarded int
	var origin, createdAt string
	var closedAt sql.NullString

	err := s.Scan(
		&issue.ID, &issue.UserID, &remoteID, &issue.URL, &issue.Title, &issue.Body,
		&open, &discarded, &issue.Observation, &issue.Labels, &origin,
		&repoID, &projectID, &createdAt, &closedAt, &issue.RepositoryName,
	)
	if err != nil {
		return nil, err
	}

	if remoteID.Valid {
		id := remoteID.Int64
		issue.RemoteID = &id
	}
	issue.Open = open != 0
	issue.Discarded = discarded != 0
	issue.Origin = model.Origin{
		Kind:         model.OriginKind(origin),
		RepositoryID: repoID.Int64,
		ProjectID:    projectID.Int64,
	}

	issue.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	issue.ClosedAt, err = parseNullableTime(closedAt)
	if err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}

	return &issue, nil
}
