package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProjectStore = (*ProjectRepo)(nil)

const projectColumns = `id, user_id, owner, number, remote_id, title, url, added_at`

// ProjectRepo is the SQLite implementation of the ProjectStore port interface.
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo creates a new ProjectRepo backed by the given DB.
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Upsert inserts a project or refreshes its remote metadata when the user
// already tracks (owner, number). The stored row is returned.
func (r *ProjectRepo) Upsert(ctx context.Context, project model.Project) (model.Project, error) {
	const query = `
		INSERT INTO projects (user_id, owner, number, remote_id, title, url, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, owner, number) DO UPDATE SET
			remote_id = excluded.remote_id,
			title = excluded.title,
			url = excluded.url
	`

	if project.AddedAt.IsZero() {
		project.AddedAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		project.UserID, project.Owner, project.Number, project.RemoteID,
		project.Title, project.URL, formatTime(project.AddedAt),
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("upsert project %s#%d: %w", project.Owner, project.Number, err)
	}

	// LastInsertId is unreliable on the update path; read the row back.
	sel := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = ? AND owner = ? AND number = ?`
	stored, err := scanProject(r.db.Writer.QueryRowContext(ctx, sel, project.UserID, project.Owner, project.Number))
	if err != nil {
		return model.Project{}, fmt.Errorf("get project %s#%d: %w", project.Owner, project.Number, err)
	}
	return *stored, nil
}

// GetByID returns the user's project with the given id, or nil, nil.
func (r *ProjectRepo) GetByID(ctx context.Context, userID, id int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = ? AND id = ?`

	project, err := scanProject(r.db.Reader.QueryRowContext(ctx, query, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return project, nil
}

// GetByNumber returns the user's project, or nil, nil.
func (r *ProjectRepo) GetByNumber(ctx context.Context, userID int64, owner string, number int) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = ? AND owner = ? AND number = ?`

	project, err := scanProject(r.db.Reader.QueryRowContext(ctx, query, userID, owner, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s#%d: %w", owner, number, err)
	}
	return project, nil
}

// ListByUser returns the user's projects ordered by owner and number.
func (r *ProjectRepo) ListByUser(ctx context.Context, userID int64) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = ? ORDER BY owner, number`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// LinkIssue records an issue on a project board, updating the status of an
// existing link.
func (r *ProjectRepo) LinkIssue(ctx context.Context, link model.ProjectIssue) error {
	const query = `
		INSERT INTO project_issues (project_id, issue_id, status) VALUES (?, ?, ?)
		ON CONFLICT(project_id, issue_id) DO UPDATE SET status = excluded.status
	`

	status := link.Status
	if status == "" {
		status = model.DefaultProjectStatus
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, link.ProjectID, link.IssueID, status); err != nil {
		return fmt.Errorf("link issue %d to project %d: %w", link.IssueID, link.ProjectID, err)
	}
	return nil
}

// ListIssueLinks returns the issue links of a project ordered by issue id.
func (r *ProjectRepo) ListIssueLinks(ctx context.Context, projectID int64) ([]model.ProjectIssue, error) {
	const query = `SELECT project_id, issue_id, status FROM project_issues WHERE project_id = ? ORDER BY issue_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project %d links: %w", projectID, err)
	}
	defer rows.Close()

	var links []model.ProjectIssue
	for rows.Next() {
		var l model.ProjectIssue
		if err := rows.Scan(&l.ProjectID, &l.IssueID, &l.Status); err != nil {
			return nil, fmt.Errorf("scan project link: %w", err)
		}
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project links: %w", err)
	}
	return links, nil
}

func scanProject(s scanner) (*model.Project, error) {
	var p model.Project
	var addedAt string

	err := s.Scan(&p.ID, &p.UserID, &p.Owner, &p.Number, &p.RemoteID, &p.Title, &p.URL, &addedAt)
	if err != nil {
		return nil, err
	}

	p.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}
	return &p, nil
}
