package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
	"github.com/ericfisherdev/issuetriage/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TagStore = (*TagRepo)(nil)

// TagRepo is the SQLite implementation of the TagStore port interface.
// Tag names are compared case-insensitively by the column collation.
type TagRepo struct {
	db *DB
}

// NewTagRepo creates a new TagRepo backed by the given DB.
func NewTagRepo(db *DB) *TagRepo {
	return &TagRepo{db: db}
}

// Create inserts a new tag. Returns ErrTagExists if a tag with the same name
// (ignoring case) already exists.
func (r *TagRepo) Create(ctx context.Context, tag model.Tag) (model.Tag, error) {
	const query = `INSERT INTO tags (name, description, code) VALUES (?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, tag.Name, tag.Description, tag.Code)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.Tag{}, fmt.Errorf("create tag %q: %w", tag.Name, driven.ErrTagExists)
		}
		return model.Tag{}, fmt.Errorf("create tag %q: %w", tag.Name, err)
	}

	tag.ID, err = result.LastInsertId()
	if err != nil {
		return model.Tag{}, fmt.Errorf("get tag id: %w", err)
	}
	return tag, nil
}

// Update overwrites the name, description and code of an existing tag.
func (r *TagRepo) Update(ctx context.Context, tag model.Tag) error {
	const query = `UPDATE tags SET name = ?, description = ?, code = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, tag.Name, tag.Description, tag.Code, tag.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("update tag %q: %w", tag.Name, driven.ErrTagExists)
		}
		return fmt.Errorf("update tag %d: %w", tag.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update tag %d: %w", tag.ID, driven.ErrTagNotFound)
	}
	return nil
}

// GetByID returns the tag with the given id, or nil, nil.
func (r *TagRepo) GetByID(ctx context.Context, id int64) (*model.Tag, error) {
	const query = `SELECT id, name, description, code FROM tags WHERE id = ?`

	tag, err := scanTag(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	return tag, nil
}

// FindByName returns the tag whose name matches ignoring case, or nil, nil.
func (r *TagRepo) FindByName(ctx context.Context, name string) (*model.Tag, error) {
	const query = `SELECT id, name, description, code FROM tags WHERE name = ?`

	tag, err := scanTag(r.db.Reader.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag %q: %w", name, err)
	}
	return tag, nil
}

// GetOrCreate returns the tag named name, inserting it when absent. The
// first-seen spelling of a name is the one kept.
func (r *TagRepo) GetOrCreate(ctx context.Context, name string) (model.Tag, error) {
	const insert = `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`

	if _, err := r.db.Writer.ExecContext(ctx, insert, name); err != nil {
		return model.Tag{}, fmt.Errorf("create tag %q: %w", name, err)
	}

	const query = `SELECT id, name, description, code FROM tags WHERE name = ?`
	tag, err := scanTag(r.db.Writer.QueryRowContext(ctx, query, name))
	if err != nil {
		return model.Tag{}, fmt.Errorf("get tag %q: %w", name, err)
	}
	return *tag, nil
}

// ListAll returns every tag ordered by name.
func (r *TagRepo) ListAll(ctx context.Context) ([]model.Tag, error) {
	const query = `SELECT id, name, description, code FROM tags ORDER BY name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	return collectTags(rows)
}

// ApplyTag associates a tag with an issue. Applying an existing pair is a no-op.
func (r *TagRepo) ApplyTag(ctx context.Context, issueID, tagID int64) error {
	const query = `INSERT INTO issue_tags (issue_id, tag_id) VALUES (?, ?) ON CONFLICT(issue_id, tag_id) DO NOTHING`

	if _, err := r.db.Writer.ExecContext(ctx, query, issueID, tagID); err != nil {
		return fmt.Errorf("apply tag %d to issue %d: %w", tagID, issueID, err)
	}
	return nil
}

// ReplaceAppliedTags atomically sets the issue's applied tags to tagIDs.
func (r *TagRepo) ReplaceAppliedTags(ctx context.Context, issueID int64, tagIDs []int64) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM issue_tags WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("delete applied tags for issue %d: %w", issueID, err)
	}

	const insert = `INSERT INTO issue_tags (issue_id, tag_id) VALUES (?, ?) ON CONFLICT(issue_id, tag_id) DO NOTHING`
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, insert, issueID, tagID); err != nil {
			return fmt.Errorf("apply tag %d to issue %d: %w", tagID, issueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListAppliedTags returns the tags applied to an issue ordered by name.
func (r *TagRepo) ListAppliedTags(ctx context.Context, issueID int64) ([]model.Tag, error) {
	const query = `
		SELECT t.id, t.name, t.description, t.code
		FROM tags t
		JOIN issue_tags it ON it.tag_id = t.id
		WHERE it.issue_id = ?
		ORDER BY t.name
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("list applied tags for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	return collectTags(rows)
}

// ReplacePredictedTags atomically replaces all predictions for an issue.
// A secondary prediction naming the same tag as the primary is dropped.
func (r *TagRepo) ReplacePredictedTags(ctx context.Context, issueID int64, predictions []model.PredictedTag) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM predicted_tags WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("delete predicted tags for issue %d: %w", issueID, err)
	}

	const insert = `
		INSERT INTO predicted_tags (issue_id, tag_id, rank, score) VALUES (?, ?, ?, ?)
		ON CONFLICT(issue_id, tag_id) DO NOTHING
	`
	for _, p := range predictions {
		if _, err := tx.ExecContext(ctx, insert, issueID, p.Tag.ID, int(p.Rank), p.Score); err != nil {
			return fmt.Errorf("insert predicted tag %d (rank %d) for issue %d: %w", p.Tag.ID, p.Rank, issueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListPredictedTags returns the predictions for an issue ordered by rank.
func (r *TagRepo) ListPredictedTags(ctx context.Context, issueID int64) ([]model.PredictedTag, error) {
	const query = `
		SELECT pt.issue_id, pt.rank, pt.score, t.id, t.name, t.description, t.code
		FROM predicted_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.issue_id = ?
		ORDER BY pt.rank
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("list predicted tags for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	var preds []model.PredictedTag
	for rows.Next() {
		var p model.PredictedTag
		var rank int
		if err := rows.Scan(&p.IssueID, &rank, &p.Score,
			&p.Tag.ID, &p.Tag.Name, &p.Tag.Description, &p.Tag.Code); err != nil {
			return nil, fmt.Errorf("scan predicted tag: %w", err)
		}
		p.Rank = model.Rank(rank)
		preds = append(preds, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predicted tags: %w", err)
	}
	return preds, nil
}

func scanTag(s scanner) (*model.Tag, error) {
	var tag model.Tag
	if err := s.Scan(&tag.ID, &tag.Name, &tag.Description, &tag.Code); err != nil {
		return nil, err
	}
	return &tag, nil
}

func collectTags(rows *sql.Rows) ([]model.Tag, error) {
	var tags []model.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, *tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}
