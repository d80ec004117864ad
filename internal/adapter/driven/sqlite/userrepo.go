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
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetOrCreate returns the user with the given login, inserting it first if
// it does not exist yet.
func (r *UserRepo) GetOrCreate(ctx context.Context, login string) (model.User, error) {
	const insert = `INSERT INTO users (login, created_at) VALUES (?, ?) ON CONFLICT(login) DO NOTHING`

	if _, err := r.db.Writer.ExecContext(ctx, insert, login, formatTime(time.Now())); err != nil {
		return model.User{}, fmt.Errorf("create user %q: %w", login, err)
	}

	// Read back through the writer so the row is visible regardless of reader lag.
	const query = `SELECT id, login, created_at FROM users WHERE login = ?`
	u, err := scanUser(r.db.Writer.QueryRowContext(ctx, query, login))
	if err != nil {
		return model.User{}, fmt.Errorf("get user %q: %w", login, err)
	}
	return *u, nil
}

// GetByLogin returns the user with the given login, or nil, nil.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const query = `SELECT id, login, created_at FROM users WHERE login = ?`

	u, err := scanUser(r.db.Reader.QueryRowContext(ctx, query, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", login, err)
	}
	return u, nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var createdAt string
	if err := s.Scan(&u.ID, &u.Login, &createdAt); err != nil {
		return nil, err
	}

	var err error
	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &u, nil
}
