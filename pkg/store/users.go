package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/agendify/pkg/model"
)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Ensure returns the user registered under email, creating it when missing.
func (r *UserRepo) Ensure(ctx context.Context, email, name string) (model.User, error) {
	u, err := r.ByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}

	u = model.User{ID: uuid.NewString(), Email: email, Name: name, CreatedAt: time.Now().UTC()}
	const query = `INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query, u.ID, u.Email, u.Name, formatTime(u.CreatedAt)); err != nil {
		return model.User{}, fmt.Errorf("insert user %q: %w", email, err)
	}
	return u, nil
}

// User implements agenda.UserDirectory.
func (r *UserRepo) User(ctx context.Context, id string) (model.User, error) {
	const query = `SELECT id, email, name, created_at FROM users WHERE id = ?`
	return r.scanOne(r.db.Reader.QueryRowContext(ctx, query, id))
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (model.User, error) {
	const query = `SELECT id, email, name, created_at FROM users WHERE email = ?`
	return r.scanOne(r.db.Reader.QueryRowContext(ctx, query, email))
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const query = `SELECT id, email, name, created_at FROM users ORDER BY email`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (model.User, error) {
	var u model.User
	var createdAt string
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, err
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return model.User{}, err
	}
	u.CreatedAt = t
	return u, nil
}
