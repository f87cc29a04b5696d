package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/identity/local"
)

// CreateUser inserts a user. A duplicate email yields core.ErrAlreadyExists.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u local.User) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, display_name, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash, core.FormatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, core.ErrAlreadyExists)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (local.User, error) {
	return r.queryUser(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (local.User, error) {
	return r.queryUser(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) UpdateDisplayName(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET display_name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update display name %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) queryUser(ctx context.Context, query, arg string) (local.User, error) {
	var (
		u       local.User
		created string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return local.User{}, core.ErrNotFound
	}
	if err != nil {
		return local.User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt, _ = core.ParseTime(created)
	return u, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ local.UserStore = (*SQLiteRepository)(nil)
