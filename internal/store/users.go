package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UserRepo persists authentication principals. Password hashing happens in
// the auth package; this repo only stores the digest.
type UserRepo struct {
	db *sql.DB
}

// Create inserts a user. A duplicate username or email returns
// ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, username, email, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		username, email, passwordHash, formatTime(now), formatTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Active,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// GetByUsername loads a user by name, active or not.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, active, created_at, updated_at
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetByID loads a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, active, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// Deactivate disables a user without deleting their data.
func (r *UserRepo) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("deactivate user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
