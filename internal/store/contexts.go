package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/membank-io/membank/internal/errors"
)

// ContextRepo persists memory contexts. Update, Delete and Search are
// declared contracts that currently report NotImplemented.
type ContextRepo struct {
	db *sql.DB
}

// Create inserts a context and populates ID and timestamps.
func (r *ContextRepo) Create(ctx context.Context, c *Context) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.AccessLevel == "" {
		c.AccessLevel = AccessPrivate
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO contexts (owner_id, name, description, metadata, access_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.OwnerID, c.Name, c.Description, marshalMeta(c.Metadata),
		string(c.AccessLevel), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func scanContext(r rowScanner) (*Context, error) {
	var (
		c         Context
		meta      string
		level     string
		createdAt string
		updatedAt string
	)
	if err := r.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &meta,
		&level, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Metadata = unmarshalMeta(meta)
	c.AccessLevel = AccessLevel(level)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// GetByID loads one context.
func (r *ContextRepo) GetByID(ctx context.Context, id int64) (*Context, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, metadata, access_level, created_at, updated_at
		FROM contexts WHERE id = ?`, id)
	c, err := scanContext(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get context %d: %w", id, err)
	}
	return c, nil
}

// ListByOwner returns the owner's contexts, oldest first.
func (r *ContextRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*Context, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, metadata, access_level, created_at, updated_at
		FROM contexts WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var out []*Context
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update is a declared contract for a future release.
func (r *ContextRepo) Update(ctx context.Context, c *Context) error {
	return apperrors.NotImplemented("context update")
}

// Delete is a declared contract for a future release.
func (r *ContextRepo) Delete(ctx context.Context, id int64) error {
	return apperrors.NotImplemented("context delete")
}

// Search is a declared contract for a future release.
func (r *ContextRepo) Search(ctx context.Context, ownerID int64, q string) ([]*Context, error) {
	return nil, apperrors.NotImplemented("context search")
}
