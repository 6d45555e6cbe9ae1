package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditRepo is the append-only mutation log. The engine writes one entry
// per successful mutation; entries are never updated or deleted.
type AuditRepo struct {
	db *sql.DB
}

// Record appends one audit entry.
func (r *AuditRepo) Record(ctx context.Context, ownerID int64, action, entity string, entityID int64, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (owner_id, action, entity, entity_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ownerID, action, entity, entityID, detail,
		formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the owner's newest entries, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, ownerID int64, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, action, entity, entity_id, detail, created_at
		FROM audit_log WHERE owner_id = ?
		ORDER BY id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]*AuditEntry, 0, limit)
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Action, &e.Entity,
			&e.EntityID, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
