package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/membank-io/membank/internal/errors"
)

// RelationRepo persists typed edges between memories.
type RelationRepo struct {
	db *sql.DB
}

// Insert adds a relation unless an identical (owner, source, target, type)
// edge already exists. Returns the stored relation and whether a new row
// was created; on dedup the existing row is returned untouched.
func (r *RelationRepo) Insert(ctx context.Context, rel *Relation) (*Relation, bool, error) {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO relations (owner_id, source_id, target_id, relation_type, strength, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, source_id, target_id, relation_type) DO NOTHING`,
		rel.OwnerID, rel.SourceID, rel.TargetID, rel.Type, rel.Strength,
		marshalMeta(rel.Metadata), formatTime(rel.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("insert relation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, false, fmt.Errorf("last insert id: %w", err)
		}
		rel.ID = id
		return rel, true, nil
	}

	existing, err := r.find(ctx, rel.OwnerID, rel.SourceID, rel.TargetID, rel.Type)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *RelationRepo) find(ctx context.Context, ownerID, sourceID, targetID int64, relType string) (*Relation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, source_id, target_id, relation_type, strength, metadata, created_at
		FROM relations
		WHERE owner_id = ? AND source_id = ? AND target_id = ? AND relation_type = ?`,
		ownerID, sourceID, targetID, relType)
	return scanRelation(row)
}

func scanRelation(row rowScanner) (*Relation, error) {
	var rel Relation
	var meta, createdAt string
	err := row.Scan(&rel.ID, &rel.OwnerID, &rel.SourceID, &rel.TargetID,
		&rel.Type, &rel.Strength, &meta, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan relation: %w", err)
	}
	rel.Metadata = unmarshalMeta(meta)
	rel.CreatedAt = parseTime(createdAt)
	return &rel, nil
}

// BulkInsert adds relations in checkpointed transactions of batchSize
// (default 100). Duplicate edges inside a batch dedup silently. Returns
// how many rows were created and, on error, the failing absolute index.
func (r *RelationRepo) BulkInsert(ctx context.Context, rels []*Relation, batchSize int) (int, int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	created := 0
	for start := 0; start < len(rels); start += batchSize {
		end := start + batchSize
		if end > len(rels) {
			end = len(rels)
		}

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return created, start, fmt.Errorf("begin batch tx: %w", err)
		}

		batchCreated := 0
		failed := -1
		for i := start; i < end; i++ {
			rel := rels[i]
			if rel.CreatedAt.IsZero() {
				rel.CreatedAt = time.Now().UTC()
			}
			res, execErr := tx.ExecContext(ctx, `
				INSERT INTO relations (owner_id, source_id, target_id, relation_type, strength, metadata, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (owner_id, source_id, target_id, relation_type) DO NOTHING`,
				rel.OwnerID, rel.SourceID, rel.TargetID, rel.Type, rel.Strength,
				marshalMeta(rel.Metadata), formatTime(rel.CreatedAt))
			if execErr != nil {
				err = execErr
				failed = i
				break
			}
			if n, _ := res.RowsAffected(); n > 0 {
				batchCreated++
			}
		}
		if failed >= 0 {
			_ = tx.Rollback()
			return created, failed, fmt.Errorf("batch relation %d: %w", failed, err)
		}
		if err := tx.Commit(); err != nil {
			return created, start, fmt.Errorf("commit batch: %w", err)
		}
		created += batchCreated
	}
	return created, -1, nil
}

// ListForMemory returns relations where the memory is source or target,
// with both endpoint titles joined in. Edges whose other endpoint has
// been soft-deleted are excluded even if a cascade was missed.
func (r *RelationRepo) ListForMemory(ctx context.Context, memoryID int64) ([]*RelatedMemory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.owner_id, r.source_id, r.target_id, r.relation_type,
		       r.strength, r.metadata, r.created_at, s.title, t.title
		FROM relations r
		JOIN memories s ON s.id = r.source_id AND s.deleted_at IS NULL
		JOIN memories t ON t.id = r.target_id AND t.deleted_at IS NULL
		WHERE r.source_id = ? OR r.target_id = ?
		ORDER BY r.created_at ASC, r.id ASC`, memoryID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("list relations for %d: %w", memoryID, err)
	}
	defer rows.Close()

	var out []*RelatedMemory
	for rows.Next() {
		var rm RelatedMemory
		var meta, createdAt string
		if err := rows.Scan(&rm.ID, &rm.OwnerID, &rm.SourceID, &rm.TargetID,
			&rm.Type, &rm.Strength, &meta, &createdAt,
			&rm.SourceTitle, &rm.TargetTitle); err != nil {
			return nil, fmt.Errorf("scan related memory: %w", err)
		}
		rm.Metadata = unmarshalMeta(meta)
		rm.CreatedAt = parseTime(createdAt)
		out = append(out, &rm)
	}
	return out, rows.Err()
}

// ListForOwner returns every relation of one owner, for graph analytics.
func (r *RelationRepo) ListForOwner(ctx context.Context, ownerID int64) ([]*Relation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, source_id, target_id, relation_type, strength, metadata, created_at
		FROM relations WHERE owner_id = ?
		ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var out []*Relation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// DeleteByMemory removes all edges touching a memory. Used as the delete
// cascade. Returns the number of removed rows.
func (r *RelationRepo) DeleteByMemory(ctx context.Context, memoryID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM relations WHERE source_id = ? OR target_id = ?`,
		memoryID, memoryID)
	if err != nil {
		return 0, fmt.Errorf("delete relations for %d: %w", memoryID, err)
	}
	return res.RowsAffected()
}

// Get is a declared contract for a future release.
func (r *RelationRepo) Get(ctx context.Context, id int64) (*Relation, error) {
	return nil, apperrors.NotImplemented("relation get")
}

// Update is a declared contract for a future release.
func (r *RelationRepo) Update(ctx context.Context, rel *Relation) error {
	return apperrors.NotImplemented("relation update")
}

// Delete is a declared contract for a future release.
func (r *RelationRepo) Delete(ctx context.Context, id int64) error {
	return apperrors.NotImplemented("relation delete")
}

// Search is a declared contract for a future release.
func (r *RelationRepo) Search(ctx context.Context, ownerID int64, relType string) ([]*Relation, error) {
	return nil, apperrors.NotImplemented("relation search")
}
