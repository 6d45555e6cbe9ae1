package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MemoryRepo persists memories and their chunk streams.
type MemoryRepo struct {
	db *sql.DB
}

// memoryCols are the lightweight columns; the payload column is selected
// only when the caller asks for it.
const memoryCols = `id, owner_id, context_id, title, content_hash, codec,
	chunked, chunk_count, original_bytes, summary, category, tags, metadata,
	access_level, importance, corrupted, embedded_at, embedding_tag,
	created_at, updated_at`

const memoryColsWithPayload = `id, owner_id, context_id, title, content,
	content_hash, codec, chunked, chunk_count, original_bytes, summary,
	category, tags, metadata, access_level, importance, corrupted,
	embedded_at, embedding_tag, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(r rowScanner, includePayload bool) (*Memory, error) {
	var (
		m          Memory
		contextID  sql.NullInt64
		tags       string
		meta       string
		level      string
		embeddedAt sql.NullString
		createdAt  string
		updatedAt  string
	)

	dest := []any{&m.ID, &m.OwnerID, &contextID, &m.Title}
	if includePayload {
		dest = append(dest, &m.Content)
	}
	dest = append(dest, &m.ContentHash, &m.Codec, &m.Chunked, &m.ChunkCount,
		&m.OriginalBytes, &m.Summary, &m.Category, &tags, &meta, &level,
		&m.Importance, &m.Corrupted, &embeddedAt, &m.EmbeddingTag,
		&createdAt, &updatedAt)

	if err := r.Scan(dest...); err != nil {
		return nil, err
	}

	if contextID.Valid {
		v := contextID.Int64
		m.ContextID = &v
	}
	m.Tags = unmarshalTags(tags)
	m.Metadata = unmarshalMeta(meta)
	m.AccessLevel = AccessLevel(level)
	if t, ok := parseNullTime(embeddedAt); ok {
		m.EmbeddedAt = &t
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func nullableContext(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Create inserts a memory and its chunk rows in one transaction. The
// memory's ID, CreatedAt and UpdatedAt are populated on success.
func (r *MemoryRepo) Create(ctx context.Context, m *Memory, chunks [][]byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMemoryTx(ctx, tx, m, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMemoryTx(ctx context.Context, tx *sql.Tx, m *Memory, chunks [][]byte) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	if m.AccessLevel == "" {
		m.AccessLevel = AccessPrivate
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (owner_id, context_id, title, content,
			content_hash, codec, chunked, chunk_count, original_bytes,
			summary, category, tags, metadata, access_level, importance,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OwnerID, nullableContext(m.ContextID), m.Title, m.Content,
		m.ContentHash, m.Codec, m.Chunked, m.ChunkCount, m.OriginalBytes,
		m.Summary, m.Category, marshalTags(m.Tags), marshalMeta(m.Metadata),
		string(m.AccessLevel), m.Importance,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id

	for seq, data := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_chunks (memory_id, seq, data) VALUES (?, ?, ?)`,
			id, seq, data); err != nil {
			return fmt.Errorf("insert chunk %d: %w", seq, err)
		}
	}
	return nil
}

// CreateBatch inserts items in checkpointed transactions of batchSize
// (default 100). A failure rolls back only the current batch; earlier
// batches stay committed. Returns the ids created so far and, on error,
// the absolute index of the failing item.
func (r *MemoryRepo) CreateBatch(ctx context.Context, items []BatchItem, batchSize int) ([]int64, int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	ids := make([]int64, 0, len(items))
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return ids, start, fmt.Errorf("begin batch tx: %w", err)
		}

		batchIDs := make([]int64, 0, end-start)
		failed := -1
		for i := start; i < end; i++ {
			if err = insertMemoryTx(ctx, tx, items[i].Memory, items[i].Chunks); err != nil {
				failed = i
				break
			}
			batchIDs = append(batchIDs, items[i].Memory.ID)
		}
		if failed >= 0 {
			_ = tx.Rollback()
			return ids, failed, fmt.Errorf("batch item %d: %w", failed, err)
		}
		if err := tx.Commit(); err != nil {
			return ids, start, fmt.Errorf("commit batch: %w", err)
		}
		ids = append(ids, batchIDs...)
	}
	return ids, -1, nil
}

// GetByID loads one active memory. With includePayload the inline payload
// bytes are loaded; chunked payloads always need a GetChunks call.
func (r *MemoryRepo) GetByID(ctx context.Context, id int64, includePayload bool) (*Memory, error) {
	cols := memoryCols
	if includePayload {
		cols = memoryColsWithPayload
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+cols+` FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	m, err := scanMemory(row, includePayload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %d: %w", id, err)
	}
	return m, nil
}

// GetChunks loads the chunk streams for a memory in sequence order and
// verifies the sequence is gap-free. expect is the recorded chunk count.
func (r *MemoryRepo) GetChunks(ctx context.Context, memoryID int64, expect int) ([][]byte, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, data FROM memory_chunks WHERE memory_id = ? ORDER BY seq ASC`,
		memoryID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([][]byte, 0, expect)
	for rows.Next() {
		var seq int
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if seq != len(chunks) {
			return nil, fmt.Errorf("%w: memory %d expected seq %d got %d",
				ErrChunkGap, memoryID, len(chunks), seq)
		}
		chunks = append(chunks, data)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if expect > 0 && len(chunks) != expect {
		return nil, fmt.Errorf("%w: memory %d has %d of %d chunks",
			ErrChunkGap, memoryID, len(chunks), expect)
	}
	return chunks, nil
}

// ListByOwner returns lightweight records ordered by recency. A filter
// limit of NoLimit returns the whole corpus; SQLite reads LIMIT -1 as
// unbounded.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID int64, f MemoryFilter) ([]*Memory, error) {
	limit := f.Limit
	if limit == NoLimit {
		limit = -1
	} else {
		if limit <= 0 {
			limit = 50
		}
		if limit > 200 {
			limit = 200
		}
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + memoryCols + ` FROM memories WHERE owner_id = ? AND deleted_at IS NULL`)
	args := []any{ownerID}

	if f.ContextID != nil {
		sb.WriteString(` AND context_id = ?`)
		args = append(args, *f.ContextID)
	}
	if f.Category != "" {
		sb.WriteString(` AND category = ?`)
		args = append(args, f.Category)
	}
	if f.Tag != "" {
		// tags is a JSON array of strings; match the quoted element
		sb.WriteString(` AND instr(tags, ?) > 0`)
		args = append(args, `"`+f.Tag+`"`)
	}
	sb.WriteString(` ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	capacity := limit
	if capacity < 0 {
		capacity = 64
	}
	out := make([]*Memory, 0, capacity)
	for rows.Next() {
		m, err := scanMemory(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// patchSets builds SET clauses for a field patch, excluding updated_at.
func patchSets(p MemoryPatch) ([]string, []any) {
	var sets []string
	var args []any

	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.ClearContext {
		sets = append(sets, "context_id = NULL")
	} else if p.ContextID != nil {
		sets = append(sets, "context_id = ?")
		args = append(args, *p.ContextID)
	}
	if p.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *p.Summary)
	}
	if p.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *p.Category)
	}
	if p.HasTags {
		sets = append(sets, "tags = ?")
		args = append(args, marshalTags(p.Tags))
	}
	if p.HasMetadata {
		sets = append(sets, "metadata = ?")
		args = append(args, marshalMeta(p.Metadata))
	}
	if p.AccessLevel != nil {
		sets = append(sets, "access_level = ?")
		args = append(args, string(*p.AccessLevel))
	}
	if p.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *p.Importance)
	}
	if p.Corrupted != nil {
		sets = append(sets, "corrupted = ?")
		args = append(args, *p.Corrupted)
	}
	return sets, args
}

// UpdateFields applies a partial update to an active memory. Payload
// columns are never touched here; use ReplaceContent for content changes.
func (r *MemoryRepo) UpdateFields(ctx context.Context, id int64, p MemoryPatch) error {
	if p.Empty() {
		return nil
	}

	sets, args := patchSets(p)
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now().UTC()))
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND deleted_at IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("update memory %d: %w", id, err)
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

// ReplaceContent rewrites the payload columns, the chunk rows, and any
// accompanying field patch in one transaction, and clears the embedding
// marker so the memory is re-embedded. Readers see the old or the new
// record, never a blend.
func (r *MemoryRepo) ReplaceContent(ctx context.Context, id int64, rec PayloadRecord, p MemoryPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sets := []string{
		"content = ?", "content_hash = ?", "codec = ?", "chunked = ?",
		"chunk_count = ?", "original_bytes = ?", "corrupted = 0",
		"embedded_at = NULL", "embedding_tag = ''",
	}
	args := []any{
		rec.Content, rec.ContentHash, rec.Codec, rec.Chunked,
		len(rec.Chunks), rec.OriginalBytes,
	}
	fieldSets, fieldArgs := patchSets(p)
	sets = append(sets, fieldSets...)
	args = append(args, fieldArgs...)
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now().UTC()), id)

	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND deleted_at IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("replace content %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_chunks WHERE memory_id = ?`, id); err != nil {
		return fmt.Errorf("clear chunks %d: %w", id, err)
	}
	for seq, data := range rec.Chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_chunks (memory_id, seq, data) VALUES (?, ?, ?)`,
			id, seq, data); err != nil {
			return fmt.Errorf("insert chunk %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// SoftDelete marks a memory inactive. Chunk rows are retained for future
// compaction.
func (r *MemoryRepo) SoftDelete(ctx context.Context, id int64) error {
	now := formatTime(time.Now().UTC())
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete %d: %w", id, err)
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

// SearchKeyword does case-insensitive substring matching on title and
// inline uncompressed content. Chunked or compressed payloads are only
// matched by title. Results order by importance, then recency.
func (r *MemoryRepo) SearchKeyword(ctx context.Context, ownerID int64, q string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	needle := strings.ToLower(q)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memoryCols+`
		FROM memories
		WHERE owner_id = ? AND deleted_at IS NULL
		  AND (instr(lower(title), ?) > 0
		       OR (chunked = 0 AND codec = 'none' AND content IS NOT NULL
		           AND instr(lower(CAST(content AS TEXT)), ?) > 0))
		ORDER BY importance DESC, updated_at DESC, id ASC
		LIMIT ?`, ownerID, needle, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	out := make([]*Memory, 0, limit)
	for rows.Next() {
		m, err := scanMemory(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkEmbedded records a successful embedding upsert. updated_at is left
// alone: indexing is not a user-visible edit.
func (r *MemoryRepo) MarkEmbedded(ctx context.Context, id int64, tag string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE memories SET embedded_at = ?, embedding_tag = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), tag, id)
	if err != nil {
		return fmt.Errorf("mark embedded %d: %w", id, err)
	}
	return nil
}

// PendingEmbeddings returns active memories that have no embedding yet or
// were embedded by a different provider tag, oldest first.
func (r *MemoryRepo) PendingEmbeddings(ctx context.Context, tag string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memoryCols+`
		FROM memories
		WHERE deleted_at IS NULL
		  AND (embedded_at IS NULL OR embedding_tag <> ?)
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending embeddings: %w", err)
	}
	defer rows.Close()

	out := make([]*Memory, 0, limit)
	for rows.Next() {
		m, err := scanMemory(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActiveIDs returns the ids of every active memory. The parity reconciler
// diffs this against the vector index.
func (r *MemoryRepo) ActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM memories WHERE deleted_at IS NULL ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query active ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
