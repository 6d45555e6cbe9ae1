package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// schemaVersion is bumped on any schema change; Open migrates forward via
// PRAGMA user_version.
const schemaVersion = 1

// timeLayout is the canonical TEXT encoding for timestamps. RFC 3339 with
// nanoseconds sorts lexicographically within a single machine's clock.
const timeLayout = time.RFC3339Nano

// Store wraps the SQLite primary store. A single connection is shared by
// all repositories; SQLite serializes writers anyway and a pool of one
// avoids lock contention under WAL.
type Store struct {
	db   *sql.DB
	path string

	Memories  *MemoryRepo
	Contexts  *ContextRepo
	Relations *RelationRepo
	Users     *UserRepo
	Audit     *AuditRepo
}

// validateIntegrity runs a read-only integrity check before the database
// is opened for writing. The primary store is never auto-cleared: a failed
// check surfaces so the operator can restore from backup.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // fresh database, nothing to check
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens (or creates) the primary store at path. An empty path opens
// an in-memory database for testing.
func Open(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if err := validateIntegrity(path); err != nil {
			return nil, fmt.Errorf("primary store at %s failed validation: %w", path, err)
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// CRITICAL: WAL mode must be set via PRAGMA for modernc.org/sqlite
	// (DSN params may be ignored by the driver)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.Memories = &MemoryRepo{db: db}
	s.Contexts = &ContextRepo{db: db}
	s.Relations = &RelationRepo{db: db}
	s.Users = &UserRepo{db: db}
	s.Audit = &AuditRepo{db: db}

	return s, nil
}

// migrate brings the schema to the current version.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	if version < 1 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	slog.Debug("schema_migrated",
		slog.Int("from", version),
		slog.Int("to", schemaVersion))
	return nil
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contexts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id     INTEGER NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	access_level TEXT NOT NULL DEFAULT 'private',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contexts_owner ON contexts(owner_id);

CREATE TABLE IF NOT EXISTS memories (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id       INTEGER NOT NULL,
	context_id     INTEGER REFERENCES contexts(id),
	title          TEXT NOT NULL,
	content        BLOB,
	content_hash   TEXT NOT NULL,
	codec          TEXT NOT NULL DEFAULT 'none',
	chunked        INTEGER NOT NULL DEFAULT 0,
	chunk_count    INTEGER NOT NULL DEFAULT 0,
	original_bytes INTEGER NOT NULL DEFAULT 0,
	summary        TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	metadata       TEXT NOT NULL DEFAULT '{}',
	access_level   TEXT NOT NULL DEFAULT 'private',
	importance     REAL NOT NULL DEFAULT 5,
	corrupted      INTEGER NOT NULL DEFAULT 0,
	embedded_at    TEXT,
	embedding_tag  TEXT NOT NULL DEFAULT '',
	deleted_at     TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_memories_context ON memories(context_id);
CREATE INDEX IF NOT EXISTS idx_memories_owner_updated ON memories(owner_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_pending_embed ON memories(owner_id, embedded_at) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS memory_chunks (
	memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	data      BLOB NOT NULL,
	PRIMARY KEY (memory_id, seq)
);

CREATE TABLE IF NOT EXISTS relations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id      INTEGER NOT NULL,
	source_id     INTEGER NOT NULL REFERENCES memories(id),
	target_id     INTEGER NOT NULL REFERENCES memories(id),
	relation_type TEXT NOT NULL,
	strength      REAL NOT NULL DEFAULT 1.0,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL,
	UNIQUE (owner_id, source_id, target_id, relation_type)
);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   INTEGER NOT NULL,
	action     TEXT NOT NULL,
	entity     TEXT NOT NULL,
	entity_id  INTEGER NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_log(owner_id, created_at DESC);
`

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.path != "" {
		// Fold the WAL back into the main file so the on-disk database is
		// self-contained for backups.
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Checkpoint truncates the WAL. Called before filesystem-level backups.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Path returns the database file path ("" for in-memory).
func (s *Store) Path() string { return s.path }

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats aggregates one owner's corpus counters in a single pass over each
// table. Soft-deleted memories are excluded everywhere.
func (s *Store) Stats(ctx context.Context, ownerID int64) (*OwnerStats, error) {
	st := &OwnerStats{
		ByCategory:    make(map[string]int64),
		ByAccessLevel: make(map[string]int64),
	}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(original_bytes), 0),
		       COALESCE(SUM(CASE WHEN embedded_at IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(corrupted), 0),
		       MIN(created_at),
		       MAX(updated_at)
		FROM memories
		WHERE owner_id = ? AND deleted_at IS NULL`, ownerID).
		Scan(&st.TotalMemories, &st.TotalBytes, &st.PendingEmbeddings,
			&st.CorruptedMemories, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("aggregate memories: %w", err)
	}
	if t, ok := parseNullTime(oldest); ok {
		st.OldestCreatedAt = &t
	}
	if t, ok := parseNullTime(newest); ok {
		st.NewestUpdatedAt = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, access_level, COUNT(*)
		FROM memories
		WHERE owner_id = ? AND deleted_at IS NULL
		GROUP BY category, access_level`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("group memories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category, level string
		var n int64
		if err := rows.Scan(&category, &level, &n); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if category == "" {
			category = "uncategorized"
		}
		st.ByCategory[category] += n
		st.ByAccessLevel[level] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relations WHERE owner_id = ?`, ownerID).
		Scan(&st.TotalRelations)
	if err != nil {
		return nil, fmt.Errorf("count relations: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contexts WHERE owner_id = ?`, ownerID).
		Scan(&st.TotalContexts)
	if err != nil {
		return nil, fmt.Errorf("count contexts: %w", err)
	}

	return st, nil
}

// TopConnected returns the owner's most-related memories by degree.
func (s *Store) TopConnected(ctx context.Context, ownerID int64, limit int) ([]ConnectedMemory, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, COUNT(r.id) AS degree
		FROM memories m
		JOIN relations r ON r.source_id = m.id OR r.target_id = m.id
		WHERE m.owner_id = ? AND m.deleted_at IS NULL
		GROUP BY m.id, m.title
		ORDER BY degree DESC, m.id ASC
		LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top connected: %w", err)
	}
	defer rows.Close()

	out := make([]ConnectedMemory, 0, limit)
	for rows.Next() {
		var c ConnectedMemory
		if err := rows.Scan(&c.ID, &c.Title, &c.Degree); err != nil {
			return nil, fmt.Errorf("scan connected row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// formatTime encodes a timestamp for TEXT storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime decodes a stored timestamp; zero time on malformed input.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// marshalTags encodes a tag list as JSON for TEXT storage. Nil encodes to
// the empty list so scans never produce null.
func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalTags(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

func marshalMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalMeta(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil
	}
	return meta
}
