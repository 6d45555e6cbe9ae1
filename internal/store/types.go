// Package store provides the primary SQLite repositories and the HNSW
// vector index. SQLite is the system of record; the vector index is a
// rebuildable sidecar.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by repositories. Callers map these to the
// wire-level error vocabulary.
var (
	// ErrNotFound is returned when a row does not exist or is soft-deleted.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned on unique constraint violations (usernames).
	ErrDuplicate = errors.New("store: duplicate")

	// ErrChunkGap is returned when a chunked payload is missing chunks or
	// has out-of-order sequence numbers. The payload cannot be reassembled.
	ErrChunkGap = errors.New("store: chunk sequence gap")

	// ErrClosed is returned by operations on a closed store or index.
	ErrClosed = errors.New("store: closed")
)

// AccessLevel controls who may read a memory besides its owner.
type AccessLevel string

const (
	// AccessPrivate memories are visible to the owner only.
	AccessPrivate AccessLevel = "private"
	// AccessUser memories are visible to any authenticated user.
	AccessUser AccessLevel = "user"
	// AccessPublic memories are visible to everyone.
	AccessPublic AccessLevel = "public"
)

// ValidAccessLevel reports whether s is a recognized access level.
func ValidAccessLevel(s string) bool {
	switch AccessLevel(s) {
	case AccessPrivate, AccessUser, AccessPublic:
		return true
	}
	return false
}

// Memory is a stored knowledge record. Content holds the encoded payload
// stream when the payload is inline; chunked payloads keep their bytes in
// the memory_chunks table and Content is nil.
type Memory struct {
	ID            int64
	OwnerID       int64
	ContextID     *int64
	Title         string
	Content       []byte
	ContentHash   string
	Codec         string
	Chunked       bool
	ChunkCount    int
	OriginalBytes int64
	Summary       string
	Category      string
	Tags          []string
	Metadata      map[string]string
	AccessLevel   AccessLevel
	Importance    float64
	Corrupted     bool
	EmbeddedAt    *time.Time
	EmbeddingTag  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// MemoryPatch carries partial updates for UpdateFields. Nil pointers leave
// the column untouched. ClearContext resets context_id to NULL and wins
// over ContextID.
type MemoryPatch struct {
	Title        *string
	ContextID    *int64
	ClearContext bool
	Summary      *string
	Category     *string
	Tags         []string
	HasTags      bool
	Metadata     map[string]string
	HasMetadata  bool
	AccessLevel  *AccessLevel
	Importance   *float64
	Corrupted    *bool
}

// Empty reports whether the patch would change nothing.
func (p MemoryPatch) Empty() bool {
	return p.Title == nil && p.ContextID == nil && !p.ClearContext &&
		p.Summary == nil && p.Category == nil && !p.HasTags && !p.HasMetadata &&
		p.AccessLevel == nil && p.Importance == nil && p.Corrupted == nil
}

// PayloadRecord is the encoded payload state written by ReplaceContent.
type PayloadRecord struct {
	Content       []byte
	Chunks        [][]byte
	Codec         string
	Chunked       bool
	ContentHash   string
	OriginalBytes int64
}

// NoLimit disables the ListByOwner result cap. Corpus-wide analysis
// passes it to visit every active memory.
const NoLimit = -1

// MemoryFilter narrows ListByOwner results.
type MemoryFilter struct {
	ContextID *int64
	Category  string
	Tag       string
	Limit     int
	Offset    int
}

// BatchItem pairs a memory with its chunk streams for batched creation.
type BatchItem struct {
	Memory *Memory
	Chunks [][]byte
}

// Context is a named grouping of memories owned by one user.
type Context struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	Metadata    map[string]string
	AccessLevel AccessLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Relation is a typed, weighted edge between two memories of one owner.
type Relation struct {
	ID        int64
	OwnerID   int64
	SourceID  int64
	TargetID  int64
	Type      string
	Strength  float64
	Metadata  map[string]string
	CreatedAt time.Time
}

// RelatedMemory is a relation with endpoint titles joined in, as returned
// by ListForMemory.
type RelatedMemory struct {
	Relation
	SourceTitle string
	TargetTitle string
}

// User is an authentication principal. PasswordHash is a bcrypt digest.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuditEntry records one mutation for the append-only audit log.
type AuditEntry struct {
	ID        int64
	OwnerID   int64
	Action    string
	Entity    string
	EntityID  int64
	Detail    string
	CreatedAt time.Time
}

// OwnerStats summarizes one owner's corpus.
type OwnerStats struct {
	TotalMemories     int64            `json:"totalMemories"`
	TotalRelations    int64            `json:"totalRelations"`
	TotalContexts     int64            `json:"totalContexts"`
	TotalBytes        int64            `json:"totalBytes"`
	ByCategory        map[string]int64 `json:"byCategory"`
	ByAccessLevel     map[string]int64 `json:"byAccessLevel"`
	PendingEmbeddings int64            `json:"pendingEmbeddings"`
	CorruptedMemories int64            `json:"corruptedMemories"`
	OldestCreatedAt   *time.Time       `json:"oldestCreatedAt,omitempty"`
	NewestUpdatedAt   *time.Time       `json:"newestUpdatedAt,omitempty"`
}

// ConnectedMemory is a memory id/title with its relation degree, used by
// graph analytics.
type ConnectedMemory struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Degree int64  `json:"degree"`
}

// ErrDimensionMismatch is returned when a vector's length does not match
// the index dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorMeta is the per-record metadata the index keeps for filtering.
type VectorMeta struct {
	OwnerID   int64
	ContextID int64 // 0 means no context
	Provider  string
	IndexedAt time.Time
}

// VectorFilter restricts query results. OwnerID is mandatory; ContextID 0
// matches any context.
type VectorFilter struct {
	OwnerID   int64
	ContextID int64
}

// VectorResult is one query hit. Score is 1/(1+Distance).
type VectorResult struct {
	ID       int64
	Distance float32
	Score    float32
}
