package engine

import (
	"time"

	"github.com/membank-io/membank/internal/analyze"
	"github.com/membank-io/membank/internal/store"
)

// Memory is the engine's view of a stored record. Content is populated
// only when the caller asked for the payload; StorageMode describes how
// the payload is held at rest.
type Memory struct {
	ID            int64             `json:"id"`
	OwnerID       int64             `json:"ownerId"`
	ContextID     *int64            `json:"contextId,omitempty"`
	Title         string            `json:"title"`
	Content       []byte            `json:"content,omitempty"`
	StorageMode   string            `json:"storageMode"`
	ContentHash   string            `json:"contentHash"`
	OriginalBytes int64             `json:"originalBytes"`
	Summary       string            `json:"summary,omitempty"`
	Category      string            `json:"category,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AccessLevel   string            `json:"accessLevel"`
	Importance    float64           `json:"importance"`
	Corrupted     bool              `json:"corrupted,omitempty"`
	Embedded      bool              `json:"embedded"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// CreateMemoryInput carries everything needed to create one memory.
// Zero values take documented defaults: access level private, importance
// 5, relate threshold 0.7.
type CreateMemoryInput struct {
	OwnerID         int64
	Title           string
	Content         []byte
	ContextID       *int64
	Summary         string
	Category        string
	Tags            []string
	Metadata        map[string]string
	AccessLevel     string
	Importance      float64
	AutoRelate      bool
	RelateThreshold float64
}

// UpdateMemoryInput is a partial update. Nil pointers leave fields
// untouched; HasContent distinguishes "replace payload" from "keep it".
type UpdateMemoryInput struct {
	Title        *string
	Content      []byte
	HasContent   bool
	ContextID    *int64
	ClearContext bool
	Summary      *string
	Category     *string
	Tags         []string
	HasTags      bool
	Metadata     map[string]string
	HasMetadata  bool
	AccessLevel  *string
	Importance   *float64
}

// ListMemoriesInput narrows ListMemories.
type ListMemoriesInput struct {
	OwnerID   int64
	ContextID *int64
	Category  string
	Tag       string
	Limit     int
	Offset    int
}

// BulkCreateResult reports a checkpointed bulk creation. FailedIndex is
// -1 on full success; on partial failure it is the absolute index of the
// item that could not be committed, and CreatedIDs covers everything
// before it that was.
type BulkCreateResult struct {
	CreatedIDs  []int64 `json:"createdIds"`
	FailedIndex int     `json:"failedIndex"`
}

// SearchSemanticInput parameterizes vector search.
type SearchSemanticInput struct {
	OwnerID   int64
	Query     string
	Limit     int
	Threshold float64
	ContextID *int64
	NoCache   bool
}

// SemanticHit pairs a memory with its similarity to the query.
type SemanticHit struct {
	Memory     *Memory `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// SemanticResults is a scored result set; Cached reports whether it was
// served from the cache.
type SemanticResults struct {
	Hits   []*SemanticHit `json:"hits"`
	Cached bool           `json:"cached"`
}

// RelationInput describes one edge to create.
type RelationInput struct {
	SourceID int64
	TargetID int64
	Type     string
	Strength float64
	Metadata map[string]string
}

// Relation is the engine's view of a stored edge.
type Relation struct {
	ID        int64             `json:"id"`
	SourceID  int64             `json:"sourceId"`
	TargetID  int64             `json:"targetId"`
	Type      string            `json:"type"`
	Strength  float64           `json:"strength"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Created   bool              `json:"created"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RelatedMemory is a relation with endpoint titles, as returned by
// GetMemoryRelations.
type RelatedMemory struct {
	Relation
	SourceTitle string `json:"sourceTitle"`
	TargetTitle string `json:"targetTitle"`
}

// BulkRelationsResult reports a checkpointed bulk relation insert.
// Deduplicated edges count toward neither Created nor failure.
type BulkRelationsResult struct {
	Created     int `json:"created"`
	Duplicates  int `json:"duplicates"`
	FailedIndex int `json:"failedIndex"`
}

// ContextInput describes a context to create.
type ContextInput struct {
	OwnerID     int64
	Name        string
	Description string
	Metadata    map[string]string
	AccessLevel string
}

// Context is the engine's view of a memory context.
type Context struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	AccessLevel string            `json:"accessLevel"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// IngestInput names a document to split into chapter memories. Exactly
// one of Path and Data should be set; Data wins when both are.
type IngestInput struct {
	OwnerID   int64
	Path      string
	Data      []byte
	Title     string
	ContextID *int64
	Category  string
	Tags      []string
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Encoding         string   `json:"encoding"`
	MemoriesCreated  int      `json:"memoriesCreated"`
	RelationsCreated int      `json:"relationsCreated"`
	ChaptersSkipped  int      `json:"chaptersSkipped"`
	MemoryIDs        []int64  `json:"memoryIds"`
	Errors           []string `json:"errors,omitempty"`
}

// GraphOverview summarizes an owner's relation graph.
type GraphOverview struct {
	Memories          int64                   `json:"memories"`
	Relations         int64                   `json:"relations"`
	ConnectivityRatio float64                 `json:"connectivityRatio"`
	TopConnected      []store.ConnectedMemory `json:"topConnected"`
}

// GraphCentrality reports one memory's place in the graph.
type GraphCentrality struct {
	MemoryID     int64                   `json:"memoryId"`
	Title        string                  `json:"title"`
	Degree       int                     `json:"degree"`
	StrengthSum  float64                 `json:"strengthSum"`
	Neighborhood []store.ConnectedMemory `json:"neighborhood"`
}

// GraphEdge is one relation tuple for the connections listing.
type GraphEdge struct {
	SourceID int64   `json:"sourceId"`
	TargetID int64   `json:"targetId"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// GraphAnalysis is the tagged union returned by AnalyzeKnowledgeGraph.
type GraphAnalysis struct {
	Mode        string           `json:"mode"`
	Overview    *GraphOverview   `json:"overview,omitempty"`
	Centrality  *GraphCentrality `json:"centrality,omitempty"`
	Connections []GraphEdge      `json:"connections,omitempty"`
}

// ContentAnalysis carries the result of one analysis mode over one or
// more memories.
type ContentAnalysis struct {
	Mode        string                   `json:"mode"`
	MemoryCount int                      `json:"memoryCount"`
	Keywords    []analyze.Keyword        `json:"keywords,omitempty"`
	Sentiment   *analyze.SentimentResult `json:"sentiment,omitempty"`
	Complexity  float64                  `json:"complexity,omitempty"`
	Readability float64                  `json:"readability,omitempty"`
}

// CategorizeReport summarizes a corpus categorization pass.
type CategorizeReport struct {
	Examined   int              `json:"examined"`
	Updated    int              `json:"updated"`
	ByCategory map[string]int64 `json:"byCategory"`
}

// Health reports per-component liveness for readiness probes.
type Health struct {
	Database  bool `json:"database"`
	Cache     bool `json:"cache"`
	Vector    bool `json:"vector"`
	Embedding bool `json:"embedding"`
}

// Healthy reports whether every component is up.
func (h Health) Healthy() bool {
	return h.Database && h.Cache && h.Vector && h.Embedding
}

// memoryView converts a store record without payload bytes.
func memoryView(m *store.Memory) *Memory {
	mode := "inline"
	switch {
	case m.Chunked && m.Codec != "none":
		mode = "chunked_compressed"
	case m.Chunked:
		mode = "chunked"
	case m.Codec != "none":
		mode = "inline_compressed"
	}
	return &Memory{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		ContextID:     m.ContextID,
		Title:         m.Title,
		StorageMode:   mode,
		ContentHash:   m.ContentHash,
		OriginalBytes: m.OriginalBytes,
		Summary:       m.Summary,
		Category:      m.Category,
		Tags:          m.Tags,
		Metadata:      m.Metadata,
		AccessLevel:   string(m.AccessLevel),
		Importance:    m.Importance,
		Corrupted:     m.Corrupted,
		Embedded:      m.EmbeddedAt != nil,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func contextView(c *store.Context) *Context {
	return &Context{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Metadata:    c.Metadata,
		AccessLevel: string(c.AccessLevel),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func relationView(r *store.Relation, created bool) *Relation {
	return &Relation{
		ID:        r.ID,
		SourceID:  r.SourceID,
		TargetID:  r.TargetID,
		Type:      r.Type,
		Strength:  r.Strength,
		Metadata:  r.Metadata,
		Created:   created,
		CreatedAt: r.CreatedAt,
	}
}
