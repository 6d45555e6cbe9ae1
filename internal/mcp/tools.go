package mcp

import (
	"time"

	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/store"
)

// MemoryOut is the wire view of a memory. Content is present only when
// the call loaded the payload; timestamps are RFC 3339.
type MemoryOut struct {
	ID            int64             `json:"id" jsonschema:"memory id"`
	ContextID     *int64            `json:"contextId,omitempty" jsonschema:"id of the containing context"`
	Title         string            `json:"title" jsonschema:"memory title"`
	Content       string            `json:"content,omitempty" jsonschema:"memory content when loaded"`
	Summary       string            `json:"summary,omitempty" jsonschema:"stored summary"`
	Category      string            `json:"category,omitempty" jsonschema:"category label"`
	Tags          []string          `json:"tags,omitempty" jsonschema:"tags"`
	Metadata      map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
	AccessLevel   string            `json:"accessLevel" jsonschema:"private, user, or public"`
	Importance    float64           `json:"importance" jsonschema:"importance from 1 to 10"`
	StorageMode   string            `json:"storageMode" jsonschema:"how the payload is held at rest"`
	OriginalBytes int64             `json:"originalBytes" jsonschema:"payload size before encoding"`
	Corrupted     bool              `json:"corrupted,omitempty" jsonschema:"true when the stored payload failed verification"`
	Embedded      bool              `json:"embedded" jsonschema:"true once the memory is in the vector index"`
	CreatedAt     string            `json:"createdAt" jsonschema:"creation time, RFC 3339"`
	UpdatedAt     string            `json:"updatedAt" jsonschema:"last update time, RFC 3339"`
}

func toMemoryOut(m *engine.Memory) MemoryOut {
	return MemoryOut{
		ID:            m.ID,
		ContextID:     m.ContextID,
		Title:         m.Title,
		Content:       string(m.Content),
		Summary:       m.Summary,
		Category:      m.Category,
		Tags:          m.Tags,
		Metadata:      m.Metadata,
		AccessLevel:   m.AccessLevel,
		Importance:    m.Importance,
		StorageMode:   m.StorageMode,
		OriginalBytes: m.OriginalBytes,
		Corrupted:     m.Corrupted,
		Embedded:      m.Embedded,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     m.UpdatedAt.Format(time.RFC3339),
	}
}

func toMemoryOuts(ms []*engine.Memory) []MemoryOut {
	out := make([]MemoryOut, len(ms))
	for i, m := range ms {
		out[i] = toMemoryOut(m)
	}
	return out
}

// ContextOut is the wire view of a context.
type ContextOut struct {
	ID          int64             `json:"id" jsonschema:"context id"`
	Name        string            `json:"name" jsonschema:"context name"`
	Description string            `json:"description,omitempty" jsonschema:"what this context groups"`
	Metadata    map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
	AccessLevel string            `json:"accessLevel" jsonschema:"private, user, or public"`
	CreatedAt   string            `json:"createdAt" jsonschema:"creation time, RFC 3339"`
	UpdatedAt   string            `json:"updatedAt" jsonschema:"last update time, RFC 3339"`
}

func toContextOut(c *engine.Context) ContextOut {
	return ContextOut{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Metadata:    c.Metadata,
		AccessLevel: c.AccessLevel,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   c.UpdatedAt.Format(time.RFC3339),
	}
}

// RelationOut is the wire view of a relation.
type RelationOut struct {
	ID        int64             `json:"id" jsonschema:"relation id"`
	SourceID  int64             `json:"sourceId" jsonschema:"source memory id"`
	TargetID  int64             `json:"targetId" jsonschema:"target memory id"`
	Type      string            `json:"type" jsonschema:"relation type"`
	Strength  float64           `json:"strength" jsonschema:"edge strength between 0 and 1"`
	Metadata  map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
	Created   bool              `json:"created" jsonschema:"false when an identical edge already existed"`
	CreatedAt string            `json:"createdAt" jsonschema:"creation time, RFC 3339"`
}

func toRelationOut(r *engine.Relation) RelationOut {
	return RelationOut{
		ID:        r.ID,
		SourceID:  r.SourceID,
		TargetID:  r.TargetID,
		Type:      r.Type,
		Strength:  r.Strength,
		Metadata:  r.Metadata,
		Created:   r.Created,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// SemanticHitOut pairs a memory with its similarity to the query.
type SemanticHitOut struct {
	Memory     MemoryOut `json:"memory" jsonschema:"the matching memory, without content"`
	Similarity float64   `json:"similarity" jsonschema:"similarity to the query between 0 and 1"`
}

func toSemanticHitOuts(hits []*engine.SemanticHit) []SemanticHitOut {
	out := make([]SemanticHitOut, len(hits))
	for i, h := range hits {
		out[i] = SemanticHitOut{Memory: toMemoryOut(h.Memory), Similarity: h.Similarity}
	}
	return out
}

// ConnectedOut is a graph neighbor with its relation degree.
type ConnectedOut struct {
	ID     int64  `json:"id" jsonschema:"memory id"`
	Title  string `json:"title" jsonschema:"memory title"`
	Degree int64  `json:"degree" jsonschema:"number of incident relations"`
}

func toConnectedOuts(in []store.ConnectedMemory) []ConnectedOut {
	out := make([]ConnectedOut, len(in))
	for i, c := range in {
		out[i] = ConnectedOut{ID: c.ID, Title: c.Title, Degree: c.Degree}
	}
	return out
}

// CreateMemoryInput is the input schema for the create_memory tool.
type CreateMemoryInput struct {
	Title           string            `json:"title" jsonschema:"short title for the memory"`
	Content         string            `json:"content" jsonschema:"memory content text"`
	ContextID       *int64            `json:"contextId,omitempty" jsonschema:"file the memory under this context"`
	Summary         string            `json:"summary,omitempty" jsonschema:"pre-written summary"`
	Category        string            `json:"category,omitempty" jsonschema:"category label, e.g. technical or planning"`
	Tags            []string          `json:"tags,omitempty" jsonschema:"tags, at most 32"`
	Metadata        map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
	AccessLevel     string            `json:"accessLevel,omitempty" jsonschema:"private, user, or public; default private"`
	Importance      float64           `json:"importance,omitempty" jsonschema:"importance from 1 to 10, default 5"`
	AutoRelate      bool              `json:"autoRelate,omitempty" jsonschema:"link similar existing memories after creation"`
	RelateThreshold float64           `json:"relateThreshold,omitempty" jsonschema:"similarity floor for autoRelate, default 0.7"`
}

// SearchMemoriesInput is the input schema for the search_memories tool.
type SearchMemoriesInput struct {
	Query string `json:"query" jsonschema:"keyword query matched against titles and content"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchMemoriesOutput is the output schema for the search_memories tool.
type SearchMemoriesOutput struct {
	Results []MemoryOut `json:"results" jsonschema:"matching memories by importance then recency"`
	Count   int         `json:"count" jsonschema:"number of results returned"`
}

// UpdateMemoryInput is the input schema for the update_memory tool.
// Omitted fields keep their stored values.
type UpdateMemoryInput struct {
	MemoryID     int64             `json:"memoryId" jsonschema:"id of the memory to update"`
	Title        *string           `json:"title,omitempty" jsonschema:"new title"`
	Content      *string           `json:"content,omitempty" jsonschema:"replacement content; omit to keep the payload"`
	ContextID    *int64            `json:"contextId,omitempty" jsonschema:"move the memory into this context"`
	ClearContext bool              `json:"clearContext,omitempty" jsonschema:"detach the memory from its context"`
	Summary      *string           `json:"summary,omitempty" jsonschema:"new summary"`
	Category     *string           `json:"category,omitempty" jsonschema:"new category"`
	Tags         []string          `json:"tags,omitempty" jsonschema:"replacement tag set"`
	Metadata     map[string]string `json:"metadata,omitempty" jsonschema:"replacement metadata"`
	AccessLevel  *string           `json:"accessLevel,omitempty" jsonschema:"new access level: private, user, or public"`
	Importance   *float64          `json:"importance,omitempty" jsonschema:"new importance from 1 to 10"`
}

// DeleteMemoryInput is the input schema for the delete_memory tool.
type DeleteMemoryInput struct {
	MemoryID int64 `json:"memoryId" jsonschema:"id of the memory to delete"`
}

// DeleteMemoryOutput is the output schema for the delete_memory tool.
type DeleteMemoryOutput struct {
	MemoryID int64 `json:"memoryId" jsonschema:"id of the deleted memory"`
	Deleted  bool  `json:"deleted" jsonschema:"always true on success"`
}

// StatisticsInput is the input schema for get_memory_statistics (none).
type StatisticsInput struct{}

// StatisticsOutput is the output schema for the get_memory_statistics tool.
type StatisticsOutput struct {
	TotalMemories     int64            `json:"totalMemories" jsonschema:"active memories"`
	TotalRelations    int64            `json:"totalRelations" jsonschema:"relations between active memories"`
	TotalContexts     int64            `json:"totalContexts" jsonschema:"contexts"`
	TotalBytes        int64            `json:"totalBytes" jsonschema:"original payload bytes across all memories"`
	ByCategory        map[string]int64 `json:"byCategory,omitempty" jsonschema:"active memory count per category"`
	ByAccessLevel     map[string]int64 `json:"byAccessLevel,omitempty" jsonschema:"active memory count per access level"`
	PendingEmbeddings int64            `json:"pendingEmbeddings" jsonschema:"memories waiting for their vector"`
	CorruptedMemories int64            `json:"corruptedMemories" jsonschema:"memories flagged corrupted"`
	OldestCreatedAt   string           `json:"oldestCreatedAt,omitempty" jsonschema:"oldest creation time, RFC 3339"`
	NewestUpdatedAt   string           `json:"newestUpdatedAt,omitempty" jsonschema:"newest update time, RFC 3339"`
}

func toStatisticsOutput(st *store.OwnerStats) StatisticsOutput {
	out := StatisticsOutput{
		TotalMemories:     st.TotalMemories,
		TotalRelations:    st.TotalRelations,
		TotalContexts:     st.TotalContexts,
		TotalBytes:        st.TotalBytes,
		ByCategory:        st.ByCategory,
		ByAccessLevel:     st.ByAccessLevel,
		PendingEmbeddings: st.PendingEmbeddings,
		CorruptedMemories: st.CorruptedMemories,
	}
	if st.OldestCreatedAt != nil {
		out.OldestCreatedAt = st.OldestCreatedAt.Format(time.RFC3339)
	}
	if st.NewestUpdatedAt != nil {
		out.NewestUpdatedAt = st.NewestUpdatedAt.Format(time.RFC3339)
	}
	return out
}

// BulkCreateMemoriesInput is the input schema for bulk_create_memories.
type BulkCreateMemoriesInput struct {
	Memories []CreateMemoryInput `json:"memories" jsonschema:"memories to create in order"`
}

// BulkCreateOutput reports a checkpointed bulk creation. It is shared by
// bulk_create_memories and index_knowledge_batch.
type BulkCreateOutput struct {
	CreatedIDs  []int64 `json:"createdIds" jsonschema:"ids of the committed memories, in input order"`
	FailedIndex int     `json:"failedIndex" jsonschema:"index of the first failing item, -1 when all committed"`
}

// CreateLargeMemoryInput is the input schema for create_large_memory.
// Content arrives as ordered segments so oversized payloads survive
// line-delimited framing; segments are concatenated before storage.
type CreateLargeMemoryInput struct {
	Title       string            `json:"title" jsonschema:"short title for the memory"`
	Segments    []string          `json:"segments" jsonschema:"ordered content segments, concatenated before storage"`
	ContextID   *int64            `json:"contextId,omitempty" jsonschema:"file the memory under this context"`
	Summary     string            `json:"summary,omitempty" jsonschema:"pre-written summary"`
	Category    string            `json:"category,omitempty" jsonschema:"category label"`
	Tags        []string          `json:"tags,omitempty" jsonschema:"tags, at most 32"`
	Metadata    map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
	AccessLevel string            `json:"accessLevel,omitempty" jsonschema:"private, user, or public; default private"`
	Importance  float64           `json:"importance,omitempty" jsonschema:"importance from 1 to 10, default 5"`
}

// CategorizeMemoriesInput is the input schema for categorize_memories.
type CategorizeMemoriesInput struct {
	AutoGenerateTags *bool `json:"autoGenerateTags,omitempty" jsonschema:"also derive tags from matched lexicon words, default true"`
}

// CategorizeOutput is the output schema for the categorize_memories tool.
type CategorizeOutput struct {
	Examined   int              `json:"examined" jsonschema:"memories examined"`
	Updated    int              `json:"updated" jsonschema:"memories whose category or tags changed"`
	ByCategory map[string]int64 `json:"byCategory" jsonschema:"classification counts per category"`
}

// AnalyzeContentInput is the input schema for the analyze_content tool.
type AnalyzeContentInput struct {
	Mode      string  `json:"mode" jsonschema:"analysis mode: keywords, sentiment, complexity, or readability"`
	MemoryIDs []int64 `json:"memoryIds,omitempty" jsonschema:"restrict analysis to these memories; default whole corpus"`
}

// KeywordOut is one extracted keyword with its frequency.
type KeywordOut struct {
	Word  string `json:"word" jsonschema:"the keyword"`
	Count int    `json:"count" jsonschema:"occurrences across the analyzed text"`
}

// SentimentOut is a lexicon sentiment result.
type SentimentOut struct {
	Positive int     `json:"positive" jsonschema:"positive lexicon hits"`
	Negative int     `json:"negative" jsonschema:"negative lexicon hits"`
	Score    float64 `json:"score" jsonschema:"normalized sentiment between -1 and 1"`
}

// AnalyzeContentOutput is the output schema for the analyze_content tool.
// Only the field matching the requested mode is populated.
type AnalyzeContentOutput struct {
	Mode        string        `json:"mode" jsonschema:"the analysis mode that ran"`
	MemoryCount int           `json:"memoryCount" jsonschema:"memories included in the analysis"`
	Keywords    []KeywordOut  `json:"keywords,omitempty" jsonschema:"top keywords by frequency"`
	Sentiment   *SentimentOut `json:"sentiment,omitempty" jsonschema:"sentiment result"`
	Complexity  float64       `json:"complexity,omitempty" jsonschema:"average words per sentence"`
	Readability float64       `json:"readability,omitempty" jsonschema:"average word length"`
}

func toAnalyzeContentOutput(a *engine.ContentAnalysis) AnalyzeContentOutput {
	out := AnalyzeContentOutput{
		Mode:        a.Mode,
		MemoryCount: a.MemoryCount,
		Complexity:  a.Complexity,
		Readability: a.Readability,
	}
	for _, k := range a.Keywords {
		out.Keywords = append(out.Keywords, KeywordOut{Word: k.Word, Count: k.Count})
	}
	if a.Sentiment != nil {
		out.Sentiment = &SentimentOut{
			Positive: a.Sentiment.Positive,
			Negative: a.Sentiment.Negative,
			Score:    a.Sentiment.Score,
		}
	}
	return out
}

// SummarizeMemoryInput is the input schema for the summarize_memory tool.
type SummarizeMemoryInput struct {
	MemoryID int64 `json:"memoryId" jsonschema:"id of the memory to summarize"`
	MaxChars int   `json:"maxChars,omitempty" jsonschema:"summary budget in characters, default 200"`
}

// SummarizeMemoryOutput is the output schema for the summarize_memory tool.
type SummarizeMemoryOutput struct {
	MemoryID int64  `json:"memoryId" jsonschema:"id of the summarized memory"`
	Summary  string `json:"summary" jsonschema:"the extractive summary, also stored on the memory"`
}

// CreateContextInput is the input schema for the create_context tool.
type CreateContextInput struct {
	Name        string            `json:"name" jsonschema:"context name, unique per owner"`
	Description string            `json:"description,omitempty" jsonschema:"what this context groups"`
	Metadata    map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
	AccessLevel string            `json:"accessLevel,omitempty" jsonschema:"private, user, or public; default private"`
}

// CreateRelationInput is the input schema for the create_relation tool.
type CreateRelationInput struct {
	SourceID int64             `json:"sourceId" jsonschema:"source memory id"`
	TargetID int64             `json:"targetId" jsonschema:"target memory id"`
	Type     string            `json:"type" jsonschema:"relation type, e.g. references or follows"`
	Strength float64           `json:"strength,omitempty" jsonschema:"edge strength between 0 and 1, default 1"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"string key-value metadata"`
}

// GetMemoryRelationsInput is the input schema for get_memory_relations.
type GetMemoryRelationsInput struct {
	MemoryID int64 `json:"memoryId" jsonschema:"memory whose incident relations to list"`
}

// RelatedOut is one incident relation with both endpoint titles.
type RelatedOut struct {
	ID          int64   `json:"id" jsonschema:"relation id"`
	SourceID    int64   `json:"sourceId" jsonschema:"source memory id"`
	TargetID    int64   `json:"targetId" jsonschema:"target memory id"`
	Type        string  `json:"type" jsonschema:"relation type"`
	Strength    float64 `json:"strength" jsonschema:"edge strength"`
	SourceTitle string  `json:"sourceTitle" jsonschema:"title of the source memory"`
	TargetTitle string  `json:"targetTitle" jsonschema:"title of the target memory"`
	CreatedAt   string  `json:"createdAt" jsonschema:"creation time, RFC 3339"`
}

// MemoryRelationsOutput is the output schema for get_memory_relations.
type MemoryRelationsOutput struct {
	Relations []RelatedOut `json:"relations" jsonschema:"incident relations in both directions"`
	Count     int          `json:"count" jsonschema:"number of relations returned"`
}

// BulkCreateRelationsInput is the input schema for bulk_create_relations.
type BulkCreateRelationsInput struct {
	Relations []CreateRelationInput `json:"relations" jsonschema:"relations to create in order"`
}

// BulkRelationsOutput is the output schema for bulk_create_relations.
type BulkRelationsOutput struct {
	Created     int `json:"created" jsonschema:"edges created"`
	Duplicates  int `json:"duplicates" jsonschema:"edges that already existed"`
	FailedIndex int `json:"failedIndex" jsonschema:"index of the first failing item, -1 when all committed"`
}

// SearchSemanticInput is the input schema for the search_semantic tool.
type SearchSemanticInput struct {
	Query     string  `json:"query" jsonschema:"natural language query matched against memory vectors"`
	Limit     int     `json:"limit,omitempty" jsonschema:"maximum number of hits, default 10"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"minimum similarity between 0 and 1"`
	ContextID *int64  `json:"contextId,omitempty" jsonschema:"restrict hits to this context"`
	NoCache   bool    `json:"noCache,omitempty" jsonschema:"bypass the result cache"`
}

// SearchSemanticOutput is the output schema for the search_semantic tool.
type SearchSemanticOutput struct {
	Hits   []SemanticHitOut `json:"hits" jsonschema:"memories ranked by similarity"`
	Cached bool             `json:"cached" jsonschema:"true when served from the result cache"`
}

// AnalyzeGraphInput is the input schema for analyze_knowledge_graph.
type AnalyzeGraphInput struct {
	Mode          string `json:"mode,omitempty" jsonschema:"overview, centrality, or connections; default overview"`
	FocusMemoryID int64  `json:"focusMemoryId,omitempty" jsonschema:"memory to center on; required for centrality"`
}

// OverviewOut summarizes the owner's relation graph.
type OverviewOut struct {
	Memories          int64          `json:"memories" jsonschema:"active memories in the graph"`
	Relations         int64          `json:"relations" jsonschema:"relations in the graph"`
	ConnectivityRatio float64        `json:"connectivityRatio" jsonschema:"edges over the maximum possible"`
	TopConnected      []ConnectedOut `json:"topConnected,omitempty" jsonschema:"five most connected memories"`
}

// CentralityOut reports one memory's place in the graph.
type CentralityOut struct {
	MemoryID     int64          `json:"memoryId" jsonschema:"the focus memory"`
	Title        string         `json:"title" jsonschema:"focus memory title"`
	Degree       int            `json:"degree" jsonschema:"incident relations"`
	StrengthSum  float64        `json:"strengthSum" jsonschema:"sum of incident edge strengths"`
	Neighborhood []ConnectedOut `json:"neighborhood,omitempty" jsonschema:"one-hop neighbors"`
}

// EdgeOut is one relation tuple in a connections listing.
type EdgeOut struct {
	SourceID int64   `json:"sourceId" jsonschema:"source memory id"`
	TargetID int64   `json:"targetId" jsonschema:"target memory id"`
	Type     string  `json:"type" jsonschema:"relation type"`
	Strength float64 `json:"strength" jsonschema:"edge strength"`
}

// AnalyzeGraphOutput is the output schema for analyze_knowledge_graph.
// Only the field matching the requested mode is populated.
type AnalyzeGraphOutput struct {
	Mode        string         `json:"mode" jsonschema:"the analysis mode that ran"`
	Overview    *OverviewOut   `json:"overview,omitempty" jsonschema:"whole-graph summary"`
	Centrality  *CentralityOut `json:"centrality,omitempty" jsonschema:"focus memory centrality"`
	Connections []EdgeOut      `json:"connections,omitempty" jsonschema:"every relation of the owner"`
}

func toAnalyzeGraphOutput(g *engine.GraphAnalysis) AnalyzeGraphOutput {
	out := AnalyzeGraphOutput{Mode: g.Mode}
	if g.Overview != nil {
		out.Overview = &OverviewOut{
			Memories:          g.Overview.Memories,
			Relations:         g.Overview.Relations,
			ConnectivityRatio: g.Overview.ConnectivityRatio,
			TopConnected:      toConnectedOuts(g.Overview.TopConnected),
		}
	}
	if g.Centrality != nil {
		out.Centrality = &CentralityOut{
			MemoryID:     g.Centrality.MemoryID,
			Title:        g.Centrality.Title,
			Degree:       g.Centrality.Degree,
			StrengthSum:  g.Centrality.StrengthSum,
			Neighborhood: toConnectedOuts(g.Centrality.Neighborhood),
		}
	}
	for _, e := range g.Connections {
		out.Connections = append(out.Connections, EdgeOut{
			SourceID: e.SourceID,
			TargetID: e.TargetID,
			Type:     e.Type,
			Strength: e.Strength,
		})
	}
	return out
}

// IngestKnowledgeInput is the input schema for the ingest_knowledge tool.
// Exactly one of path and text is required; text wins when both are set.
type IngestKnowledgeInput struct {
	Path      string   `json:"path,omitempty" jsonschema:"path of a text file to ingest"`
	Text      string   `json:"text,omitempty" jsonschema:"raw document text; takes precedence over path"`
	Title     string   `json:"title,omitempty" jsonschema:"base title for untitled chapters; defaults to the file name"`
	ContextID *int64   `json:"contextId,omitempty" jsonschema:"file created memories under this context"`
	Category  string   `json:"category,omitempty" jsonschema:"category applied to every created memory"`
	Tags      []string `json:"tags,omitempty" jsonschema:"tags applied to every created memory"`
}

// IngestOutput is the output schema for the ingest_knowledge tool.
type IngestOutput struct {
	Encoding         string   `json:"encoding" jsonschema:"detected character encoding"`
	MemoriesCreated  int      `json:"memoriesCreated" jsonschema:"chapter memories created"`
	RelationsCreated int      `json:"relationsCreated" jsonschema:"follows relations created"`
	ChaptersSkipped  int      `json:"chaptersSkipped" jsonschema:"empty or oversized chapters skipped"`
	MemoryIDs        []int64  `json:"memoryIds" jsonschema:"created memory ids in document order"`
	Errors           []string `json:"errors,omitempty" jsonschema:"non-fatal per-chapter errors"`
}

func toIngestOutput(rep *engine.IngestReport) IngestOutput {
	return IngestOutput{
		Encoding:         rep.Encoding,
		MemoriesCreated:  rep.MemoriesCreated,
		RelationsCreated: rep.RelationsCreated,
		ChaptersSkipped:  rep.ChaptersSkipped,
		MemoryIDs:        rep.MemoryIDs,
		Errors:           rep.Errors,
	}
}

// KnowledgeItem is one entry of an index_knowledge_batch call.
type KnowledgeItem struct {
	Title     string `json:"title" jsonschema:"knowledge item title"`
	Content   string `json:"content" jsonschema:"knowledge item content"`
	ContextID *int64 `json:"contextId,omitempty" jsonschema:"file the item under this context"`
}

// IndexKnowledgeBatchInput is the input schema for index_knowledge_batch.
type IndexKnowledgeBatchInput struct {
	Items []KnowledgeItem `json:"items" jsonschema:"knowledge items to index in order"`
}

// FindSimilarInput is the input schema for find_similar_knowledge.
type FindSimilarInput struct {
	MemoryID  int64   `json:"memoryId" jsonschema:"memory whose neighbors to find"`
	Limit     int     `json:"limit,omitempty" jsonschema:"maximum number of neighbors, default 10"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"minimum similarity between 0 and 1"`
}

// FindSimilarOutput is the output schema for find_similar_knowledge.
type FindSimilarOutput struct {
	Hits []SemanticHitOut `json:"hits" jsonschema:"similar memories ranked by similarity, excluding the probe"`
}
