package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/membank-io/membank/internal/config"
	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/pkg/version"
)

// ServerName identifies this server to MCP clients.
const ServerName = "membank"

// Server is the MCP stdio server. It exposes the engine's operations as
// typed tools and acts on behalf of one configured owner; multi-user
// access goes through the REST surface instead.
type Server struct {
	mcp     *mcp.Server
	engine  *engine.Engine
	ownerID int64
	logger  *slog.Logger
}

// NewServer builds the MCP server over an engine. The owner comes from
// auth.defaultOwnerId in the configuration.
func NewServer(eng *engine.Engine, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if cfg == nil {
		cfg = config.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	owner := cfg.Auth.DefaultOwnerID
	if owner <= 0 {
		owner = 1
	}

	s := &Server{
		engine:  eng,
		ownerID: owner,
		logger:  logger.With("component", "mcp"),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// OwnerID returns the owner every tool call acts as.
func (s *Server) OwnerID() int64 {
	return s.ownerID
}

// Run serves MCP over stdio until the context is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", "stdio"),
		slog.Int64("owner_id", s.ownerID))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// logCall records one tool invocation. Failures log at error level with
// the mapped wire message so stdio logs correlate with client errors.
func (s *Server) logCall(tool string, start time.Time, err error) {
	if err != nil {
		s.logger.Error("tool failed",
			slog.String("tool", tool),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("tool completed",
		slog.String("tool", tool),
		slog.Duration("duration", time.Since(start)))
}

// registerTools registers every tool with the SDK server. Input and
// output schemas are inferred from the typed handler signatures.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_memory",
		Description: "Store a new memory with title and content. Supports contexts, categories, tags, metadata, importance, and automatic linking of similar memories.",
	}, s.handleCreateMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_memories",
		Description: "Keyword search over memory titles and content. Fast and literal; use search_semantic for meaning-based retrieval.",
	}, s.handleSearchMemories)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_memory",
		Description: "Update fields of an existing memory. Omitted fields keep their stored values; replacing content re-embeds the memory.",
	}, s.handleUpdateMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete a memory. Its relations and vector are removed with it.",
	}, s.handleDeleteMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_memory_statistics",
		Description: "Corpus statistics: totals, bytes, per-category counts, pending embeddings, and corrupted memories.",
	}, s.handleStatistics)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "bulk_create_memories",
		Description: "Create many memories in one call. Commits in checkpointed batches; on failure reports the failing index and keeps everything before it.",
	}, s.handleBulkCreateMemories)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_large_memory",
		Description: "Store a memory whose content arrives as ordered segments, for payloads too large for a single message.",
	}, s.handleCreateLargeMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "categorize_memories",
		Description: "Classify every memory into technical, planning, ideas, research, or other, optionally generating tags. Deterministic, no model calls.",
	}, s.handleCategorizeMemories)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_content",
		Description: "Text analysis over memories: keyword extraction, sentiment, complexity, or readability.",
	}, s.handleAnalyzeContent)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "summarize_memory",
		Description: "Produce and store an extractive summary of one memory within a character budget.",
	}, s.handleSummarizeMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_context",
		Description: "Create a named context for grouping related memories.",
	}, s.handleCreateContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_relation",
		Description: "Create a typed, weighted relation between two memories. Duplicate edges are reported, not recreated.",
	}, s.handleCreateRelation)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_memory_relations",
		Description: "List a memory's relations in both directions, with endpoint titles.",
	}, s.handleGetMemoryRelations)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "bulk_create_relations",
		Description: "Create many relations in one call with checkpoint semantics; duplicates are counted separately.",
	}, s.handleBulkCreateRelations)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_semantic",
		Description: "Meaning-based search over memory embeddings. Returns memories ranked by similarity with an optional threshold.",
	}, s.handleSearchSemantic)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_knowledge_graph",
		Description: "Analyze the relation graph: whole-graph overview, centrality of one memory, or the full edge list.",
	}, s.handleAnalyzeGraph)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_knowledge",
		Description: "Ingest a document from a file path or raw text. Splits it into chapter memories linked by follows relations; detects Latin-1 and CP-1252 encodings.",
	}, s.handleIngestKnowledge)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_knowledge_batch",
		Description: "Index a batch of knowledge items (title, content, optional context) as memories with checkpoint semantics.",
	}, s.handleIndexKnowledgeBatch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_similar_knowledge",
		Description: "Find memories similar to an existing one, ranked by similarity. The probe memory itself is excluded.",
	}, s.handleFindSimilar)

	s.logger.Debug("MCP tools registered", slog.Int("count", 19))
}

func (s *Server) handleCreateMemory(ctx context.Context, _ *mcp.CallToolRequest, in CreateMemoryInput) (
	*mcp.CallToolResult,
	MemoryOut,
	error,
) {
	start := time.Now()
	m, err := s.engine.CreateMemory(ctx, engine.CreateMemoryInput{
		OwnerID:         s.ownerID,
		Title:           in.Title,
		Content:         []byte(in.Content),
		ContextID:       in.ContextID,
		Summary:         in.Summary,
		Category:        in.Category,
		Tags:            in.Tags,
		Metadata:        in.Metadata,
		AccessLevel:     in.AccessLevel,
		Importance:      in.Importance,
		AutoRelate:      in.AutoRelate,
		RelateThreshold: in.RelateThreshold,
	})
	s.logCall("create_memory", start, err)
	if err != nil {
		return nil, MemoryOut{}, MapError(err)
	}
	return nil, toMemoryOut(m), nil
}

func (s *Server) handleSearchMemories(ctx context.Context, _ *mcp.CallToolRequest, in SearchMemoriesInput) (
	*mcp.CallToolResult,
	SearchMemoriesOutput,
	error,
) {
	start := time.Now()
	results, err := s.engine.SearchMemories(ctx, s.ownerID, in.Query, in.Limit)
	s.logCall("search_memories", start, err)
	if err != nil {
		return nil, SearchMemoriesOutput{}, MapError(err)
	}
	return nil, SearchMemoriesOutput{Results: toMemoryOuts(results), Count: len(results)}, nil
}

func (s *Server) handleUpdateMemory(ctx context.Context, _ *mcp.CallToolRequest, in UpdateMemoryInput) (
	*mcp.CallToolResult,
	MemoryOut,
	error,
) {
	start := time.Now()
	patch := engine.UpdateMemoryInput{
		Title:        in.Title,
		ContextID:    in.ContextID,
		ClearContext: in.ClearContext,
		Summary:      in.Summary,
		Category:     in.Category,
		AccessLevel:  in.AccessLevel,
		Importance:   in.Importance,
	}
	if in.Content != nil {
		patch.Content = []byte(*in.Content)
		patch.HasContent = true
	}
	if in.Tags != nil {
		patch.Tags = in.Tags
		patch.HasTags = true
	}
	if in.Metadata != nil {
		patch.Metadata = in.Metadata
		patch.HasMetadata = true
	}
	m, err := s.engine.UpdateMemory(ctx, s.ownerID, in.MemoryID, patch)
	s.logCall("update_memory", start, err)
	if err != nil {
		return nil, MemoryOut{}, MapError(err)
	}
	return nil, toMemoryOut(m), nil
}

func (s *Server) handleDeleteMemory(ctx context.Context, _ *mcp.CallToolRequest, in DeleteMemoryInput) (
	*mcp.CallToolResult,
	DeleteMemoryOutput,
	error,
) {
	start := time.Now()
	err := s.engine.DeleteMemory(ctx, s.ownerID, in.MemoryID)
	s.logCall("delete_memory", start, err)
	if err != nil {
		return nil, DeleteMemoryOutput{}, MapError(err)
	}
	return nil, DeleteMemoryOutput{MemoryID: in.MemoryID, Deleted: true}, nil
}

func (s *Server) handleStatistics(ctx context.Context, _ *mcp.CallToolRequest, _ StatisticsInput) (
	*mcp.CallToolResult,
	StatisticsOutput,
	error,
) {
	start := time.Now()
	st, err := s.engine.Stats(ctx, s.ownerID)
	s.logCall("get_memory_statistics", start, err)
	if err != nil {
		return nil, StatisticsOutput{}, MapError(err)
	}
	return nil, toStatisticsOutput(st), nil
}

func (s *Server) handleBulkCreateMemories(ctx context.Context, _ *mcp.CallToolRequest, in BulkCreateMemoriesInput) (
	*mcp.CallToolResult,
	BulkCreateOutput,
	error,
) {
	start := time.Now()
	items := make([]engine.CreateMemoryInput, len(in.Memories))
	for i, m := range in.Memories {
		items[i] = engine.CreateMemoryInput{
			Title:       m.Title,
			Content:     []byte(m.Content),
			ContextID:   m.ContextID,
			Summary:     m.Summary,
			Category:    m.Category,
			Tags:        m.Tags,
			Metadata:    m.Metadata,
			AccessLevel: m.AccessLevel,
			Importance:  m.Importance,
		}
	}
	res, err := s.engine.BulkCreateMemories(ctx, s.ownerID, items)
	s.logCall("bulk_create_memories", start, err)
	if err != nil {
		return nil, BulkCreateOutput{}, MapError(err)
	}
	return nil, BulkCreateOutput{CreatedIDs: res.CreatedIDs, FailedIndex: res.FailedIndex}, nil
}

func (s *Server) handleCreateLargeMemory(ctx context.Context, _ *mcp.CallToolRequest, in CreateLargeMemoryInput) (
	*mcp.CallToolResult,
	MemoryOut,
	error,
) {
	start := time.Now()
	if len(in.Segments) == 0 {
		err := invalidParams("segments must not be empty")
		s.logCall("create_large_memory", start, err)
		return nil, MemoryOut{}, err
	}
	m, err := s.engine.CreateMemory(ctx, engine.CreateMemoryInput{
		OwnerID:     s.ownerID,
		Title:       in.Title,
		Content:     []byte(strings.Join(in.Segments, "")),
		ContextID:   in.ContextID,
		Summary:     in.Summary,
		Category:    in.Category,
		Tags:        in.Tags,
		Metadata:    in.Metadata,
		AccessLevel: in.AccessLevel,
		Importance:  in.Importance,
	})
	s.logCall("create_large_memory", start, err)
	if err != nil {
		return nil, MemoryOut{}, MapError(err)
	}
	return nil, toMemoryOut(m), nil
}

func (s *Server) handleCategorizeMemories(ctx context.Context, _ *mcp.CallToolRequest, in CategorizeMemoriesInput) (
	*mcp.CallToolResult,
	CategorizeOutput,
	error,
) {
	start := time.Now()
	autoTags := true
	if in.AutoGenerateTags != nil {
		autoTags = *in.AutoGenerateTags
	}
	rep, err := s.engine.CategorizeMemories(ctx, s.ownerID, autoTags)
	s.logCall("categorize_memories", start, err)
	if err != nil {
		return nil, CategorizeOutput{}, MapError(err)
	}
	return nil, CategorizeOutput{
		Examined:   rep.Examined,
		Updated:    rep.Updated,
		ByCategory: rep.ByCategory,
	}, nil
}

func (s *Server) handleAnalyzeContent(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeContentInput) (
	*mcp.CallToolResult,
	AnalyzeContentOutput,
	error,
) {
	start := time.Now()
	res, err := s.engine.AnalyzeContent(ctx, s.ownerID, in.Mode, in.MemoryIDs)
	s.logCall("analyze_content", start, err)
	if err != nil {
		return nil, AnalyzeContentOutput{}, MapError(err)
	}
	return nil, toAnalyzeContentOutput(res), nil
}

func (s *Server) handleSummarizeMemory(ctx context.Context, _ *mcp.CallToolRequest, in SummarizeMemoryInput) (
	*mcp.CallToolResult,
	SummarizeMemoryOutput,
	error,
) {
	start := time.Now()
	summary, err := s.engine.SummarizeMemory(ctx, s.ownerID, in.MemoryID, in.MaxChars)
	s.logCall("summarize_memory", start, err)
	if err != nil {
		return nil, SummarizeMemoryOutput{}, MapError(err)
	}
	return nil, SummarizeMemoryOutput{MemoryID: in.MemoryID, Summary: summary}, nil
}

func (s *Server) handleCreateContext(ctx context.Context, _ *mcp.CallToolRequest, in CreateContextInput) (
	*mcp.CallToolResult,
	ContextOut,
	error,
) {
	start := time.Now()
	c, err := s.engine.CreateContext(ctx, engine.ContextInput{
		OwnerID:     s.ownerID,
		Name:        in.Name,
		Description: in.Description,
		Metadata:    in.Metadata,
		AccessLevel: in.AccessLevel,
	})
	s.logCall("create_context", start, err)
	if err != nil {
		return nil, ContextOut{}, MapError(err)
	}
	return nil, toContextOut(c), nil
}

func (s *Server) handleCreateRelation(ctx context.Context, _ *mcp.CallToolRequest, in CreateRelationInput) (
	*mcp.CallToolResult,
	RelationOut,
	error,
) {
	start := time.Now()
	rel, err := s.engine.CreateRelation(ctx, s.ownerID, engine.RelationInput{
		SourceID: in.SourceID,
		TargetID: in.TargetID,
		Type:     in.Type,
		Strength: in.Strength,
		Metadata: in.Metadata,
	})
	s.logCall("create_relation", start, err)
	if err != nil {
		return nil, RelationOut{}, MapError(err)
	}
	return nil, toRelationOut(rel), nil
}

func (s *Server) handleGetMemoryRelations(ctx context.Context, _ *mcp.CallToolRequest, in GetMemoryRelationsInput) (
	*mcp.CallToolResult,
	MemoryRelationsOutput,
	error,
) {
	start := time.Now()
	rels, err := s.engine.GetMemoryRelations(ctx, s.ownerID, in.MemoryID)
	s.logCall("get_memory_relations", start, err)
	if err != nil {
		return nil, MemoryRelationsOutput{}, MapError(err)
	}
	out := MemoryRelationsOutput{Relations: make([]RelatedOut, len(rels)), Count: len(rels)}
	for i, r := range rels {
		out.Relations[i] = RelatedOut{
			ID:          r.ID,
			SourceID:    r.SourceID,
			TargetID:    r.TargetID,
			Type:        r.Type,
			Strength:    r.Strength,
			SourceTitle: r.SourceTitle,
			TargetTitle: r.TargetTitle,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) handleBulkCreateRelations(ctx context.Context, _ *mcp.CallToolRequest, in BulkCreateRelationsInput) (
	*mcp.CallToolResult,
	BulkRelationsOutput,
	error,
) {
	start := time.Now()
	items := make([]engine.RelationInput, len(in.Relations))
	for i, r := range in.Relations {
		items[i] = engine.RelationInput{
			SourceID: r.SourceID,
			TargetID: r.TargetID,
			Type:     r.Type,
			Strength: r.Strength,
			Metadata: r.Metadata,
		}
	}
	res, err := s.engine.BulkCreateRelations(ctx, s.ownerID, items)
	s.logCall("bulk_create_relations", start, err)
	if err != nil {
		return nil, BulkRelationsOutput{}, MapError(err)
	}
	return nil, BulkRelationsOutput{
		Created:     res.Created,
		Duplicates:  res.Duplicates,
		FailedIndex: res.FailedIndex,
	}, nil
}

func (s *Server) handleSearchSemantic(ctx context.Context, _ *mcp.CallToolRequest, in SearchSemanticInput) (
	*mcp.CallToolResult,
	SearchSemanticOutput,
	error,
) {
	start := time.Now()
	res, err := s.engine.SearchSemantic(ctx, engine.SearchSemanticInput{
		OwnerID:   s.ownerID,
		Query:     in.Query,
		Limit:     in.Limit,
		Threshold: in.Threshold,
		ContextID: in.ContextID,
		NoCache:   in.NoCache,
	})
	s.logCall("search_semantic", start, err)
	if err != nil {
		return nil, SearchSemanticOutput{}, MapError(err)
	}
	return nil, SearchSemanticOutput{Hits: toSemanticHitOuts(res.Hits), Cached: res.Cached}, nil
}

func (s *Server) handleAnalyzeGraph(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeGraphInput) (
	*mcp.CallToolResult,
	AnalyzeGraphOutput,
	error,
) {
	start := time.Now()
	res, err := s.engine.AnalyzeKnowledgeGraph(ctx, s.ownerID, in.Mode, in.FocusMemoryID)
	s.logCall("analyze_knowledge_graph", start, err)
	if err != nil {
		return nil, AnalyzeGraphOutput{}, MapError(err)
	}
	return nil, toAnalyzeGraphOutput(res), nil
}

func (s *Server) handleIngestKnowledge(ctx context.Context, _ *mcp.CallToolRequest, in IngestKnowledgeInput) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	start := time.Now()
	var data []byte
	if in.Text != "" {
		data = []byte(in.Text)
	}
	rep, err := s.engine.IngestKnowledge(ctx, engine.IngestInput{
		OwnerID:   s.ownerID,
		Path:      in.Path,
		Data:      data,
		Title:     in.Title,
		ContextID: in.ContextID,
		Category:  in.Category,
		Tags:      in.Tags,
	})
	s.logCall("ingest_knowledge", start, err)
	if err != nil {
		return nil, IngestOutput{}, MapError(err)
	}
	return nil, toIngestOutput(rep), nil
}

func (s *Server) handleIndexKnowledgeBatch(ctx context.Context, _ *mcp.CallToolRequest, in IndexKnowledgeBatchInput) (
	*mcp.CallToolResult,
	BulkCreateOutput,
	error,
) {
	start := time.Now()
	items := make([]engine.CreateMemoryInput, len(in.Items))
	for i, item := range in.Items {
		items[i] = engine.CreateMemoryInput{
			Title:     item.Title,
			Content:   []byte(item.Content),
			ContextID: item.ContextID,
		}
	}
	res, err := s.engine.BulkCreateMemories(ctx, s.ownerID, items)
	s.logCall("index_knowledge_batch", start, err)
	if err != nil {
		return nil, BulkCreateOutput{}, MapError(err)
	}
	return nil, BulkCreateOutput{CreatedIDs: res.CreatedIDs, FailedIndex: res.FailedIndex}, nil
}

func (s *Server) handleFindSimilar(ctx context.Context, _ *mcp.CallToolRequest, in FindSimilarInput) (
	*mcp.CallToolResult,
	FindSimilarOutput,
	error,
) {
	start := time.Now()
	hits, err := s.engine.FindSimilar(ctx, s.ownerID, in.MemoryID, in.Limit, in.Threshold)
	s.logCall("find_similar_knowledge", start, err)
	if err != nil {
		return nil, FindSimilarOutput{}, MapError(err)
	}
	return nil, FindSimilarOutput{Hits: toSemanticHitOuts(hits)}, nil
}
