package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/engine"
	apperrors "github.com/membank-io/membank/internal/errors"
)

// memoryAPI serves memory CRUD plus the per-memory relation listing and
// summary endpoints that live under /memories/:id.
type memoryAPI struct {
	engine *engine.Engine
}

func newMemoryAPI(eng *engine.Engine) *memoryAPI {
	return &memoryAPI{engine: eng}
}

func (a *memoryAPI) registerRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/memories")
	g.GET("", a.list)
	g.POST("", a.create)
	g.GET("/:id", a.get)
	g.PUT("/:id", a.update)
	g.DELETE("/:id", a.delete)
	g.GET("/:id/relations", a.relations)
	g.POST("/:id/summary", a.summarize)
}

type createMemoryRequest struct {
	Title           string            `json:"title"`
	Content         string            `json:"content"`
	ContextID       *int64            `json:"contextId"`
	Summary         string            `json:"summary"`
	Category        string            `json:"category"`
	Tags            []string          `json:"tags"`
	Metadata        map[string]string `json:"metadata"`
	AccessLevel     string            `json:"accessLevel"`
	Importance      float64           `json:"importance"`
	AutoRelate      bool              `json:"autoRelate"`
	RelateThreshold float64           `json:"relateThreshold"`
}

func (a *memoryAPI) create(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	m, err := a.engine.CreateMemory(c.Request.Context(), engine.CreateMemoryInput{
		OwnerID:         owner,
		Title:           req.Title,
		Content:         []byte(req.Content),
		ContextID:       req.ContextID,
		Summary:         req.Summary,
		Category:        req.Category,
		Tags:            req.Tags,
		Metadata:        req.Metadata,
		AccessLevel:     req.AccessLevel,
		Importance:      req.Importance,
		AutoRelate:      req.AutoRelate,
		RelateThreshold: req.RelateThreshold,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMemoryResponse(m))
}

func (a *memoryAPI) list(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	in := engine.ListMemoriesInput{
		OwnerID:  owner,
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
	}
	if v := c.Query("contextId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(c, apperrors.InvalidInput("invalid contextId: must be a positive integer"))
			return
		}
		in.ContextID = &id
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	in.Limit, in.Offset = limit, offset

	memories, err := a.engine.ListMemories(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"memories": toMemoryResponses(memories),
		"count":    len(memories),
	})
}

func (a *memoryAPI) get(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	includeContent := c.DefaultQuery("content", "true") != "false"

	m, err := a.engine.GetMemory(c.Request.Context(), owner, id, includeContent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(m))
}

type updateMemoryRequest struct {
	Title        *string           `json:"title"`
	Content      *string           `json:"content"`
	ContextID    *int64            `json:"contextId"`
	ClearContext bool              `json:"clearContext"`
	Summary      *string           `json:"summary"`
	Category     *string           `json:"category"`
	Tags         []string          `json:"tags"`
	Metadata     map[string]string `json:"metadata"`
	AccessLevel  *string           `json:"accessLevel"`
	Importance   *float64          `json:"importance"`
}

func (a *memoryAPI) update(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	// Absent JSON fields decode to nil and leave the stored value alone.
	in := engine.UpdateMemoryInput{
		Title:        req.Title,
		ContextID:    req.ContextID,
		ClearContext: req.ClearContext,
		Summary:      req.Summary,
		Category:     req.Category,
		AccessLevel:  req.AccessLevel,
		Importance:   req.Importance,
	}
	if req.Content != nil {
		in.Content = []byte(*req.Content)
		in.HasContent = true
	}
	if req.Tags != nil {
		in.Tags = req.Tags
		in.HasTags = true
	}
	if req.Metadata != nil {
		in.Metadata = req.Metadata
		in.HasMetadata = true
	}

	m, err := a.engine.UpdateMemory(c.Request.Context(), owner, id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(m))
}

func (a *memoryAPI) delete(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := a.engine.DeleteMemory(c.Request.Context(), owner, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *memoryAPI) relations(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	relations, err := a.engine.GetMemoryRelations(c.Request.Context(), owner, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"relations": relations,
		"count":     len(relations),
	})
}

type summarizeRequest struct {
	MaxChars int `json:"maxChars"`
}

func (a *memoryAPI) summarize(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	// An empty body asks for the default summary length.
	var req summarizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	summary, err := a.engine.SummarizeMemory(c.Request.Context(), owner, id, req.MaxChars)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memoryId": id, "summary": summary})
}

// queryInt parses an optional non-negative integer query parameter. The
// second return is false after the request was aborted.
func queryInt(c *gin.Context, name string) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(c, apperrors.InvalidInput("invalid %s: must be a non-negative integer", name))
		return 0, false
	}
	return n, true
}
