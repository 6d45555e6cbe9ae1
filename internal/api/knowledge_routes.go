package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/engine"
)

// knowledgeAPI serves document ingestion and corpus analysis.
type knowledgeAPI struct {
	engine *engine.Engine
}

func newKnowledgeAPI(eng *engine.Engine) *knowledgeAPI {
	return &knowledgeAPI{engine: eng}
}

func (a *knowledgeAPI) registerRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/knowledge")
	g.POST("/ingest", a.ingest)
	g.POST("/analyze", a.analyze)
}

type ingestRequest struct {
	Path      string   `json:"path"`
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	ContextID *int64   `json:"contextId"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
}

func (a *knowledgeAPI) ingest(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	// Inline text wins over a path; nil data selects the path route.
	var data []byte
	if req.Text != "" {
		data = []byte(req.Text)
	}

	rep, err := a.engine.IngestKnowledge(c.Request.Context(), engine.IngestInput{
		OwnerID:   owner,
		Path:      req.Path,
		Data:      data,
		Title:     req.Title,
		ContextID: req.ContextID,
		Category:  req.Category,
		Tags:      req.Tags,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

type analyzeRequest struct {
	Mode      string  `json:"mode"`
	MemoryIDs []int64 `json:"memoryIds"`
}

func (a *knowledgeAPI) analyze(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := a.engine.AnalyzeContent(c.Request.Context(), owner, req.Mode, req.MemoryIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
