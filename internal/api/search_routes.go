package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/engine"
)

// searchAPI serves keyword and semantic search.
type searchAPI struct {
	engine *engine.Engine
}

func newSearchAPI(eng *engine.Engine) *searchAPI {
	return &searchAPI{engine: eng}
}

func (a *searchAPI) registerRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", a.keyword)
	rg.POST("/search/semantic", a.semantic)
}

func (a *searchAPI) keyword(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	results, err := a.engine.SearchMemories(c.Request.Context(), owner, c.Query("q"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": toMemoryResponses(results),
		"count":   len(results),
	})
}

type semanticSearchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
	ContextID *int64  `json:"contextId"`
	NoCache   bool    `json:"noCache"`
}

func (a *searchAPI) semantic(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req semanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := a.engine.SearchSemantic(c.Request.Context(), engine.SearchSemanticInput{
		OwnerID:   owner,
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		ContextID: req.ContextID,
		NoCache:   req.NoCache,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hits":   toSemanticHitResponses(res.Hits),
		"count":  len(res.Hits),
		"cached": res.Cached,
	})
}
