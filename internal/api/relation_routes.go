package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/engine"
)

// relationAPI serves typed edges between memories.
type relationAPI struct {
	engine *engine.Engine
}

func newRelationAPI(eng *engine.Engine) *relationAPI {
	return &relationAPI{engine: eng}
}

func (a *relationAPI) registerRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/relations")
	g.POST("", a.create)
	g.POST("/bulk", a.bulk)
}

type createRelationRequest struct {
	SourceID int64             `json:"sourceId"`
	TargetID int64             `json:"targetId"`
	Type     string            `json:"type"`
	Strength float64           `json:"strength"`
	Metadata map[string]string `json:"metadata"`
}

func (r createRelationRequest) toInput() engine.RelationInput {
	return engine.RelationInput{
		SourceID: r.SourceID,
		TargetID: r.TargetID,
		Type:     r.Type,
		Strength: r.Strength,
		Metadata: r.Metadata,
	}
}

func (a *relationAPI) create(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req createRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	rel, err := a.engine.CreateRelation(c.Request.Context(), owner, req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}
	// A deduplicated edge reports the existing row instead of a new one.
	status := http.StatusCreated
	if !rel.Created {
		status = http.StatusOK
	}
	c.JSON(status, rel)
}

type bulkRelationsRequest struct {
	Relations []createRelationRequest `json:"relations"`
}

func (a *relationAPI) bulk(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req bulkRelationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	items := make([]engine.RelationInput, 0, len(req.Relations))
	for _, r := range req.Relations {
		items = append(items, r.toInput())
	}

	res, err := a.engine.BulkCreateRelations(c.Request.Context(), owner, items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
