package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/engine"
)

// contextAPI serves memory contexts. Contexts are create-and-read only;
// the update and delete routes are reserved and answer 501.
type contextAPI struct {
	engine *engine.Engine
}

func newContextAPI(eng *engine.Engine) *contextAPI {
	return &contextAPI{engine: eng}
}

func (a *contextAPI) registerRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/contexts")
	g.GET("", a.list)
	g.POST("", a.create)
	g.GET("/:id", a.get)
	g.PUT("/:id", notImplemented("context update"))
	g.DELETE("/:id", notImplemented("context delete"))
}

type createContextRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	AccessLevel string            `json:"accessLevel"`
}

func (a *contextAPI) create(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req createContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	created, err := a.engine.CreateContext(c.Request.Context(), engine.ContextInput{
		OwnerID:     owner,
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		AccessLevel: req.AccessLevel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a *contextAPI) list(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	contexts, err := a.engine.ListContexts(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contexts": contexts,
		"count":    len(contexts),
	})
}

func (a *contextAPI) get(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, err := a.engine.GetContext(c.Request.Context(), owner, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctx)
}
