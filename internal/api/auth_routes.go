package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/membank-io/membank/internal/auth"
	"github.com/membank-io/membank/internal/store"
)

// authAPI serves registration and login. Both routes stay outside the
// bearer middleware; everything else on the server requires the token
// login issues.
type authAPI struct {
	svc *auth.Service
}

func newAuthAPI(svc *auth.Service) *authAPI {
	return &authAPI{svc: svc}
}

func (a *authAPI) registerRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	g.POST("/register", a.register)
	g.POST("/login", a.login)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse is the public view of a user. The password hash never
// leaves the store layer.
type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func (a *authAPI) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := a.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *authAPI) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	token, _, err := a.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
