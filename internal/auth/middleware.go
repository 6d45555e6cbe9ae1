package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ownerKey is the gin context key holding the authenticated user id.
const ownerKey = "auth_owner_id"

// Middleware validates the bearer token and stores the caller's user id
// in the request context. Requests without a valid token are rejected
// with 401 before any handler runs.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		userID, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.log.Debug("token rejected", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ownerKey, userID)
		c.Next()
	}
}

// OwnerID returns the authenticated user id set by Middleware. The second
// return is false on unauthenticated paths.
func OwnerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ownerKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
