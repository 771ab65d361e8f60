package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/watchroom/server/internal/auth"
)

const identityKey = "identity"

// AuthMiddleware verifies the accessToken cookie and stashes the resolved
// identity on the request context.
func AuthMiddleware(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, err := c.Cookie("accessToken")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "no token provided"})
			return
		}
		identity, err := resolver.Resolve(credential)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"msg": "invalid token"})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// CORSMiddleware lets the frontend origin send credentialed requests; the
// accessToken cookie never crosses origins without it.
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
