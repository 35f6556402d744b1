// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity for operator-facing routes. The
// service sits behind the fleet's SSO gateway, which authenticates the
// operator and forwards the verified principal in X-Actor-ID. This
// middleware lifts that header into the Gin context so handlers and audit
// records share one source of truth for "who did this".
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// actorIDHeader carries the authenticated principal set by the gateway.
const actorIDHeader = "X-Actor-ID"

// Identity stores the forwarded principal in the Gin context under
// "actorID". When require is true, requests without a principal are
// rejected with 401; agent routes pass require=false since agents
// authenticate by registration instead.
func Identity(require bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(actorIDHeader)
		if actor != "" {
			c.Set(actorIDKey, actor)
		}
		if require && actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing actor identity",
			})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the caller identity set by Identity, or "" when absent.
func ActorFrom(c *gin.Context) string {
	if v, ok := c.Get(actorIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
