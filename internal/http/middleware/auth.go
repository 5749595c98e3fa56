// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the REST API. The
// token is the same HS256 JWT the browser presents on the socket handshake;
// its subject is the numeric user id, stashed in the Gin context so handlers
// and the rate limiter can key on it.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flamewall/realtime/internal/auth"
)

// ctxKeyUserID is the Gin context key holding the authenticated user id (uint).
const ctxKeyUserID = "userID"

// UserID returns the authenticated user id stored by BearerAuth.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return 0, false
	}
	id, _ := v.(uint)
	return id, id != 0
}

// BearerAuth rejects requests without a valid "Authorization: Bearer <jwt>"
// header with 401 and a compact JSON body. On success the user id is stored
// in the context and added to the request-scoped logger.
func BearerAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		id, err := auth.Verify(secret, token)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ctxKeyUserID, id)
		lg := LoggerFrom(c).With().Uint("user_id", id).Logger()
		c.Set(ctxKeyLogger, &lg)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
