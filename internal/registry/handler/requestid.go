package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey is the gin context key under which the request id is stored.
const requestIDKey = "agentdir_request_id"

// RequestID returns a Gin middleware that assigns each request a UUID,
// honoring an X-Request-ID supplied by the caller, and echoes it on the
// response so heartbeat failures can be correlated across agent and
// registry logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestIDFromCtx returns the request id assigned by RequestID, or "".
func RequestIDFromCtx(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
