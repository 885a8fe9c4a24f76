package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/zlog"

	"eventhub/internal/auth"
	"eventhub/internal/dto"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := zlog.Logger.Info()
		if status >= http.StatusInternalServerError {
			ev = zlog.Logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request handled")
	}
}

// Auth rejects requests without a valid bearer token and stores the caller's
// identity on the context.
func Auth(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := v.FromHeader(c.GetHeader("Authorization"))
		if err != nil {
			desc := "Invalid or expired token"
			if errors.Is(err, auth.ErrMissingToken) {
				desc = "Authorization header required"
			}
			dto.UnauthorizedError(c, desc)
			c.Abort()
			return
		}
		c.Set(auth.ContextKey, id)
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok || !id.Admin {
			dto.ForbiddenError(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func Identity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(auth.ContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
