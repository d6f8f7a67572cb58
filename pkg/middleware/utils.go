package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/lifeinbox/intake/pkg/logging"
)

// GetRequestID gets the request ID from the context
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// GetOwnerID gets the caller identity set by OwnerMiddleware, if any.
func GetOwnerID(c *gin.Context) string {
	return c.GetString("owner_id")
}

// GetContextLogger gets a logger entry carrying the request context
func GetContextLogger(c *gin.Context, logger logging.Logger) logging.Entry {
	return logger.WithFields(logging.Fields{
		"request_id": GetRequestID(c),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"owner_id":   GetOwnerID(c),
	})
}
