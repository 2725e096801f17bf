package middleware

import (
	"time"

	"catalogsync/internal/logger"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request through the service logger. Health
// probes are logged at debug level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		switch {
		case path == "/healthz":
			log.Debug("%s %s %d %s %s", c.Request.Method, path, status, latency, c.ClientIP())
		case status >= 500:
			log.Error("%s %s %d %s %s", c.Request.Method, path, status, latency, c.ClientIP())
		default:
			log.Info("%s %s %d %s %s", c.Request.Method, path, status, latency, c.ClientIP())
		}
	}
}
