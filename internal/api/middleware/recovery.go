package middleware

import (
	"errors"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"catalogsync/internal/logger"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500. A client that went away is not
// worth a stack trace.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && brokenConnection(err) {
			c.Abort()
			return
		}

		if log.Level() == "debug" {
			log.Error("[Recovery] panic in %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, recovered, debug.Stack())
		} else {
			log.Error("[Recovery] panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

func brokenConnection(err error) bool {
	var ne *net.OpError
	if !errors.As(err, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
