package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/rentaltax/internal/logger"
)

// Recovery creates a middleware that recovers from panics and logs them.
// It returns a 500 Internal Server Error response instead of crashing.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(c)

				// The request logger already carries request_id
				requestLogger := GetLogger(c)
				if requestLogger == nil {
					requestLogger = log.WithRequestID(requestID)
				}

				requestLogger.Error(
					"Panic recovered",
					fmt.Errorf("panic: %v", err),
					map[string]interface{}{
						"method": c.Request.Method,
						"path":   c.Request.URL.Path,
						"stack":  string(debug.Stack()),
					},
				)

				// Same envelope as errors.InternalServerError; that package
				// imports this one, so the body is built here.
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code": 1,
					"error": gin.H{
						"code":       "INTERNAL_SERVER_ERROR",
						"message":    "An unexpected error occurred",
						"request_id": requestID,
					},
				})
			}
		}()

		c.Next()
	}
}
