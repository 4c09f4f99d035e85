package web

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RecoveryHandler is a middleware that recovers from panics
func RecoveryHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Panic recovered: %v\n%s", r, debug.Stack())

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "internal_server_error",
					Code:    http.StatusInternalServerError,
					Message: fmt.Sprintf("Internal server error: %v", r),
				})

				c.Abort()
			}
		}()

		c.Next()
	}
}

// LoggingMiddleware is a middleware that logs requests
func LoggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
			"status": c.Writer.Status(),
			"size":   c.Writer.Size(),
		})

		if len(c.Errors) > 0 {
			entry.Error("Request completed with errors")
		} else {
			entry.Info("Request completed")
		}
	}
}
