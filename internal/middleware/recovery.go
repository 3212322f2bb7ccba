package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"travelchat-backend/pkg/logger"
	"travelchat-backend/pkg/response"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context()).Error("Panic recovered",
					zap.Any("panic", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"))

				if !c.Writer.Written() {
					response.InternalError(c, "Internal server error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HealthInfo describes the process for /health
type HealthInfo struct {
	ServiceName string
	Storage     string
	// Sessions reports the live websocket sessions on this replica
	Sessions func() int
}

// HealthHandler serves the liveness document
func HealthHandler(info HealthInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":  "healthy",
			"service": info.ServiceName,
			"storage": info.Storage,
			"time":    time.Now().UTC(),
		}
		if info.Sessions != nil {
			body["sessions"] = info.Sessions()
		}
		c.JSON(http.StatusOK, body)
	}
}
