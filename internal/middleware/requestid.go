package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Tags every request with an ID for log correlation. An inbound
// X-Request-ID is honored so upstream proxies can trace calls through.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}
