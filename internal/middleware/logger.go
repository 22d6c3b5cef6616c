package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request. The key name is only present once
// the proxy handler has authorized the caller.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		requestID := c.GetString("request_id")
		keyName := c.GetString("key_name")
		if keyName == "" {
			keyName = "-"
		}

		log.Printf("[%s] %s %s - %d - %v - key=%s - %s",
			requestID,
			method,
			path,
			statusCode,
			latency,
			keyName,
			c.ClientIP(),
		)
	}
}
