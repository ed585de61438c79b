package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows any origin, method and header, and exposes the headers
// clients need to follow HAL resources.
func CORS() gin.HandlerFunc {
	const (
		allowedMethods = "GET, POST, PATCH, PUT, DELETE, OPTIONS"
		exposedHeaders = "ETag, Location, Link"
		maxAge         = "600"
	)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
		c.Header("Access-Control-Expose-Headers", exposedHeaders)

		if c.Request.Method == http.MethodOptions {
			allowedHeaders := c.GetHeader("Access-Control-Request-Headers")
			if allowedHeaders == "" {
				allowedHeaders = "*"
			}
			c.Header("Access-Control-Allow-Methods", allowedMethods)
			c.Header("Access-Control-Allow-Headers", allowedHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
