package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxJSONPayloadSize bounds the REST admin/session JSON request bodies this
// core accepts; query payloads arrive over the WebSocket frame path instead,
// which enforces its own limits in internal/ws.
const MaxJSONPayloadSize int64 = 1 * 1024 * 1024

// RequestSizeLimiter rejects requests whose declared Content-Length exceeds
// maxSize, and wraps the body in http.MaxBytesReader so a lying Content-Length
// can't be used to smuggle a larger payload past the check.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":       "request entity too large",
				"max_size_mb": float64(maxSize) / (1024 * 1024),
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// DefaultSizeLimiter applies MaxJSONPayloadSize to every REST request.
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxJSONPayloadSize)
}
