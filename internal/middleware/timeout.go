package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig bounds how long a non-WebSocket request may run.
type TimeoutConfig struct {
	Timeout       time.Duration
	ExcludedPaths []string
}

// DefaultTimeoutConfig excludes the WebSocket upgrade path, whose lifetime is
// the connection's, not a single request's.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:       30 * time.Second,
		ExcludedPaths: []string{"/ws"},
	}
}

// Timeout aborts the request with 408 if it outlives config.Timeout.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, excluded := range config.ExcludedPaths {
			if strings.HasPrefix(path, excluded) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   "request timeout",
				"timeout": config.Timeout.String(),
			})
		}
	}
}
