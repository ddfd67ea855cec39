package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vircadia/world-realtime-core/internal/logging"
)

// StructuredLoggerConfig controls which REST requests StructuredLogger logs.
type StructuredLoggerConfig struct {
	SkipPaths []string
}

// DefaultStructuredLoggerConfig skips the liveness probe to keep it out of
// the access log.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{SkipPaths: []string{"/health"}}
}

// StructuredLogger logs one zerolog event per REST request, correlated by
// request id. The WebSocket upgrade request itself is logged here too; frame
// traffic after the upgrade is logged by internal/ws instead.
func StructuredLogger(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		event := logging.Transport().Info()
		if status >= 500 {
			event = logging.Transport().Error()
		} else if status >= 400 {
			event = logging.Transport().Warn()
		}

		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())
		if len(c.Errors) > 0 {
			event.Str("errors", c.Errors.String())
		}
		event.Msg("request")
	}
}
