package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

const (
	DefaultCompression = gzip.DefaultCompression
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
)

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(io.Discard)
	},
}

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.writer.Write([]byte(s))
}

// Gzip compresses REST responses at the given level, skipping the WebSocket
// upgrade request (Upgrade: websocket), whose body framing gzip would break.
func Gzip(level int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldCompress(c.Request) {
			c.Next()
			return
		}

		var gz *gzip.Writer
		if level == DefaultCompression {
			gz = gzipWriterPool.Get().(*gzip.Writer)
			gz.Reset(c.Writer)
			defer gzipWriterPool.Put(gz)
		} else {
			var err error
			gz, err = gzip.NewWriterLevel(c.Writer, level)
			if err != nil {
				c.Next()
				return
			}
		}
		defer gz.Close()

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, writer: gz}

		c.Next()
		gz.Flush()
	}
}

func shouldCompress(r *http.Request) bool {
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	return !strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
