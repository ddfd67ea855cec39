package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowedHTTPMethods restricts requests to the methods this API actually
// uses (GET for health/ws upgrade, POST for session/admin actions), blocking
// TRACE/CONNECT and other methods with no route here anyway.
func AllowedHTTPMethods() gin.HandlerFunc {
	allowed := map[string]bool{
		http.MethodGet:  true,
		http.MethodPost: true,
	}

	return func(c *gin.Context) {
		if !allowed[c.Request.Method] {
			c.Header("Allow", "GET, POST")
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
				"error": "method not allowed",
			})
			return
		}
		c.Next()
	}
}
