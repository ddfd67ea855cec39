package transport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/auth"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/middleware"
)

type bootstrapTokenRequest struct {
	OperatorID  string `json:"operator_id" binding:"required"`
	OperatorKey string `json:"operator_key" binding:"required"`
}

// handleBootstrapTokenExchange trades a long-lived bcrypt-hashed operator
// key for a short-lived bootstrap JWT, per SPEC_FULL.md's operator-tooling
// wiring of golang.org/x/crypto/bcrypt alongside the JWT bootstrap path.
func (s *Server) handleBootstrapTokenExchange(c *gin.Context) {
	if s.bootstrap == nil || s.operatorKeyHash == "" {
		c.JSON(http.StatusServiceUnavailable, apperr.ServiceUnavailable("admin").ToResponse())
		return
	}

	var req bootstrapTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.BadRequest("operator_id and operator_key are required").ToResponse())
		return
	}

	if !auth.CompareOperatorKey(req.OperatorKey, s.operatorKeyHash) {
		c.JSON(http.StatusUnauthorized, apperr.Unauthorized("invalid operator key").ToResponse())
		return
	}

	token, err := s.bootstrap.IssueToken(req.OperatorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apperr.New("BOOTSTRAP_ISSUE_FAILED", "failed to issue bootstrap token").ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// requireBootstrapToken gates the /admin routes behind a bearer bootstrap
// JWT, per SPEC_FULL.md's admin/system bootstrap token path. Absent
// configuration, the whole group reports unavailable rather than silently
// accepting every caller.
func (s *Server) requireBootstrapToken(c *gin.Context) {
	if s.bootstrap == nil {
		c.JSON(http.StatusServiceUnavailable, apperr.ServiceUnavailable("admin").ToResponse())
		c.Abort()
		return
	}

	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, apperr.Unauthorized("missing bootstrap token").ToResponse())
		c.Abort()
		return
	}

	claims, err := s.bootstrap.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apperr.Unauthorized("invalid bootstrap token").ToResponse())
		c.Abort()
		return
	}

	c.Set("operator_id", claims.OperatorID)
	c.Next()
}

// handleAdminInvalidateSession force-invalidates a session by id without
// requiring the session's own opaque token, for operator/service use when a
// connection's token is unknown or compromised.
func (s *Server) handleAdminInvalidateSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, apperr.BadRequest("session id is required").ToResponse())
		return
	}

	if err := s.auth.Invalidate(c.Request.Context(), sessionID); err != nil {
		appErr, ok := err.(*apperr.Error)
		if !ok {
			appErr = apperr.DatabaseError(err)
		}
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	logging.Transport().Info().
		Str("request_id", middleware.GetRequestID(c)).
		Str("session_id", sessionID).
		Str("operator_id", c.GetString("operator_id")).
		Msg("session force-invalidated by operator")

	c.JSON(http.StatusOK, gin.H{"status": "ok", "operator_id": c.GetString("operator_id")})
}
