package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vircadia/world-realtime-core/internal/apperr"
)

type validateRequest struct {
	Token string `json:"token" binding:"required"`
}

type logoutRequest struct {
	Token string `json:"token" binding:"required"`
}

// handleSessionValidate lets a caller check a token out-of-band from the
// WebSocket upgrade, e.g. before presenting a reconnect UI.
func (s *Server) handleSessionValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.BadRequest("token is required").ToResponse())
		return
	}

	binding, err := s.auth.Validate(c.Request.Context(), req.Token)
	if err != nil {
		appErr, ok := err.(*apperr.Error)
		if !ok {
			appErr = apperr.Unauthorized("invalid session")
		}
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id":   binding.AgentID,
		"session_id": binding.SessionID,
	})
}

// handleSessionLogout invalidates a session, closing any bound connection.
// Idempotent: invalidating an already-invalid session is not an error, per
// spec.md §4.1's "logout ends the session regardless of connection state."
func (s *Server) handleSessionLogout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.BadRequest("token is required").ToResponse())
		return
	}

	binding, err := s.auth.Validate(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := s.auth.Invalidate(c.Request.Context(), binding.SessionID); err != nil {
		appErr, ok := err.(*apperr.Error)
		if !ok {
			appErr = apperr.DatabaseError(err)
		}
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
