package transport

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/models"
	"github.com/vircadia/world-realtime-core/internal/ws"
)

// handleWebSocket validates the session token before upgrading, per
// spec.md §4.6 ("reject before upgrade whenever possible"), mirroring the
// teacher's agent_websocket.go HandleAgentConnection: query-param
// extraction, a manager check, then upgrade only on success.
func (s *Server) handleWebSocket(c *gin.Context) {
	log := logging.Transport()
	token := c.Query("token")
	provider := c.Query("provider")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token query parameter"})
		return
	}
	if provider == "" {
		provider = "default"
	}

	binding, err := s.auth.Validate(c.Request.Context(), token)
	if err != nil {
		log.Warn().Err(err).Msg("rejected websocket upgrade: invalid session")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	h := &connHandler{
		server:    s,
		sessionID: binding.SessionID,
		agentID:   binding.AgentID,
		token:     token,
		provider:  provider,
		queryConn: s.dispatch.NewConnection(binding.SessionID, token),
	}

	client := ws.NewClient(binding.SessionID, conn, h)
	h.client = client

	if err := s.auth.Bind(c.Request.Context(), binding, provider, client); err != nil {
		log.Warn().Err(err).Str("session_id", binding.SessionID).Msg("rejected websocket upgrade: session cap exceeded")
		client.CloseWithReason(1008, "too many active sessions for this agent")
		h.queryConn.Close()
		return
	}
	s.registry.Add(client)
	if greeting, err := json.Marshal(ws.ConnectionEstablishedFrame{Type: ws.FrameConnectionEstablished, AgentID: binding.AgentID}); err == nil {
		client.Enqueue(greeting)
	}

	sessionID := binding.SessionID
	if err := s.notifyB.Register(sessionID, func(n models.Notification) {
		s.fanout.DeliverNotification(sessionID, n)
	}); err != nil {
		log.Warn().Err(err).Str("session_id", binding.SessionID).Msg("failed to register notification bridge")
	}

	client.Run(c.Request.Context())
}
