package transport

import (
	"context"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/dispatch"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/ws"
)

// connHandler implements ws.Handler for one connection, bridging decoded
// frames into auth/dispatch/fanout. This is the seam the ws package's
// interface was built around so it never imports those packages directly.
type connHandler struct {
	server    *Server
	client    *ws.Client
	queryConn *dispatch.Connection

	sessionID string
	agentID   string
	token     string
	provider  string
}

func (h *connHandler) OnHeartbeat(ctx context.Context) {
	h.server.auth.Touch(ctx, h.sessionID)
}

func (h *connHandler) OnConfigRequest(ctx context.Context) ws.ConfigResponseFrame {
	cfg := h.server.cfg
	var resp ws.ConfigResponseFrame
	resp.Heartbeat.IntervalMs = int64(cfg.WSCheckIntervalMs)
	resp.Heartbeat.TimeoutMs = int64(cfg.SessionInactiveTimeoutMs)
	resp.Session.MaxAgeMs = int64(cfg.SessionMaxAgeMs)
	resp.Session.CleanupIntervalMs = int64(cfg.SessionCleanupIntervalMs)
	resp.Session.InactiveTimeoutMs = int64(cfg.SessionInactiveTimeoutMs)
	return resp
}

func (h *connHandler) OnQuery(ctx context.Context, req ws.QueryFrame) ws.QueryResponseFrame {
	replyCh := h.queryConn.Submit(ctx, dispatch.Request{
		RequestID: req.RequestID,
		SQLText:   req.Query,
		Params:    req.Parameters,
	})

	select {
	case resp := <-replyCh:
		out := ws.QueryResponseFrame{RequestID: resp.RequestID, Error: resp.Error}
		if resp.Rows != nil {
			out.Result = resp.Rows
		}
		return out
	case <-ctx.Done():
		return ws.QueryResponseFrame{RequestID: req.RequestID, Error: apperr.QueryTimeout().Code}
	}
}

func (h *connHandler) OnSubscribe(ctx context.Context, channel string) ws.SubscribeResponseFrame {
	if err := h.server.fanout.Subscribe(ctx, h.sessionID, channel); err != nil {
		return ws.SubscribeResponseFrame{Channel: channel, Success: false, Error: err.Error()}
	}
	return ws.SubscribeResponseFrame{Channel: channel, Success: true}
}

func (h *connHandler) OnUnsubscribe(ctx context.Context, channel string) ws.UnsubscribeResponseFrame {
	h.server.fanout.Unsubscribe(h.sessionID, channel)
	return ws.UnsubscribeResponseFrame{Channel: channel, Success: true}
}

func (h *connHandler) OnClose() {
	log := logging.Transport()
	log.Info().Str("session_id", h.sessionID).Msg("connection closed")

	h.queryConn.Close()
	h.server.fanout.UnsubscribeAll(h.sessionID)
	h.server.notifyB.Unregister(h.sessionID)
	h.server.auth.Unbind(h.sessionID, h.agentID, h.provider)
	h.server.registry.Remove(h.sessionID)
}
