// Package ws implements the replication fabric's per-connection transport:
// the tagged-variant WebSocket frame protocol and the read/write pumps that
// drive one connection, per spec.md §4.6 and §6.
//
// The frame set is reified as a tagged variant with an exhaustive match in
// both directions, per spec.md §9's redesign flag ("reify the frame set as
// a tagged variant... unknown tags generate a protocol-violation close, not
// silent drop").
package ws

import "encoding/json"

// FrameType is the wire-level discriminator, spec.md §6.
type FrameType string

const (
	FrameConnectionEstablished FrameType = "CONNECTION_ESTABLISHED"
	FrameHeartbeat             FrameType = "HEARTBEAT"
	FrameHeartbeatAck          FrameType = "HEARTBEAT_ACK"
	FrameConfigRequest         FrameType = "CONFIG_REQUEST"
	FrameConfigResponse        FrameType = "CONFIG_RESPONSE"
	FrameQuery                 FrameType = "QUERY"
	FrameQueryResponse         FrameType = "QUERY_RESPONSE"
	FrameSubscribe             FrameType = "SUBSCRIBE"
	FrameSubscribeResponse     FrameType = "SUBSCRIBE_RESPONSE"
	FrameUnsubscribe           FrameType = "UNSUBSCRIBE"
	FrameUnsubscribeResponse   FrameType = "UNSUBSCRIBE_RESPONSE"
	FrameSyncGroupUpdates      FrameType = "SYNC_GROUP_UPDATES_RESPONSE"
	FrameNotificationEntity    FrameType = "NOTIFICATION_ENTITY_UPDATE"
	FrameNotificationScript    FrameType = "NOTIFICATION_ENTITY_SCRIPT_UPDATE"
	FrameError                 FrameType = "ERROR"
)

// envelope is the wire shape every frame shares: {"type": <tag>, ...}.
type envelope struct {
	Type FrameType `json:"type"`
}

// QueryFrame is the client->server QUERY payload.
type QueryFrame struct {
	Type      FrameType     `json:"type"`
	RequestID string        `json:"request_id"`
	Query     string        `json:"query"`
	Parameters []interface{} `json:"parameters"`
}

// SubscribeFrame covers both SUBSCRIBE and UNSUBSCRIBE, which share a shape.
// Channel must be a sync group identifier, e.g. "public.NORMAL".
type SubscribeFrame struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel" validate:"required,syncgroup"`
}

// QueryResponseFrame is the server->client QUERY_RESPONSE payload.
type QueryResponseFrame struct {
	Type      FrameType                `json:"type"`
	RequestID string                   `json:"request_id"`
	Result    []map[string]interface{} `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// SubscribeResponseFrame is the server->client SUBSCRIBE_RESPONSE payload.
type SubscribeResponseFrame struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// UnsubscribeResponseFrame is the server->client UNSUBSCRIBE_RESPONSE payload.
type UnsubscribeResponseFrame struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel"`
	Success bool      `json:"success"`
}

// ConnectionEstablishedFrame greets a freshly upgraded connection.
type ConnectionEstablishedFrame struct {
	Type    FrameType `json:"type"`
	AgentID string    `json:"agent_id"`
}

// ConfigResponseFrame answers CONFIG_REQUEST.
type ConfigResponseFrame struct {
	Type      FrameType `json:"type"`
	Heartbeat struct {
		IntervalMs int64 `json:"interval"`
		TimeoutMs  int64 `json:"timeout"`
	} `json:"heartbeat"`
	Session struct {
		MaxAgeMs           int64 `json:"max_age_ms"`
		CleanupIntervalMs  int64 `json:"cleanup_interval_ms"`
		InactiveTimeoutMs  int64 `json:"inactive_timeout_ms"`
	} `json:"session"`
}

// ErrorFrame is the generic ERROR payload sent before a protocol-violation
// close, per spec.md §7.
type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
}

func marshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

// parseType extracts only the discriminator so the caller can dispatch to
// the right concrete decode, without assuming a shape up front.
func parseType(raw []byte) (FrameType, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", err
	}
	return e.Type, nil
}
