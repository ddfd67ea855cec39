package ws

import (
	"context"
	"encoding/json"

	"github.com/vircadia/world-realtime-core/internal/validator"
)

// dispatchFrame decodes raw into its concrete frame type and invokes the
// matching Handler method. Returns false on an unparseable payload or an
// unknown tag, which the caller turns into a protocol-violation close, per
// spec.md §7 and §9's tagged-variant redesign flag.
func (c *Client) dispatchFrame(ctx context.Context, raw []byte) bool {
	tag, err := parseType(raw)
	if err != nil {
		return false
	}

	switch tag {
	case FrameHeartbeat:
		c.handler.OnHeartbeat(ctx)
		c.Enqueue(marshal(struct {
			Type FrameType `json:"type"`
		}{FrameHeartbeatAck}))

	case FrameConfigRequest:
		resp := c.handler.OnConfigRequest(ctx)
		resp.Type = FrameConfigResponse
		c.Enqueue(marshal(resp))

	case FrameQuery:
		var q QueryFrame
		if err := json.Unmarshal(raw, &q); err != nil {
			return false
		}
		resp := c.handler.OnQuery(ctx, q)
		resp.Type = FrameQueryResponse
		c.Enqueue(marshal(resp))

	case FrameSubscribe:
		var s SubscribeFrame
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		if err := validator.ValidateStruct(s); err != nil {
			c.Enqueue(marshal(SubscribeResponseFrame{
				Type: FrameSubscribeResponse, Channel: s.Channel,
				Success: false, Error: "invalid channel: " + err.Error(),
			}))
			return true
		}
		resp := c.handler.OnSubscribe(ctx, s.Channel)
		resp.Type = FrameSubscribeResponse
		c.Enqueue(marshal(resp))

	case FrameUnsubscribe:
		var s SubscribeFrame
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		if err := validator.ValidateStruct(s); err != nil {
			c.Enqueue(marshal(UnsubscribeResponseFrame{
				Type: FrameUnsubscribeResponse, Channel: s.Channel, Success: false,
			}))
			return true
		}
		resp := c.handler.OnUnsubscribe(ctx, s.Channel)
		resp.Type = FrameUnsubscribeResponse
		c.Enqueue(marshal(resp))

	default:
		return false
	}

	return true
}
