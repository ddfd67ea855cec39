package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	heartbeats int
	queries    []QueryFrame
	subscribed []string
}

func (f *fakeHandler) OnHeartbeat(ctx context.Context) { f.heartbeats++ }
func (f *fakeHandler) OnConfigRequest(ctx context.Context) ConfigResponseFrame {
	return ConfigResponseFrame{}
}
func (f *fakeHandler) OnQuery(ctx context.Context, req QueryFrame) QueryResponseFrame {
	f.queries = append(f.queries, req)
	return QueryResponseFrame{RequestID: req.RequestID, Result: []map[string]interface{}{{"ok": true}}}
}
func (f *fakeHandler) OnSubscribe(ctx context.Context, channel string) SubscribeResponseFrame {
	f.subscribed = append(f.subscribed, channel)
	return SubscribeResponseFrame{Channel: channel, Success: true}
}
func (f *fakeHandler) OnUnsubscribe(ctx context.Context, channel string) UnsubscribeResponseFrame {
	return UnsubscribeResponseFrame{Channel: channel, Success: true}
}
func (f *fakeHandler) OnClose() {}

func TestDispatchFrameRejectsUnknownTag(t *testing.T) {
	c := &Client{send: make(chan []byte, 1), handler: &fakeHandler{}}
	ok := c.dispatchFrame(context.Background(), []byte(`{"type":"NOT_A_REAL_FRAME"}`))
	assert.False(t, ok)
}

func TestDispatchFrameRejectsMalformedJSON(t *testing.T) {
	c := &Client{send: make(chan []byte, 1), handler: &fakeHandler{}}
	ok := c.dispatchFrame(context.Background(), []byte(`not json`))
	assert.False(t, ok)
}

func TestDispatchHeartbeatRepliesWithAck(t *testing.T) {
	h := &fakeHandler{}
	c := &Client{send: make(chan []byte, 1), handler: h}

	ok := c.dispatchFrame(context.Background(), []byte(`{"type":"HEARTBEAT"}`))
	require.True(t, ok)
	assert.Equal(t, 1, h.heartbeats)

	frame := <-c.send
	var env envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, FrameHeartbeatAck, env.Type)
}

func TestDispatchQueryRoutesRequestAndEchoesRequestID(t *testing.T) {
	h := &fakeHandler{}
	c := &Client{send: make(chan []byte, 1), handler: h}

	ok := c.dispatchFrame(context.Background(), []byte(`{"type":"QUERY","request_id":"r1","query":"SELECT auth.current_agent_id()","parameters":[]}`))
	require.True(t, ok)
	require.Len(t, h.queries, 1)
	assert.Equal(t, "r1", h.queries[0].RequestID)

	frame := <-c.send
	var resp QueryResponseFrame
	require.NoError(t, json.Unmarshal(frame, &resp))
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, FrameQueryResponse, resp.Type)
}

func TestDispatchSubscribeRoutesValidChannel(t *testing.T) {
	h := &fakeHandler{}
	c := &Client{send: make(chan []byte, 1), handler: h}

	ok := c.dispatchFrame(context.Background(), []byte(`{"type":"SUBSCRIBE","channel":"public.NORMAL"}`))
	require.True(t, ok)
	require.Equal(t, []string{"public.NORMAL"}, h.subscribed)

	frame := <-c.send
	var resp SubscribeResponseFrame
	require.NoError(t, json.Unmarshal(frame, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, FrameSubscribeResponse, resp.Type)
}

func TestDispatchSubscribeRejectsMalformedChannel(t *testing.T) {
	h := &fakeHandler{}
	c := &Client{send: make(chan []byte, 1), handler: h}

	ok := c.dispatchFrame(context.Background(), []byte(`{"type":"SUBSCRIBE","channel":"not-a-sync-group"}`))
	require.True(t, ok)
	assert.Empty(t, h.subscribed)

	frame := <-c.send
	var resp SubscribeResponseFrame
	require.NoError(t, json.Unmarshal(frame, &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestDispatchUnsubscribeRejectsMalformedChannel(t *testing.T) {
	h := &fakeHandler{}
	c := &Client{send: make(chan []byte, 1), handler: h}

	ok := c.dispatchFrame(context.Background(), []byte(`{"type":"UNSUBSCRIBE","channel":""}`))
	require.True(t, ok)

	frame := <-c.send
	var resp UnsubscribeResponseFrame
	require.NoError(t, json.Unmarshal(frame, &resp))
	assert.False(t, resp.Success)
}

func TestEnqueueNonBlockingOnFullQueue(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	assert.True(t, c.Enqueue([]byte("a")))
	assert.False(t, c.Enqueue([]byte("b")))
}
