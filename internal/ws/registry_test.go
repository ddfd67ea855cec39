package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEnqueueOnMissingSessionCountsAsAccepted(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Enqueue("nonexistent", []byte("x")))
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	c := &Client{SessionID: "sess-1", send: make(chan []byte, 1)}

	r.Add(c)
	got, ok := r.Get("sess-1")
	assert.True(t, ok)
	assert.Same(t, c, got)

	assert.True(t, r.Enqueue("sess-1", []byte("frame")))
	assert.Equal(t, []byte("frame"), <-c.send)

	r.Remove("sess-1")
	_, ok = r.Get("sess-1")
	assert.False(t, ok)
}

// TestRegistryEnqueueClosesConnectionOnBackpressure drives a real connection
// (no write pump draining it) until its send buffer overflows, and checks
// the peer observes a 1011 "Backpressure" close per spec.md §4.4/§6/§7.
func TestRegistryEnqueueClosesConnectionOnBackpressure(t *testing.T) {
	var serverClient *Client
	ready := make(chan struct{})
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverClient = NewClient("sess-bp", conn, &fakeHandler{})
		close(ready)
		<-r.Context().Done()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	<-ready
	r := NewRegistry()
	r.Add(serverClient)

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, r.Enqueue("sess-bp", []byte("x")))
	}
	assert.False(t, r.Enqueue("sess-bp", []byte("overflow")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, readErr := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(readErr, 1011))
}
