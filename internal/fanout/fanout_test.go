package fanout

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vircadia/world-realtime-core/internal/cache"
	"github.com/vircadia/world-realtime-core/internal/models"
	"github.com/vircadia/world-realtime-core/internal/store"
)

type fakeStore struct {
	store.Store
	canSubscribe bool
	permitted    map[string][]string
}

func (f *fakeStore) CanSubscribe(ctx context.Context, sessionID, syncGroup string) (bool, error) {
	return f.canSubscribe, nil
}

func (f *fakeStore) FilterPermitted(ctx context.Context, syncGroup string, candidates []string, changes models.ChangeSet) (map[string][]string, error) {
	return f.permitted, nil
}

type fakeOutbound struct {
	mu        sync.Mutex
	delivered map[string][][]byte
	accept    bool
}

func newFakeOutbound(accept bool) *fakeOutbound {
	return &fakeOutbound{delivered: make(map[string][][]byte), accept: accept}
}

func (f *fakeOutbound) Enqueue(sessionID string, frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accept {
		f.delivered[sessionID] = append(f.delivered[sessionID], frame)
	}
	return f.accept
}

func TestSubscribeDeniedWhenPolicyRejects(t *testing.T) {
	fs := &fakeStore{canSubscribe: false}
	m := New(fs, newFakeOutbound(true))

	err := m.Subscribe(context.Background(), "s1", "public.NORMAL")
	require.Error(t, err)
}

func TestSubscribeThenUnsubscribeIsIdempotent(t *testing.T) {
	fs := &fakeStore{canSubscribe: true}
	m := New(fs, newFakeOutbound(true))

	require.NoError(t, m.Subscribe(context.Background(), "s1", "public.NORMAL"))
	assert.Contains(t, m.Subscribers("public.NORMAL"), "s1")

	m.Unsubscribe("s1", "public.NORMAL")
	assert.NotContains(t, m.Subscribers("public.NORMAL"), "s1")

	// Unsubscribing again must not panic or error.
	m.Unsubscribe("s1", "public.NORMAL")
}

func TestDeliverFiltersByPermission(t *testing.T) {
	fs := &fakeStore{canSubscribe: true, permitted: map[string][]string{"e1": {"s1"}}}
	outbound := newFakeOutbound(true)
	m := New(fs, outbound)

	require.NoError(t, m.Subscribe(context.Background(), "s1", "public.NORMAL"))
	require.NoError(t, m.Subscribe(context.Background(), "s2", "public.NORMAL"))

	changes := models.ChangeSet{
		SyncGroup: "public.NORMAL",
		Entities:  []models.Change{{Kind: models.KindEntity, ID: "e1", Operation: models.OpInsert, Fields: map[string]interface{}{"general__entity_name": "Test WS Update Entity"}}},
	}
	m.Deliver(context.Background(), models.Tick{Number: 1}, changes)

	assert.Len(t, outbound.delivered["s1"], 1)
	assert.Len(t, outbound.delivered["s2"], 0)
}

func TestSubscribeWithDisabledDirectoryIsNoOp(t *testing.T) {
	fs := &fakeStore{canSubscribe: true}
	m := New(fs, newFakeOutbound(true))

	disabled, err := cache.NewCache(cache.Config{Enabled: false})
	require.NoError(t, err)
	m.WithDirectory(disabled)

	require.NoError(t, m.Subscribe(context.Background(), "s1", "public.NORMAL"))
	m.Unsubscribe("s1", "public.NORMAL")
}

// TestDeliverToleratesOutboundRejection checks Deliver doesn't panic or
// abort the rest of the batch when the outbound sink rejects a frame.
// Closing the rejected session's connection with 1011 "Backpressure" is the
// Outbound implementation's responsibility (internal/ws.Registry.Enqueue),
// not fanout's — see internal/ws's registry tests for that behavior.
func TestDeliverToleratesOutboundRejection(t *testing.T) {
	fs := &fakeStore{canSubscribe: true, permitted: map[string][]string{"e1": {"s1"}}}
	outbound := newFakeOutbound(false)
	m := New(fs, outbound)
	require.NoError(t, m.Subscribe(context.Background(), "s1", "public.NORMAL"))

	changes := models.ChangeSet{
		SyncGroup: "public.NORMAL",
		Entities:  []models.Change{{Kind: models.KindEntity, ID: "e1", Operation: models.OpInsert, Fields: map[string]interface{}{}}},
	}
	m.Deliver(context.Background(), models.Tick{Number: 1}, changes)
}
