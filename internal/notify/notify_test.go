package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vircadia/world-realtime-core/internal/models"
	"github.com/vircadia/world-realtime-core/internal/store"
)

type fakeStore struct {
	store.Store
	ch           chan models.Notification
	unlistenedID string
}

func (f *fakeStore) Listen(ctx context.Context, sessionID string) (<-chan models.Notification, error) {
	return f.ch, nil
}

func (f *fakeStore) Unlisten(sessionID string) error {
	f.unlistenedID = sessionID
	return nil
}

func TestRegisterForwardsNotificationsToSink(t *testing.T) {
	ch := make(chan models.Notification, 1)
	fs := &fakeStore{ch: ch}
	b := New(fs)

	received := make(chan models.Notification, 1)
	require.NoError(t, b.Register("s1", func(n models.Notification) { received <- n }))

	ch <- models.Notification{ID: "e1", Kind: models.NotifyEntity}

	select {
	case n := <-received:
		assert.Equal(t, "e1", n.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded notification")
	}
}

func TestUnregisterCallsStoreUnlisten(t *testing.T) {
	fs := &fakeStore{ch: make(chan models.Notification)}
	b := New(fs)
	require.NoError(t, b.Register("s1", func(models.Notification) {}))

	b.Unregister("s1")
	assert.Equal(t, "s1", fs.unlistenedID)
}
