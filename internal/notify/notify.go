// Package notify implements the notification bridge: a per-session
// subscription to the store's publish/subscribe channel, forwarding parsed
// notifications to that session's send queue, per spec.md §4.3.
//
// The reconnect-with-backoff and channel-pooling mechanics live in the store
// adapter (store/postgres listens once, process-wide, per spec.md §9's
// redesign flag); this package owns the per-session registration lifecycle
// and the fan-out into each session's sink, grounded on the reconnect
// handler shape of the teacher's internal/events/subscriber.go Subscriber.
package notify

import (
	"context"
	"sync"

	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/models"
	"github.com/vircadia/world-realtime-core/internal/store"
)

// Sink receives notifications for one session. internal/fanout implements
// this to enqueue onto the session's outbound WebSocket queue.
type Sink func(models.Notification)

// Bridge manages the set of sessions currently listening for store
// notifications.
type Bridge struct {
	store store.Store

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a notification bridge over a store.
func New(s store.Store) *Bridge {
	return &Bridge{store: s, cancels: make(map[string]context.CancelFunc)}
}

// Register opens (or shares) a listener for sessionID and forwards every
// notification received on it to sink until Unregister is called.
func (b *Bridge) Register(sessionID string, sink Sink) error {
	ch, err := b.store.Listen(context.Background(), sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancels[sessionID] = cancel
	b.mu.Unlock()

	go b.pump(ctx, sessionID, ch, sink)
	return nil
}

func (b *Bridge) pump(ctx context.Context, sessionID string, ch <-chan models.Notification, sink Sink) {
	log := logging.Notify()
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			sink(n)
		case <-ctx.Done():
			log.Debug().Str("session_id", sessionID).Msg("notification registration cancelled")
			return
		}
	}
}

// Unregister tears down a session's listener.
func (b *Bridge) Unregister(sessionID string) {
	b.mu.Lock()
	cancel, ok := b.cancels[sessionID]
	delete(b.cancels, sessionID)
	b.mu.Unlock()

	if ok {
		cancel()
	}
	if err := b.store.Unlisten(sessionID); err != nil {
		logging.Notify().Warn().Err(err).Str("session_id", sessionID).Msg("failed to unlisten")
	}
}
