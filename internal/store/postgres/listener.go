package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/vircadia/world-realtime-core/internal/models"
)

// listenerPool is the single physical LISTEN connection multiplexed across
// sessions by channel name, per spec §9's redesign flag ("the notification
// bridge must pool listeners — one physical listener process-wide"). Its
// reconnect behavior follows the backoff shape of the teacher's
// internal/events/subscriber.go NATS reconnect options, adapted to
// lib/pq's pq.Listener (base 200ms, cap 5s, 20% jitter, per spec §4.3).
type listenerPool struct {
	dsn string

	mu       sync.Mutex
	listener *pq.Listener
	subs     map[string]chan models.Notification
}

func newListenerPool(dsn string) *listenerPool {
	p := &listenerPool{dsn: dsn, subs: make(map[string]chan models.Notification)}
	p.listener = pq.NewListener(dsn, 200*time.Millisecond, 5*time.Second, p.eventCallback)
	go p.dispatchLoop()
	return p
}

func (p *listenerPool) eventCallback(ev pq.ListenerEventType, err error) {
	if err != nil {
		log.Warn().Err(err).Msg("notification listener event")
	}
}

func (p *listenerPool) dispatchLoop() {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for n := range p.listener.Notify {
		if n == nil {
			// Connection lost; pq.Listener reconnects and resubscribes its
			// own channel list internally. Messages received during the
			// gap are accepted as lost, per spec §4.3 — the next tick
			// snapshot restores correctness.
			jitter := time.Duration(rand.Int63n(int64(backoff) / 5))
			time.Sleep(backoff + jitter)
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = 200 * time.Millisecond

		var note models.Notification
		if err := json.Unmarshal([]byte(n.Extra), &note); err != nil {
			log.Warn().Err(err).Str("channel", n.Channel).Msg("malformed notification payload")
			continue
		}

		p.mu.Lock()
		ch, ok := p.subs[n.Channel]
		p.mu.Unlock()
		if ok {
			select {
			case ch <- note:
			default:
				log.Warn().Str("channel", n.Channel).Msg("notification dropped, subscriber not draining")
			}
		}
	}
}

func (p *listenerPool) subscribe(sessionID string) (<-chan models.Notification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.subs[sessionID]; ok {
		return ch, nil
	}
	if err := p.listener.Listen(sessionID); err != nil && err != pq.ErrChannelAlreadyOpen {
		return nil, fmt.Errorf("listen on channel %s: %w", sessionID, err)
	}
	ch := make(chan models.Notification, 64)
	p.subs[sessionID] = ch
	return ch, nil
}

func (p *listenerPool) unsubscribe(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.subs[sessionID]
	if !ok {
		return nil
	}
	delete(p.subs, sessionID)
	close(ch)
	return p.listener.Unlisten(sessionID)
}

func (p *listenerPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	_ = p.listener.Close()
}

func (p *Postgres) Listen(ctx context.Context, sessionID string) (<-chan models.Notification, error) {
	if p.listener == nil {
		return nil, fmt.Errorf("listener pool not initialized")
	}
	return p.listener.subscribe(sessionID)
}

func (p *Postgres) Unlisten(sessionID string) error {
	if p.listener == nil {
		return nil
	}
	return p.listener.unsubscribe(sessionID)
}
