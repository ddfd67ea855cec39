package auth

import (
	"context"
	"sync"
	"time"

	"github.com/vircadia/world-realtime-core/internal/logging"
)

// Start launches the heartbeat sweep: a single scheduled task that wakes
// every checkInterval, per spec.md §4.1. Grounded on the teacher's
// internal/websocket/agent_hub.go checkStaleConnections, driven by a
// staleCheckTicker of the same shape.
func (m *Manager) Start(ctx context.Context) {
	go m.sweepLoop(ctx)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	log := logging.Auth()
	for {
		select {
		case <-ticker.C:
			m.sweep(ctx)
		case <-m.stopCh:
			log.Info().Msg("heartbeat sweep stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep re-validates every session whose last local touch exceeds
// checkInterval, evicting any that fail. Re-validation runs bounded in
// parallel to avoid a thundering-herd of store round-trips, per spec.md
// §4.1's "re-validation is bounded in parallel to avoid storms."
func (m *Manager) sweep(ctx context.Context) {
	now := time.Now()

	m.touchMu.Lock()
	var stale []string
	for sessionID, last := range m.lastTouch {
		if now.Sub(last) > m.checkInterval {
			stale = append(stale, sessionID)
		}
	}
	m.touchMu.Unlock()

	if len(stale) == 0 {
		return
	}

	const maxParallel = 16
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for _, sessionID := range stale {
		sessionID := sessionID
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			m.revalidate(ctx, sessionID)
		}()
	}
	wg.Wait()
}

func (m *Manager) revalidate(ctx context.Context, sessionID string) {
	info, err := m.store.ValidateSession(ctx, sessionID)
	log := logging.Auth()
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("heartbeat re-validation failed transiently, retrying next sweep")
		return
	}
	if info.Active && info.ExpiresAt.After(time.Now()) {
		return
	}

	m.mu.RLock()
	e, ok := m.connections[sessionID]
	m.mu.RUnlock()
	if ok {
		e.conn.CloseWithReason(1000, "Session expired")
	}

	m.mu.Lock()
	delete(m.connections, sessionID)
	m.mu.Unlock()

	m.touchMu.Lock()
	delete(m.lastTouch, sessionID)
	m.touchMu.Unlock()

	log.Info().Str("session_id", sessionID).Msg("session evicted by heartbeat sweep")
}
