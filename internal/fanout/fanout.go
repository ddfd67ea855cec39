// Package fanout implements subscription fan-out: the session↔sync-group
// membership indices, permission-filtered delta distribution, and the
// backpressure policy, per spec.md §4.4.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/cache"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/models"
	"github.com/vircadia/world-realtime-core/internal/store"
)

// directoryTTL bounds how stale a replica's cross-instance directory entry
// can get if a process dies without running Unsubscribe/UnsubscribeAll.
const directoryTTL = 2 * time.Minute

// Outbound delivers one serialized frame to a session's connection. It
// returns false when the session's outbound queue is full, in which case
// the implementation (internal/ws.Registry) has already closed the
// connection 1011 per spec.md §4.4 — the session itself remains valid and
// may reconnect.
type Outbound interface {
	Enqueue(sessionID string, frame []byte) (accepted bool)
}

// Manager maintains the dual session/sync-group index and distributes
// permission-filtered change sets. Its locking is fine-grained per sync
// group, grounded on the teacher's internal/websocket/hub.go mu
// sync.RWMutex generalized from one lock per Hub to one lock per group.
type Manager struct {
	store    store.Store
	outbound Outbound

	groupMu sync.Map // sync group -> *sync.RWMutex

	mu            sync.RWMutex
	sessionGroups map[string]map[string]struct{} // session id -> sync groups
	groupSessions map[string]map[string]struct{} // sync group -> session ids

	// directory is an optional cross-instance view of group membership,
	// mirrored best-effort so operators running more than one replica can
	// see the full subscriber set rather than just this process's.
	directory *cache.Cache
}

// New constructs a subscription fan-out manager.
func New(s store.Store, outbound Outbound) *Manager {
	return &Manager{
		store:         s,
		outbound:      outbound,
		sessionGroups: make(map[string]map[string]struct{}),
		groupSessions: make(map[string]map[string]struct{}),
	}
}

// WithDirectory attaches the optional cross-instance session directory. A
// nil or disabled cache is a no-op.
func (m *Manager) WithDirectory(c *cache.Cache) *Manager {
	m.directory = c
	return m
}

// publishDirectory mirrors syncGroup's current membership. Callers must
// already hold m.mu (any mode) and pass the membership snapshot directly —
// Subscribers itself takes m.mu.RLock, which would deadlock if called from
// inside a Lock()'d section.
func (m *Manager) publishDirectory(syncGroup string, members []string) {
	if m.directory == nil || !m.directory.IsEnabled() {
		return
	}
	if err := m.directory.Set(context.Background(), cache.GroupMembersKey(syncGroup), members, directoryTTL); err != nil {
		logging.Fanout().Warn().Err(err).Str("sync_group", syncGroup).Msg("failed to publish cross-instance directory entry")
	}
}

func (m *Manager) membersLocked(syncGroup string) []string {
	sessions := m.groupSessions[syncGroup]
	out := make([]string, 0, len(sessions))
	for s := range sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) lockFor(group string) *sync.RWMutex {
	v, _ := m.groupMu.LoadOrStore(group, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

// Subscribe checks the store's access policy before recording membership,
// per spec.md §4.4; rejection returns SUBSCRIBE_DENIED.
func (m *Manager) Subscribe(ctx context.Context, sessionID, syncGroup string) error {
	allowed, err := m.store.CanSubscribe(ctx, sessionID, syncGroup)
	if err != nil {
		return apperr.DatabaseError(err)
	}
	if !allowed {
		return apperr.SubscribeDenied(syncGroup)
	}

	lock := m.lockFor(syncGroup)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionGroups[sessionID] == nil {
		m.sessionGroups[sessionID] = make(map[string]struct{})
	}
	m.sessionGroups[sessionID][syncGroup] = struct{}{}

	if m.groupSessions[syncGroup] == nil {
		m.groupSessions[syncGroup] = make(map[string]struct{})
	}
	m.groupSessions[syncGroup][sessionID] = struct{}{}

	m.publishDirectory(syncGroup, m.membersLocked(syncGroup))
	return nil
}

// Unsubscribe is idempotent: removing a membership that doesn't exist still
// reports success, per spec.md §4.4.
func (m *Manager) Unsubscribe(sessionID, syncGroup string) {
	lock := m.lockFor(syncGroup)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if groups, ok := m.sessionGroups[sessionID]; ok {
		delete(groups, syncGroup)
		if len(groups) == 0 {
			delete(m.sessionGroups, sessionID)
		}
	}
	if sessions, ok := m.groupSessions[syncGroup]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.groupSessions, syncGroup)
		}
	}

	m.publishDirectory(syncGroup, m.membersLocked(syncGroup))
}

// UnsubscribeAll drops every membership for a session, used when its
// connection closes.
func (m *Manager) UnsubscribeAll(sessionID string) {
	m.mu.RLock()
	groups := make([]string, 0, len(m.sessionGroups[sessionID]))
	for g := range m.sessionGroups[sessionID] {
		groups = append(groups, g)
	}
	m.mu.RUnlock()

	for _, g := range groups {
		m.Unsubscribe(sessionID, g)
	}
}

// Subscribers returns a snapshot of sessions currently subscribed to a
// sync group.
func (m *Manager) Subscribers(syncGroup string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := m.groupSessions[syncGroup]
	out := make([]string, 0, len(sessions))
	for s := range sessions {
		out = append(out, s)
	}
	return out
}
