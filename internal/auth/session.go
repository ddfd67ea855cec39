// Package auth implements the session & auth manager: token validation,
// per-connection identity binding, heartbeat, and invalidation, per
// spec.md §4.1.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/cache"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/store"
)

// sessionCacheTTL bounds how long a validated session can be served from
// cache before Validate re-checks the store, so a store-side revocation is
// never masked for longer than this.
const sessionCacheTTL = 5 * time.Second

// Binding is what validate/bind hand back to the transport: the context a
// connection needs to act on behalf of a session.
type Binding struct {
	AgentID   string
	SessionID string
	Token     string
}

// Closer is anything bound to a session that the heartbeat sweep can close
// when a session is evicted. internal/ws.Client implements this.
type Closer interface {
	CloseWithReason(code int, reason string)
}

// entry tracks one bound connection and the token it was bound with; its
// last local touch time is kept separately in Manager.lastTouch.
type entry struct {
	sessionID string
	token     string
	conn      Closer
}

// Manager is the session manager: spec.md §4.1's validate/bind/touch/
// invalidate operations plus the heartbeat loop. Its active-connections
// index is an RWMutex-guarded map, grounded on the teacher's
// internal/websocket/hub.go Hub.clients field and mu sync.RWMutex.
type Manager struct {
	store store.Store

	checkInterval time.Duration
	maxSessions   int // per (agent, provider) cap, invariant (i)

	mu          sync.RWMutex
	connections map[string]*entry // session id -> bound connection
	perAgent    map[string]int    // "agent|provider" -> active session count

	touchMu     sync.Mutex
	lastTouch   map[string]time.Time
	touchWindow time.Duration

	stopCh chan struct{}

	// cache is an optional read-through Redis cache in front of
	// store.ValidateSession, reusing the teacher's internal/cache.Cache
	// directly. A nil cache, or one built with Config.Enabled false, makes
	// every call fall through to the store.
	cache *cache.Cache
}

// NewManager constructs a session manager. checkInterval is ws_check_interval
// from spec.md §4.1; maxSessions is the configured per-(agent,provider) cap
// from invariant (i), grounded on the teacher's
// internal/middleware/sessionmanagement.go SessionManager.maxSessions field.
func NewManager(s store.Store, checkInterval time.Duration, maxSessions int) *Manager {
	return &Manager{
		store:         s,
		checkInterval: checkInterval,
		maxSessions:   maxSessions,
		connections:   make(map[string]*entry),
		perAgent:      make(map[string]int),
		lastTouch:     make(map[string]time.Time),
		touchWindow:   checkInterval,
		stopCh:        make(chan struct{}),
	}
}

// WithCache attaches a session cache, returning the manager for chaining at
// construction time. A nil cache, or a disabled one, is a valid no-op.
func (m *Manager) WithCache(c *cache.Cache) *Manager {
	m.cache = c
	return m
}

// HashToken mirrors the teacher's tokenhash.go SHA256 session-token path:
// fast to compute, suitable for validation on every frame, per
// SPEC_FULL.md's AMBIENT STACK rationale.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func verifyToken(secret, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(secret)), []byte(hash)) == 1
}

// Validate decodes the token, confirms the store reports the session active
// and unexpired, and the presented secret's hash matches the one the store
// recorded at session creation. No side effects beyond warming the optional
// session cache.
func (m *Manager) Validate(ctx context.Context, token string) (Binding, error) {
	sessionID, secret, err := decodeToken(token)
	if err != nil {
		return Binding{}, apperr.TokenMalformed()
	}

	info, ok := m.cacheGet(ctx, sessionID)
	if !ok {
		info, err = m.store.ValidateSession(ctx, sessionID)
		if err != nil {
			return Binding{}, apperr.DatabaseError(err)
		}
		m.cacheSet(ctx, sessionID, info)
	}
	if info.AgentID == "" {
		return Binding{}, apperr.TokenInvalid()
	}
	if !info.Active {
		return Binding{}, apperr.SessionRevoked()
	}
	if !info.ExpiresAt.After(time.Now()) {
		return Binding{}, apperr.SessionExpired()
	}
	if !verifyToken(secret, info.TokenHash) {
		return Binding{}, apperr.TokenInvalid()
	}

	return Binding{AgentID: info.AgentID, SessionID: sessionID, Token: token}, nil
}

// cacheGet and cacheSet wrap the optional session cache, nil- and
// disabled-safe so Validate can call them unconditionally.
func (m *Manager) cacheGet(ctx context.Context, sessionID string) (store.SessionInfo, bool) {
	var info store.SessionInfo
	if m.cache == nil || !m.cache.IsEnabled() {
		return info, false
	}
	if err := m.cache.Get(ctx, cache.SessionKey(sessionID), &info); err != nil {
		return store.SessionInfo{}, false
	}
	return info, true
}

func (m *Manager) cacheSet(ctx context.Context, sessionID string, info store.SessionInfo) {
	if m.cache == nil || !m.cache.IsEnabled() {
		return
	}
	_ = m.cache.Set(ctx, cache.SessionKey(sessionID), info, sessionCacheTTL)
}

// Bind registers a connection in the active-connections index keyed by
// session id and enforces the one-active-session-per-(agent,provider) cap,
// per spec.md §3 invariant (i). Grounded on the teacher's
// internal/middleware/sessionmanagement.go RegisterSession/MaxSessionsError.
func (m *Manager) Bind(ctx context.Context, b Binding, provider string, conn Closer) error {
	key := b.AgentID + "|" + provider

	m.mu.Lock()
	if m.maxSessions > 0 && m.perAgent[key] >= m.maxSessions {
		m.mu.Unlock()
		return apperr.New("MAX_SESSIONS_EXCEEDED", fmt.Sprintf("agent %s already has %d active sessions", b.AgentID, m.maxSessions))
	}
	m.connections[b.SessionID] = &entry{sessionID: b.SessionID, token: b.Token, conn: conn}
	m.perAgent[key]++
	m.mu.Unlock()

	m.touchMu.Lock()
	m.lastTouch[b.SessionID] = time.Now()
	m.touchMu.Unlock()

	logging.Auth().Info().Str("session_id", b.SessionID).Str("agent_id", b.AgentID).Msg("session bound")
	return nil
}

// Unbind removes a connection from the active index without invalidating
// the underlying session (the session may persist and be reconnected to).
func (m *Manager) Unbind(sessionID, agentID, provider string) {
	key := agentID + "|" + provider

	m.mu.Lock()
	delete(m.connections, sessionID)
	if m.perAgent[key] > 0 {
		m.perAgent[key]--
	}
	m.mu.Unlock()

	m.touchMu.Lock()
	delete(m.lastTouch, sessionID)
	m.touchMu.Unlock()
}

// Touch advances the session's in-memory last-touch time, rate-limited to at
// most once per heartbeat interval per spec.md §4.1. It does not write the
// store's last_seen column.
func (m *Manager) Touch(ctx context.Context, sessionID string) {
	m.touchMu.Lock()
	last, ok := m.lastTouch[sessionID]
	due := !ok || time.Since(last) >= m.touchWindow
	if due {
		m.lastTouch[sessionID] = time.Now()
	}
	m.touchMu.Unlock()

	if !due {
		return
	}
	// No store call is made: only the in-memory time above advances, so ctx
	// is unused.
	_ = ctx
}

// Invalidate marks a session inactive in the store; any bound connection is
// closed with code 1000 immediately rather than waiting for the next sweep.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	if _, err := m.store.InvalidateSession(ctx, sessionID); err != nil {
		return apperr.DatabaseError(err)
	}
	if m.cache != nil && m.cache.IsEnabled() {
		_ = m.cache.Delete(ctx, cache.SessionKey(sessionID))
	}

	m.mu.RLock()
	e, ok := m.connections[sessionID]
	m.mu.RUnlock()
	if ok {
		e.conn.CloseWithReason(1000, "Session expired")
	}
	return nil
}

// InstallContext installs the session's identity on the store connection
// associated with ctx, per spec.md §4.1's "identity installation" contract.
func (m *Manager) InstallContext(ctx context.Context, sessionID, token string) error {
	if err := m.store.SetAgentContext(ctx, sessionID, token); err != nil {
		return apperr.AuthContextFailed()
	}
	return nil
}

// decodeToken splits an opaque session token into its session id and
// secret. Real tokens are "<session_id>.<secret>"; the manager never trusts
// the session id embedded in the token alone — it is only a lookup key,
// Validate always re-confirms the secret against the store's recorded hash.
func decodeToken(token string) (sessionID, secret string, err error) {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return token[:i], token[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed token")
}

// Stop halts the heartbeat sweep started by Start.
func (m *Manager) Stop() { close(m.stopCh) }
