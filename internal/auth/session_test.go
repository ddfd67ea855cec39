package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vircadia/world-realtime-core/internal/store"
)

type fakeStore struct {
	store.Store
	sessions map[string]store.SessionInfo
}

func (f *fakeStore) ValidateSession(ctx context.Context, sessionID string) (store.SessionInfo, error) {
	return f.sessions[sessionID], nil
}

func (f *fakeStore) InvalidateSession(ctx context.Context, sessionID string) (bool, error) {
	info, ok := f.sessions[sessionID]
	if !ok {
		return false, nil
	}
	info.Active = false
	f.sessions[sessionID] = info
	return true, nil
}

func (f *fakeStore) SetAgentContext(ctx context.Context, sessionID, token string) error {
	return nil
}

type fakeCloser struct {
	closed bool
	code   int
	reason string
}

func (f *fakeCloser) CloseWithReason(code int, reason string) {
	f.closed = true
	f.code = code
	f.reason = reason
}

func newTokenAndHash(session, secret string) (token string) {
	return session + "." + secret
}

func TestValidateRejectsUnknownSession(t *testing.T) {
	fs := &fakeStore{sessions: map[string]store.SessionInfo{}}
	m := NewManager(fs, time.Minute, 0)

	_, err := m.Validate(context.Background(), newTokenAndHash("s1", "secret"))
	require.Error(t, err)
}

func TestValidateAcceptsActiveUnexpiredMatchingToken(t *testing.T) {
	token := newTokenAndHash("s1", "secret")

	fs := &fakeStore{sessions: map[string]store.SessionInfo{
		"s1": {AgentID: "agent-1", Active: true, ExpiresAt: time.Now().Add(time.Hour), TokenHash: HashToken("secret")},
	}}
	m := NewManager(fs, time.Minute, 0)

	binding, err := m.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", binding.AgentID)
	assert.Equal(t, "s1", binding.SessionID)
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	token := newTokenAndHash("s1", "secret")
	fs := &fakeStore{sessions: map[string]store.SessionInfo{
		"s1": {AgentID: "agent-1", Active: true, ExpiresAt: time.Now().Add(-time.Hour)},
	}}
	m := NewManager(fs, time.Minute, 0)

	_, err := m.Validate(context.Background(), token)
	require.Error(t, err)
}

func TestBindEnforcesMaxSessionsPerAgentProvider(t *testing.T) {
	fs := &fakeStore{sessions: map[string]store.SessionInfo{}}
	m := NewManager(fs, time.Minute, 1)

	err := m.Bind(context.Background(), Binding{AgentID: "a1", SessionID: "s1"}, "system", &fakeCloser{})
	require.NoError(t, err)

	err = m.Bind(context.Background(), Binding{AgentID: "a1", SessionID: "s2"}, "system", &fakeCloser{})
	require.Error(t, err)
}

func TestInvalidateClosesBoundConnection(t *testing.T) {
	fs := &fakeStore{sessions: map[string]store.SessionInfo{
		"s1": {AgentID: "a1", Active: true, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	m := NewManager(fs, time.Minute, 0)
	closer := &fakeCloser{}
	require.NoError(t, m.Bind(context.Background(), Binding{AgentID: "a1", SessionID: "s1"}, "system", closer))

	require.NoError(t, m.Invalidate(context.Background(), "s1"))
	assert.True(t, closer.closed)
	assert.Equal(t, 1000, closer.code)
}

func TestTouchIsRateLimitedToHeartbeatWindow(t *testing.T) {
	fs := &fakeStore{sessions: map[string]store.SessionInfo{}}
	m := NewManager(fs, time.Hour, 0)
	require.NoError(t, m.Bind(context.Background(), Binding{AgentID: "a1", SessionID: "s1"}, "system", &fakeCloser{}))

	m.touchMu.Lock()
	first := m.lastTouch["s1"]
	m.touchMu.Unlock()

	m.Touch(context.Background(), "s1")

	m.touchMu.Lock()
	second := m.lastTouch["s1"]
	m.touchMu.Unlock()

	assert.Equal(t, first, second, "touch within the heartbeat window should not advance last-seen")
}
