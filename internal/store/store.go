// Package store defines the boundary between the realtime core and the
// relational store that owns entities, scripts, assets and their access
// policies. The store itself is explicitly out of scope (spec §1); this
// package only states the operations the core requires of it, per spec §6.
package store

import (
	"context"
	"time"

	"github.com/vircadia/world-realtime-core/internal/models"
)

// SessionInfo is what the store reports about a session on validation.
type SessionInfo struct {
	AgentID   string
	Active    bool
	ExpiresAt time.Time
	// TokenHash is the SHA256 hex digest of the session's opaque secret, as
	// stored at session creation. Validate compares this against the hash
	// of the secret presented in the client's token.
	TokenHash string
}

// Store is the complete set of store-facing operations the core requires,
// per spec.md §6. A concrete implementation (store/postgres) backs this with
// a real connection pool; tests may substitute a fake.
type Store interface {
	// ValidateSession reports the store's view of a session's state.
	ValidateSession(ctx context.Context, sessionID string) (SessionInfo, error)

	// SetAgentContext installs the session's identity on the connection held
	// by ctx, so row-level access policies evaluate correctly. The
	// two-argument form resolves spec.md §9's set_agent_context Open
	// Question: both the session id and its current token must be proven
	// before the store trusts the caller's identity.
	SetAgentContext(ctx context.Context, sessionID, token string) error

	// ClearAgentContext removes any previously installed identity from the
	// connection held by ctx.
	ClearAgentContext(ctx context.Context) error

	// InvalidateSession marks a session inactive in the store.
	InvalidateSession(ctx context.Context, sessionID string) (bool, error)

	// Execute runs a parameterized query under the identity already
	// installed on ctx's connection, returning its rows as generic maps.
	Execute(ctx context.Context, query string, params []interface{}) ([]map[string]interface{}, error)

	// CaptureTick atomically trims expired ticks, allocates the next tick
	// number, snapshots the sync group's entities, and finalizes metrics.
	// It returns the committed Tick row.
	CaptureTick(ctx context.Context, group models.SyncGroup) (models.Tick, error)

	// DiffEntities returns the entity change set between the two latest
	// ticks of a sync group.
	DiffEntities(ctx context.Context, syncGroup string) ([]models.Change, error)

	// DiffScripts returns the script change set, resolved from the audit
	// log window between the two latest ticks.
	DiffScripts(ctx context.Context, syncGroup string) ([]models.Change, error)

	// DiffAssets mirrors DiffScripts for assets.
	DiffAssets(ctx context.Context, syncGroup string) ([]models.Change, error)

	// BootstrapInserts returns a synthetic full-INSERT change set for every
	// row currently in the sync group, used when a group has no prior tick.
	BootstrapInserts(ctx context.Context, syncGroup string) (models.ChangeSet, error)

	// FilterPermitted returns, for each change, the subset of candidate
	// session ids permitted to observe it, per the store's access policies.
	FilterPermitted(ctx context.Context, syncGroup string, candidates []string, changes models.ChangeSet) (map[string][]string, error)

	// CanSubscribe reports whether a session is permitted to subscribe to a
	// sync group.
	CanSubscribe(ctx context.Context, sessionID, syncGroup string) (bool, error)

	// ListSyncGroups returns the configured sync groups and their tick
	// parameters.
	ListSyncGroups(ctx context.Context) ([]models.SyncGroup, error)

	// RecoverIncompleteTicks deletes any tick row left behind by a crash
	// mid-capture (end_time = start_time and entity_states_processed = 0),
	// per DESIGN.md's resolution of the tick-recovery Open Question.
	RecoverIncompleteTicks(ctx context.Context, syncGroup string) error

	// Listen subscribes the caller to the store's NOTIFY channel for a
	// session id, per spec §6's pub/sub requirement. The returned channel is
	// closed when Unlisten is called or the underlying listener is torn
	// down permanently.
	Listen(ctx context.Context, sessionID string) (<-chan models.Notification, error)

	// Unlisten releases a previously established Listen subscription.
	Unlisten(sessionID string) error

	// Close releases the store's resources.
	Close() error
}
