// Package models holds the plain data types shared across the realtime
// core's packages. Types here carry no behavior, matching the teacher's own
// internal/models convention of JSON-tagged structs only.
package models

import "time"

// SyncGroup configures one partition of world state and its tick loop.
type SyncGroup struct {
	Name                   string        `json:"sync_group"`
	ServerTickIntervalMs   int           `json:"server_tick_interval_ms"`
	MaxTicks               int           `json:"max_ticks"`
	ClientRenderDelayMs    int           `json:"client_render_delay_ms"`
	MaxClientPredictionMs  int           `json:"max_client_prediction_ms"`
	PacketTimingVarianceMs int           `json:"packet_timing_variance_ms"`
}

// Interval returns the configured tick interval as a time.Duration.
func (g SyncGroup) Interval() time.Duration {
	return time.Duration(g.ServerTickIntervalMs) * time.Millisecond
}

// RetentionWindow returns max_ticks * interval, the horizon beyond which
// ticks and snapshots are trimmed.
func (g SyncGroup) RetentionWindow() time.Duration {
	return time.Duration(g.MaxTicks) * g.Interval()
}

// Agent is a declared identity; the server never mints agents.
type Agent struct {
	ID          string `json:"agent_id"`
	IsAdmin     bool   `json:"is_admin"`
	IsSystem    bool   `json:"is_system"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// Session is an authenticated, long-lived binding between an agent and the
// server, independent of any single connection.
type Session struct {
	ID             string    `json:"session_id"`
	AgentID        string    `json:"agent_id"`
	Provider       string    `json:"provider"`
	Token          string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastSeen       time.Time `json:"last_seen"`
	Active         bool      `json:"active"`
	SyncGroups     []string  `json:"sync_groups"`
}

// Usable reports whether the session may still be used, per spec.md §3
// invariant (ii).
func (s Session) Usable(now time.Time) bool {
	return s.Active && s.ExpiresAt.After(now)
}

// ChangeOperation classifies one entry in a ChangeSet.
type ChangeOperation string

const (
	OpInsert ChangeOperation = "INSERT"
	OpUpdate ChangeOperation = "UPDATE"
	OpDelete ChangeOperation = "DELETE"
)

// ResourceKind identifies which table a Change touches.
type ResourceKind string

const (
	KindEntity ResourceKind = "entity"
	KindScript ResourceKind = "script"
	KindAsset  ResourceKind = "asset"
)

// Change is one row-level mutation between two ticks.
type Change struct {
	Kind      ResourceKind           `json:"resource_kind"`
	ID        string                 `json:"id"`
	Operation ChangeOperation        `json:"operation"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ChangeSet is the diff between two consecutive ticks for one sync group.
type ChangeSet struct {
	SyncGroup string   `json:"sync_group"`
	Entities  []Change `json:"entities"`
	Scripts   []Change `json:"scripts"`
	Assets    []Change `json:"assets"`
}

// Empty reports whether the change set has nothing to deliver.
func (c ChangeSet) Empty() bool {
	return len(c.Entities) == 0 && len(c.Scripts) == 0 && len(c.Assets) == 0
}

// Tick records one scheduled snapshot event for a sync group.
type Tick struct {
	SyncGroup             string    `json:"sync_group"`
	Number                int64     `json:"number"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	DurationMs            int64     `json:"duration_ms"`
	EntityStatesProcessed int       `json:"entity_states_processed"`
	ScriptStatesProcessed int       `json:"script_states_processed"`
	AssetStatesProcessed  int       `json:"asset_states_processed"`
	Delayed               bool      `json:"delayed"`
	HeadroomMs            int64     `json:"headroom_ms"`
}

// NotificationKind mirrors the store's publish/subscribe payload shape.
type NotificationKind string

const (
	NotifyEntity NotificationKind = "entity"
	NotifyScript NotificationKind = "script"
	NotifyAsset  NotificationKind = "asset"
)

// Notification is one message received on a session's store channel.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	ID        string           `json:"id"`
	Operation ChangeOperation  `json:"operation"`
	SyncGroup string           `json:"sync_group"`
	Timestamp time.Time        `json:"timestamp"`
	AgentID   string           `json:"agent_id"`
}

// AuditLogEntry records one store-side mutation used to detect script/asset
// changes between ticks.
type AuditLogEntry struct {
	ResourceID string          `json:"resource_id"`
	SyncGroup  string          `json:"sync_group"`
	Operation  ChangeOperation `json:"operation"`
	Timestamp  time.Time       `json:"timestamp"`
	Actor      string          `json:"actor"`
}
