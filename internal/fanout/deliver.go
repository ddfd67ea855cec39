package fanout

import (
	"context"
	"encoding/json"

	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/models"
)

// TickFrame is the SYNC_GROUP_UPDATES_RESPONSE payload shape from
// spec.md §6, filtered down to one session's permitted subset.
type TickFrame struct {
	Type string `json:"type"`
	Tick struct {
		Number    int64 `json:"number"`
		StartTime int64 `json:"start_time"`
		DurationMs int64 `json:"duration_ms"`
		Delayed   bool  `json:"delayed"`
	} `json:"tick"`
	Entities []ChangeWire `json:"entities"`
	Scripts  []ChangeWire `json:"scripts"`
	Assets   []ChangeWire `json:"assets"`
}

// ChangeWire is one Change serialized for the wire.
type ChangeWire struct {
	EntityID  string                 `json:"entity_id"`
	Operation string                 `json:"operation"`
	Changes   map[string]interface{} `json:"changes"`
}

func toWire(changes []models.Change) []ChangeWire {
	out := make([]ChangeWire, 0, len(changes))
	for _, c := range changes {
		out = append(out, ChangeWire{EntityID: c.ID, Operation: string(c.Operation), Changes: c.Fields})
	}
	return out
}

// Deliver filters a tick's change set down to each subscribed session's
// permitted subset and enqueues one serialized frame per distinct
// permission class, per spec.md §4.4. Sessions whose outbound queue is
// full are closed 1011 by the Outbound implementation; fan-out itself only
// reports the rejection via logging.
func (m *Manager) Deliver(ctx context.Context, tick models.Tick, changes models.ChangeSet) {
	log := logging.Fanout()

	candidates := m.Subscribers(changes.SyncGroup)
	if len(candidates) == 0 {
		return
	}

	permitted, err := m.store.FilterPermitted(ctx, changes.SyncGroup, candidates, changes)
	if err != nil {
		log.Warn().Err(err).Str("sync_group", changes.SyncGroup).Msg("permission filter failed, skipping delivery")
		return
	}

	perSession := make(map[string]models.ChangeSet, len(candidates))
	assignOne := func(kind func(*models.ChangeSet) *[]models.Change, list []models.Change) {
		for _, c := range list {
			for _, sid := range permitted[c.ID] {
				cs := perSession[sid]
				cs.SyncGroup = changes.SyncGroup
				*kind(&cs) = append(*kind(&cs), c)
				perSession[sid] = cs
			}
		}
	}
	assignOne(func(cs *models.ChangeSet) *[]models.Change { return &cs.Entities }, changes.Entities)
	assignOne(func(cs *models.ChangeSet) *[]models.Change { return &cs.Scripts }, changes.Scripts)
	assignOne(func(cs *models.ChangeSet) *[]models.Change { return &cs.Assets }, changes.Assets)

	// Serialize once per distinct non-empty permission class rather than
	// once per session, per spec.md §4.4.
	serialized := make(map[string][]byte)
	for sid, cs := range perSession {
		if cs.Empty() {
			continue
		}
		key := classKey(cs)
		frame, ok := serialized[key]
		if !ok {
			frame = marshalTickFrame(tick, cs)
			serialized[key] = frame
		}
		if !m.outbound.Enqueue(sid, frame) {
			log.Warn().Str("session_id", sid).Msg("outbound queue full, connection will be closed with Backpressure")
		}
	}
}

// classKey groups sessions whose filtered change set is identical so the
// frame is marshaled once per distinct permission class, not per session.
func classKey(cs models.ChangeSet) string {
	b, _ := json.Marshal(cs)
	return string(b)
}

func marshalTickFrame(tick models.Tick, cs models.ChangeSet) []byte {
	frame := TickFrame{Type: "SYNC_GROUP_UPDATES_RESPONSE"}
	frame.Tick.Number = tick.Number
	frame.Tick.StartTime = tick.StartTime.UnixMilli()
	frame.Tick.DurationMs = tick.DurationMs
	frame.Tick.Delayed = tick.Delayed
	frame.Entities = toWire(cs.Entities)
	frame.Scripts = toWire(cs.Scripts)
	frame.Assets = toWire(cs.Assets)

	out, _ := json.Marshal(frame)
	return out
}

// DeliverNotification forwards a single store notification (4.3) to its
// owning session as a NOTIFICATION_ENTITY_UPDATE / ...SCRIPT_UPDATE frame.
func (m *Manager) DeliverNotification(sessionID string, n models.Notification) {
	frameType := "NOTIFICATION_ENTITY_UPDATE"
	if n.Kind == models.NotifyScript {
		frameType = "NOTIFICATION_ENTITY_SCRIPT_UPDATE"
	}

	payload := map[string]interface{}{
		"type":      frameType,
		"entity_id": n.ID,
		"changes": map[string]interface{}{
			"operation":  n.Operation,
			"sync_group": n.SyncGroup,
			"timestamp":  n.Timestamp.UnixMilli(),
			"agent_id":   n.AgentID,
		},
	}
	frame, err := json.Marshal(payload)
	if err != nil {
		logging.Fanout().Warn().Err(err).Msg("failed to marshal notification frame")
		return
	}
	if !m.outbound.Enqueue(sessionID, frame) {
		logging.Fanout().Warn().Str("session_id", sessionID).Msg("outbound queue full delivering notification")
	}
}
