package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vircadia/world-realtime-core/internal/models"
)

// CaptureTick implements the capture procedure from spec §4.5, steps 1-7,
// inside a single transaction so the placeholder-row-then-finalize sequence
// is atomic from any other reader's point of view.
func (p *Postgres) CaptureTick(ctx context.Context, group models.SyncGroup) (models.Tick, error) {
	start := time.Now()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Tick{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, group.Name); err != nil {
		return models.Tick{}, fmt.Errorf("acquire per-group lock: %w", err)
	}

	if err := trimExpiredTicks(ctx, tx, group); err != nil {
		return models.Tick{}, fmt.Errorf("trim expired ticks: %w", err)
	}

	var prevNumber sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT max(number) FROM ticks WHERE sync_group = $1`, group.Name).Scan(&prevNumber); err != nil {
		return models.Tick{}, fmt.Errorf("read previous tick: %w", err)
	}
	number := int64(1)
	if prevNumber.Valid {
		number = prevNumber.Int64 + 1
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ticks (sync_group, number, start_time, end_time) VALUES ($1, $2, $3, $3)`,
		group.Name, number, start); err != nil {
		return models.Tick{}, fmt.Errorf("insert placeholder tick: %w", err)
	}

	entityCount, err := snapshotResource(ctx, tx, "entities", "general__entity_id", "entity_snapshots", group.Name, number)
	if err != nil {
		return models.Tick{}, fmt.Errorf("snapshot entities: %w", err)
	}

	scriptCount, err := snapshotResource(ctx, tx, "scripts", "general__script_id", "script_snapshots", group.Name, number)
	if err != nil {
		return models.Tick{}, fmt.Errorf("snapshot scripts: %w", err)
	}

	assetCount, err := snapshotResource(ctx, tx, "assets", "general__asset_id", "asset_snapshots", group.Name, number)
	if err != nil {
		return models.Tick{}, fmt.Errorf("snapshot assets: %w", err)
	}

	end := time.Now()
	duration := end.Sub(start)
	delayed := duration > group.Interval()
	headroom := group.Interval() - duration

	if _, err := tx.ExecContext(ctx,
		`UPDATE ticks SET end_time = $1, entity_states_processed = $2, script_states_processed = $3,
		 asset_states_processed = $4, delayed = $5, headroom_ms = $6
		 WHERE sync_group = $7 AND number = $8`,
		end, entityCount, scriptCount, assetCount, delayed, headroom.Milliseconds(), group.Name, number); err != nil {
		return models.Tick{}, fmt.Errorf("finalize tick: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Tick{}, err
	}

	return models.Tick{
		SyncGroup:             group.Name,
		Number:                number,
		StartTime:             start,
		EndTime:               end,
		DurationMs:            duration.Milliseconds(),
		EntityStatesProcessed: entityCount,
		ScriptStatesProcessed: scriptCount,
		AssetStatesProcessed:  assetCount,
		Delayed:               delayed,
		HeadroomMs:            headroom.Milliseconds(),
	}, nil
}

func trimExpiredTicks(ctx context.Context, tx *sql.Tx, group models.SyncGroup) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM ticks WHERE sync_group = $1 AND number <= (
			SELECT coalesce(max(number), 0) - $2 FROM ticks WHERE sync_group = $1
		)`, group.Name, group.MaxTicks)
	return err
}

// snapshotResource copies one resource table's current rows for syncGroup
// into its per-tick snapshot table, so the next tick's diff (entity, script,
// or asset) has a prior-state row to diff against. Mirrors the teacher's
// single entity_snapshots handling, generalized to all three resource kinds
// so script/asset diffs get the same field-level UPDATE diffing entities do.
func snapshotResource(ctx context.Context, tx *sql.Tx, table, idColumn, snapshotTable, syncGroup string, number int64) (int, error) {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (sync_group, tick_number, resource_id, fields)
		 SELECT $1, $2, r.%s, to_jsonb(r) FROM %s r WHERE r.group__sync = $1`,
		snapshotTable, idColumn, table), syncGroup, number)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DiffEntities implements spec §4.5's entity diff: a full outer join of
// snapshots at the latest two tick ids, classifying INSERT/UPDATE/DELETE.
func (p *Postgres) DiffEntities(ctx context.Context, syncGroup string) ([]models.Change, error) {
	return p.diffSnapshots(ctx, models.KindEntity, "entity_snapshots", syncGroup)
}

// diffSnapshots implements the full-outer-join-between-latest-two-ticks diff
// over entity_snapshots (scripts and assets go through diffFromAudit instead),
// classifying INSERT/UPDATE/
// DELETE purely from row presence (both snapshots are the resource's own
// current state, so there is no audit_log ambiguity to resolve here).
func (p *Postgres) diffSnapshots(ctx context.Context, kind models.ResourceKind, snapshotTable, syncGroup string) ([]models.Change, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		WITH latest AS (
			SELECT number FROM ticks WHERE sync_group = $1 ORDER BY number DESC LIMIT 2
		),
		cur AS (SELECT * FROM %[1]s WHERE sync_group = $1 AND tick_number = (SELECT max(number) FROM latest)),
		prev AS (SELECT * FROM %[1]s WHERE sync_group = $1 AND tick_number = (SELECT min(number) FROM latest) AND (SELECT count(*) FROM latest) = 2)
		SELECT coalesce(cur.resource_id, prev.resource_id), cur.fields, prev.fields
		FROM cur FULL OUTER JOIN prev ON cur.resource_id = prev.resource_id
	`, snapshotTable), syncGroup)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []models.Change
	for rows.Next() {
		var id string
		var curFields, prevFields sql.NullString
		if err := rows.Scan(&id, &curFields, &prevFields); err != nil {
			return nil, err
		}
		change, ok, err := classify(kind, id, curFields, prevFields)
		if err != nil {
			return nil, err
		}
		if ok {
			changes = append(changes, change)
		}
	}
	return changes, rows.Err()
}

func classify(kind models.ResourceKind, id string, curRaw, prevRaw sql.NullString) (models.Change, bool, error) {
	switch {
	case curRaw.Valid && !prevRaw.Valid:
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(curRaw.String), &fields); err != nil {
			return models.Change{}, false, err
		}
		return models.Change{Kind: kind, ID: id, Operation: models.OpInsert, Fields: fields}, true, nil
	case !curRaw.Valid && prevRaw.Valid:
		return models.Change{Kind: kind, ID: id, Operation: models.OpDelete}, true, nil
	case curRaw.Valid && prevRaw.Valid:
		var cur, prev map[string]interface{}
		if err := json.Unmarshal([]byte(curRaw.String), &cur); err != nil {
			return models.Change{}, false, err
		}
		if err := json.Unmarshal([]byte(prevRaw.String), &prev); err != nil {
			return models.Change{}, false, err
		}
		diff := fieldDiff(prev, cur)
		if len(diff) == 0 {
			return models.Change{}, false, nil
		}
		return models.Change{Kind: kind, ID: id, Operation: models.OpUpdate, Fields: diff}, true, nil
	default:
		return models.Change{}, false, nil
	}
}

func fieldDiff(prev, cur map[string]interface{}) map[string]interface{} {
	diff := make(map[string]interface{})
	for k, v := range cur {
		pv, existed := prev[k]
		if !existed || !equalJSON(pv, v) {
			diff[k] = v
		}
	}
	return diff
}

func equalJSON(a, b interface{}) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// DiffScripts resolves audit_log rows against the scripts table and its
// snapshot history, per spec §4.5's script/asset diff procedure.
func (p *Postgres) DiffScripts(ctx context.Context, syncGroup string) ([]models.Change, error) {
	return p.diffFromAudit(ctx, syncGroup, models.KindScript, "scripts", "script_snapshots")
}

// DiffAssets mirrors DiffScripts for the assets table.
func (p *Postgres) DiffAssets(ctx context.Context, syncGroup string) ([]models.Change, error) {
	return p.diffFromAudit(ctx, syncGroup, models.KindAsset, "assets", "asset_snapshots")
}

// diffFromAudit classifies each touched resource from audit_log.operation
// directly (INSERT/UPDATE/DELETE), per spec.md §3's Audit Log Entry schema
// and §4.5's "apply the same classification" instruction — it never guesses
// from row presence/absence. INSERT emits the full current record; UPDATE is
// diffed field-by-field against the resource's own snapshot from the prior
// tick (falling back to the full current record only when no prior snapshot
// exists, e.g. the resource was created and updated inside the same window);
// DELETE carries no fields.
func (p *Postgres) diffFromAudit(ctx context.Context, syncGroup string, kind models.ResourceKind, table, snapshotTable string) ([]models.Change, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		WITH latest AS (SELECT number, start_time FROM ticks WHERE sync_group = $1 ORDER BY number DESC LIMIT 2),
		touched AS (
			SELECT DISTINCT ON (resource_id) resource_id, operation FROM audit_log
			WHERE sync_group = $1 AND resource_kind = $2
			  AND timestamp > (SELECT min(start_time) FROM latest)
			  AND timestamp <= (SELECT max(start_time) FROM latest)
			ORDER BY resource_id, timestamp DESC
		)
		SELECT touched.resource_id, touched.operation, to_jsonb(cur), prev.fields
		FROM touched
		LEFT JOIN %[1]s cur ON cur.%[2]s = touched.resource_id
		LEFT JOIN %[3]s prev ON prev.sync_group = $1 AND prev.resource_id = touched.resource_id
			AND prev.tick_number = (SELECT min(number) FROM latest) AND (SELECT count(*) FROM latest) = 2
	`, table, idColumnFor(kind), snapshotTable), syncGroup, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []models.Change
	for rows.Next() {
		var id, operation string
		var cur, prev sql.NullString
		if err := rows.Scan(&id, &operation, &cur, &prev); err != nil {
			return nil, err
		}

		op := models.ChangeOperation(operation)
		change := models.Change{Kind: kind, ID: id, Operation: op}

		switch op {
		case models.OpDelete:
			// No fields.
		case models.OpInsert:
			fields, err := unmarshalFields(cur)
			if err != nil {
				return nil, err
			}
			change.Fields = fields
		case models.OpUpdate:
			curFields, err := unmarshalFields(cur)
			if err != nil {
				return nil, err
			}
			if !prev.Valid {
				change.Fields = curFields
				break
			}
			prevFields, err := unmarshalFields(prev)
			if err != nil {
				return nil, err
			}
			change.Fields = fieldDiff(prevFields, curFields)
			if len(change.Fields) == 0 {
				continue
			}
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func unmarshalFields(raw sql.NullString) (map[string]interface{}, error) {
	if !raw.Valid {
		return nil, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw.String), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func idColumnFor(kind models.ResourceKind) string {
	switch kind {
	case models.KindScript:
		return "general__script_id"
	case models.KindAsset:
		return "general__asset_id"
	default:
		return "general__entity_id"
	}
}

// BootstrapInserts emits a synthetic full-INSERT change set for every row in
// the sync group, for a late joiner whose group has no prior tick yet.
func (p *Postgres) BootstrapInserts(ctx context.Context, syncGroup string) (models.ChangeSet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT general__entity_id, to_jsonb(e) FROM entities e WHERE e.group__sync = $1`, syncGroup)
	if err != nil {
		return models.ChangeSet{}, err
	}
	defer rows.Close()

	cs := models.ChangeSet{SyncGroup: syncGroup}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return models.ChangeSet{}, err
		}
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return models.ChangeSet{}, err
		}
		cs.Entities = append(cs.Entities, models.Change{Kind: models.KindEntity, ID: id, Operation: models.OpInsert, Fields: fields})
	}
	return cs, rows.Err()
}

func (p *Postgres) ListSyncGroups(ctx context.Context) ([]models.SyncGroup, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name, server_tick_interval_ms, max_ticks, client_render_delay_ms, max_client_prediction_ms, packet_timing_variance_ms FROM sync_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.SyncGroup
	for rows.Next() {
		var g models.SyncGroup
		if err := rows.Scan(&g.Name, &g.ServerTickIntervalMs, &g.MaxTicks, &g.ClientRenderDelayMs, &g.MaxClientPredictionMs, &g.PacketTimingVarianceMs); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// RecoverIncompleteTicks deletes placeholder rows left by a crash mid-capture,
// per DESIGN.md's resolution of the Open Question in spec §9.
func (p *Postgres) RecoverIncompleteTicks(ctx context.Context, syncGroup string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM ticks WHERE sync_group = $1 AND end_time = start_time AND entity_states_processed = 0`,
		syncGroup)
	return err
}

func (p *Postgres) CanSubscribe(ctx context.Context, sessionID, syncGroup string) (bool, error) {
	var allowed bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sync_group_access WHERE session_id = $1 AND sync_group = $2)`,
		sessionID, syncGroup).Scan(&allowed)
	return allowed, err
}

func (p *Postgres) FilterPermitted(ctx context.Context, syncGroup string, candidates []string, changes models.ChangeSet) (map[string][]string, error) {
	result := make(map[string][]string, len(changes.Entities)+len(changes.Scripts)+len(changes.Assets))
	for _, c := range append(append(append([]models.Change{}, changes.Entities...), changes.Scripts...), changes.Assets...) {
		rows, err := p.db.QueryContext(ctx,
			`SELECT session_id FROM session_resource_access WHERE resource_id = $1 AND session_id = ANY($2)`,
			c.ID, candidates)
		if err != nil {
			return nil, err
		}
		var permitted []string
		for rows.Next() {
			var sid string
			if err := rows.Scan(&sid); err != nil {
				rows.Close()
				return nil, err
			}
			permitted = append(permitted, sid)
		}
		rows.Close()
		result[c.ID] = permitted
	}
	return result, nil
}
