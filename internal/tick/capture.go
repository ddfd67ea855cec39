package tick

import (
	"context"

	"github.com/google/uuid"

	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/models"
)

// captureOne runs one capture+diff+deliver cycle for a group. Store errors
// during capture are logged and the tick is abandoned (no row committed);
// the next scheduled tick proceeds normally — the engine never aborts the
// group loop on a transient error, per spec.md §4.5.
func (e *Engine) captureOne(ctx context.Context, group models.SyncGroup, bootstrapped *bool) {
	cycleID := uuid.New().String()
	log := logging.Tick().With().Str("sync_group", group.Name).Str("cycle_id", cycleID).Logger()

	tick, err := e.store.CaptureTick(ctx, group)
	if err != nil {
		log.Error().Err(err).Msg("tick capture failed, abandoning this tick")
		return
	}

	if !*bootstrapped && tick.Number == 1 {
		// First tick after start for this group: emit a synthetic INSERT
		// set for every row so late joiners bootstrap, per spec.md §4.5.
		cs, err := e.store.BootstrapInserts(ctx, group.Name)
		if err != nil {
			log.Error().Err(err).Msg("bootstrap insert set failed")
		} else {
			e.fanout.Deliver(ctx, tick, cs)
		}
		*bootstrapped = true
		return
	}
	*bootstrapped = true

	changes, err := e.diff(ctx, group.Name)
	if err != nil {
		log.Error().Err(err).Msg("tick diff failed, abandoning this tick")
		return
	}
	if changes.Empty() {
		return
	}

	e.fanout.Deliver(ctx, tick, changes)
}

func (e *Engine) diff(ctx context.Context, syncGroup string) (models.ChangeSet, error) {
	entities, err := e.store.DiffEntities(ctx, syncGroup)
	if err != nil {
		return models.ChangeSet{}, err
	}
	scripts, err := e.store.DiffScripts(ctx, syncGroup)
	if err != nil {
		return models.ChangeSet{}, err
	}
	assets, err := e.store.DiffAssets(ctx, syncGroup)
	if err != nil {
		return models.ChangeSet{}, err
	}
	return models.ChangeSet{SyncGroup: syncGroup, Entities: entities, Scripts: scripts, Assets: assets}, nil
}
