// Package tick implements the tick engine: one logical loop per sync group
// that periodically captures a snapshot, computes the diff against the
// prior tick, and hands the resulting change set to fan-out, per spec.md
// §4.5.
//
// Grounded on the teacher's internal/websocket/handlers.go Manager
// (broadcastSessionUpdates/broadcastMetrics): a time.Ticker-driven loop that
// skips a cycle when there is nothing to send, enriches from the store, and
// broadcasts. Here that single fixed-period loop is generalized into N
// independently-configured per-sync-group loops, one goroutine each, per
// spec.md §5 ("one task per sync-group tick loop").
package tick

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/fanout"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/models"
	"github.com/vircadia/world-realtime-core/internal/store"
)

// Fanout is the subset of fanout.Manager the engine needs, kept narrow so
// tests can substitute a fake.
type Fanout interface {
	Deliver(ctx context.Context, tick models.Tick, changes models.ChangeSet)
}

var _ Fanout = (*fanout.Manager)(nil)

// Engine runs one goroutine per sync group.
type Engine struct {
	store  store.Store
	fanout Fanout

	stopCh chan struct{}
}

// New constructs a tick engine.
func New(s store.Store, f Fanout) *Engine {
	return &Engine{store: s, fanout: f, stopCh: make(chan struct{})}
}

// Start loads the configured sync groups and launches one tick loop per
// group. Each group first has RecoverIncompleteTicks run against it, per
// DESIGN.md's resolution of spec.md §9's crash-recovery Open Question.
func (e *Engine) Start(ctx context.Context) error {
	groups, err := e.store.ListSyncGroups(ctx)
	if err != nil {
		return err
	}

	for _, g := range groups {
		if err := e.store.RecoverIncompleteTicks(ctx, g.Name); err != nil {
			logging.Tick().Warn().Err(err).Str("sync_group", g.Name).Msg("failed to recover incomplete ticks at startup")
		}
		go e.runGroup(ctx, g)
	}
	return nil
}

// Stop signals every group loop to exit after at most one in-flight tick,
// per spec.md §5's shutdown semantics.
func (e *Engine) Stop() { close(e.stopCh) }

func (e *Engine) runGroup(ctx context.Context, group models.SyncGroup) {
	log := logging.Tick().With().Str("sync_group", group.Name).Logger()
	ticker := time.NewTicker(group.Interval())
	defer ticker.Stop()

	bootstrapped := false

	for {
		select {
		case <-ticker.C:
			if e.captureOneRecovered(ctx, group, &bootstrapped) {
				// Internal invariant violation: this group's loop restarts
				// after a one-interval delay, other groups are unaffected,
				// per spec.md §7.
				ticker.Stop()
				select {
				case <-time.After(group.Interval()):
				case <-e.stopCh:
					log.Info().Msg("tick loop stopped on shutdown")
					return
				case <-ctx.Done():
					return
				}
				ticker = time.NewTicker(group.Interval())
			}
		case <-e.stopCh:
			log.Info().Msg("tick loop stopped on shutdown")
			return
		case <-ctx.Done():
			return
		}
	}
}

// captureOneRecovered runs captureOne with panic recovery, so a bug tripped
// during one group's capture restarts only that group's loop rather than
// crashing the process, per spec.md §7. Reports whether it recovered a panic.
func (e *Engine) captureOneRecovered(ctx context.Context, group models.SyncGroup, bootstrapped *bool) (recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.New().String()
			appErr := apperr.InvariantViolation(correlationID)
			logging.Tick().Error().
				Str("sync_group", group.Name).
				Str("correlation_id", correlationID).
				Str("code", appErr.Code).
				Interface("panic", r).
				Msg("internal invariant violation in tick loop, restarting after one interval")
			recovered = true
		}
	}()
	e.captureOne(ctx, group, bootstrapped)
	return false
}
