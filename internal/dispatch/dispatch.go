// Package dispatch implements the query dispatcher: executing one
// client-supplied parameterized query under the caller's identity, per
// spec.md §4.2.
//
// Concurrency is bounded two ways, both grounded on the teacher's
// internal/services/command_dispatcher.go worker-pool-over-buffered-channel
// idiom: a per-connection single-worker queue preserves FIFO ordering and
// the store context across calls on one connection, and a global buffered
// channel acts as the semaphore protecting the store's connection pool.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vircadia/world-realtime-core/internal/apperr"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/store"
)

// Request is one client QUERY frame.
type Request struct {
	RequestID string
	SQLText   string
	Params    []interface{}
}

// Response is the QUERY_RESPONSE payload.
type Response struct {
	RequestID string
	Rows      []map[string]interface{}
	Error     string
}

// Dispatcher executes queries under a session's identity, respecting
// per-connection FIFO and a global concurrency bound.
type Dispatcher struct {
	store store.Store

	globalSem chan struct{}

	maxRows         int
	maxResponseSize int
	queryTimeout    time.Duration
}

// Config configures the dispatcher's bounds. GlobalSemaphoreSize resolves
// spec.md §4.2's "a global semaphore bounds concurrent in-flight queries."
// MaxRows/MaxResponseBytes resolve the unbounded-result-size Open Question
// from spec.md §9 (decision recorded in DESIGN.md).
type Config struct {
	GlobalSemaphoreSize int
	MaxRows             int
	MaxResponseBytes    int
	QueryTimeout        time.Duration
}

// New constructs a Dispatcher.
func New(s store.Store, cfg Config) *Dispatcher {
	if cfg.GlobalSemaphoreSize <= 0 {
		cfg.GlobalSemaphoreSize = 50
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 8 << 20
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:           s,
		globalSem:       make(chan struct{}, cfg.GlobalSemaphoreSize),
		maxRows:         cfg.MaxRows,
		maxResponseSize: cfg.MaxResponseBytes,
		queryTimeout:    cfg.QueryTimeout,
	}
}

// Execute runs one query under the caller's identity. It is safe to call
// from multiple goroutines; callers wanting per-connection FIFO ordering
// must serialize their own calls through a Connection (see connection.go) —
// Execute itself only enforces the global concurrency bound.
func (d *Dispatcher) Execute(ctx context.Context, sessionID, token string, req Request) Response {
	log := logging.Dispatch()

	select {
	case d.globalSem <- struct{}{}:
		defer func() { <-d.globalSem }()
	case <-ctx.Done():
		return Response{RequestID: req.RequestID, Error: apperr.QueryTimeout().Message}
	}

	qCtx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	if err := d.store.SetAgentContext(qCtx, sessionID, token); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to install agent context")
		return Response{RequestID: req.RequestID, Error: apperr.AuthContextFailed().Message}
	}
	defer func() {
		if err := d.store.ClearAgentContext(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to clear agent context")
		}
	}()

	rows, err := d.store.Execute(qCtx, req.SQLText, req.Params)
	if err != nil {
		if qCtx.Err() != nil {
			return Response{RequestID: req.RequestID, Error: apperr.QueryTimeout().Message}
		}
		// The dispatcher never panics on bad SQL; the store's error is
		// returned verbatim, per spec.md §4.2.
		return Response{RequestID: req.RequestID, Error: err.Error()}
	}

	if len(rows) > d.maxRows {
		return Response{RequestID: req.RequestID, Error: apperr.New(apperr.CodeResultTooLarge, "query result exceeds the configured row cap").Message}
	}

	if size, err := jsonSize(rows); err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to measure result size")
	} else if size > d.maxResponseSize {
		return Response{RequestID: req.RequestID, Error: apperr.New(apperr.CodeResultTooLarge, "query result exceeds the configured byte cap").Message}
	}

	return Response{RequestID: req.RequestID, Rows: rows}
}

// jsonSize measures the wire size a result set would occupy, the same
// encoding it is eventually shipped in over QUERY_RESPONSE.
func jsonSize(rows []map[string]interface{}) (int, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
