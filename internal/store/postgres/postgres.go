package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/store"
)

// Postgres backs store.Store with a pooled *sql.DB, following the teacher's
// db.Database pool tuning (db/database.go: 25 max open, 5 max idle, 5m max
// lifetime, 1m max idle time).
type Postgres struct {
	db       *sql.DB
	listener *listenerPool
}

// New opens a connection pool, pings it, and returns a ready Postgres store.
func New(cfg Config) (*Postgres, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open store connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	p := &Postgres{db: db}
	p.listener = newListenerPool(cfg.dsn())
	return p, nil
}

// NewForTesting builds a Postgres store around an already-open *sql.DB,
// for dependency injection with sqlmock, mirroring the teacher's
// NewDatabaseForTesting.
func NewForTesting(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB exposes the underlying pool for migration tooling.
func (p *Postgres) DB() *sql.DB { return p.db }

// Close releases the connection pool and any active listener.
func (p *Postgres) Close() error {
	if p.listener != nil {
		p.listener.close()
	}
	return p.db.Close()
}

// Migrate creates the tables this core owns. Entities/scripts/assets and
// their access-policy tables remain the relational store's own concern
// (spec §1 non-goal); only the replication-core tables are created here.
func (p *Postgres) Migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sync_groups (
			name text PRIMARY KEY,
			server_tick_interval_ms integer NOT NULL,
			max_ticks integer NOT NULL,
			client_render_delay_ms integer NOT NULL DEFAULT 0,
			max_client_prediction_ms integer NOT NULL DEFAULT 0,
			packet_timing_variance_ms integer NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ticks (
			sync_group text NOT NULL REFERENCES sync_groups(name),
			number bigint NOT NULL,
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			entity_states_processed integer NOT NULL DEFAULT 0,
			script_states_processed integer NOT NULL DEFAULT 0,
			asset_states_processed integer NOT NULL DEFAULT 0,
			delayed boolean NOT NULL DEFAULT false,
			headroom_ms bigint NOT NULL DEFAULT 0,
			PRIMARY KEY (sync_group, number)
		)`,
		`CREATE TABLE IF NOT EXISTS entity_snapshots (
			sync_group text NOT NULL,
			tick_number bigint NOT NULL,
			resource_id text NOT NULL,
			fields jsonb NOT NULL,
			PRIMARY KEY (sync_group, tick_number, resource_id)
		)`,
		`CREATE TABLE IF NOT EXISTS script_snapshots (
			sync_group text NOT NULL,
			tick_number bigint NOT NULL,
			resource_id text NOT NULL,
			fields jsonb NOT NULL,
			PRIMARY KEY (sync_group, tick_number, resource_id)
		)`,
		`CREATE TABLE IF NOT EXISTS asset_snapshots (
			sync_group text NOT NULL,
			tick_number bigint NOT NULL,
			resource_id text NOT NULL,
			fields jsonb NOT NULL,
			PRIMARY KEY (sync_group, tick_number, resource_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id text PRIMARY KEY,
			agent_id text NOT NULL,
			provider text NOT NULL,
			token_hash text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			expires_at timestamptz NOT NULL,
			last_seen timestamptz NOT NULL DEFAULT now(),
			active boolean NOT NULL DEFAULT true
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_agent_provider ON sessions(agent_id, provider) WHERE active`,
	}

	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ValidateSession(ctx context.Context, sessionID string) (store.SessionInfo, error) {
	var info store.SessionInfo
	row := p.db.QueryRowContext(ctx,
		`SELECT agent_id, active, expires_at, token_hash FROM sessions WHERE session_id = $1`, sessionID)
	if err := row.Scan(&info.AgentID, &info.Active, &info.ExpiresAt, &info.TokenHash); err != nil {
		if err == sql.ErrNoRows {
			return store.SessionInfo{}, nil
		}
		return store.SessionInfo{}, err
	}
	return info, nil
}

// agentContextKey carries the currently-installed identity for a logical
// store interaction, per spec §9's explicit-context redesign: the core
// never relies on a process-wide "current agent" setting.
type agentContextKey struct{}

type agentContext struct {
	sessionID string
	token     string
}

// WithAgentContext is exported so the dispatcher can verify what identity
// is bound to a context before issuing a query.
func WithAgentContext(ctx context.Context, sessionID, token string) context.Context {
	return context.WithValue(ctx, agentContextKey{}, agentContext{sessionID: sessionID, token: token})
}

func (p *Postgres) SetAgentContext(ctx context.Context, sessionID, token string) error {
	ac, ok := ctx.Value(agentContextKey{}).(agentContext)
	if !ok || ac.sessionID != sessionID || ac.token != token {
		return fmt.Errorf("agent context not installed for session %s", sessionID)
	}
	_, err := p.db.ExecContext(ctx, `SELECT set_config('vircadia.agent_session_id', $1, true)`, sessionID)
	return err
}

func (p *Postgres) ClearAgentContext(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `SELECT set_config('vircadia.agent_session_id', '', true)`)
	return err
}

func (p *Postgres) InvalidateSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE sessions SET active = false WHERE session_id = $1 AND active`, sessionID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *Postgres) Execute(ctx context.Context, query string, params []interface{}) ([]map[string]interface{}, error) {
	rows, err := p.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			record[c] = values[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

var log = logging.Store()
