package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig controls database/sql pool behavior.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	out := c
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = 10
	}
	if out.MaxIdleConns <= 0 {
		out.MaxIdleConns = 10
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 5 * time.Second
	}
	return out
}

// Postgres implements Store on a database/sql pool using the pgx stdlib
// driver.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens the pool and verifies connectivity.
// dsn must not be logged; it contains credentials.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*Postgres, error) {
	pool = pool.withDefaults()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return &Postgres{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS call_logs (
	linked_id      TEXT PRIMARY KEY,
	caller_id      TEXT,
	caller_name    TEXT,
	callee         TEXT,
	callee_name    TEXT,
	direction      TEXT,
	start_time     TIMESTAMPTZ,
	answer_time    TIMESTAMPTZ,
	end_time       TIMESTAMPTZ,
	duration_sec   INTEGER,
	status         TEXT,
	hangup_cause   INTEGER,
	channels       TEXT,
	recording_path TEXT,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS shift_sessions (
	id             TEXT PRIMARY KEY,
	agent_id       TEXT NOT NULL,
	start_time     TIMESTAMPTZ NOT NULL,
	end_time       TIMESTAMPTZ,
	duration_sec   INTEGER,
	reason         TEXT,
	pending_end_at TIMESTAMPTZ,
	pending_reason TEXT
);

CREATE INDEX IF NOT EXISTS shift_sessions_open_idx
	ON shift_sessions (agent_id) WHERE end_time IS NULL;
`

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// UpsertCall merges a partial update into the call record for u.LinkedID,
// creating the row on first sight.
func (p *Postgres) UpsertCall(ctx context.Context, u CallUpdate) error {
	cols := []string{"linked_id"}
	args := []any{u.LinkedID}

	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if u.CallerID != nil {
		add("caller_id", *u.CallerID)
	}
	if u.CallerName != nil {
		add("caller_name", *u.CallerName)
	}
	if u.Callee != nil {
		add("callee", *u.Callee)
	}
	if u.CalleeName != nil {
		add("callee_name", *u.CalleeName)
	}
	if u.Direction != nil {
		add("direction", *u.Direction)
	}
	if u.StartTime != nil {
		add("start_time", *u.StartTime)
	}
	if u.AnswerTime != nil {
		add("answer_time", *u.AnswerTime)
	}
	if u.EndTime != nil {
		add("end_time", *u.EndTime)
	}
	if u.DurationSec != nil {
		add("duration_sec", *u.DurationSec)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.HangupCause != nil {
		add("hangup_cause", *u.HangupCause)
	}
	if u.Channels != nil {
		add("channels", strings.Join(u.Channels, ","))
	}
	if u.RecordingPath != nil {
		add("recording_path", *u.RecordingPath)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var sets []string
	for i, col := range cols[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	sets = append(sets, "updated_at = now()")

	q := fmt.Sprintf(
		"INSERT INTO call_logs (%s) VALUES (%s) ON CONFLICT (linked_id) DO UPDATE SET %s",
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)

	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upserting call %s: %w", u.LinkedID, err)
	}
	return nil
}

func (p *Postgres) InsertShift(ctx context.Context, s ShiftSession) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO shift_sessions (id, agent_id, start_time) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.AgentID, s.StartTime,
	)
	if err != nil {
		return fmt.Errorf("inserting shift %s: %w", s.ID, err)
	}
	return nil
}

func (p *Postgres) SetPendingEnd(ctx context.Context, id string, deadline time.Time, reason string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE shift_sessions SET pending_end_at = $2, pending_reason = $3 WHERE id = $1`,
		id, deadline, reason,
	)
	if err != nil {
		return fmt.Errorf("setting pending end on shift %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) ClearPendingEnd(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE shift_sessions SET pending_end_at = NULL, pending_reason = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("clearing pending end on shift %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) CloseShift(ctx context.Context, id string, end time.Time, durationSec int, reason string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE shift_sessions
		 SET end_time = $2, duration_sec = $3, reason = $4,
		     pending_end_at = NULL, pending_reason = NULL
		 WHERE id = $1 AND end_time IS NULL`,
		id, end, durationSec, reason,
	)
	if err != nil {
		return fmt.Errorf("closing shift %s: %w", id, err)
	}
	return nil
}

// OpenShifts returns every session without an end time, for restart
// recovery of grace-period timers.
func (p *Postgres) OpenShifts(ctx context.Context) ([]ShiftSession, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, agent_id, start_time, pending_end_at, COALESCE(pending_reason, '')
		 FROM shift_sessions WHERE end_time IS NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading open shifts: %w", err)
	}
	defer rows.Close()

	var out []ShiftSession
	for rows.Next() {
		var s ShiftSession
		var pending sql.NullTime
		if err := rows.Scan(&s.ID, &s.AgentID, &s.StartTime, &pending, &s.PendingReason); err != nil {
			return nil, fmt.Errorf("scanning shift: %w", err)
		}
		if pending.Valid {
			t := pending.Time
			s.PendingEndAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
