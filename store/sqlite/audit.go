package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/goTrust/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id         TEXT PRIMARY KEY,
    ts         TEXT NOT NULL,
    actor_id   TEXT,
    action     TEXT NOT NULL,
    outcome    TEXT NOT NULL,
    severity   TEXT NOT NULL,
    context    TEXT
);
CREATE INDEX IF NOT EXISTS audit_events_actor_ts ON audit_events (actor_id, ts);
CREATE INDEX IF NOT EXISTS audit_events_action_ts ON audit_events (action, ts);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// tsLayout is fixed width so that ts sorts lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// AuditLog stores audit events in one table.
type AuditLog struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema. Use ":memory:" for a throwaway log.
func Open(ctx context.Context, path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under load, and
	// keeps an in-memory database alive on a single connection.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &AuditLog{db: db}, nil
}

func (l *AuditLog) Close() error {
	return l.db.Close()
}

// Emit implements the audit sink interface. Missing IDs and timestamps are
// filled in.
func (l *AuditLog) Emit(ctx context.Context, e audit.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = audit.SeverityInfo
	}

	var contextJSON any
	if len(e.Context) > 0 {
		b, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("marshalling audit context: %w", err)
		}
		contextJSON = string(b)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, ts, actor_id, action, outcome, severity, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(tsLayout), nullableString(e.ActorID),
		e.Action, e.Outcome, string(e.Severity), contextJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// Filter selects events for List. Zero fields match everything.
type Filter struct {
	ActorID  string
	Action   string
	Severity audit.Severity
	Since    time.Time
	Limit    int
	Offset   int
}

// List returns matching events, newest first.
func (l *AuditLog) List(ctx context.Context, f Filter) ([]audit.Event, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if f.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, f.Since.UTC().Format(tsLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	// where holds only placeholders.
	query := "SELECT id, ts, actor_id, action, outcome, severity, context FROM audit_events " +
		where + " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e           audit.Event
			ts          string
			actorID     sql.NullString
			severity    string
			contextJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &actorID, &e.Action, &e.Outcome, &severity, &contextJSON); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		e.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", ts, err)
		}
		e.ActorID = actorID.String
		e.Severity = audit.Severity(severity)
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
				return nil, fmt.Errorf("decoding audit context of %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return out, nil
}

// Prune deletes events older than before and reports how many went.
func (l *AuditLog) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_events WHERE ts < ?`, before.UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Join(errors.New("pruning audit events: rows affected unknown"), err)
	}
	return n, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
