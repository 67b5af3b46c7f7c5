// audit/store.go
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/types"
)

// previewLimit is the number of characters of tool output kept per row.
const previewLimit = 500

const schema = `
CREATE TABLE IF NOT EXISTS tool_executions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT    NOT NULL,
    iteration      INTEGER NOT NULL,
    tool           TEXT    NOT NULL,
    arguments      TEXT    NOT NULL,
    ok             INTEGER NOT NULL,
    error_kind     TEXT    NOT NULL DEFAULT '',
    output_preview TEXT    NOT NULL DEFAULT '',
    duration_ms    INTEGER NOT NULL,
    created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_executions_run ON tool_executions(run_id, id);
`

// Entry is one recorded tool execution.
type Entry struct {
	ID            int64
	RunID         string
	Iteration     int
	Tool          string
	Arguments     map[string]string
	OK            bool
	ErrorKind     string
	OutputPreview string
	Duration      time.Duration
	CreatedAt     time.Time
}

// Store records tool executions in SQLite. It is a log for inspection only;
// nothing reads it back to resume a run.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &types.AuditError{Operation: "open", Message: "failed to create directory", Err: err}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &types.AuditError{Operation: "open", Message: "failed to open database", Err: err}
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY and keeps
	// :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &types.AuditError{Operation: "open", Message: "failed to create schema", Err: err}
	}

	return &Store{db: db}, nil
}

// Record inserts an entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	args, err := json.Marshal(e.Arguments)
	if err != nil {
		return &types.AuditError{Operation: "record", Message: "failed to encode arguments", Err: err}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO tool_executions
            (run_id, iteration, tool, arguments, ok, error_kind, output_preview, duration_ms, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Iteration, e.Tool, string(args), e.OK, e.ErrorKind,
		preview(e.OutputPreview), e.Duration.Milliseconds(), e.CreatedAt.UTC(),
	)
	if err != nil {
		return &types.AuditError{Operation: "record", Message: "failed to insert entry", Err: err}
	}
	return nil
}

// RecordTool implements agent.Recorder.
func (s *Store) RecordTool(ctx context.Context, rec agent.ToolRecord) error {
	return s.Record(ctx, Entry{
		RunID:         rec.RunID,
		Iteration:     rec.Iteration,
		Tool:          rec.Tool,
		Arguments:     rec.Args,
		OK:            !rec.Result.IsError(),
		ErrorKind:     string(rec.Result.Kind),
		OutputPreview: rec.Result.Text(),
		Duration:      rec.Duration,
		CreatedAt:     rec.StartedAt,
	})
}

// ListRun returns the entries of one run in execution order.
func (s *Store) ListRun(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, run_id, iteration, tool, arguments, ok, error_kind, output_preview, duration_ms, created_at
        FROM tool_executions
        WHERE run_id = ?
        ORDER BY id`, runID)
	if err != nil {
		return nil, &types.AuditError{Operation: "list_run", Message: "failed to query entries", Err: err}
	}
	return scanEntries(rows, "list_run")
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, run_id, iteration, tool, arguments, ok, error_kind, output_preview, duration_ms, created_at
        FROM tool_executions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, &types.AuditError{Operation: "recent", Message: "failed to query entries", Err: err}
	}
	return scanEntries(rows, "recent")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows, op string) ([]Entry, error) {
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			args       string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Iteration, &e.Tool, &args, &e.OK,
			&e.ErrorKind, &e.OutputPreview, &durationMS, &e.CreatedAt); err != nil {
			return nil, &types.AuditError{Operation: op, Message: "failed to scan row", Err: err}
		}
		if err := json.Unmarshal([]byte(args), &e.Arguments); err != nil {
			return nil, &types.AuditError{Operation: op, Message: fmt.Sprintf("bad arguments in row %d", e.ID), Err: err}
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.AuditError{Operation: op, Message: "failed to iterate rows", Err: err}
	}
	return entries, nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewLimit]) + "..."
}
