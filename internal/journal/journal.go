// Package journal writes an advisory audit trail of routing decisions and
// performance events to SQLite. It is write-only observability: nothing in
// the routing path ever reads it back, and routing state is rebuilt
// in-memory on every process start.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/log"
	"github.com/mcpgate/mcpgate/internal/routing"
)

// Journal appends decision and performance records. All writes are
// best-effort: failures are logged, never surfaced to the routing path.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and creates if needed) the journal database at path and
// ensures required tables exist.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{
		db:     db,
		logger: log.WithComponent("journal"),
	}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS routing_decision (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  request_id  TEXT,
  operation   TEXT NOT NULL,
  targets     TEXT NOT NULL,
  strategy    TEXT NOT NULL,
  timeout_ms  INTEGER NOT NULL,
  fallbacks   TEXT,
  decided_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS perf_event (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  kind       TEXT NOT NULL,
  payload    JSON NOT NULL,
  emitted_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS routing_decision_operation_idx ON routing_decision(operation, decided_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordDecision appends one routing decision.
func (j *Journal) RecordDecision(ctx context.Context, requestID, operation string, d routing.Decision) {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO routing_decision (request_id, operation, targets, strategy, timeout_ms, fallbacks, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		requestID,
		operation,
		strings.Join(d.TargetServers, ","),
		string(d.Strategy),
		d.Timeout.Milliseconds(),
		strings.Join(d.FallbackServers, ","),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		j.logger.Warn("record decision failed", "operation", operation, "error", err)
	}
}

// Attach subscribes the journal to performance and breaker events on the
// hub; returns the unregister func.
func (j *Journal) Attach(hub *events.Hub) func() {
	return hub.Register(events.ObserverFunc(func(ev events.Event) {
		switch ev.Type {
		case events.TypePerfMetric, events.TypePerfAlert,
			events.TypeBreakerOpen, events.TypeBreakerClosed,
			events.TypeServerConnected, events.TypeServerDisconnected:
			j.recordEvent(ev)
		}
	}))
}

func (j *Journal) recordEvent(ev events.Event) {
	payload := ev.Data
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := j.db.Exec(
		`INSERT INTO perf_event (kind, payload, emitted_at) VALUES (?, ?, ?)`,
		string(ev.Type),
		string(payload),
		ev.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		j.logger.Warn("record event failed", "kind", string(ev.Type), "error", err)
	}
}
