// Package audit is the broker's restart/delivery outcome history,
// backing the control API's /audit endpoint (spec.md §7: restart and
// delivery-failure events are structured and worth retaining past
// process lifetime, distinct from the out-of-scope conversation log
// and credential store).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AgentWorkforce/relay-broker/internal/controlapi"
)

// Entry kinds recorded by the audit store.
const (
	KindRestart          = "restart"
	KindRestartExhausted = "restart_exhausted"
	KindDeliveryRetry    = "delivery_retry"
	KindDeliveryFailed   = "delivery_failed"
)

// Store persists restart/delivery outcome history to SQLite.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) a SQLite-backed audit Store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit database directory: %w", err)
	}

	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const query = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL,
		agent TEXT NOT NULL,
		detail TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_ts ON audit_entries(ts DESC);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record appends one outcome to the history.
func (s *Store) Record(ctx context.Context, kind, agent, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (ts, kind, agent, detail) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), kind, agent, detail)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, most recent first. It satisfies
// controlapi.AuditLog.
func (s *Store) Recent(limit int) ([]controlapi.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT ts, kind, agent, detail FROM audit_entries ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []controlapi.AuditEntry
	for rows.Next() {
		var ts int64
		var e controlapi.AuditEntry
		if err := rows.Scan(&ts, &e.Kind, &e.Agent, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }
