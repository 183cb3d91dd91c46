// ABOUTME: SQLite persistence for paired devices, secrets, and the tool audit log
// ABOUTME: Uses modernc.org/sqlite with WAL mode and automatic schema creation

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the sqlite-backed persistence layer. Sessions are deliberately
// not stored here; only pairing state, secrets, and the audit trail persist.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path. Parent directories are
// created and the schema is applied if missing. A nil logger falls back to
// slog.Default.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			public_key TEXT NOT NULL,
			role TEXT NOT NULL,
			scopes TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS secrets (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tool_audit (
			id TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			skill TEXT,
			argv TEXT,
			ok INTEGER NOT NULL,
			output TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_audit_created
			ON tool_audit(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
