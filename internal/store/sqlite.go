// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides command and event ledgers with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == MemoryPath {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS command_log (
			record_id   TEXT PRIMARY KEY,
			command_id  INTEGER NOT NULL,
			strategy    TEXT NOT NULL,
			command     TEXT NOT NULL,
			result      TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			enqueued_at TEXT NOT NULL,
			settled_at  TEXT NOT NULL,

			CHECK (strategy IN ('polled', 'persistent')),
			CHECK (outcome IN ('resolved', 'timed_out', 'failed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_command_log_settled ON command_log(settled_at);

		CREATE TABLE IF NOT EXISTS event_log (
			event_id    TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			player      TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			detail_json TEXT,
			ts          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_event_log_ts ON event_log(ts);
		CREATE INDEX IF NOT EXISTS idx_event_log_kind ON event_log(kind, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
